package domain

import (
	"errors"
	"fmt"
)

type ErrorType int

const (
	ErrorTypeNotFound ErrorType = iota
	ErrorTypeConflict
	ErrorTypeTimeout
	ErrorTypeInvalidInput
	ErrorTypeInternal
)

// Error is the structured error carried across adapter boundaries. Details
// holds per-call context for logging, never for control flow.
type Error struct {
	Type    ErrorType
	Message string
	Details map[string]interface{}
	Err     error
}

func (e Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e Error) Unwrap() error {
	return e.Err
}

var (
	ErrTriggerNotFound  = errors.New("trigger not found")
	ErrBusy             = errors.New("graph busy")
	ErrContextNotFound  = errors.New("execution context not found")
	ErrGraphNotFound    = errors.New("graph not found")
	ErrExecutionTimeout = errors.New("execution timeout exceeded")
	ErrNodeTimeout      = errors.New("node timeout exceeded")
	ErrAlreadyStarted   = errors.New("already started")
	ErrNotStarted       = errors.New("not started")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidInput     = errors.New("invalid input")
)

func NewTriggerNotFoundError(triggerKey string) Error {
	return Error{
		Type:    ErrorTypeNotFound,
		Message: "no trigger registered for key",
		Details: map[string]interface{}{"trigger_key": triggerKey},
		Err:     ErrTriggerNotFound,
	}
}

func NewBusyError(graphID string) Error {
	return Error{
		Type:    ErrorTypeConflict,
		Message: "graph already has a run in flight",
		Details: map[string]interface{}{"graph_id": graphID},
		Err:     ErrBusy,
	}
}

func NewContextNotFoundError(executionID string) Error {
	return Error{
		Type:    ErrorTypeNotFound,
		Message: "execution context not found",
		Details: map[string]interface{}{"execution_id": executionID},
		Err:     ErrContextNotFound,
	}
}

func NewGraphNotFoundError(graphID string) Error {
	return Error{
		Type:    ErrorTypeNotFound,
		Message: "graph not found",
		Details: map[string]interface{}{"graph_id": graphID},
		Err:     ErrGraphNotFound,
	}
}

func IsTriggerNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound)
}

func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

func IsContextNotFound(err error) bool {
	return errors.Is(err, ErrContextNotFound)
}

func IsGraphNotFound(err error) bool {
	return errors.Is(err, ErrGraphNotFound)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrExecutionTimeout) || errors.Is(err, ErrNodeTimeout)
}
