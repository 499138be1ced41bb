package ports

import (
	"context"

	json "github.com/eleven-am/flux/internal/xjson"
)

// ExecutionInput carries everything a node implementation receives: the
// payloads delivered on its input ports, its opaque parameter blob, and an
// accessor for stored credentials.
type ExecutionInput struct {
	ExecutionID string
	NodeID      string
	Inputs      map[string]json.RawMessage
	Parameters  json.RawMessage
	Credentials CredentialsAccessor
}

// ExecutionOutput maps output port names to payloads. A nil map is treated
// as an empty payload on the default port.
type ExecutionOutput struct {
	Outputs map[string]json.RawMessage
}

// ExecutorPort is the single contract every node type implements. The engine
// holds no per-type business logic; adding a node type never touches it.
type ExecutorPort interface {
	Execute(ctx context.Context, input ExecutionInput) (*ExecutionOutput, error)
}

// CredentialsAccessor resolves stored credentials by name. Credential
// storage and encryption live outside this module.
type CredentialsAccessor interface {
	Credential(ctx context.Context, name string) (json.RawMessage, error)
}

type ExecutorRegistryPort interface {
	RegisterExecutor(nodeType string, executor ExecutorPort) error
	GetExecutor(nodeType string) (ExecutorPort, error)
	ListExecutors() []string
	UnregisterExecutor(nodeType string) error
	HasExecutor(nodeType string) bool
}

type ExecutorRegistrationError struct {
	NodeType string
	Reason   string
}

func (e ExecutorRegistrationError) Error() string {
	return "executor registration failed for '" + e.NodeType + "': " + e.Reason
}
