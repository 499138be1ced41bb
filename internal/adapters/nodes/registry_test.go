package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/flux/internal/ports"
)

type noopExecutor struct{}

func (noopExecutor) Execute(_ context.Context, _ ports.ExecutionInput) (*ports.ExecutionOutput, error) {
	return &ports.ExecutionOutput{}, nil
}

func TestRegisterAndGetExecutor(t *testing.T) {
	r := NewExecutorRegistry(nil)

	require.NoError(t, r.RegisterExecutor("noop", noopExecutor{}))

	executor, err := r.GetExecutor("noop")
	require.NoError(t, err)
	assert.NotNil(t, executor)
	assert.True(t, r.HasExecutor("noop"))
}

func TestRegisterExecutor_NilExecutor(t *testing.T) {
	r := NewExecutorRegistry(nil)

	err := r.RegisterExecutor("noop", nil)
	assert.Error(t, err)
}

func TestRegisterExecutor_EmptyNodeType(t *testing.T) {
	r := NewExecutorRegistry(nil)

	err := r.RegisterExecutor("", noopExecutor{})
	assert.Error(t, err)
}

func TestRegisterExecutor_Duplicate(t *testing.T) {
	r := NewExecutorRegistry(nil)

	require.NoError(t, r.RegisterExecutor("noop", noopExecutor{}))
	err := r.RegisterExecutor("noop", noopExecutor{})

	var regErr ports.ExecutorRegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "noop", regErr.NodeType)
}

func TestGetExecutor_Unknown(t *testing.T) {
	r := NewExecutorRegistry(nil)

	_, err := r.GetExecutor("missing")
	assert.Error(t, err)
}

func TestUnregisterExecutor(t *testing.T) {
	r := NewExecutorRegistry(nil)

	require.NoError(t, r.RegisterExecutor("noop", noopExecutor{}))
	require.NoError(t, r.UnregisterExecutor("noop"))
	assert.False(t, r.HasExecutor("noop"))

	err := r.UnregisterExecutor("noop")
	assert.Error(t, err)
}

func TestListExecutors(t *testing.T) {
	r := NewExecutorRegistry(nil)

	require.NoError(t, r.RegisterExecutor("a", noopExecutor{}))
	require.NoError(t, r.RegisterExecutor("b", noopExecutor{}))

	assert.ElementsMatch(t, []string{"a", "b"}, r.ListExecutors())
}
