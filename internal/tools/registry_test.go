package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{ name string }

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echoes its input back" }
func (e *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"value": {"type": "string"}}, "required": ["value"]}`)
}
func (e *echoTool) Execute(ctx context.Context, input json.RawMessage, meta ExecMeta) (Result, error) {
	return TextResult(string(input)), nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&echoTool{name: "echo"}))

	tool, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tool.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RegisterRejectsInvalidSchema(t *testing.T) {
	r := NewRegistry()
	bad := &echoTool{name: "bad"}
	// Overwrite Schema via a wrapper that returns invalid JSON.
	err := r.Register(&invalidSchemaTool{echoTool: bad})
	assert.Error(t, err)
}

type invalidSchemaTool struct{ *echoTool }

func (i *invalidSchemaTool) Schema() json.RawMessage { return json.RawMessage(`{not valid json`) }

func TestRegistry_ValidateAcceptsWellFormedInput(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&echoTool{name: "echo"}))

	err := r.Validate("echo", json.RawMessage(`{"value": "hi"}`))
	assert.NoError(t, err)
}

func TestRegistry_ValidateRejectsMissingRequiredField(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&echoTool{name: "echo"}))

	err := r.Validate("echo", json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestRegistry_ValidateUnknownToolErrors(t *testing.T) {
	r := NewRegistry()
	err := r.Validate("missing", json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestRegistry_All(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&echoTool{name: "a"}))
	require.NoError(t, r.Register(&echoTool{name: "b"}))
	assert.Len(t, r.All(), 2)
}

func TestNewBuiltinRegistry_RegistersRequiredToolSet(t *testing.T) {
	r, err := NewBuiltinRegistry(NewTodoStore())
	require.NoError(t, err)

	for _, name := range RequiredToolNames {
		_, ok := r.Get(name)
		assert.Truef(t, ok, "expected built-in registry to contain %s", name)
	}
}
