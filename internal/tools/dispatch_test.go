package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweagent/core/pkg/models"
)

type failingTool struct{ name string }

func (f *failingTool) Name() string          { return f.name }
func (f *failingTool) Description() string   { return "always fails" }
func (f *failingTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object"}`)
}
func (f *failingTool) Execute(ctx context.Context, input json.RawMessage, meta ExecMeta) (Result, error) {
	return Result{}, errors.New("boom")
}

type stubMCPDispatcher struct {
	servesName string
	result     Result
	err        error
}

func (s stubMCPDispatcher) Dispatch(ctx context.Context, name string, input json.RawMessage, meta ExecMeta) (bool, Result, error) {
	if name != s.servesName {
		return false, Result{}, nil
	}
	return true, s.result, s.err
}

func TestDispatcher_PrefersMCPWhenServed(t *testing.T) {
	registry := NewRegistry()
	mcp := stubMCPDispatcher{servesName: "customTool", result: TextResult("handled by mcp")}
	d := NewDispatcher(mcp, registry, NewProgressRecorder())

	result := d.Dispatch(context.Background(), "customTool", json.RawMessage(`{}`), ExecMeta{WorkerID: "w1"})
	require.Equal(t, models.ToolResultStatusSuccess, result.Status)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "handled by mcp", result.Content[0].Text)
}

func TestDispatcher_FallsBackToBuiltinWhenMCPDoesNotServe(t *testing.T) {
	registry, err := NewBuiltinRegistry(NewTodoStore())
	require.NoError(t, err)
	mcp := stubMCPDispatcher{servesName: "somethingElse"}
	d := NewDispatcher(mcp, registry, NewProgressRecorder())

	result := d.Dispatch(context.Background(), "reportProgress", json.RawMessage(`{"message": "hi"}`), ExecMeta{WorkerID: "w1"})
	require.Equal(t, models.ToolResultStatusSuccess, result.Status)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "ok", result.Content[0].Text)
}

func TestDispatcher_UnknownToolProducesErrorText(t *testing.T) {
	registry := NewRegistry()
	d := NewDispatcher(nil, registry, nil)

	result := d.Dispatch(context.Background(), "missingTool", json.RawMessage(`{}`), ExecMeta{WorkerID: "w1"})
	assert.Equal(t, models.ToolResultStatusError, result.Status)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "Error occurred when using tool missingTool")
}

func TestDispatcher_SchemaValidationFailureProducesErrorText(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "echo"}))
	d := NewDispatcher(nil, registry, nil)

	result := d.Dispatch(context.Background(), "echo", json.RawMessage(`{}`), ExecMeta{WorkerID: "w1"})
	assert.Equal(t, models.ToolResultStatusError, result.Status)
	assert.Contains(t, result.Content[0].Text, "Error occurred when using tool echo")
}

func TestDispatcher_HandlerExceptionProducesErrorTextAndContinues(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&failingTool{name: "boom"}))
	d := NewDispatcher(nil, registry, nil)

	result := d.Dispatch(context.Background(), "boom", json.RawMessage(`{}`), ExecMeta{WorkerID: "w1"})
	assert.Equal(t, models.ToolResultStatusError, result.Status)
	assert.Contains(t, result.Content[0].Text, "Error occurred when using tool boom: boom")
}

func TestDispatcher_ReportProgressPostEffectRecordsTranscript(t *testing.T) {
	registry, err := NewBuiltinRegistry(NewTodoStore())
	require.NoError(t, err)
	progress := NewProgressRecorder()
	d := NewDispatcher(nil, registry, progress)

	d.Dispatch(context.Background(), "reportProgress", json.RawMessage(`{"message": "scanning"}`), ExecMeta{WorkerID: "w1"})
	assert.Equal(t, []string{"scanning"}, progress.Transcript("w1"))
}

func TestToolResultBlock_WrapsDispatchResult(t *testing.T) {
	dr := DispatchResult{Content: []models.ContentBlock{models.Text("ok")}, Status: models.ToolResultStatusSuccess}
	block := ToolResultBlock("t1", dr)
	require.Equal(t, models.BlockToolResult, block.Kind)
	assert.Equal(t, "t1", block.ToolResult.ToolUseID)
	assert.Equal(t, models.ToolResultStatusSuccess, block.ToolResult.Status)
}
