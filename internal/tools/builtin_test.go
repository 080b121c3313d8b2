package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweagent/core/pkg/models"
)

func TestReportProgressTool_ValidatesInputAndReturnsOk(t *testing.T) {
	tool := NewReportProgressTool()

	input := json.RawMessage(`{"message": "scanning repository"}`)
	result, err := tool.Execute(context.Background(), input, ExecMeta{WorkerID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
}

func TestReportProgressTool_InvalidInputErrors(t *testing.T) {
	tool := NewReportProgressTool()
	_, err := tool.Execute(context.Background(), json.RawMessage(`not json`), ExecMeta{WorkerID: "w1"})
	assert.Error(t, err)
}

func TestProgressRecorder_SinceLastReportZeroWhenNeverRecorded(t *testing.T) {
	recorder := NewProgressRecorder()
	assert.Equal(t, time.Duration(0), recorder.SinceLastReport("never-reported"))
}

func TestProgressRecorder_ResetClearsTranscript(t *testing.T) {
	recorder := NewProgressRecorder()
	recorder.Record("w1", "step one")
	recorder.Reset("w1")
	assert.Empty(t, recorder.Transcript("w1"))
}

func TestTodoInitTool_ReplacesListWithPendingItems(t *testing.T) {
	store := NewTodoStore()
	tool := NewTodoInitTool(store)

	input := json.RawMessage(`{"items": ["write tests", "review diff"]}`)
	_, err := tool.Execute(context.Background(), input, ExecMeta{WorkerID: "w1"})
	require.NoError(t, err)

	items := store.Get("w1")
	require.Len(t, items, 2)
	assert.Equal(t, "write tests", items[0].Text)
	assert.Equal(t, "pending", items[0].Status)
}

func TestTodoUpdateTool_UpdatesStatusByIndex(t *testing.T) {
	store := NewTodoStore()
	store.set("w1", []TodoItem{{Text: "write tests", Status: "pending"}})
	tool := NewTodoUpdateTool(store)

	input := json.RawMessage(`{"index": 0, "status": "completed"}`)
	_, err := tool.Execute(context.Background(), input, ExecMeta{WorkerID: "w1"})
	require.NoError(t, err)

	items := store.Get("w1")
	require.Len(t, items, 1)
	assert.Equal(t, "completed", items[0].Status)
}

func TestTodoUpdateTool_OutOfRangeIndexErrors(t *testing.T) {
	store := NewTodoStore()
	store.set("w1", []TodoItem{{Text: "write tests", Status: "pending"}})
	tool := NewTodoUpdateTool(store)

	input := json.RawMessage(`{"index": 5, "status": "completed"}`)
	_, err := tool.Execute(context.Background(), input, ExecMeta{WorkerID: "w1"})
	assert.Error(t, err)
}

func TestSendImageTool_DecodesBase64IntoImageBlock(t *testing.T) {
	tool := NewSendImageTool()
	raw := []byte("fake-png-bytes")
	encoded := base64.StdEncoding.EncodeToString(raw)

	input := json.RawMessage(`{"base64Data": "` + encoded + `", "mimeType": "png"}`)
	result, err := tool.Execute(context.Background(), input, ExecMeta{WorkerID: "w1"})
	require.NoError(t, err)
	require.Len(t, result.Blocks, 1)

	block := result.Blocks[0]
	assert.Equal(t, models.BlockImage, block.Kind)
	require.NotNil(t, block.Image)
	assert.Equal(t, raw, block.Image.Bytes)
	assert.Equal(t, "png", block.Image.Format)
}

func TestSendImageTool_InvalidBase64Errors(t *testing.T) {
	tool := NewSendImageTool()
	input := json.RawMessage(`{"base64Data": "not-valid-base64!!"}`)
	_, err := tool.Execute(context.Background(), input, ExecMeta{WorkerID: "w1"})
	assert.Error(t, err)
}
