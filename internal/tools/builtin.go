package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sweagent/core/pkg/models"
)

// ProgressReportThreshold is how long the renderer waits since the last
// reportProgress call before forcing a progress echo (§4.F step 5).
const ProgressReportThreshold = 300 * time.Second

// ProgressRecorder tracks the last reportProgress call per session and
// accumulates each reportProgress message as a plain-text transcript
// entry. The turn loop builds its title-generation transcript separately
// and does not read this one.
type ProgressRecorder struct {
	mu          sync.Mutex
	lastReport  map[string]time.Time
	transcripts map[string][]string
}

// NewProgressRecorder constructs an empty recorder.
func NewProgressRecorder() *ProgressRecorder {
	return &ProgressRecorder{lastReport: map[string]time.Time{}, transcripts: map[string][]string{}}
}

// Record appends a transcript entry and stamps the last-report time.
func (p *ProgressRecorder) Record(workerID, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastReport[workerID] = time.Now()
	p.transcripts[workerID] = append(p.transcripts[workerID], text)
}

// SinceLastReport reports how long it has been since the last
// reportProgress call, or a zero duration if there has never been one.
func (p *ProgressRecorder) SinceLastReport(workerID string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.lastReport[workerID]
	if !ok {
		return 0
	}
	return time.Since(t)
}

// Transcript returns the accumulated transcript entries for a session.
func (p *ProgressRecorder) Transcript(workerID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.transcripts[workerID]))
	copy(out, p.transcripts[workerID])
	return out
}

// Reset clears a session's accumulated transcript.
func (p *ProgressRecorder) Reset(workerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.transcripts, workerID)
}

// reportProgressTool is a schema-only stub: invocation itself does
// nothing beyond validating input, since the post-effect (transcript
// entry, last-report timestamp) belongs to the dispatch loop, not the
// tool (the loop owns it as part of its own contract).
type reportProgressTool struct{}

// NewReportProgressTool builds the reportProgress built-in.
func NewReportProgressTool() Tool { return &reportProgressTool{} }

func (t *reportProgressTool) Name() string { return "reportProgress" }
func (t *reportProgressTool) Description() string {
	return "Report a short, human-readable progress update to the user."
}
func (t *reportProgressTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"message": {"type": "string"}},
		"required": ["message"],
		"additionalProperties": false
	}`)
}

func (t *reportProgressTool) Execute(ctx context.Context, input json.RawMessage, meta ExecMeta) (Result, error) {
	var params struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return Result{}, fmt.Errorf("reportProgress: %w", err)
	}
	return TextResult("ok"), nil
}

// TodoItem is one entry of a session's task list.
type TodoItem struct {
	Text   string `json:"text"`
	Status string `json:"status"` // pending | inProgress | completed
}

// TodoStore holds the in-progress task list per session, used by
// todoInit/todoUpdate. It is scoped to the turn loop process, not
// persisted: todos are a working-memory aid for the model, not part of
// the append-only conversation log.
type TodoStore struct {
	mu    sync.Mutex
	lists map[string][]TodoItem
}

// NewTodoStore constructs an empty store.
func NewTodoStore() *TodoStore {
	return &TodoStore{lists: map[string][]TodoItem{}}
}

// Get returns a copy of the current task list for a session.
func (s *TodoStore) Get(workerID string) []TodoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TodoItem, len(s.lists[workerID]))
	copy(out, s.lists[workerID])
	return out
}

func (s *TodoStore) set(workerID string, items []TodoItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[workerID] = items
}

type todoInitTool struct{ store *TodoStore }

// NewTodoInitTool builds the todoInit built-in.
func NewTodoInitTool(store *TodoStore) Tool { return &todoInitTool{store: store} }

func (t *todoInitTool) Name() string        { return "todoInit" }
func (t *todoInitTool) Description() string { return "Replace the task list with a new set of todos." }
func (t *todoInitTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"items": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["items"],
		"additionalProperties": false
	}`)
}

func (t *todoInitTool) Execute(ctx context.Context, input json.RawMessage, meta ExecMeta) (Result, error) {
	var params struct {
		Items []string `json:"items"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return Result{}, fmt.Errorf("todoInit: %w", err)
	}
	items := make([]TodoItem, len(params.Items))
	for i, text := range params.Items {
		items[i] = TodoItem{Text: text, Status: "pending"}
	}
	if t.store != nil {
		t.store.set(meta.WorkerID, items)
	}
	return TextResult(fmt.Sprintf("initialized %d todos", len(items))), nil
}

type todoUpdateTool struct{ store *TodoStore }

// NewTodoUpdateTool builds the todoUpdate built-in.
func NewTodoUpdateTool(store *TodoStore) Tool { return &todoUpdateTool{store: store} }

func (t *todoUpdateTool) Name() string { return "todoUpdate" }
func (t *todoUpdateTool) Description() string {
	return "Update the status of one task in the current task list."
}
func (t *todoUpdateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"index": {"type": "integer", "minimum": 0},
			"status": {"type": "string", "enum": ["pending", "inProgress", "completed"]}
		},
		"required": ["index", "status"],
		"additionalProperties": false
	}`)
}

func (t *todoUpdateTool) Execute(ctx context.Context, input json.RawMessage, meta ExecMeta) (Result, error) {
	var params struct {
		Index  int    `json:"index"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return Result{}, fmt.Errorf("todoUpdate: %w", err)
	}
	if t.store == nil {
		return TextResult("ok"), nil
	}
	items := t.store.Get(meta.WorkerID)
	if params.Index < 0 || params.Index >= len(items) {
		return Result{}, fmt.Errorf("todoUpdate: index %d out of range (have %d todos)", params.Index, len(items))
	}
	items[params.Index].Status = params.Status
	t.store.set(meta.WorkerID, items)
	return TextResult("ok"), nil
}

type sendImageTool struct{}

// NewSendImageTool builds the sendImage built-in: it passes inline image
// bytes through as a structured content block rather than text, so the
// renderer can display it directly.
func NewSendImageTool() Tool { return &sendImageTool{} }

func (t *sendImageTool) Name() string        { return "sendImage" }
func (t *sendImageTool) Description() string { return "Send an image to the user." }
func (t *sendImageTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"base64Data": {"type": "string"},
			"mimeType": {"type": "string"}
		},
		"required": ["base64Data"],
		"additionalProperties": false
	}`)
}

func (t *sendImageTool) Execute(ctx context.Context, input json.RawMessage, meta ExecMeta) (Result, error) {
	var params struct {
		Base64Data string `json:"base64Data"`
		MimeType   string `json:"mimeType"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return Result{}, fmt.Errorf("sendImage: %w", err)
	}
	format := "png"
	if params.MimeType != "" {
		format = params.MimeType
	}
	data, err := base64.StdEncoding.DecodeString(params.Base64Data)
	if err != nil {
		return Result{}, fmt.Errorf("sendImage: decode base64Data: %w", err)
	}
	block := models.ContentBlock{Kind: models.BlockImage, Image: &models.ImageBlock{Bytes: data, Format: format}}
	return BlocksResult([]models.ContentBlock{block}), nil
}
