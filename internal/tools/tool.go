// Package tools implements the built-in tool catalog and dispatch used
// by the Agent Turn Loop: the Tool contract, a thread-safe Registry,
// JSON-schema input validation, and the required tool set (reportProgress,
// todoInit, todoUpdate, sendImage).
package tools

import (
	"context"
	"encoding/json"

	"github.com/sweagent/core/pkg/models"
)

// ExecMeta carries the per-call context a handler needs beyond its
// validated input (§4.F tool dispatch: "call its handler with (input,
// {toolUseId, workerId, preferences})").
type ExecMeta struct {
	ToolUseID   string
	WorkerID    string
	Preferences *models.Preferences
}

// Result is what a tool handler returns: either plain text or a
// structured list of content blocks (§4.F step 3). TextResult and
// BlocksResult are the two constructors; at most one of Text/Blocks
// should be treated as authoritative by callers, selected by which is
// non-empty.
type Result struct {
	Text   string
	Blocks []models.ContentBlock
}

// TextResult wraps a plain string result.
func TextResult(s string) Result { return Result{Text: s} }

// BlocksResult wraps a structured content-block result (used by tools
// like sendImage that return an image block).
func BlocksResult(blocks []models.ContentBlock) Result { return Result{Blocks: blocks} }

// ContentBlocks renders the result as content blocks for persistence in
// a toolResult item's Content slice.
func (r Result) ContentBlocks() []models.ContentBlock {
	if len(r.Blocks) > 0 {
		return r.Blocks
	}
	return []models.ContentBlock{models.Text(r.Text)}
}

// Tool is a single built-in tool's contract: a name and description for
// the catalog, a JSON-schema input document, and a handler.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage, meta ExecMeta) (Result, error)
}
