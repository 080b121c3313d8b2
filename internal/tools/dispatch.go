package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sweagent/core/pkg/models"
)

// MCPDispatcher attempts to serve a tool call through an MCP server
// (§4.F tool dispatch step 1). Served reports whether name is handled by
// this dispatcher at all; the concrete MCP client transport is out of
// scope, so real implementations are thin adapters over an external
// process.
type MCPDispatcher interface {
	Dispatch(ctx context.Context, name string, input json.RawMessage, meta ExecMeta) (served bool, result Result, err error)
}

// NopMCPDispatcher serves nothing; every call falls through to the
// built-in catalog.
type NopMCPDispatcher struct{}

// Dispatch implements MCPDispatcher.
func (NopMCPDispatcher) Dispatch(ctx context.Context, name string, input json.RawMessage, meta ExecMeta) (bool, Result, error) {
	return false, Result{}, nil
}

// Dispatcher resolves a single toolUse block to its result, implementing
// the full §4.F tool dispatch sequence: MCP-first lookup, built-in
// catalog fallback with schema validation, result normalization, and
// handler-exception-to-error-text conversion.
type Dispatcher struct {
	MCP      MCPDispatcher
	Registry *Registry
	Progress *ProgressRecorder
}

// NewDispatcher wires a dispatcher over a built-in registry and the
// progress recorder used for the reportProgress post-effect. A nil mcp
// falls back to NopMCPDispatcher.
func NewDispatcher(mcp MCPDispatcher, registry *Registry, progress *ProgressRecorder) *Dispatcher {
	if mcp == nil {
		mcp = NopMCPDispatcher{}
	}
	return &Dispatcher{MCP: mcp, Registry: registry, Progress: progress}
}

// DispatchResult is the outcome of one toolUse dispatch, ready to be
// wrapped in a toolResult content block by the caller.
type DispatchResult struct {
	Content []models.ContentBlock
	Status  models.ToolResultStatus
}

// Dispatch resolves one toolUse block (name, input) to its toolResult
// content. Per step 4, a handler exception never propagates as a Go
// error: it is converted to a text block and a Status of error, and the
// loop continues. Dispatch never returns a Go error.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, input json.RawMessage, meta ExecMeta) DispatchResult {
	served, result, err := d.MCP.Dispatch(ctx, name, input, meta)
	if served {
		if err != nil {
			return errorDispatchResult(name, err)
		}
		d.applyPostEffects(name, input, meta)
		return DispatchResult{Content: result.ContentBlocks(), Status: models.ToolResultStatusSuccess}
	}

	tool, ok := d.Registry.Get(name)
	if !ok {
		return errorDispatchResult(name, fmt.Errorf("no built-in tool named %q", name))
	}
	if err := d.Registry.Validate(name, input); err != nil {
		return errorDispatchResult(name, err)
	}

	result, err = tool.Execute(ctx, input, meta)
	if err != nil {
		return errorDispatchResult(name, err)
	}

	d.applyPostEffects(name, input, meta)
	return DispatchResult{Content: result.ContentBlocks(), Status: models.ToolResultStatusSuccess}
}

// applyPostEffects implements step 5: side effects that belong to the
// loop's contract rather than the tool's own implementation.
func (d *Dispatcher) applyPostEffects(name string, input json.RawMessage, meta ExecMeta) {
	if name != "reportProgress" || d.Progress == nil {
		return
	}
	var params struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return
	}
	d.Progress.Record(meta.WorkerID, params.Message)
}

// errorDispatchResult converts a dispatch failure into the text block
// shape step 4 requires, so the loop can persist a toolResult regardless
// of what went wrong.
func errorDispatchResult(name string, err error) DispatchResult {
	text := fmt.Sprintf("Error occurred when using tool %s: %s", name, err.Error())
	return DispatchResult{Content: []models.ContentBlock{models.Text(text)}, Status: models.ToolResultStatusError}
}

// ToolResultBlock wraps a dispatch result as a toolResult content block,
// pairing it with the originating toolUseId.
func ToolResultBlock(toolUseID string, result DispatchResult) models.ContentBlock {
	return models.ContentBlock{
		Kind: models.BlockToolResult,
		ToolResult: &models.ToolResultBlock{
			ToolUseID: toolUseID,
			Content:   result.Content,
			Status:    result.Status,
		},
	}
}
