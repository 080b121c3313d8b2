package turnloop

import (
	"context"
	"fmt"
	"sort"

	"github.com/sweagent/core/internal/contextmgr"
	"github.com/sweagent/core/internal/llmclient"
	"github.com/sweagent/core/internal/metastore"
	"github.com/sweagent/core/internal/tools"
	"github.com/sweagent/core/pkg/models"
)

// MetaStore resolves the small per-session scratch metadata (currently
// only repoDirectory) the system prompt assembly needs.
type MetaStore interface {
	GetRepoDirectory(ctx context.Context, workerID string) (string, error)
}

var _ MetaStore = (*metastore.Store)(nil)

// Meta, if set, is consulted for repoDirectory during system prompt
// assembly.
func (l *Loop) metaStore() MetaStore { return l.Meta }

// buildCall implements the BUILD CALL state: model/tool selection,
// middle-out-or-noop filtering, cache-point placement, and system
// prompt assembly.
func (l *Loop) buildCall(ctx context.Context, meta sessionMeta, history []*models.Message) (llmclient.Request, error) {
	proj := contextmgr.NoOpFiltering(history)
	didMiddleOut := false
	if proj.TotalTokens > contextmgr.DefaultTokenCap {
		proj = contextmgr.MiddleOutFiltering(history, contextmgr.DefaultTokenCap)
		didMiddleOut = len(proj.Items) != len(history)
	}
	messages := contextmgr.PlaceCachePoints(proj.Messages, didMiddleOut)

	systemPrompt, err := l.assembleSystemPrompt(ctx, meta)
	if err != nil {
		return llmclient.Request{}, err
	}

	llmTools, err := l.assembleToolCatalog(meta)
	if err != nil {
		return llmclient.Request{}, err
	}

	req := llmclient.Request{
		Messages: messages,
		System:   systemPrompt,
		Tools:    llmTools,
		Inference: llmclient.InferenceConfig{
			MaxTokens: 0, // input normalization assigns the adjusted budget
		},
	}
	return req, nil
}

// assembleSystemPrompt implements §4.F "System prompt assembly".
func (l *Loop) assembleSystemPrompt(ctx context.Context, meta sessionMeta) ([]llmclient.SystemBlock, error) {
	base := meta.agent.SystemPrompt
	if base == "" {
		base = meta.prefs.DefaultAgent().SystemPrompt
	}

	var blocks []llmclient.SystemBlock
	blocks = append(blocks, llmclient.SystemBlock{Text: base})

	if meta.prefs.CommonSystemPrompt != "" {
		blocks = append(blocks, llmclient.SystemBlock{Text: "## Common Prompt\n" + meta.prefs.CommonSystemPrompt})
	}

	if l.metaStore() != nil {
		repoDir, err := l.metaStore().GetRepoDirectory(ctx, meta.session.WorkerID)
		if err != nil {
			return nil, fmt.Errorf("turnloop: load repo directory: %w", err)
		}
		if repoDir != "" && l.RepoKnowledge != nil {
			knowledge, err := l.RepoKnowledge.Load(ctx, repoDir)
			if err == nil && knowledge != "" {
				blocks = append(blocks, llmclient.SystemBlock{Text: "## Repository Knowledge\n" + knowledge})
			} else if err != nil {
				l.logger().Warn("turnloop: repository knowledge load failed", "worker", meta.session.WorkerID, "error", err)
			}
		}
	}

	// The system prompt is always followed by one cache point, outside the
	// message list: flag the last segment.
	blocks[len(blocks)-1].CachePoint = true
	return blocks, nil
}

// assembleToolCatalog implements §4.F "Tool catalog assembly": the
// union of the custom agent's allowed built-in names and the required
// set, plus MCP tool specs. If the result is empty, Tools stays nil so
// Converse passes no tool config (some providers reject empty lists).
func (l *Loop) assembleToolCatalog(meta sessionMeta) ([]llmclient.Tool, error) {
	names := map[string]struct{}{}
	for _, n := range tools.RequiredToolNames {
		names[n] = struct{}{}
	}
	for _, n := range meta.agent.AllowedToolNames {
		names[n] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var out []llmclient.Tool
	for _, name := range sorted {
		tool, ok := l.Dispatcher.Registry.Get(name)
		if !ok {
			continue // not a built-in; presumed served by MCP instead
		}
		out = append(out, llmclient.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	for _, spec := range l.mcpToolSpecs(meta) {
		out = append(out, spec)
	}
	if len(out) > 0 {
		out[len(out)-1].CachePoint = true
	}
	return out, nil
}

// mcpToolSpecs converts the custom agent's MCP server configs into tool
// catalog entries. The concrete MCP client transport is out of scope
// (spec.md §1); without an injected resolver this returns nothing.
func (l *Loop) mcpToolSpecs(meta sessionMeta) []llmclient.Tool {
	if l.MCPToolSpecs == nil {
		return nil
	}
	return l.MCPToolSpecs(meta.agent.MCPServers)
}
