// Package turnloop implements the Agent Turn Loop component: the single
// per-session state machine that builds each LLM call, dispatches the
// tools the model requests, and persists the resulting conversation
// items, following the teacher's internal/agent executor/session-runner
// shape generalized to this spec's append-only log and sequential tool
// dispatch.
package turnloop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweagent/core/internal/backoff"
	"github.com/sweagent/core/internal/eventbus"
	"github.com/sweagent/core/internal/ledger"
	"github.com/sweagent/core/internal/llmclient"
	"github.com/sweagent/core/internal/messagestore"
	"github.com/sweagent/core/internal/observability"
	"github.com/sweagent/core/internal/sessionstore"
	"github.com/sweagent/core/internal/tools"
	"github.com/sweagent/core/pkg/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// maxTokensEscalations is the cap on how many times a single turn may
// double its max-output-tokens budget before aborting (§4.F "Abort after
// 5 such escalations").
const maxTokensEscalations = 5

// retryAttempts is the outer retry budget for throttling / max-tokens
// conditions (§3 "Retry outer loop (in F, not D): up to 100 retries").
const retryAttempts = 100

// retryPolicy reproduces a uniform 1-5s randomized backoff: a constant
// 1000ms base plus up to 4000ms of jitter, clamped at 5000ms.
var retryPolicy = backoff.BackoffPolicy{InitialMs: 1000, MaxMs: 5000, Factor: 1, Jitter: 4}

// PreferencesSource resolves the process-wide preferences record used
// for custom-agent lookup and the common system-prompt suffix.
type PreferencesSource interface {
	Preferences(ctx context.Context) (models.Preferences, error)
}

// RepoKnowledgeLoader loads the repository-local knowledge file content
// for a session whose metadata names a repoDirectory. Out of scope
// concretely (repository-clone tooling is an external collaborator);
// callers may pass nil to skip this section entirely.
type RepoKnowledgeLoader interface {
	Load(ctx context.Context, repoDirectory string) (string, error)
}

// Loop wires every collaborator the Agent Turn Loop needs.
type Loop struct {
	Messages    *messagestore.Store
	Sessions    *sessionstore.Store
	Ledger      *ledger.Ledger
	LLM         *llmclient.Client
	Dispatcher  *tools.Dispatcher
	Events      eventbus.Publisher
	Preferences PreferencesSource
	Meta        MetaStore
	RepoKnowledge RepoKnowledgeLoader
	Tracer      *observability.Tracer
	Logger      *slog.Logger

	// CandidateModels is the model pool Converse selects from for a turn
	// with no session-level model override.
	CandidateModels []string

	// MCPToolSpecs resolves a custom agent's configured MCP servers into
	// tool catalog entries. Nil skips MCP tool-catalog entries entirely
	// (the concrete MCP client transport is out of scope).
	MCPToolSpecs func(servers []models.MCPServerConfig) []llmclient.Tool
}

// sessionMeta is the subset of session-derived context a turn needs
// beyond the message log itself.
type sessionMeta struct {
	session *models.Session
	prefs   models.Preferences
	agent   models.CustomAgent
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// RunTurn executes one full turn for workerID: ENTRY, then the
// BUILD CALL / INVOKE / DISPATCH TOOLS loop until a FINALIZE or an
// unrecoverable condition ends it.
func (l *Loop) RunTurn(ctx context.Context, workerID string, cancel *CancelToken) error {
	ctx, span := l.startSpan(ctx, "turnloop.run_turn")
	defer span.End()

	meta, err := l.entry(ctx, workerID)
	if err != nil {
		return err
	}

	maxTokensRetryCount := 0
	transcript := []string{}

	for {
		if cancel != nil && cancel.IsCancelled() {
			cancel.FireCallback()
			return nil
		}

		history, err := l.Messages.List(ctx, workerID)
		if err != nil {
			return fmt.Errorf("turnloop: list history: %w", err)
		}

		req, err := l.buildCall(ctx, meta, history)
		if err != nil {
			return fmt.Errorf("turnloop: build call: %w", err)
		}

		result, err := l.invoke(ctx, workerID, meta, req, &maxTokensRetryCount, cancel)
		if err != nil {
			if err == errCancelled {
				if cancel != nil {
					cancel.FireCallback()
				}
				return nil
			}
			return fmt.Errorf("turnloop: invoke: %w", err)
		}

		if err := l.attributeTokenCount(ctx, workerID, history, result.Response.Usage.InputTokens); err != nil {
			l.logger().Warn("turnloop: attribute token count failed", "worker", workerID, "error", err)
		}

		if len(result.Response.Content) == 0 {
			return l.finalize(ctx, workerID, meta, nil, transcript)
		}

		toolUses := extractToolUses(result.Response.Content)
		if len(toolUses) == 0 {
			return l.finalize(ctx, workerID, meta, result.Response.Content, transcript)
		}

		transcript, err = l.dispatchTools(ctx, workerID, meta, result, toolUses, transcript, cancel)
		if err != nil {
			if err == errCancelled {
				if cancel != nil {
					cancel.FireCallback()
				}
				return nil
			}
			return err
		}
	}
}

// Resume implements the resume(workerId) entry point (§4.F "Resume"): a
// no-op unless the session's last item is a userMessage or toolResult,
// in which case it runs one turn identical to a fresh message.
func (l *Loop) Resume(ctx context.Context, workerID string, cancel *CancelToken) error {
	history, err := l.Messages.List(ctx, workerID)
	if err != nil {
		return fmt.Errorf("turnloop: resume: list history: %w", err)
	}
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	if last.Type != models.MessageTypeUserMessage && last.Type != models.MessageTypeToolResult {
		return nil
	}
	return l.RunTurn(ctx, workerID, cancel)
}

func (l *Loop) entry(ctx context.Context, workerID string) (sessionMeta, error) {
	if err := l.Sessions.UpdateStatus(ctx, workerID, models.AgentStatusWorking); err != nil {
		return sessionMeta{}, fmt.Errorf("turnloop: entry: set status working: %w", err)
	}
	session, err := l.Sessions.Get(ctx, workerID)
	if err != nil {
		return sessionMeta{}, fmt.Errorf("turnloop: entry: load session: %w", err)
	}
	var prefs models.Preferences
	if l.Preferences != nil {
		prefs, err = l.Preferences.Preferences(ctx)
		if err != nil {
			return sessionMeta{}, fmt.Errorf("turnloop: entry: load preferences: %w", err)
		}
	}
	agent := prefs.ResolveAgent(session.CustomAgentID)
	return sessionMeta{session: session, prefs: prefs, agent: agent}, nil
}

// attributeTokenCount implements §4.A's token-count semantics: the
// billed input-token count is compared against the sum of tokenCount
// already recorded across history, and the delta is attributed to the
// last user-role item (the userMessage or toolResult that triggered
// this call), overwriting its tokenCount field.
func (l *Loop) attributeTokenCount(ctx context.Context, workerID string, history []*models.Message, billedInputTokens int64) error {
	var sum int64
	lastUserIdx := -1
	for i, item := range history {
		sum += int64(item.TokenCount)
		if item.Role == models.RoleUser {
			lastUserIdx = i
		}
	}
	if lastUserIdx == -1 {
		return nil
	}
	delta := int(billedInputTokens - sum)
	return l.Messages.UpdateTokenCount(ctx, workerID, history[lastUserIdx].SK, delta)
}

func (l *Loop) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if l.Tracer == nil {
		return otel.Tracer("turnloop").Start(ctx, name)
	}
	return l.Tracer.Start(ctx, name)
}

func extractToolUses(content []models.ContentBlock) []models.ContentBlock {
	var out []models.ContentBlock
	for _, b := range content {
		if b.Kind == models.BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

func visibleText(content []models.ContentBlock) string {
	var sb strings.Builder
	for _, b := range content {
		if b.Kind == models.BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
