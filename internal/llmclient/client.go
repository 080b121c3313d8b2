package llmclient

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"sync/atomic"

	"github.com/sweagent/core/internal/ledger"
	"github.com/sweagent/core/pkg/models"
)

// AccountRotator is implemented by a Provider that fronts more than one
// credentialed account (Bedrock: one IAM role per AWS account). The
// client calls RotateAccount after a throttling error so the next call
// uses a different account's credentials; the provider is responsible
// for obtaining and caching those credentials (§4.D step 5).
type AccountRotator interface {
	RotateAccount(ctx context.Context, accountIndex int) error
	AccountCount() int
}

// Result is what Converse returns: the provider-neutral response, plus
// the reasoning budget actually used when it was the escalated
// ("ultrathink") one, so observers can surface that to the user.
type Result struct {
	Response       *Response
	ThinkingBudget int // 0 unless the escalated budget was used
}

// Client is the provider-neutral LLM Client (§4.D). It wraps exactly one
// backend Provider (Bedrock or Anthropic, chosen at wiring time) and
// performs model selection, input normalization, throttling-driven
// account rotation, and ledger token tracking around it.
type Client struct {
	provider Provider
	ledger   *ledger.Ledger
	logger   *slog.Logger

	// accountIndex is the process-wide round-robin cursor described in
	// §9 "process-wide mutable state"; correctness needs atomicity, not
	// strict fairness, so a plain atomic counter is sufficient.
	accountIndex atomic.Int64
}

// New constructs a Client. ledger may be nil in tests that don't care
// about token tracking.
func New(provider Provider, led *ledger.Ledger, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{provider: provider, ledger: led, logger: logger}
}

// Converse is the component's single operation. It performs one
// provider call; throttling and max-tokens-exceeded are both returned as
// typed errors for the Agent Turn Loop's outer retry wrapper to classify
// and retry (§4.D, "Retry outer loop (in F, not D)").
func (c *Client) Converse(ctx context.Context, workerID string, candidateModels []string, req Request, maxTokensRetryCount int) (*Result, error) {
	if len(candidateModels) == 0 {
		return nil, errors.New("llmclient: candidateModels must not be empty")
	}

	modelID := candidateModels[rand.Intn(len(candidateModels))] // #nosec G404 -- model selection does not need cryptographic randomness
	capDesc := CapabilitiesFor(modelID)

	normalized, thinkingBudget := normalize(req, capDesc, maxTokensRetryCount)

	resp, err := c.provider.Call(ctx, modelID, normalized)
	if err != nil {
		var throttled *ThrottlingError
		if errors.As(err, &throttled) {
			c.rotateAccount(ctx)
		}
		return nil, err
	}

	if c.ledger != nil {
		usage := models.Usage{
			InputTokens:          resp.Usage.InputTokens,
			OutputTokens:         resp.Usage.OutputTokens,
			CacheReadInputTokens: resp.Usage.CacheReadInputTokens,
			CacheWriteInputTokens: resp.Usage.CacheWriteInputTokens,
		}
		c.ledger.Record(ctx, workerID, modelID, usage)
	}

	if resp.StopReason == StopMaxTokens {
		return &Result{Response: resp, ThinkingBudget: thinkingBudget}, &MaxTokensExceededError{Response: resp}
	}

	return &Result{Response: resp, ThinkingBudget: thinkingBudget}, nil
}

// rotateAccount advances the process-wide round-robin index and asks the
// provider (if it fronts multiple accounts) to switch to it. Rotation
// failures are logged, not fatal: the caller's retry will simply hit the
// same throttled account again, which is a correctness cost, not a
// safety one.
func (c *Client) rotateAccount(ctx context.Context) {
	rotator, ok := c.provider.(AccountRotator)
	if !ok || rotator.AccountCount() <= 1 {
		return
	}
	n := int64(rotator.AccountCount())
	next := c.accountIndex.Add(1) % n
	if next < 0 {
		next += n
	}
	c.logger.Info("llmclient: rotating account after throttling", slog.Int64("nextAccountIndex", next))
	if err := rotator.RotateAccount(ctx, int(next)); err != nil {
		c.logger.Warn("llmclient: account rotation failed", slog.String("error", err.Error()))
	}
}

// normalize deep-clones req and applies §4.D step 3 in order: tool-choice
// dropping, adjusted max-output-tokens, reasoning enablement/budget,
// reasoning cleanup, and cache-point pruning. It returns the normalized
// request and the reasoning budget actually attached, which is 0 unless
// reasoning was enabled.
func normalize(req Request, capDesc CapabilityDescriptor, maxTokensRetryCount int) (Request, int) {
	out := cloneRequest(req)

	if out.ToolChoice != nil && !capDesc.ToolChoiceSupport[out.ToolChoice.Kind] {
		out.ToolChoice = nil
	}

	adjustedMax := defaultMaxOutputTokens << uint(maxTokensRetryCount)
	if adjustedMax > capDesc.MaxOutputTokens || adjustedMax <= 0 {
		adjustedMax = capDesc.MaxOutputTokens
	}

	reasoningEnabled := capDesc.ReasoningSupport && out.ToolChoice == nil && !inProgressToolChain(out.Messages)

	budget := 0
	if reasoningEnabled {
		budget = defaultReasoningBudget
		if lastUserTextContains(out.Messages, "ultrathink") {
			half := capDesc.MaxOutputTokens / 2
			if half > ultrathinkBudgetCap {
				half = ultrathinkBudgetCap
			}
			budget = half
		}
		raised := budget * 2
		if raised > capDesc.MaxOutputTokens {
			raised = capDesc.MaxOutputTokens
		}
		if raised > adjustedMax {
			adjustedMax = raised
		}
		out.Inference.MaxTokens = adjustedMax
		out.ReasoningEnabled = true
		out.ReasoningBudget = budget
		out.InterleavedThinking = capDesc.InterleavedThinkingSupport
	} else {
		out.Inference.MaxTokens = adjustedMax
		stripReasoningBlocks(out.Messages)
	}

	pruneCachePoints(&out, capDesc)

	return out, budgetIfEscalated(reasoningEnabled, budget)
}

// budgetIfEscalated returns budget only when it differs from the
// default, i.e. the "ultrathink" keyword raised it (§4.D step 7: "return
// ... the thinking budget only when the non-default budget was used").
func budgetIfEscalated(enabled bool, budget int) int {
	if enabled && budget != defaultReasoningBudget {
		return budget
	}
	return 0
}

// inProgressToolChain reports whether the second-to-last message is a
// tool-use item not preceded by a reasoning block, in which case
// reasoning must not be injected into an in-progress tool chain (§4.D
// step 3).
func inProgressToolChain(messages []*models.Message) bool {
	n := len(messages)
	if n < 2 {
		return false
	}
	secondToLast := messages[n-2]
	if secondToLast.Type != models.MessageTypeToolUse {
		return false
	}
	return !secondToLast.HasReasoning()
}

func lastUserTextContains(messages []*models.Message, keyword string) bool {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Type == models.MessageTypeUserMessage {
			return strings.Contains(strings.ToLower(messages[i].VisibleText()), keyword)
		}
	}
	return false
}

func stripReasoningBlocks(messages []*models.Message) {
	for _, m := range messages {
		if !m.HasReasoning() {
			continue
		}
		kept := make([]models.ContentBlock, 0, len(m.Content))
		for _, b := range m.Content {
			if b.Kind == models.BlockReasoning {
				continue
			}
			kept = append(kept, b)
		}
		m.Content = kept
	}
}

// pruneCachePoints removes cachePoint marker blocks from any location
// the model's capability descriptor does not support caching for.
func pruneCachePoints(req *Request, capDesc CapabilityDescriptor) {
	if !capDesc.CacheSupport[CacheLocationSystem] {
		for i := range req.System {
			req.System[i].CachePoint = false
		}
	}
	if !capDesc.CacheSupport[CacheLocationTool] {
		for i := range req.Tools {
			req.Tools[i].CachePoint = false
		}
	}
	if !capDesc.CacheSupport[CacheLocationMessage] {
		for _, m := range req.Messages {
			kept := make([]models.ContentBlock, 0, len(m.Content))
			for _, b := range m.Content {
				if b.Kind == models.BlockCachePoint {
					continue
				}
				kept = append(kept, b)
			}
			m.Content = kept
		}
	}
}

// cloneRequest deep-clones everything normalize mutates: the message
// slice, each message's content slice, the system block slice, and the
// tool slice. Messages' ContentBlock values are copied by value (they
// contain no further pointers needing cloning beyond the nested structs,
// which are only ever replaced wholesale, never mutated in place).
func cloneRequest(req Request) Request {
	out := req
	out.Messages = make([]*models.Message, len(req.Messages))
	for i, m := range req.Messages {
		clone := *m
		clone.Content = append([]models.ContentBlock{}, m.Content...)
		out.Messages[i] = &clone
	}
	out.System = append([]SystemBlock{}, req.System...)
	out.Tools = append([]Tool{}, req.Tools...)
	if req.ToolChoice != nil {
		tc := *req.ToolChoice
		out.ToolChoice = &tc
	}
	return out
}
