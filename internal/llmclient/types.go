// Package llmclient implements the LLM Client component: a single
// provider-neutral converse operation that performs model selection,
// input normalization (tool-choice, reasoning budget, cache-point
// pruning), dispatch to a concrete provider, throttling-driven account
// rotation, and ledger token tracking.
package llmclient

import (
	"context"

	"github.com/sweagent/core/pkg/models"
)

// ToolChoiceKind is one of the three shapes a model may support for
// constraining tool use.
type ToolChoiceKind string

const (
	ToolChoiceAuto ToolChoiceKind = "auto"
	ToolChoiceAny  ToolChoiceKind = "any"
	ToolChoiceTool ToolChoiceKind = "tool"
)

// ToolChoice constrains which, if any, tool the model must call.
type ToolChoice struct {
	Kind ToolChoiceKind
	// Name is set only when Kind == ToolChoiceTool.
	Name string
}

// Tool is a single entry in the tool catalog offered to the model.
type Tool struct {
	Name        string
	Description string
	InputSchema []byte // raw JSON schema document
	CachePoint  bool
}

// InferenceConfig carries the generation parameters of a single call.
type InferenceConfig struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// SystemBlock is one segment of the system prompt; System prompts are
// modeled as a short ordered list so a cache point can be attached to a
// specific segment rather than only the end.
type SystemBlock struct {
	Text       string
	CachePoint bool
}

// Request is the provider-neutral shape passed to Converse. Callers
// build it fresh per call; Converse deep-clones it before normalizing so
// the caller's copy (e.g. the Context Manager's projection) is never
// mutated.
type Request struct {
	Messages   []*models.Message
	System     []SystemBlock
	Tools      []Tool
	ToolChoice *ToolChoice
	Inference  InferenceConfig

	// ReasoningEnabled, ReasoningBudget, and InterleavedThinking are set
	// by input normalization (§4.D step 3), not by the caller.
	ReasoningEnabled    bool
	ReasoningBudget     int
	InterleavedThinking bool
}

// Response is the provider-neutral shape returned by Converse.
type Response struct {
	ModelID    string
	StopReason StopReason
	Content    []models.ContentBlock
	Usage      models.Usage
}

type StopReason string

const (
	StopEndTurn      StopReason = "endTurn"
	StopToolUse      StopReason = "toolUse"
	StopMaxTokens    StopReason = "maxTokens"
	StopStopSequence StopReason = "stopSequence"
)

// CapabilityDescriptor describes what a specific model id supports, so
// input normalization can tailor the request to it.
type CapabilityDescriptor struct {
	ModelID                    string
	MaxOutputTokens            int
	ReasoningSupport           bool
	InterleavedThinkingSupport bool
	ToolChoiceSupport          map[ToolChoiceKind]bool
	CacheSupport               map[CachePointLocation]bool
	SupportedCriProfiles       []string
}

// CachePointLocation is one of the three places a cache point marker can
// appear in a request.
type CachePointLocation string

const (
	CacheLocationSystem  CachePointLocation = "system"
	CacheLocationTool    CachePointLocation = "tool"
	CacheLocationMessage CachePointLocation = "message"
)

// Provider is the interface a concrete backend (Bedrock, Anthropic) must
// satisfy. Normalization and account rotation happen above this
// boundary; Provider.Call receives an already-normalized request for a
// single, already-resolved model id.
type Provider interface {
	// Call issues one request against modelID and returns the
	// provider-neutral response. A throttling condition must be
	// reported via ThrottlingError so the client can rotate accounts
	// and retry.
	Call(ctx context.Context, modelID string, req Request) (*Response, error)
}

// ThrottlingError wraps a provider error that indicates the current
// account/credential has been rate-limited and should be rotated away
// from before retrying.
type ThrottlingError struct {
	Err error
}

func (e *ThrottlingError) Error() string { return "llmclient: throttled: " + e.Err.Error() }
func (e *ThrottlingError) Unwrap() error { return e.Err }

// MaxTokensExceededError is the error Converse returns when the
// model stopped because it hit the requested max-output-tokens budget.
// The outer retry loop (Agent Turn Loop, not this package) treats this
// as retryable: it bumps maxTokensRetryCount and calls Converse again.
type MaxTokensExceededError struct {
	Response *Response
}

func (e *MaxTokensExceededError) Error() string { return "llmclient: response truncated at max tokens" }
