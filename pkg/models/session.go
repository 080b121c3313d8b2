package models

import "time"

// AgentStatus is the lifecycle state of a session's agent.
type AgentStatus string

const (
	AgentStatusPending    AgentStatus = "pending"
	AgentStatusWorking    AgentStatus = "working"
	AgentStatusCancelling AgentStatus = "cancelling"
)

// Session is the per-worker metadata record: status, title, cost,
// visibility and the knobs that steer a turn (model override, custom
// agent). One Session exists per workerId.
type Session struct {
	WorkerID      string      `json:"workerId"`
	AgentStatus   AgentStatus `json:"agentStatus"`
	Title         string      `json:"title"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	IsHidden      bool        `json:"isHidden"`
	Cost          float64     `json:"cost"`
	Initiator     string      `json:"initiator"`
	SlackUserID   string      `json:"slackUserId,omitempty"`
	CustomAgentID string      `json:"customAgentId,omitempty"`
	ModelOverride string      `json:"modelOverride,omitempty"`
}

// ListRange bounds a Session Store list query by update time.
type ListRange struct {
	Since time.Time
	Until time.Time
}

// TokenLedgerCounters are the four running counters the Cost & Token
// Ledger accumulates per (session, model).
type TokenLedgerCounters struct {
	InputTokens          int64 `json:"inputTokens"`
	OutputTokens         int64 `json:"outputTokens"`
	CacheReadInputTokens int64 `json:"cacheReadInputTokens"`
	CacheWriteInputTokens int64 `json:"cacheWriteInputTokens"`
}

// Usage is the per-call token accounting a provider response carries,
// distinct from TokenLedgerCounters which accumulates Usage over time.
type Usage struct {
	InputTokens          int64
	OutputTokens         int64
	CacheReadInputTokens int64
	CacheWriteInputTokens int64
}

// CustomAgent is a named agent definition: its system prompt, the subset
// of the built-in tool catalog it may use, and its MCP server config.
type CustomAgent struct {
	Name            string
	SystemPrompt    string
	AllowedToolNames []string
	MCPServers      []MCPServerConfig
}

// MCPServerConfig names an MCP server a custom agent may dispatch to; the
// concrete transport is out of scope for this core.
type MCPServerConfig struct {
	Name    string
	Command string
	Args    []string
}

// Preferences are process-wide defaults: the fallback model, a common
// system-prompt suffix appended to every agent, and the set of custom
// agent definitions keyed by ID.
type Preferences struct {
	DefaultModel        string
	CommonSystemPrompt  string
	CustomAgents        map[string]CustomAgent
}

// DefaultAgent returns the built-in agent used when a session has no
// CustomAgentID, or when the referenced custom agent is unknown.
func (p Preferences) DefaultAgent() CustomAgent {
	return CustomAgent{
		Name:         "default",
		SystemPrompt: "You are an autonomous software engineering agent operating inside an isolated session.",
	}
}

// ResolveAgent returns the custom agent for id, falling back to the
// default agent when id is empty or unknown.
func (p Preferences) ResolveAgent(id string) CustomAgent {
	if id == "" {
		return p.DefaultAgent()
	}
	if agent, ok := p.CustomAgents[id]; ok {
		return agent
	}
	return p.DefaultAgent()
}
