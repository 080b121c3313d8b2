package models

// EventType is the closed set of events the turn loop publishes to the
// external event bus (see the publish(workerId, event) contract).
type EventType string

const (
	EventToolUse           EventType = "toolUse"
	EventToolResult        EventType = "toolResult"
	EventSessionTitleUpdate EventType = "sessionTitleUpdate"
	EventMessage           EventType = "message"
)

// Event is one fan-out item published for a workerId. Exactly the fields
// relevant to Type are populated; the rest are zero values.
type Event struct {
	Type EventType `json:"type"`

	// toolUse / toolResult fields.
	ToolName       string `json:"toolName,omitempty"`
	ToolUseID      string `json:"toolUseId,omitempty"`
	Input          string `json:"input,omitempty"`
	ThinkingBudget int    `json:"thinkingBudget,omitempty"`
	ReasoningText  string `json:"reasoningText,omitempty"`
	Output         string `json:"output,omitempty"`

	// sessionTitleUpdate field.
	NewTitle string `json:"newTitle,omitempty"`

	// message fields (set by NewMessageEvent).
	Role Role   `json:"role,omitempty"`
	Text string `json:"text,omitempty"`
}

// NewToolUseEvent builds the event emitted when an assistant message
// requests a tool invocation.
func NewToolUseEvent(toolName, toolUseID, input string, thinkingBudget int, reasoningText string) Event {
	return Event{
		Type:           EventToolUse,
		ToolName:       toolName,
		ToolUseID:      toolUseID,
		Input:          input,
		ThinkingBudget: thinkingBudget,
		ReasoningText:  reasoningText,
	}
}

// NewToolResultEvent builds the event emitted once a tool handler returns.
func NewToolResultEvent(toolName, toolUseID, output string) Event {
	return Event{Type: EventToolResult, ToolName: toolName, ToolUseID: toolUseID, Output: output}
}

// NewSessionTitleUpdateEvent builds the event emitted after title generation succeeds.
func NewSessionTitleUpdateEvent(newTitle string) Event {
	return Event{Type: EventSessionTitleUpdate, NewTitle: newTitle}
}

// NewMessageEvent builds a free-form system/assistant message event.
func NewMessageEvent(role Role, text string) Event {
	return Event{Type: EventMessage, Role: role, Text: text}
}
