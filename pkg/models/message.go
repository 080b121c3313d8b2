// Package models holds the data types shared by every component of the
// agent turn loop and session engine: conversation items, content blocks,
// session metadata, and the events published to observers.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a conversation item.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageType distinguishes the four kinds of items that can appear in a
// session's conversation log.
type MessageType string

const (
	MessageTypeUserMessage       MessageType = "userMessage"
	MessageTypeAssistantResponse MessageType = "assistantResponse"
	MessageTypeToolUse           MessageType = "toolUse"
	MessageTypeToolResult        MessageType = "toolResult"
)

// ToolResultStatus reports whether a tool invocation succeeded.
type ToolResultStatus string

const (
	ToolResultStatusSuccess ToolResultStatus = "success"
	ToolResultStatusError   ToolResultStatus = "error"
)

// BlockKind is the closed set of content block variants a message item may
// carry, in order, within its Content slice.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockImage      BlockKind = "image"
	BlockToolUse    BlockKind = "toolUse"
	BlockToolResult BlockKind = "toolResult"
	BlockReasoning  BlockKind = "reasoning"
	BlockCachePoint BlockKind = "cachePoint"
)

// ContentBlock is a single block of message content. Exactly one of the
// payload fields is populated, selected by Kind. This mirrors the provider
// -neutral request/response shape the LLM Client normalizes against.
type ContentBlock struct {
	Kind BlockKind `json:"kind"`

	// Text holds the payload for BlockText.
	Text string `json:"text,omitempty"`

	// Image holds the payload for BlockImage.
	Image *ImageBlock `json:"image,omitempty"`

	// ToolUse holds the payload for BlockToolUse.
	ToolUse *ToolUseBlock `json:"toolUse,omitempty"`

	// ToolResult holds the payload for BlockToolResult.
	ToolResult *ToolResultBlock `json:"toolResult,omitempty"`

	// Reasoning holds the payload for BlockReasoning.
	Reasoning *ReasoningBlock `json:"reasoning,omitempty"`

	// CachePoint marks this position as a provider cache-boundary marker.
	// Present (non-nil, empty struct) iff Kind == BlockCachePoint.
	CachePoint *CachePointMarker `json:"cachePoint,omitempty"`
}

// Text returns a plain text block.
func Text(s string) ContentBlock { return ContentBlock{Kind: BlockText, Text: s} }

// CachePoint returns a cache-boundary marker block.
func CachePoint() ContentBlock { return ContentBlock{Kind: BlockCachePoint, CachePoint: &CachePointMarker{}} }

// ImageBlock carries inline image bytes.
type ImageBlock struct {
	Bytes  []byte `json:"bytes"`
	Format string `json:"format"` // e.g. "png", "jpeg"
}

// ToolUseBlock records an assistant request to invoke a tool.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock records the outcome of a tool invocation, paired by ID
// with the ToolUseBlock that requested it.
type ToolResultBlock struct {
	ToolUseID string             `json:"toolUseId"`
	Content   []ContentBlock     `json:"content"`
	Status    ToolResultStatus   `json:"status"`
}

// ReasoningBlock carries an extended-thinking transcript and its provider
// signature (opaque, round-tripped verbatim for providers that verify it).
type ReasoningBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// CachePointMarker is an empty marker payload; its presence is the signal.
type CachePointMarker struct{}

// Message is one append-only item in a session's conversation log.
// SK (sort key) is assigned by the Message Store on append and is strictly
// increasing within a session.
type Message struct {
	WorkerID  string      `json:"workerId"`
	SK        string      `json:"sk"`
	Role      Role        `json:"role"`
	Type      MessageType `json:"messageType"`
	Content   []ContentBlock `json:"content"`

	// TokenCount is the incremental input-token cost attributed to this
	// item. May be negative only on a user item where reasoning blocks
	// from the prior turn were dropped (see the Context Manager package).
	TokenCount int `json:"tokenCount"`

	ModelOverride   string `json:"modelOverride,omitempty"`
	ThinkingBudget  int    `json:"thinkingBudget,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ToolUseIDs returns the tool-use IDs referenced by this item's content,
// in order. For a toolUse item these are the IDs it introduces; for a
// toolResult item these are the IDs it answers.
func (m *Message) ToolUseIDs() []string {
	var ids []string
	for _, b := range m.Content {
		switch b.Kind {
		case BlockToolUse:
			if b.ToolUse != nil {
				ids = append(ids, b.ToolUse.ID)
			}
		case BlockToolResult:
			if b.ToolResult != nil {
				ids = append(ids, b.ToolResult.ToolUseID)
			}
		}
	}
	return ids
}

// HasReasoning reports whether any block in this item is a reasoning block.
func (m *Message) HasReasoning() bool {
	for _, b := range m.Content {
		if b.Kind == BlockReasoning {
			return true
		}
	}
	return false
}

// VisibleText concatenates the text blocks of a message, which is what a
// consumer of the conversation (not the provider) should render.
func (m *Message) VisibleText() string {
	var out string
	for _, b := range m.Content {
		if b.Kind == BlockText {
			out += b.Text
		}
	}
	return out
}
