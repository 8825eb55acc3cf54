// Package watsonx adapts IBM watsonx.ai's SSE text-generation endpoint into
// an incremental channel of typed stream events, managing the time-limited
// IAM bearer token independently of the generation request that uses it.
package watsonx

import "strings"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason records how a stream ended.
type StopReason string

const (
	StopReasonStop  StopReason = "stop"
	StopReasonError StopReason = "error"
)

// ContentBlock is a typed piece of message content. Only text blocks are
// produced by the adapter; non-text blocks in input are dropped during
// prompt rendering.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Turn is one message of the conversation. Content holds plain text; when
// Blocks is non-nil it takes precedence and only its text blocks are used.
type Turn struct {
	Role    Role
	Content string
	Blocks  []ContentBlock
}

// text flattens the turn into plain text, keeping only text blocks.
func (t Turn) text() string {
	if t.Blocks == nil {
		return t.Content
	}
	var parts []string
	for _, b := range t.Blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Conversation is the structured input rendered into the flat watsonx prompt.
// Message order is preserved verbatim; the builder never reorders, dedupes or
// truncates.
type Conversation struct {
	SystemPrompt string
	Messages     []Turn
}

// Cost is the derived price breakdown for one stream, in USD.
type Cost struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Total  float64 `json:"total"`
}

// Usage accumulates the token counters reported by the upstream and the cost
// derived from model pricing.
type Usage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	TotalTokens  int  `json:"total_tokens"`
	Cost         Cost `json:"cost"`
}

// Message is the output of one stream invocation. It is owned and mutated by
// the streaming goroutine until the terminal event; Partial references on
// intermediate events alias this same object and must be treated as read-only
// snapshots at the instant received.
type Message struct {
	ID           string         `json:"id"`
	Role         Role           `json:"role"`
	Content      []ContentBlock `json:"content"`
	Usage        Usage          `json:"usage"`
	StopReason   StopReason     `json:"stop_reason,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Text returns the concatenated text content of the message.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
