package models

import (
	"strings"
)

// Message is a single conversation turn
type Message struct {
	Role    string `json:"role" validate:"required"`
	Content string `json:"content"`
}

// ChatRequest is the normalized chat completion payload
type ChatRequest struct {
	Model       string    `json:"model" validate:"required"`
	Messages    []Message `json:"messages" validate:"required,min=1,dive"`
	Temperature *float64  `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	Stream      bool      `json:"stream,omitempty"`
}

// Prompt serializes the conversation the way the remote input box expects it:
// "role:content" pairs joined with ";". Separators inside content are not escaped.
func (r ChatRequest) Prompt() string {
	parts := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		parts = append(parts, m.Role+":"+m.Content)
	}
	return strings.Join(parts, ";")
}

// CompletionResult is the decoded remote answer
type CompletionResult struct {
	Content   string
	Reasoning string
	// Partial is set when the reply was cut off by the overall timeout.
	Partial bool
}
