package protocol

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

const (
	ObjectCompletion = "chat.completion"
	ObjectChunk      = "chat.completion.chunk"
	ObjectModel      = "model"
	ObjectList       = "list"
)

// Completion is a finished answer ready to be encoded either way
type Completion struct {
	ID      string
	Created int64
	Model   string
	// Prompt is the serialized conversation that was typed into the page
	Prompt string
	Result models.CompletionResult
}

// NewCompletion stamps a result with a fresh chatcmpl id
func NewCompletion(model, prompt string, res models.CompletionResult, now time.Time) *Completion {
	return &Completion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Created: now.Unix(),
		Model:   model,
		Prompt:  prompt,
		Result:  res,
	}
}

// Usage estimates token counts from character counts. The remote UI exposes
// no tokenizer, so these numbers are approximate.
func (c *Completion) Usage() openai.Usage {
	prompt := utf8.RuneCountInString(c.Prompt)
	completion := utf8.RuneCountInString(c.Result.Content) + utf8.RuneCountInString(c.Result.Reasoning)
	return openai.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// Response renders the non-streaming body
func (c *Completion) Response() openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:      c.ID,
		Object:  ObjectCompletion,
		Created: c.Created,
		Model:   c.Model,
		Choices: []openai.ChatCompletionChoice{
			{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:             openai.ChatMessageRoleAssistant,
					Content:          c.Result.Content,
					ReasoningContent: c.Result.Reasoning,
				},
				FinishReason: openai.FinishReasonStop,
			},
		},
		Usage: c.Usage(),
	}
}
