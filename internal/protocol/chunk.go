package protocol

import (
	"unicode"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultChunkWords is how many words go into one streamed delta
const DefaultChunkWords = 10

// Delta is the incremental message of a chunk. Content is always present so
// the role announcement carries an explicit null.
type Delta struct {
	Role             string  `json:"role,omitempty"`
	Content          *string `json:"content"`
	ReasoningContent *string `json:"reasoning_content,omitempty"`
}

type ChunkChoice struct {
	Index        int                  `json:"index"`
	Delta        Delta                `json:"delta"`
	FinishReason *openai.FinishReason `json:"finish_reason"`
}

// Chunk is one streamed event in chat.completion.chunk shape
type Chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *openai.Usage `json:"usage,omitempty"`
}

func (c *Completion) chunk(d Delta) Chunk {
	return Chunk{
		ID:      c.ID,
		Object:  ObjectChunk,
		Created: c.Created,
		Model:   c.Model,
		Choices: []ChunkChoice{{Index: 0, Delta: d}},
	}
}

// RoleChunk announces the assistant role
func (c *Completion) RoleChunk() Chunk {
	return c.chunk(Delta{Role: openai.ChatMessageRoleAssistant})
}

// Chunks returns the full ordered stream: role, reasoning, content and the
// terminal chunk with usage. At least one content chunk is always present.
func (c *Completion) Chunks(words int) []Chunk {
	out := []Chunk{c.RoleChunk()}
	return append(out, c.BodyChunks(words)...)
}

// BodyChunks is Chunks without the role announcement, for streams that
// already sent it.
func (c *Completion) BodyChunks(words int) []Chunk {
	var out []Chunk

	if c.Result.Reasoning != "" {
		for _, part := range WordChunks(c.Result.Reasoning, words) {
			p := part
			out = append(out, c.chunk(Delta{ReasoningContent: &p}))
		}
	}

	parts := WordChunks(c.Result.Content, words)
	if len(parts) == 0 {
		parts = []string{""}
	}
	for _, part := range parts {
		p := part
		out = append(out, c.chunk(Delta{Content: &p}))
	}

	stop := openai.FinishReasonStop
	usage := c.Usage()
	final := c.chunk(Delta{})
	final.Choices[0].FinishReason = &stop
	final.Usage = &usage
	return append(out, final)
}

// WordChunks splits text into groups of size words. Each group is the exact
// substring of text from its first word up to the next group's first word,
// so joining the groups reproduces text byte for byte.
func WordChunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkWords
	}

	// byte offsets where a group begins
	var starts []int
	words := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			if words%size == 0 {
				starts = append(starts, i)
			}
			words++
			inWord = true
		}
	}

	if len(starts) == 0 {
		return []string{text}
	}
	starts[0] = 0

	out := make([]string, 0, len(starts))
	for i, s := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		out = append(out, text[s:end])
	}
	return out
}
