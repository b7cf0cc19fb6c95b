package chat

import (
	"context"
	"errors"
)

// ErrEmptyCompletion marks backend responses from which no content could be
// extracted.
var ErrEmptyCompletion = errors.New("generation backend returned no content")

// Message is one chat turn sent to the generation backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries sampling settings.
type Options struct {
	Temperature float64 `json:"temperature"`
}

// Request is the generation backend wire request.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Options  Options   `json:"options"`
	Stream   bool      `json:"stream"`
}

// chunk is one response fragment. The backend answers either with a single
// JSON object of this shape or a newline-delimited sequence of them.
type chunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// LLM is the completion surface the generator consumes.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
