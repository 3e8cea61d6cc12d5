package summarize

import "context"

// Result is the output of one summarization call
type Result struct {
	Content          string `json:"content"`
	Backend          string `json:"backend"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

// Backend is one chat-completion provider
type Backend interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Result, error)
	Name() string
	Model() string
}
