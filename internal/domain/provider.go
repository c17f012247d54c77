package domain

import "context"

// CompletionProvider is the opaque text-completion collaborator. No
// determinism is guaranteed; callers must validate whatever comes back.
type CompletionProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Healthy(ctx context.Context) error
}

type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type CompletionResponse struct {
	Text      string
	Usage     Usage
	LatencyMs int64
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
