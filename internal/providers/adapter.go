package providers

import (
	"context"

	"github.com/tbourn/go-llm-chat/internal/stream"
)

// Turn is one message of the request history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams are forwarded to the provider exactly as given. Nil means
// "use the provider default". Values are not range-checked here; providers
// reject what they do not accept.
type GenerationParams struct {
	Temperature      *float32 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float32 `json:"top_p,omitempty"`
	PresencePenalty  *float32 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float32 `json:"frequency_penalty,omitempty"`
}

// Request is a provider-agnostic chat request.
type Request struct {
	Model    string
	Messages []Turn
	Params   GenerationParams
}

// Adapter sends a Request to one provider and writes the reply into sink.
// Implementations return *ProviderError for provider-side failures and the
// context error when ctx ends first.
type Adapter interface {
	Name() string
	Family() Family
	Stream(ctx context.Context, req Request, sink *stream.Sink) error
}
