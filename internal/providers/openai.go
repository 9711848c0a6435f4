package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/tbourn/go-llm-chat/internal/stream"
)

// openAIAdapter drives OpenAI-compatible endpoints through go-openai's
// streaming client.
type openAIAdapter struct {
	spec   Spec
	client *openai.Client
}

func newOpenAIAdapter(spec Spec, apiKey string, hc *http.Client) *openAIAdapter {
	return &openAIAdapter{spec: spec, client: newOpenAIClient(spec, apiKey, hc)}
}

func newOpenAIClient(spec Spec, apiKey string, hc *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = spec.BaseURL
	cfg.HTTPClient = hc
	return openai.NewClientWithConfig(cfg)
}

func (a *openAIAdapter) Name() string   { return a.spec.Name }
func (a *openAIAdapter) Family() Family { return FamilyOpenAI }

func (a *openAIAdapter) Stream(ctx context.Context, req Request, sink *stream.Sink) (err error) {
	start := time.Now()
	defer func() { observeCall(a.spec.Name, start, err) }()

	s, err := a.client.CreateChatCompletionStream(ctx, toOpenAIRequest(req))
	if err != nil {
		return a.wrap(ctx, req.Model, err)
	}
	defer s.Close()

	for {
		resp, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return a.wrap(ctx, req.Model, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if err := sink.Emit(ctx, resp.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}

func toOpenAIRequest(req Request) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, t := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}
	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   true,
	}
	p := req.Params
	out.Temperature = sendFloat(p.Temperature)
	out.TopP = sendFloat(p.TopP)
	out.PresencePenalty = sendFloat(p.PresencePenalty)
	out.FrequencyPenalty = sendFloat(p.FrequencyPenalty)
	if p.MaxTokens != nil {
		out.MaxTokens = *p.MaxTokens
	}
	return out
}

// sendFloat maps an optional parameter onto go-openai's omitempty float32.
// An explicit zero becomes the smallest positive float32, which serializes
// as a value the API reads as 0 instead of being dropped.
func sendFloat(v *float32) float32 {
	switch {
	case v == nil:
		return 0
	case *v == 0:
		return math.SmallestNonzeroFloat32
	default:
		return *v
	}
}

// wrap converts go-openai errors into ProviderError. Context errors pass
// through untouched so cancellation stays recognisable.
func (a *openAIAdapter) wrap(ctx context.Context, model string, err error) error {
	return wrapOpenAIError(ctx, a.spec.Name, model, err)
}

func wrapOpenAIError(ctx context.Context, provider, model string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	pe := &ProviderError{Provider: provider, Model: model, Kind: KindTransport, Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &apiErr):
		pe.Kind, pe.Status, pe.Body = KindStatus, apiErr.HTTPStatusCode, clipBody(apiErr.Message)
	case errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0:
		pe.Kind, pe.Status, pe.Body = KindStatus, reqErr.HTTPStatusCode, clipBody(string(reqErr.Body))
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		pe.Kind = KindDecode
	}
	return pe
}
