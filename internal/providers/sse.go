package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"resty.dev/v3"

	"github.com/tbourn/go-llm-chat/internal/stream"
)

// sseAdapter posts an OpenAI-like body with stream=true and reads the
// data:-prefixed JSON lines of the reply.
type sseAdapter struct {
	spec   Spec
	apiKey string
	client *resty.Client
}

func newSSEAdapter(spec Spec, apiKey string, client *resty.Client) *sseAdapter {
	return &sseAdapter{spec: spec, apiKey: apiKey, client: client}
}

func (a *sseAdapter) Name() string   { return a.spec.Name }
func (a *sseAdapter) Family() Family { return FamilySSE }

type chatPayload struct {
	Model    string `json:"model"`
	Messages []Turn `json:"messages"`
	GenerationParams
	Stream bool `json:"stream"`
}

type deltaChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func decodeDelta(data []byte) (string, error) {
	var c deltaChunk
	if err := json.Unmarshal(data, &c); err != nil {
		return "", err
	}
	if len(c.Choices) == 0 {
		return "", nil
	}
	return c.Choices[0].Delta.Content, nil
}

func (a *sseAdapter) Stream(ctx context.Context, req Request, sink *stream.Sink) (err error) {
	start := time.Now()
	defer func() { observeCall(a.spec.Name, start, err) }()

	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(a.apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetHeader("Accept-Encoding", "identity").
		SetBody(chatPayload{Model: req.Model, Messages: req.Messages, GenerationParams: req.Params, Stream: true}).
		SetDoNotParseResponse(true).
		Post(a.spec.BaseURL + "/chat/completions")
	if err != nil {
		return transportError(ctx, a.spec.Name, req.Model, err)
	}
	body := rawBody(resp)
	if body == nil {
		return &ProviderError{Provider: a.spec.Name, Model: req.Model, Kind: KindTransport, Err: errors.New("empty response body")}
	}
	defer body.Close()

	if resp.IsError() {
		return statusError(a.spec.Name, req.Model, resp.StatusCode(), body)
	}

	if err := stream.ScanSSE(ctx, body, sink, decodeDelta); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		kind := KindTransport
		if errors.Is(err, stream.ErrMalformed) {
			kind = KindDecode
		}
		return &ProviderError{Provider: a.spec.Name, Model: req.Model, Kind: kind, Err: err}
	}
	return nil
}

func rawBody(resp *resty.Response) io.ReadCloser {
	if resp == nil || resp.RawResponse == nil {
		return nil
	}
	return resp.RawResponse.Body
}

func transportError(ctx context.Context, provider, model string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &ProviderError{Provider: provider, Model: model, Kind: KindTransport, Err: err}
}

func statusError(provider, model string, status int, body io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(body, 4*maxErrorBody))
	return &ProviderError{Provider: provider, Model: model, Kind: KindStatus, Status: status, Body: clipBody(string(b))}
}
