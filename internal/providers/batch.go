package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/stream"
)

// anthropicVersion is the API version header Anthropic requires.
const anthropicVersion = "2023-06-01"

// defaultAnthropicMaxTokens is sent when the caller gives no max_tokens,
// which Anthropic requires on every request.
const defaultAnthropicMaxTokens = 1024

// batchShape is the per-provider part of a single-call request: where to
// send it, what body to send and how to read the reply text.
type batchShape interface {
	endpoint(base, model, apiKey string) string
	body(req Request) any
	decode(data []byte) (string, error)
}

// batchAdapter sends one request and emits the whole reply as a single
// fragment.
type batchAdapter struct {
	spec   Spec
	apiKey string
	client *resty.Client
	shape  batchShape
}

func newBatchAdapter(spec Spec, apiKey string, client *resty.Client) (*batchAdapter, error) {
	var shape batchShape
	switch key(spec.Name) {
	case "anthropic":
		shape = anthropicShape{}
	case "google":
		shape = googleShape{}
	case "huggingface":
		shape = huggingFaceShape{}
	default:
		return nil, &ConfigurationError{Provider: spec.Name, Reason: "no request shape for batch provider"}
	}
	return &batchAdapter{spec: spec, apiKey: apiKey, client: client, shape: shape}, nil
}

func (a *batchAdapter) Name() string   { return a.spec.Name }
func (a *batchAdapter) Family() Family { return FamilyBatch }

func (a *batchAdapter) Stream(ctx context.Context, req Request, sink *stream.Sink) (err error) {
	start := time.Now()
	defer func() { observeCall(a.spec.Name, start, err) }()

	r := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(a.shape.body(req)).
		SetDoNotParseResponse(true)
	switch a.spec.Auth {
	case AuthBearer:
		r.SetAuthToken(a.apiKey)
	case AuthHeader:
		r.SetHeader(a.spec.AuthHeader, a.apiKey)
	}
	if key(a.spec.Name) == "anthropic" {
		r.SetHeader("anthropic-version", anthropicVersion)
	}

	resp, err := r.Post(a.shape.endpoint(a.spec.BaseURL, req.Model, a.apiKey))
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
	data, err := io.ReadAll(body)
	if err != nil {
		return transportError(ctx, a.spec.Name, req.Model, err)
	}
	text, err := a.shape.decode(data)
	if err != nil {
		return &ProviderError{Provider: a.spec.Name, Model: req.Model, Kind: KindDecode, Err: err}
	}
	return stream.Single(ctx, sink, text)
}

// splitSystem separates system turns, which some providers take as a
// top-level field, from the conversational turns.
func splitSystem(turns []Turn) (system string, rest []Turn) {
	var sys []string
	for _, t := range turns {
		if t.Role == domain.RoleSystem {
			sys = append(sys, t.Content)
			continue
		}
		rest = append(rest, t)
	}
	return strings.Join(sys, "\n\n"), rest
}

// ---- Anthropic ----

type anthropicShape struct{}

type anthropicRequest struct {
	Model       string   `json:"model"`
	System      string   `json:"system,omitempty"`
	Messages    []Turn   `json:"messages"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
}

func (anthropicShape) endpoint(base, _, _ string) string { return base + "/messages" }

func (anthropicShape) body(req Request) any {
	system, turns := splitSystem(req.Messages)
	maxTokens := defaultAnthropicMaxTokens
	if req.Params.MaxTokens != nil {
		maxTokens = *req.Params.MaxTokens
	}
	return anthropicRequest{
		Model:       req.Model,
		System:      system,
		Messages:    turns,
		MaxTokens:   maxTokens,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
	}
}

func (anthropicShape) decode(data []byte) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range resp.Content {
		if c.Type == "" || c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String(), nil
}

// ---- Google Generative Language ----

type googleShape struct{}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleGenerationConfig struct {
	Temperature      *float32 `json:"temperature,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	TopP             *float32 `json:"topP,omitempty"`
	PresencePenalty  *float32 `json:"presencePenalty,omitempty"`
	FrequencyPenalty *float32 `json:"frequencyPenalty,omitempty"`
}

type googleRequest struct {
	Contents          []googleContent        `json:"contents"`
	SystemInstruction *googleContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  googleGenerationConfig `json:"generationConfig"`
}

func (googleShape) endpoint(base, model, apiKey string) string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, url.PathEscape(model), url.QueryEscape(apiKey))
}

func (googleShape) body(req Request) any {
	system, turns := splitSystem(req.Messages)
	out := googleRequest{
		GenerationConfig: googleGenerationConfig{
			Temperature:      req.Params.Temperature,
			MaxOutputTokens:  req.Params.MaxTokens,
			TopP:             req.Params.TopP,
			PresencePenalty:  req.Params.PresencePenalty,
			FrequencyPenalty: req.Params.FrequencyPenalty,
		},
	}
	if system != "" {
		out.SystemInstruction = &googleContent{Parts: []googlePart{{Text: system}}}
	}
	for _, t := range turns {
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, googleContent{Role: role, Parts: []googlePart{{Text: t.Content}}})
	}
	return out
}

func (googleShape) decode(data []byte) (string, error) {
	var resp struct {
		Candidates []struct {
			Content googleContent `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// ---- HuggingFace Inference ----

type huggingFaceShape struct{}

type huggingFaceParameters struct {
	Temperature    *float32 `json:"temperature,omitempty"`
	MaxNewTokens   *int     `json:"max_new_tokens,omitempty"`
	TopP           *float32 `json:"top_p,omitempty"`
	ReturnFullText bool     `json:"return_full_text"`
}

type huggingFaceRequest struct {
	Inputs     string                `json:"inputs"`
	Parameters huggingFaceParameters `json:"parameters"`
}

func (huggingFaceShape) endpoint(base, model, _ string) string { return base + "/" + model }

func (huggingFaceShape) body(req Request) any {
	lines := make([]string, 0, len(req.Messages))
	for _, t := range req.Messages {
		lines = append(lines, t.Content)
	}
	return huggingFaceRequest{
		Inputs: strings.Join(lines, "\n"),
		Parameters: huggingFaceParameters{
			Temperature:  req.Params.Temperature,
			MaxNewTokens: req.Params.MaxTokens,
			TopP:         req.Params.TopP,
		},
	}
}

// decode accepts both the list form [{"generated_text": ...}] and the bare
// object form some hosted models return.
func (huggingFaceShape) decode(data []byte) (string, error) {
	type generated struct {
		GeneratedText string `json:"generated_text"`
		Error         string `json:"error"`
	}
	var list []generated
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) == 0 {
			return "", errors.New("empty generation list")
		}
		return list[0].GeneratedText, nil
	}
	var one generated
	if err := json.Unmarshal(data, &one); err != nil {
		return "", err
	}
	if one.Error != "" {
		return "", errors.New(one.Error)
	}
	return one.GeneratedText, nil
}
