package providers

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

var history = []Turn{
	{Role: "system", Content: "You are terse."},
	{Role: "user", Content: "Capital of France?"},
	{Role: "assistant", Content: "Paris."},
	{Role: "user", Content: "And Germany?"},
}

func TestAnthropic_HeadersBodyAndReply(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Berlin."}],"role":"assistant"}`))
	})
	r := NewRegistry(Credentials{"Anthropic": {APIKey: "ak", BaseURL: srv.URL}})
	a, err := r.Adapter("Anthropic")
	if err != nil {
		t.Fatalf("Adapter: %v", err)
	}

	deltas, text, err := run(t, a, Request{Model: "claude-3-5-haiku-latest", Messages: history})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// batch replies arrive as one fragment
	if len(deltas) != 1 || deltas[0] != "Berlin." || text != "Berlin." {
		t.Fatalf("deltas = %q, text = %q", deltas, text)
	}

	req := srv.request()
	if req.URL.Path != "/messages" {
		t.Errorf("path = %q", req.URL.Path)
	}
	if req.Header.Get("x-api-key") != "ak" || req.Header.Get("anthropic-version") != anthropicVersion {
		t.Errorf("headers = %v", req.Header)
	}
	if auth := req.Header.Get("Authorization"); auth != "" {
		t.Errorf("unexpected Authorization %q", auth)
	}

	body := srv.body(t)
	if body["system"] != "You are terse." {
		t.Errorf("system = %v", body["system"])
	}
	if got := number(t, body, "max_tokens"); got != defaultAnthropicMaxTokens {
		t.Errorf("max_tokens = %v", got)
	}
	// system turn moved to the top-level field
	if msgs, _ := body["messages"].([]any); len(msgs) != 3 {
		t.Errorf("messages = %v", body["messages"])
	}
}

func TestGoogle_QueryKeyAndCandidates(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Ber"},{"text":"lin."}]}}]}`))
	})
	r := NewRegistry(Credentials{"Google": {APIKey: "gk", BaseURL: srv.URL}})
	a, err := r.Adapter("Google")
	if err != nil {
		t.Fatalf("Adapter: %v", err)
	}

	_, text, err := run(t, a, Request{Model: "gemini-1.5-flash", Messages: history, Params: GenerationParams{MaxTokens: intp(99)}})
	if err != nil || text != "Berlin." {
		t.Fatalf("run = %q, %v", text, err)
	}

	req := srv.request()
	if req.URL.Path != "/models/gemini-1.5-flash:generateContent" || req.URL.Query().Get("key") != "gk" {
		t.Errorf("url = %s", req.URL)
	}

	body := srv.body(t)
	contents, _ := body["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("contents = %v", body["contents"])
	}
	if second, _ := contents[1].(map[string]any); second["role"] != "model" {
		t.Errorf("second role = %v", second["role"])
	}
	cfg, _ := body["generationConfig"].(map[string]any)
	if got := number(t, cfg, "maxOutputTokens"); got != 99 {
		t.Errorf("maxOutputTokens = %v", got)
	}
	if body["systemInstruction"] == nil {
		t.Error("systemInstruction missing")
	}
}

func TestHuggingFace_InputsJoinedAndListReply(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"generated_text":"Berlin."}]`))
	})
	r := NewRegistry(Credentials{"HuggingFace": {APIKey: "hf", BaseURL: srv.URL}})
	a, err := r.Adapter("HuggingFace")
	if err != nil {
		t.Fatalf("Adapter: %v", err)
	}

	_, text, err := run(t, a, Request{Model: "org/model", Messages: history})
	if err != nil || text != "Berlin." {
		t.Fatalf("run = %q, %v", text, err)
	}

	req := srv.request()
	if req.URL.Path != "/org/model" || req.Header.Get("Authorization") != "Bearer hf" {
		t.Errorf("path/auth = %q/%q", req.URL.Path, req.Header.Get("Authorization"))
	}
	if got := srv.body(t)["inputs"]; got != "You are terse.\nCapital of France?\nParis.\nAnd Germany?" {
		t.Errorf("inputs = %q", got)
	}
}

func TestHuggingFace_ObjectError(t *testing.T) {
	_, err := huggingFaceShape{}.decode([]byte(`{"error":"Model is loading"}`))
	if err == nil || !strings.Contains(err.Error(), "loading") {
		t.Fatalf("decode error = %v", err)
	}
}

func TestBatch_MalformedBody(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	})
	r := NewRegistry(Credentials{"Anthropic": {APIKey: "ak", BaseURL: srv.URL}})
	a, err := r.Adapter("Anthropic")
	if err != nil {
		t.Fatalf("Adapter: %v", err)
	}

	_, _, err = run(t, a, Request{Model: "claude", Messages: history})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindDecode {
		t.Fatalf("want decode ProviderError, got %v", err)
	}
	if !strings.Contains(err.Error(), "API Error (Anthropic claude)") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestBatch_EmptyReplyFailsNormalizer(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	})
	r := NewRegistry(Credentials{"Anthropic": {APIKey: "ak", BaseURL: srv.URL}})
	a, err := r.Adapter("Anthropic")
	if err != nil {
		t.Fatalf("Adapter: %v", err)
	}
	if _, _, err := run(t, a, Request{Model: "claude", Messages: history}); err == nil {
		t.Fatal("empty reply should fail")
	}
}
