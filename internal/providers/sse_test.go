package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestSSEAdapter_StreamsDataLines(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, "Bon", "", "jour")
	})
	r := NewRegistry(Credentials{"Perplexity": {APIKey: "pplx", BaseURL: srv.URL}})
	a, err := r.Adapter("Perplexity")
	if err != nil {
		t.Fatalf("Adapter: %v", err)
	}

	deltas, text, err := run(t, a, Request{
		Model:    "sonar",
		Messages: []Turn{{Role: "user", Content: "hello in french"}},
		Params:   GenerationParams{Temperature: f32(0.2)},
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if strings.Join(deltas, "|") != "Bon|jour" || text != "Bonjour" {
		t.Fatalf("deltas = %q, text = %q", deltas, text)
	}

	req := srv.request()
	if req.URL.Path != "/chat/completions" || req.Header.Get("Authorization") != "Bearer pplx" {
		t.Fatalf("path/auth = %q/%q", req.URL.Path, req.Header.Get("Authorization"))
	}
	body := srv.body(t)
	if body["stream"] != true || body["model"] != "sonar" {
		t.Fatalf("stream/model = %v/%v", body["stream"], body["model"])
	}
	if got := number(t, body, "temperature"); !near(got, 0.2) {
		t.Fatalf("temperature = %v", got)
	}
	if _, ok := body["max_tokens"]; ok {
		t.Fatal("unset params should be omitted")
	}
}

func TestSSEAdapter_MalformedChunkIsDecodeError(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: {oops\n\n")
	})
	r := NewRegistry(Credentials{"DeepSeek": {APIKey: "k", BaseURL: srv.URL}})
	a, err := r.Adapter("DeepSeek")
	if err != nil {
		t.Fatalf("Adapter: %v", err)
	}

	_, _, err = run(t, a, Request{Model: "deepseek-chat", Messages: []Turn{{Role: "user", Content: "x"}}})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindDecode {
		t.Fatalf("want decode ProviderError, got %v", err)
	}
	if !strings.Contains(err.Error(), "DeepSeek deepseek-chat") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestSSEAdapter_StatusError(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	r := NewRegistry(Credentials{"Together": {APIKey: "k", BaseURL: srv.URL}})
	a, err := r.Adapter("Together")
	if err != nil {
		t.Fatalf("Adapter: %v", err)
	}

	_, _, err = run(t, a, Request{Model: "m", Messages: []Turn{{Role: "user", Content: "x"}}})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProviderError, got %v", err)
	}
	if pe.Kind != KindStatus || pe.Status != http.StatusTooManyRequests || pe.Body != "rate limited" {
		t.Fatalf("provider error = %+v", pe)
	}
}
