package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/go-llm-chat/internal/stream"
)

// fakeServer records every request it receives.
type fakeServer struct {
	*httptest.Server
	calls    atomic.Int32
	lastBody atomic.Value // []byte
	lastReq  atomic.Value // *http.Request
}

func newFakeServer(t *testing.T, h http.HandlerFunc) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.calls.Add(1)
		b, _ := io.ReadAll(r.Body)
		fs.lastBody.Store(b)
		fs.lastReq.Store(r.Clone(context.Background()))
		h(w, r)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) body(t *testing.T) map[string]any {
	t.Helper()
	raw, _ := fs.lastBody.Load().([]byte)
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode request body %q: %v", raw, err)
	}
	return out
}

// number returns the numeric body field key, failing when it is absent.
func number(t *testing.T, body map[string]any, key string) float64 {
	t.Helper()
	v, ok := body[key].(float64)
	if !ok {
		t.Fatalf("body[%q] = %#v, want a number", key, body[key])
	}
	return v
}

func near(got, want float64) bool {
	d := got - want
	return d < 1e-6 && d > -1e-6
}

func (fs *fakeServer) request() *http.Request {
	r, _ := fs.lastReq.Load().(*http.Request)
	return r
}

// writeSSE streams OpenAI-style delta chunks followed by [DONE].
func writeSSE(w http.ResponseWriter, deltas ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fl, _ := w.(http.Flusher)
	for i, d := range deltas {
		chunk := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   "m",
			"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": d}}},
		}
		b, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", b)
		if fl != nil && i%2 == 0 {
			fl.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func run(t *testing.T, a Adapter, req Request) ([]string, string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var deltas []string
	text, err := stream.Collect(ctx, stream.Run(ctx, 0, func(ctx context.Context, sink *stream.Sink) error {
		return a.Stream(ctx, req, sink)
	}), func(d string) { deltas = append(deltas, d) })
	return deltas, text, err
}

func f32(v float32) *float32 { return &v }
func intp(v int) *int        { return &v }
