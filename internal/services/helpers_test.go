package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/providers"
	"github.com/tbourn/go-llm-chat/internal/repo"
)

const testSelection = "Local:test-model"

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"), repo.WithLogger(logger.Default.LogMode(logger.Silent)))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func mustConv(t *testing.T, db *gorm.DB, title string) *domain.Conversation {
	t.Helper()
	c, err := repo.CreateConversation(context.Background(), db, title, testSelection, "")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return c
}

// fakeProvider is an OpenAI-compatible endpoint that records each request.
type fakeProvider struct {
	srv   *httptest.Server
	calls atomic.Int32
	last  atomic.Value // chatBody
}

type chatBody struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature"`
}

// newFakeProvider answers every request with reply.
func newFakeProvider(t *testing.T, reply func(w http.ResponseWriter, r *http.Request, body chatBody)) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{}
	fp.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp.calls.Add(1)
		var body chatBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		fp.last.Store(body)
		reply(w, r, body)
	}))
	t.Cleanup(fp.srv.Close)
	return fp
}

func (fp *fakeProvider) lastBody() chatBody {
	b, _ := fp.last.Load().(chatBody)
	return b
}

func (fp *fakeProvider) registry(withKey bool) *providers.Registry {
	creds := providers.Credentials{}
	if withKey {
		creds["Local"] = providers.Credential{APIKey: "sk-test"}
	}
	return providers.NewRegistry(creds, providers.WithSpecs(providers.Spec{
		Name:    "Local",
		Family:  providers.FamilyOpenAI,
		BaseURL: fp.srv.URL + "/v1",
		Auth:    providers.AuthBearer,
	}))
}

func sseHeader(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
}

func sseChunk(w http.ResponseWriter, delta string) {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"model":   "test-model",
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": delta}}},
	})
	fmt.Fprintf(w, "data: %s\n\n", b)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sseDone(w http.ResponseWriter) { fmt.Fprint(w, "data: [DONE]\n\n") }

// streamReply streams deltas then [DONE].
func streamReply(deltas ...string) func(http.ResponseWriter, *http.Request, chatBody) {
	return func(w http.ResponseWriter, _ *http.Request, _ chatBody) {
		sseHeader(w)
		for _, d := range deltas {
			sseChunk(w, d)
		}
		sseDone(w)
	}
}

// drain reads updates until the channel closes and returns the deltas and
// the terminal update.
func drain(t *testing.T, ch <-chan Update) ([]string, Update) {
	t.Helper()
	var deltas []string
	var last Update
	timeout := time.After(10 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return deltas, last
			}
			if u.Terminal() {
				last = u
				continue
			}
			deltas = append(deltas, u.Delta)
		case <-timeout:
			t.Fatal("timed out waiting for updates")
		}
	}
}

func messages(t *testing.T, db *gorm.DB, convID int64) []domain.Message {
	t.Helper()
	msgs, err := repo.ListMessages(context.Background(), db, convID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	return msgs
}
