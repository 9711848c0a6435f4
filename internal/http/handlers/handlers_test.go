package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/http/middleware"
	"github.com/tbourn/go-llm-chat/internal/providers"
	"github.com/tbourn/go-llm-chat/internal/repo"
	"github.com/tbourn/go-llm-chat/internal/services"
	"github.com/tbourn/go-llm-chat/internal/speech"
	"github.com/tbourn/go-llm-chat/internal/stream"
)

const testSelection = "Local:test-model"

// fakeAdapter streams fixed deltas, then returns err.
type fakeAdapter struct {
	mu     sync.Mutex
	deltas []string
	err    error
	calls  int
}

func (a *fakeAdapter) Name() string             { return "Local" }
func (a *fakeAdapter) Family() providers.Family { return providers.FamilyOpenAI }

func (a *fakeAdapter) Stream(ctx context.Context, _ providers.Request, sink *stream.Sink) error {
	a.mu.Lock()
	a.calls++
	deltas, err := a.deltas, a.err
	a.mu.Unlock()
	for _, d := range deltas {
		if e := sink.Emit(ctx, d); e != nil {
			return e
		}
	}
	return err
}

func (a *fakeAdapter) set(err error, deltas ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deltas, a.err = deltas, err
}

func (a *fakeAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// adapterSource resolves only the "Local" provider.
type adapterSource struct{ a *fakeAdapter }

func (s adapterSource) Adapter(name string) (providers.Adapter, error) {
	if strings.EqualFold(name, "Local") {
		return s.a, nil
	}
	return nil, &providers.UnknownProviderError{Name: name}
}

type fakeModels struct {
	models           []string
	err              error
	invalidated      int
	invalidatedNames []string
}

func (m *fakeModels) List(_ context.Context, provider string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.models, nil
}

func (m *fakeModels) Invalidate(names ...string) {
	m.invalidated++
	m.invalidatedNames = append(m.invalidatedNames, names...)
}

type fakeSpeech struct {
	err  error
	text string
}

func (s *fakeSpeech) Audio(_ context.Context, _ int64, text string) (speech.Audio, error) {
	s.text = text
	if s.err != nil {
		return speech.Audio{}, s.err
	}
	return speech.Audio{Data: []byte("ID3-audio"), ContentType: "audio/mpeg"}, nil
}

type testEnv struct {
	db      *gorm.DB
	r       *gin.Engine
	adapter *fakeAdapter
	reg     *providers.Registry
	models  *fakeModels
	speech  *fakeSpeech
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "http.db"), repo.WithLogger(logger.Default.LogMode(logger.Silent)))
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

// newEnv wires real services over SQLite with an in-process adapter. Pass
// withSpeech=false to leave speech unconfigured.
func newEnv(t *testing.T, withSpeech bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		db:      newTestDB(t),
		adapter: &fakeAdapter{deltas: []string{"Hel", "lo"}},
		models:  &fakeModels{models: []string{"test-model", "other-model"}},
		speech:  &fakeSpeech{},
	}
	env.reg = providers.NewRegistry(providers.Credentials{}, providers.WithSpecs(providers.Spec{
		Name:    "Local",
		Family:  providers.FamilyOpenAI,
		BaseURL: "http://127.0.0.1:1/v1",
		Auth:    providers.AuthBearer,
	}))

	deps := Deps{
		Conversations: services.NewConversationService(env.db, testSelection),
		Chat:          services.NewOrchestrator(env.db, adapterSource{env.adapter}),
		Providers:     env.reg,
		Models:        env.models,
		Search:        services.NewSearchService(env.db),
	}
	if withSpeech {
		deps.Speech = env.speech
	}
	h := New(deps)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.GET("/health", h.Health)
	r.GET("/providers", h.ListProviders)
	r.PUT("/providers/credentials", h.UpdateCredentials)
	r.GET("/providers/:name/models", h.ListModels)
	r.POST("/conversations", h.CreateConversation)
	r.GET("/conversations", h.ListConversations)
	r.GET("/conversations/:id", h.GetConversation)
	r.PATCH("/conversations/:id", h.UpdateConversation)
	r.DELETE("/conversations/:id", h.DeleteConversation)
	r.GET("/conversations/:id/messages", h.ListMessages)
	r.POST("/conversations/:id/messages", h.SendMessage)
	r.PATCH("/conversations/:id/messages/:mid", h.EditMessage)
	r.GET("/conversations/:id/draft", h.TakeDraft)
	r.PUT("/conversations/:id/draft", h.SaveDraft)
	r.DELETE("/conversations/:id/draft", h.ClearDraft)
	r.GET("/conversations/:id/export", h.ExportConversation)
	r.GET("/conversations/:id/usage", h.ConversationUsage)
	r.GET("/usage", h.TotalUsage)
	r.GET("/search", h.SearchMessages)
	r.GET("/messages/:mid/speech", h.MessageSpeech)
	env.r = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createConv(t *testing.T, title string) domain.Conversation {
	t.Helper()
	w := e.do(t, http.MethodPost, "/conversations", map[string]string{"title": title})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var c domain.Conversation
	decode(t, w, &c)
	return c
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e ErrorResponse
	decode(t, w, &e)
	return e.Code
}

type sseEvent struct {
	name string
	data string
}

// parseSSE splits a recorded event-stream body into events.
func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.name != "" || cur.data != "" {
				out = append(out, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, "event:"):
			cur.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if cur.name != "" || cur.data != "" {
		out = append(out, cur)
	}
	return out
}
