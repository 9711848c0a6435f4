package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

func TestCreateConversation_DefaultsAndValidation(t *testing.T) {
	env := newEnv(t, false)

	w := env.do(t, http.MethodPost, "/conversations", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("empty body create: %d %s", w.Code, w.Body.String())
	}
	var c domain.Conversation
	decode(t, w, &c)
	if !strings.HasPrefix(c.Title, "New Chat") || c.Model != testSelection {
		t.Fatalf("unexpected defaults: %+v", c)
	}

	w = env.do(t, http.MethodPost, "/conversations", map[string]string{"title": "Trip", "model": "OpenAI:gpt-4o", "system_prompt": "be brief"})
	decode(t, w, &c)
	if c.Title != "Trip" || c.Model != "OpenAI:gpt-4o" || c.SystemPrompt != "be brief" {
		t.Fatalf("unexpected conversation: %+v", c)
	}

	if w := env.do(t, http.MethodPost, "/conversations", map[string]string{"model": "no-colon"}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad selection: %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/conversations", "{"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", w.Code)
	}
}

func TestListConversations_PagingFilterAndETag(t *testing.T) {
	env := newEnv(t, false)
	for _, title := range []string{"alpha one", "beta", "alpha two"} {
		env.createConv(t, title)
	}

	w := env.do(t, http.MethodGet, "/conversations?page=1&page_size=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var resp ListConversationsResponse
	decode(t, w, &resp)
	if len(resp.Conversations) != 2 || resp.Pagination.Total != 3 || resp.Pagination.TotalPages != 2 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", resp.Pagination)
	}
	if resp.Conversations[0].Title != "alpha two" {
		t.Fatalf("want most recent first, got %q", resp.Conversations[0].Title)
	}

	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"conversations:`) {
		t.Fatalf("etag = %q", etag)
	}
	if w := env.do(t, http.MethodGet, "/conversations?page=1&page_size=2", nil, "If-None-Match", etag); w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/conversations?q=alpha", nil)
	decode(t, w, &resp)
	if resp.Pagination.Total != 2 {
		t.Fatalf("filter total = %d", resp.Pagination.Total)
	}

	// a rename changes the body and so the ETag
	id := strconv.FormatInt(resp.Conversations[0].ID, 10)
	env.do(t, http.MethodPatch, "/conversations/"+id, map[string]string{"title": "gamma"})
	if w := env.do(t, http.MethodGet, "/conversations?page=1&page_size=2", nil, "If-None-Match", etag); w.Code != http.StatusOK {
		t.Fatalf("expected fresh 200 after rename, got %d", w.Code)
	}
}

func TestGetUpdateDeleteConversation(t *testing.T) {
	env := newEnv(t, false)
	c := env.createConv(t, "first")
	path := "/conversations/" + strconv.FormatInt(c.ID, 10)

	if w := env.do(t, http.MethodGet, path, nil); w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/conversations/999", nil); w.Code != http.StatusNotFound || errCode(t, w) != ErrCodeNotFound {
		t.Fatalf("missing: %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/conversations/abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", w.Code)
	}

	w := env.do(t, http.MethodPatch, path, map[string]string{"title": "renamed", "model": "Groq:llama3", "system_prompt": "pirate"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	var got domain.Conversation
	decode(t, w, &got)
	if got.Title != "renamed" || got.Model != "Groq:llama3" || got.SystemPrompt != "pirate" {
		t.Fatalf("unexpected: %+v", got)
	}

	cases := []struct {
		name string
		body any
		want int
	}{
		{"empty object", map[string]string{}, http.StatusBadRequest},
		{"blank title", map[string]string{"title": "  "}, http.StatusBadRequest},
		{"bad selection", map[string]string{"model": "nocolon"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := env.do(t, http.MethodPatch, path, tc.body); w.Code != tc.want {
			t.Errorf("%s: got %d want %d", tc.name, w.Code, tc.want)
		}
	}
	if w := env.do(t, http.MethodPatch, "/conversations/999", map[string]string{"title": "x"}); w.Code != http.StatusNotFound {
		t.Fatalf("patch missing: %d", w.Code)
	}

	if w := env.do(t, http.MethodDelete, path, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, path, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete again: %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", w.Code)
	}
}

func TestExportAndUsage(t *testing.T) {
	env := newEnv(t, false)
	c := env.createConv(t, "export me")
	id := strconv.FormatInt(c.ID, 10)

	if w := env.do(t, http.MethodPost, "/conversations/"+id+"/messages?stream=false", map[string]string{"content": "hi there"}); w.Code != http.StatusOK {
		t.Fatalf("send: %d %s", w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodGet, "/conversations/"+id+"/export", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("json export: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "conversation-"+id+".json") {
		t.Fatalf("disposition: %q", w.Header().Get("Content-Disposition"))
	}

	w = env.do(t, http.MethodGet, "/conversations/"+id+"/export?format=markdown", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "**User**") || !strings.Contains(w.Body.String(), "Hello") {
		t.Fatalf("markdown export: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".md") {
		t.Fatalf("disposition: %q", w.Header().Get("Content-Disposition"))
	}

	if w := env.do(t, http.MethodGet, "/conversations/"+id+"/export?format=pdf", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad format: %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/conversations/999/export", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing export: %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/conversations/"+id+"/usage", nil)
	var u UsageResponse
	decode(t, w, &u)
	if u.ConversationID != c.ID || u.Messages != 2 || u.Tokens <= 0 {
		t.Fatalf("usage: %+v", u)
	}
	if w := env.do(t, http.MethodGet, "/conversations/999/usage", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing usage: %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/usage", nil)
	decode(t, w, &u)
	if u.Messages != 2 {
		t.Fatalf("total usage: %+v", u)
	}
}
