package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/repo"
)

func newConvSvc(t *testing.T) *ConversationService {
	t.Helper()
	s := NewConversationService(newSvcDB(t), "OpenAI:gpt-4o-mini")
	s.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestConversationService_Create(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()

	c, err := s.Create(ctx, "   ", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Title != "New Chat 2024-01-01 00:00:00" {
		t.Fatalf("default title = %q", c.Title)
	}
	if c.Model != "OpenAI:gpt-4o-mini" {
		t.Fatalf("default model = %q", c.Model)
	}

	c, err = s.Create(ctx, "  Trip   plans ", "Anthropic: claude-3-5-haiku-latest", "be brief")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Title != "Trip plans" || c.Model != "Anthropic:claude-3-5-haiku-latest" || c.SystemPrompt != "be brief" {
		t.Fatalf("created = %+v", c)
	}

	if _, err := s.Create(ctx, "x", "no-colon", ""); !errors.Is(err, domain.ErrInvalidSelection) {
		t.Fatalf("want ErrInvalidSelection, got %v", err)
	}
}

func TestConversationService_UpdatesAndNotFound(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, "a", "", "")

	if err := s.Rename(ctx, c.ID, "  "); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	got, _ := s.Get(ctx, c.ID)
	if got.Title != "Untitled" {
		t.Fatalf("title = %q", got.Title)
	}
	// identical rewrite is not an error
	if err := s.Rename(ctx, c.ID, "Untitled"); err != nil {
		t.Fatalf("idempotent rename: %v", err)
	}
	if err := s.SetModel(ctx, c.ID, "groq : llama3"); err != nil {
		t.Fatalf("SetModel: %v", err)
	}
	if err := s.SetSystemPrompt(ctx, c.ID, "sys"); err != nil {
		t.Fatalf("SetSystemPrompt: %v", err)
	}
	got, _ = s.Get(ctx, c.ID)
	if got.Model != "groq:llama3" || got.SystemPrompt != "sys" {
		t.Fatalf("got %+v", got)
	}

	for name, err := range map[string]error{
		"get":    func() error { _, err := s.Get(ctx, 404); return err }(),
		"rename": s.Rename(ctx, 404, "x"),
		"model":  s.SetModel(ctx, 404, "a:b"),
		"prompt": s.SetSystemPrompt(ctx, 404, "x"),
		"msgs":   func() error { _, err := s.Messages(ctx, 404); return err }(),
		"draft":  s.SaveDraft(ctx, 404, "x"),
		"usage":  func() error { _, err := s.Usage(ctx, 404); return err }(),
	} {
		if !errors.Is(err, ErrConversationNotFound) {
			t.Errorf("%s: want ErrConversationNotFound, got %v", name, err)
		}
	}
}

func TestConversationService_DeleteIsIdempotent(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, "gone", "", "")
	if _, err := repo.AddMessage(ctx, s.DB, c.ID, domain.RoleUser, "hi", nil, nil); err != nil {
		t.Fatal(err)
	}
	_ = s.SaveDraft(ctx, c.ID, "draft")

	if err := s.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, c.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	var n int64
	s.DB.Model(&domain.Message{}).Where("conversation_id = ?", c.ID).Count(&n)
	if n != 0 {
		t.Fatalf("orphaned messages: %d", n)
	}
	s.DB.Model(&domain.Draft{}).Where("conversation_id = ?", c.ID).Count(&n)
	if n != 0 {
		t.Fatalf("orphaned drafts: %d", n)
	}
}

func TestConversationService_ListPageAndSearch(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	for _, title := range []string{"Go tips", "Rust notes", "go modules", "Cooking"} {
		if _, err := s.Create(ctx, title, "", ""); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := s.ListPage(ctx, "go", 0, 0)
	if err != nil || total != 2 || len(items) != 2 {
		t.Fatalf("ListPage = %d items, total %d, err %v", len(items), total, err)
	}
	items, total, _ = s.ListPage(ctx, "", 2, 3)
	if total != 4 || len(items) != 1 {
		t.Fatalf("page 2 = %d items, total %d", len(items), total)
	}
	items, _, _ = s.ListPage(ctx, "zzz", 1, 10)
	if items == nil || len(items) != 0 {
		t.Fatalf("want empty non-nil slice, got %v", items)
	}

	found, err := s.Search(ctx, "NOTES")
	if err != nil || len(found) != 1 || found[0].Title != "Rust notes" {
		t.Fatalf("Search = %+v, %v", found, err)
	}
	n, last, err := s.Stats(ctx)
	if err != nil || n != 4 || last == nil {
		t.Fatalf("Stats = %d %v %v", n, last, err)
	}
}

func TestConversationService_EditMessage(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, "c", "", "")
	m, _ := repo.AddMessage(ctx, s.DB, c.ID, domain.RoleAssistant, "old", nil, nil)

	got, err := s.EditMessage(ctx, c.ID, m.ID, "new text")
	if err != nil || got.Content != "new text" {
		t.Fatalf("EditMessage = %+v, %v", got, err)
	}
	if _, err := s.EditMessage(ctx, c.ID, m.ID, " \t"); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("want ErrEmptyContent, got %v", err)
	}
	if _, err := s.EditMessage(ctx, c.ID, m.ID+100, "x"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("want ErrMessageNotFound, got %v", err)
	}

	found, err := s.FindMessage(ctx, m.ID)
	if err != nil || found.ConversationID != c.ID || found.Content != "new text" {
		t.Fatalf("FindMessage = %+v, %v", found, err)
	}
	if _, err := s.FindMessage(ctx, m.ID+100); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("want ErrMessageNotFound, got %v", err)
	}
}

func TestConversationService_Drafts(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, "c", "", "")
	text := "line one\n\n  line two\t\n"

	if err := s.SaveDraft(ctx, c.ID, text); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	got, ok, err := s.LoadDraft(ctx, c.ID)
	if err != nil || !ok || got != text {
		t.Fatalf("LoadDraft = %q %v %v", got, ok, err)
	}
	got, ok, err = s.TakeDraft(ctx, c.ID)
	if err != nil || !ok || got != text {
		t.Fatalf("TakeDraft = %q %v %v", got, ok, err)
	}
	if _, ok, _ := s.TakeDraft(ctx, c.ID); ok {
		t.Fatal("draft not cleared by TakeDraft")
	}
	if err := s.ClearDraft(ctx, c.ID); err != nil {
		t.Fatalf("ClearDraft on empty: %v", err)
	}
}

func TestConversationService_Export(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, "Capitals", "", "")
	_, _ = repo.AddMessage(ctx, s.DB, c.ID, domain.RoleUser, "Capital of France?", nil, nil)
	_, _ = repo.AddMessage(ctx, s.DB, c.ID, domain.RoleAssistant, "Paris.", nil, nil)

	body, ctype, err := s.Export(ctx, c.ID, "json")
	if err != nil || !strings.HasPrefix(ctype, "application/json") {
		t.Fatalf("json export: %v %q", err, ctype)
	}
	var tr Transcript
	if err := json.Unmarshal(body, &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tr.Conversation.Title != "Capitals" || len(tr.Messages) != 2 {
		t.Fatalf("transcript = %+v", tr)
	}

	body, ctype, err = s.Export(ctx, c.ID, "Markdown")
	if err != nil || !strings.HasPrefix(ctype, "text/markdown") {
		t.Fatalf("markdown export: %v %q", err, ctype)
	}
	md := string(body)
	if !strings.HasPrefix(md, "# Capitals\n") || !strings.Contains(md, "**User** (") || !strings.Contains(md, "): Paris.") || !strings.Contains(md, "**Assistant**") {
		t.Fatalf("markdown = %q", md)
	}

	if _, _, err := s.Export(ctx, c.ID, "pdf"); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("want ErrInvalidFormat, got %v", err)
	}
	if _, _, err := s.Export(ctx, 404, "json"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("want ErrConversationNotFound, got %v", err)
	}
}

func TestConversationService_Usage(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, "c", "", "")
	if _, err := addEstimated(ctx, s.DB, c.ID, domain.RoleAssistant, "one two three four", "gpt-4o"); err != nil {
		t.Fatal(err)
	}
	u, err := s.Usage(ctx, c.ID)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if u.Messages != 1 || u.Tokens != 4 || !u.Cost.IsPositive() {
		t.Fatalf("usage = %+v", u)
	}
}

func TestStorageErrorWrapping(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := storageErr("op", cause, ErrConversationNotFound)
	var se *StorageError
	if !errors.As(err, &se) || !errors.Is(err, cause) {
		t.Fatalf("want StorageError wrapping cause, got %v", err)
	}
	if storageErr("op", repo.ErrNotFound, ErrMessageNotFound) != ErrMessageNotFound {
		t.Fatal("not-found not translated")
	}
	if storageErr("op", nil, nil) != nil {
		t.Fatal("nil error wrapped")
	}
}
