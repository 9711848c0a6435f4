// Package services – ConversationService
//
// ConversationService owns the lifecycle of conversations outside of
// generation: creation with a default title, listing and title search,
// single-field updates, deletion, message edits, drafts, export and usage
// summaries. Repository not-found errors are translated into the
// service-level sentinels; everything else surfaces as *StorageError.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/repo"
)

// Export formats accepted by ConversationService.Export.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// ConversationService provides conversation-level operations.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// DefaultModel is the "provider:model" selection given to new
	// conversations created without one. May be empty.
	DefaultModel string

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int

	// Now is the clock used for default titles.
	Now func() time.Time
}

// NewConversationService constructs a ConversationService with sane defaults.
func NewConversationService(db *gorm.DB, defaultModel string) *ConversationService {
	return &ConversationService{
		DB:           db,
		DefaultModel: defaultModel,
		TitleMaxLen:  255,
		Now:          time.Now,
	}
}

// Create inserts a new conversation. A blank title becomes
// "New Chat <timestamp>"; a blank model falls back to DefaultModel.
func (s *ConversationService) Create(ctx context.Context, title, model, systemPrompt string) (*domain.Conversation, error) {
	title = normalizeTitle(title)
	if title == "" {
		title = defaultTitle(s.now())
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = s.DefaultModel
	}
	if model != "" {
		sel, err := domain.ParseSelection(model)
		if err != nil {
			return nil, err
		}
		model = sel.String()
	}
	c, err := repo.CreateConversation(ctx, s.DB, clipTitle(title, s.TitleMaxLen), model, systemPrompt)
	return c, storageErr("create conversation", err, nil)
}

// Get returns a conversation by id.
func (s *ConversationService) Get(ctx context.Context, id int64) (*domain.Conversation, error) {
	c, err := repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		return nil, storageErr("get conversation", err, ErrConversationNotFound)
	}
	return c, nil
}

// List returns every conversation, most recently active first.
func (s *ConversationService) List(ctx context.Context) ([]domain.Conversation, error) {
	out, err := repo.ListConversations(ctx, s.DB)
	if err != nil {
		return nil, storageErr("list conversations", err, nil)
	}
	return out, nil
}

// ListPage returns a page of conversations, optionally filtered by a title
// substring, with the total number of matches. Invalid page or pageSize
// values fall back to 1 and 20.
func (s *ConversationService) ListPage(ctx context.Context, query string, page, pageSize int) ([]domain.Conversation, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountConversations(ctx, s.DB, query)
	if err != nil {
		return nil, 0, storageErr("count conversations", err, nil)
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}
	items, err := repo.ListConversationsPage(ctx, s.DB, query, offset, pageSize)
	if err != nil {
		return nil, 0, storageErr("list conversations", err, nil)
	}
	return items, total, nil
}

// Search returns conversations whose title contains query.
func (s *ConversationService) Search(ctx context.Context, query string) ([]domain.Conversation, error) {
	out, err := repo.SearchConversations(ctx, s.DB, query)
	if err != nil {
		return nil, storageErr("search conversations", err, nil)
	}
	return out, nil
}

// Stats returns the conversation count and the latest activity time, used
// for list ETags.
func (s *ConversationService) Stats(ctx context.Context) (int64, *time.Time, error) {
	n, last, err := repo.ConversationsStats(ctx, s.DB)
	if err != nil {
		return 0, nil, storageErr("conversation stats", err, nil)
	}
	return n, last, nil
}

// Rename sets a conversation's title. A blank title becomes "Untitled".
func (s *ConversationService) Rename(ctx context.Context, id int64, title string) error {
	title = normalizeTitle(title)
	if title == "" {
		title = untitled
	}
	err := repo.RenameConversation(ctx, s.DB, id, clipTitle(title, s.TitleMaxLen))
	return storageErr("rename conversation", err, ErrConversationNotFound)
}

// SetModel stores a new provider selection on the conversation. The
// selection must parse; whether the provider is usable is checked on send.
func (s *ConversationService) SetModel(ctx context.Context, id int64, selection string) error {
	sel, err := domain.ParseSelection(selection)
	if err != nil {
		return err
	}
	return storageErr("set model", repo.SetModel(ctx, s.DB, id, sel.String()), ErrConversationNotFound)
}

// SetSystemPrompt replaces the conversation's system prompt.
func (s *ConversationService) SetSystemPrompt(ctx context.Context, id int64, prompt string) error {
	return storageErr("set system prompt", repo.SetSystemPrompt(ctx, s.DB, id, prompt), ErrConversationNotFound)
}

// Delete removes a conversation and everything it owns. Deleting a missing
// conversation succeeds.
func (s *ConversationService) Delete(ctx context.Context, id int64) error {
	return storageErr("delete conversation", repo.DeleteConversation(ctx, s.DB, id), nil)
}

// Messages returns the conversation's messages in send order.
func (s *ConversationService) Messages(ctx context.Context, id int64) ([]domain.Message, error) {
	out, err := repo.ListMessages(ctx, s.DB, id)
	if err != nil {
		return nil, storageErr("list messages", err, ErrConversationNotFound)
	}
	return out, nil
}

// FindMessage returns a message by id regardless of its conversation.
func (s *ConversationService) FindMessage(ctx context.Context, msgID int64) (*domain.Message, error) {
	m, err := repo.FindMessage(ctx, s.DB, msgID)
	if err != nil {
		return nil, storageErr("find message", err, ErrMessageNotFound)
	}
	return m, nil
}

// EditMessage rewrites the content of one stored message and returns it.
func (s *ConversationService) EditMessage(ctx context.Context, convID, msgID int64, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if err := repo.UpdateMessageContent(ctx, s.DB, convID, msgID, content); err != nil {
		return nil, storageErr("edit message", err, ErrMessageNotFound)
	}
	m, err := repo.GetMessage(ctx, s.DB, convID, msgID)
	if err != nil {
		return nil, storageErr("get message", err, ErrMessageNotFound)
	}
	return m, nil
}

// SaveDraft stores the unsent input for a conversation exactly as given.
func (s *ConversationService) SaveDraft(ctx context.Context, id int64, text string) error {
	return storageErr("save draft", repo.SaveDraft(ctx, s.DB, id, text), ErrConversationNotFound)
}

// LoadDraft returns the stored draft, if any, without clearing it.
func (s *ConversationService) LoadDraft(ctx context.Context, id int64) (string, bool, error) {
	text, ok, err := repo.LoadDraft(ctx, s.DB, id)
	if err != nil {
		return "", false, storageErr("load draft", err, nil)
	}
	return text, ok, nil
}

// TakeDraft returns the stored draft and clears it, the way a conversation
// restores its input box when reopened.
func (s *ConversationService) TakeDraft(ctx context.Context, id int64) (string, bool, error) {
	text, ok, err := s.LoadDraft(ctx, id)
	if err != nil || !ok {
		return text, ok, err
	}
	if err := repo.ClearDraft(ctx, s.DB, id); err != nil {
		return "", false, storageErr("clear draft", err, nil)
	}
	return text, true, nil
}

// ClearDraft removes a stored draft; clearing a missing one succeeds.
func (s *ConversationService) ClearDraft(ctx context.Context, id int64) error {
	return storageErr("clear draft", repo.ClearDraft(ctx, s.DB, id), nil)
}

// Usage summarizes the estimated tokens and cost of a conversation. An id of
// zero summarizes every conversation.
func (s *ConversationService) Usage(ctx context.Context, id int64) (repo.Usage, error) {
	if id != 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return repo.Usage{}, err
		}
	}
	u, err := repo.UsageStats(ctx, s.DB, id)
	if err != nil {
		return repo.Usage{}, storageErr("usage", err, nil)
	}
	return u, nil
}

// Transcript is the JSON export document.
type Transcript struct {
	Conversation domain.Conversation `json:"conversation"`
	Messages     []domain.Message    `json:"messages"`
}

// Export renders a conversation as JSON or Markdown and returns the body and
// its content type.
func (s *ConversationService) Export(ctx context.Context, id int64, format string) ([]byte, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatMarkdown && format != "md" {
		return nil, "", ErrInvalidFormat
	}

	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	msgs, err := s.Messages(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if format == FormatJSON {
		b, err := json.MarshalIndent(Transcript{Conversation: *conv, Messages: msgs}, "", "  ")
		if err != nil {
			return nil, "", err
		}
		return b, "application/json; charset=utf-8", nil
	}
	return renderMarkdown(conv, msgs), "text/markdown; charset=utf-8", nil
}

func renderMarkdown(conv *domain.Conversation, msgs []domain.Message) []byte {
	caser := cases.Title(language.English)
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	if conv.Model != "" {
		fmt.Fprintf(&b, "_Model: %s_\n\n", conv.Model)
	}
	for _, m := range msgs {
		fmt.Fprintf(&b, "**%s** (%s): %s\n\n", caser.String(m.Role), m.Timestamp.Format("2006-01-02 15:04:05"), m.Content)
	}
	return b.Bytes()
}

func (s *ConversationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
