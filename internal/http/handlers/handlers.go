// Package handlers exposes the chat API over HTTP.
//
// Handlers are transport-thin: they validate input, call application
// services through the narrow interfaces below, and translate results into
// HTTP responses, server-sent events or error envelopes.
package handlers

import (
	"context"
	"time"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/providers"
	"github.com/tbourn/go-llm-chat/internal/repo"
	"github.com/tbourn/go-llm-chat/internal/search"
	"github.com/tbourn/go-llm-chat/internal/services"
	"github.com/tbourn/go-llm-chat/internal/speech"
)

//
// Service contracts (context-aware)
//

// ConversationService covers conversation, message, draft and export
// operations. *services.ConversationService satisfies it.
type ConversationService interface {
	Create(ctx context.Context, title, model, systemPrompt string) (*domain.Conversation, error)
	Get(ctx context.Context, id int64) (*domain.Conversation, error)
	ListPage(ctx context.Context, query string, page, pageSize int) ([]domain.Conversation, int64, error)
	Stats(ctx context.Context) (int64, *time.Time, error)
	Rename(ctx context.Context, id int64, title string) error
	SetModel(ctx context.Context, id int64, selection string) error
	SetSystemPrompt(ctx context.Context, id int64, prompt string) error
	Delete(ctx context.Context, id int64) error
	Messages(ctx context.Context, id int64) ([]domain.Message, error)
	FindMessage(ctx context.Context, msgID int64) (*domain.Message, error)
	EditMessage(ctx context.Context, convID, msgID int64, content string) (*domain.Message, error)
	SaveDraft(ctx context.Context, id int64, text string) error
	TakeDraft(ctx context.Context, id int64) (string, bool, error)
	ClearDraft(ctx context.Context, id int64) error
	Usage(ctx context.Context, id int64) (repo.Usage, error)
	Export(ctx context.Context, id int64, format string) ([]byte, string, error)
}

// Sender runs one user turn. *services.Orchestrator satisfies it.
type Sender interface {
	Send(ctx context.Context, req services.SendRequest) (<-chan services.Update, error)
	Replay(ctx context.Context, convID int64, key string) (*domain.Message, error)
}

// ProviderRegistry lists providers and swaps their credentials.
type ProviderRegistry interface {
	Providers() []providers.Status
	Merge(creds providers.Credentials)
}

// ModelLister serves per-provider model lists.
type ModelLister interface {
	List(ctx context.Context, provider string) ([]string, error)
	Invalidate(names ...string)
}

// MessageSearcher ranks stored messages against a query.
type MessageSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// SpeechSource returns audio for a message.
type SpeechSource interface {
	Audio(ctx context.Context, messageID int64, text string) (speech.Audio, error)
}

//
// Handler wiring
//

// Deps are the services behind the handlers. Speech may be nil, in which
// case the speech endpoint answers 503.
type Deps struct {
	Conversations ConversationService
	Chat          Sender
	Providers     ProviderRegistry
	Models        ModelLister
	Search        MessageSearcher
	Speech        SpeechSource
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	convs  ConversationService
	chat   Sender
	reg    ProviderRegistry
	models ModelLister
	search MessageSearcher
	speech SpeechSource
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		convs:  d.Conversations,
		chat:   d.Chat,
		reg:    d.Providers,
		models: d.Models,
		search: d.Search,
		speech: d.Speech,
	}
}
