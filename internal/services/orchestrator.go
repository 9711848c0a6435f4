// Package services – Orchestrator
//
// The Orchestrator drives one generation: it resolves the provider selection,
// builds the bounded context window, dispatches to the provider adapter and
// publishes incremental text on a channel the caller consumes. On success the
// user prompt and the assistant reply are persisted together; a failed,
// empty or cancelled generation leaves the stored history untouched.
//
// Sends to the same conversation are serialized in arrival order. Sends to
// different conversations run independently.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/providers"
	"github.com/tbourn/go-llm-chat/internal/repo"
	"github.com/tbourn/go-llm-chat/internal/stream"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultProviderTimeout bounds a single provider call, streaming included.
const DefaultProviderTimeout = 60 * time.Second

// AdapterSource hands out provider adapters. *providers.Registry satisfies it.
type AdapterSource interface {
	Adapter(name string) (providers.Adapter, error)
}

// ReplyHook is notified after an assistant reply has been persisted, e.g. to
// prefetch speech audio. Hooks must not block for long; the conversation
// stays locked until they return.
type ReplyHook interface {
	AfterReply(ctx context.Context, msg *domain.Message)
}

// SendRequest is one user turn.
type SendRequest struct {
	ConversationID int64
	Prompt         string

	// Selection is "provider:model". Empty uses the conversation's stored
	// selection. A different selection is stored on success.
	Selection string

	// SystemPrompt overrides the conversation's stored prompt when non-nil
	// and is stored on success.
	SystemPrompt *string

	// ContextPolicy bounds the history sent, see ParseContextPolicy.
	ContextPolicy string

	// Params are passed to the provider without validation or clamping.
	Params providers.GenerationParams

	// IdempotencyKey, when set, records the persisted reply so a retried
	// request can be answered with Replay instead of a second generation.
	IdempotencyKey string
}

// Update is one item published by Send. Zero or more Delta updates are
// followed by exactly one terminal update carrying either the persisted
// assistant Message or Err.
type Update struct {
	Delta   string
	Message *domain.Message
	Err     error

	// Replayed marks a terminal Message that was recorded for the request's
	// idempotency key by an earlier send instead of being generated now.
	Replayed bool
}

// Terminal reports whether u ends the stream.
func (u Update) Terminal() bool { return u.Message != nil || u.Err != nil }

// Orchestrator ties a conversation, the provider registry and storage
// together.
type Orchestrator struct {
	DB        *gorm.DB
	Providers AdapterSource
	Hooks     []ReplyHook

	// Timeout bounds each provider call; zero selects DefaultProviderTimeout.
	Timeout time.Duration
	// Buffer is the capacity of the update channel; zero selects
	// stream.DefaultBuffer.
	Buffer int
	// MaxPromptRunes rejects longer prompts with ErrTooLong when positive.
	MaxPromptRunes int
	// IdempotencyTTL is how long a recorded reply can be replayed.
	IdempotencyTTL time.Duration
	// RecordErrors stores failed attempts as a user message followed by an
	// "error" role message. Off by default so failures leave history as it
	// was.
	RecordErrors bool

	mu    sync.Mutex
	locks map[int64]*convLock
}

// NewOrchestrator returns an Orchestrator with default limits.
func NewOrchestrator(db *gorm.DB, src AdapterSource, hooks ...ReplyHook) *Orchestrator {
	return &Orchestrator{
		DB:             db,
		Providers:      src,
		Hooks:          hooks,
		Timeout:        DefaultProviderTimeout,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// generation is the state carried from Send into the worker goroutine.
type generation struct {
	conv         *domain.Conversation
	sel          domain.Selection
	prompt       string
	systemPrompt string
	request      providers.Request
	key          string

	// firstTurn is set when the stored history has no user message yet.
	firstTurn bool
	// replay is the reply already recorded for key; nothing is generated.
	replay *domain.Message
}

// Send validates the request, waits for the conversation to be free and
// starts the generation. Errors that can be known up front are returned
// directly: ErrEmptyPrompt, ErrTooLong, ErrConversationNotFound,
// domain.ErrInvalidSelection, *providers.UnknownProviderError and
// *providers.ConfigurationError. None of them involve a network call.
//
// Everything after that is reported on the returned channel, which is closed
// after the terminal update. Cancelling ctx stops the provider call and
// nothing is persisted.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest) (<-chan Update, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if o.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > o.MaxPromptRunes {
		return nil, ErrTooLong
	}

	conv, err := repo.GetConversation(ctx, o.DB, req.ConversationID)
	if err != nil {
		return nil, storageErr("get conversation", err, ErrConversationNotFound)
	}
	selection := req.Selection
	if strings.TrimSpace(selection) == "" {
		selection = conv.Model
	}
	sel, err := domain.ParseSelection(selection)
	if err != nil {
		return nil, err
	}
	adapter, err := o.Providers.Adapter(sel.Provider)
	if err != nil {
		return nil, err
	}

	release, err := o.acquire(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	g, err := o.prepare(ctx, conv.ID, sel, prompt, req)
	if err != nil {
		release()
		return nil, err
	}
	if g.replay != nil {
		release()
		out := make(chan Update, 1)
		out <- Update{Message: g.replay, Replayed: true}
		close(out)
		return out, nil
	}

	buf := o.Buffer
	if buf <= 0 {
		buf = stream.DefaultBuffer
	}
	out := make(chan Update, buf)
	go o.generate(ctx, release, out, adapter, g)
	return out, nil
}

// prepare re-reads the conversation under its lock and builds the provider
// request from stored history plus the new prompt. A send whose idempotency
// key was committed while it waited for the lock gets the recorded reply.
func (o *Orchestrator) prepare(ctx context.Context, convID int64, sel domain.Selection, prompt string, req SendRequest) (*generation, error) {
	conv, err := repo.GetConversation(ctx, o.DB, convID)
	if err != nil {
		return nil, storageErr("get conversation", err, ErrConversationNotFound)
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		prev, err := o.Replay(ctx, convID, key)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			return &generation{conv: conv, sel: sel, prompt: prompt, key: key, replay: prev}, nil
		}
	}
	history, err := repo.ListMessages(ctx, o.DB, convID)
	if err != nil {
		return nil, storageErr("list messages", err, ErrConversationNotFound)
	}

	systemPrompt := conv.SystemPrompt
	if req.SystemPrompt != nil {
		systemPrompt = *req.SystemPrompt
	}

	firstTurn := true
	window := make([]domain.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Role == domain.RoleUser {
			firstTurn = false
		}
		if m.Role == domain.RoleUser || m.Role == domain.RoleAssistant {
			window = append(window, m)
		}
	}
	window = append(window, domain.Message{Role: domain.RoleUser, Content: prompt})
	window = applyContextWindow(window, ParseContextPolicy(req.ContextPolicy))

	turns := make([]providers.Turn, 0, len(window)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		turns = append(turns, providers.Turn{Role: domain.RoleSystem, Content: systemPrompt})
	}
	for _, m := range window {
		turns = append(turns, providers.Turn{Role: m.Role, Content: m.Content})
	}

	return &generation{
		conv:         conv,
		sel:          sel,
		prompt:       prompt,
		systemPrompt: systemPrompt,
		request:      providers.Request{Model: sel.Model, Messages: turns, Params: req.Params},
		key:          key,
		firstTurn:    firstTurn,
	}, nil
}

func (o *Orchestrator) generate(ctx context.Context, release func(), out chan<- Update, adapter providers.Adapter, g *generation) {
	defer close(out)
	defer release()

	tr := otel.Tracer("services/Orchestrator")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.Int64("conversation.id", g.conv.ID),
			attribute.String("provider", g.sel.Provider),
			attribute.String("model", g.sel.Model),
			attribute.Int("context.messages", len(g.request.Messages)),
		),
	)
	defer span.End()

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	events := stream.Run(callCtx, o.Buffer, func(ctx context.Context, sink *stream.Sink) error {
		return adapter.Stream(ctx, g.request, sink)
	})
	text, err := stream.Collect(callCtx, events, func(delta string) {
		select {
		case out <- Update{Delta: delta}:
		case <-callCtx.Done():
		}
	})

	var msg *domain.Message
	if err == nil {
		msg, err = o.commit(ctx, g, text)
	} else {
		err = classify(ctx, g.sel, err, timeout)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		zerolog.Ctx(ctx).Warn().Err(err).
			Int64("conversation_id", g.conv.ID).
			Str("provider", g.sel.Provider).
			Str("model", g.sel.Model).
			Msg("generation failed")
		o.recordFailure(ctx, g, err)
		deliver(ctx, out, Update{Err: err})
		return
	}

	span.SetAttributes(attribute.Int64("message.id", msg.ID))
	deliver(ctx, out, Update{Message: msg})
	hookCtx := context.WithoutCancel(ctx)
	for _, h := range o.Hooks {
		h.AfterReply(hookCtx, msg)
	}
}

// classify maps normalizer and context errors to what callers check for.
// A provider call that ran out of time while the caller was still waiting is
// a transport failure of the selected provider.
func classify(ctx context.Context, sel domain.Selection, err error, timeout time.Duration) error {
	var pe *providers.ProviderError
	switch {
	case errors.Is(err, stream.ErrEmptyReply):
		return ErrEmptyReply
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !errors.As(err, &pe):
		return &providers.ProviderError{
			Provider: sel.Provider,
			Model:    sel.Model,
			Kind:     providers.KindTransport,
			Err:      fmt.Errorf("timed out after %s: %w", timeout, err),
		}
	}
	return err
}

// commit persists the user turn, the assistant reply, the selection, the
// system prompt and, on the first exchange, the auto-title in one
// transaction. A cancelled ctx persists nothing.
func (o *Orchestrator) commit(ctx context.Context, g *generation, reply string) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var assistant *domain.Message
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := addEstimated(ctx, tx, g.conv.ID, domain.RoleUser, g.prompt, g.sel.Model); err != nil {
			return err
		}
		m, err := addEstimated(ctx, tx, g.conv.ID, domain.RoleAssistant, reply, g.sel.Model)
		if err != nil {
			return err
		}
		assistant = m

		if sel := g.sel.String(); sel != g.conv.Model {
			if err := repo.SetModel(ctx, tx, g.conv.ID, sel); err != nil {
				return err
			}
		}
		if g.systemPrompt != g.conv.SystemPrompt {
			if err := repo.SetSystemPrompt(ctx, tx, g.conv.ID, g.systemPrompt); err != nil {
				return err
			}
		}
		if g.firstTurn && shouldAutoTitle(g.conv.Title) {
			if title := titleFromPrompt(g.prompt); title != "" {
				if err := repo.RenameConversation(ctx, tx, g.conv.ID, title); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, storageErr("persist reply", err, ErrConversationNotFound)
	}

	if g.key != "" {
		_, err := repo.CreateIdempotency(ctx, o.DB, g.conv.ID, g.key, assistant.ID, 200, o.IdempotencyTTL)
		if err != nil && !errors.Is(err, repo.ErrDuplicate) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("idempotency_key", g.key).Msg("record idempotency")
		}
	}
	return assistant, nil
}

// addEstimated stores a message with word-count token and cost estimates.
func addEstimated(ctx context.Context, db *gorm.DB, convID int64, role, content, model string) (*domain.Message, error) {
	tokens := stream.EstimateTokens(content)
	cost := providers.EstimateCost(model, tokens)
	return repo.AddMessage(ctx, db, convID, role, content, &tokens, &cost)
}

// recordFailure stores the failed exchange when RecordErrors is set.
// Cancellation is never recorded.
func (o *Orchestrator) recordFailure(ctx context.Context, g *generation, cause error) {
	if !o.RecordErrors || errors.Is(cause, context.Canceled) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := addEstimated(ctx, tx, g.conv.ID, domain.RoleUser, g.prompt, g.sel.Model); err != nil {
			return err
		}
		zero := decimal.Zero
		_, err := repo.AddMessage(ctx, tx, g.conv.ID, domain.RoleError, cause.Error(), nil, &zero)
		return err
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("conversation_id", g.conv.ID).Msg("record failed generation")
	}
}

// Replay returns the assistant message recorded for an idempotency key, or
// nil when the key is unknown or expired.
func (o *Orchestrator) Replay(ctx context.Context, convID int64, key string) (*domain.Message, error) {
	rec, err := repo.GetIdempotency(ctx, o.DB, convID, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get idempotency", err, nil)
	}
	m, err := repo.GetMessage(ctx, o.DB, convID, rec.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get message", err, nil)
	}
	return m, nil
}

// deliver sends a terminal update. If the consumer is gone the update is
// dropped unless the buffer still has room.
func deliver(ctx context.Context, out chan<- Update, u Update) {
	select {
	case out <- u:
	case <-ctx.Done():
		select {
		case out <- u:
		default:
		}
	}
}

// convLock serializes generations for one conversation. Waiters blocked on
// the channel are served in arrival order.
type convLock struct {
	sem  chan struct{}
	refs int
}

func (o *Orchestrator) acquire(ctx context.Context, id int64) (func(), error) {
	o.mu.Lock()
	if o.locks == nil {
		o.locks = make(map[int64]*convLock)
	}
	l := o.locks[id]
	if l == nil {
		l = &convLock{sem: make(chan struct{}, 1)}
		o.locks[id] = l
	}
	l.refs++
	o.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		o.unref(id, l)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			o.unref(id, l)
		})
	}, nil
}

func (o *Orchestrator) unref(id int64, l *convLock) {
	o.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(o.locks, id)
	}
	o.mu.Unlock()
}

// Busy reports whether a generation is running or queued for the
// conversation.
func (o *Orchestrator) Busy(id int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.locks[id] != nil
}
