// Message HTTP handlers.
//
// This file exposes the endpoints of a conversation's messages and draft:
//   - GET    /conversations/{id}/messages        (list in send order)
//   - POST   /conversations/{id}/messages        (send a prompt, stream the reply)
//   - PATCH  /conversations/{id}/messages/{mid}  (edit stored content)
//   - GET    /conversations/{id}/draft           (take the draft)
//   - PUT    /conversations/{id}/draft           (save the draft)
//   - DELETE /conversations/{id}/draft           (clear the draft)
//
// Streaming:
// By default a send answers with server-sent events. Each chunk of reply text
// is a "delta" event; the stream ends with one "done" event carrying the
// persisted assistant message or one "error" event carrying the standard
// error envelope. With ?stream=false the handler waits and answers with JSON.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a reply was already
// recorded for (conversation, key), that message is returned without a new
// generation and `Idempotency-Replayed: true` is set.
package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/http/middleware"
	"github.com/tbourn/go-llm-chat/internal/providers"
	"github.com/tbourn/go-llm-chat/internal/services"
	"github.com/tbourn/go-llm-chat/internal/sysutil"
)

// SSE event names.
const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

//
// DTOs
//

// SendMessageRequest is one user turn.
type SendMessageRequest struct {
	// Content is the user prompt. It must not be blank.
	Content string `json:"content" example:"Summarize the plot of Hamlet in two sentences."`
	// Model overrides the conversation's "provider:model" selection and is
	// stored on success.
	Model string `json:"model,omitempty" example:"Groq:llama-3.1-8b-instant"`
	// SystemPrompt overrides the stored system prompt and is stored on success.
	SystemPrompt *string `json:"system_prompt,omitempty"`
	// Context bounds the history sent, e.g. "Last 10 Messages" or "No Limit".
	Context string `json:"context,omitempty" example:"Last 10 Messages"`
	// Params are passed to the provider unchanged.
	Params providers.GenerationParams `json:"params"`
}

// MessageResponse wraps a single message.
type MessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains a conversation's messages in send order.
type ListMessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

// DeltaEvent is the payload of a "delta" event.
type DeltaEvent struct {
	Text string `json:"text"`
}

// EditMessageRequest replaces a stored message's content.
type EditMessageRequest struct {
	Content string `json:"content" example:"Fixed typo in my question."`
}

// DraftRequest is the unsent text of a conversation.
type DraftRequest struct {
	Content string `json:"content"`
}

// DraftResponse returns a taken draft.
type DraftResponse struct {
	Content string `json:"content"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent converts CRLF/CR to LF, collapses runs of blank lines and
// trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// ListMessages godoc
// @ID          listMessages
// @Summary     List a conversation's messages
// @Tags        Messages
// @Produce     json
// @Param       id   path      int  true  "Conversation ID"
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	msgs, err := h.convs.Messages(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	okETag(c, "messages", ListMessagesResponse{Messages: msgs})
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a prompt and stream the assistant reply
// @Description Streams "delta" events followed by one "done" or "error" event. With stream=false, answers once with JSON.
// @Description Supports idempotency via the Idempotency-Key header (same key, same reply).
// @Tags        Messages
// @Accept      json
// @Produce     text/event-stream
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       id               path    int     true   "Conversation ID"
// @Param       stream           query   bool    false  "Stream the reply as server-sent events"  default(true)
// @Param       body             body    handlers.SendMessageRequest  true  "User turn"
// @Success     200  {object}  handlers.MessageResponse  "Assistant reply (stream=false or replay)"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or unknown provider"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     422  {object}  handlers.ErrorResponse  "Provider not configured"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider failure"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		failErr(c, services.ErrEmptyPrompt)
		return
	}
	streaming := sysutil.IsTruthy(c.DefaultQuery("stream", "true"))
	ctx := c.Request.Context()

	key, _ := middleware.GetIdempotencyKey(c)
	if key != "" {
		prev, err := h.chat.Replay(ctx, id, key)
		if err != nil {
			failErr(c, err)
			return
		}
		if prev != nil {
			c.Header("Idempotency-Replayed", "true")
			if streaming {
				writeEvents(c, replayed(prev))
				return
			}
			ok(c, http.StatusOK, MessageResponse{Message: prev})
			return
		}
	}

	updates, err := h.chat.Send(ctx, services.SendRequest{
		ConversationID: id,
		Prompt:         content,
		Selection:      req.Model,
		SystemPrompt:   req.SystemPrompt,
		ContextPolicy:  req.Context,
		Params:         req.Params,
		IdempotencyKey: key,
	})
	if err != nil {
		failErr(c, err)
		return
	}

	if streaming {
		writeEvents(c, updates)
		return
	}
	for u := range updates {
		switch {
		case u.Err != nil:
			failErr(c, u.Err)
		case u.Message != nil:
			if u.Replayed {
				c.Header("Idempotency-Replayed", "true")
			}
			ok(c, http.StatusOK, MessageResponse{Message: u.Message})
		}
	}
}

// replayed returns a closed channel holding only the terminal update for m.
func replayed(m *domain.Message) <-chan services.Update {
	ch := make(chan services.Update, 1)
	ch <- services.Update{Message: m, Replayed: true}
	close(ch)
	return ch
}

// writeEvents relays updates as server-sent events until the channel
// closes. A client disconnect cancels the request context, which ends the
// generation and closes the channel.
func writeEvents(c *gin.Context, updates <-chan services.Update) {
	defer middleware.TrackStream()()

	hd := c.Writer.Header()
	hd.Set("Content-Type", "text/event-stream")
	hd.Set("Cache-Control", "no-cache")
	hd.Set("Connection", "keep-alive")
	hd.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for u := range updates {
		switch {
		case u.Err != nil:
			status, code := classify(u.Err)
			if status >= http.StatusInternalServerError {
				middleware.LoggerFrom(c).Error().Err(u.Err).Str("code", code).Msg("stream error")
			}
			c.SSEvent(EventError, errorBody(c, code, u.Err.Error()))
		case u.Message != nil:
			c.SSEvent(EventDone, MessageResponse{Message: u.Message})
		default:
			c.SSEvent(EventDelta, DeltaEvent{Text: u.Delta})
		}
		c.Writer.Flush()
	}
}

// EditMessage godoc
// @ID          editMessage
// @Summary     Edit a stored message
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       id    path      int  true  "Conversation ID"
// @Param       mid   path      int  true  "Message ID"
// @Param       body  body      handlers.EditMessageRequest  true  "New content"
// @Success     200   {object}  handlers.MessageResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Message not found"
// @Router      /conversations/{id}/messages/{mid} [patch]
func (h *Handlers) EditMessage(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	mid, valid := pathID(c, "mid")
	if !valid {
		return
	}
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	m, err := h.convs.EditMessage(c.Request.Context(), id, mid, req.Content)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: m})
}

// TakeDraft godoc
// @ID          takeDraft
// @Summary     Take the conversation's draft
// @Description Returns the saved draft and removes it. Answers 204 when there is none.
// @Tags        Drafts
// @Produce     json
// @Param       id   path      int  true  "Conversation ID"
// @Success     200  {object}  handlers.DraftResponse
// @Success     204  {string}  string  "No draft"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/draft [get]
func (h *Handlers) TakeDraft(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.convs.Get(ctx, id); err != nil {
		failErr(c, err)
		return
	}
	text, found, err := h.convs.TakeDraft(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	if !found {
		noContent(c)
		return
	}
	ok(c, http.StatusOK, DraftResponse{Content: text})
}

// SaveDraft godoc
// @ID          saveDraft
// @Summary     Save the conversation's draft
// @Description Stores unsent text, replacing any previous draft.
// @Tags        Drafts
// @Accept      json
// @Param       id    path  int  true  "Conversation ID"
// @Param       body  body  handlers.DraftRequest  true  "Draft text"
// @Success     204   {string}  string  "No Content"
// @Failure     404   {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/draft [put]
func (h *Handlers) SaveDraft(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.convs.SaveDraft(c.Request.Context(), id, req.Content); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ClearDraft godoc
// @ID          clearDraft
// @Summary     Clear the conversation's draft
// @Tags        Drafts
// @Param       id   path  int  true  "Conversation ID"
// @Success     204  {string}  string  "No Content"
// @Router      /conversations/{id}/draft [delete]
func (h *Handlers) ClearDraft(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.convs.ClearDraft(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
