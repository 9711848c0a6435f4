// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversation resources:
//   - POST   /conversations                    (create)
//   - GET    /conversations                    (list, paginated, title filter, ETag)
//   - GET    /conversations/{id}               (get)
//   - PATCH  /conversations/{id}               (rename, model, system prompt)
//   - DELETE /conversations/{id}               (delete, idempotent)
//   - GET    /conversations/{id}/export        (JSON or Markdown transcript)
//   - GET    /conversations/{id}/usage         (token and cost estimates)
//   - GET    /usage                            (totals over all conversations)
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/repo"
	"github.com/tbourn/go-llm-chat/internal/services"
	"github.com/tbourn/go-llm-chat/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

//
// DTOs
//

// CreateConversationRequest is the JSON payload for creating a conversation.
// Every field is optional.
type CreateConversationRequest struct {
	// Title defaults to "New Chat <timestamp>" and is then set from the first reply.
	Title string `json:"title" example:"Trip planning"`
	// Model is a "provider:model" selection; defaults to DEFAULT_MODEL.
	Model        string `json:"model" example:"OpenAI:gpt-4o-mini"`
	SystemPrompt string `json:"system_prompt" example:"You are a concise assistant."`
}

// UpdateConversationRequest changes any subset of a conversation's
// settings. Absent fields are left alone.
type UpdateConversationRequest struct {
	Title        *string `json:"title,omitempty" example:"Trip planning 2025"`
	Model        *string `json:"model,omitempty" example:"Anthropic:claude-3-5-haiku-latest"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListConversationsResponse wraps a page of conversations.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

// UsageResponse is the token and cost summary. Cost is a decimal string in
// US dollars.
type UsageResponse struct {
	ConversationID int64 `json:"conversation_id,omitempty"`
	repo.Usage
}

//
// Handlers
//

// CreateConversation godoc
// @ID          createConversation
// @Summary     Create a conversation
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CreateConversationRequest  false  "Conversation settings"
// @Success     201   {object}  domain.Conversation
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Storage error"
// @Router      /conversations [post]
func (h *Handlers) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	conv, err := h.convs.Create(c.Request.Context(), req.Title, req.Model, req.SystemPrompt)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, conv)
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations (paginated)
// @Description Most recently active first. Supports a weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       q              query   string  false  "Title substring filter"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListConversationsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Storage error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	page, size := utils.Page(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)
	items, total, err := h.convs.ListPage(c.Request.Context(), strings.TrimSpace(c.Query("q")), page, size)
	if err != nil {
		failErr(c, err)
		return
	}
	totalPages := int((total + int64(size) - 1) / int64(size))
	okETag(c, "conversations", ListConversationsResponse{
		Conversations: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Get a conversation
// @Tags        Conversations
// @Produce     json
// @Param       id   path      int  true  "Conversation ID"
// @Success     200  {object}  domain.Conversation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	conv, err := h.convs.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// UpdateConversation godoc
// @ID          updateConversation
// @Summary     Update conversation settings
// @Description Renames the conversation, changes its "provider:model" selection or replaces its system prompt.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       id    path      int  true  "Conversation ID"
// @Param       body  body      handlers.UpdateConversationRequest  true  "Fields to change"
// @Success     200   {object}  domain.Conversation
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id} [patch]
func (h *Handlers) UpdateConversation(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Title == nil && req.Model == nil && req.SystemPrompt == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "nothing to update")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title must not be empty")
		return
	}

	ctx := c.Request.Context()
	if req.Model != nil {
		if err := h.convs.SetModel(ctx, id, *req.Model); err != nil {
			failErr(c, err)
			return
		}
	}
	if req.Title != nil {
		if err := h.convs.Rename(ctx, id, *req.Title); err != nil {
			failErr(c, err)
			return
		}
	}
	if req.SystemPrompt != nil {
		if err := h.convs.SetSystemPrompt(ctx, id, *req.SystemPrompt); err != nil {
			failErr(c, err)
			return
		}
	}

	conv, err := h.convs.Get(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation
// @Description Removes the conversation with its messages and draft. Deleting a missing conversation succeeds.
// @Tags        Conversations
// @Param       id   path    int  true  "Conversation ID"
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Storage error"
// @Router      /conversations/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.convs.Delete(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ExportConversation godoc
// @ID          exportConversation
// @Summary     Export a transcript
// @Tags        Conversations
// @Produce     json
// @Produce     text/markdown
// @Param       id      path   int     true   "Conversation ID"
// @Param       format  query  string  false  "json or markdown"  Enums(json, markdown) default(json)
// @Success     200  {file}    file
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/export [get]
func (h *Handlers) ExportConversation(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	format := c.DefaultQuery("format", services.FormatJSON)
	body, contentType, err := h.convs.Export(c.Request.Context(), id, format)
	if err != nil {
		failErr(c, err)
		return
	}
	ext := "json"
	if strings.HasPrefix(contentType, "text/markdown") {
		ext = "md"
	}
	c.Header("Content-Disposition", `attachment; filename="conversation-`+strconv.FormatInt(id, 10)+"."+ext+`"`)
	c.Data(http.StatusOK, contentType, body)
}

// ConversationUsage godoc
// @ID          conversationUsage
// @Summary     Token and cost estimates for a conversation
// @Tags        Conversations
// @Produce     json
// @Param       id   path      int  true  "Conversation ID"
// @Success     200  {object}  handlers.UsageResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/usage [get]
func (h *Handlers) ConversationUsage(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	u, err := h.convs.Usage(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UsageResponse{ConversationID: id, Usage: u})
}

// TotalUsage godoc
// @ID          totalUsage
// @Summary     Token and cost estimates over all conversations
// @Tags        Conversations
// @Produce     json
// @Success     200  {object}  handlers.UsageResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Storage error"
// @Router      /usage [get]
func (h *Handlers) TotalUsage(c *gin.Context) {
	u, err := h.convs.Usage(c.Request.Context(), 0)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UsageResponse{Usage: u})
}
