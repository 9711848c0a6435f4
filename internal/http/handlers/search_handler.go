package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-llm-chat/internal/search"
	"github.com/tbourn/go-llm-chat/internal/utils"
)

// SearchResponse holds ranked message hits, best first.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

// SearchMessages godoc
// @ID          searchMessages
// @Summary     Search messages
// @Description Ranks stored messages by term overlap with q across all conversations.
// @Tags        Search
// @Produce     json
// @Param       q      query     string  true   "Search terms"
// @Param       limit  query     int     false  "Maximum results"  minimum(1) maximum(100) default(20)
// @Success     200    {object}  handlers.SearchResponse
// @Failure     400    {object}  handlers.ErrorResponse  "Bad request"
// @Router      /search [get]
func (h *Handlers) SearchMessages(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q required")
		return
	}
	limit := utils.Limit(c.Query("limit"), defaultPageSize, maxPageSize)
	res, err := h.search.Search(c.Request.Context(), q, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SearchResponse{Query: q, Results: res})
}
