package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse reports liveness and whether storage answers.
type HealthResponse struct {
	Status        string     `json:"status" example:"ok"`
	Conversations int64      `json:"conversations"`
	LastActiveAt  *time.Time `json:"last_active_at,omitempty"`
}

// Health godoc
// @ID          health
// @Summary     Liveness check
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	n, last, err := h.convs.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "storage unavailable")
		return
	}
	ok(c, http.StatusOK, HealthResponse{Status: "ok", Conversations: n, LastActiveAt: last})
}
