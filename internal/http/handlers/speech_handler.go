package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-llm-chat/internal/speech"
)

// MessageSpeech godoc
// @ID          messageSpeech
// @Summary     Synthesized audio for a message
// @Description Returns audio prefetched after the reply, or synthesizes it now.
// @Tags        Speech
// @Produce     audio/mpeg
// @Param       mid  path  int  true  "Message ID"
// @Success     200  {file}    file
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Speech service failure"
// @Failure     503  {object}  handlers.ErrorResponse  "Speech not configured"
// @Router      /messages/{mid}/speech [get]
func (h *Handlers) MessageSpeech(c *gin.Context) {
	mid, valid := pathID(c, "mid")
	if !valid {
		return
	}
	if h.speech == nil {
		failErr(c, speech.ErrDisabled)
		return
	}
	ctx := c.Request.Context()
	m, err := h.convs.FindMessage(ctx, mid)
	if err != nil {
		failErr(c, err)
		return
	}
	audio, err := h.speech.Audio(ctx, m.ID, m.Content)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, audio.ContentType, audio.Data)
}
