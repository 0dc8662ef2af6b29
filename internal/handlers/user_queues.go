package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qline/internal/auth"
	"qline/internal/response"
	"qline/internal/service"
)

// MyQueueResponse — entry равен null, если пользователь нигде не ждёт.
type MyQueueResponse struct {
	Entry *service.MyQueueView `json:"entry"`
}

// MyQueue godoc
// @Summary		Моя очередь
// @Description	Последняя очередь, в которой пользователь ожидает
// @Tags			profile
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	MyQueueResponse
// @Failure		401	{object}	response.ErrorResponse	"Нет токена (NO_AUTH_HEADER, INVALID_TOKEN)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/my-queue [get]
func (h *Handler) MyQueue(c *gin.Context) {
	v, err := h.analytics.MyQueue(c.Request.Context(), auth.FromContext(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, MyQueueResponse{Entry: v})
}
