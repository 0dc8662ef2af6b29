package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qline/internal/auth"
	"qline/internal/insights"
	"qline/internal/response"
)

type InsightsRequest struct {
	QueueID string `json:"queueId" binding:"required"`
	// general, optimization, customer или staffing
	Type string `json:"type" example:"general"`
}

// @Summary		Сводка владельца
// @Tags			admin
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	service.Dashboard
// @Failure		401	{object}	response.ErrorResponse	"Нет токена (NO_AUTH_HEADER, INVALID_TOKEN)"
// @Router			/admin/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	d, err := h.analytics.Dashboard(c.Request.Context(), auth.FromContext(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary		Аналитика очереди
// @Tags			admin
// @Produce		json
// @Security		BearerAuth
// @Param			id			path		string	true	"ID очереди"
// @Param			timeRange	query		string	false	"24h, 7d, 30d или 90d"	default(7d)
// @Success		200			{object}	service.QueueStats
// @Failure		400			{object}	response.ErrorResponse	"Неверный период (VALIDATION_ERROR)"
// @Failure		403			{object}	response.ErrorResponse	"Не владелец (FORBIDDEN)"
// @Failure		404			{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Router			/queues/{id}/analytics [get]
func (h *Handler) QueueAnalytics(c *gin.Context) {
	st, err := h.analytics.QueueAnalytics(c.Request.Context(), c.Param("id"), auth.FromContext(c), c.Query("timeRange"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary		Рекомендации по очереди
// @Description	Текст от языковой модели; при её недоступности — правила
// @Tags			admin
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			request	body		InsightsRequest	true	"Очередь и тип рекомендаций"
// @Success		200		{object}	insights.Result
// @Failure		403		{object}	response.ErrorResponse	"Не владелец (FORBIDDEN)"
// @Failure		404		{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Router			/ai/insights [post]
func (h *Handler) Insights(c *gin.Context) {
	var req InsightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	st, err := h.analytics.InsightStats(ctx, req.QueueID, auth.FromContext(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.insights.Generate(ctx, st, insights.ParseKind(req.Type)))
}
