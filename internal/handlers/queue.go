package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qline/internal/auth"
	"qline/internal/response"
	"qline/internal/service"
)

// JoinResponse — результат вступления в очередь.
type JoinResponse struct {
	EntryID string `json:"entryId" example:"5b1f0c2e-7f4e-4a3b-9d7e-2f6a1c9b8e01"`
	QueueID string `json:"queueId"`
	// Позиция среди ожидающих, начиная с 1
	Position          int       `json:"position" example:"3"`
	JoinedAt          time.Time `json:"joinedAt"`
	EstimatedWaitTime int       `json:"estimatedWaitTime" example:"6"`
}

func joinResponse(r *service.JoinResult) JoinResponse {
	return JoinResponse{
		EntryID:           r.EntryID,
		QueueID:           r.QueueID,
		Position:          r.Position,
		JoinedAt:          r.JoinedAt,
		EstimatedWaitTime: r.EstimatedWait,
	}
}

type EntryActionRequest struct {
	Action string `json:"action" binding:"required" example:"serve"`
}

type EntryActionResponse struct {
	EntryID     string `json:"entryId"`
	UserName    string `json:"userName" example:"Alice"`
	Action      string `json:"action" example:"serve"`
	OldPosition int    `json:"oldPosition"`
	NewPosition int    `json:"newPosition"`
}

// @Summary		Список очередей
// @Description	Активные публичные очереди с текущей загрузкой
// @Tags			queues
// @Produce		json
// @Param			search		query		string	false	"Поиск по названию и адресу"
// @Param			category	query		string	false	"Категория (all — любая)"
// @Param			sortBy		query		string	false	"createdAt или waitTime"
// @Success		200			{array}		service.QueueSummary
// @Failure		500			{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/queues [get]
func (h *Handler) ListQueues(c *gin.Context) {
	queues, err := h.lifecycle.ListPublic(c.Request.Context(), service.ListFilter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		SortBy:   c.Query("sortBy"),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, queues)
}

// @Summary		Создание очереди
// @Tags			queues
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			queue	body		service.QueueInput	true	"Очередь и поля формы"
// @Success		201		{object}	models.Queue
// @Failure		400		{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		401		{object}	response.ErrorResponse	"Нет токена (NO_AUTH_HEADER, INVALID_TOKEN)"
// @Router			/queues [post]
func (h *Handler) CreateQueue(c *gin.Context) {
	var in service.QueueInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err)
		return
	}
	q, err := h.lifecycle.Create(c.Request.Context(), auth.FromContext(c), in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// @Summary		Очередь
// @Description	Очередь с полями формы вступления и текущей загрузкой
// @Tags			queues
// @Produce		json
// @Param			id	path		string	true	"ID очереди"
// @Success		200	{object}	service.QueueDetail
// @Failure		404	{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Router			/queues/{id} [get]
func (h *Handler) GetQueue(c *gin.Context) {
	q, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// @Summary		Изменение очереди
// @Description	Частичное обновление; customFields заменяет набор полей целиком
// @Tags			queues
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			id		path		string				true	"ID очереди"
// @Param			queue	body		service.QueuePatch	true	"Изменения"
// @Success		200		{object}	models.Queue
// @Failure		400		{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		403		{object}	response.ErrorResponse	"Не владелец (FORBIDDEN)"
// @Failure		404		{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Router			/queues/{id} [put]
func (h *Handler) UpdateQueue(c *gin.Context) {
	var p service.QueuePatch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, err)
		return
	}
	q, err := h.lifecycle.Update(c.Request.Context(), c.Param("id"), auth.FromContext(c), p)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// @Summary		Удаление очереди
// @Description	Удаляет очередь вместе со всеми записями и полями
// @Tags			queues
// @Produce		json
// @Security		BearerAuth
// @Param			id	path		string	true	"ID очереди"
// @Success		200	{object}	response.SuccessResponse
// @Failure		403	{object}	response.ErrorResponse	"Не владелец (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Router			/queues/{id} [delete]
func (h *Handler) DeleteQueue(c *gin.Context) {
	if err := h.lifecycle.Delete(c.Request.Context(), c.Param("id"), auth.FromContext(c)); err != nil {
		response.FromError(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Очередь удалена")
}

// JoinQueue обрабатывает запрос на вступление в очередь
// @Summary		Вступление в очередь
// @Description	Тело — значения полей формы по их названиям. Токен необязателен.
// @Tags			queues
// @Accept			json
// @Produce		json
// @Param			id		path		string			true	"ID очереди"
// @Param			fields	body		map[string]any	true	"Поля формы"
// @Security		BearerAuth
// @Success		201		{object}	JoinResponse
// @Failure		400		{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR) или уже в очереди (ALREADY_IN_QUEUE)"
// @Failure		404		{object}	response.ErrorResponse	"Очередь не найдена или неактивна (QUEUE_NOT_FOUND, QUEUE_INACTIVE)"
// @Failure		409		{object}	response.ErrorResponse	"Очередь заполнена (QUEUE_FULL)"
// @Router			/queues/{id}/join [post]
func (h *Handler) JoinQueue(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		response.BadRequest(c, err)
		return
	}
	res, err := h.admission.Join(c.Request.Context(), service.JoinRequest{
		QueueID:  c.Param("id"),
		Fields:   fields,
		Identity: auth.FromContext(c),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusCreated, joinResponse(res))
}

// @Summary		Ожидающие в очереди
// @Description	Ожидающие по порядку позиций. Только для владельца.
// @Tags			entries
// @Produce		json
// @Security		BearerAuth
// @Param			id	path		string	true	"ID очереди"
// @Success		200	{array}		service.EntryView
// @Failure		403	{object}	response.ErrorResponse	"Не владелец (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Router			/queues/{id}/entries [get]
func (h *Handler) ListEntries(c *gin.Context) {
	entries, err := h.transition.Waiting(c.Request.Context(), c.Param("id"), auth.FromContext(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// @Summary		Добавление посетителя владельцем
// @Description	Запись без обязательных полей, в том числе в неактивную очередь
// @Tags			entries
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			id		path		string			true	"ID очереди"
// @Param			fields	body		map[string]any	true	"Данные посетителя"
// @Success		201		{object}	JoinResponse
// @Failure		400		{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		403		{object}	response.ErrorResponse	"Не владелец (FORBIDDEN)"
// @Router			/queues/{id}/entries [post]
func (h *Handler) AddEntry(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		response.BadRequest(c, err)
		return
	}
	res, err := h.admission.AddWalkIn(c.Request.Context(), c.Param("id"), fields, auth.FromContext(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusCreated, joinResponse(res))
}

// @Summary		Обслуживание или пропуск
// @Description	serve переводит запись в SERVED, skip переносит её в конец очереди
// @Tags			entries
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			id		path		string				true	"ID очереди"
// @Param			entryId	path		string				true	"ID записи"
// @Param			action	body		EntryActionRequest	true	"Действие"
// @Success		200		{object}	EntryActionResponse
// @Failure		400		{object}	response.ErrorResponse	"Неизвестное действие (VALIDATION_ERROR)"
// @Failure		403		{object}	response.ErrorResponse	"Не владелец (FORBIDDEN)"
// @Failure		404		{object}	response.ErrorResponse	"Запись не найдена (ENTRY_NOT_FOUND)"
// @Failure		409		{object}	response.ErrorResponse	"Запись уже не ожидает (INVALID_ENTRY_STATE)"
// @Router			/queues/{id}/entries/{entryId} [put]
func (h *Handler) UpdateEntry(c *gin.Context) {
	var req EntryActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	action, err := service.ParseAction(req.Action)
	if err != nil {
		response.FromError(c, err)
		return
	}
	res, err := h.transition.Apply(c.Request.Context(), c.Param("id"), c.Param("entryId"), action, auth.FromContext(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, EntryActionResponse{
		EntryID:     res.EntryID,
		UserName:    res.UserName,
		Action:      string(res.Action),
		OldPosition: res.OldPosition,
		NewPosition: res.NewPosition,
	})
}

// LeaveQueue снимает запись с очереди
// @Summary		Выход из очереди
// @Description	Доступно владельцу очереди и самому участнику
// @Tags			entries
// @Produce		json
// @Security		BearerAuth
// @Param			id		path		string	true	"ID очереди"
// @Param			entryId	path		string	true	"ID записи"
// @Success		200		{object}	response.SuccessResponse
// @Failure		403		{object}	response.ErrorResponse	"Недостаточно прав (FORBIDDEN)"
// @Failure		404		{object}	response.ErrorResponse	"Запись не найдена (ENTRY_NOT_FOUND)"
// @Failure		409		{object}	response.ErrorResponse	"Запись уже не ожидает (INVALID_ENTRY_STATE)"
// @Router			/queues/{id}/entries/{entryId} [delete]
func (h *Handler) LeaveQueue(c *gin.Context) {
	if _, err := h.transition.Leave(c.Request.Context(), c.Param("id"), c.Param("entryId"), auth.FromContext(c)); err != nil {
		response.FromError(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Запись снята с очереди")
}
