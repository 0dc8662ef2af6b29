package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"qline/internal/errs"
)

type mapping struct {
	err     error
	status  int
	code    string
	message string
}

// Порядок важен: первая совпавшая ошибка определяет ответ.
var mappings = []mapping{
	{errs.ErrQueueNotFound, http.StatusNotFound, "QUEUE_NOT_FOUND", "Очередь не найдена"},
	{errs.ErrEntryNotFound, http.StatusNotFound, "ENTRY_NOT_FOUND", "Запись в очереди не найдена"},
	{errs.ErrQueueInactive, http.StatusNotFound, "QUEUE_INACTIVE", "Очередь не принимает новых участников"},
	{errs.ErrDuplicateEntry, http.StatusBadRequest, "ALREADY_IN_QUEUE", "Вы уже стоите в этой очереди"},
	{errs.ErrInvalidState, http.StatusConflict, "INVALID_ENTRY_STATE", "Запись уже не ожидает в очереди"},
	{errs.ErrQueueFull, http.StatusConflict, "QUEUE_FULL", "Очередь заполнена"},
	{errs.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Недостаточно прав"},
	{errs.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR", "Ошибка валидации данных"},
	{errs.ErrUnauthorized, http.StatusUnauthorized, "INVALID_TOKEN", "Неверный или просроченный токен"},
	{errs.ErrEmailTaken, http.StatusBadRequest, "EMAIL_EXISTS", "Пользователь с таким email уже существует"},
	{errs.ErrBadCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Неверный email или пароль"},
	{errs.ErrUserNotFound, http.StatusUnauthorized, "USER_NOT_FOUND", "Пользователь не найден"},
}

// Classify возвращает HTTP-статус и тело ответа для доменной ошибки.
func Classify(err error) (int, ErrorResponse) {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			resp := ErrorResponse{Code: m.code, Message: m.message}
			if err.Error() != m.err.Error() {
				resp.Details = err.Error()
			}
			return m.status, resp
		}
	}
	return http.StatusInternalServerError, ErrorResponse{
		Code:    "DB_ERROR",
		Message: "Внутренняя ошибка сервера",
	}
}

// FromError пишет ответ с ошибкой и прерывает обработку запроса.
func FromError(c *gin.Context, err error) {
	status, resp := Classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Ошибка обработки запроса",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, resp)
}

// BadRequest — ошибка привязки тела запроса.
func BadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Code:    "VALIDATION_ERROR",
		Message: "Ошибка валидации данных",
		Details: err.Error(),
	})
}
