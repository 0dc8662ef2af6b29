package response

import "github.com/gin-gonic/gin"

// SuccessResponse представляет успешный ответ без данных
type SuccessResponse struct {
	Message string `json:"message" example:"Запись снята с очереди"`
}

// ErrorResponse представляет ответ с ошибкой API
type ErrorResponse struct {
	// Код ошибки для программной обработки
	// example: QUEUE_NOT_FOUND
	Code string `json:"code"`

	// Сообщение для пользователя
	// example: Очередь не найдена
	Message string `json:"message"`

	// Подробности (только для доменных ошибок)
	// example: field Email is required
	Details string `json:"details,omitempty"`
}

// TokenResponse представляет пару токенов локального провайдера
type TokenResponse struct {
	// example: eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...
	AccessToken string `json:"access_token"`

	// example: eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...
	RefreshToken string `json:"refresh_token"`
}

// Message пишет SuccessResponse с заданным статусом.
func Message(c *gin.Context, status int, message string) {
	c.JSON(status, SuccessResponse{Message: message})
}

// Abort прерывает запрос с ошибкой без доменного значения.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}
