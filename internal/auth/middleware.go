package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"qline/internal/errs"
	"qline/internal/response"
)

// Required пропускает только запросы с валидным access токеном.
func (r *Resolver) Required() gin.HandlerFunc {
	return r.middleware(true)
}

// Optional пропускает анонимов; если токен передан, он обязан быть валидным.
func (r *Resolver) Optional() gin.HandlerFunc {
	return r.middleware(false)
}

func (r *Resolver) middleware(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if required {
				response.Abort(c, http.StatusUnauthorized, "NO_AUTH_HEADER", "Требуется авторизация")
				return
			}
			c.Next()
			return
		}

		id, err := r.Resolve(c.Request.Context(), header)
		if err != nil {
			if !errors.Is(err, errs.ErrUnauthorized) {
				slog.Error("Ошибка определения пользователя", "error", err)
				response.Abort(c, http.StatusInternalServerError, "DB_ERROR", "Ошибка при получении пользователя")
				return
			}
			response.Abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Неверный или просроченный токен")
			return
		}

		WithIdentity(c, id)
		c.Next()
	}
}
