package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"qline/internal/errs"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{errs.ErrQueueNotFound, http.StatusNotFound, "QUEUE_NOT_FOUND"},
		{errs.ErrEntryNotFound, http.StatusNotFound, "ENTRY_NOT_FOUND"},
		{errs.ErrQueueInactive, http.StatusNotFound, "QUEUE_INACTIVE"},
		{errs.ErrDuplicateEntry, http.StatusBadRequest, "ALREADY_IN_QUEUE"},
		{fmt.Errorf("%w: entry x is SERVED", errs.ErrInvalidState), http.StatusConflict, "INVALID_ENTRY_STATE"},
		{errs.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{errs.ErrQueueFull, http.StatusConflict, "QUEUE_FULL"},
		{fmt.Errorf("%w: field Email is required", errs.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{errors.New("connection refused"), http.StatusInternalServerError, "DB_ERROR"},
	}
	for _, tt := range tests {
		status, resp := Classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, resp.Code, tt.err.Error())
	}
}

func TestClassifyDetails(t *testing.T) {
	_, resp := Classify(fmt.Errorf("%w: field Email is required", errs.ErrValidation))
	assert.Contains(t, resp.Details, "Email")

	_, resp = Classify(errs.ErrQueueNotFound)
	assert.Empty(t, resp.Details)

	_, resp = Classify(errors.New("pq: password authentication failed"))
	assert.Empty(t, resp.Details, "внутренние ошибки не должны утекать клиенту")
}

func TestFromErrorAborts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/queues/x", nil)

	FromError(c, errs.ErrForbidden)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"code":"FORBIDDEN","message":"Недостаточно прав"}`, w.Body.String())
}

func TestMessageAndAbort(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Message(c, http.StatusCreated, "Готово")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"message":"Готово"}`, w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	Abort(c, http.StatusUnauthorized, "NO_AUTH_HEADER", "Требуется авторизация")
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"code":"NO_AUTH_HEADER","message":"Требуется авторизация"}`, w.Body.String())
}
