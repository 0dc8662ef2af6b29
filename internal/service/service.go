// Package service содержит сценарии работы с очередями поверх sequencer и хранилища.
//
// Сервисы не знают про HTTP: они принимают Identity вызывающего и возвращают
// ошибки из пакета errs. Письма и события отправляются только после коммита.
package service

import (
	"context"

	"qline/internal/auth"
	"qline/internal/config"
	"qline/internal/errs"
	"qline/internal/models"
)

// Notifier — получатель уведомлений участникам очереди.
type Notifier interface {
	QueueJoined(ctx context.Context, to, queueName string, position, waitMinutes int)
	PositionUpdate(ctx context.Context, to, queueName string, position, waitMinutes int)
	YourTurn(ctx context.Context, to, queueName, checkInCode string)
}

type NopNotifier struct{}

func (NopNotifier) QueueJoined(context.Context, string, string, int, int)    {}
func (NopNotifier) PositionUpdate(context.Context, string, string, int, int) {}
func (NopNotifier) YourTurn(context.Context, string, string, string)         {}

// EstimateWait — оценка ожидания в минутах: позиция × минуты на человека, не меньше минимума.
func EstimateWait(position int, p config.QueuePolicy) int {
	wait := position * p.PerPersonMinutes
	if wait < p.MinWaitMinutes {
		return p.MinWaitMinutes
	}
	return wait
}

func requireOwner(q *models.Queue, caller *auth.Identity) error {
	if caller == nil {
		return errs.ErrUnauthorized
	}
	if q.OwnerID != caller.UserID {
		return errs.ErrForbidden
	}
	return nil
}

// contactEmail — адрес для писем: из формы (поле типа email или с меткой email), иначе из профиля.
func contactEmail(e *models.QueueEntry, fields []models.CustomField) string {
	for _, f := range fields {
		if f.Kind == models.FieldEmail {
			if v := e.Field(f.Label); v != "" {
				return v
			}
		}
	}
	if v := e.Field("email"); v != "" {
		return v
	}
	if e.User != nil {
		return e.User.Email
	}
	return ""
}
