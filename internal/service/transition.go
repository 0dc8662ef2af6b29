package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"qline/internal/auth"
	"qline/internal/config"
	"qline/internal/errs"
	"qline/internal/events"
	"qline/internal/models"
	"qline/internal/notify"
	"qline/internal/sequencer"
)

type Action string

const (
	ActionServe Action = "serve"
	ActionSkip  Action = "skip"
	ActionLeave Action = "leave"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionServe, ActionSkip:
		return a, nil
	}
	return "", fmt.Errorf("%w: неизвестное действие %q, ожидается serve или skip", errs.ErrValidation, s)
}

type TransitionResult struct {
	EntryID     string
	UserName    string
	Action      Action
	OldPosition int
	NewPosition int
}

// TransitionService — обслуживание, пропуск и выход из очереди.
type TransitionService struct {
	db       *gorm.DB
	seq      *sequencer.Sequencer
	notifier Notifier
	events   events.Publisher
	policy   config.QueuePolicy
	log      *slog.Logger
}

func NewTransitionService(db *gorm.DB, seq *sequencer.Sequencer, n Notifier, pub events.Publisher, policy config.QueuePolicy, log *slog.Logger) *TransitionService {
	return &TransitionService{db: db, seq: seq, notifier: n, events: pub, policy: policy, log: log.With("component", "transition")}
}

// Apply выполняет действие владельца очереди над записью.
func (s *TransitionService) Apply(ctx context.Context, queueID, entryID string, action Action, caller *auth.Identity) (*TransitionResult, error) {
	switch action {
	case ActionServe:
		return s.Serve(ctx, queueID, entryID, caller)
	case ActionSkip:
		return s.Skip(ctx, queueID, entryID, caller)
	case ActionLeave:
		return s.Leave(ctx, queueID, entryID, caller)
	}
	return nil, fmt.Errorf("%w: неизвестное действие %q", errs.ErrValidation, action)
}

func (s *TransitionService) Serve(ctx context.Context, queueID, entryID string, caller *auth.Identity) (*TransitionResult, error) {
	return s.apply(ctx, queueID, entryID, caller, ActionServe, ownerOnly, (*sequencer.Tx).Serve)
}

func (s *TransitionService) Skip(ctx context.Context, queueID, entryID string, caller *auth.Identity) (*TransitionResult, error) {
	return s.apply(ctx, queueID, entryID, caller, ActionSkip, ownerOnly, (*sequencer.Tx).Skip)
}

// Leave доступен владельцу очереди и самому участнику.
func (s *TransitionService) Leave(ctx context.Context, queueID, entryID string, caller *auth.Identity) (*TransitionResult, error) {
	return s.apply(ctx, queueID, entryID, caller, ActionLeave, ownerOrSelf, (*sequencer.Tx).Leave)
}

type authorizeFunc func(q *models.Queue, e *models.QueueEntry, caller *auth.Identity) error

// ownerOnly проверяется до загрузки записи, чтобы чужой не узнал о её существовании.
func ownerOnly(q *models.Queue, _ *models.QueueEntry, caller *auth.Identity) error {
	return requireOwner(q, caller)
}

func ownerOrSelf(q *models.Queue, e *models.QueueEntry, caller *auth.Identity) error {
	if caller == nil {
		return errs.ErrUnauthorized
	}
	if q.OwnerID == caller.UserID {
		return nil
	}
	if e == nil {
		return nil // решим после загрузки записи
	}
	if e.UserID != nil && *e.UserID == caller.UserID {
		return nil
	}
	return errs.ErrForbidden
}

// promoted — участник, поднявшийся в верх очереди.
type promoted struct {
	email    string
	position int
}

func (s *TransitionService) apply(
	ctx context.Context,
	queueID, entryID string,
	caller *auth.Identity,
	action Action,
	authorize authorizeFunc,
	op func(*sequencer.Tx, *models.QueueEntry) (sequencer.Move, error),
) (*TransitionResult, error) {
	var (
		move    sequencer.Move
		queue   models.Queue
		fields  []models.CustomField
		moved   []promoted
		waiting int64
	)
	err := s.seq.InQueue(ctx, queueID, func(tx *sequencer.Tx) error {
		if err := authorize(tx.Queue, nil, caller); err != nil {
			return err
		}
		e, err := tx.Entry(entryID)
		if err != nil {
			return err
		}
		if err := authorize(tx.Queue, e, caller); err != nil {
			return err
		}
		if move, err = op(tx, e); err != nil {
			return err
		}
		if e.UserID != nil {
			var u models.User
			if err := tx.DB().First(&u, "id = ?", *e.UserID).Error; err == nil {
				e.User = &u
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("load entry user: %w", err)
			}
		}
		if fields, err = queueFields(tx); err != nil {
			return err
		}
		if moved, err = s.promotedEntries(tx, move, fields); err != nil {
			return err
		}
		if waiting, err = tx.WaitingCount(); err != nil {
			return err
		}
		queue = *tx.Queue
		return nil
	})
	if err != nil {
		return nil, err
	}

	e := move.Entry
	res := &TransitionResult{
		EntryID:     e.ID,
		UserName:    e.DisplayName(),
		Action:      action,
		OldPosition: move.From,
		NewPosition: move.To,
	}
	s.log.Info("Изменение записи очереди",
		"action", action,
		"queue_id", queueID,
		"entry_id", e.ID,
		"from", move.From,
		"to", move.To,
	)

	if to := contactEmail(e, fields); action == ActionServe && to != "" {
		s.notifier.YourTurn(ctx, to, queue.Name, notify.CheckInCode(queue.ID, move.From))
	}
	for _, p := range moved {
		s.notifier.PositionUpdate(ctx, p.email, queue.Name, p.position, EstimateWait(p.position, s.policy))
	}
	s.events.Publish(ctx, events.Event{
		Type:        eventType(action),
		QueueID:     queueID,
		EntryID:     e.ID,
		Position:    move.To,
		OldPosition: move.From,
		Waiting:     int(waiting),
		At:          time.Now().UTC(),
	})
	return res, nil
}

// promotedEntries — ожидающие, сдвинувшиеся вперёд и оказавшиеся в пределах порога уведомления.
func (s *TransitionService) promotedEntries(tx *sequencer.Tx, m sequencer.Move, fields []models.CustomField) ([]promoted, error) {
	threshold := s.policy.PositionNotifyThreshold
	if threshold <= 0 || m.From > threshold {
		return nil, nil
	}
	var entries []models.QueueEntry
	err := tx.DB().Preload("User").
		Where("queue_id = ? AND status = ? AND position >= ? AND position <= ? AND id <> ?",
			tx.Queue.ID, models.StatusWaiting, m.From, threshold, m.Entry.ID).
		Order("position ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load promoted entries: %w", err)
	}
	out := make([]promoted, 0, len(entries))
	for i := range entries {
		if email := contactEmail(&entries[i], fields); email != "" {
			out = append(out, promoted{email: email, position: entries[i].Position})
		}
	}
	return out, nil
}

func eventType(a Action) events.Type {
	switch a {
	case ActionServe:
		return events.EntryServed
	case ActionSkip:
		return events.EntrySkipped
	default:
		return events.EntryLeft
	}
}

// EntryView — строка списка ожидающих для владельца очереди.
type EntryView struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	Position  int            `json:"position"`
	WaitTime  int            `json:"waitTime"` // минуты
	JoinedAt  time.Time      `json:"joinedAt"`
	Notes     string         `json:"notes"`
	SkipCount int            `json:"skipCount"`
	UserData  map[string]any `json:"userData"`
}

// Waiting возвращает ожидающих по порядку позиций. Только для владельца.
func (s *TransitionService) Waiting(ctx context.Context, queueID string, caller *auth.Identity) ([]EntryView, error) {
	db := s.db.WithContext(ctx)
	var q models.Queue
	if err := db.First(&q, "id = ?", queueID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrQueueNotFound
		}
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if err := requireOwner(&q, caller); err != nil {
		return nil, err
	}
	var fields []models.CustomField
	if err := db.Where("queue_id = ?", q.ID).Order("sort_order ASC").Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	var entries []models.QueueEntry
	err := db.Preload("User").
		Where("queue_id = ? AND status = ?", q.ID, models.StatusWaiting).
		Order("position ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	out := make([]EntryView, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		notes := e.Field("notes")
		if notes == "" {
			notes = e.Field("specialRequests")
		}
		out = append(out, EntryView{
			ID:        e.ID,
			Name:      e.DisplayName(),
			Email:     contactEmail(e, fields),
			Phone:     e.Field("phone"),
			Position:  e.Position,
			WaitTime:  e.Position * s.policy.PerPersonMinutes,
			JoinedAt:  e.JoinedAt,
			Notes:     notes,
			SkipCount: e.SkipCount,
			UserData:  e.UserData,
		})
	}
	return out, nil
}
