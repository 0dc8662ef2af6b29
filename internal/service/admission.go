package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"qline/internal/auth"
	"qline/internal/config"
	"qline/internal/errs"
	"qline/internal/events"
	"qline/internal/models"
	"qline/internal/sequencer"
)

type JoinRequest struct {
	QueueID  string
	Fields   map[string]any
	Identity *auth.Identity // nil — анонимное вступление
}

type JoinResult struct {
	EntryID       string
	QueueID       string
	Position      int
	JoinedAt      time.Time
	EstimatedWait int // минуты
}

// AdmissionService принимает новых участников в очередь.
type AdmissionService struct {
	seq      *sequencer.Sequencer
	notifier Notifier
	events   events.Publisher
	policy   config.QueuePolicy
	validate *validator.Validate
	log      *slog.Logger
}

func NewAdmissionService(seq *sequencer.Sequencer, n Notifier, pub events.Publisher, policy config.QueuePolicy, log *slog.Logger) *AdmissionService {
	return &AdmissionService{
		seq:      seq,
		notifier: n,
		events:   pub,
		policy:   policy,
		validate: newValidator(),
		log:      log.With("component", "admission"),
	}
}

// Join ставит вызывающего в конец очереди. Проверка дубликатов, вместимости
// и выдача позиции выполняются в одной транзакции с блокировкой очереди.
func (s *AdmissionService) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	var (
		entry  models.QueueEntry
		queue  models.Queue
		fields []models.CustomField
	)
	err := s.seq.InQueue(ctx, req.QueueID, func(tx *sequencer.Tx) error {
		if !tx.Queue.IsActive {
			return errs.ErrQueueInactive
		}
		var err error
		if fields, err = queueFields(tx); err != nil {
			return err
		}
		data, err := validateFields(s.validate, fields, req.Fields, true)
		if err != nil {
			return err
		}
		entry = models.QueueEntry{UserData: data}

		if req.Identity != nil {
			if err := s.rejectWaitingUser(tx, req.Identity.UserID); err != nil {
				return err
			}
			uid := req.Identity.UserID
			entry.UserID = &uid
		} else if s.policy.AnonDedupByContact {
			if err := rejectWaitingContact(tx, &entry, fields); err != nil {
				return err
			}
		}
		if err := checkCapacity(tx); err != nil {
			return err
		}
		if err := tx.Append(&entry); err != nil {
			return err
		}
		queue = *tx.Queue
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &JoinResult{
		EntryID:       entry.ID,
		QueueID:       queue.ID,
		Position:      entry.Position,
		JoinedAt:      entry.JoinedAt,
		EstimatedWait: EstimateWait(entry.Position, s.policy),
	}
	s.log.Info("Участник встал в очередь", "queue_id", queue.ID, "entry_id", entry.ID, "position", entry.Position)

	to := contactEmail(&entry, fields)
	if to == "" && req.Identity != nil {
		to = req.Identity.Email
	}
	if to != "" {
		s.notifier.QueueJoined(ctx, to, queue.Name, res.Position, res.EstimatedWait)
	}
	s.events.Publish(ctx, events.Event{
		Type:     events.EntryJoined,
		QueueID:  queue.ID,
		EntryID:  entry.ID,
		Position: entry.Position,
		Waiting:  entry.Position,
		At:       entry.JoinedAt,
	})
	return res, nil
}

// AddWalkIn — владелец добавляет человека без аккаунта (например, пришедшего лично).
// Работает и для неактивной очереди; обязательность полей не проверяется.
func (s *AdmissionService) AddWalkIn(ctx context.Context, queueID string, submitted map[string]any, caller *auth.Identity) (*JoinResult, error) {
	var entry models.QueueEntry
	err := s.seq.InQueue(ctx, queueID, func(tx *sequencer.Tx) error {
		if err := requireOwner(tx.Queue, caller); err != nil {
			return err
		}
		fields, err := queueFields(tx)
		if err != nil {
			return err
		}
		data, err := validateFields(s.validate, fields, submitted, false)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return fmt.Errorf("%w: пустые данные участника", errs.ErrValidation)
		}
		if err := checkCapacity(tx); err != nil {
			return err
		}
		entry = models.QueueEntry{UserData: data}
		return tx.Append(&entry)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Владелец добавил участника", "queue_id", queueID, "entry_id", entry.ID, "position", entry.Position)
	s.events.Publish(ctx, events.Event{
		Type:     events.EntryJoined,
		QueueID:  queueID,
		EntryID:  entry.ID,
		Position: entry.Position,
		Waiting:  entry.Position,
		At:       entry.JoinedAt,
	})
	return &JoinResult{
		EntryID:       entry.ID,
		QueueID:       queueID,
		Position:      entry.Position,
		JoinedAt:      entry.JoinedAt,
		EstimatedWait: EstimateWait(entry.Position, s.policy),
	}, nil
}

func queueFields(tx *sequencer.Tx) ([]models.CustomField, error) {
	var fields []models.CustomField
	if err := tx.DB().Where("queue_id = ?", tx.Queue.ID).Order("sort_order ASC").Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	return fields, nil
}

func (s *AdmissionService) rejectWaitingUser(tx *sequencer.Tx, userID string) error {
	var n int64
	err := tx.DB().Model(&models.QueueEntry{}).
		Where("queue_id = ? AND user_id = ? AND status = ?", tx.Queue.ID, userID, models.StatusWaiting).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if n > 0 {
		return errs.ErrDuplicateEntry
	}
	return nil
}

// rejectWaitingContact сравнивает email из формы с ожидающими записями очереди.
func rejectWaitingContact(tx *sequencer.Tx, entry *models.QueueEntry, fields []models.CustomField) error {
	email := contactEmail(entry, fields)
	if email == "" {
		return nil
	}
	waiting, err := tx.Waiting()
	if err != nil {
		return err
	}
	for i := range waiting {
		if strings.EqualFold(contactEmail(&waiting[i], fields), email) {
			return errs.ErrDuplicateEntry
		}
	}
	return nil
}

func checkCapacity(tx *sequencer.Tx) error {
	if tx.Queue.Capacity <= 0 {
		return nil
	}
	n, err := tx.WaitingCount()
	if err != nil {
		return err
	}
	if n >= int64(tx.Queue.Capacity) {
		return errs.ErrQueueFull
	}
	return nil
}
