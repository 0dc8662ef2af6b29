package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qline/internal/errs"
	"qline/internal/models"
)

// Move описывает перемещение записи. Для serve и leave To совпадает с From:
// позиция замораживается на последнем значении.
type Move struct {
	Entry *models.QueueEntry
	From  int
	To    int
}

type Sequencer struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Sequencer {
	return &Sequencer{db: db, now: time.Now}
}

// WithClock подменяет источник времени.
func (s *Sequencer) WithClock(now func() time.Time) *Sequencer {
	return &Sequencer{db: s.db, now: now}
}

// InQueue выполняет fn в транзакции, удерживая блокировку строки очереди.
// Ошибка fn откатывает все изменения.
func (s *Sequencer) InQueue(ctx context.Context, queueID string, fn func(tx *Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var q models.Queue
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&q, "id = ?", queueID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.ErrQueueNotFound
		}
		if err != nil {
			return fmt.Errorf("lock queue %s: %w", queueID, err)
		}
		return fn(&Tx{db: db, Queue: &q, now: s.now().UTC()})
	})
}

// Join добавляет запись в конец очереди в отдельной транзакции.
func (s *Sequencer) Join(ctx context.Context, queueID string, e *models.QueueEntry) error {
	return s.InQueue(ctx, queueID, func(tx *Tx) error {
		return tx.Append(e)
	})
}

func (s *Sequencer) Serve(ctx context.Context, queueID, entryID string) (Move, error) {
	return s.single(ctx, queueID, entryID, (*Tx).Serve)
}

func (s *Sequencer) Skip(ctx context.Context, queueID, entryID string) (Move, error) {
	return s.single(ctx, queueID, entryID, (*Tx).Skip)
}

func (s *Sequencer) Leave(ctx context.Context, queueID, entryID string) (Move, error) {
	return s.single(ctx, queueID, entryID, (*Tx).Leave)
}

func (s *Sequencer) single(ctx context.Context, queueID, entryID string, op func(*Tx, *models.QueueEntry) (Move, error)) (Move, error) {
	var m Move
	err := s.InQueue(ctx, queueID, func(tx *Tx) error {
		e, err := tx.Entry(entryID)
		if err != nil {
			return err
		}
		m, err = op(tx, e)
		return err
	})
	return m, err
}

// Tx — операции над очередью внутри транзакции InQueue.
type Tx struct {
	db    *gorm.DB
	Queue *models.Queue
	now   time.Time
}

// DB отдаёт транзакционный хэндл для дополнительных чтений в той же транзакции.
func (t *Tx) DB() *gorm.DB {
	return t.db
}

func (t *Tx) Now() time.Time {
	return t.now
}

func (t *Tx) waiting() *gorm.DB {
	return t.db.Model(&models.QueueEntry{}).
		Where("queue_id = ? AND status = ?", t.Queue.ID, models.StatusWaiting)
}

func maxPosition(q *gorm.DB) (int, error) {
	var max int
	if err := q.Select("COALESCE(MAX(position), 0)").Row().Scan(&max); err != nil {
		return 0, fmt.Errorf("max position: %w", err)
	}
	return max, nil
}

// NextPosition возвращает позицию для новой записи: максимум среди ожидающих + 1.
func (t *Tx) NextPosition() (int, error) {
	max, err := maxPosition(t.waiting())
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (t *Tx) WaitingCount() (int64, error) {
	var n int64
	if err := t.waiting().Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count waiting: %w", err)
	}
	return n, nil
}

// Waiting возвращает ожидающие записи по возрастанию позиции.
func (t *Tx) Waiting() ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	if err := t.waiting().Order("position ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list waiting: %w", err)
	}
	return entries, nil
}

// Append ставит запись в конец очереди со статусом WAITING.
func (t *Tx) Append(e *models.QueueEntry) error {
	pos, err := t.NextPosition()
	if err != nil {
		return err
	}
	e.QueueID = t.Queue.ID
	e.Position = pos
	e.Status = models.StatusWaiting
	e.JoinedAt = t.now
	e.ServedAt, e.LeftAt = nil, nil
	if err := t.db.Omit(clause.Associations).Create(e).Error; err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// Entry загружает запись этой очереди с блокировкой строки.
func (t *Tx) Entry(entryID string) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND queue_id = ?", entryID, t.Queue.ID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load entry %s: %w", entryID, err)
	}
	return &e, nil
}

// compactAfter сдвигает на одну позицию вперёд всех ожидающих после pos.
func (t *Tx) compactAfter(pos int, exceptID string) error {
	err := t.waiting().
		Where("position > ? AND id <> ?", pos, exceptID).
		UpdateColumn("position", gorm.Expr("position - 1")).Error
	if err != nil {
		return fmt.Errorf("compact after %d: %w", pos, err)
	}
	return nil
}

// Serve отмечает запись обслуженной и закрывает образовавшийся пропуск.
func (t *Tx) Serve(e *models.QueueEntry) (Move, error) {
	if err := t.checkWaiting(e); err != nil {
		return Move{}, err
	}
	now := t.now
	if err := t.finish(e, map[string]any{"status": models.StatusServed, "served_at": now}); err != nil {
		return Move{}, err
	}
	e.Status, e.ServedAt = models.StatusServed, &now
	return Move{Entry: e, From: e.Position, To: e.Position}, nil
}

// Leave отмечает запись покинувшей очередь и закрывает пропуск.
func (t *Tx) Leave(e *models.QueueEntry) (Move, error) {
	if err := t.checkWaiting(e); err != nil {
		return Move{}, err
	}
	now := t.now
	if err := t.finish(e, map[string]any{"status": models.StatusLeft, "left_at": now}); err != nil {
		return Move{}, err
	}
	e.Status, e.LeftAt = models.StatusLeft, &now
	return Move{Entry: e, From: e.Position, To: e.Position}, nil
}

func (t *Tx) finish(e *models.QueueEntry, changes map[string]any) error {
	if err := t.db.Model(&models.QueueEntry{}).Where("id = ?", e.ID).UpdateColumns(changes).Error; err != nil {
		return fmt.Errorf("update entry %s: %w", e.ID, err)
	}
	return t.compactAfter(e.Position, e.ID)
}

// Skip переносит запись в конец очереди. Сначала закрывается пропуск на старом
// месте, затем запись получает максимум оставшихся + 1, поэтому в очереди
// не бывает двух записей с одной позицией после коммита.
func (t *Tx) Skip(e *models.QueueEntry) (Move, error) {
	if err := t.checkWaiting(e); err != nil {
		return Move{}, err
	}
	from := e.Position
	if err := t.compactAfter(from, e.ID); err != nil {
		return Move{}, err
	}
	max, err := maxPosition(t.waiting().Where("id <> ?", e.ID))
	if err != nil {
		return Move{}, err
	}
	to := max + 1
	err = t.db.Model(&models.QueueEntry{}).Where("id = ?", e.ID).UpdateColumns(map[string]any{
		"position":   to,
		"skip_count": gorm.Expr("skip_count + 1"),
	}).Error
	if err != nil {
		return Move{}, fmt.Errorf("move entry %s: %w", e.ID, err)
	}
	e.Position = to
	e.SkipCount++
	return Move{Entry: e, From: from, To: to}, nil
}

func (t *Tx) checkWaiting(e *models.QueueEntry) error {
	if e.QueueID != t.Queue.ID {
		return errs.ErrEntryNotFound
	}
	if !e.Waiting() {
		return fmt.Errorf("%w: entry %s is %s", errs.ErrInvalidState, e.ID, e.Status)
	}
	return nil
}
