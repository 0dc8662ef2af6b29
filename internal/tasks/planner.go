// Package tasks содержит периодические задачи сервиса.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"qline/internal/errs"
	"qline/internal/events"
	"qline/internal/models"
	"qline/internal/sequencer"
)

// ExpireSpec — раз в 5 минут, формат с секундами.
const ExpireSpec = "0 */5 * * * *"

// Scheduler снимает с очереди записи, которые ждут дольше maxAge.
type Scheduler struct {
	cron   *cron.Cron
	db     *gorm.DB
	seq    *sequencer.Sequencer
	events events.Publisher
	maxAge time.Duration
	now    func() time.Time
	log    *slog.Logger
}

func NewScheduler(db *gorm.DB, seq *sequencer.Sequencer, pub events.Publisher, maxAge time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		db:     db,
		seq:    seq,
		events: pub,
		maxAge: maxAge,
		now:    time.Now,
		log:    log.With("component", "scheduler"),
	}
}

// Start регистрирует задачи и запускает планировщик. При maxAge == 0 задач нет.
func (s *Scheduler) Start() error {
	if s.maxAge > 0 {
		_, err := s.cron.AddFunc(ExpireSpec, func() {
			if _, err := s.ExpireStale(context.Background()); err != nil {
				s.log.Error("Ошибка снятия устаревших записей", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule expire job: %w", err)
		}
	}
	s.cron.Start()
	s.log.Info("Cron-планировщик запущен", "entry_max_age", s.maxAge)
	return nil
}

// Stop останавливает планировщик и ждёт завершения выполняющихся задач.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// ExpireStale переводит в LEFT ожидающие записи старше maxAge и возвращает их число.
// Каждая запись снимается отдельной транзакцией через Sequencer, поэтому позиции
// остальных сжимаются так же, как при обычном выходе.
func (s *Scheduler) ExpireStale(ctx context.Context) (int, error) {
	if s.maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-s.maxAge)

	var stale []models.QueueEntry
	err := s.db.WithContext(ctx).Select("id", "queue_id").
		Where("status = ? AND joined_at < ?", models.StatusWaiting, cutoff).
		Order("queue_id, position DESC").
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("find stale entries: %w", err)
	}

	expired := 0
	for _, e := range stale {
		move, err := s.seq.Leave(ctx, e.QueueID, e.ID)
		switch {
		case errors.Is(err, errs.ErrInvalidState), errs.IsNotFound(err):
			// запись успели обслужить или удалить
			continue
		case err != nil:
			return expired, fmt.Errorf("expire entry %s: %w", e.ID, err)
		}
		expired++
		s.events.Publish(ctx, events.Event{
			Type:        events.EntryLeft,
			QueueID:     e.QueueID,
			EntryID:     e.ID,
			Position:    move.To,
			OldPosition: move.From,
			At:          s.now().UTC(),
		})
	}
	if expired > 0 {
		s.log.Info("Сняты устаревшие записи", "count", expired, "cutoff", cutoff)
	}
	return expired, nil
}
