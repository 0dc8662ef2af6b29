package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"qline/internal/auth"
	"qline/internal/config"
	"qline/internal/errs"
	"qline/internal/events"
	"qline/internal/models"
	"qline/internal/sequencer"
)

type FieldInput struct {
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

type QueueInput struct {
	Name         string       `json:"name" binding:"required"`
	Location     string       `json:"location"`
	Category     string       `json:"category"`
	Description  string       `json:"description"`
	Capacity     int          `json:"capacity" binding:"gte=0"`
	IsActive     *bool        `json:"isActive"`
	IsPublic     *bool        `json:"isPublic"`
	CustomFields []FieldInput `json:"customFields"`
}

// QueuePatch — частичное обновление; nil означает «не менять».
// CustomFields, если передан, заменяет набор полей целиком.
type QueuePatch struct {
	Name         *string       `json:"name" binding:"omitnil,min=1"`
	Location     *string       `json:"location"`
	Category     *string       `json:"category"`
	Description  *string       `json:"description"`
	Capacity     *int          `json:"capacity" binding:"omitnil,gte=0"`
	IsActive     *bool         `json:"isActive"`
	IsPublic     *bool         `json:"isPublic"`
	CustomFields *[]FieldInput `json:"customFields"`
}

type ListFilter struct {
	Search   string
	Category string
	SortBy   string // createdAt (по умолчанию) или waitTime
}

// QueueSummary — очередь с текущей загрузкой.
type QueueSummary struct {
	models.Queue
	PeopleInQueue int  `json:"peopleInQueue"`
	WaitTime      int  `json:"waitTime"` // минуты
	IsPopular     bool `json:"isPopular"`
}

// QueueDetail — очередь с полями формы для страницы вступления.
type QueueDetail struct {
	QueueSummary
	RequiredFields []models.CustomField `json:"requiredFields"`
}

const popularThreshold = 10

// LifecycleService — создание, изменение, удаление и чтение очередей.
type LifecycleService struct {
	db       *gorm.DB
	seq      *sequencer.Sequencer
	events   events.Publisher
	policy   config.QueuePolicy
	validate *validator.Validate
	log      *slog.Logger
}

func NewLifecycleService(db *gorm.DB, seq *sequencer.Sequencer, pub events.Publisher, policy config.QueuePolicy, log *slog.Logger) *LifecycleService {
	return &LifecycleService{
		db:       db,
		seq:      seq,
		events:   pub,
		policy:   policy,
		validate: newValidator(),
		log:      log.With("component", "lifecycle"),
	}
}

func buildFields(in []FieldInput) ([]models.CustomField, error) {
	seen := make(map[string]bool, len(in))
	out := make([]models.CustomField, 0, len(in))
	for i, f := range in {
		label := strings.TrimSpace(f.Label)
		if label == "" {
			return nil, fmt.Errorf("%w: у поля %d нет названия", errs.ErrValidation, i+1)
		}
		key := strings.ToLower(label)
		if seen[key] {
			return nil, fmt.Errorf("%w: поле %q указано дважды", errs.ErrValidation, label)
		}
		seen[key] = true

		kind, err := models.ParseFieldKind(f.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: поле %q: %v", errs.ErrValidation, label, err)
		}
		cf := models.CustomField{Label: label, Kind: kind, Required: f.Required, Order: i}
		if kind == models.FieldSelect {
			var opts []string
			for _, o := range f.Options {
				if strings.Contains(o, "'") {
					return nil, fmt.Errorf("%w: вариант %q поля %q содержит апостроф", errs.ErrValidation, o, label)
				}
				if o = strings.TrimSpace(o); o != "" {
					opts = append(opts, o)
				}
			}
			if len(opts) == 0 {
				return nil, fmt.Errorf("%w: у поля %q нет вариантов выбора", errs.ErrValidation, label)
			}
			cf.SetOptions(opts)
		}
		out = append(out, cf)
	}
	return out, nil
}

func (s *LifecycleService) Create(ctx context.Context, owner *auth.Identity, in QueueInput) (*models.Queue, error) {
	if owner == nil {
		return nil, errs.ErrUnauthorized
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	fields, err := buildFields(in.CustomFields)
	if err != nil {
		return nil, err
	}
	q := &models.Queue{
		Name:         in.Name,
		Location:     strings.TrimSpace(in.Location),
		Category:     strings.TrimSpace(in.Category),
		Description:  strings.TrimSpace(in.Description),
		Capacity:     in.Capacity,
		IsActive:     boolOr(in.IsActive, true),
		IsPublic:     boolOr(in.IsPublic, true),
		OwnerID:      owner.UserID,
		CustomFields: fields,
	}
	if err := s.db.WithContext(ctx).Create(q).Error; err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}
	s.log.Info("Очередь создана", "queue_id", q.ID, "owner_id", q.OwnerID)
	s.events.Publish(ctx, events.Event{Type: events.QueueCreated, QueueID: q.ID, At: q.CreatedAt})
	return q, nil
}

// Update изменяет очередь под той же блокировкой, что и операции с позициями.
func (s *LifecycleService) Update(ctx context.Context, id string, caller *auth.Identity, p QueuePatch) (*models.Queue, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
	}
	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	var q models.Queue
	err := s.seq.InQueue(ctx, id, func(tx *sequencer.Tx) error {
		if err := requireOwner(tx.Queue, caller); err != nil {
			return err
		}
		changes := map[string]any{}
		if p.Name != nil {
			changes["name"] = *p.Name
		}
		if p.Location != nil {
			changes["location"] = strings.TrimSpace(*p.Location)
		}
		if p.Category != nil {
			changes["category"] = strings.TrimSpace(*p.Category)
		}
		if p.Description != nil {
			changes["description"] = strings.TrimSpace(*p.Description)
		}
		if p.Capacity != nil {
			changes["capacity"] = *p.Capacity
		}
		if p.IsActive != nil {
			changes["is_active"] = *p.IsActive
		}
		if p.IsPublic != nil {
			changes["is_public"] = *p.IsPublic
		}

		db := tx.DB()
		if len(changes) > 0 {
			changes["updated_at"] = tx.Now()
			if err := db.Model(&models.Queue{}).Where("id = ?", id).Updates(changes).Error; err != nil {
				return fmt.Errorf("update queue: %w", err)
			}
		}
		if p.CustomFields != nil {
			fields, err := buildFields(*p.CustomFields)
			if err != nil {
				return err
			}
			if err := db.Where("queue_id = ?", id).Delete(&models.CustomField{}).Error; err != nil {
				return fmt.Errorf("delete fields: %w", err)
			}
			for i := range fields {
				fields[i].QueueID = id
			}
			if len(fields) > 0 {
				if err := db.Create(&fields).Error; err != nil {
					return fmt.Errorf("create fields: %w", err)
				}
			}
		}
		return db.Preload("CustomFields", orderedFields).First(&q, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Очередь изменена", "queue_id", id)
	s.events.Publish(ctx, events.Event{Type: events.QueueUpdated, QueueID: id, At: q.UpdatedAt})
	return &q, nil
}

// Delete удаляет очередь вместе с записями и полями одной транзакцией.
func (s *LifecycleService) Delete(ctx context.Context, id string, caller *auth.Identity) error {
	err := s.seq.InQueue(ctx, id, func(tx *sequencer.Tx) error {
		if err := requireOwner(tx.Queue, caller); err != nil {
			return err
		}
		db := tx.DB()
		if err := db.Where("queue_id = ?", id).Delete(&models.QueueEntry{}).Error; err != nil {
			return fmt.Errorf("delete entries: %w", err)
		}
		if err := db.Where("queue_id = ?", id).Delete(&models.CustomField{}).Error; err != nil {
			return fmt.Errorf("delete fields: %w", err)
		}
		if err := db.Delete(&models.Queue{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete queue: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("Очередь удалена", "queue_id", id)
	s.events.Publish(ctx, events.Event{Type: events.QueueDeleted, QueueID: id, At: time.Now().UTC()})
	return nil
}

func orderedFields(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC")
}

// Get возвращает очередь с полями формы и текущей загрузкой.
func (s *LifecycleService) Get(ctx context.Context, id string) (*QueueDetail, error) {
	db := s.db.WithContext(ctx)
	var q models.Queue
	err := db.Preload("CustomFields", orderedFields).First(&q, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrQueueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	counts, err := waitingCounts(db, []string{q.ID})
	if err != nil {
		return nil, err
	}
	return &QueueDetail{
		QueueSummary:   s.summary(q, counts[q.ID]),
		RequiredFields: q.CustomFields,
	}, nil
}

// ListPublic — активные публичные очереди для каталога.
func (s *LifecycleService) ListPublic(ctx context.Context, f ListFilter) ([]QueueSummary, error) {
	db := s.db.WithContext(ctx)
	query := db.Model(&models.Queue{}).Where("is_active = ? AND is_public = ?", true, true)
	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(location) LIKE ?", like, like)
	}
	if c := strings.TrimSpace(f.Category); c != "" && !strings.EqualFold(c, "all") {
		query = query.Where("category = ?", c)
	}
	var queues []models.Queue
	if err := query.Order("created_at DESC").Find(&queues).Error; err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	return s.summaries(db, queues, f.SortBy)
}

// ListOwned — очереди владельца, включая неактивные и скрытые.
func (s *LifecycleService) ListOwned(ctx context.Context, owner *auth.Identity) ([]QueueSummary, error) {
	if owner == nil {
		return nil, errs.ErrUnauthorized
	}
	db := s.db.WithContext(ctx)
	var queues []models.Queue
	err := db.Preload("CustomFields", orderedFields).
		Where("owner_id = ?", owner.UserID).
		Order("created_at DESC").
		Find(&queues).Error
	if err != nil {
		return nil, fmt.Errorf("list owned queues: %w", err)
	}
	return s.summaries(db, queues, "")
}

func (s *LifecycleService) summaries(db *gorm.DB, queues []models.Queue, sortBy string) ([]QueueSummary, error) {
	ids := make([]string, len(queues))
	for i := range queues {
		ids[i] = queues[i].ID
	}
	counts, err := waitingCounts(db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]QueueSummary, len(queues))
	for i, q := range queues {
		out[i] = s.summary(q, counts[q.ID])
	}
	if sortBy == "waitTime" {
		sort.SliceStable(out, func(i, j int) bool { return out[i].PeopleInQueue < out[j].PeopleInQueue })
	}
	return out, nil
}

func (s *LifecycleService) summary(q models.Queue, waiting int) QueueSummary {
	return QueueSummary{
		Queue:         q,
		PeopleInQueue: waiting,
		WaitTime:      EstimateWait(waiting, s.policy),
		IsPopular:     waiting > popularThreshold,
	}
}

// waitingCounts считает ожидающих по очередям одним запросом.
func waitingCounts(db *gorm.DB, queueIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(queueIDs))
	if len(queueIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		QueueID string
		N       int
	}
	err := db.Model(&models.QueueEntry{}).
		Select("queue_id, COUNT(*) AS n").
		Where("queue_id IN ? AND status = ?", queueIDs, models.StatusWaiting).
		Group("queue_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count waiting: %w", err)
	}
	for _, r := range rows {
		counts[r.QueueID] = r.N
	}
	return counts, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
