package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EntryStatus string

const (
	StatusWaiting EntryStatus = "WAITING"
	StatusServed  EntryStatus = "SERVED"
	StatusLeft    EntryStatus = "LEFT"
)

type QueueEntry struct {
	ID        string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	QueueID   string            `gorm:"type:varchar(36);index:idx_entries_queue_status_position,priority:1;not null" json:"queueId"`
	Queue     *Queue            `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID    *string           `gorm:"type:varchar(36);index" json:"userId,omitempty"` // nil — анонимное вступление
	User      *User             `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	UserData  datatypes.JSONMap `json:"userData"`
	Position  int               `gorm:"index:idx_entries_queue_status_position,priority:3;not null" json:"position"` // после SERVED/LEFT не меняется
	Status    EntryStatus       `gorm:"type:varchar(16);index:idx_entries_queue_status_position,priority:2;not null" json:"status"`
	SkipCount int               `gorm:"not null;default:0" json:"skipCount"`
	JoinedAt  time.Time         `gorm:"index;not null" json:"joinedAt"`
	ServedAt  *time.Time        `json:"servedAt,omitempty"`
	LeftAt    *time.Time        `json:"leftAt,omitempty"`
}

func (e *QueueEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

func (e *QueueEntry) Waiting() bool {
	return e.Status == StatusWaiting
}

// Field возвращает строковое значение поля формы по метке (без учёта регистра).
func (e *QueueEntry) Field(label string) string {
	for k, v := range e.UserData {
		if !strings.EqualFold(k, label) {
			continue
		}
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// DisplayName — имя для админки и уведомлений.
func (e *QueueEntry) DisplayName() string {
	for _, label := range []string{"name", "full name", "fullName"} {
		if v := e.Field(label); v != "" {
			return v
		}
	}
	if e.User != nil && e.User.Name != "" {
		return e.User.Name
	}
	return "Anonymous"
}
