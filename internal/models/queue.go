package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Queue struct {
	ID           string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string        `gorm:"not null" json:"name"`
	Location     string        `json:"location"`
	Category     string        `gorm:"index" json:"category"`
	Description  string        `json:"description"`
	Capacity     int           `gorm:"not null;default:0" json:"capacity"` // 0 — без ограничения
	IsActive     bool          `gorm:"not null" json:"isActive"`
	IsPublic     bool          `gorm:"not null" json:"isPublic"`
	OwnerID      string        `gorm:"type:varchar(36);index;not null" json:"ownerId"`
	CustomFields []CustomField `gorm:"constraint:OnDelete:CASCADE" json:"customFields"`
	CreatedAt    time.Time     `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func (q *Queue) BeforeCreate(*gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// CustomField — поле публичной формы вступления в очередь.
type CustomField struct {
	ID       string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	QueueID  string         `gorm:"type:varchar(36);index;not null" json:"-"`
	Label    string         `gorm:"not null" json:"label"`
	Kind     FieldKind      `gorm:"type:varchar(16);not null" json:"type"`
	Required bool           `gorm:"not null;default:false" json:"required"`
	Options  datatypes.JSON `json:"options,omitempty"` // варианты для select
	Order    int            `gorm:"column:sort_order;not null" json:"order"`
}

func (f *CustomField) BeforeCreate(*gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// OptionList разбирает варианты select-поля.
func (f *CustomField) OptionList() []string {
	if len(f.Options) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(f.Options, &out); err != nil {
		return nil
	}
	return out
}

// SetOptions сохраняет варианты select-поля; пустой список очищает колонку.
func (f *CustomField) SetOptions(options []string) {
	if len(options) == 0 {
		f.Options = nil
		return
	}
	b, _ := json.Marshal(options)
	f.Options = datatypes.JSON(b)
}
