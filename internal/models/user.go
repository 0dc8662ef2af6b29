package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	ExternalID   *string `gorm:"uniqueIndex" json:"-"` // subject из внешнего провайдера идентификации
	Email        string  `gorm:"uniqueIndex;not null" json:"email"`
	Name         string  `json:"name"`
	PasswordHash string  `json:"-"` // только для пользователей, зарегистрированных локально
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
