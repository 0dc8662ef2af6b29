package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qline/internal/errs"
	"qline/internal/models"
)

// Identity — пользователь, от имени которого выполняется запрос.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

const identityKey = "identity"

// FromContext возвращает личность, положенную middleware, или nil для анонима.
func FromContext(c *gin.Context) *Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*Identity)
	return id
}

// WithIdentity кладёт личность в контекст gin.
func WithIdentity(c *gin.Context, id *Identity) {
	c.Set(identityKey, id)
}

// Resolver превращает Bearer-токен в Identity.
//
// Subject токена — либо id локального пользователя, либо идентификатор во
// внешнем провайдере. Во втором случае пользователь заводится по email при
// первом обращении.
type Resolver struct {
	db     *gorm.DB
	tokens *Tokens
}

func NewResolver(db *gorm.DB, tokens *Tokens) *Resolver {
	return &Resolver{db: db, tokens: tokens}
}

// Resolve возвращает nil без ошибки, если заголовок пуст.
func (r *Resolver) Resolve(ctx context.Context, header string) (*Identity, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	claims, err := r.tokens.ParseAccess(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	user, err := r.lookup(ctx, claims)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: user.ID, Email: user.Email, Name: user.Name}, nil
}

func (r *Resolver) lookup(ctx context.Context, c *Claims) (*models.User, error) {
	db := r.db.WithContext(ctx)
	var user models.User
	err := db.Where("id = ? OR external_id = ?", c.Subject, c.Subject).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if c.Email == "" {
		return nil, fmt.Errorf("%w: unknown subject", errs.ErrUnauthorized)
	}

	subject := c.Subject
	email := strings.ToLower(c.Email)
	user = models.User{ExternalID: &subject, Email: email, Name: c.Name}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", email, err)
	}
	// существующий аккаунт привязывается, только если он ещё не связан с другим subject
	err = db.Model(&models.User{}).
		Where("email = ? AND external_id IS NULL", email).
		Update("external_id", subject).Error
	if err != nil {
		return nil, fmt.Errorf("link user %s: %w", email, err)
	}
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	if user.ExternalID == nil || *user.ExternalID != subject {
		return nil, fmt.Errorf("%w: email %s linked to another subject", errs.ErrUnauthorized, email)
	}
	return &user, nil
}
