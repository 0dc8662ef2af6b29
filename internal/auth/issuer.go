package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"qline/internal/errs"
	"qline/internal/models"
)

// Issuer — локальный провайдер идентификации: регистрация, вход, обновление токенов.
type Issuer struct {
	db     *gorm.DB
	tokens *Tokens
}

func NewIssuer(db *gorm.DB, tokens *Tokens) *Issuer {
	return &Issuer{db: db, tokens: tokens}
}

func (i *Issuer) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	db := i.db.WithContext(ctx)

	var n int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if n > 0 {
		return nil, errs.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{Name: strings.TrimSpace(name), Email: email, PasswordHash: string(hash)}
	if err := db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (i *Issuer) Login(ctx context.Context, email, password string) (TokenPair, error) {
	var user models.User
	err := i.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TokenPair{}, errs.ErrBadCredentials
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if user.PasswordHash == "" {
		return TokenPair{}, errs.ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, errs.ErrBadCredentials
	}
	return i.tokens.Issue(user.ID, user.Email, user.Name)
}

func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := i.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	var user models.User
	err = i.db.WithContext(ctx).First(&user, "id = ?", claims.Subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TokenPair{}, errs.ErrUserNotFound
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	return i.tokens.Issue(user.ID, user.Email, user.Name)
}
