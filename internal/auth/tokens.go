package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims — содержимое access и refresh токенов.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Kind  string `json:"typ"`
	jwt.RegisteredClaims
}

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// TokenPair — пара токенов, выдаваемая при входе и обновлении.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Tokens подписывает и проверяет HS256-токены.
type Tokens struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokens(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// Issue выдаёт пару токенов для пользователя.
func (t *Tokens) Issue(userID, email, name string) (TokenPair, error) {
	access, err := t.sign(Claims{Email: email, Name: name, Kind: kindAccess}, userID, t.accessTTL, t.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := t.sign(Claims{Kind: kindRefresh}, userID, t.refreshTTL, t.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *Tokens) sign(c Claims, subject string, ttl time.Duration, secret []byte) (string, error) {
	now := t.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// ParseAccess проверяет access токен.
func (t *Tokens) ParseAccess(raw string) (*Claims, error) {
	return t.parse(raw, t.accessSecret, kindAccess)
}

// ParseRefresh проверяет refresh токен.
func (t *Tokens) ParseRefresh(raw string) (*Claims, error) {
	return t.parse(raw, t.refreshSecret, kindRefresh)
}

func (t *Tokens) parse(raw string, secret []byte, kind string) (*Claims, error) {
	var c Claims
	token, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	if c.Kind != kind {
		return nil, fmt.Errorf("expected %s token, got %q", kind, c.Kind)
	}
	if c.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &c, nil
}
