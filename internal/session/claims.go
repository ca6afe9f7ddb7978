package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrNoToken = errors.New("нет сохраненного токена")

// Claims данные из токена сервиса. Только для отображения:
// подпись не проверяется, действительность токена определяет сервер.
type Claims struct {
	UserID int    `json:"user_id"`
	Login  string `json:"login"`
	jwt.RegisteredClaims
}

// ExpiresIn оставшееся время жизни токена; ok=false, если срок не указан
func (c *Claims) ExpiresIn(now time.Time) (time.Duration, bool) {
	if c.ExpiresAt == nil {
		return 0, false
	}
	return c.ExpiresAt.Sub(now), true
}

// ParseClaims разбирает токен без проверки подписи
func ParseClaims(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("токен не является JWT: %w", err)
	}
	return claims, nil
}

// Claims разбирает токен текущей сессии
func (s *Store) Claims() (*Claims, error) {
	return ParseClaims(s.Token())
}
