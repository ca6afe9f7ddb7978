package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrExpiredToken       = errors.New("token has expired")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const DefaultJWTSecret = "default-jwt-secret-for-calculator-app"

type contextKey string

const userIDKey contextKey = "userID"

type Claims struct {
	UserID int    `json:"user_id"`
	Login  string `json:"login"`
	jwt.RegisteredClaims
}

// Tokens выпуск и проверка JWT
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if secret == "" {
		secret = DefaultJWTSecret
	}
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

func (t *Tokens) Generate(userID int, login string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Login:  login,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Validate проверяет подпись и срок действия токена
func (t *Tokens) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrExpiredToken
		}
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("недействительный токен")
	}
	return claims, nil
}

// AuthMiddleware проверяет JWT токен и добавляет userID в контекст
func (t *Tokens) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims, err := t.Validate(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) (int, bool) {
	userID, ok := ctx.Value(userIDKey).(int)
	return userID, ok
}

type user struct {
	id   int
	hash []byte
}

// Users учетные записи в памяти, пароли хранятся как bcrypt-хеши
type Users struct {
	mu     sync.RWMutex
	byName map[string]user
	nextID int
}

func NewUsers() *Users {
	return &Users{byName: make(map[string]user), nextID: 1}
}

func (u *Users) Register(login, password string) (int, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("ошибка хеширования пароля: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if _, exists := u.byName[login]; exists {
		return 0, ErrUserExists
	}
	id := u.nextID
	u.nextID++
	u.byName[login] = user{id: id, hash: hash}
	return id, nil
}

func (u *Users) Authenticate(login, password string) (int, error) {
	u.mu.RLock()
	usr, exists := u.byName[login]
	u.mu.RUnlock()
	if !exists {
		return 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(usr.hash, []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}
	return usr.id, nil
}
