package session

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"calcclient/internal/models"
)

// Фиксированные ключи постоянного хранилища
const (
	KeyToken       = "token"
	KeyUsername    = "username"
	KeyExpressions = "calculatedExpressions"
)

// Storage постоянное хранилище "ключ-значение" (localStorage клиента)
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Store владеет текущей сессией. Все изменения сессии проходят только через него.
type Store struct {
	storage     Storage
	mu          sync.RWMutex
	session     models.Session
	expressions map[models.ID]string
}

// NewStore загружает сессию из хранилища
func NewStore(storage Storage) (*Store, error) {
	s := &Store{
		storage:     storage,
		expressions: make(map[models.ID]string),
	}

	token, _, err := storage.Get(KeyToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки токена: %w", err)
	}
	username, _, err := storage.Get(KeyUsername)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки имени пользователя: %w", err)
	}
	s.session = models.Session{Token: token, Username: username}

	raw, ok, err := storage.Get(KeyExpressions)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки выражений: %w", err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.expressions); err != nil {
			// карта только для удобства отображения, битые данные просто отбрасываем
			log.Printf("ВНИМАНИЕ: не удалось разобрать %s: %v", KeyExpressions, err)
			s.expressions = make(map[models.ID]string)
		}
	}

	return s, nil
}

// Get возвращает снимок текущей сессии
func (s *Store) Get() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Token возвращает текущий токен или пустую строку
func (s *Store) Token() string {
	return s.Get().Token
}

// Set сохраняет новую сессию после успешного входа
func (s *Store) Set(token, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Set(KeyToken, token); err != nil {
		return err
	}
	if err := s.storage.Set(KeyUsername, username); err != nil {
		// возвращаем прежний токен, чтобы после перезагрузки сессия не оказалась смешанной
		if rbErr := s.restoreToken(s.session.Token); rbErr != nil {
			log.Printf("ОШИБКА: не удалось вернуть прежний токен: %v", rbErr)
		}
		return err
	}
	s.session = models.Session{Token: token, Username: username}
	return nil
}

func (s *Store) restoreToken(token string) error {
	if token == "" {
		return s.storage.Remove(KeyToken)
	}
	return s.storage.Set(KeyToken, token)
}

// Clear завершает сессию. Повторный вызов оставляет то же состояние.
// Сессия в памяти очищается даже при ошибке хранилища.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = models.Session{}
	s.expressions = make(map[models.ID]string)

	var firstErr error
	for _, key := range []string{KeyToken, KeyUsername, KeyExpressions} {
		if err := s.storage.Remove(key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RememberExpression запоминает исходный текст отправленного выражения
func (s *Store) RememberExpression(id models.ID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expressions[id] = text
	data, err := json.Marshal(s.expressions)
	if err != nil {
		return fmt.Errorf("ошибка сериализации выражений: %w", err)
	}
	return s.storage.Set(KeyExpressions, string(data))
}

// ExpressionText возвращает запомненный текст выражения
func (s *Store) ExpressionText(id models.ID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.expressions[id]
	return text, ok
}
