package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"calcclient/internal/types"
)

const RequestIDHeader = "X-Request-ID"

// SessionStore то, что исполнителю нужно от хранилища сессии
type SessionStore interface {
	Token() string
	Clear() error
}

// Options параметры одного запроса
type Options struct {
	Method string
	Header http.Header
	Body   any // сериализуется в JSON, если не nil

	// Anonymous: запрос без токена сессии (вход, регистрация).
	// Ответ 401/403 на такой запрос не сбрасывает сессию.
	Anonymous bool
}

type Config struct {
	BaseURL string // например http://localhost:8080
	Prefix  string // префикс API, по умолчанию /api
	Timeout time.Duration
}

// Client выполняет все запросы к сервису: добавляет учетные данные,
// нормализует ошибки и разбирает тело ответа
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    SessionStore
}

// NewClient создает клиента с cookie jar: куки отправляются вместе с токеном
func NewClient(cfg Config, store SessionStore) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("не задан адрес сервиса")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "/api"
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания cookie jar: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(prefix, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		session: store,
	}, nil
}

// MergeHeaders объединяет заголовки по ключам: значения по умолчанию,
// поверх них заголовки вызывающего, поверх всего Authorization текущей сессии.
// Ни один ключ вызывающего не теряется.
func MergeHeaders(defaults, caller http.Header, token string) http.Header {
	merged := make(http.Header, len(defaults)+len(caller)+1)
	for key, values := range defaults {
		merged[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	for key, values := range caller {
		merged[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	if token != "" {
		merged.Set("Authorization", "Bearer "+token)
	}
	return merged
}

// Do выполняет запрос и возвращает разобранное тело (nil для пустого ответа)
func (c *Client) Do(ctx context.Context, path string, opts Options) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	defaults := http.Header{}
	defaults.Set("Accept", "application/json")
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
		}
		body = bytes.NewReader(data)
		defaults.Set("Content-Type", "application/json")
	}
	requestID := uuid.New().String()
	defaults.Set(RequestIDHeader, requestID)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	// токен читается в момент отправки: после сброса сессии старый токен не уйдет
	token := ""
	if !opts.Anonymous {
		token = c.session.Token()
	}
	req.Header = MergeHeaders(defaults, opts.Header, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("Ошибка при выполнении запроса %s %s [%s]: %v", method, path, requestID, err)
		return nil, &RequestError{Kind: KindNetwork, Message: err.Error(), Err: networkCause(ctx, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("Ошибка при чтении тела ответа %s %s [%s]: %v", method, path, requestID, err)
		return nil, &RequestError{Kind: KindNetwork, Status: resp.StatusCode, Message: err.Error(), Err: networkCause(ctx, err)}
	}

	if !opts.Anonymous && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		log.Printf("Сервис вернул %d на %s %s [%s], сессия сброшена", resp.StatusCode, method, path, requestID)
		if err := c.session.Clear(); err != nil {
			log.Printf("ОШИБКА: не удалось очистить сессию: %v", err)
		}
		return nil, &RequestError{Kind: KindUnauthenticated, Status: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("Ошибка сервера %d на %s %s [%s]", resp.StatusCode, method, path, requestID)
		return nil, &RequestError{Kind: KindServer, Status: resp.StatusCode, Message: errorMessage(respBody)}
	}

	decoded, err := DecodeBody(respBody)
	if err != nil {
		log.Printf("Ошибка парсинга JSON %s %s [%s]: %v", method, path, requestID, err)
		return nil, err
	}
	if decoded.Via != ViaWhole && decoded.Via != ViaEmpty {
		log.Printf("Ответ %s %s [%s] разобран стратегией %s", method, path, requestID, decoded.Via)
	}

	return decoded.Raw, nil
}

// DoJSON выполняет запрос и раскладывает ответ в out.
// Пустой ответ оставляет out без изменений.
func (c *Client) DoJSON(ctx context.Context, path string, opts Options, out any) error {
	raw, err := c.Do(ctx, path, opts)
	if err != nil {
		return err
	}
	if out == nil || raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RequestError{Kind: KindDecode, Message: err.Error(), Snippet: snippet(raw), Err: err}
	}
	return nil
}

// errorMessage достает текст ошибки из ответа вида {"error": "..."} или простого текста
func errorMessage(body []byte) string {
	decoded, err := DecodeBody(body)
	if err == nil && decoded.Raw != nil {
		var resp types.ErrorResponse
		if json.Unmarshal(decoded.Raw, &resp) == nil && resp.Error != "" {
			return resp.Error
		}
	}
	return strings.TrimSpace(snippet(body))
}

// networkCause сохраняет отмену контекста, чтобы работал errors.Is(err, context.Canceled)
func networkCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
