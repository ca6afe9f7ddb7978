package api

import (
	"fmt"
	"net/http"
)

// Kind класс ошибки запроса
type Kind int

const (
	KindNetwork         Kind = iota + 1 // транспорт: DNS, обрыв соединения, таймаут
	KindUnauthenticated                 // 401/403, сессия сброшена
	KindServer                          // прочие неуспешные коды ответа
	KindDecode                          // тело не удалось разобрать как JSON
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindServer:
		return "server"
	case KindDecode:
		return "decode"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Эталонные ошибки для errors.Is
var (
	ErrNetwork         = &RequestError{Kind: KindNetwork}
	ErrUnauthenticated = &RequestError{Kind: KindUnauthenticated}
	ErrServer          = &RequestError{Kind: KindServer}
	ErrDecode          = &RequestError{Kind: KindDecode}
)

// RequestError ошибка выполнения запроса к сервису
type RequestError struct {
	Kind    Kind
	Status  int    // код ответа, если ответ был получен
	Message string // сообщение сервера или описание ошибки
	Snippet string // фрагмент тела для диагностики (KindDecode)
	Err     error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindNetwork:
		if e.Err != nil {
			return "ошибка сети: " + e.Err.Error()
		}
		return "ошибка сети: " + e.Message
	case KindUnauthenticated:
		return "требуется авторизация, пожалуйста, войдите снова"
	case KindServer:
		msg := fmt.Sprintf("ошибка сервера: %d %s", e.Status, http.StatusText(e.Status))
		if e.Message != "" {
			msg += ": " + e.Message
		}
		return msg
	case KindDecode:
		return fmt.Sprintf("ошибка при разборе ответа сервера: %s (ответ: %q)", e.Message, e.Snippet)
	}
	return e.Message
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is сравнивает по классу ошибки и, если задан у цели, по коду ответа
func (e *RequestError) Is(target error) bool {
	t, ok := target.(*RequestError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Status == 0 || t.Status == e.Status
}

// StatusError эталон для errors.Is с конкретным кодом, например StatusError(404)
func StatusError(status int) *RequestError {
	return &RequestError{Kind: KindServer, Status: status}
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
