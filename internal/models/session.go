package models

// Session текущая сессия пользователя на клиенте
type Session struct {
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"` // только для отображения
}

// Authenticated: отсутствие токена означает, что клиент не авторизован
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// ValidationReason причина локального отказа без обращения к сервису
type ValidationReason string

const (
	ReasonEmpty               ValidationReason = "empty"
	ReasonMismatchedPasswords ValidationReason = "mismatched_passwords"
	ReasonMissingCredentials  ValidationReason = "missing_credentials"
)

type ValidationError struct {
	Reason ValidationReason
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonEmpty:
		return "выражение не может быть пустым"
	case ReasonMismatchedPasswords:
		return "пароли не совпадают"
	case ReasonMissingCredentials:
		return "необходимо указать логин и пароль"
	}
	return "ошибка валидации: " + string(e.Reason)
}

// Is позволяет сравнивать ошибки валидации по причине через errors.Is
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Reason == e.Reason
}
