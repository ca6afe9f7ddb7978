package auth

import (
	"context"
	"log"
	"net/http"

	"calcclient/internal/api"
	"calcclient/internal/models"
	"calcclient/internal/session"
	"calcclient/internal/types"
)

// Requester выполнение запросов к сервису (api.Client)
type Requester interface {
	DoJSON(ctx context.Context, path string, opts api.Options, out any) error
}

// Controller вход, регистрация и выход пользователя
type Controller struct {
	client Requester
	store  *session.Store
}

func NewController(client Requester, store *session.Store) *Controller {
	return &Controller{client: client, store: store}
}

// Login отправляет учетные данные и при успехе сохраняет сессию.
// Имя пользователя берется из ввода, а не из ответа сервера.
// При любой ошибке сессия не меняется.
func (c *Controller) Login(ctx context.Context, username, password string) (models.Session, error) {
	if username == "" || password == "" {
		return models.Session{}, &models.ValidationError{Reason: models.ReasonMissingCredentials}
	}

	var resp types.AuthResponse
	err := c.client.DoJSON(ctx, "/login", api.Options{
		Method:    http.MethodPost,
		Body:      types.CredentialsRequest{Username: username, Password: password},
		Anonymous: true,
	}, &resp)
	if err != nil {
		log.Printf("Ошибка при попытке входа пользователя %s: %v", username, err)
		return models.Session{}, err
	}

	if resp.Token == "" {
		return models.Session{}, &api.RequestError{Kind: api.KindDecode, Message: "токен не получен"}
	}

	if err := c.store.Set(resp.Token, username); err != nil {
		return models.Session{}, err
	}

	log.Printf("Пользователь %s вошел в систему", username)
	return c.store.Get(), nil
}

// Register создает учетную запись. Несовпадение паролей проверяется локально,
// без обращения к сервису. Автоматического входа после регистрации нет.
func (c *Controller) Register(ctx context.Context, username, password, passwordConfirm string) error {
	if username == "" || password == "" || passwordConfirm == "" {
		return &models.ValidationError{Reason: models.ReasonMissingCredentials}
	}
	if password != passwordConfirm {
		return &models.ValidationError{Reason: models.ReasonMismatchedPasswords}
	}

	err := c.client.DoJSON(ctx, "/register", api.Options{
		Method:    http.MethodPost,
		Body:      types.CredentialsRequest{Username: username, Password: password},
		Anonymous: true,
	}, nil)
	if err != nil {
		log.Printf("Ошибка при регистрации пользователя %s: %v", username, err)
		return err
	}

	log.Printf("Пользователь %s зарегистрирован", username)
	return nil
}

// Logout локально завершает сессию
func (c *Controller) Logout() error {
	return c.store.Clear()
}
