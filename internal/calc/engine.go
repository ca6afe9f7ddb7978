package calc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"calcclient/internal/api"
	"calcclient/internal/models"
	"calcclient/internal/types"
)

var ErrPollLimit = errors.New("превышено максимальное число опросов статуса")

// Requester выполнение запросов к сервису (api.Client)
type Requester interface {
	DoJSON(ctx context.Context, path string, opts api.Options, out any) error
}

// SessionStore то, что движку нужно от хранилища сессии
type SessionStore interface {
	Token() string
	RememberExpression(id models.ID, text string) error
	ExpressionText(id models.ID) (string, bool)
}

// Clock источник времени и задержек между опросами
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type Config struct {
	InitialDelay time.Duration // до первого опроса
	Interval     time.Duration // между опросами
	MaxInterval  time.Duration // верхняя граница интервала при Backoff > 1
	Backoff      float64       // множитель интервала на каждый опрос
	MaxAttempts  int           // 0 - без ограничения

	Clock Clock
	// OnTerminal вызывается один раз, когда выражение достигло конечного статуса
	OnTerminal func(expr *models.Expression)
}

func DefaultConfig() Config {
	return Config{
		InitialDelay: 1000 * time.Millisecond,
		Interval:     2000 * time.Millisecond,
		MaxInterval:  10 * time.Second,
		Backoff:      1.0,
		MaxAttempts:  150,
	}
}

// Engine отправляет выражения и отслеживает их статус
type Engine struct {
	client Requester
	store  SessionStore
	cfg    Config
}

func NewEngine(client Requester, store SessionStore, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1
	}
	return &Engine{client: client, store: store, cfg: cfg}
}

// Submit отправляет выражение на вычисление и возвращает его идентификатор
func (e *Engine) Submit(ctx context.Context, text string) (models.ID, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &models.ValidationError{Reason: models.ReasonEmpty}
	}
	if err := e.requireSession(); err != nil {
		return "", err
	}

	var resp types.CalculateResponse
	err := e.client.DoJSON(ctx, "/calculate", api.Options{
		Method: http.MethodPost,
		Body:   types.CalculateRequest{Expression: text},
	}, &resp)
	if err != nil {
		log.Printf("Ошибка при отправке выражения %q: %v", text, err)
		return "", err
	}
	if resp.ID == "" {
		return "", &api.RequestError{Kind: api.KindDecode, Message: "в ответе нет идентификатора выражения"}
	}

	if err := e.store.RememberExpression(resp.ID, text); err != nil {
		log.Printf("ВНИМАНИЕ: не удалось сохранить текст выражения %s: %v", resp.ID, err)
	}
	log.Printf("Выражение %q принято, ID: %s", text, resp.ID)
	return resp.ID, nil
}

// Poll запрашивает текущее состояние выражения
func (e *Engine) Poll(ctx context.Context, id models.ID) (*models.Expression, error) {
	var expr models.Expression
	if err := e.client.DoJSON(ctx, expressionPath(id), api.Options{}, &expr); err != nil {
		return nil, err
	}
	if expr.ID == "" {
		expr.ID = id
	}
	if expr.Expression == "" {
		if text, ok := e.store.ExpressionText(id); ok {
			expr.Expression = text
		}
	}
	return &expr, nil
}

// Get то же, что Poll, но с проверкой сессии до запроса
func (e *Engine) Get(ctx context.Context, id models.ID) (*models.Expression, error) {
	if err := e.requireSession(); err != nil {
		return nil, err
	}
	return e.Poll(ctx, id)
}

// Tasks возвращает задачи выражения по возрастанию идентификатора
func (e *Engine) Tasks(ctx context.Context, id models.ID) ([]models.Task, error) {
	if err := e.requireSession(); err != nil {
		return nil, err
	}
	var resp types.TasksResponse
	if err := e.client.DoJSON(ctx, expressionPath(id)+"/tasks", api.Options{}, &resp); err != nil {
		return nil, err
	}
	models.SortTasks(resp.Tasks)
	return resp.Tasks, nil
}

// Recalculate просит сервис вычислить выражение заново
func (e *Engine) Recalculate(ctx context.Context, id models.ID) error {
	if err := e.requireSession(); err != nil {
		return err
	}
	err := e.client.DoJSON(ctx, expressionPath(id)+"/recalculate", api.Options{Method: http.MethodPost}, nil)
	if err != nil {
		log.Printf("Ошибка при пересчете выражения %s: %v", id, err)
		return err
	}
	log.Printf("Выражение %s отправлено на пересчет", id)
	return nil
}

// Track опрашивает статус выражения, пока он не станет конечным.
// Следующий опрос планируется только после ответа на предыдущий.
// Ошибка опроса завершает цикл без повтора.
func (e *Engine) Track(ctx context.Context, id models.ID, observer Observer) (*models.Expression, error) {
	h := newHandle(func() {})
	h.setID(id)
	return e.track(ctx, h, observer)
}

// Start отправляет выражение и запускает отслеживание в отдельной горутине
func (e *Engine) Start(ctx context.Context, text string, observer Observer) (*Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)
	h.notify(observer, Update{State: StateSubmitting})

	id, err := e.Submit(ctx, text)
	if err != nil {
		cancel()
		h.finish(nil, err)
		return nil, err
	}
	h.setID(id)

	go func() {
		expr, err := e.track(ctx, h, observer)
		h.finish(expr, err)
		cancel()
	}()
	return h, nil
}

func (e *Engine) track(ctx context.Context, h *Handle, observer Observer) (*models.Expression, error) {
	id := h.ExpressionID()
	h.transition(StateTracking)

	delay := e.cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		h.schedule(attempt, e.cfg.Clock.Now().Add(delay))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.cfg.Clock.After(delay):
		}
		h.fire()

		expr, err := e.Poll(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("Ошибка при проверке статуса выражения %s: %v", id, err)
			h.notify(observer, Update{State: StateTracking, Attempt: attempt, Err: err})
			return nil, err
		}

		if expr.Status.IsTerminal() {
			h.transition(StateTerminal)
			h.notify(observer, Update{State: StateTerminal, Attempt: attempt, Expression: expr})
			log.Printf("Выражение %s: статус %s, результат %s", id, expr.Status, expr.Result)
			if e.cfg.OnTerminal != nil && ctx.Err() == nil {
				e.cfg.OnTerminal(expr)
			}
			return expr, nil
		}

		h.notify(observer, Update{State: StateTracking, Attempt: attempt, Expression: expr})
		if e.cfg.MaxAttempts > 0 && attempt >= e.cfg.MaxAttempts {
			log.Printf("Выражение %s: опрос остановлен после %d попыток", id, attempt)
			return expr, fmt.Errorf("выражение %s: %w", id, ErrPollLimit)
		}
		delay = e.nextDelay(attempt)
	}
}

// nextDelay интервал перед опросом attempt+1
func (e *Engine) nextDelay(attempt int) time.Duration {
	d := time.Duration(float64(e.cfg.Interval) * math.Pow(e.cfg.Backoff, float64(attempt-1)))
	if e.cfg.MaxInterval > 0 && d > e.cfg.MaxInterval {
		d = e.cfg.MaxInterval
	}
	return d
}

func (e *Engine) requireSession() error {
	if e.store.Token() == "" {
		return &api.RequestError{Kind: api.KindUnauthenticated, Message: "нет активной сессии"}
	}
	return nil
}

func expressionPath(id models.ID) string {
	return "/expression/" + url.PathEscape(string(id))
}
