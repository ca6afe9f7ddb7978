package calc_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"calcclient/internal/api"
	"calcclient/internal/auth"
	"calcclient/internal/calc"
	"calcclient/internal/history"
	"calcclient/internal/models"
	"calcclient/internal/orchestrator"
	"calcclient/internal/session"
)

type stack struct {
	store   *session.Store
	auth    *auth.Controller
	engine  *calc.Engine
	history *history.Service
}

// setupStack поднимает локальный сервис вычислений и собирает клиента поверх него
func setupStack(t *testing.T, quirks orchestrator.Quirks) stack {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tm := orchestrator.NewTaskManager(orchestrator.OperationTimes{
		Addition:       5 * time.Millisecond,
		Subtraction:    5 * time.Millisecond,
		Multiplication: 5 * time.Millisecond,
		Division:       5 * time.Millisecond,
	})
	tm.Start(ctx, 2)

	s := orchestrator.NewServer(tm, orchestrator.NewUsers(), orchestrator.NewTokens("integration", time.Hour), quirks)
	server := httptest.NewServer(s.Router("/api"))
	t.Cleanup(server.Close)

	store, err := session.NewStore(session.NewMemoryStorage())
	if err != nil {
		t.Fatal(err)
	}
	client, err := api.NewClient(api.Config{BaseURL: server.URL, Timeout: 5 * time.Second}, store)
	if err != nil {
		t.Fatal(err)
	}

	return stack{
		store: store,
		auth:  auth.NewController(client, store),
		engine: calc.NewEngine(client, store, calc.Config{
			InitialDelay: 10 * time.Millisecond,
			Interval:     20 * time.Millisecond,
			MaxAttempts:  200,
		}),
		history: history.NewService(client, store),
	}
}

func (s stack) login(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := s.auth.Register(ctx, "ivan", "secret", "secret"); err != nil {
		t.Fatalf("регистрация: %v", err)
	}
	if _, err := s.auth.Login(ctx, "ivan", "secret"); err != nil {
		t.Fatalf("вход: %v", err)
	}
}

func TestEndToEnd(t *testing.T) {
	tests := []struct {
		name   string
		quirks orchestrator.Quirks
	}{
		{name: "обычные ответы"},
		{name: "BOM и склеенные документы", quirks: orchestrator.Quirks{ConcatenatedJSON: true, BOM: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupStack(t, tt.quirks)
			s.login(t)
			ctx := context.Background()

			h, err := s.engine.Start(ctx, "2+2*2", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			expr, err := h.Wait()
			if err != nil {
				t.Fatalf("Wait: %v", err)
			}
			if expr.Status != models.StatusCompleted {
				t.Fatalf("статус = %s", expr.Status)
			}
			if expr.Result == nil || expr.Result.String() != "6" {
				t.Errorf("результат = %v, want 6", expr.Result)
			}
			if expr.Expression != "2+2*2" {
				t.Errorf("текст выражения = %q", expr.Expression)
			}

			tasks, err := s.engine.Tasks(ctx, h.ExpressionID())
			if err != nil {
				t.Fatalf("Tasks: %v", err)
			}
			if len(tasks) != 2 || tasks[0].ID != "1" || tasks[1].ID != "2" {
				t.Errorf("задачи = %+v", tasks)
			}

			page, err := s.history.List(ctx, history.Query{Page: 1, PageSize: 10})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if page.TotalCount != 1 || len(page.Items) != 1 || page.Items[0].ID != h.ExpressionID() {
				t.Errorf("история = %+v", page)
			}
			if page.Items[0].CreatedAt.IsZero() {
				t.Errorf("дата создания не разобрана: %q", page.Items[0].CreatedAt.Raw)
			}
		})
	}
}

func TestEndToEndDivisionByZero(t *testing.T) {
	s := setupStack(t, orchestrator.Quirks{})
	s.login(t)
	ctx := context.Background()

	expr, err := func() (*models.Expression, error) {
		id, err := s.engine.Submit(ctx, "1/(3-3)")
		if err != nil {
			return nil, err
		}
		return s.engine.Track(ctx, id, nil)
	}()
	if err != nil {
		t.Fatal(err)
	}
	if expr.Status != models.StatusError {
		t.Errorf("статус = %s, want error", expr.Status)
	}

	page, err := s.history.List(ctx, history.Query{Filters: history.Filters{Status: models.StatusError}})
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalCount != 1 {
		t.Errorf("выражений с ошибкой = %d", page.TotalCount)
	}
}

func TestEndToEndInvalidExpression(t *testing.T) {
	s := setupStack(t, orchestrator.Quirks{})
	s.login(t)

	_, err := s.engine.Submit(context.Background(), "2+a")
	var reqErr *api.RequestError
	if !errors.As(err, &reqErr) || reqErr.Status != 422 {
		t.Fatalf("ожидалась ошибка 422, получено %v", err)
	}
	if reqErr.Message != "Expression is not valid" {
		t.Errorf("сообщение = %q", reqErr.Message)
	}
}

func TestEndToEndExpiredSession(t *testing.T) {
	s := setupStack(t, orchestrator.Quirks{})
	s.login(t)
	if err := s.store.Set("forged.token.value", "ivan"); err != nil {
		t.Fatal(err)
	}

	_, err := s.history.List(context.Background(), history.Query{})
	if !errors.Is(err, api.ErrUnauthenticated) {
		t.Fatalf("ожидалась ошибка авторизации, получено %v", err)
	}
	if s.store.Get().Authenticated() {
		t.Error("сессия должна быть сброшена после 401")
	}

	_, err = s.engine.Submit(context.Background(), "1+1")
	if !errors.Is(err, api.ErrUnauthenticated) {
		t.Errorf("без сессии Submit должен отказывать локально, получено %v", err)
	}
}
