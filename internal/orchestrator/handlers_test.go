package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"calcclient/internal/types"
)

func setupServer(t *testing.T, quirks Quirks) (*httptest.Server, *TaskManager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tm := NewTaskManager(OperationTimes{
		Addition:       time.Millisecond,
		Subtraction:    time.Millisecond,
		Multiplication: time.Millisecond,
		Division:       time.Millisecond,
	})
	tm.Start(ctx, 2)

	s := NewServer(tm, NewUsers(), NewTokens("test-secret", time.Hour), quirks)
	server := httptest.NewServer(s.Router("/api"))
	t.Cleanup(server.Close)
	return server, tm
}

func doRequest(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func loginUser(t *testing.T, base string) string {
	t.Helper()
	creds := types.CredentialsRequest{Username: "ivan", Password: "secret"}
	if resp, _ := doRequest(t, http.MethodPost, base+"/api/register", "", creds); resp.StatusCode != http.StatusOK {
		t.Fatalf("регистрация: код %d", resp.StatusCode)
	}
	resp, body := doRequest(t, http.MethodPost, base+"/api/login", "", creds)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("вход: код %d", resp.StatusCode)
	}
	var auth types.AuthResponse
	if err := json.Unmarshal(body, &auth); err != nil || auth.Token == "" {
		t.Fatalf("токен не получен: %s", body)
	}
	return auth.Token
}

func waitStatus(t *testing.T, base, token, id string) expressionJSON {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, body := doRequest(t, http.MethodGet, base+"/api/expression/"+id, token, nil)
		var expr expressionJSON
		if err := json.Unmarshal(body, &expr); err != nil {
			t.Fatalf("ответ не JSON: %s", body)
		}
		if expr.Status == StatusCompleted || expr.Status == StatusError {
			return expr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("выражение %s не вычислено за отведенное время", id)
	return expressionJSON{}
}

func TestAuthHandlers(t *testing.T) {
	server, _ := setupServer(t, Quirks{})
	creds := types.CredentialsRequest{Username: "ivan", Password: "secret"}

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{name: "регистрация", path: "/api/register", body: creds, wantStatus: http.StatusOK},
		{name: "повторная регистрация", path: "/api/register", body: creds, wantStatus: http.StatusConflict},
		{name: "регистрация без пароля", path: "/api/register", body: types.CredentialsRequest{Username: "petr"}, wantStatus: http.StatusBadRequest},
		{name: "вход", path: "/api/login", body: creds, wantStatus: http.StatusOK},
		{name: "неверный пароль", path: "/api/login", body: types.CredentialsRequest{Username: "ivan", Password: "x"}, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, http.MethodPost, server.URL+tt.path, "", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("код ответа = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server, _ := setupServer(t, Quirks{})

	for _, token := range []string{"", "not-a-jwt"} {
		resp, body := doRequest(t, http.MethodGet, server.URL+"/api/expressions", token, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("токен %q: код = %d", token, resp.StatusCode)
		}
		if !strings.Contains(string(body), `"error"`) {
			t.Errorf("тело ошибки = %s", body)
		}
	}
}

func TestCalculateLifecycle(t *testing.T) {
	server, _ := setupServer(t, Quirks{})
	token := loginUser(t, server.URL)

	tests := []struct {
		name       string
		expression string
		wantStatus string
		wantResult float64
		wantTasks  int
	}{
		{name: "сложение", expression: "3+3", wantStatus: StatusCompleted, wantResult: 6, wantTasks: 1},
		{name: "приоритет операций", expression: "2+2*2", wantStatus: StatusCompleted, wantResult: 6, wantTasks: 2},
		{name: "одно число", expression: "5", wantStatus: StatusCompleted, wantResult: 5, wantTasks: 0},
		{name: "деление на ноль", expression: "1/(2-2)", wantStatus: StatusError, wantTasks: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, http.MethodPost, server.URL+"/api/calculate", token, types.CalculateRequest{Expression: tt.expression})
			if resp.StatusCode != http.StatusCreated {
				t.Fatalf("код ответа = %d (%s)", resp.StatusCode, body)
			}
			var created map[string]string
			_ = json.Unmarshal(body, &created)

			expr := waitStatus(t, server.URL, token, created["id"])
			if expr.Status != tt.wantStatus {
				t.Errorf("статус = %s, want %s", expr.Status, tt.wantStatus)
			}
			if tt.wantStatus == StatusCompleted && (expr.Result == nil || *expr.Result != tt.wantResult) {
				t.Errorf("результат = %v, want %v", expr.Result, tt.wantResult)
			}

			_, body = doRequest(t, http.MethodGet, server.URL+"/api/expression/"+created["id"]+"/tasks", token, nil)
			var tasks struct {
				Tasks []taskJSON `json:"tasks"`
			}
			if err := json.Unmarshal(body, &tasks); err != nil {
				t.Fatal(err)
			}
			if len(tasks.Tasks) != tt.wantTasks {
				t.Errorf("задач = %d, want %d", len(tasks.Tasks), tt.wantTasks)
			}
		})
	}
}

func TestCalculateInvalidExpression(t *testing.T) {
	server, _ := setupServer(t, Quirks{})
	token := loginUser(t, server.URL)

	resp, body := doRequest(t, http.MethodPost, server.URL+"/api/calculate", token, types.CalculateRequest{Expression: "2+a"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("код ответа = %d", resp.StatusCode)
	}
	var errResp types.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error != "Expression is not valid" {
		t.Errorf("тело ошибки = %s", body)
	}
}

func TestRecalculate(t *testing.T) {
	server, _ := setupServer(t, Quirks{})
	token := loginUser(t, server.URL)

	_, body := doRequest(t, http.MethodPost, server.URL+"/api/calculate", token, types.CalculateRequest{Expression: "4*5"})
	var created map[string]string
	_ = json.Unmarshal(body, &created)
	waitStatus(t, server.URL, token, created["id"])

	resp, _ := doRequest(t, http.MethodPost, server.URL+"/api/expression/"+created["id"]+"/recalculate", token, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("код ответа = %d", resp.StatusCode)
	}
	expr := waitStatus(t, server.URL, token, created["id"])
	if expr.Result == nil || *expr.Result != 20 {
		t.Errorf("результат после пересчета = %v", expr.Result)
	}

	resp, _ = doRequest(t, http.MethodPost, server.URL+"/api/expression/missing/recalculate", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("код для несуществующего выражения = %d", resp.StatusCode)
	}
}

func TestGetExpressionsPaging(t *testing.T) {
	server, tm := setupServer(t, Quirks{})
	token := loginUser(t, server.URL)

	base := time.Date(2025, 4, 20, 12, 0, 0, 0, time.Local)
	step := 0
	tm.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Hour)
	}

	for _, e := range []string{"1+1", "2+2", "3+3", "1/(1-1)"} {
		doRequest(t, http.MethodPost, server.URL+"/api/calculate", token, types.CalculateRequest{Expression: e})
	}

	_, body := doRequest(t, http.MethodGet, server.URL+"/api/expressions?offset=0&limit=2", token, nil)
	var page expressionsJSON
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 4 || len(page.Expressions) != 2 {
		t.Fatalf("total = %d, элементов = %d", page.Total, len(page.Expressions))
	}
	if page.Expressions[0].Expression != "1/(1-1)" {
		t.Errorf("первым должно быть новое выражение, получено %s", page.Expressions[0].Expression)
	}

	_, body = doRequest(t, http.MethodGet, server.URL+"/api/expressions?date_from=2025-04-21", token, nil)
	_ = json.Unmarshal(body, &page)
	if page.Total != 0 {
		t.Errorf("фильтр по дате: total = %d", page.Total)
	}

	resp, _ := doRequest(t, http.MethodGet, server.URL+"/api/expressions?offset=-1", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("отрицательный offset: код %d", resp.StatusCode)
	}
}

func TestQuirks(t *testing.T) {
	server, _ := setupServer(t, Quirks{ConcatenatedJSON: true, BOM: true})
	token := loginUser(t, server.URL)

	_, body := doRequest(t, http.MethodPost, server.URL+"/api/calculate", token, types.CalculateRequest{Expression: "1+1"})
	if !bytes.HasPrefix(body, []byte("\ufeff")) {
		t.Errorf("ответ без BOM: %q", body)
	}
	var created map[string]string
	_ = json.Unmarshal(bytes.TrimPrefix(body, []byte("\ufeff")), &created)

	_, body = doRequest(t, http.MethodGet, server.URL+"/api/expression/"+created["id"], token, nil)
	if !strings.Contains(string(body), "}\n{") {
		t.Errorf("ожидалась склейка двух документов: %s", body)
	}
}

func TestTokenInfo(t *testing.T) {
	server, _ := setupServer(t, Quirks{})
	_, body := doRequest(t, http.MethodGet, server.URL+"/api/token-info", "", nil)

	var info types.TokenInfoResponse
	if err := json.Unmarshal(body, &info); err != nil || info.ExpirationMinutes != "60" {
		t.Errorf("token-info = %s", body)
	}
}
