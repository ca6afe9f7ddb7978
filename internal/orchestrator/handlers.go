package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"calcclient/internal/calculator"
	"calcclient/internal/types"
)

const (
	createdAtLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

// Quirks искажения ответов, которые встречаются у реального сервиса
type Quirks struct {
	ConcatenatedJSON bool // перед ответом о выражении отправляется лишний JSON-документ
	BOM              bool // ответы начинаются с BOM
}

type Server struct {
	tasks  *TaskManager
	users  *Users
	tokens *Tokens
	quirks Quirks
}

func NewServer(tasks *TaskManager, users *Users, tokens *Tokens, quirks Quirks) *Server {
	return &Server{tasks: tasks, users: users, tokens: tokens, quirks: quirks}
}

// expressionJSON представление выражения в ответах API
type expressionJSON struct {
	ID         string   `json:"id"`
	Expression string   `json:"expression"`
	Status     string   `json:"status"`
	Result     *float64 `json:"result,omitempty"`
	Error      string   `json:"error_message,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

type taskJSON struct {
	ID            int      `json:"id"`
	Operation     string   `json:"operation"`
	Arg1          any      `json:"arg1"`
	Arg2          any      `json:"arg2"`
	Result        *float64 `json:"result,omitempty"`
	Status        string   `json:"status"`
	ExecutionTime *float64 `json:"execution_time,omitempty"`
}

type expressionsJSON struct {
	Expressions []expressionJSON `json:"expressions"`
	Total       int              `json:"total"`
}

func toExpressionJSON(expr Expression) expressionJSON {
	return expressionJSON{
		ID:         expr.ID,
		Expression: expr.Text,
		Status:     expr.Status,
		Result:     expr.Result,
		Error:      expr.Error,
		CreatedAt:  expr.CreatedAt.Format(createdAtLayout),
	}
}

// operandJSON число или ссылка на еще не вычисленную задачу
func operandJSON(o calculator.Operand) any {
	if o.Ready() {
		return o.Value
	}
	return fmt.Sprintf("#%d", o.Step)
}

func toTaskJSON(t Task) taskJSON {
	tj := taskJSON{
		ID:        t.ID,
		Operation: t.Operation,
		Arg1:      operandJSON(t.Arg1),
		Arg2:      operandJSON(t.Arg2),
		Result:    t.Result,
		Status:    t.Status,
	}
	if t.ExecutionTime > 0 {
		ms := float64(t.ExecutionTime) / float64(time.Millisecond)
		tj.ExecutionTime = &ms
	}
	return tj
}

func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req types.CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	id, err := s.users.Register(req.Username, req.Password)
	if errors.Is(err, ErrUserExists) {
		writeError(w, http.StatusConflict, "User already exists")
		return
	}
	if err != nil {
		log.Printf("Ошибка при регистрации пользователя %s: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Printf("Зарегистрирован пользователь %s (ID=%d)", req.Username, id)
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "User registered successfully"})
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := s.users.Authenticate(req.Username, req.Password)
	if err != nil {
		log.Printf("Неудачная попытка входа пользователя %s", req.Username)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.tokens.Generate(id, req.Username)
	if err != nil {
		log.Printf("Ошибка генерации токена: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	log.Printf("Пользователь %s вошел в систему", req.Username)
	s.writeJSON(w, http.StatusOK, types.AuthResponse{Token: token})
}

func (s *Server) HandleTokenInfo(w http.ResponseWriter, r *http.Request) {
	minutes := int(s.tokens.ttl / time.Minute)
	s.writeJSON(w, http.StatusOK, types.TokenInfoResponse{ExpirationMinutes: strconv.Itoa(minutes)})
}

func (s *Server) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req types.CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := s.tasks.CreateExpression(strings.TrimSpace(req.Expression), userID)
	if err != nil {
		log.Printf("Ошибка создания выражения %q: %v", req.Expression, err)
		writeError(w, http.StatusUnprocessableEntity, "Expression is not valid")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) HandleGetExpression(w http.ResponseWriter, r *http.Request) {
	expr, ok := s.lookup(w, r)
	if !ok {
		return
	}
	body := toExpressionJSON(expr)
	if s.quirks.ConcatenatedJSON {
		s.writeConcatenated(w, map[string]string{"id": expr.ID}, body)
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) HandleGetTasks(w http.ResponseWriter, r *http.Request) {
	expr, ok := s.lookup(w, r)
	if !ok {
		return
	}
	tasks := make([]taskJSON, 0, len(expr.Tasks))
	for _, t := range expr.Tasks {
		tasks = append(tasks, toTaskJSON(t))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id := mux.Vars(r)["id"]

	if err := s.tasks.Recalculate(id, userID); err != nil {
		if errors.Is(err, ErrExpressionNotFound) {
			writeError(w, http.StatusNotFound, "Expression not found")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "Expression is not valid")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) HandleGetExpressions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total := s.tasks.List(userID, filter)
	resp := expressionsJSON{Expressions: make([]expressionJSON, 0, len(items)), Total: total}
	for _, expr := range items {
		resp.Expressions = append(resp.Expressions, toExpressionJSON(expr))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	var f ListFilter
	var err error

	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			return f, fmt.Errorf("invalid offset: %s", v)
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, fmt.Errorf("invalid limit: %s", v)
		}
	}
	if v := q.Get("date_from"); v != "" {
		if f.DateFrom, err = time.ParseInLocation(dateLayout, v, time.Local); err != nil {
			return f, fmt.Errorf("invalid date_from: %s", v)
		}
	}
	if v := q.Get("date_to"); v != "" {
		if f.DateTo, err = time.ParseInLocation(dateLayout, v, time.Local); err != nil {
			return f, fmt.Errorf("invalid date_to: %s", v)
		}
	}
	f.Status = q.Get("status")
	return f, nil
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Expression, bool) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return Expression{}, false
	}
	id := mux.Vars(r)["id"]

	expr, err := s.tasks.GetExpression(id, userID)
	if err != nil {
		log.Printf("Выражение с ID %s не найдено для пользователя %d", id, userID)
		writeError(w, http.StatusNotFound, "Expression not found")
		return Expression{}, false
	}
	return expr, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ОШИБКА сериализации: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if s.quirks.BOM {
		w.Write([]byte("\ufeff"))
	}
	w.Write(data)
}

// writeConcatenated отправляет два JSON-документа подряд, актуальный последним
func (s *Server) writeConcatenated(w http.ResponseWriter, stale, current any) {
	first, err1 := json.Marshal(stale)
	second, err2 := json.Marshal(current)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(first)
	w.Write([]byte("\n"))
	w.Write(second)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(types.ErrorResponse{Error: message})
}
