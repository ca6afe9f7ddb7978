package orchestrator

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"calcclient/internal/calculator"
)

var ErrExpressionNotFound = errors.New("expression not found")

// Статусы в том виде, в каком их отдает оркестратор
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusError      = "ERROR"
)

// OperationTimes время выполнения операций для эмуляции нагрузки
type OperationTimes struct {
	Addition       time.Duration
	Subtraction    time.Duration
	Multiplication time.Duration
	Division       time.Duration
}

func (o OperationTimes) For(op string) time.Duration {
	switch op {
	case "+":
		return o.Addition
	case "-":
		return o.Subtraction
	case "*":
		return o.Multiplication
	case "/":
		return o.Division
	}
	return 0
}

// Task одна операция выражения
type Task struct {
	ID            int
	Operation     string
	Arg1          calculator.Operand
	Arg2          calculator.Operand
	Result        *float64
	Status        string
	ExecutionTime time.Duration
}

type Expression struct {
	ID        string
	UserID    int
	Text      string
	Status    string
	Result    *float64
	Error     string
	CreatedAt time.Time
	Tasks     []Task
}

// ListFilter параметры выборки истории
type ListFilter struct {
	Offset   int
	Limit    int
	DateFrom time.Time
	DateTo   time.Time // включительно, до конца дня
	Status   string
}

type job struct {
	exprID string
	taskID int
	gen    int
}

// TaskManager хранит выражения и выполняет их задачи пулом вычислителей
type TaskManager struct {
	mu          sync.RWMutex
	expressions map[string]*Expression
	generation  map[string]int
	times       OperationTimes
	queue       chan job
	now         func() time.Time
}

func NewTaskManager(times OperationTimes) *TaskManager {
	log.Printf("Загружены параметры времени операций: +%v -%v *%v /%v",
		times.Addition, times.Subtraction, times.Multiplication, times.Division)

	return &TaskManager{
		expressions: make(map[string]*Expression),
		generation:  make(map[string]int),
		times:       times,
		queue:       make(chan job, 1024),
		now:         time.Now,
	}
}

// Start запускает вычислители; они работают до отмены ctx
func (tm *TaskManager) Start(ctx context.Context, computingPower int) {
	if computingPower < 1 {
		computingPower = 1
	}
	for i := 0; i < computingPower; i++ {
		go tm.worker(ctx, i+1)
	}
	log.Printf("Запущено вычислителей: %d", computingPower)
}

func (tm *TaskManager) worker(ctx context.Context, n int) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-tm.queue:
			tm.execute(ctx, n, j)
		}
	}
}

// CreateExpression разбивает выражение на задачи и ставит готовые в очередь
func (tm *TaskManager) CreateExpression(text string, userID int) (string, error) {
	steps, value, err := calculator.Plan(text)
	if err != nil {
		return "", err
	}

	expr := &Expression{
		ID:        uuid.New().String(),
		UserID:    userID,
		Text:      text,
		Status:    StatusPending,
		CreatedAt: tm.now(),
	}
	for _, step := range steps {
		expr.Tasks = append(expr.Tasks, Task{
			ID:        step.ID,
			Operation: step.Operation,
			Arg1:      step.Arg1,
			Arg2:      step.Arg2,
			Status:    StatusPending,
		})
	}
	if len(steps) == 0 {
		expr.Status = StatusCompleted
		expr.Result = &value
	}

	tm.mu.Lock()
	tm.expressions[expr.ID] = expr
	ready := tm.readyLocked(expr)
	tm.mu.Unlock()

	log.Printf("Создано выражение %s (%s), задач: %d", expr.ID, text, len(steps))
	tm.enqueue(ready)
	return expr.ID, nil
}

// Recalculate сбрасывает результаты задач и запускает вычисление заново
func (tm *TaskManager) Recalculate(id string, userID int) error {
	tm.mu.Lock()
	expr, ok := tm.expressions[id]
	if !ok || expr.UserID != userID {
		tm.mu.Unlock()
		return ErrExpressionNotFound
	}

	tm.generation[id]++
	expr.Error = ""
	expr.Result = nil
	expr.Status = StatusPending
	steps, value, err := calculator.Plan(expr.Text)
	if err != nil {
		tm.mu.Unlock()
		return err
	}
	expr.Tasks = expr.Tasks[:0]
	for _, step := range steps {
		expr.Tasks = append(expr.Tasks, Task{ID: step.ID, Operation: step.Operation, Arg1: step.Arg1, Arg2: step.Arg2, Status: StatusPending})
	}
	if len(steps) == 0 {
		expr.Status = StatusCompleted
		expr.Result = &value
	}
	ready := tm.readyLocked(expr)
	tm.mu.Unlock()

	log.Printf("Выражение %s отправлено на пересчет", id)
	tm.enqueue(ready)
	return nil
}

// readyLocked отмечает задачи без зависимостей как взятые в работу
func (tm *TaskManager) readyLocked(expr *Expression) []job {
	// после ошибки остальные ветви выражения не считаются
	if expr.Status == StatusError {
		return nil
	}
	var ready []job
	for i := range expr.Tasks {
		t := &expr.Tasks[i]
		if t.Status == StatusPending && t.Arg1.Ready() && t.Arg2.Ready() {
			t.Status = StatusProcessing
			ready = append(ready, job{exprID: expr.ID, taskID: t.ID, gen: tm.generation[expr.ID]})
		}
	}
	if len(ready) > 0 {
		expr.Status = StatusProcessing
	}
	return ready
}

func (tm *TaskManager) enqueue(jobs []job) {
	for _, j := range jobs {
		tm.queue <- j
	}
}

func (tm *TaskManager) execute(ctx context.Context, worker int, j job) {
	tm.mu.RLock()
	expr, ok := tm.expressions[j.exprID]
	if !ok || tm.generation[j.exprID] != j.gen {
		tm.mu.RUnlock()
		return
	}
	task := expr.Tasks[j.taskID-1]
	tm.mu.RUnlock()

	delay := tm.times.For(task.Operation)
	start := time.Now()
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	result, err := calculator.Apply(task.Operation, task.Arg1.Value, task.Arg2.Value)
	elapsed := time.Since(start)

	tm.mu.Lock()
	if tm.generation[j.exprID] != j.gen {
		tm.mu.Unlock()
		return
	}
	t := &expr.Tasks[j.taskID-1]
	t.ExecutionTime = elapsed
	if err != nil {
		log.Printf("Вычислитель %d: задача %d выражения %s завершилась ошибкой: %v", worker, t.ID, expr.ID, err)
		t.Status = StatusError
		expr.Status = StatusError
		expr.Error = err.Error()
		tm.mu.Unlock()
		return
	}

	t.Result = &result
	t.Status = StatusCompleted
	log.Printf("Вычислитель %d: задача %d выражения %s: %v %s %v = %v", worker, t.ID, expr.ID, task.Arg1.Value, task.Operation, task.Arg2.Value, result)

	// подставляем результат в зависимые задачи
	for i := range expr.Tasks {
		dep := &expr.Tasks[i]
		if dep.Arg1.Step == t.ID {
			dep.Arg1 = calculator.Operand{Value: result}
		}
		if dep.Arg2.Step == t.ID {
			dep.Arg2 = calculator.Operand{Value: result}
		}
	}

	if t.ID == len(expr.Tasks) {
		expr.Status = StatusCompleted
		expr.Result = &result
		log.Printf("Выражение %s (%s) вычислено, результат: %v", expr.ID, expr.Text, result)
	}
	ready := tm.readyLocked(expr)
	tm.mu.Unlock()

	tm.enqueue(ready)
}

// GetExpression возвращает копию выражения пользователя
func (tm *TaskManager) GetExpression(id string, userID int) (Expression, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	expr, ok := tm.expressions[id]
	if !ok || expr.UserID != userID {
		return Expression{}, ErrExpressionNotFound
	}
	return copyExpression(expr), nil
}

// List возвращает страницу выражений пользователя (новые первыми) и общее число подходящих
func (tm *TaskManager) List(userID int, f ListFilter) ([]Expression, int) {
	tm.mu.RLock()
	var matched []Expression
	for _, expr := range tm.expressions {
		if expr.UserID != userID || !f.match(expr) {
			continue
		}
		matched = append(matched, copyExpression(expr))
	}
	tm.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if f.Offset >= total {
		return []Expression{}, total
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total
}

func (f ListFilter) match(expr *Expression) bool {
	if f.Status != "" && !strings.EqualFold(f.Status, expr.Status) {
		return false
	}
	if !f.DateFrom.IsZero() && expr.CreatedAt.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && !expr.CreatedAt.Before(f.DateTo.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

func copyExpression(expr *Expression) Expression {
	c := *expr
	c.Tasks = append([]Task(nil), expr.Tasks...)
	return c
}
