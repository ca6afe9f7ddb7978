package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Status статус выражения или задачи на стороне сервиса
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// ParseStatus приводит статус к нижнему регистру: оркестратор отдает PROCESSING/COMPLETED
func ParseStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// IsTerminal сообщает, что дальнейший опрос не нужен.
// Любой статус кроме pending/processing считается конечным.
func (s Status) IsTerminal() bool {
	switch ParseStatus(string(s)) {
	case StatusPending, StatusProcessing:
		return false
	}
	return true
}

func (s Status) Known() bool {
	switch ParseStatus(string(s)) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("некорректный статус %s: %w", string(data), err)
	}
	*s = ParseStatus(raw)
	return nil
}

// ID идентификатор выражения или задачи. Сервис может прислать его числом или строкой.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("некорректный идентификатор %s: %w", string(data), err)
	}
	*id = ID(n.String())
	return nil
}

// Less сравнивает идентификаторы численно, если оба числовые, иначе как строки
func (id ID) Less(other ID) bool {
	a, errA := strconv.ParseFloat(string(id), 64)
	b, errB := strconv.ParseFloat(string(other), 64)
	if errA == nil && errB == nil {
		return a < b
	}
	return id < other
}

// Value число или строка (результат вычисления, аргумент задачи)
type Value struct {
	Number  float64
	Text    string
	numeric bool
}

func NumberValue(f float64) *Value {
	return &Value{Number: f, numeric: true}
}

func (v *Value) IsNumber() bool { return v != nil && v.numeric }

func (v *Value) String() string {
	if v == nil {
		return ""
	}
	if v.numeric {
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	}
	return v.Text
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value{Text: s}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			v.Number = f
			v.numeric = true
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("некорректное значение %s: %w", string(data), err)
	}
	*v = Value{Number: f, numeric: true}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return json.Marshal(v.Number)
	}
	return json.Marshal(v.Text)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02.01.2006 15:04:05",
	"2006-01-02",
}

// Timestamp момент создания выражения. Raw хранит исходную строку сервиса.
type Timestamp struct {
	time.Time
	Raw string
}

func ParseTimestamp(raw string) Timestamp {
	ts := Timestamp{Raw: raw}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			ts.Time = t
			break
		}
	}
	return ts
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("некорректная дата %s: %w", string(data), err)
	}
	*t = ParseTimestamp(raw)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Raw != "" {
		return json.Marshal(t.Raw)
	}
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

type Expression struct {
	ID         ID        `json:"id"`
	Expression string    `json:"expression"`
	Status     Status    `json:"status"`
	Result     *Value    `json:"result,omitempty"`
	CreatedAt  Timestamp `json:"created_at"`
}

// Task одна арифметическая операция в составе выражения
type Task struct {
	ID            ID       `json:"id"`
	Operation     string   `json:"operation"`
	Arg1          Value    `json:"arg1"`
	Arg2          Value    `json:"arg2"`
	Result        *Value   `json:"result,omitempty"`
	Status        Status   `json:"status"`
	ExecutionTime *float64 `json:"execution_time,omitempty"` // мс
}

// ExecutionDuration время выполнения задачи, если сервис его сообщил
func (t Task) ExecutionDuration() (time.Duration, bool) {
	if t.ExecutionTime == nil {
		return 0, false
	}
	return time.Duration(*t.ExecutionTime * float64(time.Millisecond)), true
}

// SortTasks упорядочивает задачи по возрастанию идентификатора
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].ID.Less(tasks[j].ID)
	})
}

// SortNewestFirst упорядочивает выражения по дате создания, сначала новые.
// Выражения без даты оказываются в конце.
func SortNewestFirst(expressions []Expression) {
	sort.SliceStable(expressions, func(i, j int) bool {
		return expressions[i].CreatedAt.After(expressions[j].CreatedAt.Time)
	})
}
