package calc

import (
	"sync"
	"time"

	"calcclient/internal/models"
)

// State состояние отслеживания одного выражения
type State int

const (
	StateSubmitting State = iota
	StateTracking
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StateTracking:
		return "tracking"
	case StateTerminal:
		return "terminal"
	}
	return "unknown"
}

// Update очередное событие цикла опроса
type Update struct {
	State      State
	Attempt    int
	Expression *models.Expression
	Err        error
}

// Observer получает события опроса. Не должен вызывать Stop того же Handle.
type Observer func(Update)

// Snapshot состояние Handle на момент вызова
type Snapshot struct {
	ExpressionID models.ID
	Attempt      int
	Scheduled    bool      // очередной опрос ожидает своего времени
	NextPoll     time.Time // время очередного опроса по часам Engine
	State        State
	Expression   *models.Expression
	Err          error
}

// Handle отслеживание одного выражения, запущенное через Engine.Start
type Handle struct {
	mu   sync.Mutex
	snap Snapshot

	// delivery сериализует вызовы наблюдателя и Stop; mu при вызове наблюдателя не удерживается
	delivery sync.Mutex
	stopped  bool

	cancel func()
	done   chan struct{}
}

func newHandle(cancel func()) *Handle {
	return &Handle{cancel: cancel, done: make(chan struct{})}
}

func (h *Handle) ExpressionID() models.ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap.ExpressionID
}

// Stop прекращает опрос. После возврата из Stop наблюдатель больше не вызывается.
// Повторный вызов ничего не делает. Из самого наблюдателя Stop и Wait
// не вызываются: они ждут окончания текущего вызова.
func (h *Handle) Stop() {
	h.cancel()
	h.delivery.Lock()
	h.stopped = true
	h.delivery.Unlock()
}

// Wait ждет завершения цикла опроса
func (h *Handle) Wait() (*models.Expression, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap.Expression, h.snap.Err
}

// Done закрывается по завершении цикла опроса
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

func (h *Handle) setID(id models.ID) {
	h.mu.Lock()
	h.snap.ExpressionID = id
	h.mu.Unlock()
}

func (h *Handle) transition(state State) {
	h.mu.Lock()
	h.snap.State = state
	h.mu.Unlock()
}

func (h *Handle) schedule(attempt int, at time.Time) {
	h.mu.Lock()
	h.snap.Attempt = attempt
	h.snap.Scheduled = true
	h.snap.NextPoll = at
	h.mu.Unlock()
}

// fire отмечает, что запланированный опрос начался
func (h *Handle) fire() {
	h.mu.Lock()
	h.snap.Scheduled = false
	h.mu.Unlock()
}

// notify обновляет снимок и вызывает наблюдателя. Снимок к моменту вызова
// уже обновлен, поэтому наблюдатель может читать Snapshot и ExpressionID.
func (h *Handle) notify(observer Observer, u Update) {
	h.mu.Lock()
	if u.Expression != nil {
		h.snap.Expression = u.Expression
	}
	h.mu.Unlock()

	if observer == nil {
		return
	}
	h.delivery.Lock()
	defer h.delivery.Unlock()
	if h.stopped {
		return
	}
	observer(u)
}

func (h *Handle) finish(expr *models.Expression, err error) {
	h.mu.Lock()
	if expr != nil {
		h.snap.Expression = expr
	}
	h.snap.Err = err
	h.snap.Scheduled = false
	h.mu.Unlock()
	close(h.done)
}
