// Package inflight tracks which admin action is currently running per item.
package inflight

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/apperror"
)

// ErrInFlight is returned when another action already holds the item.
var ErrInFlight = apperror.New(http.StatusConflict, apperror.KindConflict, "another action is in progress for this item")

// Tracker maps item ids to the action currently running on them.
type Tracker struct {
	mu      sync.Mutex
	actions map[string]string
}

func NewTracker() *Tracker {
	return &Tracker{actions: make(map[string]string)}
}

// Begin marks action as running on id. The returned release func must be
// called when the action is done. If id is busy, the error names the action
// holding it.
func (t *Tracker) Begin(id, action string) (release func(), err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if running, ok := t.actions[id]; ok {
		return nil, &apperror.AppError{
			Code:    ErrInFlight.Code,
			Kind:    ErrInFlight.Kind,
			Message: fmt.Sprintf("%s: %s", ErrInFlight.Message, running),
			Err:     ErrInFlight,
		}
	}

	t.actions[id] = action
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.actions, id)
			t.mu.Unlock()
		})
	}, nil
}

// Action returns the action running on id, if any.
func (t *Tracker) Action(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.actions[id]
	return a, ok
}
