package engine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dusk-indust/briefing/internal/collab"
)

// Registry is the per-session table of tasks, one per discovered entity. It is
// safe for concurrent use: completions arriving on different goroutines are
// serialized by a single mutex, and every task transitions exactly once.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string // discovery-order entity IDs
}

// NewRegistry creates one Pending task per entity. It fails without creating
// anything if two entities share an ID.
func NewRegistry(entities []collab.Entity) (*Registry, error) {
	r := &Registry{
		tasks: make(map[string]*Task, len(entities)),
		order: make([]string, 0, len(entities)),
	}
	for _, e := range entities {
		if _, exists := r.tasks[e.ID]; exists {
			return nil, fmt.Errorf("entity %q appears twice", e.ID)
		}
		r.tasks[e.ID] = &Task{EntityID: e.ID, Name: e.Name, State: TaskPending}
		r.order = append(r.order, e.ID)
	}
	return r, nil
}

// Complete moves a pending task to Success with result.
func (r *Registry) Complete(id string, result json.RawMessage) (Task, error) {
	return r.transition(id, func(t *Task) {
		t.State = TaskSuccess
		t.Result = append(json.RawMessage(nil), result...)
	})
}

// Fail moves a pending task to Error with detail.
func (r *Registry) Fail(id string, detail string) (Task, error) {
	return r.transition(id, func(t *Task) {
		t.State = TaskError
		t.ErrorDetail = detail
	})
}

// transition applies fn to a pending task under the write lock and returns a
// copy of the result. Terminal tasks are never modified.
func (r *Registry) transition(id string, fn func(*Task)) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	if t.State.IsTerminal() {
		return t.clone(), fmt.Errorf("%w: %q is %s", ErrTaskTerminal, id, t.State)
	}
	fn(t)
	return t.clone(), nil
}

// Get returns a copy of the task for id.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	return t.clone(), nil
}

// Snapshot returns copies of all tasks in discovery order.
func (r *Registry) Snapshot() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id].clone())
	}
	return out
}

// Len returns the number of tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Counts returns how many tasks are in each state.
func (r *Registry) Counts() (pending, success, failed int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tasks {
		switch t.State {
		case TaskPending:
			pending++
		case TaskSuccess:
			success++
		case TaskError:
			failed++
		}
	}
	return pending, success, failed
}

// Terminal reports whether every task has reached a terminal state.
func (r *Registry) Terminal() bool {
	pending, _, _ := r.Counts()
	return pending == 0
}
