// Package task tracks asynchronous extraction work: an in-memory registry of
// task lifecycle state and a bounded worker queue that executes registered
// tasks.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/juristech/process-extract/internal/model"
)

var (
	// ErrTaskNotFound reports an unknown or already swept task id.
	ErrTaskNotFound = eris.New("task not found")

	// ErrInvalidTransition reports a state change the task lifecycle forbids.
	ErrInvalidTransition = eris.New("invalid task state transition")
)

// Registry is the in-memory source of truth for asynchronous tasks. Tasks are
// not durable: a restart forgets them, which is the intended contract of the
// upload-and-poll flow.
type Registry struct {
	mu        sync.RWMutex
	tasks     map[string]*model.Task
	active    map[string]string // case_id -> live task id
	retention time.Duration

	nowFunc func() time.Time // injectable for tests
}

// NewRegistry creates a Registry that sweeps terminal tasks once they are
// older than retention.
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		tasks:     make(map[string]*model.Task),
		active:    make(map[string]string),
		retention: retention,
		nowFunc:   time.Now,
	}
}

// Create registers a queued task for caseID. When the case already has a live
// task the existing task is returned instead and created is false, so a case
// is never worked on twice concurrently.
func (r *Registry) Create(caseID string) (task model.Task, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.active[caseID]; ok {
		if t, ok := r.tasks[id]; ok && !t.State.Terminal() {
			return t.Clone(), false
		}
	}

	now := r.nowFunc().UTC()
	t := &model.Task{
		ID:        uuid.New().String(),
		CaseID:    caseID,
		State:     model.TaskStateQueued,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[t.ID] = t
	r.active[caseID] = t.ID
	return t.Clone(), true
}

// Get returns a copy of the task.
func (r *Registry) Get(id string) (model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, eris.Wrapf(ErrTaskNotFound, "task %s", id)
	}
	return t.Clone(), nil
}

// SetState advances a live task to state with a progress checkpoint.
// Transitions only move forward and progress never decreases.
func (r *Registry) SetState(id string, state model.TaskState, progress int, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return eris.Wrapf(ErrTaskNotFound, "task %s", id)
	}
	if !t.State.CanAdvanceTo(state) {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", t.State, state)
	}
	t.State = state
	if progress > t.Progress {
		t.Progress = progress
	}
	if message != "" {
		t.Message = message
	}
	t.UpdatedAt = r.nowFunc().UTC()
	if state.Terminal() {
		r.clearActive(t)
	}
	return nil
}

// Complete marks the task completed at progress 100 with the persisted record
// as its result.
func (r *Registry) Complete(id string, rec *model.CaseRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return eris.Wrapf(ErrTaskNotFound, "task %s", id)
	}
	if !t.State.CanAdvanceTo(model.TaskStateCompleted) {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", t.State, model.TaskStateCompleted)
	}
	t.State = model.TaskStateCompleted
	t.Progress = 100
	t.Message = "extraction complete"
	t.Result = rec.Clone()
	t.UpdatedAt = r.nowFunc().UTC()
	r.clearActive(t)
	return nil
}

// Fail marks the task failed, keeping the last progress checkpoint reached.
func (r *Registry) Fail(id string, kind model.ErrorKind, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return eris.Wrapf(ErrTaskNotFound, "task %s", id)
	}
	if !t.State.CanAdvanceTo(model.TaskStateFailed) {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", t.State, model.TaskStateFailed)
	}
	t.State = model.TaskStateFailed
	t.Message = message
	t.Error = &model.TaskError{Kind: kind, Message: message}
	t.UpdatedAt = r.nowFunc().UTC()
	r.clearActive(t)
	return nil
}

// FindActiveByCase returns the live task for a case, if any.
func (r *Registry) FindActiveByCase(caseID string) (model.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[caseID]
	if !ok {
		return model.Task{}, false
	}
	t, ok := r.tasks[id]
	if !ok || t.State.Terminal() {
		return model.Task{}, false
	}
	return t.Clone(), true
}

// Delete removes a task outright. Used to unwind a registration when the task
// cannot be queued.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return
	}
	delete(r.tasks, id)
	r.clearActive(t)
}

// Sweep drops terminal tasks whose last update is older than the retention
// window and reports how many were removed. Live tasks are never swept.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.retention)
	removed := 0
	for id, t := range r.tasks {
		if t.State.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(r.tasks, id)
			r.clearActive(t)
			removed++
		}
	}
	return removed
}

// StartSweeper sweeps on the given interval until the context is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := r.Sweep(now); n > 0 {
					zap.L().Debug("swept finished tasks", zap.Int("removed", n))
				}
			}
		}
	}()
}

// clearActive drops the case index entry if it still points at t. Callers
// must hold the write lock.
func (r *Registry) clearActive(t *model.Task) {
	if r.active[t.CaseID] == t.ID {
		delete(r.active, t.CaseID)
	}
}
