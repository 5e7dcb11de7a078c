package model

import "time"

// TaskState represents the current state of an asynchronous extraction task.
type TaskState string

const (
	TaskStateQueued     TaskState = "queued"
	TaskStateUploading  TaskState = "uploading"
	TaskStateProcessing TaskState = "processing"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
)

// stateRank orders the live states; terminal states sit outside the ladder.
var stateRank = map[TaskState]int{
	TaskStateQueued:     0,
	TaskStateUploading:  1,
	TaskStateProcessing: 2,
}

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

// CanAdvanceTo reports whether a transition from s to next is legal. Live
// states only move forward (or restate themselves); either terminal state is
// reachable from any live state; terminal states never move.
func (s TaskState) CanAdvanceTo(next TaskState) bool {
	if s.Terminal() {
		return false
	}
	if next.Terminal() {
		return true
	}
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// TaskError is the client-facing failure attached to a failed task.
type TaskError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Task tracks one asynchronous upload through the extraction pipeline.
type Task struct {
	ID        string      `json:"task_id"`
	CaseID    string      `json:"case_id"`
	State     TaskState   `json:"state"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message"`
	Result    *CaseRecord `json:"result,omitempty"`
	Error     *TaskError  `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Clone returns a copy safe to hand out of the registry.
func (t *Task) Clone() Task {
	out := *t
	out.Result = t.Result.Clone()
	if t.Error != nil {
		e := *t.Error
		out.Error = &e
	}
	return out
}
