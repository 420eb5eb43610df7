// Package task implements the kernel's worker pool: a bounded set of
// workers draining a shared backlog, per-affinity dedicated goroutines (the
// idiomatic-Go rendering of C++ thread affinity), a timer goroutine for
// deferred starts, and cooperative task stealing so a blocked caller makes
// progress instead of idling. See SPEC_FULL.md §4.8.
package task

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a task's lifecycle state.
type Status int

const (
	Pending Status = iota
	Running
	Finalizing
	Completed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Finalizing:
		return "finalizing"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Affinity pins a task (and any subtask that switches to it) to a single
// dedicated goroutine, so subtasks sharing an affinity never run
// concurrently with each other. NoAffinity means "any pool worker".
type Affinity uint32

// NoAffinity is the zero value: the task runs on the shared worker pool
// rather than a dedicated goroutine.
const NoAffinity Affinity = 0

// SubTask runs one step of a Task. It returns (result, true, _) to
// short-circuit straight to finalization, (_, false, NoAffinity) to run the
// next subtask on the same worker, or (_, false, affinity) to have the task
// rescheduled onto affinity's dedicated goroutine before its next subtask
// runs.
type SubTask func(data any) (result any, hasResult bool, switchTo Affinity)

// Task is an ordered sequence of SubTasks plus an optional finalizer.
type Task struct {
	ID        uuid.UUID
	Data      any
	Affinity  Affinity
	StartTime time.Time
	Deadline  time.Time

	subtasks  []SubTask
	finalizer SubTask
	next      int
	queuedAt  time.Time

	mu      sync.Mutex
	status  Status
	result  any
	err     error
	waiters []chan struct{}
}

// NewTask creates a task with the given data payload and subtask sequence.
// Use WithFinalizer and WithAffinity to set the optional fields before
// queueing it.
func NewTask(data any, subtasks ...SubTask) *Task {
	return &Task{
		ID:       uuid.New(),
		Data:     data,
		subtasks: subtasks,
		status:   Pending,
	}
}

// WithFinalizer sets the subtask run after the task's last subtask
// completes, with the result of the subtask that produced one (nil if
// none did) as data. After a subtask fails it runs with nil data; a task
// cancelled through Manager.CancelTask does not run it. It returns t for
// chaining at construction time.
func (t *Task) WithFinalizer(fn SubTask) *Task {
	t.finalizer = fn
	return t
}

// WithAffinity pins t to affinity from the start, rather than switching to
// it mid-run. It returns t for chaining at construction time.
func (t *Task) WithAffinity(a Affinity) *Task {
	t.Affinity = a
	return t
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Result returns the value set by the subtask (or finalizer) that completed
// the task, and any error recorded for it. Only meaningful once Status is
// Completed or Cancelled.
func (t *Task) Result() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// addWaiter registers a channel to be closed when the task leaves Running/
// Finalizing. Returns nil if the task is already done.
func (t *Task) addWaiter() chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == Completed || t.status == Cancelled {
		return nil
	}
	ch := make(chan struct{})
	t.waiters = append(t.waiters, ch)
	return ch
}

func (t *Task) wakeWaiters() {
	t.mu.Lock()
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// markQueued records the moment t was handed to a queue, so the worker that
// eventually picks it up can report how long it waited.
func (t *Task) markQueued() {
	t.mu.Lock()
	t.queuedAt = time.Now()
	t.mu.Unlock()
}

// waitDuration reports how long t has sat queued since its last markQueued.
func (t *Task) waitDuration() time.Duration {
	t.mu.Lock()
	queuedAt := t.queuedAt
	t.mu.Unlock()
	if queuedAt.IsZero() {
		return 0
	}
	return time.Since(queuedAt)
}

func (t *Task) finish(result any, err error, final Status) {
	t.mu.Lock()
	t.result = result
	t.err = err
	t.status = final
	t.mu.Unlock()
	t.wakeWaiters()
}

// done reports whether the task has left the active lifecycle.
func (t *Task) done() bool {
	s := t.Status()
	return s == Completed || s == Cancelled
}
