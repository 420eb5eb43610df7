package task

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/log"
	"github.com/edgekernel/core/pkg/metrics"
)

// Manager is a bounded worker pool with a FIFO backlog for unaffined
// tasks, one dedicated goroutine per Affinity in use, and a timer
// goroutine for deferred starts. The worker-growth/backlog shape is
// grounded on pkg/scheduler.Scheduler's ticker-driven loop and
// pkg/worker.Worker's stopCh-based shutdown; here every pool worker is
// started up front rather than grown lazily, since goroutines are cheap
// enough that "allocate on demand up to the cap" collapses to "start the
// cap's worth of readers on a shared channel".
type Manager struct {
	capacity int
	backlog  *queue
	active   int32

	stopCh chan struct{}
	wg     sync.WaitGroup

	affMu   sync.Mutex
	affinit map[Affinity]*queue

	timerMu    sync.Mutex
	timerTasks []*Task
	timerWake  chan struct{}

	shutdownMu sync.Mutex
	shutdown   bool
}

// NewManager creates a manager with workers pool goroutines draining the
// shared backlog, plus one timer goroutine. A zero or negative workers
// count is treated as the default of 5, matching the reference pool size.
func NewManager(workers int) *Manager {
	if workers <= 0 {
		workers = 5
	}
	m := &Manager{
		capacity:  workers,
		backlog:   newQueue(),
		stopCh:    make(chan struct{}),
		affinit:   make(map[Affinity]*queue),
		timerWake: make(chan struct{}, 1),
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.workerLoop()
	}
	m.wg.Add(1)
	go m.timerLoop()
	return m
}

func affinityLabel(a Affinity) string {
	if a == NoAffinity {
		return "none"
	}
	return strconv.FormatUint(uint64(a), 10)
}

func (m *Manager) reportQueueDepth(a Affinity, depth int) {
	metrics.TaskQueueDepth.WithLabelValues(affinityLabel(a)).Set(float64(depth))
}

// QueueTask transitions t from Pending to Running and routes it: to its
// affinity's dedicated queue if it has one, otherwise to the shared
// backlog.
func (m *Manager) QueueTask(t *Task) {
	t.setStatus(Running)
	t.markQueued()
	if t.Affinity != NoAffinity {
		q := m.affinityQueue(t.Affinity)
		q.push(t)
		m.reportQueueDepth(t.Affinity, q.len())
		return
	}
	m.backlog.push(t)
	m.reportQueueDepth(NoAffinity, m.backlog.len())
}

// affinityQueue returns the queue for a, creating it and its dedicated
// goroutine on first use.
func (m *Manager) affinityQueue(a Affinity) *queue {
	m.affMu.Lock()
	defer m.affMu.Unlock()
	q, ok := m.affinit[a]
	if !ok {
		q = newQueue()
		m.affinit[a] = q
		m.wg.Add(1)
		go m.affinityLoop(a, q)
	}
	return q
}

func (m *Manager) workerLoop() {
	defer m.wg.Done()
	for {
		t := m.backlog.waitPop(m.stopCh)
		if t == nil {
			return
		}
		metrics.TaskWaitDuration.Observe(t.waitDuration().Seconds())
		m.runTask(t, NoAffinity)
	}
}

func (m *Manager) affinityLoop(a Affinity, q *queue) {
	defer m.wg.Done()
	for {
		t := q.waitPop(m.stopCh)
		if t == nil {
			return
		}
		metrics.TaskWaitDuration.Observe(t.waitDuration().Seconds())
		m.runTask(t, a)
	}
}

// enqueueAffinity reschedules t, mid-run, onto affinity a's dedicated
// queue, creating it if this is the first task to use it.
func (m *Manager) enqueueAffinity(a Affinity, t *Task) {
	t.markQueued()
	q := m.affinityQueue(a)
	q.push(t)
	m.reportQueueDepth(a, q.len())
}

// callSubtask runs sub, converting a panic into an error the way
// pkg/pubsub.dispatch and pkg/future.AndThen convert a panicking callback
// into a CallbackError.
func callSubtask(sub SubTask, data any) (result any, hasResult bool, switchTo Affinity, failure error) {
	defer func() {
		if r := recover(); r != nil {
			failure = coreerr.Newf(coreerr.CallbackError, "panic in subtask: %v", r)
		}
	}()
	result, hasResult, switchTo = sub(data)
	return
}

// runTask runs t's remaining subtasks on the calling goroutine, which is
// executing on behalf of affinity runningOn (NoAffinity for a pool
// worker). It returns once t completes, is cancelled, or switches to a
// different affinity (in which case it has already been requeued there).
func (m *Manager) runTask(t *Task, runningOn Affinity) {
	if t.done() {
		return
	}
	atomic.AddInt32(&m.active, 1)
	timer := metrics.NewTimer()
	defer func() {
		atomic.AddInt32(&m.active, -1)
		metrics.TaskRunDuration.WithLabelValues(affinityLabel(t.Affinity)).Observe(timer.Duration().Seconds())
		metrics.TaskWorkerUtilization.Set(float64(atomic.LoadInt32(&m.active)) / float64(m.capacity))
	}()

	var result any
	for t.next < len(t.subtasks) {
		if t.done() {
			return
		}
		sub := t.subtasks[t.next]
		res, hasResult, switchTo, failure := callSubtask(sub, t.Data)
		if failure != nil {
			m.cancelWithFinalizer(t, failure)
			return
		}
		t.next++
		if hasResult {
			result = res
			break
		}
		if switchTo != NoAffinity && switchTo != runningOn {
			t.Affinity = switchTo
			m.enqueueAffinity(switchTo, t)
			return
		}
	}
	m.finalize(t, result)
}

// finalize runs t's finalizer (if any) with the last subtask's result as
// data, then marks t Completed. A panicking finalizer cancels the task
// instead, with no further action.
func (m *Manager) finalize(t *Task, result any) {
	t.setStatus(Finalizing)
	final := result
	if t.finalizer != nil {
		panicked := runFinalizer(t.finalizer, result, &final)
		if panicked {
			t.finish(nil, coreerr.New(coreerr.TaskCancelledError, "panic in finalizer"), Cancelled)
			metrics.TasksCompletedTotal.WithLabelValues("cancelled").Inc()
			return
		}
	}
	t.finish(final, nil, Completed)
	metrics.TasksCompletedTotal.WithLabelValues("completed").Inc()
}

// cancelWithFinalizer handles a subtask failure: the finalizer (if any)
// still runs, with no data, but its outcome is discarded since the task is
// already cancelled.
func (m *Manager) cancelWithFinalizer(t *Task, cause error) {
	t.setStatus(Finalizing)
	if t.finalizer != nil {
		var discard any
		runFinalizer(t.finalizer, nil, &discard)
	}
	t.finish(nil, cause, Cancelled)
	log.WithTaskID(t.ID.String()).Warn().Err(cause).Msg("task cancelled by subtask failure")
	metrics.TasksCompletedTotal.WithLabelValues("cancelled").Inc()
}

// runFinalizer invokes fn, writing its result into *out if it produced one,
// and reports whether fn panicked.
func runFinalizer(fn SubTask, data any, out *any) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
		}
	}()
	result, hasResult, _ := fn(data)
	if hasResult {
		*out = result
	}
	return false
}

// SetStartTime schedules t to be queued at (or after) at. If at is not in
// the future, t is queued immediately.
func (m *Manager) SetStartTime(t *Task, at time.Time) {
	if !at.After(time.Now()) {
		m.QueueTask(t)
		return
	}
	t.StartTime = at

	m.timerMu.Lock()
	wasEarliest := len(m.timerTasks) == 0 || at.Before(m.timerTasks[0].StartTime)
	idx := sort.Search(len(m.timerTasks), func(i int) bool {
		return m.timerTasks[i].StartTime.After(at)
	})
	m.timerTasks = append(m.timerTasks, nil)
	copy(m.timerTasks[idx+1:], m.timerTasks[idx:])
	m.timerTasks[idx] = t
	m.timerMu.Unlock()

	if wasEarliest {
		select {
		case m.timerWake <- struct{}{}:
		default:
		}
	}
}

func (m *Manager) removeTimerTask(t *Task) bool {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	for i, item := range m.timerTasks {
		if item == t {
			m.timerTasks = append(m.timerTasks[:i:i], m.timerTasks[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Manager) timerLoop() {
	defer m.wg.Done()
	for {
		m.timerMu.Lock()
		var wait time.Duration
		if len(m.timerTasks) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(m.timerTasks[0].StartTime)
			if wait < 0 {
				wait = 0
			}
		}
		m.timerMu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			m.popDueTasks()
		case <-m.timerWake:
			timer.Stop()
		case <-m.stopCh:
			timer.Stop()
			return
		}
	}
}

func (m *Manager) popDueTasks() {
	now := time.Now()
	var due []*Task
	m.timerMu.Lock()
	i := 0
	for i < len(m.timerTasks) && !m.timerTasks[i].StartTime.After(now) {
		i++
	}
	due, m.timerTasks = m.timerTasks[:i:i], m.timerTasks[i:]
	m.timerMu.Unlock()

	for _, t := range due {
		m.QueueTask(t)
	}
}

// CancelTask transitions t from Pending or Running to Cancelled, removing
// it from the timer set if it was scheduled there. Completed, Finalizing,
// and already-Cancelled tasks are unaffected, and CancelTask reports false
// for them. Cancellation never interrupts a subtask already executing; it
// only prevents the next one from starting.
func (m *Manager) CancelTask(t *Task) bool {
	t.mu.Lock()
	switch t.status {
	case Completed, Cancelled, Finalizing:
		t.mu.Unlock()
		return false
	}
	t.status = Cancelled
	t.mu.Unlock()

	m.removeTimerTask(t)
	m.backlog.remove(t)
	if t.Affinity != NoAffinity {
		m.affMu.Lock()
		q, ok := m.affinit[t.Affinity]
		m.affMu.Unlock()
		if ok {
			q.remove(t)
		}
	}
	t.wakeWaiters()
	metrics.TasksCompletedTotal.WithLabelValues("cancelled").Inc()
	return true
}

// WaitForCompletion blocks until t finishes (Completed or Cancelled) or
// deadline passes, whichever comes first. While blocked it performs
// cooperative task stealing: it first tries to pull t itself off the shared
// backlog (an affinity-bound t is left to its own goroutine) and run it
// directly, then falls back to running any other task from the shared
// backlog, so a caller holding a worker slot keeps
// the pool from deadlocking. A zero deadline means wait forever.
func (m *Manager) WaitForCompletion(t *Task, deadline time.Time) bool {
	ch := t.addWaiter()
	if ch == nil {
		return t.done()
	}
	for {
		if t.done() {
			return true
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return t.done()
		}
		if m.stealOne(t) {
			continue
		}
		var timeoutCh <-chan time.Time
		if !deadline.IsZero() {
			timeoutCh = time.After(time.Until(deadline))
		}
		select {
		case <-ch:
			return t.done()
		case <-timeoutCh:
			return t.done()
		case <-time.After(10 * time.Millisecond):
			// re-poll for newly runnable work
		}
	}
}

// stealOne runs one runnable task on the calling goroutine: preferring t
// itself if it is still sitting unrun in its queue, otherwise any task
// from the shared backlog. It reports whether it found and ran something.
func (m *Manager) stealOne(t *Task) bool {
	// An affinity-bound task must only ever run on its affinity's
	// dedicated goroutine, so a waiter cannot pull it out of that queue
	// without breaking the serialization affinity exists to provide;
	// stealing is limited to unaffined work.
	if t.Affinity == NoAffinity && m.backlog.remove(t) {
		metrics.TaskWaitDuration.Observe(t.waitDuration().Seconds())
		m.runTask(t, NoAffinity)
		return true
	}
	if stolen, ok := m.backlog.tryPop(); ok {
		metrics.TaskWaitDuration.Observe(stolen.waitDuration().Seconds())
		m.runTask(stolen, NoAffinity)
		return true
	}
	return false
}

// Shutdown cancels every queued and scheduled task, then signals and joins
// every worker, affinity, and timer goroutine. Workers already inside a
// subtask finish it and exit on their next loop iteration.
func (m *Manager) Shutdown() {
	m.shutdownMu.Lock()
	if m.shutdown {
		m.shutdownMu.Unlock()
		return
	}
	m.shutdown = true
	m.shutdownMu.Unlock()

	m.timerMu.Lock()
	pending := m.timerTasks
	m.timerTasks = nil
	m.timerMu.Unlock()
	for _, t := range pending {
		t.finish(nil, coreerr.New(coreerr.TaskCancelledError, "manager shutdown"), Cancelled)
	}

	for {
		t, ok := m.backlog.tryPop()
		if !ok {
			break
		}
		t.finish(nil, coreerr.New(coreerr.TaskCancelledError, "manager shutdown"), Cancelled)
	}

	m.affMu.Lock()
	queues := make([]*queue, 0, len(m.affinit))
	for _, q := range m.affinit {
		queues = append(queues, q)
	}
	m.affMu.Unlock()
	for _, q := range queues {
		for {
			t, ok := q.tryPop()
			if !ok {
				break
			}
			t.finish(nil, coreerr.New(coreerr.TaskCancelledError, "manager shutdown"), Cancelled)
		}
	}

	close(m.stopCh)
	m.wg.Wait()
}
