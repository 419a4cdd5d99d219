package queue

import (
	"fmt"
	"sync"

	"github.com/notargets/kerneldispatch/kernelerrors"
)

// QueueState is a Queue's position in its Open/Flushing/Idle cycle.
type QueueState int

const (
	Open QueueState = iota
	Flushing
	Idle
)

func (s QueueState) String() string {
	switch s {
	case Open:
		return "open"
	case Flushing:
		return "flushing"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// FillInit selects how fill_array initialises the bytes it touches.
type FillInit int

const (
	FillZero FillInit = iota
	FillValue
	FillUninitialized
)

// job is one FIFO entry: the work to run once its prereqs resolve, and
// the Event that carries its outcome.
type job struct {
	prereqs []*Event
	run     func() (any, error)
	ev      *Event
}

// Queue orders submissions for one back-end context and turns each into
// an Event. A synchronous Queue (the host back-end) runs every job to
// completion on the submitting goroutine before Submit returns, matching
// the single-threaded cooperative scheduling model; an asynchronous Queue
// runs jobs FIFO on a single background worker, so submissions are
// observed in submission order while the caller is freed immediately.
type Queue struct {
	mu          sync.Mutex
	backend     string
	synchronous bool
	state       QueueState
	jobs        chan *job
	inflight    sync.WaitGroup
}

// NewQueue returns a Queue for backend. synchronous selects the host
// back-end's run-to-completion-on-submit scheduling; false starts a
// single background worker that drains submissions FIFO.
func NewQueue(backend string, synchronous bool) *Queue {
	q := &Queue{backend: backend, synchronous: synchronous, state: Open}
	if !synchronous {
		q.jobs = make(chan *job, 256)
		go q.worker()
	}
	return q
}

// Backend reports the back-end name this queue serves, satisfying
// argument.Context for handlers that only need to know which device's
// buffers they may reference.
func (q *Queue) Backend() string { return q.backend }

func (q *Queue) worker() {
	for j := range q.jobs {
		q.runJob(j)
	}
}

func (q *Queue) reopen() {
	q.mu.Lock()
	if q.state == Idle {
		q.state = Open
	}
	q.mu.Unlock()
}

func (q *Queue) checkPrereqBackends(prereqs []*Event) error {
	for _, p := range prereqs {
		if p == nil {
			continue
		}
		if p.Backend() != "" && p.Backend() != q.backend {
			return &kernelerrors.BackendMismatch{Expected: q.backend, Got: p.Backend()}
		}
	}
	return nil
}

// Submit enqueues run (the kernel's actual launch) against grid, whose
// length must equal dimCount — the kernel's declared dimension count —
// returning an Event that resolves when run completes. Every prereq must
// belong to this queue's back-end; the returned Event does not reach
// Resolved until all prereqs have reached a terminal state, and carries
// PrereqFailed if any of them failed.
func (q *Queue) Submit(opName string, dimCount int, grid []uint32, prereqs []*Event, run func() error) (*Event, error) {
	if len(grid) != dimCount {
		return nil, fmt.Errorf("queue: submit %s: grid has %d axes, kernel declares %d", opName, len(grid), dimCount)
	}
	if err := q.checkPrereqBackends(prereqs); err != nil {
		return nil, err
	}

	ev := newPendingEvent(q.backend)
	ev.profiling.mark(&ev.profiling.QueuedAt)
	q.reopen()

	j := &job{prereqs: prereqs, run: func() (any, error) { return nil, run() }, ev: ev}
	q.dispatch(j)
	return ev, nil
}

// FillArray enqueues fill (a back-end's initialisation of a device
// buffer sub-range) and returns an Event whose Result, once Resolved, is
// result — typically the same MemoryHandle the caller passed in.
func (q *Queue) FillArray(opName string, result any, prereqs []*Event, fill func() error) (*Event, error) {
	if err := q.checkPrereqBackends(prereqs); err != nil {
		return nil, err
	}

	ev := newPendingEvent(q.backend)
	ev.profiling.mark(&ev.profiling.QueuedAt)
	q.reopen()

	j := &job{prereqs: prereqs, run: func() (any, error) { return result, fill() }, ev: ev}
	q.dispatch(j)
	return ev, nil
}

func (q *Queue) dispatch(j *job) {
	q.inflight.Add(1)
	if q.synchronous {
		q.runJob(j)
		return
	}
	q.jobs <- j
}

func (q *Queue) runJob(j *job) {
	defer q.inflight.Done()

	j.ev.profiling.mark(&j.ev.profiling.SubmittedAt)
	for _, p := range j.prereqs {
		if p == nil {
			continue
		}
		if err := p.Await(); err != nil {
			j.ev.fail(&kernelerrors.PrereqFailed{Inner: err})
			return
		}
	}

	j.ev.profiling.mark(&j.ev.profiling.StartedAt)
	result, err := j.run()
	j.ev.profiling.mark(&j.ev.profiling.EndedAt)
	if err != nil {
		j.ev.fail(err)
		return
	}
	j.ev.resolve(result)
}

// Flush submits all queued work without waiting for it to complete. On
// this Queue's synchronous (host) mode every submission already ran to
// completion by the time Submit returned, so Flush is a no-op; on an
// asynchronous Queue the background worker already owns the FIFO, so
// Flush only marks the state transition idempotent callers expect.
func (q *Queue) Flush() {
	q.mu.Lock()
	if q.state == Open {
		q.state = Flushing
	}
	q.mu.Unlock()
}

// Finish blocks until every submission accepted so far has reached a
// terminal state, then idles the queue. A later Submit reopens it.
func (q *Queue) Finish() {
	q.mu.Lock()
	q.state = Flushing
	q.mu.Unlock()

	q.inflight.Wait()

	q.mu.Lock()
	q.state = Idle
	q.mu.Unlock()
}

// State reports the queue's current Open/Flushing/Idle state.
func (q *Queue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}
