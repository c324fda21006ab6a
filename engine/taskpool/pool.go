package taskpool

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/lodestone/engine/containers"
	"github.com/spaghettifunk/lodestone/engine/core"
)

// Options configures a Pool. The zero value is usable: MaxWorkers defaults
// to the platform thread hint and workers stop immediately on Dispose.
type Options struct {
	// MaxWorkers caps the number of concurrently in-flight tasks. Defaults
	// to runtime.NumCPU()-1, clamped to at least 1.
	MaxWorkers int
	// KeepWorkersOnDispose leaves workers finishing their in-flight task
	// after Dispose instead of stopping them right away. Their results are
	// discarded either way.
	KeepWorkersOnDispose bool
}

type pendingTask struct {
	task     Task
	future   *Future
	progress func(Progress)
}

type worker struct {
	id      int
	handler Handler
	tasks   chan *pendingTask
	control chan Kind
}

// Pool fans work out across a fixed set of worker goroutines with FIFO
// queuing, advisory cancellation and synchronously updated metrics. A
// worker runs one task at a time to completion; tasks dispatch in
// submission order whenever a worker frees up, but completion order across
// workers is not guaranteed.
type Pool struct {
	opts Options

	mu       sync.Mutex
	queue    *containers.RingQueue[*pendingTask]
	futures  map[uint64]*Future
	idle     []*worker
	workers  []*worker
	disposed bool

	nextID    atomic.Uint64
	cancelled sync.Map // task id -> struct{}{}

	// Counters below are guarded by mu.
	tasksProcessed  uint64
	totalProcessMs  float64
	peakQueueLength int
	activeWorkers   int
}

// Metrics is a snapshot of the pool counters, updated on each terminal
// task message.
type Metrics struct {
	TasksProcessed  uint64
	AvgProcessingMs float64
	PeakQueueLength int
	QueueLength     int
	ActiveWorkers   int
	TotalWorkers    int
}

// New builds a pool and eagerly starts its workers. A worker whose handler
// factory fails is dropped and logged; the pool degrades to fewer workers
// rather than failing construction.
func New(factory HandlerFactory, opts Options) *Pool {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.NumCPU() - 1
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}

	p := &Pool{
		opts:    opts,
		queue:   containers.NewRingQueue[*pendingTask](16),
		futures: make(map[uint64]*Future),
	}

	for i := 0; i < opts.MaxWorkers; i++ {
		handler, err := factory(i)
		if err != nil {
			core.LogWarn("taskpool: dropping worker %d: %v", i, err)
			continue
		}
		w := &worker{
			id:      i,
			handler: handler,
			tasks:   make(chan *pendingTask, 1),
			control: make(chan Kind, 4),
		}
		p.workers = append(p.workers, w)
		p.idle = append(p.idle, w)
		go p.runWorker(w)
	}
	if len(p.workers) == 0 {
		core.LogError("taskpool: no workers could be started, submissions will fail")
	}
	return p
}

// SubmitOption customizes a single submission.
type SubmitOption func(*pendingTask)

// WithProgress registers a callback for the task's progress side channel.
// It is invoked from the worker goroutine and must not block.
func WithProgress(fn func(Progress)) SubmitOption {
	return func(pt *pendingTask) {
		pt.progress = fn
	}
}

// Submit enqueues a task and returns its future. Task ids are monotonic
// and never reused for the lifetime of the pool.
func (p *Pool) Submit(kind Kind, payload any, opts ...SubmitOption) *Future {
	id := p.nextID.Add(1)
	f := newFuture(id)
	pt := &pendingTask{
		task:   Task{ID: id, Kind: kind, Payload: payload},
		future: f,
	}
	for _, opt := range opts {
		opt(pt)
	}

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		f.settle(nil, core.ErrDisposed)
		return f
	}
	if len(p.workers) == 0 {
		p.mu.Unlock()
		f.settle(nil, core.ErrWorkerUnavailable)
		return f
	}
	p.futures[id] = f
	if w := p.takeIdleLocked(); w != nil {
		p.activeWorkers++
		// The channel has capacity 1 and the worker is idle, so this
		// cannot block while holding the lock.
		w.tasks <- pt
		p.mu.Unlock()
		return f
	}
	p.queue.Enqueue(pt)
	if p.queue.Len() > p.peakQueueLength {
		p.peakQueueLength = p.queue.Len()
	}
	p.mu.Unlock()
	return f
}

// Cancel aborts a task. A still-queued task is removed deterministically:
// its future settles with ErrCancelled and Cancel returns true. A task
// already handed to a worker is cancelled on a best-effort basis only: the
// request becomes visible to every worker, the future settles with
// ErrCancelled immediately, and a late worker result is discarded by id
// mismatch. In that case, or when the id is unknown, Cancel returns false.
func (p *Pool) Cancel(taskID uint64) bool {
	p.mu.Lock()
	if pt, ok := p.queue.RemoveFunc(func(pt *pendingTask) bool { return pt.task.ID == taskID }); ok {
		delete(p.futures, taskID)
		p.mu.Unlock()
		pt.future.settle(nil, core.ErrCancelled)
		return true
	}
	f, inflight := p.futures[taskID]
	if inflight {
		delete(p.futures, taskID)
		p.cancelled.Store(taskID, struct{}{})
	}
	p.mu.Unlock()

	if inflight {
		f.settle(nil, core.ErrCancelled)
	}
	return false
}

// ClearCache broadcasts a cache-clear instruction to every worker. Fire
// and forget: a worker busy with a long task picks it up once it next
// reads its control channel.
func (p *Pool) ClearCache() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	workers := p.workers
	p.mu.Unlock()

	for _, w := range workers {
		select {
		case w.control <- KindClearCache:
		default:
		}
	}
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := Metrics{
		TasksProcessed:  p.tasksProcessed,
		PeakQueueLength: p.peakQueueLength,
		QueueLength:     p.queue.Len(),
		ActiveWorkers:   p.activeWorkers,
		TotalWorkers:    len(p.workers),
	}
	if p.tasksProcessed > 0 {
		m.AvgProcessingMs = p.totalProcessMs / float64(p.tasksProcessed)
	}
	return m
}

// TotalWorkers reports how many workers actually started.
func (p *Pool) TotalWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Dispose rejects every pending future with ErrDisposed, clears the queue
// and stops the workers. The pool is unusable afterwards.
func (p *Pool) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	var rejected []*Future
	for {
		pt, ok := p.queue.Dequeue()
		if !ok {
			break
		}
		rejected = append(rejected, pt.future)
	}
	for id, f := range p.futures {
		rejected = append(rejected, f)
		delete(p.futures, id)
	}
	workers := p.workers
	p.idle = nil
	p.mu.Unlock()

	for _, f := range rejected {
		f.settle(nil, core.ErrDisposed)
	}
	if !p.opts.KeepWorkersOnDispose {
		for _, w := range workers {
			close(w.tasks)
		}
	}
}

func (p *Pool) takeIdleLocked() *worker {
	if len(p.idle) == 0 {
		return nil
	}
	w := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	return w
}

func (p *Pool) runWorker(w *worker) {
	for {
		select {
		case pt, ok := <-w.tasks:
			if !ok {
				return
			}
			p.execute(w, pt)
		case kind := <-w.control:
			if kind == KindClearCache {
				if c, ok := w.handler.(CacheClearer); ok {
					c.ClearCache()
				}
			}
		}
	}
}

func (p *Pool) execute(w *worker, pt *pendingTask) {
	clock := core.NewClock()
	clock.Start()
	result, err := p.runHandler(w, pt)
	clock.Stop()
	p.complete(w, pt, result, err, clock.ElapsedMs())
}

// runHandler isolates handler panics so a crashing task cannot take down
// its worker. The worker stays usable afterwards.
func (p *Pool) runHandler(w *worker, pt *pendingTask) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: worker %d, task %d: %v", core.ErrInternal, w.id, pt.task.ID, r)
			core.LogError("taskpool: %v", err)
		}
	}()
	tc := &TaskContext{
		taskID:    pt.task.ID,
		cancelled: &p.cancelled,
		progress:  pt.progress,
	}
	return w.handler.Process(tc, pt.task)
}

// complete records the terminal message for a task, settles its future if
// it is still registered and hands the worker its next task, if any.
func (p *Pool) complete(w *worker, pt *pendingTask, result any, err error, elapsedMs float64) {
	p.mu.Lock()
	f, live := p.futures[pt.task.ID]
	delete(p.futures, pt.task.ID)
	// Drop the cancellation marker under the same lock Cancel stores it
	// under. Ids are never reused, so an entry that outlived its task would
	// stay in the map forever.
	p.cancelled.Delete(pt.task.ID)
	p.tasksProcessed++
	p.totalProcessMs += elapsedMs

	var next *pendingTask
	if !p.disposed {
		if n, ok := p.queue.Dequeue(); ok {
			next = n
		}
	}
	if next != nil {
		w.tasks <- next
	} else {
		p.activeWorkers--
		if !p.disposed {
			p.idle = append(p.idle, w)
		}
	}
	p.mu.Unlock()

	if live {
		f.settle(result, err)
	} else {
		core.LogDebug("taskpool: discarding late result for task %d", pt.task.ID)
	}
}
