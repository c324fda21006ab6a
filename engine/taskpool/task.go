package taskpool

import "sync"

// Kind identifies the class of work a task carries. Worker handlers switch
// on it to route the payload; the pool itself never inspects payloads.
type Kind string

const (
	KindParse          Kind = "parse"
	KindDecimate       Kind = "decimate"
	KindTransformChunk Kind = "transform-chunk"
	KindClearCache     Kind = "clear-cache"
)

// Task is one unit of work. The pool owns it from submission until its
// future settles. Payload buffers are handed over, not copied; after
// submission the caller must not read or mutate them.
type Task struct {
	ID      uint64
	Kind    Kind
	Payload any
}

// Progress is emitted by workers as a side channel while a task runs.
// Delivery is best effort and an event may arrive after the task settled.
type Progress struct {
	TaskID   uint64
	Fraction float64
}

// Handler executes tasks on a single worker. The pool creates one handler
// per worker, so handler state such as a result cache is never shared
// across workers and needs no locking.
type Handler interface {
	Process(ctx *TaskContext, task Task) (any, error)
}

// CacheClearer is implemented by handlers that keep per-worker caches and
// want to honor Pool.ClearCache broadcasts.
type CacheClearer interface {
	ClearCache()
}

// HandlerFactory builds the handler for one worker. Returning an error
// drops that worker; the pool degrades to fewer workers rather than
// failing construction.
type HandlerFactory func(workerID int) (Handler, error)

// TaskContext is handed to handlers for cancellation checks and progress
// reporting. Cancellation is advisory: handlers poll Cancelled at natural
// checkpoints and abandon work when it reports true.
type TaskContext struct {
	taskID    uint64
	cancelled *sync.Map
	progress  func(Progress)
}

func (tc *TaskContext) TaskID() uint64 {
	return tc.taskID
}

// Cancelled reports whether a cancellation request was broadcast for the
// running task.
func (tc *TaskContext) Cancelled() bool {
	_, ok := tc.cancelled.Load(tc.taskID)
	return ok
}

// ReportProgress forwards a fractional source position to the submitter,
// when a callback was registered. Must not block.
func (tc *TaskContext) ReportProgress(fraction float64) {
	if tc.progress != nil {
		tc.progress(Progress{TaskID: tc.taskID, Fraction: fraction})
	}
}
