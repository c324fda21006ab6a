package streaming

import (
	"fmt"

	"github.com/spaghettifunk/lodestone/engine/core"
	"github.com/spaghettifunk/lodestone/engine/pointcloud"
	"github.com/spaghettifunk/lodestone/engine/taskpool"
)

// decodeJob is the payload of parse and decimate tasks. Ownership of the
// data moves to the worker for the duration of the task.
type decodeJob struct {
	data       []byte
	decimation float64
}

// workHandler is the per-worker task router: mesh payload decodes plus
// point-chunk transforms through a worker-owned processor.
type workHandler struct {
	proc *pointcloud.Processor
}

func (h *workHandler) Process(ctx *taskpool.TaskContext, task taskpool.Task) (any, error) {
	switch task.Kind {
	case taskpool.KindParse, taskpool.KindDecimate:
		job, ok := task.Payload.(*decodeJob)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected payload %T for kind %q", core.ErrInternal, task.Payload, task.Kind)
		}
		buf, err := DecodeMesh(job.data, job.decimation)
		if err != nil {
			return nil, err
		}
		ctx.ReportProgress(1)
		return buf, nil
	default:
		return h.proc.Process(ctx, task)
	}
}

// ClearCache implements taskpool.CacheClearer.
func (h *workHandler) ClearCache() {
	h.proc.ClearCache()
}

// NewWorkerPool builds a task pool whose workers understand the loader's
// task kinds. Each worker owns its own chunk processor and result cache.
func NewWorkerPool(opts taskpool.Options) *taskpool.Pool {
	return taskpool.New(func(workerID int) (taskpool.Handler, error) {
		return &workHandler{proc: pointcloud.NewProcessor()}, nil
	}, opts)
}
