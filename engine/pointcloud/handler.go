package pointcloud

import (
	"fmt"

	"github.com/spaghettifunk/lodestone/engine/core"
	"github.com/spaghettifunk/lodestone/engine/taskpool"
)

// ChunkJob pairs a chunk request with its options for pool submission.
type ChunkJob struct {
	Request *Request
	Options *Options
}

// Process implements taskpool.Handler, routing transform-chunk work to the
// per-worker processor. Cancellation is honored at the progress interval;
// a cancelled chunk settles with core.ErrCancelled and any later duplicate
// result is dropped by the pool's id mismatch check.
func (p *Processor) Process(ctx *taskpool.TaskContext, task taskpool.Task) (any, error) {
	switch task.Kind {
	case taskpool.KindTransformChunk:
		job, ok := task.Payload.(*ChunkJob)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected payload %T for kind %q", core.ErrInternal, task.Payload, task.Kind)
		}
		hooks := &Hooks{
			Progress:  func(f float64) { ctx.ReportProgress(f) },
			Cancelled: ctx.Cancelled,
		}
		return p.ProcessChunk(job.Request, job.Options, hooks), nil
	case taskpool.KindClearCache:
		p.ClearCache()
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unsupported task kind %q", core.ErrInternal, task.Kind)
	}
}
