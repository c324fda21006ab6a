package streaming

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spaghettifunk/lodestone/engine/core"
	"github.com/spaghettifunk/lodestone/engine/geometry"
	"github.com/spaghettifunk/lodestone/engine/taskpool"
)

// Strategy is the loading tier picked from the payload size.
type Strategy string

const (
	StrategyStandard Strategy = "standard"
	StrategyChunked  Strategy = "chunked"
	StrategyLOD      Strategy = "lod"
)

// maxExtraLevels caps refinement passes beyond the preview regardless of
// what the performance profile asks for.
const maxExtraLevels = 3

// ModelStats is gathered by full traversal of the finest decoded buffer.
type ModelStats struct {
	Vertices  int
	Triangles int
	SizeBytes int64
}

// Model is the renderer-consumable outcome of one load. Buffer ownership
// rests with the model; earlier pipeline stages no longer reference it.
type Model struct {
	ID       uuid.UUID
	Name     string
	Strategy Strategy
	// Buffer is the finest single resolution decoded so far. For LOD
	// loads it aliases the assembler's current best level.
	Buffer *geometry.Buffer
	// LOD is set only for the LOD strategy.
	LOD    *geometry.LODAssembler
	Repair geometry.Report
	Stats  ModelStats
}

type loadOptions struct {
	progress   chan<- ProgressEvent
	levelReady chan<- LevelReadyEvent
}

// LoadOption customizes one load request.
type LoadOption func(*loadOptions)

// WithProgress subscribes a channel to progress events. Emission never
// blocks: a full channel just misses intermediate updates.
func WithProgress(ch chan<- ProgressEvent) LoadOption {
	return func(lo *loadOptions) {
		lo.progress = ch
	}
}

// WithLevelReady subscribes a channel to level-ready events. The channel
// should be buffered for at least the expected level count; emission never
// blocks the pipeline.
func WithLevelReady(ch chan<- LevelReadyEvent) LoadOption {
	return func(lo *loadOptions) {
		lo.levelReady = ch
	}
}

// Loader orchestrates the end-to-end load of one large asset: size the
// payload, pick a strategy, drive successive decimated passes and hand the
// assembled result to the renderer. Safe for concurrent loads.
type Loader struct {
	pool    *taskpool.Pool
	profile PerformanceProfile

	mu  sync.RWMutex
	cfg LoaderConfig
}

// NewLoader builds a loader. pool may be nil, in which case decodes run on
// the calling goroutine under the configured timeout.
func NewLoader(pool *taskpool.Pool, profile PerformanceProfile, cfg LoaderConfig) *Loader {
	return &Loader{
		pool:    pool,
		profile: profile,
		cfg:     cfg,
	}
}

// Config returns the active configuration snapshot.
func (l *Loader) Config() LoaderConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// SetConfig swaps the configuration. Wired to WatchConfig for live policy
// reloads; loads already in flight keep their snapshot.
func (l *Loader) SetConfig(cfg LoaderConfig) {
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
}

// Load runs the full state machine for one asset: sizing, strategy
// selection, progressive decode, repair and assembly. Cancellation is
// honored at every phase boundary.
func (l *Loader) Load(ctx context.Context, src Source, opts ...LoadOption) (*Model, error) {
	lo := &loadOptions{}
	for _, opt := range opts {
		opt(lo)
	}
	cfg := l.Config()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: before sizing", core.ErrCancelled)
	}

	size, known, err := src.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("sizing %q: %w", src.Name(), err)
	}
	strategy := cfg.classify(size, known)
	core.LogInfo("streaming: %q sized at %d bytes (known=%t), strategy %q", src.Name(), size, known, strategy)

	emitProgress(lo, ProgressEvent{Phase: PhaseDownloading, Progress: 0})
	payload, err := fetchPayload(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: during download", core.ErrCancelled)
		}
		return nil, fmt.Errorf("downloading %q: %w", src.Name(), err)
	}
	emitProgress(lo, ProgressEvent{Phase: PhaseDownloading, Progress: 1})

	model := &Model{
		ID:       uuid.New(),
		Name:     src.Name(),
		Strategy: strategy,
		Stats:    ModelStats{SizeBytes: int64(len(payload))},
	}

	switch strategy {
	case StrategyStandard:
		err = l.loadStandard(ctx, cfg, payload, model, lo)
	case StrategyChunked:
		err = l.loadChunked(ctx, cfg, payload, model, lo)
	default:
		err = l.loadLOD(ctx, cfg, size, payload, model, lo)
	}
	if err != nil {
		return nil, err
	}

	model.Stats.Vertices = model.Buffer.VertexCount()
	model.Stats.Triangles = model.Buffer.TriangleCount()
	return model, nil
}

// loadStandard decodes the whole payload in one pass at full quality.
func (l *Loader) loadStandard(ctx context.Context, cfg LoaderConfig, payload []byte, model *Model, lo *loadOptions) error {
	buf, err := l.decode(ctx, payload, 1, PhaseParsing, 0, lo, cfg.DecodeTimeout())
	if err != nil {
		return fmt.Errorf("standard decode: %w", err)
	}
	model.Repair = geometry.Repair(buf)
	model.Buffer = buf
	emitLevelReady(lo, LevelReadyEvent{Level: 0, Buffer: buf, Quality: "full", TriangleCount: buf.TriangleCount()})
	return nil
}

// loadChunked shows a very coarse preview immediately and replaces it with
// one medium-quality pass. Two tiers only; no persistent LOD object.
func (l *Loader) loadChunked(ctx context.Context, cfg LoaderConfig, payload []byte, model *Model, lo *loadOptions) error {
	preview, err := l.decodePreview(ctx, cfg, payload, cfg.Chunked.PreviewFactor, lo)
	if err != nil {
		return fmt.Errorf("chunked preview: %w", err)
	}
	model.Repair = geometry.Repair(preview)
	model.Buffer = preview
	emitLevelReady(lo, LevelReadyEvent{Level: 0, Buffer: preview, Quality: "preview", TriangleCount: preview.TriangleCount()})

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: before medium-quality pass", core.ErrCancelled)
	}

	medium, err := l.decode(ctx, payload, cfg.Chunked.MediumFactor, PhaseMediumQuality, 0, lo, cfg.DecodeTimeout())
	if err != nil {
		if errors.Is(err, core.ErrCancelled) {
			return err
		}
		// The preview already shipped; a failed refinement degrades
		// rather than failing the load.
		core.LogWarn("streaming: medium-quality pass failed, keeping preview: %v", err)
		return nil
	}
	model.Repair = geometry.Repair(medium)
	model.Buffer = medium
	emitLevelReady(lo, LevelReadyEvent{Level: 1, Buffer: medium, Quality: "medium", TriangleCount: medium.TriangleCount()})
	return nil
}

// loadLOD assembles a progressive-detail object: a coarse preview as the
// farthest level, then successively finer table levels. A level failing
// mid-sequence aborts the remainder but keeps what completed.
func (l *Loader) loadLOD(ctx context.Context, cfg LoaderConfig, size int64, payload []byte, model *Model, lo *loadOptions) error {
	band := cfg.band(size)
	assembler := geometry.NewLODAssembler()
	model.LOD = assembler

	preview, err := l.decodePreview(ctx, cfg, payload, band.PreviewFactor, lo)
	if err != nil {
		return fmt.Errorf("lod preview: %w", err)
	}
	model.Repair = geometry.Repair(preview)
	if err := assembler.AddLevel(preview, band.PreviewDistance, float32(band.PreviewFactor)); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInternal, err)
	}
	model.Buffer = preview
	emitLevelReady(lo, LevelReadyEvent{Level: 0, Buffer: preview, Quality: "preview", TriangleCount: preview.TriangleCount()})

	_, srcTriangles, statErr := MeshStats(payload)
	if statErr != nil {
		srcTriangles = 0
	}

	extra := core.Clamp(l.profile.LODLevels, 0, maxExtraLevels)

	added := 0
	lastDistance := band.PreviewDistance
	for i := 0; i < len(band.Factors) && i < len(band.Distances); i++ {
		if added >= extra {
			break
		}
		factor := band.Factors[i]
		distance := band.Distances[i]
		if distance >= lastDistance {
			// Keeps switch distances strictly decreasing when the table's
			// first entry coincides with the preview distance.
			continue
		}
		if l.profile.MaxTriangles > 0 && srcTriangles > 0 {
			if est := int(float64(srcTriangles) * factor); est > l.profile.MaxTriangles {
				core.LogWarn("streaming: skipping factor %.2f, estimated %d triangles exceeds profile cap %d", factor, est, l.profile.MaxTriangles)
				continue
			}
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: before level %d", core.ErrCancelled, assembler.LevelCount())
		}
		cooperativeYield(ctx, cfg.LevelYield())

		level := assembler.LevelCount()
		buf, err := l.decode(ctx, payload, factor, PhaseLOD, level, lo, cfg.DecodeTimeout())
		if err != nil {
			if errors.Is(err, core.ErrCancelled) {
				return err
			}
			core.LogWarn("streaming: level %d failed, keeping %d completed levels: %v", level, assembler.LevelCount(), err)
			break
		}
		rep := geometry.Repair(buf)
		if err := assembler.AddLevel(buf, distance, float32(factor)); err != nil {
			core.LogError("streaming: %v", err)
			break
		}
		model.Buffer = buf
		model.Repair = rep
		emitLevelReady(lo, LevelReadyEvent{
			Level:         level,
			Buffer:        buf,
			Quality:       fmt.Sprintf("lod-%d", level),
			TriangleCount: buf.TriangleCount(),
		})
		lastDistance = distance
		added++
	}
	return nil
}

// decodePreview bounds preview generation with its own short timeout.
// Expiry substitutes a placeholder instead of failing the pipeline.
func (l *Loader) decodePreview(ctx context.Context, cfg LoaderConfig, payload []byte, factor float64, lo *loadOptions) (*geometry.Buffer, error) {
	buf, err := l.decode(ctx, payload, factor, PhasePreview, 0, lo, cfg.PreviewTimeout())
	if err == nil {
		return buf, nil
	}
	if errors.Is(err, core.ErrTimeout) {
		core.LogWarn("streaming: preview timed out, substituting placeholder")
		return geometry.Placeholder(), nil
	}
	return nil, err
}

// decode runs one decimated pass, through the pool when available and on
// the calling goroutine otherwise. Both paths enforce the timeout.
func (l *Loader) decode(ctx context.Context, payload []byte, factor float64, phase Phase, level int, lo *loadOptions, timeout time.Duration) (*geometry.Buffer, error) {
	if l.pool != nil && l.profile.UseWorkerPool && l.pool.TotalWorkers() > 0 {
		return l.decodePooled(ctx, payload, factor, phase, level, lo, timeout)
	}
	if l.profile.UseWorkerPool {
		core.LogWarn("streaming: %v, decoding on the calling goroutine", core.ErrWorkerUnavailable)
	}
	return decodeWithTimeout(ctx, payload, factor, timeout)
}

func (l *Loader) decodePooled(ctx context.Context, payload []byte, factor float64, phase Phase, level int, lo *loadOptions, timeout time.Duration) (*geometry.Buffer, error) {
	kind := taskpool.KindParse
	if factor < 1 {
		kind = taskpool.KindDecimate
	}
	fut := l.pool.Submit(kind, &decodeJob{data: payload, decimation: factor},
		taskpool.WithProgress(func(p taskpool.Progress) {
			emitProgress(lo, ProgressEvent{Phase: phase, Progress: p.Fraction, Level: level})
		}))

	tctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := fut.Await(tctx)
	if err != nil {
		if !fut.Settled() {
			// Await gave up on the context; release the in-flight task so
			// a worker does not keep grinding for a dead request.
			l.pool.Cancel(fut.ID())
		}
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: decode abandoned", core.ErrCancelled)
		case tctx.Err() != nil:
			return nil, fmt.Errorf("%w: decode exceeded %s", core.ErrTimeout, timeout)
		default:
			return nil, err
		}
	}
	buf, ok := res.(*geometry.Buffer)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected decode result %T", core.ErrInternal, res)
	}
	emitProgress(lo, ProgressEvent{Phase: phase, Progress: 1, Level: level})
	return buf, nil
}

// decodeWithTimeout is the same-goroutine fallback. The explicit budget
// keeps a full synchronous decode from hanging the pipeline indefinitely.
func decodeWithTimeout(ctx context.Context, payload []byte, factor float64, timeout time.Duration) (*geometry.Buffer, error) {
	type outcome struct {
		buf *geometry.Buffer
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		buf, err := DecodeMesh(payload, factor)
		ch <- outcome{buf: buf, err: err}
	}()

	tctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case out := <-ch:
		return out.buf, out.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: decode abandoned", core.ErrCancelled)
		}
		return nil, fmt.Errorf("%w: synchronous decode exceeded %s", core.ErrTimeout, timeout)
	}
}

// cooperativeYield briefly hands control back between LOD levels so an
// interactive caller stays responsive. Bounded: returns after the
// configured interval or as soon as ctx is done.
func cooperativeYield(ctx context.Context, d time.Duration) {
	if d <= 0 {
		runtime.Gosched()
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// emitProgress never blocks; a slow consumer misses intermediate updates.
func emitProgress(lo *loadOptions, ev ProgressEvent) {
	if lo.progress == nil {
		return
	}
	select {
	case lo.progress <- ev:
	default:
	}
}

// emitLevelReady never blocks the pipeline. Dropped level events are
// logged since a consumer normally sizes its channel for the level count.
func emitLevelReady(lo *loadOptions, ev LevelReadyEvent) {
	if lo.levelReady == nil {
		return
	}
	select {
	case lo.levelReady <- ev:
	default:
		core.LogWarn("streaming: level-ready consumer too slow, dropping level %d", ev.Level)
	}
}
