package streaming

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/spaghettifunk/lodestone/engine/core"
	"github.com/spaghettifunk/lodestone/engine/taskpool"
)

// testConfig scales the tier thresholds down so the tests exercise every
// strategy without multi-megabyte payloads. Ratios mirror the defaults.
func testConfig() LoaderConfig {
	cfg := DefaultConfig()
	cfg.StandardMaxBytes = 4 << 10
	cfg.ChunkedMaxBytes = 32 << 10
	cfg.LargeAssetBytes = 256 << 10
	cfg.LevelYieldMs = 0
	return cfg
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	pool := NewWorkerPool(taskpool.Options{MaxWorkers: 2})
	t.Cleanup(pool.Dispose)
	return NewLoader(pool, DefaultProfile(), testConfig())
}

// payloadOfAtLeast synthesizes a triangle soup payload of at least n bytes.
func payloadOfAtLeast(t *testing.T, n int) []byte {
	t.Helper()
	tris := (n-meshHeaderSize)/(9*4) + 1
	payload := EncodeMesh(soupMesh(tris))
	if len(payload) < n {
		t.Fatalf("synthesized payload is %d bytes, want at least %d", len(payload), n)
	}
	return payload
}

func drainLevels(ch chan LevelReadyEvent) []LevelReadyEvent {
	var events []LevelReadyEvent
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestLoadStandardEmitsSingleResult(t *testing.T) {
	l := newTestLoader(t)
	// 40 triangles encode well below the standard tier's threshold.
	payload := EncodeMesh(soupMesh(40))
	if int64(len(payload)) >= testConfig().StandardMaxBytes {
		t.Fatalf("payload is %d bytes, want below the standard threshold %d",
			len(payload), testConfig().StandardMaxBytes)
	}
	levels := make(chan LevelReadyEvent, 4)

	model, err := l.Load(context.Background(), NewBytesSource("small", payload), WithLevelReady(levels))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if model.Strategy != StrategyStandard {
		t.Fatalf("Strategy = %q, want standard", model.Strategy)
	}
	if model.Stats.Triangles != 40 {
		t.Fatalf("Stats.Triangles = %d, want 40", model.Stats.Triangles)
	}
	if model.LOD != nil {
		t.Fatal("standard load produced a LOD object")
	}

	events := drainLevels(levels)
	if len(events) != 1 {
		t.Fatalf("got %d level events, want 1", len(events))
	}
	if events[0].Quality != "full" || events[0].TriangleCount != 40 {
		t.Fatalf("event = %+v, want full quality with 40 triangles", events[0])
	}
}

func TestLoadChunkedEmitsPreviewThenMedium(t *testing.T) {
	l := newTestLoader(t)
	payload := payloadOfAtLeast(t, 8<<10)
	levels := make(chan LevelReadyEvent, 4)

	model, err := l.Load(context.Background(), NewBytesSource("mid", payload), WithLevelReady(levels))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if model.Strategy != StrategyChunked {
		t.Fatalf("Strategy = %q, want chunked", model.Strategy)
	}

	events := drainLevels(levels)
	if len(events) != 2 {
		t.Fatalf("got %d level events, want 2 (preview, medium)", len(events))
	}
	if events[0].Quality != "preview" || events[1].Quality != "medium" {
		t.Fatalf("qualities = (%q, %q), want (preview, medium)", events[0].Quality, events[1].Quality)
	}
	if events[1].TriangleCount <= events[0].TriangleCount {
		t.Fatalf("triangle counts = (%d, %d), want the medium pass finer than the preview",
			events[0].TriangleCount, events[1].TriangleCount)
	}
	if model.Stats.Triangles != events[1].TriangleCount {
		t.Fatalf("model keeps %d triangles, want the medium pass's %d",
			model.Stats.Triangles, events[1].TriangleCount)
	}
}

func TestLoadLODEmitsThreeProgressiveLevels(t *testing.T) {
	l := newTestLoader(t)
	payload := payloadOfAtLeast(t, 45<<10)
	levels := make(chan LevelReadyEvent, 8)

	model, err := l.Load(context.Background(), NewBytesSource("big", payload), WithLevelReady(levels))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if model.Strategy != StrategyLOD {
		t.Fatalf("Strategy = %q, want lod", model.Strategy)
	}
	if model.LOD == nil {
		t.Fatal("LOD load produced no assembler")
	}

	events := drainLevels(levels)
	if len(events) != 3 {
		t.Fatalf("got %d level events, want 3", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].TriangleCount <= events[i-1].TriangleCount {
			t.Fatalf("level %d has %d triangles after %d, want strictly increasing detail",
				i, events[i].TriangleCount, events[i-1].TriangleCount)
		}
	}

	stats := model.LOD.LevelStats()
	if len(stats) != 3 {
		t.Fatalf("assembler holds %d levels, want 3", len(stats))
	}
	for i := 1; i < len(stats); i++ {
		if stats[i].SwitchDistance >= stats[i-1].SwitchDistance {
			t.Fatalf("switch distances not strictly decreasing: %v", stats)
		}
	}
	if model.Buffer != model.LOD.CurrentBest() {
		t.Fatal("model buffer is not the assembler's finest level")
	}
	if model.Stats.Triangles != events[2].TriangleCount {
		t.Fatalf("Stats.Triangles = %d, want the finest level's %d",
			model.Stats.Triangles, events[2].TriangleCount)
	}
}

func TestLoadWithoutPoolFallsBackToCallingGoroutine(t *testing.T) {
	l := NewLoader(nil, DefaultProfile(), testConfig())
	model, err := l.Load(context.Background(), NewBytesSource("small", EncodeMesh(soupMesh(10))))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if model.Stats.Triangles != 10 {
		t.Fatalf("Stats.Triangles = %d, want 10", model.Stats.Triangles)
	}
}

type unknownSizeSource struct {
	data []byte
}

func (s *unknownSizeSource) Name() string { return "unknown" }

func (s *unknownSizeSource) Size(context.Context) (int64, bool, error) {
	return 0, false, nil
}

func (s *unknownSizeSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func TestLoadUnknownSizeUsesStandardStrategy(t *testing.T) {
	l := newTestLoader(t)
	model, err := l.Load(context.Background(), &unknownSizeSource{data: EncodeMesh(soupMesh(8))})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if model.Strategy != StrategyStandard {
		t.Fatalf("Strategy = %q, want standard for unknown sizes", model.Strategy)
	}
}

func TestLoadCancelledContext(t *testing.T) {
	l := newTestLoader(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Load(ctx, NewBytesSource("small", EncodeMesh(soupMesh(5))))
	if !errors.Is(err, core.ErrCancelled) {
		t.Fatalf("Load error = %v, want ErrCancelled", err)
	}
}

func TestLoadCorruptPayloadFails(t *testing.T) {
	l := newTestLoader(t)
	_, err := l.Load(context.Background(), NewBytesSource("junk", []byte("not a mesh payload")))
	if !errors.Is(err, core.ErrDecode) {
		t.Fatalf("Load error = %v, want ErrDecode", err)
	}
}

func TestLoadGzippedPayload(t *testing.T) {
	l := newTestLoader(t)
	payload := EncodeMesh(soupMesh(12))
	model, err := l.Load(context.Background(), NewBytesSource("mesh.gz", gzipped(t, payload)))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if model.Stats.Triangles != 12 {
		t.Fatalf("Stats.Triangles = %d, want 12", model.Stats.Triangles)
	}
}

func TestLoadEmitsProgressEvents(t *testing.T) {
	l := newTestLoader(t)
	progress := make(chan ProgressEvent, 64)

	_, err := l.Load(context.Background(), NewBytesSource("small", EncodeMesh(soupMesh(10))),
		WithProgress(progress))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	var sawDownload, sawParse bool
	for {
		select {
		case ev := <-progress:
			switch ev.Phase {
			case PhaseDownloading:
				sawDownload = true
			case PhaseParsing:
				sawParse = true
			}
			continue
		default:
		}
		break
	}
	if !sawDownload || !sawParse {
		t.Fatalf("progress phases seen: download=%t parse=%t, want both", sawDownload, sawParse)
	}
}

func TestSetConfigAffectsSubsequentLoads(t *testing.T) {
	l := newTestLoader(t)
	cfg := l.Config()
	cfg.StandardMaxBytes = 1 // force everything into the chunked tier
	l.SetConfig(cfg)

	levels := make(chan LevelReadyEvent, 4)
	model, err := l.Load(context.Background(), NewBytesSource("small", EncodeMesh(soupMesh(40))),
		WithLevelReady(levels))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if model.Strategy != StrategyChunked {
		t.Fatalf("Strategy = %q, want chunked after config change", model.Strategy)
	}
}

func TestDecodeWithTimeoutExpires(t *testing.T) {
	// A payload the synchronous path cannot finish in time is reported as
	// a timeout, not a hang.
	payload := EncodeMesh(soupMesh(2000))
	_, err := decodeWithTimeout(context.Background(), payload, 1, time.Nanosecond)
	if !errors.Is(err, core.ErrTimeout) {
		t.Fatalf("decodeWithTimeout error = %v, want ErrTimeout", err)
	}
}
