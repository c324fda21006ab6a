package engine

import (
	"context"

	"github.com/spaghettifunk/lodestone/engine/streaming"
)

// Game is the consumer the engine drives: typically a render frontend,
// here anything that wants geometry streamed to it. The engine owns the
// worker pool and loader; the game decides what to load and reacts to the
// levels as they become usable.
type Game struct {
	ApplicationConfig *ApplicationConfig
	Engine            *Engine
	State             interface{}
	FnInitialize      Initialize
	FnRun             Run
	FnLevelReady      LevelReady
	FnProgress        Progress
	FnShutdown        Shutdown
}

type Initialize func() error
type Run func(ctx context.Context) error
type LevelReady func(ev streaming.LevelReadyEvent)
type Progress func(ev streaming.ProgressEvent)
type Shutdown func() error
