package engine

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/lodestone/engine/core"
	"github.com/spaghettifunk/lodestone/engine/streaming"
	"github.com/spaghettifunk/lodestone/engine/taskpool"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Engine wires the decode worker pool, the streaming loader and the
// configuration policy together and drives the game instance.
type Engine struct {
	currentStage Stage
	gameInstance *Game
	pool         *taskpool.Pool
	loader       *streaming.Loader
	clock        *core.Clock
	stopWatcher  func()
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("engine: game instance with application config required")
	}
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		clock:        core.NewClock(),
	}
	g.Engine = e
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	config := e.gameInstance.ApplicationConfig
	core.SetLogLevel(config.LogLevel)

	cfg := streaming.DefaultConfig()
	if config.ConfigPath != "" {
		c, err := streaming.LoadConfig(config.ConfigPath)
		if err != nil {
			return err
		}
		cfg = c
	}

	e.pool = streaming.NewWorkerPool(taskpool.Options{MaxWorkers: config.MaxWorkers})
	e.loader = streaming.NewLoader(e.pool, config.Profile, cfg)

	if config.WatchConfig && config.ConfigPath != "" {
		stop, err := streaming.WatchConfig(config.ConfigPath, e.loader.SetConfig)
		if err != nil {
			return err
		}
		e.stopWatcher = stop
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("%s initialized with %d decode workers", config.Name, e.pool.TotalWorkers())
	return nil
}

func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine: Run called before initialization completed")
	}
	e.currentStage = EngineStageRunning
	e.clock.Start()

	err := e.gameInstance.FnRun(ctx)

	e.clock.Stop()
	m := e.pool.Metrics()
	core.LogInfo("run finished after %.1fms: %d tasks processed, avg %.2fms, peak queue %d",
		e.clock.ElapsedMs(), m.TasksProcessed, m.AvgProcessingMs, m.PeakQueueLength)
	return err
}

// Load streams one asset through the loader, forwarding progress and
// level-ready events to the game's callbacks in order.
func (e *Engine) Load(ctx context.Context, src streaming.Source) (*streaming.Model, error) {
	progress := make(chan streaming.ProgressEvent, 64)
	levels := make(chan streaming.LevelReadyEvent, 8)

	// The channels are never closed: a worker that lost a timeout race may
	// still emit after the load returns, and those sends must only be
	// dropped, never panic. The forwarder drains what is buffered and
	// stops.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev := <-progress:
				if e.gameInstance.FnProgress != nil {
					e.gameInstance.FnProgress(ev)
				}
			case ev := <-levels:
				if e.gameInstance.FnLevelReady != nil {
					e.gameInstance.FnLevelReady(ev)
				}
			case <-stop:
				for {
					select {
					case ev := <-levels:
						if e.gameInstance.FnLevelReady != nil {
							e.gameInstance.FnLevelReady(ev)
						}
					default:
						return
					}
				}
			}
		}
	}()

	model, err := e.loader.Load(ctx, src,
		streaming.WithProgress(progress),
		streaming.WithLevelReady(levels))
	close(stop)
	<-done
	return model, err
}

// Loader exposes the underlying streaming loader for callers that manage
// their own event channels.
func (e *Engine) Loader() *streaming.Loader {
	return e.loader
}

func (e *Engine) Metrics() taskpool.Metrics {
	return e.pool.Metrics()
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	if e.stopWatcher != nil {
		e.stopWatcher()
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			return err
		}
	}
	if e.pool != nil {
		e.pool.Dispose()
	}
	return nil
}
