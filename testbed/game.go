package testbed

import (
	"context"
	"math"

	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/lodestone/engine"
	"github.com/spaghettifunk/lodestone/engine/core"
	"github.com/spaghettifunk/lodestone/engine/geometry"
	"github.com/spaghettifunk/lodestone/engine/streaming"
)

// TestGame is a stand-in render consumer: it synthesizes a terrain-like
// mesh payload, streams it through the engine and logs every level it
// would hand to a real renderer.
type TestGame struct {
	*engine.Game
}

type gameState struct {
	gridSize     int
	levelsShown  int
	currentModel *streaming.Model
}

func NewTestGame() (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:     "Lodestone Testbed",
				LogLevel: log.DebugLevel,
				Profile:  streaming.DefaultProfile(),
			},
			State: &gameState{
				gridSize: 96,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnRun = tg.Run
	tg.FnLevelReady = tg.LevelReady
	tg.FnProgress = tg.Progress
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	// Scale the tier thresholds down so the synthesized payload walks the
	// full progressive path instead of the single-pass one.
	cfg := g.Engine.Loader().Config()
	cfg.StandardMaxBytes = 64 << 10
	cfg.ChunkedMaxBytes = 128 << 10
	g.Engine.Loader().SetConfig(cfg)

	return nil
}

func (g *TestGame) Run(ctx context.Context) error {
	state := g.State.(*gameState)

	payload := streaming.EncodeMesh(terrainMesh(state.gridSize))
	src := streaming.NewBytesSource("testbed-terrain", payload)

	model, err := g.Engine.Load(ctx, src)
	if err != nil {
		return err
	}
	state.currentModel = model

	core.LogInfo("loaded %q (%s): %d vertices, %d triangles in %d bytes",
		model.Name, model.Strategy, model.Stats.Vertices, model.Stats.Triangles, model.Stats.SizeBytes)
	if model.Repair.FixedCount > 0 {
		core.LogInfo("repair fixed %d coordinates, flagged %d degenerate triangles",
			model.Repair.FixedCount, len(model.Repair.DegenerateTriangles))
	}
	if model.LOD != nil {
		for i, ls := range model.LOD.LevelStats() {
			core.LogInfo("level %d: factor %.2f, switch distance %.1f, %d triangles",
				i, ls.DecimationFactor, ls.SwitchDistance, ls.TriangleCount)
		}
	}
	return nil
}

func (g *TestGame) LevelReady(ev streaming.LevelReadyEvent) {
	state := g.State.(*gameState)
	state.levelsShown++
	core.LogInfo("level %d ready (%s): %d triangles", ev.Level, ev.Quality, ev.TriangleCount)
}

func (g *TestGame) Progress(ev streaming.ProgressEvent) {
	core.LogDebug("progress %s: %.0f%%", ev.Phase, ev.Progress*100)
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	core.LogDebug("testbed shown %d levels, shutting down", state.levelsShown)
	return nil
}

// terrainMesh builds a wavy height-field soup with a couple of broken
// coordinates left in on purpose so the repair pass has work to do.
func terrainMesh(n int) *geometry.Buffer {
	buf := &geometry.Buffer{}
	height := func(x, z int) float32 {
		return float32(2 * math.Sin(float64(x)*0.3) * math.Cos(float64(z)*0.3))
	}
	emit := func(x, z, dx, dz int) {
		buf.Positions = append(buf.Positions, float32(x+dx), height(x+dx, z+dz), float32(z+dz))
		buf.Normals = append(buf.Normals, 0, 1, 0)
	}
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			emit(x, z, 0, 0)
			emit(x, z, 1, 0)
			emit(x, z, 0, 1)
			emit(x, z, 1, 0)
			emit(x, z, 1, 1)
			emit(x, z, 0, 1)
		}
	}
	// A hole in the data, as real exports tend to have.
	buf.Positions[31] = float32(math.NaN())
	return buf
}
