package streaming

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/lodestone/engine/core"
)

// LoaderConfig tunes strategy selection and the progressive refinement
// policy. The size thresholds and LOD tables are configuration defaults,
// not physics; deployments override them per asset class via TOML.
type LoaderConfig struct {
	// StandardMaxBytes is the exclusive upper bound of the standard tier.
	StandardMaxBytes int64 `toml:"standard_max_bytes"`
	// ChunkedMaxBytes is the exclusive upper bound of the chunked tier;
	// anything at or above it loads with the LOD strategy.
	ChunkedMaxBytes int64 `toml:"chunked_max_bytes"`
	// LargeAssetBytes switches the LOD policy to the conservative band.
	LargeAssetBytes int64 `toml:"large_asset_bytes"`

	// DecodeTimeoutMs bounds one full synchronous decode.
	DecodeTimeoutMs int64 `toml:"decode_timeout_ms"`
	// PreviewTimeoutMs bounds preview generation; expiry substitutes a
	// placeholder rather than failing the load.
	PreviewTimeoutMs int64 `toml:"preview_timeout_ms"`
	// LevelYieldMs is the cooperative pause between LOD levels.
	LevelYieldMs int64 `toml:"level_yield_ms"`

	Chunked  ChunkedPolicy `toml:"chunked"`
	LOD      LODBand       `toml:"lod"`
	LODLarge LODBand       `toml:"lod_large"`
}

// ChunkedPolicy holds the two quality tiers of the chunked strategy.
type ChunkedPolicy struct {
	PreviewFactor float64 `toml:"preview_factor"`
	MediumFactor  float64 `toml:"medium_factor"`
}

// LODBand is one file-size band of the LOD refinement table. Factors and
// Distances pair up per level.
type LODBand struct {
	PreviewFactor   float64   `toml:"preview_factor"`
	PreviewDistance float32   `toml:"preview_distance"`
	Factors         []float64 `toml:"factors"`
	Distances       []float32 `toml:"distances"`
}

// DefaultConfig mirrors the reference policy: 5MB/30MB tier thresholds and
// a LOD table that turns more conservative past 100MB.
func DefaultConfig() LoaderConfig {
	return LoaderConfig{
		StandardMaxBytes: 5 << 20,
		ChunkedMaxBytes:  30 << 20,
		LargeAssetBytes:  100 << 20,
		DecodeTimeoutMs:  60_000,
		PreviewTimeoutMs: 10_000,
		LevelYieldMs:     15,
		Chunked: ChunkedPolicy{
			PreviewFactor: 0.05,
			MediumFactor:  0.3,
		},
		LOD: LODBand{
			PreviewFactor:   0.02,
			PreviewDistance: 45,
			Factors:         []float64{0.05, 0.2, 0.5},
			Distances:       []float32{45, 20, 0},
		},
		LODLarge: LODBand{
			PreviewFactor:   0.02,
			PreviewDistance: 60,
			Factors:         []float64{0.02, 0.1, 0.3},
			Distances:       []float32{60, 30, 0},
		},
	}
}

func (c LoaderConfig) DecodeTimeout() time.Duration {
	return time.Duration(c.DecodeTimeoutMs) * time.Millisecond
}

func (c LoaderConfig) PreviewTimeout() time.Duration {
	return time.Duration(c.PreviewTimeoutMs) * time.Millisecond
}

func (c LoaderConfig) LevelYield() time.Duration {
	return time.Duration(c.LevelYieldMs) * time.Millisecond
}

// classify picks a loading strategy from the payload size. Unknown sizes
// default to the smallest tier.
func (c LoaderConfig) classify(size int64, known bool) Strategy {
	switch {
	case !known:
		return StrategyStandard
	case size < c.StandardMaxBytes:
		return StrategyStandard
	case size < c.ChunkedMaxBytes:
		return StrategyChunked
	default:
		return StrategyLOD
	}
}

// band returns the LOD table matching the payload size.
func (c LoaderConfig) band(size int64) LODBand {
	if size >= c.LargeAssetBytes {
		return c.LODLarge
	}
	return c.LOD
}

// LoadConfig overlays a TOML file onto the defaults.
func LoadConfig(path string) (LoaderConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// WatchConfig reloads the config file whenever it changes and hands the
// result to onChange. It returns a stop function releasing the watcher.
func WatchConfig(path string, onChange func(LoaderConfig)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors typically replace the file, which
	// drops a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := LoadConfig(path)
				if err != nil {
					core.LogWarn("streaming: config reload failed: %v", err)
					continue
				}
				core.LogInfo("streaming: reloaded config from %s", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				core.LogWarn("streaming: config watcher: %v", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
