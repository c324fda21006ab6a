package engine

import (
	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/lodestone/engine/streaming"
)

type ApplicationConfig struct {
	// The application name used in logs.
	Name     string
	LogLevel log.Level
	// ConfigPath optionally points at a TOML loader policy file. Empty
	// means built-in defaults.
	ConfigPath string
	// WatchConfig hot-reloads the policy file on change.
	WatchConfig bool
	// MaxWorkers caps the decode worker pool. Zero picks a platform
	// default.
	MaxWorkers int
	Profile    streaming.PerformanceProfile
}
