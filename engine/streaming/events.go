package streaming

import "github.com/spaghettifunk/lodestone/engine/geometry"

// Phase labels the pipeline stage a progress event refers to.
type Phase string

const (
	PhaseDownloading   Phase = "downloading"
	PhaseParsing       Phase = "parsing"
	PhasePreview       Phase = "preview"
	PhaseLOD           Phase = "lod"
	PhaseMediumQuality Phase = "medium-quality"
)

// ProgressEvent is an ephemeral pipeline update. Events for one task are
// emitted in increasing source-position order by the worker, but delivery
// across goroutines is not guaranteed strictly monotonic.
type ProgressEvent struct {
	Phase    Phase
	Progress float64
	// Level is set for PhaseLOD events.
	Level int
}

// LevelReadyEvent announces a newly usable resolution. Ownership of the
// buffer passes to the consumer side together with the model that
// references it; consumers must tolerate a coarse placeholder as the first
// value received.
type LevelReadyEvent struct {
	Level         int
	Buffer        *geometry.Buffer
	Quality       string
	TriangleCount int
}
