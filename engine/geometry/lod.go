package geometry

import (
	"fmt"
)

// Level is one resolution of a progressive-detail object.
type Level struct {
	Level  int
	Buffer *Buffer
	// SwitchDistance is the viewer distance at which a renderer swaps to
	// this level. Level 0 is the coarsest and shown farthest away.
	SwitchDistance   float32
	DecimationFactor float32
	TriangleCount    int
}

// LevelStat is the per-level diagnostic view.
type LevelStat struct {
	DecimationFactor float32
	SwitchDistance   float32
	TriangleCount    int
}

// LODAssembler owns the ordered level set of one progressive-detail
// object. Switch distances must be strictly decreasing from level 0
// (coarsest, farthest) to the finest level; out-of-order inserts are
// rejected so the invariant can never be silently violated.
type LODAssembler struct {
	levels []Level
}

func NewLODAssembler() *LODAssembler {
	return &LODAssembler{}
}

// AddLevel appends a finer level. The buffer's ownership moves to the
// assembler.
func (a *LODAssembler) AddLevel(buf *Buffer, switchDistance, decimationFactor float32) error {
	if buf == nil {
		return fmt.Errorf("lod: nil buffer for level %d", len(a.levels))
	}
	if n := len(a.levels); n > 0 && switchDistance >= a.levels[n-1].SwitchDistance {
		return fmt.Errorf("lod: switch distance %.2f not below previous level's %.2f", switchDistance, a.levels[n-1].SwitchDistance)
	}
	a.levels = append(a.levels, Level{
		Level:            len(a.levels),
		Buffer:           buf,
		SwitchDistance:   switchDistance,
		DecimationFactor: decimationFactor,
		TriangleCount:    buf.TriangleCount(),
	})
	return nil
}

// CurrentBest returns the finest level inserted so far, or nil when empty.
func (a *LODAssembler) CurrentBest() *Buffer {
	if len(a.levels) == 0 {
		return nil
	}
	return a.levels[len(a.levels)-1].Buffer
}

// LevelCount returns the number of inserted levels.
func (a *LODAssembler) LevelCount() int {
	return len(a.levels)
}

// Levels exposes the ordered level set for renderer consumption. The
// returned slice is the assembler's own; callers treat it as read-only.
func (a *LODAssembler) Levels() []Level {
	return a.levels
}

// LevelStats returns per-level diagnostics in insertion order.
func (a *LODAssembler) LevelStats() []LevelStat {
	stats := make([]LevelStat, len(a.levels))
	for i, lvl := range a.levels {
		stats[i] = LevelStat{
			DecimationFactor: lvl.DecimationFactor,
			SwitchDistance:   lvl.SwitchDistance,
			TriangleCount:    lvl.TriangleCount,
		}
	}
	return stats
}
