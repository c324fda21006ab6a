package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Buffer holds one decoded mesh resolution. Exactly one pipeline stage
// owns a buffer at a time; stages hand it over rather than copying, so a
// previous owner must not read or mutate it after the transfer.
type Buffer struct {
	// Positions holds packed xyz triples; its length is always a multiple
	// of three.
	Positions []float32
	Normals   []float32
	Texcoords []float32
	Indices   []uint32
}

// Extents is an axis-aligned bounding box.
type Extents struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Sphere is a bounding sphere.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

func (b *Buffer) VertexCount() int {
	return len(b.Positions) / 3
}

// TriangleCount derives the triangle count from the index list, or from
// the raw position triples for non-indexed buffers.
func (b *Buffer) TriangleCount() int {
	if len(b.Indices) > 0 {
		return len(b.Indices) / 3
	}
	return len(b.Positions) / 9
}

// ComputeExtents scans every finite coordinate. Axes without a single
// finite sample come back as (+inf, -inf) and must be defaulted by the
// caller.
func (b *Buffer) ComputeExtents() Extents {
	ext := Extents{
		Min: mgl32.Vec3{float32(math.Inf(1)), float32(math.Inf(1)), float32(math.Inf(1))},
		Max: mgl32.Vec3{float32(math.Inf(-1)), float32(math.Inf(-1)), float32(math.Inf(-1))},
	}
	for i := 0; i+2 < len(b.Positions); i += 3 {
		for axis := 0; axis < 3; axis++ {
			v := b.Positions[i+axis]
			if !isFinite(v) {
				continue
			}
			if v < ext.Min[axis] {
				ext.Min[axis] = v
			}
			if v > ext.Max[axis] {
				ext.Max[axis] = v
			}
		}
	}
	return ext
}

// BoundingSphere centers on the extents midpoint with the maximum vertex
// distance as radius. Buffers with no finite data produce a non-finite
// radius; Repair substitutes a safe fallback in that case.
func (b *Buffer) BoundingSphere() Sphere {
	ext := b.ComputeExtents()
	center := ext.Min.Add(ext.Max).Mul(0.5)
	maxSq := float32(math.Inf(-1))
	for i := 0; i+2 < len(b.Positions); i += 3 {
		d := mgl32.Vec3{b.Positions[i], b.Positions[i+1], b.Positions[i+2]}.Sub(center)
		if sq := d.Dot(d); sq > maxSq {
			maxSq = sq
		}
	}
	return Sphere{Center: center, Radius: float32(math.Sqrt(float64(maxSq)))}
}

// Placeholder returns the tiny stand-in shown when preview generation
// times out: a single unit triangle at the origin.
func Placeholder() *Buffer {
	return &Buffer{
		Positions: []float32{
			0, 0, 0,
			1, 0, 0,
			0, 1, 0,
		},
		Normals: []float32{
			0, 0, 1,
			0, 0, 1,
			0, 0, 1,
		},
		Indices: []uint32{0, 1, 2},
	}
}

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
