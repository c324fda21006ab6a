package geometry

import (
	"fmt"
	"math"
)

// fallbackRadius is the safe bounding sphere radius used when no finite
// radius can be derived from the data.
const fallbackRadius float32 = 10

// Report summarizes what Repair changed or flagged.
type Report struct {
	// FixedCount is the number of NaN or infinite coordinates replaced.
	FixedCount int
	// DegenerateTriangles lists triangle indices whose three vertices are
	// numerically identical. They are flagged, never removed.
	DegenerateTriangles []int
	MeshCount           int
	Sphere              Sphere
	Issues              []string
}

// Repair sanitizes a decoded buffer in place before it reaches the
// renderer: non-finite coordinates become 0, degenerate triangles are
// flagged and the bounding sphere falls back to safe defaults when it
// cannot be computed. Repair never fails; it always leaves behind a usable
// buffer plus a diagnostic report.
func Repair(buf *Buffer) Report {
	report := Report{}
	if buf == nil {
		report.Issues = append(report.Issues, "nil buffer, substituting placeholder")
		return report
	}
	if len(buf.Positions) > 0 {
		report.MeshCount = 1
	}

	report.FixedCount += scrub(buf.Positions)
	report.FixedCount += scrub(buf.Normals)
	report.FixedCount += scrub(buf.Texcoords)
	if report.FixedCount > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("replaced %d non-finite coordinates with 0", report.FixedCount))
	}

	report.DegenerateTriangles = findDegenerates(buf)
	if n := len(report.DegenerateTriangles); n > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("flagged %d degenerate triangles", n))
	}

	report.Sphere = safeBoundingSphere(buf, &report)
	return report
}

// scrub zeroes NaN and infinite values, returning how many were replaced.
func scrub(values []float32) int {
	fixed := 0
	for i, v := range values {
		if !isFinite(v) {
			values[i] = 0
			fixed++
		}
	}
	return fixed
}

// findDegenerates flags triangles whose three referenced vertices are
// numerically identical.
func findDegenerates(buf *Buffer) []int {
	var degenerate []int
	tris := buf.TriangleCount()
	for t := 0; t < tris; t++ {
		var i0, i1, i2 int
		if len(buf.Indices) > 0 {
			i0, i1, i2 = int(buf.Indices[t*3]), int(buf.Indices[t*3+1]), int(buf.Indices[t*3+2])
			if maxIdx := buf.VertexCount(); i0 >= maxIdx || i1 >= maxIdx || i2 >= maxIdx {
				continue
			}
		} else {
			i0, i1, i2 = t*3, t*3+1, t*3+2
		}
		if sameVertex(buf.Positions, i0, i1) && sameVertex(buf.Positions, i1, i2) {
			degenerate = append(degenerate, t)
		}
	}
	return degenerate
}

func sameVertex(pos []float32, a, b int) bool {
	return pos[a*3] == pos[b*3] && pos[a*3+1] == pos[b*3+1] && pos[a*3+2] == pos[b*3+2]
}

// safeBoundingSphere attempts the direct computation, then rebuilds from
// finite extents, then falls back to a fixed safe radius. Each downgrade
// is recorded as an issue.
func safeBoundingSphere(buf *Buffer, report *Report) Sphere {
	sphere := buf.BoundingSphere()
	if isFinite(sphere.Radius) && isFinite(sphere.Center[0]) && isFinite(sphere.Center[1]) && isFinite(sphere.Center[2]) {
		return sphere
	}

	report.Issues = append(report.Issues, "bounding sphere computation failed, rebuilding from finite extents")
	ext := buf.ComputeExtents()
	for axis := 0; axis < 3; axis++ {
		if !isFinite(ext.Min[axis]) || !isFinite(ext.Max[axis]) {
			ext.Min[axis], ext.Max[axis] = -1, 1
		}
	}
	center := ext.Min.Add(ext.Max).Mul(0.5)
	radius := ext.Max.Sub(ext.Min).Len() / 2
	if !isFinite(radius) {
		report.Issues = append(report.Issues, "extents radius non-finite, using fixed fallback radius")
		radius = fallbackRadius
	}
	return Sphere{Center: center, Radius: radius}
}

// IsNaNOrInf reports whether the value would need repair.
func IsNaNOrInf(v float32) bool {
	f := float64(v)
	return math.IsNaN(f) || math.IsInf(f, 0)
}
