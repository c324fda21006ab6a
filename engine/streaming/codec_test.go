package streaming

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/lodestone/engine/core"
	"github.com/spaghettifunk/lodestone/engine/geometry"
)

// soupMesh builds a non-indexed buffer with n distinct triangles.
func soupMesh(n int) *geometry.Buffer {
	buf := &geometry.Buffer{}
	for i := 0; i < n; i++ {
		x := float32(i)
		buf.Positions = append(buf.Positions,
			x, 0, 0,
			x+1, 0, 0,
			x, 1, 0,
		)
		buf.Normals = append(buf.Normals,
			0, 0, 1,
			0, 0, 1,
			0, 0, 1,
		)
		buf.Texcoords = append(buf.Texcoords,
			0, 0,
			1, 0,
			0, 1,
		)
	}
	return buf
}

// fanMesh builds an indexed triangle fan with n triangles sharing vertex 0.
func fanMesh(n int) *geometry.Buffer {
	buf := &geometry.Buffer{Positions: []float32{0, 0, 0}}
	for i := 0; i <= n; i++ {
		buf.Positions = append(buf.Positions, float32(i+1), float32(i), 0)
	}
	for i := 0; i < n; i++ {
		buf.Indices = append(buf.Indices, 0, uint32(i+1), uint32(i+2))
	}
	return buf
}

func TestMeshCodecRoundTrip(t *testing.T) {
	src := soupMesh(4)
	decoded, err := DecodeMesh(EncodeMesh(src), 1)
	if err != nil {
		t.Fatalf("DecodeMesh error: %v", err)
	}

	if len(decoded.Positions) != len(src.Positions) {
		t.Fatalf("positions length = %d, want %d", len(decoded.Positions), len(src.Positions))
	}
	for i := range src.Positions {
		if decoded.Positions[i] != src.Positions[i] {
			t.Fatalf("position %d = %f, want %f", i, decoded.Positions[i], src.Positions[i])
		}
	}
	for i := range src.Normals {
		if decoded.Normals[i] != src.Normals[i] {
			t.Fatalf("normal %d = %f, want %f", i, decoded.Normals[i], src.Normals[i])
		}
	}
	for i := range src.Texcoords {
		if decoded.Texcoords[i] != src.Texcoords[i] {
			t.Fatalf("texcoord %d = %f, want %f", i, decoded.Texcoords[i], src.Texcoords[i])
		}
	}
}

func TestMeshCodecIndexedRoundTrip(t *testing.T) {
	src := fanMesh(6)
	decoded, err := DecodeMesh(EncodeMesh(src), 1)
	if err != nil {
		t.Fatalf("DecodeMesh error: %v", err)
	}
	if decoded.VertexCount() != src.VertexCount() {
		t.Fatalf("VertexCount = %d, want %d", decoded.VertexCount(), src.VertexCount())
	}
	if len(decoded.Indices) != len(src.Indices) {
		t.Fatalf("indices length = %d, want %d", len(decoded.Indices), len(src.Indices))
	}
	for i := range src.Indices {
		if decoded.Indices[i] != src.Indices[i] {
			t.Fatalf("index %d = %d, want %d", i, decoded.Indices[i], src.Indices[i])
		}
	}
}

func TestDecodeMeshDecimation(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		decimation float64
		wantTris   int
	}{
		{name: "soup half", payload: EncodeMesh(soupMesh(10)), decimation: 0.5, wantTris: 5},
		{name: "soup fifth", payload: EncodeMesh(soupMesh(10)), decimation: 0.2, wantTris: 2},
		{name: "soup full", payload: EncodeMesh(soupMesh(10)), decimation: 1, wantTris: 10},
		{name: "indexed half", payload: EncodeMesh(fanMesh(10)), decimation: 0.5, wantTris: 5},
		{name: "indexed tenth", payload: EncodeMesh(fanMesh(10)), decimation: 0.1, wantTris: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := DecodeMesh(tc.payload, tc.decimation)
			if err != nil {
				t.Fatalf("DecodeMesh error: %v", err)
			}
			if got := buf.TriangleCount(); got != tc.wantTris {
				t.Fatalf("TriangleCount = %d, want %d", got, tc.wantTris)
			}
		})
	}
}

func TestDecodeMeshIsDeterministic(t *testing.T) {
	payload := EncodeMesh(soupMesh(20))
	a, err := DecodeMesh(payload, 0.25)
	if err != nil {
		t.Fatalf("DecodeMesh error: %v", err)
	}
	b, err := DecodeMesh(payload, 0.25)
	if err != nil {
		t.Fatalf("DecodeMesh error: %v", err)
	}
	if len(a.Positions) != len(b.Positions) {
		t.Fatalf("repeated decode lengths differ: %d vs %d", len(a.Positions), len(b.Positions))
	}
	for i := range a.Positions {
		if a.Positions[i] != b.Positions[i] {
			t.Fatalf("repeated decode diverged at position %d", i)
		}
	}
}

func TestMeshStats(t *testing.T) {
	vertices, triangles, err := MeshStats(EncodeMesh(soupMesh(7)))
	if err != nil {
		t.Fatalf("MeshStats error: %v", err)
	}
	if vertices != 21 || triangles != 7 {
		t.Fatalf("MeshStats = (%d, %d), want (21, 7)", vertices, triangles)
	}

	vertices, triangles, err = MeshStats(EncodeMesh(fanMesh(7)))
	if err != nil {
		t.Fatalf("MeshStats error: %v", err)
	}
	if vertices != 9 || triangles != 7 {
		t.Fatalf("indexed MeshStats = (%d, %d), want (9, 7)", vertices, triangles)
	}
}

func TestDecodeMeshRejectsMalformedPayloads(t *testing.T) {
	valid := EncodeMesh(soupMesh(2))
	badMagic := append([]byte(nil), valid...)
	badMagic[0] ^= 0xff

	outOfRange := EncodeMesh(fanMesh(2))
	// Corrupt the first index to point past the vertex array.
	outOfRange[meshHeaderSize+4*4*3] = 0xff

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "empty", payload: nil},
		{name: "short header", payload: valid[:8]},
		{name: "bad magic", payload: badMagic},
		{name: "truncated body", payload: valid[:len(valid)-4]},
		{name: "index out of range", payload: outOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeMesh(tc.payload, 1); !errors.Is(err, core.ErrDecode) {
				t.Fatalf("DecodeMesh error = %v, want ErrDecode", err)
			}
		})
	}
}
