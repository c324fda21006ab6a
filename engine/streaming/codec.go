package streaming

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaghettifunk/lodestone/engine/core"
	"github.com/spaghettifunk/lodestone/engine/geometry"
)

// Internal mesh payload format: a little-endian header followed by packed
// position, normal, texcoord and index arrays. This is the minimal
// vertex/normal/texcoord/face record model the loader understands; richer
// formats are decoded upstream into it.
const meshMagic uint32 = 0x4C4F4453 // "SDOL" on disk, read back as LODS

const (
	flagNormals   uint32 = 1 << 0
	flagTexcoords uint32 = 1 << 1
)

const meshHeaderSize = 16

// EncodeMesh serializes a buffer into the internal payload format.
func EncodeMesh(buf *geometry.Buffer) []byte {
	vertexCount := buf.VertexCount()
	var flags uint32
	if len(buf.Normals) > 0 {
		flags |= flagNormals
	}
	if len(buf.Texcoords) > 0 {
		flags |= flagTexcoords
	}

	size := meshHeaderSize + len(buf.Positions)*4 + len(buf.Normals)*4 + len(buf.Texcoords)*4 + len(buf.Indices)*4
	out := make([]byte, 0, size)

	var scratch [4]byte
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:], v)
		out = append(out, scratch[:]...)
	}

	putU32(meshMagic)
	putU32(uint32(vertexCount))
	putU32(flags)
	putU32(uint32(len(buf.Indices)))
	for _, v := range buf.Positions {
		putU32(math.Float32bits(v))
	}
	for _, v := range buf.Normals {
		putU32(math.Float32bits(v))
	}
	for _, v := range buf.Texcoords {
		putU32(math.Float32bits(v))
	}
	for _, v := range buf.Indices {
		putU32(v)
	}
	return out
}

type meshHeader struct {
	vertexCount int
	flags       uint32
	indexCount  int
}

func parseMeshHeader(data []byte) (meshHeader, error) {
	if len(data) < meshHeaderSize {
		return meshHeader{}, fmt.Errorf("%w: payload shorter than header (%d bytes)", core.ErrDecode, len(data))
	}
	if binary.LittleEndian.Uint32(data) != meshMagic {
		return meshHeader{}, fmt.Errorf("%w: bad magic %#x", core.ErrDecode, binary.LittleEndian.Uint32(data))
	}
	h := meshHeader{
		vertexCount: int(binary.LittleEndian.Uint32(data[4:])),
		flags:       binary.LittleEndian.Uint32(data[8:]),
		indexCount:  int(binary.LittleEndian.Uint32(data[12:])),
	}

	need := meshHeaderSize + h.vertexCount*3*4
	if h.flags&flagNormals != 0 {
		need += h.vertexCount * 3 * 4
	}
	if h.flags&flagTexcoords != 0 {
		need += h.vertexCount * 2 * 4
	}
	need += h.indexCount * 4
	if len(data) < need {
		return meshHeader{}, fmt.Errorf("%w: truncated payload, need %d bytes, have %d", core.ErrDecode, need, len(data))
	}
	return h, nil
}

// MeshStats peeks at a payload header and reports vertex and triangle
// counts without a full decode.
func MeshStats(data []byte) (vertices, triangles int, err error) {
	h, err := parseMeshHeader(data)
	if err != nil {
		return 0, 0, err
	}
	if h.indexCount > 0 {
		return h.vertexCount, h.indexCount / 3, nil
	}
	return h.vertexCount, h.vertexCount / 3, nil
}

// DecodeMesh deserializes a payload, optionally decimating it. The
// decimation factor is the fraction of source triangles retained, in
// (0, 1]; retention is a deterministic triangle stride, not random
// sampling, so repeated decodes of the same payload agree exactly.
func DecodeMesh(data []byte, decimation float64) (*geometry.Buffer, error) {
	h, err := parseMeshHeader(data)
	if err != nil {
		return nil, err
	}

	stride := 1
	if decimation > 0 && decimation < 1 {
		stride = int(math.Round(1 / decimation))
		if stride < 1 {
			stride = 1
		}
	}

	off := meshHeaderSize
	readF32s := func(n int) []float32 {
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		return vals
	}

	positions := readF32s(h.vertexCount * 3)
	var normals, texcoords []float32
	if h.flags&flagNormals != 0 {
		normals = readF32s(h.vertexCount * 3)
	}
	if h.flags&flagTexcoords != 0 {
		texcoords = readF32s(h.vertexCount * 2)
	}

	if h.indexCount > 0 {
		indices := make([]uint32, 0, h.indexCount/stride+3)
		for t := 0; t*3+2 < h.indexCount; t++ {
			if t%stride != 0 {
				continue
			}
			base := off + t*3*4
			i0 := binary.LittleEndian.Uint32(data[base:])
			i1 := binary.LittleEndian.Uint32(data[base+4:])
			i2 := binary.LittleEndian.Uint32(data[base+8:])
			if int(i0) >= h.vertexCount || int(i1) >= h.vertexCount || int(i2) >= h.vertexCount {
				return nil, fmt.Errorf("%w: index out of range in triangle %d", core.ErrDecode, t)
			}
			indices = append(indices, i0, i1, i2)
		}
		return &geometry.Buffer{
			Positions: positions,
			Normals:   normals,
			Texcoords: texcoords,
			Indices:   indices,
		}, nil
	}

	if stride == 1 {
		return &geometry.Buffer{Positions: positions, Normals: normals, Texcoords: texcoords}, nil
	}

	// Non-indexed: keep whole vertex triples on the triangle stride.
	tris := h.vertexCount / 3
	out := &geometry.Buffer{}
	for t := 0; t < tris; t++ {
		if t%stride != 0 {
			continue
		}
		out.Positions = append(out.Positions, positions[t*9:t*9+9]...)
		if normals != nil {
			out.Normals = append(out.Normals, normals[t*9:t*9+9]...)
		}
		if texcoords != nil {
			out.Texcoords = append(out.Texcoords, texcoords[t*6:t*6+6]...)
		}
	}
	return out, nil
}
