package pointcloud

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lodestone/engine/core"
)

// progressInterval is the number of source records between two progress
// emissions.
const progressInterval = 10000

// Request is one binary chunk of point records to decode.
type Request struct {
	// ChunkID identifies the chunk content for cache keying.
	ChunkID      string
	Buffer       []byte
	PointCount   int
	RecordStride int
	Attributes   []Attribute
}

// Options steer filtering, decimation and transformation of a chunk.
type Options struct {
	// Filter drops a record when it returns false. The point is reused
	// between calls; implementations must not retain it.
	Filter func(*Point) bool
	// SimplifyFactor keeps every n-th record (deterministic stride
	// decimation, not random sampling). Values below 1 mean keep all.
	SimplifyFactor int
	// Transform is a column-major affine matrix applied in full to
	// positions and rotation-only to normals.
	Transform *mgl32.Mat4
}

// Response is the terminal result of one chunk. Decode failures are
// reported here with Success false rather than as a transport error, so
// callers must check Success.
type Response struct {
	Success          bool
	Buffer           []byte
	PointCount       int
	RecordStride     int
	Attributes       []Attribute
	ProcessingTimeMs float64
	Error            string
	CacheHit         bool
}

// Point is one decoded record, handed to filter predicates.
type Point struct {
	Position  mgl32.Vec3
	Normal    mgl32.Vec3
	Color     [4]uint8
	Intensity float32
	// Custom holds scalar attributes in request layout order.
	Custom []float32
}

// Hooks carries the optional side channels of one ProcessChunk call.
// Progress reports the fractional source position; Cancelled is polled at
// the same interval and abandons the chunk when it reports true.
type Hooks struct {
	Progress  func(fraction float64)
	Cancelled func() bool
}

// Processor decodes binary point chunks: extract typed attributes, filter,
// simplify, transform, re-serialize. Stateless per call except for the
// bounded result cache. Not safe for concurrent use; the task pool creates
// one per worker.
type Processor struct {
	cache *resultCache
}

func NewProcessor() *Processor {
	return &Processor{cache: newResultCache(cacheMaxEntries)}
}

// CacheLen reports the number of cached chunk results.
func (p *Processor) CacheLen() int {
	return p.cache.len()
}

// ClearCache drops all cached chunk results. Implements
// taskpool.CacheClearer.
func (p *Processor) ClearCache() {
	p.cache.clear()
}

// ProcessChunk decodes one chunk. A cache hit returns the stored response
// immediately, without recomputation or progress events.
func (p *Processor) ProcessChunk(req *Request, opts *Options, hooks *Hooks) *Response {
	clock := core.NewClock()
	clock.Start()

	if opts == nil {
		opts = &Options{}
	}
	if hooks == nil {
		hooks = &Hooks{}
	}

	key, cacheable := cacheKey(req, opts)
	if cacheable {
		if cached, ok := p.cache.get(key); ok {
			clock.Stop()
			hit := *cached
			hit.ProcessingTimeMs = clock.ElapsedMs()
			hit.CacheHit = true
			return &hit
		}
	}

	resp, err := p.process(req, opts, hooks)
	clock.Stop()
	if err != nil {
		core.LogWarn("pointcloud: chunk %q failed: %v", req.ChunkID, err)
		return &Response{
			Success:          false,
			Error:            err.Error(),
			ProcessingTimeMs: clock.ElapsedMs(),
		}
	}
	resp.ProcessingTimeMs = clock.ElapsedMs()
	if cacheable {
		p.cache.put(key, resp)
	}
	return resp
}

// process runs the decode loop. Panics are downgraded to decode errors so
// a malformed chunk can never take down its worker.
func (p *Processor) process(req *Request, opts *Options, hooks *Hooks) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("%w: %v", core.ErrDecode, r)
		}
	}()

	lay, err := resolveLayout(req)
	if err != nil {
		return nil, err
	}

	simplify := opts.SimplifyFactor
	if simplify < 1 {
		simplify = 1
	}

	// Size the output for the worst case and truncate to the kept count.
	worst := (req.PointCount + simplify - 1) / simplify
	out := make([]byte, worst*lay.outStride)

	pt := Point{Custom: make([]float32, len(lay.customNames))}
	kept := 0
	for i := 0; i < req.PointCount; i++ {
		if i > 0 && i%progressInterval == 0 {
			if hooks.Cancelled != nil && hooks.Cancelled() {
				return nil, core.ErrCancelled
			}
			if hooks.Progress != nil {
				hooks.Progress(float64(i) / float64(req.PointCount))
			}
		}
		if i%simplify != 0 {
			continue
		}

		record := req.Buffer[i*req.RecordStride : (i+1)*req.RecordStride]
		decodeRecord(lay, record, &pt)
		if opts.Filter != nil && !opts.Filter(&pt) {
			continue
		}
		if opts.Transform != nil {
			applyTransform(opts.Transform, lay, &pt)
		}
		encodeRecord(lay, &pt, out[kept*lay.outStride:])
		kept++
	}

	return &Response{
		Success:      true,
		Buffer:       out[:kept*lay.outStride],
		PointCount:   kept,
		RecordStride: lay.outStride,
		Attributes:   lay.outAttrs,
	}, nil
}

func decodeRecord(lay *recordLayout, record []byte, pt *Point) {
	for fi := range lay.fields {
		f := &lay.fields[fi]
		b := record[f.attr.ByteOffset:]
		switch f.kind {
		case kindPosition:
			if f.attr.Type == TypeFloat32 {
				pt.Position = mgl32.Vec3{getF32(b), getF32(b[4:]), getF32(b[8:])}
			} else {
				scale := f.attr.Scale
				if scale == 0 {
					scale = 1
				}
				pt.Position = mgl32.Vec3{
					float32(int16(binary.LittleEndian.Uint16(b))) * scale,
					float32(int16(binary.LittleEndian.Uint16(b[2:]))) * scale,
					float32(int16(binary.LittleEndian.Uint16(b[4:]))) * scale,
				}
			}
		case kindNormal:
			if f.attr.Type == TypeFloat32 {
				pt.Normal = mgl32.Vec3{getF32(b), getF32(b[4:]), getF32(b[8:])}
			} else {
				pt.Normal = mgl32.Vec3{
					float32(int8(b[0])) / 127,
					float32(int8(b[1])) / 127,
					float32(int8(b[2])) / 127,
				}
			}
		case kindColor:
			pt.Color[0], pt.Color[1], pt.Color[2] = b[0], b[1], b[2]
			if f.attr.Size == 4 {
				pt.Color[3] = b[3]
			} else {
				pt.Color[3] = 255
			}
		case kindIntensity:
			if f.attr.Type == TypeUint16 {
				pt.Intensity = float32(binary.LittleEndian.Uint16(b))
			} else {
				pt.Intensity = getF32(b)
			}
		case kindCustom:
			switch f.attr.Type {
			case TypeFloat32:
				pt.Custom[f.customIdx] = getF32(b)
			case TypeUint16:
				pt.Custom[f.customIdx] = float32(binary.LittleEndian.Uint16(b))
			default:
				pt.Custom[f.customIdx] = float32(b[0])
			}
		}
	}
}

// applyTransform applies the full affine matrix to the position and the
// rotation part only to the normal, which is then re-normalized. A zero
// length normal is left untouched.
func applyTransform(m *mgl32.Mat4, lay *recordLayout, pt *Point) {
	pt.Position = m.Mul4x1(pt.Position.Vec4(1)).Vec3()
	if lay.hasNormal {
		n := m.Mul4x1(pt.Normal.Vec4(0)).Vec3()
		if l := n.Len(); l > 0 {
			pt.Normal = n.Mul(1 / l)
		}
	}
}

func encodeRecord(lay *recordLayout, pt *Point, out []byte) {
	for fi := range lay.fields {
		f := &lay.fields[fi]
		b := out[f.outOffset:]
		switch f.kind {
		case kindPosition:
			putF32(b, pt.Position.X())
			putF32(b[4:], pt.Position.Y())
			putF32(b[8:], pt.Position.Z())
		case kindNormal:
			putF32(b, pt.Normal.X())
			putF32(b[4:], pt.Normal.Y())
			putF32(b[8:], pt.Normal.Z())
		case kindColor:
			copy(b[:4], pt.Color[:])
		case kindIntensity:
			putF32(b, pt.Intensity)
		case kindCustom:
			putF32(b, pt.Custom[f.customIdx])
		}
	}
}

// cacheKey hashes the chunk identity together with the serialized options.
// Caller-supplied filter predicates cannot be serialized, so filtered
// requests bypass the cache entirely.
func cacheKey(req *Request, opts *Options) (uint64, bool) {
	if opts.Filter != nil {
		return 0, false
	}
	simplify := opts.SimplifyFactor
	if simplify < 1 {
		simplify = 1
	}
	h := fnv.New64a()
	io.WriteString(h, req.ChunkID)
	fmt.Fprintf(h, "|s=%d", simplify)
	if opts.Transform != nil {
		for _, v := range *opts.Transform {
			fmt.Fprintf(h, "|%.9g", v)
		}
	}
	return h.Sum64(), true
}

func getF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}
