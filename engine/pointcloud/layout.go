package pointcloud

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/lodestone/engine/core"
)

// AttrType is the storage type of one attribute component in the source
// record.
type AttrType uint8

const (
	TypeFloat32 AttrType = iota
	TypeUint8
	TypeInt8
	TypeInt16
	TypeUint16
)

// ByteSize returns the encoded size of one component.
func (t AttrType) ByteSize() int {
	switch t {
	case TypeFloat32:
		return 4
	case TypeInt16, TypeUint16:
		return 2
	default:
		return 1
	}
}

// Attribute describes one named field of a point record.
type Attribute struct {
	Name       string
	Type       AttrType
	ByteOffset int
	// Size is the component count, e.g. 3 for a position triple.
	Size int
	// Scale converts packed integer positions to model units. Zero means 1.
	Scale float32
}

// attrKind is the closed set of attribute roles. Names are resolved into
// it exactly once when the layout is parsed, keeping the per-record decode
// loop free of string dispatch.
type attrKind uint8

const (
	kindPosition attrKind = iota
	kindColor
	kindNormal
	kindIntensity
	kindCustom
)

type field struct {
	kind      attrKind
	attr      Attribute
	outOffset int
	// customIdx indexes Point.Custom for kindCustom fields.
	customIdx int
}

type recordLayout struct {
	fields      []field
	inStride    int
	outStride   int
	outAttrs    []Attribute
	customNames []string
	hasNormal   bool
}

func resolveKind(name string) attrKind {
	switch strings.ToLower(name) {
	case "position", "pos", "xyz":
		return kindPosition
	case "color", "colour", "rgb", "rgba":
		return kindColor
	case "normal":
		return kindNormal
	case "intensity":
		return kindIntensity
	default:
		return kindCustom
	}
}

// resolveLayout validates the request's attribute layout and precomputes
// the output record layout. Output records always carry decoded forms:
// float32 triples for positions and normals, RGBA bytes for colors and
// float32 scalars for intensity and custom attributes.
func resolveLayout(req *Request) (*recordLayout, error) {
	if req.PointCount < 0 || req.RecordStride <= 0 {
		return nil, fmt.Errorf("%w: invalid record shape (count=%d stride=%d)", core.ErrDecode, req.PointCount, req.RecordStride)
	}
	if len(req.Buffer) < req.PointCount*req.RecordStride {
		return nil, fmt.Errorf("%w: buffer holds %d bytes, %d records of stride %d need %d",
			core.ErrDecode, len(req.Buffer), req.PointCount, req.RecordStride, req.PointCount*req.RecordStride)
	}
	if len(req.Attributes) == 0 {
		return nil, fmt.Errorf("%w: empty attribute layout", core.ErrDecode)
	}

	lay := &recordLayout{inStride: req.RecordStride}
	for _, attr := range req.Attributes {
		k := resolveKind(attr.Name)
		if err := validateAttr(k, attr, req.RecordStride); err != nil {
			return nil, err
		}

		f := field{kind: k, attr: attr, outOffset: lay.outStride}
		out := Attribute{Name: attr.Name, ByteOffset: lay.outStride}
		switch k {
		case kindPosition:
			out.Type, out.Size = TypeFloat32, 3
		case kindNormal:
			out.Type, out.Size = TypeFloat32, 3
			lay.hasNormal = true
		case kindColor:
			out.Type, out.Size = TypeUint8, 4
		case kindIntensity:
			out.Type, out.Size = TypeFloat32, 1
		case kindCustom:
			out.Type, out.Size = TypeFloat32, 1
			f.customIdx = len(lay.customNames)
			lay.customNames = append(lay.customNames, attr.Name)
		}
		lay.outStride += out.Size * out.Type.ByteSize()
		lay.outAttrs = append(lay.outAttrs, out)
		lay.fields = append(lay.fields, f)
	}
	return lay, nil
}

func validateAttr(k attrKind, attr Attribute, stride int) error {
	if attr.ByteOffset < 0 || attr.ByteOffset+attr.Size*attr.Type.ByteSize() > stride {
		return fmt.Errorf("%w: attribute %q exceeds record stride %d", core.ErrDecode, attr.Name, stride)
	}
	ok := false
	switch k {
	case kindPosition:
		ok = attr.Size == 3 && (attr.Type == TypeFloat32 || attr.Type == TypeInt16)
	case kindNormal:
		ok = attr.Size == 3 && (attr.Type == TypeFloat32 || attr.Type == TypeInt8)
	case kindColor:
		ok = (attr.Size == 3 || attr.Size == 4) && attr.Type == TypeUint8
	case kindIntensity:
		ok = attr.Size == 1 && (attr.Type == TypeUint16 || attr.Type == TypeFloat32)
	case kindCustom:
		ok = attr.Size == 1 && (attr.Type == TypeFloat32 || attr.Type == TypeUint16 || attr.Type == TypeUint8)
	}
	if !ok {
		return fmt.Errorf("%w: unsupported layout for attribute %q (type=%d size=%d)", core.ErrDecode, attr.Name, attr.Type, attr.Size)
	}
	return nil
}
