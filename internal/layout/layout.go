// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layout describes the class_layout collaborator the
// surrounding JIT exposes to the struct-promotion phase (spec.md §6):
// an aggregate's size, field list, and the flags that decide whether
// its bytes are individually promotable or must be treated as one
// opaque block.
package layout

import "github.com/anttech/mrtrt/internal/segments"

// PrimitiveType is the set of scalar types a replacement local can
// hold, plus the handful of SIMD widths the remainder strategy may
// collapse a hole into.
type PrimitiveType int

const (
	TypeInt8 PrimitiveType = iota
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeRef // GC-tracked reference; writes need a write barrier
	TypeSimd8
	TypeSimd16
	TypeSimd32
)

// Size returns the type's size in bytes.
func (t PrimitiveType) Size() uint32 {
	switch t {
	case TypeInt8:
		return 1
	case TypeInt16:
		return 2
	case TypeInt32, TypeFloat32:
		return 4
	case TypeInt64, TypeFloat64, TypeRef:
		return 8
	case TypeSimd8:
		return 8
	case TypeSimd16:
		return 16
	case TypeSimd32:
		return 32
	default:
		return 0
	}
}

// IsGCRef reports whether a write to this type needs a write barrier.
func (t PrimitiveType) IsGCRef() bool { return t == TypeRef }

var primTypeNames = [...]string{
	"int8", "int16", "int32", "int64", "float32", "float64", "ref", "simd8", "simd16", "simd32",
}

func (t PrimitiveType) String() string {
	if int(t) < 0 || int(t) >= len(primTypeNames) {
		return "prim(?)"
	}
	return primTypeNames[t]
}

// IsSIMD reports whether t is one of the supported SIMD widths.
func (t PrimitiveType) IsSIMD() bool {
	return t == TypeSimd8 || t == TypeSimd16 || t == TypeSimd32
}

// FromSize returns the primitive type matching a byte size, if one of
// the supported primitive/SIMD widths (1, 2, 4, 8, or a SIMD width)
// exists, used when the remainder strategy collapses a single
// covering hole into one primitive load+store (spec.md §4.11.3).
func FromSize(size uint32, preferFloat bool) (PrimitiveType, bool) {
	switch size {
	case 1:
		return TypeInt8, true
	case 2:
		return TypeInt16, true
	case 4:
		if preferFloat {
			return TypeFloat32, true
		}
		return TypeInt32, true
	case 8:
		if preferFloat {
			return TypeFloat64, true
		}
		return TypeInt64, true
	case 16:
		return TypeSimd16, true
	case 32:
		return TypeSimd32, true
	default:
		return 0, false
	}
}

// Field is one field of an aggregate's layout (padding is never
// represented as a Field).
type Field struct {
	Offset uint32
	Type   PrimitiveType
}

// ClassLayout is the subset of class-layout information the
// struct-promotion phase consults.
type ClassLayout struct {
	Size uint32
	Fields []Field

	BlockLayout       bool // e.g. a union or an overlapped-fields type
	IndexableFields   bool // e.g. a fixed-size-buffer type
	CustomLayout      bool // [StructLayout(LayoutKind.Explicit)]-equivalent
	ContainsGCPointer bool
	DontDigFields     bool // engine declines to inspect (e.g. too many fields)
}

// SignificantSegments returns either [0, Size) for block layouts,
// indexable-field layouts, custom layouts without GC references, and
// layouts the engine declines to inspect, or the set of field ranges
// otherwise (padding excluded), per spec.md §4.9.
func SignificantSegments(l *ClassLayout) *segments.Set {
	if l.BlockLayout || l.IndexableFields || l.DontDigFields || (l.CustomLayout && !l.ContainsGCPointer) {
		return segments.NewSet(segments.Segment{Start: 0, End: l.Size})
	}
	s := &segments.Set{}
	for _, f := range l.Fields {
		s.Add(segments.Segment{Start: f.Offset, End: f.Offset + f.Type.Size()})
	}
	return s
}
