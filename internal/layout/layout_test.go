// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anttech/mrtrt/internal/segments"
)

func TestSignificantSegmentsFieldsExcludesPadding(t *testing.T) {
	l := &ClassLayout{
		Size: 12,
		Fields: []Field{
			{Offset: 0, Type: TypeInt32},
			{Offset: 8, Type: TypeInt32}, // bytes [4,8) are padding
		},
	}
	got := SignificantSegments(l)
	want := segments.NewSet(
		segments.Segment{Start: 0, End: 4},
		segments.Segment{Start: 8, End: 12},
	)
	require.True(t, segments.Equal(got, want))
}

func TestSignificantSegmentsBlockLayoutIsOneOpaqueRange(t *testing.T) {
	l := &ClassLayout{Size: 16, BlockLayout: true, Fields: []Field{{Offset: 0, Type: TypeInt32}}}
	got := SignificantSegments(l)
	want := segments.NewSet(segments.Segment{Start: 0, End: 16})
	require.True(t, segments.Equal(got, want), "a union/overlapped layout is never digested field-by-field")
}

func TestSignificantSegmentsCustomLayoutWithGCPointerIsStillDigested(t *testing.T) {
	l := &ClassLayout{
		Size:              16,
		CustomLayout:      true,
		ContainsGCPointer: true,
		Fields:            []Field{{Offset: 0, Type: TypeRef}},
	}
	got := SignificantSegments(l)
	want := segments.NewSet(segments.Segment{Start: 0, End: 8})
	require.True(t, segments.Equal(got, want))
}

func TestSignificantSegmentsCustomLayoutWithoutGCPointerIsOpaque(t *testing.T) {
	l := &ClassLayout{Size: 16, CustomLayout: true, Fields: []Field{{Offset: 0, Type: TypeInt32}}}
	got := SignificantSegments(l)
	want := segments.NewSet(segments.Segment{Start: 0, End: 16})
	require.True(t, segments.Equal(got, want))
}

func TestFromSizePrefersFloatWhenRequested(t *testing.T) {
	ty, ok := FromSize(4, true)
	require.True(t, ok)
	require.Equal(t, TypeFloat32, ty)

	ty, ok = FromSize(8, false)
	require.True(t, ok)
	require.Equal(t, TypeInt64, ty)
}

func TestFromSizeRejectsUnsupportedWidth(t *testing.T) {
	_, ok := FromSize(3, false)
	require.False(t, ok)
}

func TestPrimitiveTypeSizeAndString(t *testing.T) {
	require.Equal(t, uint32(8), TypeRef.Size())
	require.True(t, TypeRef.IsGCRef())
	require.False(t, TypeInt32.IsGCRef())
	require.Equal(t, "simd32", TypeSimd32.String())
	require.True(t, TypeSimd16.IsSIMD())
}
