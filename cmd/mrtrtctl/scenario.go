// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/anttech/mrtrt/internal/ir"
	"github.com/anttech/mrtrt/internal/layout"
)

// scenarioFile is the on-disk shape `promote run` consumes: an
// aggregate's layout plus a straight-line sequence of operations
// building the single-block method body scenario S6 (spec.md §8)
// illustrates by hand.
type scenarioFile struct {
	Locals []scenarioLocal `json:"locals"`
	Ops    []scenarioOp    `json:"ops"`
}

type scenarioLocal struct {
	ID            int             `json:"id"`
	Aggregate     bool            `json:"aggregate"`
	PrimType      string          `json:"prim_type,omitempty"`
	IsParam       bool            `json:"is_param,omitempty"`
	IsOSR         bool            `json:"is_osr,omitempty"`
	ImplicitByref bool            `json:"implicit_byref,omitempty"`
	Layout        *scenarioLayout `json:"layout,omitempty"`
}

type scenarioLayout struct {
	Size              uint32          `json:"size"`
	Fields            []scenarioField `json:"fields"`
	BlockLayout       bool            `json:"block_layout,omitempty"`
	IndexableFields   bool            `json:"indexable_fields,omitempty"`
	CustomLayout      bool            `json:"custom_layout,omitempty"`
	ContainsGCPointer bool            `json:"contains_gc_pointer,omitempty"`
	DontDigFields     bool            `json:"dont_dig_fields,omitempty"`
}

type scenarioField struct {
	Offset uint32 `json:"offset"`
	Type   string `json:"type"`
}

// scenarioOp mirrors ir.Node's fields loosely enough for a JSON
// scenario to describe a field load/store, call, return, or
// block-copy/init without needing every ir.Node field.
type scenarioOp struct {
	Op        string `json:"op"`
	Local     int    `json:"local,omitempty"`
	Offset    uint32 `json:"offset,omitempty"`
	Size      uint32 `json:"size,omitempty"`
	Type      string `json:"type,omitempty"`
	SrcLocal  int    `json:"src_local,omitempty"`
	SrcOffset uint32 `json:"src_offset,omitempty"`
	Pattern   int    `json:"pattern,omitempty"`

	CallArgs         []scenarioCallArg `json:"call_args,omitempty"`
	RetBuf           int               `json:"ret_buf,omitempty"`
	AssignedFromCall int               `json:"assigned_from_call,omitempty"`
	MayThrow         bool              `json:"may_throw,omitempty"`
	ReturnsAggregate bool              `json:"returns_aggregate,omitempty"`
}

type scenarioCallArg struct {
	Local   int  `json:"local"`
	Offset  uint32 `json:"offset,omitempty"`
	LastUse bool `json:"last_use,omitempty"`
}

func parsePrimType(s string) (layout.PrimitiveType, error) {
	switch s {
	case "int8":
		return layout.TypeInt8, nil
	case "int16":
		return layout.TypeInt16, nil
	case "int32":
		return layout.TypeInt32, nil
	case "int64":
		return layout.TypeInt64, nil
	case "float32":
		return layout.TypeFloat32, nil
	case "float64":
		return layout.TypeFloat64, nil
	case "ref":
		return layout.TypeRef, nil
	case "simd8":
		return layout.TypeSimd8, nil
	case "simd16":
		return layout.TypeSimd16, nil
	case "simd32":
		return layout.TypeSimd32, nil
	default:
		return 0, errors.Errorf("scenario: unknown primitive type %q", s)
	}
}

func parseOp(s string) (ir.Op, error) {
	switch s {
	case "field_load":
		return ir.OpFieldLoad, nil
	case "field_store":
		return ir.OpFieldStore, nil
	case "call":
		return ir.OpCall, nil
	case "return":
		return ir.OpReturn, nil
	case "block_copy":
		return ir.OpBlockCopy, nil
	case "block_init":
		return ir.OpBlockInit, nil
	case "local_load":
		return ir.OpLocalLoad, nil
	case "local_store":
		return ir.OpLocalStore, nil
	default:
		return 0, errors.Errorf("scenario: unknown op %q", s)
	}
}

// loadScenario reads and builds an ir.Func from a JSON scenario file.
// Every op is appended to the method's single entry/scratch block,
// matching how the hand-built tests in internal/decompose construct
// straight-line scenarios.
func loadScenario(path string) (*ir.Func, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	var sf scenarioFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return nil, errors.Wrap(err, "parse scenario")
	}

	fn := ir.NewFunc()
	for _, l := range sf.Locals {
		id := ir.LocalID(l.ID)
		if l.Aggregate {
			if l.Layout == nil {
				return nil, errors.Errorf("scenario: local %d is an aggregate with no layout", l.ID)
			}
			cl := &layout.ClassLayout{
				Size:              l.Layout.Size,
				BlockLayout:       l.Layout.BlockLayout,
				IndexableFields:   l.Layout.IndexableFields,
				CustomLayout:      l.Layout.CustomLayout,
				ContainsGCPointer: l.Layout.ContainsGCPointer,
				DontDigFields:     l.Layout.DontDigFields,
			}
			for _, f := range l.Layout.Fields {
				t, err := parsePrimType(f.Type)
				if err != nil {
					return nil, err
				}
				cl.Fields = append(cl.Fields, layout.Field{Offset: f.Offset, Type: t})
			}
			fn.AddAggregate(id, cl, l.IsParam)
			local := fn.Locals[id]
			local.IsOSR = l.IsOSR
			local.ImplicitByref = l.ImplicitByref
		} else {
			t, err := parsePrimType(l.PrimType)
			if err != nil {
				return nil, err
			}
			newID := fn.NewLocal(t)
			if newID != id {
				return nil, errors.Errorf("scenario: scalar local ids must be allocated in order starting after aggregates; got %d, expected %d", id, newID)
			}
		}
	}

	b := fn.EntryScratch
	for i, op := range sf.Ops {
		opKind, err := parseOp(op.Op)
		if err != nil {
			return nil, errors.Wrapf(err, "scenario op %d", i)
		}
		n := ir.Node{
			Op:               opKind,
			Local:            ir.LocalID(op.Local),
			Offset:           op.Offset,
			Size:             op.Size,
			SrcLocal:         ir.LocalID(op.SrcLocal),
			SrcOffset:        op.SrcOffset,
			Pattern:          byte(op.Pattern),
			RetBuf:           ir.LocalID(op.RetBuf),
			AssignedFromCall: ir.LocalID(op.AssignedFromCall),
			MayThrow:         op.MayThrow,
			ReturnsAggregate: op.ReturnsAggregate,
		}
		if op.Type != "" {
			t, err := parsePrimType(op.Type)
			if err != nil {
				return nil, err
			}
			n.Type = t
		}
		for _, a := range op.CallArgs {
			n.CallArgs = append(n.CallArgs, ir.CallArg{Local: ir.LocalID(a.Local), Offset: a.Offset, LastUse: a.LastUse})
		}
		fn.NewNode(b, n)
	}
	return fn, nil
}

func describeOp(n *ir.Node) string {
	return fmt.Sprintf("#%d %v local=%d offset=%d", n.ID, n.Op, n.Local, n.Offset)
}
