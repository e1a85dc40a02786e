// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anttech/mrtrt/internal/engine"
	"github.com/anttech/mrtrt/internal/ir"
)

const s6Scenario = `{
  "locals": [
    {"id": 1, "aggregate": true, "layout": {"size": 16, "fields": [
      {"offset": 0, "type": "int32"},
      {"offset": 4, "type": "int32"},
      {"offset": 8, "type": "int32"},
      {"offset": 12, "type": "int32"}
    ]}}
  ],
  "ops": [
    {"op": "field_load", "local": 1, "offset": 0, "type": "int32"},
    {"op": "field_load", "local": 1, "offset": 0, "type": "int32"},
    {"op": "field_load", "local": 1, "offset": 0, "type": "int32"}
  ]
}`

func writeScenario(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadScenarioBuildsAggregateAndOps(t *testing.T) {
	path := writeScenario(t, s6Scenario)
	fn, err := loadScenario(path)
	require.NoError(t, err)

	local, ok := fn.Locals[1]
	require.True(t, ok)
	require.True(t, local.Aggregate)
	require.Equal(t, uint32(16), local.Layout.Size)
	require.Len(t, fn.EntryScratch.Nodes, 3)
	for _, n := range fn.EntryScratch.Nodes {
		require.Equal(t, ir.OpFieldLoad, n.Op)
	}
}

func TestLoadScenarioThroughEngine(t *testing.T) {
	path := writeScenario(t, s6Scenario)
	fn, err := loadScenario(path)
	require.NoError(t, err)

	e := engine.New(engine.DefaultConfig(), 4)
	result := e.PromoteMethod(fn, nil)
	info := result.Infos[1]
	require.Len(t, info.Replacements, 1)
}

func TestLoadScenarioRejectsUnknownOp(t *testing.T) {
	path := writeScenario(t, `{"locals":[],"ops":[{"op":"bogus"}]}`)
	_, err := loadScenario(path)
	require.Error(t, err)
}
