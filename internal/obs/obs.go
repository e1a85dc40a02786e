// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package obs is the ambient logging stack shared by every
// subsystem: a single package-level logrus.Logger configured once,
// with one *logrus.Entry handed out per component so every log line
// carries a "component" field the way the teacher runtime keeps
// per-subsystem diagnostic counters rather than ad-hoc fmt.Println
// (SPEC_FULL.md §1).
package obs

import (
	"os"

	"github.com/sirupsen/logrus"
)

var root = newRootLogger()

func newRootLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the root logger's level; mrtrtctl wires this to a
// --verbose flag.
func SetLevel(level logrus.Level) {
	root.SetLevel(level)
}

// For returns a component-scoped log entry, e.g. For("codeheap"),
// For("promotion"). Callers add further fields (heap_id, alloc_id,
// aggregate, ...) per call site.
func For(component string) *logrus.Entry {
	return root.WithField("component", component)
}
