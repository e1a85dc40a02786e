// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rangesection

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// rwGate implements the concurrency discipline described in spec.md
// §4.3/§5: readers (stack walkers, IsManagedCode) never block behind
// an OS-level wait that could enter a safepoint, and the *writer*
// side must never suspend while holding the critical section, so a
// profiler that suspends threads can't deadlock against a writer
// mid-mutation. This is deliberately not a sync.RWMutex: that type's
// internal wait queue is opaque, and the spec's critical property
// (readers spin against a flag, writers never block on an OS
// primitive that can itself be suspended) has to be visible in the
// implementation, not borrowed.
type rwGate struct {
	sem          *semaphore.Weighted // one writer at a time
	writerPending atomic.Bool
	readers       sync.WaitGroup
	spinMu        sync.Mutex
}

const maxReaders = 1 << 30

func newRWGate() *rwGate {
	return &rwGate{sem: semaphore.NewWeighted(maxReaders)}
}

// withReader runs f with a reader slot held. Readers spin (yielding
// rather than blocking on a kernel wait) while a writer is pending, so
// that a reader invoked from within a suspended-thread context (a
// profiler's stack walk) can still make progress without itself being
// able to suspend a writer.
func (g *rwGate) withReader(f func()) {
	for g.writerPending.Load() {
		// Spin against the flag rather than block on an OS-level wait,
		// per spec.md: a reader invoked from a suspended-thread context
		// must still be able to make progress.
		runtime.Gosched()
	}
	_ = g.sem.Acquire(context.Background(), 1)
	defer g.sem.Release(1)
	f()
}

// withWriter runs f with exclusive access. It sets writerPending
// before acquiring the full reader weight, so new readers spin instead
// of entering, then waits for readers already in the critical section
// to drain by acquiring the semaphore's entire weight.
func (g *rwGate) withWriter(f func() error) error {
	g.spinMu.Lock()
	defer g.spinMu.Unlock()

	g.writerPending.Store(true)
	defer g.writerPending.Store(false)

	if err := g.sem.Acquire(context.Background(), maxReaders); err != nil {
		return err
	}
	defer g.sem.Release(maxReaders)

	return f()
}
