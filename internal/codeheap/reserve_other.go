// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package codeheap

import "unsafe"

// portableReserver backs CodeHeap on platforms without a mmap/mprotect
// pair available through golang.org/x/sys/unix. It allocates ordinary
// Go memory and skips protection changes: the allocator logic above
// it (bump/free-list accounting, nibble map, jump stubs) is identical,
// but the bytes are not actually marked executable. This keeps the
// package buildable everywhere; real execution requires the unix
// build.
type portableReserver struct{}

func newPlatformReserver() pageReserver { return portableReserver{} }

func (portableReserver) Reserve(size uintptr) (*Reservation, error) {
	mem := make([]byte, size)
	return &Reservation{
		Base:  uintptr(unsafe.Pointer(&mem[0])),
		Bytes: mem,
	}, nil
}

// ReserveAt fakes a fixed-address reservation: this reserver already
// never backs Base with real executable memory (see the package
// doc), so honoring an arbitrary caller-chosen base is just a matter
// of recording it instead of deriving it from the backing slice.
// Commit/Release never index Bytes relative to Base on this path, so
// the two are free to live at unrelated real addresses.
func (portableReserver) ReserveAt(base uintptr, size uintptr) (*Reservation, error) {
	mem := make([]byte, size)
	return &Reservation{
		Base:  base,
		Bytes: mem,
	}, nil
}

func (portableReserver) Commit(*Reservation, uintptr, uintptr) error { return nil }

func (portableReserver) Release(*Reservation) error { return nil }
