// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package codeheap

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type unixReserver struct{}

func newPlatformReserver() pageReserver { return unixReserver{} }

func (unixReserver) Reserve(size uintptr) (*Reservation, error) {
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "mmap reserve")
	}
	return &Reservation{
		Base:  uintptr(unsafe.Pointer(&mem[0])),
		Bytes: mem,
	}, nil
}

// ReserveAt asks the kernel for a mapping at exactly base, passing
// base as the address hint. unix.Mmap does not expose an address
// hint, so this drops to the raw syscall; a kernel that honors the
// hint returns it verbatim, and a mismatch (the address was already in
// use and the kernel silently relocated the mapping) is treated as
// failure and unwound immediately rather than left dangling.
func (unixReserver) ReserveAt(base uintptr, size uintptr) (*Reservation, error) {
	addr, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		base,
		size,
		uintptr(unix.PROT_NONE),
		uintptr(unix.MAP_ANON|unix.MAP_PRIVATE),
		^uintptr(0), // fd -1
		0,
	)
	if errno != 0 {
		return nil, errors.Wrap(errno, "mmap reserve at fixed address")
	}
	if addr != base {
		unix.Syscall6(unix.SYS_MUNMAP, addr, size, 0, 0, 0, 0)
		return nil, errors.Errorf("mmap: kernel placed mapping at %#x, not the requested %#x", addr, base)
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	return &Reservation{
		Base:  addr,
		Bytes: mem,
	}, nil
}

func (unixReserver) Commit(r *Reservation, base uintptr, size uintptr) error {
	off := base - r.Base
	sub := r.Bytes[off : off+size]
	if err := unix.Mprotect(sub, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return errors.Wrap(err, "mprotect commit")
	}
	return nil
}

func (unixReserver) Release(r *Reservation) error {
	if err := unix.Munmap(r.Bytes); err != nil {
		// ReserveAt mappings bypass unix.Mmap, so unix.Munmap does not
		// know them; unmap those through the raw syscall.
		if _, _, errno := unix.Syscall(unix.SYS_MUNMAP, r.Base, uintptr(len(r.Bytes)), 0); errno != 0 {
			return errors.Wrap(errno, "munmap release")
		}
	}
	return nil
}
