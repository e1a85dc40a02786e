// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nibblemap is a bit-packed reverse index from an address
// within a code heap to the start address of the method covering it.
//
// One hex nibble is kept per 32-byte bucket of the heap, starting at
// MapBase. A nibble of 0 means no code block starts in that bucket; a
// nibble v in 1..=8 means a block starts at bucket_base+(v-1)*4.
// Nibbles within a word are packed with bucket 0 at the *highest*
// nibble, so a single right-shift loop can scan both the current
// bucket and backwards through earlier buckets in the same word.
package nibblemap

import "sync/atomic"

const (
	bucketSize  = 32 // bytes covered by one nibble
	nibblesPerW = 8  // nibbles per 32-bit word
	maxOffset   = 8  // nibble values 1..=8 address 4-byte slots within a bucket
)

// Map is a nibble map over a single code heap's address space.
type Map struct {
	words   []uint32
	mapBase uintptr
}

// New allocates a Map covering heapSize bytes starting at mapBase.
// mapBase must be bucket-aligned and at or below the heap's bump
// cursor at creation time; codeheap passes the bump start rounded down
// to a 32-byte bucket boundary.
func New(mapBase uintptr, heapSize uintptr) *Map {
	buckets := (heapSize + bucketSize - 1) / bucketSize
	words := (buckets + nibblesPerW - 1) / nibblesPerW
	if words == 0 {
		words = 1
	}
	return &Map{words: make([]uint32, words), mapBase: mapBase}
}

func wordAndShift(pos uintptr) (word int, shift uint) {
	word = int(pos / nibblesPerW)
	// bucket 0 of this word is the highest nibble.
	idxInWord := pos % nibblesPerW
	shift = uint(nibblesPerW-1-idxInWord) * 4
	return
}

// Mark records (or clears, when blockID == 0) that a code block with
// the given addr2offs-encoded id starts at addr. addr must be the
// start of a newly allocated code block and must be 4-byte aligned.
// The write is a single word store: concurrent readers of FindBlockStart
// see either the old or the new nibble, never a torn value.
func (m *Map) Mark(addr uintptr, blockID uint8) {
	delta := addr - m.mapBase
	pos := delta / bucketSize
	offInBucket := blockID
	word, shift := wordAndShift(pos)
	for {
		old := atomic.LoadUint32(&m.words[word])
		nv := (old &^ (0xF << shift)) | (uint32(offInBucket) << shift)
		if atomic.CompareAndSwapUint32(&m.words[word], old, nv) {
			return
		}
	}
}

// EncodeBlockID converts a byte offset within a bucket (0..28, 4-byte
// aligned) into the nibble value 1..=8 used by Mark.
func EncodeBlockID(offsetInBucket uintptr) uint8 {
	return uint8(offsetInBucket/4) + 1
}

// FindBlockStart returns the start address of the code block covering
// pc, or false if pc is not within any block recorded in this map.
func (m *Map) FindBlockStart(pc uintptr) (uintptr, bool) {
	if pc < m.mapBase {
		return 0, false
	}
	delta := pc - m.mapBase
	pos := delta / bucketSize
	offInBucket := uint8((delta%bucketSize)/4) + 1

	word, shift := wordAndShift(pos)
	if word >= len(m.words) {
		return 0, false
	}
	w := atomic.LoadUint32(&m.words[word])
	v := uint8((w >> shift) & 0xF)
	if v != 0 && v <= offInBucket {
		return m.mapBase + pos*bucketSize + uintptr(v-1)*4, true
	}

	// Scan leftwards (towards lower-numbered buckets, i.e. higher
	// nibble positions within the word) starting just before pos.
	curPos := pos
	curWord := word
	curShift := shift
	w2 := w
	for {
		if curPos == 0 && curShift+4 >= nibblesPerW*4 {
			// about to step before bucket 0 of word 0: nothing left.
			return 0, false
		}
		if curShift+4 < nibblesPerW*4 {
			curShift += 4
		} else {
			curWord--
			if curWord < 0 {
				return 0, false
			}
			curShift = 0
			w2 = atomic.LoadUint32(&m.words[curWord])
		}
		curPos--
		v2 := uint8((w2 >> curShift) & 0xF)
		if v2 != 0 {
			return m.mapBase + curPos*bucketSize + uintptr(v2-1)*4, true
		}
	}
}
