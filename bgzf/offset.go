// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bgzf

// Offset is a BGZF virtual file offset: the high 48 bits hold the byte
// offset of a compressed block in the underlying stream, the low 16 bits
// hold the offset of a byte within that block's decompressed contents.
type Offset struct {
	File  int64
	Block uint16
}

// vOffset packs an Offset into the single 64-bit virtual file offset used
// for on-disk comparisons and index arithmetic.
func vOffset(o Offset) uint64 {
	return uint64(o.File)<<16 | uint64(o.Block)
}

// Compare returns -1, 0 or 1 as o orders before, the same as, or after p.
func (o Offset) Compare(p Offset) int {
	a, b := vOffset(o), vOffset(p)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether o is the zero Offset.
func (o Offset) IsZero() bool { return o == Offset{} }

// Chunk is a region of a BGZF stream between two virtual file offsets, the
// unit BAI indexing groups records into.
type Chunk struct {
	Begin Offset
	End   Offset
}

// chunksContain reports whether a entirely contains b: a.Begin <= b.Begin
// and b.End <= a.End.
func chunksContain(a, b Chunk) bool {
	return a.Begin.Compare(b.Begin) <= 0 && b.End.Compare(a.End) <= 0
}

// SameBlock reports whether o and p address the same compressed block.
func (o Offset) SameBlock(p Offset) bool { return o.File == p.File }
