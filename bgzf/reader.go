// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bgzf

import (
	"errors"
	"io"
)

// Reader decompresses a BGZF stream block by block, tracking the virtual
// file offset of every byte it yields so callers can record Chunks for
// indexing and later Seek back to any block boundary.
type Reader struct {
	r  io.Reader
	rs io.ReadSeeker // non-nil when r supports Seek.

	cache Cache

	blockBase int64 // compressed offset of the start of cur.
	blockSize int    // compressed size of cur, 0 once EOF block is hit.
	cur       []byte
	pos       int // read position within cur.

	chunkBegin Offset

	err error
}

// NewReader returns a Reader reading decompressed BGZF data from r. rd is
// accepted for API compatibility with multi-threaded BGZF readers; this
// core is single-threaded (see the concurrency model), so rd is otherwise
// unused beyond basic validation.
func NewReader(r io.Reader, rd int) (*Reader, error) {
	if rd < 0 {
		return nil, ErrInvalidConcurrency
	}
	bg := &Reader{r: r}
	if rs, ok := r.(io.ReadSeeker); ok {
		bg.rs = rs
	}
	return bg, nil
}

// ErrInvalidConcurrency is returned by NewReader when rd is negative.
var ErrInvalidConcurrency = errors.New("bgzf: invalid concurrency")

// ErrNotASeeker is returned by Seek when the underlying reader does not
// implement io.Seeker.
var ErrNotASeeker = errors.New("bgzf: not a seeker")

// SetCache installs c as the Reader's block cache. It is not safe to call
// concurrently with Read.
func (bg *Reader) SetCache(c Cache) { bg.cache = c }

// Offset returns the virtual file offset of the next byte Read will yield.
func (bg *Reader) Offset() Offset {
	return Offset{File: bg.blockBase, Block: uint16(bg.pos)}
}

// Begin marks the start of a new Chunk at the Reader's current offset. A
// later call to LastChunk reports the region read since the matching Begin.
func (bg *Reader) Begin() {
	bg.chunkBegin = bg.Offset()
}

// LastChunk returns the Chunk spanning from the most recent Begin call to
// the Reader's current offset.
func (bg *Reader) LastChunk() Chunk {
	return Chunk{Begin: bg.chunkBegin, End: bg.Offset()}
}

func (bg *Reader) fill() error {
	if bg.cache != nil {
		if blk, ok := bg.cache.Get(bg.blockBase); ok {
			bg.cur = blk.Data
			bg.blockSize = blk.Size
			bg.pos = 0
			return nil
		}
	}
	base := bg.blockBase
	var counted countingReader
	counted.r = bg.r
	data, err := readBlock(&counted)
	if err != nil {
		return err
	}
	bg.cur = data
	bg.blockSize = int(counted.n)
	bg.pos = 0
	if bg.cache != nil {
		bg.cache.Put(Block{Base: base, Size: bg.blockSize, Data: data})
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Read implements io.Reader, transparently crossing BGZF block boundaries.
func (bg *Reader) Read(p []byte) (int, error) {
	if bg.err != nil {
		return 0, bg.err
	}
	var n int
	for n < len(p) {
		if bg.cur == nil || bg.pos >= len(bg.cur) {
			if bg.cur != nil {
				bg.blockBase += int64(bg.blockSize)
			}
			if err := bg.fill(); err != nil {
				if err == io.EOF && n > 0 {
					return n, nil
				}
				bg.err = err
				return n, err
			}
			if len(bg.cur) == 0 {
				// Terminal EOF marker block: empty payload.
				bg.err = io.EOF
				if n > 0 {
					return n, nil
				}
				return 0, io.EOF
			}
		}
		c := copy(p[n:], bg.cur[bg.pos:])
		bg.pos += c
		n += c
	}
	return n, nil
}

// Seek positions the Reader at the given virtual file offset. The
// underlying reader must implement io.Seeker.
func (bg *Reader) Seek(off Offset) error {
	if bg.rs == nil {
		return ErrNotASeeker
	}
	if _, err := bg.rs.Seek(off.File, io.SeekStart); err != nil {
		return err
	}
	bg.blockBase = off.File
	bg.cur = nil
	bg.pos = 0
	bg.err = nil
	if err := bg.fill(); err != nil {
		return err
	}
	if int(off.Block) > len(bg.cur) {
		return errors.New("bgzf: offset past end of block")
	}
	bg.pos = int(off.Block)
	return nil
}

// BlockLen returns the decompressed length of the block the Reader is
// currently positioned in, used by callers bounding reads to a chunk end
// that falls within the current block.
func (bg *Reader) BlockLen() int { return len(bg.cur) }

// Close releases any resources held by the Reader. The underlying reader
// is not closed unless it implements io.Closer.
func (bg *Reader) Close() error {
	if c, ok := bg.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
