// Copyright ©2015 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package index provides common code for indexed BGZF region reads.
package index

import (
	"errors"
	"io"

	"github.com/statgen-go/hts/bgzf"
)

var (
	ErrNoReference = errors.New("index: no reference")
	ErrInvalid     = errors.New("index: invalid interval")
)

// ChunkReader reads the concatenation of a set of bgzf.Chunks from an
// underlying bgzf.Reader, the read path a region query follows once a
// bai.Index.Chunks call has resolved the chunk list.
type ChunkReader struct {
	r      *bgzf.Reader
	chunks []bgzf.Chunk
}

// NewChunkReader returns a ChunkReader over r, restricting reads to the
// byte ranges in chunks. r is repositioned to the start of the first chunk.
func NewChunkReader(r *bgzf.Reader, chunks []bgzf.Chunk) (*ChunkReader, error) {
	if len(chunks) != 0 {
		if err := r.Seek(chunks[0].Begin); err != nil {
			return nil, err
		}
	}
	return &ChunkReader{r: r, chunks: chunks}, nil
}

// Read satisfies the io.Reader interface, returning io.EOF once every
// configured chunk has been fully consumed.
func (cr *ChunkReader) Read(p []byte) (int, error) {
	if len(cr.chunks) == 0 {
		return 0, io.EOF
	}
	cur := cr.r.Offset()
	if cur.Compare(cr.chunks[0].End) >= 0 {
		cr.chunks = cr.chunks[1:]
		if len(cr.chunks) == 0 {
			return 0, io.EOF
		}
		if err := cr.r.Seek(cr.chunks[0].Begin); err != nil {
			return 0, err
		}
		cur = cr.chunks[0].Begin
	}

	want := len(p)
	end := cr.chunks[0].End
	if end.SameBlock(cur) {
		if limit := int(end.Block) - int(cur.Block); limit < want {
			want = limit
		}
	}

	n, err := cr.r.Read(p[:want])
	if err != nil {
		if n != 0 && err == io.EOF {
			err = nil
		}
		return n, err
	}

	if cr.r.Offset().Compare(end) >= 0 {
		cr.chunks = cr.chunks[1:]
		if len(cr.chunks) == 0 {
			return n, io.EOF
		}
		err = cr.r.Seek(cr.chunks[0].Begin)
	}
	return n, err
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Close releases the ChunkReader. The underlying bgzf.Reader is not closed.
func (cr *ChunkReader) Close() error {
	cr.r = nil
	return nil
}
