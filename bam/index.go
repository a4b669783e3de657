// Copyright ©2014 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"io"
	"sort"

	"github.com/statgen-go/hts/bai"
	"github.com/statgen-go/hts/bgzf"
	"github.com/statgen-go/hts/bgzf/index"
	"github.com/statgen-go/hts/herr"
	"github.com/statgen-go/hts/sam"
)

// Index is a BAI index over a BAM file, adapting the reference-ID/position
// view sam.Record exposes onto the generic bai.Index.
type Index struct {
	idx bai.Index
}

// NumRefs returns the number of references in the index.
func (i *Index) NumRefs() int { return len(i.idx.Refs) }

// ReferenceStats returns the index statistics for the given reference and
// true if the statistics are valid.
func (i *Index) ReferenceStats(id int) (stats bai.ReferenceStats, ok bool) {
	s := i.idx.Refs[id].Stats
	if s == nil {
		return bai.ReferenceStats{}, false
	}
	return *s, true
}

// Unmapped returns the number of unmapped reads.
func (i *Index) Unmapped() uint64 { return i.idx.Unmapped }

// Add records r as occupying chunk c in the index.
func (i *Index) Add(r *sam.Record, c bgzf.Chunk) error {
	return i.idx.Add(r, uint32(r.Bin()), c, isPlaced(r), isMapped(r))
}

func isPlaced(r *sam.Record) bool { return r.Ref != nil && r.Pos != -1 }
func isMapped(r *sam.Record) bool { return r.Flags&sam.Unmapped == 0 }

// Chunks returns the bgzf.Chunks that may hold records overlapping
// [beg,end) on reference r, merged using the Adjacent strategy.
func (i *Index) Chunks(r *sam.Reference, beg, end int) ([]bgzf.Chunk, error) {
	chunks, err := i.idx.Chunks(r.ID(), beg, end)
	if err != nil {
		return nil, herr.Wrap(herr.IO, "bam.Index.Chunks", err)
	}
	return index.Adjacent(chunks), nil
}

// MergeChunks applies the given MergeStrategy to all bins in the Index.
func (i *Index) MergeChunks(s index.MergeStrategy) {
	i.idx.MergeChunks(s)
}

// GetAllOffsets returns every distinct chunk-begin and interval offset
// recorded in the index, keyed by reference ID, sorted and deduplicated.
// It is primarily useful for estimating the span of the underlying BGZF
// stream a reference occupies.
func (i *Index) GetAllOffsets() map[int][]bgzf.Offset {
	m := make(map[int][]bgzf.Offset)
	for refID, ref := range i.idx.Refs {
		offs := make([]bgzf.Offset, 0)
		for _, bin := range ref.Bins {
			for _, chunk := range bin.Chunks {
				if !chunk.Begin.IsZero() {
					offs = append(offs, chunk.Begin)
				}
			}
		}
		for _, iv := range ref.Intervals {
			if !iv.IsZero() {
				offs = append(offs, iv)
			}
		}
		sort.Sort(byOffset(offs))
		uniq := offs[:0]
		var prev bgzf.Offset
		havePrev := false
		for _, o := range offs {
			if !havePrev || o != prev {
				uniq = append(uniq, o)
				prev = o
				havePrev = true
			}
		}
		m[refID] = uniq
	}
	return m
}

type byOffset []bgzf.Offset

func (s byOffset) Len() int      { return len(s) }
func (s byOffset) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byOffset) Less(i, j int) bool {
	return s[i].Compare(s[j]) < 0
}

// ReadIndex reads the BAI Index from the given io.Reader.
func ReadIndex(r io.Reader) (*Index, error) {
	idx, err := bai.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	return &Index{idx: *idx}, nil
}

// WriteIndex writes the Index to the given io.Writer.
func WriteIndex(w io.Writer, idx *Index) error {
	return idx.idx.WriteTo(w)
}
