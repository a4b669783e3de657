// Copyright ©2014 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bai

import (
	"errors"
	"sort"

	"github.com/statgen-go/hts/bgzf"
)

// TileWidth is the length in reference bases of the linear interval tiling
// used alongside the bin tree to bound backward chunk scans.
const TileWidth = 0x4000

// ErrNoReference is returned by Chunks when the requested reference ID has
// no entry in the index.
var ErrNoReference = errors.New("bai: no such reference")

// ErrInvalid reports a region lying outside the range the index's linear
// tiling covers. Chunks does not return it.
var ErrInvalid = errors.New("bai: invalid region")

// Index is a binned, coordinate based index over a BGZF stream of
// coordinate-sorted records, the structure backing BAI and Tabix files.
type Index struct {
	Refs       []RefIndex
	Unmapped   uint64
	IsSorted   bool
	LastRecord int
}

// RefIndex is the index for a single reference sequence.
type RefIndex struct {
	Bins      []Bin
	Stats     *ReferenceStats
	Intervals []bgzf.Offset
}

// Bin holds the set of Chunks recording every record assigned to one bin.
type Bin struct {
	Bin    uint32
	Chunks []bgzf.Chunk
}

// ReferenceStats holds mapped/unmapped read counts for one reference, as
// stored in the bin 37450 pseudo-bin.
type ReferenceStats struct {
	Chunk    bgzf.Chunk
	Mapped   uint64
	Unmapped uint64
}

// Record is the minimal view of an alignment record needed to index it.
type Record interface {
	RefID() int
	Start() int
	End() int
}

// Add records r as occupying chunk c in bin, updating bin, interval tile
// and reference statistics bookkeeping.
func (ix *Index) Add(r Record, bin uint32, c bgzf.Chunk, placed, mapped bool) error {
	if !IsValidIndexPos(r.Start()) || !IsValidIndexPos(r.End()) {
		return errors.New("bai: record position out of indexable range")
	}
	if !placed {
		ix.Unmapped++
		return nil
	}

	rid := r.RefID()
	if rid < len(ix.Refs)-1 {
		return errors.New("bai: record out of reference order")
	}
	if rid >= len(ix.Refs) {
		refs := make([]RefIndex, rid+1)
		copy(refs, ix.Refs)
		ix.Refs = refs
		ix.LastRecord = 0
	}
	ref := &ix.Refs[rid]

	ix.addToBin(ref, bin, c)

	biv := r.Start() / TileWidth
	if r.Start() < ix.LastRecord {
		return errors.New("bai: record out of position order")
	}
	ix.LastRecord = r.Start()
	eiv := r.End() / TileWidth
	switch {
	case eiv == len(ref.Intervals):
		ref.Intervals = append(ref.Intervals, c.Begin)
	case eiv > len(ref.Intervals):
		intvs := make([]bgzf.Offset, eiv)
		copy(intvs, ref.Intervals)
		from := biv
		if from < len(ref.Intervals) {
			from = len(ref.Intervals)
		}
		for k := from; k < eiv; k++ {
			intvs[k] = c.Begin
		}
		ref.Intervals = intvs
	}

	if ref.Stats == nil {
		ref.Stats = &ReferenceStats{Chunk: c}
	} else {
		ref.Stats.Chunk.End = c.End
	}
	if mapped {
		ref.Stats.Mapped++
	} else {
		ref.Stats.Unmapped++
	}
	return nil
}

func (ix *Index) addToBin(ref *RefIndex, bin uint32, c bgzf.Chunk) {
	for i, b := range ref.Bins {
		if b.Bin != bin {
			continue
		}
		for j, chunk := range ref.Bins[i].Chunks {
			if chunk.End.Compare(c.Begin) > 0 {
				ref.Bins[i].Chunks[j].End = c.End
				return
			}
		}
		ref.Bins[i].Chunks = append(ref.Bins[i].Chunks, c)
		return
	}
	ix.IsSorted = false
	ref.Bins = append(ref.Bins, Bin{Bin: bin, Chunks: []bgzf.Chunk{c}})
}

// Chunks returns the sorted, merged list of bgzf.Chunks that may contain
// records overlapping [beg,end) on reference rid. rid == -1 requests the
// single chunk spanning every unplaced record; beg == end == -1 requests
// every chunk recorded for rid.
func (ix *Index) Chunks(rid, beg, end int) ([]bgzf.Chunk, error) {
	if rid == -1 {
		b, e := ix.overallOffsetRange()
		if b.IsZero() && e.IsZero() {
			return nil, nil
		}
		return []bgzf.Chunk{{Begin: e, End: bgzf.Offset{File: 1<<63 - 1, Block: 0xffff}}}, nil
	}
	if rid < 0 || rid >= len(ix.Refs) {
		return nil, ErrNoReference
	}
	ix.sort()
	ref := ix.Refs[rid]

	if beg == -1 && end == -1 {
		b, e, ok := ix.refOffsetRange(ref)
		if !ok {
			return nil, nil
		}
		return []bgzf.Chunk{{Begin: b, End: e}}, nil
	}

	minOffset := ix.minOffsetFor(ref, beg)

	var chunks []bgzf.Chunk
	for _, bin := range OverlappingBinsFor(beg, end) {
		i := sort.Search(len(ref.Bins), func(i int) bool { return ref.Bins[i].Bin >= bin })
		if i >= len(ref.Bins) || ref.Bins[i].Bin != bin {
			continue
		}
		if bin == StatsDummyBin {
			continue
		}
		for _, c := range ref.Bins[i].Chunks {
			if c.End.Compare(minOffset) >= 0 {
				chunks = append(chunks, c)
			}
		}
	}

	sort.Sort(byBeginOffset(chunks))
	return mergeAdjacent(chunks), nil
}

// minOffsetFor returns the linear index offset below which no record
// overlapping beg can start, scanning backward from beg's own tile to the
// nearest non-zero entry when that tile was never populated (an index
// defect produced by some historical BAM writers that the reference
// implementation works around the same way).
func (ix *Index) minOffsetFor(ref RefIndex, beg int) bgzf.Offset {
	tile := beg / TileWidth
	for k := tile; k >= 0; k-- {
		if k >= len(ref.Intervals) {
			continue
		}
		if !ref.Intervals[k].IsZero() {
			return ref.Intervals[k]
		}
	}
	return bgzf.Offset{}
}

// mergeAdjacent drops chunks wholly contained in the preceding chunk and
// fuses adjacent chunks whose boundary falls within a single compressed
// block, reducing the number of decompression restarts a scan performs.
func mergeAdjacent(chunks []bgzf.Chunk) []bgzf.Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	out := chunks[:1]
	for _, c := range chunks[1:] {
		last := &out[len(out)-1]
		if c.End.Compare(last.End) <= 0 {
			continue // contained in predecessor.
		}
		if last.End.SameBlock(c.Begin) {
			last.End = c.End
			continue
		}
		out = append(out, c)
	}
	return out
}

func (ix *Index) overallOffsetRange() (bgzf.Offset, bgzf.Offset) {
	var min, max bgzf.Offset
	first := true
	for _, ref := range ix.Refs {
		for _, bin := range ref.Bins {
			for _, c := range bin.Chunks {
				if first || c.Begin.Compare(min) < 0 {
					min = c.Begin
				}
				if first || c.End.Compare(max) > 0 {
					max = c.End
				}
				first = false
			}
		}
	}
	return min, max
}

func (ix *Index) refOffsetRange(ref RefIndex) (bgzf.Offset, bgzf.Offset, bool) {
	var min, max bgzf.Offset
	first := true
	for _, bin := range ref.Bins {
		if bin.Bin == StatsDummyBin {
			continue
		}
		for _, c := range bin.Chunks {
			if first || c.Begin.Compare(min) < 0 {
				min = c.Begin
			}
			if first || c.End.Compare(max) > 0 {
				max = c.End
			}
			first = false
		}
	}
	return min, max, !first
}

func (ix *Index) sort() {
	if ix.IsSorted {
		return
	}
	for i := range ix.Refs {
		ref := &ix.Refs[i]
		sort.Sort(byBinNumber(ref.Bins))
		for b := range ref.Bins {
			sort.Sort(byBeginOffset(ref.Bins[b].Chunks))
		}
	}
	ix.IsSorted = true
}

// MergeChunks applies s to every bin's Chunks, a hook for callers wanting a
// coarser chunk merge strategy than the index's default adjacency fuse.
func (ix *Index) MergeChunks(s func([]bgzf.Chunk) []bgzf.Chunk) {
	if s == nil {
		return
	}
	for i := range ix.Refs {
		ref := &ix.Refs[i]
		for b := range ref.Bins {
			sort.Sort(byBeginOffset(ref.Bins[b].Chunks))
			ref.Bins[b].Chunks = s(ref.Bins[b].Chunks)
			sort.Sort(byBeginOffset(ref.Bins[b].Chunks))
		}
	}
}

type byBinNumber []Bin

func (b byBinNumber) Len() int           { return len(b) }
func (b byBinNumber) Less(i, j int) bool { return b[i].Bin < b[j].Bin }
func (b byBinNumber) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }

type byBeginOffset []bgzf.Chunk

func (c byBeginOffset) Len() int           { return len(c) }
func (c byBeginOffset) Less(i, j int) bool { return c[i].Begin.Compare(c[j].Begin) < 0 }
func (c byBeginOffset) Swap(i, j int)      { c[i], c[j] = c[j], c[i] }
