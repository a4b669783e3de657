// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package overlap implements pair-overlap clipping policies for paired-end
// alignments whose forward and reverse mates cover the same reference
// bases, a common artifact of short-insert library preparation.
package overlap

import (
	"fmt"

	"github.com/statgen-go/hts/sam"
)

// Policy mutates a forward/reverse mate pair in place to resolve the
// reference bases they both cover.
type Policy interface {
	// HandlePair resolves the overlap between a (the forward-by-convention
	// mate) and b (its reverse mate), mutating either or both of CIGAR,
	// position, mate position and flags.
	HandlePair(a, b *sam.Record) error
}

// Options configures the clip behavior shared by every Policy in this
// package.
type Options struct {
	// PreserveTag, if non-zero, is the two-letter tag under which the
	// original CIGAR is written before a record is rewritten.
	PreserveTag sam.Tag
	// UnmapOnFullClip marks a record unmapped, and sets its mate's
	// MateUnmapped flag, when clipping would remove its entire aligned span.
	UnmapOnFullClip bool
}

// Option configures an Options value.
type Option func(*Options)

// WithPreserveTag records the original CIGAR under tag before any clip is
// applied.
func WithPreserveTag(tag string) Option {
	return func(o *Options) { o.PreserveTag = sam.NewTag(tag) }
}

// WithUnmapOnFullClip enables marking a record unmapped, and its mate
// MateUnmapped, when a clip would remove the record's entire aligned span.
func WithUnmapOnFullClip() Option {
	return func(o *Options) { o.UnmapOnFullClip = true }
}

func newOptions(opts []Option) Options {
	var o Options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// preserveCigar writes r's current CIGAR string under o.PreserveTag, if
// configured, before the caller rewrites r.Cigar.
func (o *Options) preserveCigar(r *sam.Record) {
	if o.PreserveTag == (sam.Tag{}) {
		return
	}
	aux, err := sam.NewAux(o.PreserveTag, r.Cigar.String())
	if err != nil {
		return
	}
	r.AuxFields = append(r.AuxFields.Remove(o.PreserveTag), aux)
}

// unmap clears r's placement, matching the façade's definition of an
// unmapped record: no reference, no position, ProperPair cleared, Unmapped
// set. If mate is non-nil, mate's MateUnmapped flag is set to match.
func unmap(r, mate *sam.Record) {
	r.Ref = nil
	r.Pos = -1
	r.Cigar = nil
	r.Flags = r.Flags&^sam.ProperPair | sam.Unmapped
	if mate != nil {
		mate.Flags |= sam.MateUnmapped
		mate.MateRef = nil
		mate.MatePos = -1
	}
}

// overlapBounds returns the inclusive reference interval [lo, hi] shared by
// a and b's alignments, and whether they overlap at all.
func overlapBounds(a, b *sam.Record) (lo, hi int, ok bool) {
	lo = b.Pos
	hi = a.End() - 1
	return lo, hi, hi >= lo
}

// meanQual returns the mean Phred quality of r's bases whose reference
// position falls in [lo, hi], and how many bases contributed.
func meanQual(r *sam.Record, lo, hi int) (mean float64, n int) {
	if len(r.Qual) == 0 {
		return 0, 0
	}
	ci := r.Cigar.Index()
	var sum int
	for ref := lo; ref <= hi; ref++ {
		off := ref - r.Pos
		qi := ci.QueryIndex(off)
		if qi == sam.IndexNA || qi >= len(r.Qual) {
			continue
		}
		sum += int(r.Qual[qi])
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return float64(sum) / float64(n), n
}

// wrongOrientation reports whether b (the reverse-by-convention mate)
// actually precedes a in reference order, the case the spec calls out for
// a full clip rather than a partial one.
func wrongOrientation(a, b *sam.Record) bool {
	return b.Pos < a.Pos
}

func validatePair(a, b *sam.Record) error {
	if a.Ref == nil || b.Ref == nil || a.RefID() != b.RefID() {
		return fmt.Errorf("overlap: records do not share a reference")
	}
	return nil
}
