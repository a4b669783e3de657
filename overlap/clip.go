// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package overlap

import "github.com/statgen-go/hts/sam"

// splitCigar splits c, whose first operation begins at reference position
// refStart, into the portion covering reference positions before refCut and
// the portion at or after it. An operation that straddles refCut is itself
// split in proportion to its reference consumption; pure query- or
// reference-silent operations (I, S, H, P) are assigned to whichever side
// is currently being built.
func splitCigar(c sam.Cigar, refStart, refCut int) (before, after sam.Cigar) {
	pos := refStart
	for _, co := range c {
		t := co.Type()
		con := t.Consumes()
		n := co.Len()
		if con.Reference == 0 {
			if pos <= refCut {
				before = before.Append(co)
			} else {
				after = after.Append(co)
			}
			continue
		}
		switch {
		case pos+n <= refCut:
			before = before.Append(co)
		case pos >= refCut:
			after = after.Append(co)
		default:
			left := refCut - pos
			before = before.Append(sam.NewCigarOp(t, left))
			after = after.Append(sam.NewCigarOp(t, n-left))
		}
		pos += n
	}
	return before, after
}

// foldToSoftClip collapses clipped, the portion of a CIGAR being removed,
// into a single soft clip sized to the number of query bases it covers. A
// pure reference-consuming clip (all D/N) folds to a zero-length, empty
// clip.
func foldToSoftClip(clipped sam.Cigar) sam.Cigar {
	var n int
	for _, co := range clipped {
		n += co.Len() * co.Type().Consumes().Query
	}
	if n == 0 {
		return nil
	}
	return sam.Cigar{sam.NewCigarOp(sam.CigarSoftClipped, n)}
}

// clipSuffixAt soft-clips the portion of r's alignment at or after
// reference position refCut, in place. It reports whether the clip removed
// the record's entire reference span.
func clipSuffixAt(r *sam.Record, refCut int) (fullyClipped bool) {
	before, after := splitCigar(r.Cigar, r.Pos, refCut)
	if len(before) == 0 {
		return true
	}
	c := append(sam.Cigar{}, before...)
	for _, co := range foldToSoftClip(after) {
		c = c.Append(co)
	}
	r.Cigar = c
	return false
}

// clipPrefixAt soft-clips the portion of r's alignment before reference
// position refCut, in place, advancing r.Pos to refCut. It reports whether
// the clip removed the record's entire reference span.
func clipPrefixAt(r *sam.Record, refCut int) (fullyClipped bool) {
	before, after := splitCigar(r.Cigar, r.Pos, refCut)
	if len(after) == 0 {
		return true
	}
	var c sam.Cigar
	for _, co := range foldToSoftClip(before) {
		c = c.Append(co)
	}
	for _, co := range after {
		c = c.Append(co)
	}
	r.Pos = refCut
	r.Cigar = c
	return false
}
