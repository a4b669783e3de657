// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sam

import (
	"bytes"
	"fmt"
)

// Cigar is a set of CIGAR operations. Adjacent operations of the same type
// are coalesced whenever a Cigar is built with Append, so a Cigar obtained
// that way never holds two consecutive ops of equal Type.
type Cigar []CigarOp

// Append adds op to the end of c, merging it into the last existing op if
// the two share a Type.
func (c Cigar) Append(op CigarOp) Cigar {
	if op.Len() == 0 {
		return c
	}
	if n := len(c); n != 0 && c[n-1].Type() == op.Type() {
		c[n-1] = NewCigarOp(op.Type(), c[n-1].Len()+op.Len())
		return c
	}
	return append(c, op)
}

// IsValid returns whether the CIGAR string is valid for a record of the given
// sequence length.
func (c Cigar) IsValid(length int) bool {
	var pos int
	for i, co := range c {
		ct := co.Type()
		if ct == CigarHardClipped && i != 0 && i != len(c)-1 {
			return false
		}
		if ct == CigarSoftClipped && i != 0 && i != len(c)-1 {
			if c[i-1].Type() != CigarHardClipped && c[i+1].Type() != CigarHardClipped {
				return false
			}
		}
		con := ct.Consumes()
		if pos < 0 && con.Query != 0 {
			return false
		}
		length -= co.Len() * con.Query
		pos += co.Len() * con.Reference
	}
	return length == 0
}

// String returns the CIGAR string for c, or "*" if c is empty.
func (c Cigar) String() string {
	if len(c) == 0 {
		return "*"
	}
	var b bytes.Buffer
	for _, co := range c {
		fmt.Fprint(&b, co)
	}
	return b.String()
}

// QueryLength returns the expected length of the query sequence described by
// c: the sum of the lengths of M, I and S operations.
func (c Cigar) QueryLength() int {
	var n int
	for _, co := range c {
		switch co.Type() {
		case CigarMatch, CigarInsertion, CigarSoftClipped, CigarEqual, CigarMismatch:
			n += co.Len()
		}
	}
	return n
}

// Lengths returns the number of reference and read bases described by c,
// equivalent to calling RefSpan and QueryLength respectively.
func (c Cigar) Lengths() (ref, read int) {
	for _, co := range c {
		con := co.Type().Consumes()
		ref += co.Len() * con.Reference
		read += co.Len() * con.Query
	}
	return ref, read
}

// RefSpan returns the expected span on the reference described by c: the
// sum of the lengths of M, D and N operations.
func (c Cigar) RefSpan() int {
	var n int
	for _, co := range c {
		switch co.Type() {
		case CigarMatch, CigarDeletion, CigarSkipped, CigarEqual, CigarMismatch:
			n += co.Len()
		}
	}
	return n
}

// NumBeginClips returns the sum of the run of S and H operations at the
// start of c.
func (c Cigar) NumBeginClips() int {
	var n int
	for _, co := range c {
		t := co.Type()
		if t != CigarSoftClipped && t != CigarHardClipped {
			break
		}
		n += co.Len()
	}
	return n
}

// NumEndClips returns the sum of the run of S and H operations at the end
// of c.
func (c Cigar) NumEndClips() int {
	var n int
	for i := len(c) - 1; i >= 0; i-- {
		t := c[i].Type()
		if t != CigarSoftClipped && t != CigarHardClipped {
			break
		}
		n += c[i].Len()
	}
	return n
}

// IndexNA is returned by the CigarIndex lookups for a position that is
// inserted, deleted, clipped, or otherwise out of range.
const IndexNA = -1

// CigarIndex is a pair of lazily built lookup tables between query index
// and reference offset, both relative to the start of the alignment. It is
// built once by Cigar.Index and should be discarded and rebuilt whenever
// the owning Cigar mutates.
type CigarIndex struct {
	q2r []int32
	r2q []int32
}

// Index builds the query-index/ref-offset lookup tables for c. Callers that
// need repeated lookups across many positions should build the index once
// and cache it until c changes, rather than calling Index per lookup.
func (c Cigar) Index() CigarIndex {
	qLen := c.QueryLength()
	rSpan := c.RefSpan()
	ci := CigarIndex{
		q2r: make([]int32, qLen),
		r2q: make([]int32, rSpan),
	}
	for i := range ci.q2r {
		ci.q2r[i] = IndexNA
	}
	for i := range ci.r2q {
		ci.r2q[i] = IndexNA
	}
	var qi, ri int
	for _, co := range c {
		t := co.Type()
		con := t.Consumes()
		isAligned := t == CigarMatch || t == CigarEqual || t == CigarMismatch
		for j := 0; j < co.Len(); j++ {
			qidx, ridx := -1, -1
			if con.Query != 0 {
				qidx = qi
			}
			if con.Reference != 0 {
				ridx = ri
			}
			if qidx >= 0 && isAligned {
				ci.q2r[qidx] = int32(ridx)
			}
			if ridx >= 0 && isAligned {
				ci.r2q[ridx] = int32(qidx)
			}
			if con.Query != 0 {
				qi++
			}
			if con.Reference != 0 {
				ri++
			}
		}
	}
	return ci
}

// RefOffset returns the reference offset, relative to the start of the
// alignment, of the query base at queryIndex, or IndexNA if that query
// position is inserted, clipped or out of range.
func (ci CigarIndex) RefOffset(queryIndex int) int {
	if queryIndex < 0 || queryIndex >= len(ci.q2r) {
		return IndexNA
	}
	return int(ci.q2r[queryIndex])
}

// QueryIndex returns the query index, relative to the start of the
// alignment, of the reference position at refOffset, or IndexNA if that
// reference position is deleted, skipped or out of range.
func (ci CigarIndex) QueryIndex(refOffset int) int {
	if refOffset < 0 || refOffset >= len(ci.r2q) {
		return IndexNA
	}
	return int(ci.r2q[refOffset])
}

// NumOverlaps counts positions where the query base is in an aligned
// operation (M, = or X) and the corresponding reference coordinate lies in
// [regionStart, regionEnd). queryStartPos is the reference position of the
// start of the alignment (typically a record's Pos). -1 at either region
// endpoint means unbounded on that side.
func (c Cigar) NumOverlaps(regionStart, regionEnd, queryStartPos int) int {
	var n, cumRef int
	for _, co := range c {
		t := co.Type()
		con := t.Consumes()
		isAligned := t == CigarMatch || t == CigarEqual || t == CigarMismatch
		if isAligned {
			for j := 0; j < co.Len(); j++ {
				abs := queryStartPos + cumRef + j
				if (regionStart == -1 || abs >= regionStart) && (regionEnd == -1 || abs < regionEnd) {
					n++
				}
			}
		}
		cumRef += co.Len() * con.Reference
	}
	return n
}

// CigarOp is a single CIGAR operation including the operation type and the
// length of the operation, packed as count<<4 | op_code.
type CigarOp uint32

// NewCigarOp returns a CIGAR operation of the specified type with length n.
func NewCigarOp(t CigarOpType, n int) CigarOp {
	return CigarOp(t) | (CigarOp(n) << 4)
}

// Type returns the type of the CIGAR operation for the CigarOp.
func (co CigarOp) Type() CigarOpType { return CigarOpType(co & 0xf) }

// Len returns the number of positions affected by the CigarOp CIGAR operation.
func (co CigarOp) Len() int { return int(co >> 4) }

// String returns the string representation of the CigarOp.
func (co CigarOp) String() string { return fmt.Sprintf("%d%s", co.Len(), co.Type().String()) }

// A CigarOpType represents the type of operation described by a CigarOp.
type CigarOpType byte

const (
	CigarMatch       CigarOpType = iota // Alignment match (can be a sequence match or mismatch).
	CigarInsertion                      // Insertion to the reference.
	CigarDeletion                       // Deletion from the reference.
	CigarSkipped                        // Skipped region from the reference.
	CigarSoftClipped                    // Soft clipping (clipped sequences present in SEQ).
	CigarHardClipped                    // Hard clipping (clipped sequences NOT present in SEQ).
	CigarPadded                         // Padding (silent deletion from padded reference).
	CigarEqual                          // Sequence match.
	CigarMismatch                       // Sequence mismatch.
	lastCigar
)

var cigarOps = []string{"M", "I", "D", "N", "S", "H", "P", "=", "X", "?"}

// Consumes returns the CIGAR operation alignment consumption characteristics
// for the CigarOpType.
func (ct CigarOpType) Consumes() Consume { return consume[ct] }

// String returns the string representation of a CigarOpType.
func (ct CigarOpType) String() string {
	if ct < 0 || ct > lastCigar {
		ct = lastCigar
	}
	return cigarOps[ct]
}

// Consume describes how CIGAR operations consume alignment bases.
type Consume struct {
	Query, Reference int
}

var consume = []Consume{
	CigarMatch:       {Query: 1, Reference: 1},
	CigarInsertion:   {Query: 1, Reference: 0},
	CigarDeletion:    {Query: 0, Reference: 1},
	CigarSkipped:     {Query: 0, Reference: 1},
	CigarSoftClipped: {Query: 1, Reference: 0},
	CigarHardClipped: {Query: 0, Reference: 0},
	CigarPadded:      {Query: 0, Reference: 0},
	CigarEqual:       {Query: 1, Reference: 1},
	CigarMismatch:    {Query: 1, Reference: 1},
	lastCigar:        {},
}

var cigarOpTypeLookup [256]CigarOpType

func init() {
	for i := range cigarOpTypeLookup {
		cigarOpTypeLookup[i] = lastCigar
	}
	for op, c := range []byte{'M', 'I', 'D', 'N', 'S', 'H', 'P', '=', 'X'} {
		cigarOpTypeLookup[c] = CigarOpType(op)
	}
}

var powers = []int{1e0, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8}

// atoi returns the integer interpretation of b which must be an ASCII
// decimal number representation.
func atoi(b []byte, i int) (int, error) {
	n := 0
	k := len(b) - 1
	for i, v := range b {
		n += int(v-'0') * powers[k-i]
	}
	if n < 0 || 1<<28 <= n {
		return n, fmt.Errorf("sam: invalid cigar operation count: %q at %d", b, i)
	}
	return n, nil
}

// ParseCigar returns a Cigar parsed from the provided byte slice. Adjacent
// equal-type operations are coalesced, matching the teacher's ParseCigar
// behavior extended for append-time coalescing.
func ParseCigar(b []byte) (Cigar, error) {
	if len(b) == 1 && b[0] == '*' {
		return nil, nil
	}
	var (
		c   Cigar
		op  CigarOpType
		n   int
		err error
	)
	for i := 0; i < len(b); i++ {
		for j := i; j < len(b); j++ {
			if b[j] < '0' || '9' < b[j] {
				n, err = atoi(b[i:j], i)
				if err != nil {
					return nil, err
				}
				op = cigarOpTypeLookup[b[j]]
				i = j
				break
			}
		}
		if op == lastCigar {
			return nil, fmt.Errorf("sam: failed to parse cigar string %q: unknown operation %q", b, op)
		}
		c = c.Append(NewCigarOp(op, n))
	}
	return c, nil
}

// ParseCigarBinary decodes a BAM-encoded CIGAR, one packed uint32 per
// operation (count<<4 | op_code), per the C1 binary form.
func ParseCigarBinary(words []uint32) Cigar {
	c := make(Cigar, 0, len(words))
	for _, w := range words {
		c = c.Append(CigarOp(w))
	}
	return c
}

// MarshalBinary returns the packed uint32-per-operation binary form of c.
func (c Cigar) MarshalBinary() []uint32 {
	words := make([]uint32, len(c))
	for i, co := range c {
		words[i] = uint32(co)
	}
	return words
}
