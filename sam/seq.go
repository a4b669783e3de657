// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sam

// Doublet is a 4-bit encoded nucleotide code, two of which are packed per
// byte in the BAM wire format.
type Doublet byte

// n16Table maps 4-bit codes to their IUPAC ambiguity byte, and n16TableRev
// is its inverse lookup for encoding.
var n16Table = [16]byte{
	'=', 'A', 'C', 'M', 'G', 'R', 'S', 'V',
	'T', 'W', 'Y', 'H', 'K', 'D', 'B', 'N',
}

var n16TableRev = func() [256]Doublet {
	var t [256]Doublet
	for i := range t {
		t[i] = 0x0f // N
	}
	for i, b := range n16Table {
		t[b] = Doublet(i)
	}
	return t
}()

// Seq is a 4-bit encoded nucleotide sequence.
type Seq struct {
	Length int
	Seq    []Doublet
}

// NewSeq returns a Seq representation of the bytes in s.
func NewSeq(s []byte) Seq {
	return Seq{Length: len(s), Seq: contract(s)}
}

func contract(s []byte) []Doublet {
	ns := make([]Doublet, (len(s)+1)/2)
	for i, b := range s {
		if i%2 == 0 {
			ns[i/2] = n16TableRev[b] << 4
		} else {
			ns[i/2] |= n16TableRev[b]
		}
	}
	return ns
}

// Expand returns the unpacked byte representation of the sequence.
func (ns Seq) Expand() []byte {
	s := make([]byte, ns.Length)
	for i := range s {
		if i%2 == 0 {
			s[i] = n16Table[ns.Seq[i/2]>>4]
		} else {
			s[i] = n16Table[ns.Seq[i/2]&0x0f]
		}
	}
	return s
}

// At returns the expanded base at position i.
func (ns Seq) At(i int) byte {
	if i%2 == 0 {
		return n16Table[ns.Seq[i/2]>>4]
	}
	return n16Table[ns.Seq[i/2]&0x0f]
}

// TranslationMode selects how Translate rewrites a Record's sequence
// relative to a reference: TransNone leaves bases untouched,
// TransEqual rewrites reference-matching bases to '=', and TransBases
// expands '=' bytes back to the literal reference base.
type TranslationMode int

// Translation mode constants.
const (
	TransNone TranslationMode = iota
	TransEqual
	TransBases
)

// ReferenceProvider supplies reference bases for sequence translation.
// Base returns the reference base at the 0-based position pos on the
// reference named by refID, or 'N' if unknown.
type ReferenceProvider interface {
	Base(refID int, pos int) byte
}

// Translate rewrites r.Seq in place according to mode, consulting ref for
// reference bases. It is a no-op when mode is TransNone or ref is nil.
func (r *Record) Translate(mode TranslationMode, ref ReferenceProvider) error {
	if mode == TransNone || ref == nil || r.Ref == nil {
		return nil
	}
	bases := r.Seq.Expand()
	refPos := r.Pos
	qPos := 0
	refID := r.Ref.ID()
	for _, co := range r.Cigar {
		cons := co.Type().Consumes()
		for j := 0; j < co.Len(); j++ {
			if cons.Query != 0 && cons.Reference != 0 {
				rb := ref.Base(refID, refPos+j)
				switch mode {
				case TransEqual:
					if bases[qPos] == rb {
						bases[qPos] = '='
					}
				case TransBases:
					if bases[qPos] == '=' {
						bases[qPos] = rb
					}
				}
			}
			if cons.Query != 0 {
				qPos++
			}
		}
		refPos += co.Len() * cons.Reference
	}
	r.Seq = NewSeq(bases)
	return nil
}
