// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fai

// RefProvider adapts a File into a sam.ReferenceProvider, resolving a
// 0-based header reference ID to a sequence name via an externally supplied,
// header-ordered name list (typically a SAM header's @SQ order). It lazily
// opens and caches one Seq per reference ID on first use.
type RefProvider struct {
	f     *File
	names []string
	seqs  []*Seq
}

// NewRefProvider returns a RefProvider serving bases from f, indexed by the
// reference ID implied by the position of each name in names.
func NewRefProvider(f *File, names []string) *RefProvider {
	return &RefProvider{f: f, names: names, seqs: make([]*Seq, len(names))}
}

// Base returns the base at pos (0-based) on refID, or 'N' if refID or pos is
// out of range or the backing sequence cannot be opened. It satisfies
// sam.ReferenceProvider.
func (p *RefProvider) Base(refID, pos int) (b byte) {
	if refID < 0 || refID >= len(p.names) {
		return 'N'
	}
	s := p.seqs[refID]
	if s == nil {
		var err error
		s, err = p.f.Seq(p.names[refID])
		if err != nil {
			return 'N'
		}
		p.seqs[refID] = s
	}
	defer func() {
		if recover() != nil {
			b = 'N'
		}
	}()
	return s.At(pos)
}
