// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package overlap

import "github.com/statgen-go/hts/sam"

// SplitClip resolves an overlap by removing half its length from each
// mate, clipping the forward mate's trailing half and the reverse mate's
// leading half at the same reference position so the two no longer share
// any bases. A one-base odd remainder is given to the reverse mate.
type SplitClip struct {
	opts Options
}

// NewSplitClip returns a SplitClip policy configured by opts.
func NewSplitClip(opts ...Option) *SplitClip {
	return &SplitClip{opts: newOptions(opts)}
}

// HandlePair implements Policy.
func (p *SplitClip) HandlePair(a, b *sam.Record) error {
	if err := validatePair(a, b); err != nil {
		return err
	}
	lo, hi, ok := overlapBounds(a, b)
	if !ok {
		return nil
	}

	overlapLen := hi - lo + 1
	floorHalf := overlapLen / 2
	ceilHalf := overlapLen - floorHalf
	splitAt := lo + ceilHalf

	p.opts.preserveCigar(a)
	p.opts.preserveCigar(b)

	fullA := clipSuffixAt(a, splitAt)
	fullB := clipPrefixAt(b, splitAt)

	if p.opts.UnmapOnFullClip {
		if fullA {
			unmap(a, b)
		}
		if fullB {
			unmap(b, a)
		}
	}
	return nil
}
