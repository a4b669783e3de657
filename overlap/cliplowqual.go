// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package overlap

import "github.com/statgen-go/hts/sam"

// ClipLowerQuality resolves an overlap by soft-clipping the lower
// mean-quality mate down to the overlap boundary. When the pair is in the
// wrong orientation (the reverse mate starts before the forward mate),
// the entire lower-quality side is clipped instead of just its overlap.
type ClipLowerQuality struct {
	opts Options
}

// NewClipLowerQuality returns a ClipLowerQuality policy configured by opts.
func NewClipLowerQuality(opts ...Option) *ClipLowerQuality {
	return &ClipLowerQuality{opts: newOptions(opts)}
}

// HandlePair implements Policy.
func (p *ClipLowerQuality) HandlePair(a, b *sam.Record) error {
	if err := validatePair(a, b); err != nil {
		return err
	}
	lo, hi, ok := overlapBounds(a, b)
	if !ok {
		return nil
	}

	aMean, aN := meanQual(a, lo, hi)
	bMean, bN := meanQual(b, lo, hi)
	if aN == 0 && bN == 0 {
		return nil
	}
	aLower := aN == 0 || (bN != 0 && aMean < bMean)

	if wrongOrientation(a, b) {
		if aLower {
			p.opts.preserveCigar(a)
			unmap(a, b)
		} else {
			p.opts.preserveCigar(b)
			unmap(b, a)
		}
		return nil
	}

	if aLower {
		p.opts.preserveCigar(a)
		if full := clipSuffixAt(a, lo); full && p.opts.UnmapOnFullClip {
			unmap(a, b)
		}
	} else {
		p.opts.preserveCigar(b)
		if full := clipPrefixAt(b, hi+1); full && p.opts.UnmapOnFullClip {
			unmap(b, a)
		}
	}
	return nil
}
