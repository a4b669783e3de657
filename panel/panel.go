// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package panel

import (
	"github.com/golang/snappy"

	"github.com/statgen-go/hts/internal/pool"
)

// Panel wraps a Source with a bounded, compressed buffer of recently read
// sites, so a caller that needs to look back a few sites (to diagnose a
// local dip in depth, say) doesn't need the whole panel resident as
// unpacked Genotype slices.
type Panel struct {
	src Source
	buf []bufferedSite
	cap int
}

type bufferedSite struct {
	site     Site
	packed   []byte // snappy-compressed, 2-bits-per-genotype.
	nIndivid int
}

// NewPanel returns a Panel reading from src, retaining the last bufSize
// sites for Recent.
func NewPanel(src Source, bufSize int) *Panel {
	if bufSize <= 0 {
		bufSize = 1
	}
	return &Panel{src: src, cap: bufSize}
}

// Individuals implements Source.
func (p *Panel) Individuals() []string { return p.src.Individuals() }

// Next implements Source, additionally buffering the site read.
func (p *Panel) Next() (*SiteGenotypes, error) {
	sg, err := p.src.Next()
	if err != nil {
		return nil, err
	}
	p.remember(sg)
	return sg, nil
}

// Close implements Source.
func (p *Panel) Close() error { return p.src.Close() }

func (p *Panel) remember(sg *SiteGenotypes) {
	raw := pool.GetBuffer((len(sg.Genotypes) + 3) / 4)
	packGenotypesInto(raw, sg.Genotypes)
	p.buf = append(p.buf, bufferedSite{
		site:     sg.Site,
		packed:   snappy.Encode(nil, raw),
		nIndivid: len(sg.Genotypes),
	})
	pool.PutBuffer(raw)
	if len(p.buf) > p.cap {
		p.buf = p.buf[len(p.buf)-p.cap:]
	}
}

// Recent returns the buffered sites, oldest first, decompressing each
// genotype matrix back into a fresh SiteGenotypes.
func (p *Panel) Recent() []*SiteGenotypes {
	out := make([]*SiteGenotypes, 0, len(p.buf))
	for _, b := range p.buf {
		raw, err := snappy.Decode(nil, b.packed)
		if err != nil {
			continue
		}
		out = append(out, &SiteGenotypes{
			Site:      b.site,
			Genotypes: unpackGenotypes(raw, b.nIndivid),
		})
	}
	return out
}

// packGenotypesInto packs gs two bits at a time into dst, which must have
// length (len(gs)+3)/4. dst is zeroed first, since a pooled buffer may
// carry stale bits from a previous, larger use.
func packGenotypesInto(dst []byte, gs []Genotype) {
	for i := range dst {
		dst[i] = 0
	}
	for i, g := range gs {
		dst[i/4] |= byte(g) << uint((i%4)*2)
	}
}

func unpackGenotypes(packed []byte, n int) []Genotype {
	gs := make([]Genotype, n)
	for i := range gs {
		gs[i] = Genotype((packed[i/4] >> uint((i%4)*2)) & 0x3)
	}
	return gs
}
