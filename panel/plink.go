// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package panel

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/statgen-go/hts/herr"
)

// Options configures a Source constructor.
type Options struct {
	// MissingAF is substituted for a marker whose allele frequency column
	// is absent or unparseable. The caller typically passes its configured
	// genotype error rate here, so a missing AF is never treated as zero.
	MissingAF float64
}

// Option configures an Options value.
type Option func(*Options)

// WithMissingAF sets the default substituted for a missing allele
// frequency.
func WithMissingAF(af float64) Option {
	return func(o *Options) { o.MissingAF = af }
}

func newOptions(opts []Option) Options {
	var o Options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

var plinkBedMagic = [3]byte{0x6c, 0x1b, 0x01} // SNP-major mode.

// plinkCode maps a .bed 2-bit genotype code directly onto Genotype, since
// both are defined in the same 00/01/10/11 order.
func plinkCode(b byte) Genotype { return Genotype(b) }

type bimRecord struct {
	chrom string
	id    string
	bp    int
	a1    byte
	a2    byte
	af    float64
	hasAF bool
}

// PLINKSource reads a PLINK-style binary trio: a .fam individual list, a
// .bim marker list (extended with an optional trailing allele-frequency
// column), and a SNP-major .bed packed genotype matrix.
type PLINKSource struct {
	individuals []string
	markers     []bimRecord
	bed         *os.File
	bytesPerRow int
	idx         int
	opts        Options
}

// OpenPLINK opens the .bed, .bim and .fam files at the given paths, each
// used exactly as passed, and returns a Source ready to stream sites.
func OpenPLINK(bedPath, bimPath, famPath string, opts ...Option) (*PLINKSource, error) {
	o := newOptions(opts)

	individuals, err := readFam(famPath)
	if err != nil {
		return nil, err
	}
	markers, err := readBim(bimPath)
	if err != nil {
		return nil, err
	}

	bed, err := os.Open(bedPath)
	if err != nil {
		return nil, herr.Wrap(herr.IO, "panel.OpenPLINK", err)
	}
	var magic [3]byte
	if _, err := io.ReadFull(bed, magic[:]); err != nil {
		bed.Close()
		return nil, herr.Wrap(herr.IO, "panel.OpenPLINK", err)
	}
	if magic != plinkBedMagic {
		bed.Close()
		return nil, herr.New(herr.Parse, "panel.OpenPLINK", "not a SNP-major PLINK .bed file")
	}

	return &PLINKSource{
		individuals: individuals,
		markers:     markers,
		bed:         bed,
		bytesPerRow: (len(individuals) + 3) / 4,
		opts:        o,
	}, nil
}

func readFam(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, herr.Wrap(herr.IO, "panel.readFam", err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			return nil, herr.New(herr.Parse, "panel.readFam", "malformed line %q", sc.Text())
		}
		ids = append(ids, fields[1])
	}
	if err := sc.Err(); err != nil {
		return nil, herr.Wrap(herr.IO, "panel.readFam", err)
	}
	return ids, nil
}

func readBim(path string) ([]bimRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, herr.Wrap(herr.IO, "panel.readBim", err)
	}
	defer f.Close()

	var recs []bimRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			return nil, herr.New(herr.Parse, "panel.readBim", "malformed line %q", sc.Text())
		}
		bp, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, herr.Wrap(herr.Parse, "panel.readBim", err)
		}
		rec := bimRecord{
			chrom: fields[0],
			id:    fields[1],
			bp:    bp,
			a1:    normalizeAllele(fields[4]),
			a2:    normalizeAllele(fields[5]),
		}
		if len(fields) >= 7 {
			if af, err := strconv.ParseFloat(fields[6], 64); err == nil {
				rec.af, rec.hasAF = af, true
			}
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, herr.Wrap(herr.IO, "panel.readBim", err)
	}
	return recs, nil
}

func normalizeAllele(s string) byte {
	if len(s) == 0 {
		return 'N'
	}
	return upper(s[0])
}

// Individuals implements Source.
func (p *PLINKSource) Individuals() []string { return p.individuals }

// Next implements Source.
func (p *PLINKSource) Next() (*SiteGenotypes, error) {
	if p.idx >= len(p.markers) {
		return nil, herr.New(herr.NoMoreRecs, "panel.PLINKSource.Read", "end of markers")
	}
	m := p.markers[p.idx]

	row := make([]byte, p.bytesPerRow)
	off := int64(len(plinkBedMagic)) + int64(p.idx)*int64(p.bytesPerRow)
	if _, err := p.bed.ReadAt(row, off); err != nil {
		return nil, herr.Wrap(herr.IO, "panel.PLINKSource.Read", err)
	}

	genos := make([]Genotype, len(p.individuals))
	for i := range genos {
		code := (row[i/4] >> uint((i%4)*2)) & 0x3
		genos[i] = plinkCode(code)
	}

	af := m.af
	if !m.hasAF {
		af = p.opts.MissingAF
	}
	p.idx++
	return &SiteGenotypes{
		Site:      Site{Chrom: m.chrom, Pos: m.bp, ID: m.id, A1: m.a1, A2: m.a2, AF: af},
		Genotypes: genos,
	}, nil
}

// Close implements Source.
func (p *PLINKSource) Close() error {
	if err := p.bed.Close(); err != nil {
		return herr.Wrap(herr.IO, "panel.PLINKSource.Close", err)
	}
	return nil
}
