// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package panel

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/statgen-go/hts/herr"
)

// VCFSource reads a VCF text file: header columns
// "#CHROM POS ID REF ALT QUAL FILTER INFO FORMAT samples...", one sample
// column per individual, with GT parsed from each sample's colon-delimited
// FORMAT fields.
type VCFSource struct {
	sc          *bufio.Scanner
	individuals []string
	opts        Options
	closer      io.Closer
}

// OpenVCF scans r for the "#CHROM" header line to establish the sample
// list, then returns a Source positioned at the first data line.
func OpenVCF(r io.Reader, opts ...Option) (*VCFSource, error) {
	o := newOptions(opts)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var individuals []string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "##") {
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			fields := strings.Split(line, "\t")
			if len(fields) <= 9 {
				return nil, herr.New(herr.Parse, "panel.OpenVCF", "header line has no sample columns")
			}
			individuals = fields[9:]
			break
		}
		return nil, herr.New(herr.Parse, "panel.OpenVCF", "expected a ##/#CHROM header line, got %q", line)
	}
	if individuals == nil {
		if err := sc.Err(); err != nil {
			return nil, herr.Wrap(herr.IO, "panel.OpenVCF", err)
		}
		return nil, herr.New(herr.Parse, "panel.OpenVCF", "missing #CHROM header line")
	}

	closer, _ := r.(io.Closer)
	return &VCFSource{sc: sc, individuals: individuals, opts: o, closer: closer}, nil
}

// Individuals implements Source.
func (v *VCFSource) Individuals() []string { return v.individuals }

// Next implements Source.
func (v *VCFSource) Next() (*SiteGenotypes, error) {
	if !v.sc.Scan() {
		if err := v.sc.Err(); err != nil {
			return nil, herr.Wrap(herr.IO, "panel.VCFSource.Read", err)
		}
		return nil, herr.New(herr.NoMoreRecs, "panel.VCFSource.Read", "end of file")
	}
	fields := strings.Split(v.sc.Text(), "\t")
	if len(fields) < 9+len(v.individuals) {
		return nil, herr.New(herr.Parse, "panel.VCFSource.Read", "too few columns: %q", v.sc.Text())
	}

	pos, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, herr.Wrap(herr.Parse, "panel.VCFSource.Read", err)
	}
	ref, alt := fields[3], fields[4]
	if len(ref) == 0 || len(alt) == 0 {
		return nil, herr.New(herr.Parse, "panel.VCFSource.Read", "empty REF/ALT")
	}

	af, ok := parseAFInfo(fields[7])
	if !ok {
		af = v.opts.MissingAF
	}

	format := strings.Split(fields[8], ":")
	gtIdx := -1
	for i, k := range format {
		if k == "GT" {
			gtIdx = i
			break
		}
	}
	if gtIdx < 0 {
		return nil, herr.New(herr.Parse, "panel.VCFSource.Read", "no GT in FORMAT column")
	}

	genos := make([]Genotype, len(v.individuals))
	for i, sampleField := range fields[9 : 9+len(v.individuals)] {
		sub := strings.Split(sampleField, ":")
		if gtIdx >= len(sub) {
			return nil, herr.New(herr.Parse, "panel.VCFSource.Read", "sample field missing GT")
		}
		genos[i] = parseGT(sub[gtIdx])
	}

	return &SiteGenotypes{
		Site: Site{
			Chrom: fields[0],
			Pos:   pos,
			ID:    fields[2],
			A1:    normalizeAllele(ref),
			A2:    normalizeAllele(alt),
			AF:    af,
		},
		Genotypes: genos,
	}, nil
}

// Close implements Source.
func (v *VCFSource) Close() error {
	if v.closer == nil {
		return nil
	}
	if err := v.closer.Close(); err != nil {
		return herr.Wrap(herr.IO, "panel.VCFSource.Close", err)
	}
	return nil
}

// parseAFInfo extracts the AF key from a VCF INFO column, reporting false
// if it is absent or unparseable.
func parseAFInfo(info string) (float64, bool) {
	for _, kv := range strings.Split(info, ";") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k != "AF" {
			continue
		}
		// A multi-allelic AF list only ever applies here to the single ALT
		// this reader supports; take the first value.
		v, _, _ = strings.Cut(v, ",")
		af, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return af, true
	}
	return 0, false
}

// parseGT interprets a VCF GT subfield, treating '/' and '|' separators
// alike since phasing does not affect genotype class.
func parseGT(gt string) Genotype {
	gt = strings.NewReplacer("|", "/").Replace(gt)
	alleles := strings.Split(gt, "/")
	if len(alleles) != 2 {
		return Missing
	}
	a, aok := parseAllele(alleles[0])
	b, bok := parseAllele(alleles[1])
	if !aok || !bok {
		return Missing
	}
	switch a + b {
	case 0:
		return HomA1
	case 1:
		return Het
	case 2:
		return HomA2
	default:
		return Missing
	}
}

func parseAllele(s string) (int, bool) {
	switch s {
	case "0":
		return 0, true
	case "1":
		return 1, true
	default:
		return 0, false
	}
}
