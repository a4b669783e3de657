// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package panel

import (
	"strings"
	"testing"

	"github.com/statgen-go/hts/herr"
)

const vcfFixture = `##fileformat=VCFv4.2
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	s1	s2	s3
chr1	100	rs1	A	G	.	.	AF=0.25	GT	0/0	0/1	1/1
chr1	200	rs2	C	T	.	.	.	GT	./.	0|1	1|1
`

func TestVCFSourceParsesGenotypesAndAF(t *testing.T) {
	src, err := OpenVCF(strings.NewReader(vcfFixture), WithMissingAF(0.005))
	if err != nil {
		t.Fatalf("OpenVCF: %v", err)
	}
	defer src.Close()

	if got, want := src.Individuals(), []string{"s1", "s2", "s3"}; !equalStrings(got, want) {
		t.Fatalf("Individuals = %v, want %v", got, want)
	}

	site1, err := src.Next()
	if err != nil {
		t.Fatalf("Next (site 1): %v", err)
	}
	if site1.AF != 0.25 {
		t.Errorf("site1.AF = %v, want 0.25", site1.AF)
	}
	wantG1 := []Genotype{HomA1, Het, HomA2}
	if !equalGenotypes(site1.Genotypes, wantG1) {
		t.Errorf("site1.Genotypes = %v, want %v", site1.Genotypes, wantG1)
	}

	site2, err := src.Next()
	if err != nil {
		t.Fatalf("Next (site 2): %v", err)
	}
	if site2.AF != 0.005 {
		t.Errorf("site2.AF (missing, defaulted) = %v, want 0.005", site2.AF)
	}
	wantG2 := []Genotype{Missing, Het, HomA2}
	if !equalGenotypes(site2.Genotypes, wantG2) {
		t.Errorf("site2.Genotypes = %v, want %v", site2.Genotypes, wantG2)
	}

	_, err = src.Next()
	if !herr.IsEOF(err) {
		t.Errorf("Next at end of stream: err = %v, want NoMoreRecs", err)
	}
}

func TestAlignToReferenceFlipsOnA2Match(t *testing.T) {
	sg := &SiteGenotypes{
		Site:      Site{Chrom: "chr1", Pos: 100, A1: 'A', A2: 'G', AF: 0.3},
		Genotypes: []Genotype{HomA1, Het, HomA2, Missing},
	}
	ok := AlignToReference(sg, func(string, int) byte { return 'G' })
	if !ok {
		t.Fatal("AlignToReference returned false for a matching A2")
	}
	if sg.A1 != 'G' || sg.A2 != 'A' {
		t.Errorf("alleles after flip = (%c,%c), want (G,A)", sg.A1, sg.A2)
	}
	want := []Genotype{HomA2, Het, HomA1, Missing}
	if !equalGenotypes(sg.Genotypes, want) {
		t.Errorf("genotypes after flip = %v, want %v", sg.Genotypes, want)
	}
	if sg.AF != 0.7 {
		t.Errorf("AF after flip = %v, want 0.7 (flip must invert the A2 frequency)", sg.AF)
	}
}

func TestAlignToReferenceRejectsMismatch(t *testing.T) {
	sg := &SiteGenotypes{Site: Site{A1: 'A', A2: 'G'}}
	if AlignToReference(sg, func(string, int) byte { return 'C' }) {
		t.Error("AlignToReference should return false when the reference matches neither allele")
	}
}

func TestPanelBuffersRecentSites(t *testing.T) {
	src, err := OpenVCF(strings.NewReader(vcfFixture))
	if err != nil {
		t.Fatalf("OpenVCF: %v", err)
	}
	p := NewPanel(src, 1)

	if _, err := p.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := p.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}

	recent := p.Recent()
	if len(recent) != 1 {
		t.Fatalf("len(Recent()) = %d, want 1 (bounded buffer)", len(recent))
	}
	if recent[0].Pos != 200 {
		t.Errorf("buffered site Pos = %d, want 200 (most recent)", recent[0].Pos)
	}
	if !equalGenotypes(recent[0].Genotypes, []Genotype{Missing, Het, HomA2}) {
		t.Errorf("buffered genotypes round-tripped wrong: %v", recent[0].Genotypes)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalGenotypes(a, b []Genotype) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
