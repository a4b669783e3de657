// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package panel models a genotype reference panel read from either a
// PLINK-style binary trio or a VCF text file, normalized to a common
// per-site, per-individual genotype stream for the verifier core to
// consume.
package panel

// Genotype is a per-individual call at a panel site, relative to the
// site's A1/A2 alleles.
type Genotype byte

const (
	HomA1 Genotype = iota
	Missing
	Het
	HomA2
)

// String returns a short label for g, matching the packed-matrix encoding
// order (00, 01, 10, 11).
func (g Genotype) String() string {
	switch g {
	case HomA1:
		return "hom-a1"
	case Missing:
		return "missing"
	case Het:
		return "het"
	case HomA2:
		return "hom-a2"
	default:
		return "invalid"
	}
}

// Site describes one reference panel marker.
type Site struct {
	Chrom string
	Pos   int // 1-based, matching VCF/PLINK convention.
	ID    string
	A1    byte
	A2    byte
	AF    float64 // allele frequency of A2.
}

// SiteGenotypes pairs a Site with one genotype call per individual, in the
// order a Source's Individuals method returns them.
type SiteGenotypes struct {
	Site
	Genotypes []Genotype
}

// Source streams panel sites one at a time.
type Source interface {
	// Individuals returns the panel's individual identifiers, in the order
	// Genotypes slices from Next are indexed.
	Individuals() []string
	// Next returns the next site, or a herr.NoMoreRecs error once the
	// source is exhausted.
	Next() (*SiteGenotypes, error)
	Close() error
}

// ReferenceProvider resolves a base at a chromosome/position, the minimal
// interface AlignToReference needs; sam.ReferenceProvider and
// fai.RefProvider both satisfy a position-based variant of this, but panel
// keys by chromosome name rather than header reference ID, so callers
// adapt with a small closure.
type ReferenceProvider func(chrom string, pos int) byte

// AlignToReference enforces the panel's reference-allele invariant: if the
// reference base at sg's site equals A2, the site's alleles and every
// genotype call are flipped so that A1 becomes the reference allele. It
// reports false, leaving sg untouched, when the reference base matches
// neither allele.
func AlignToReference(sg *SiteGenotypes, ref ReferenceProvider) bool {
	base := upper(ref(sg.Chrom, sg.Pos))
	a1, a2 := upper(sg.A1), upper(sg.A2)
	switch base {
	case a1:
		return true
	case a2:
		sg.A1, sg.A2 = sg.A2, sg.A1
		sg.AF = 1 - sg.AF
		for i, g := range sg.Genotypes {
			switch g {
			case HomA1:
				sg.Genotypes[i] = HomA2
			case HomA2:
				sg.Genotypes[i] = HomA1
			}
		}
		return true
	default:
		return false
	}
}

func upper(b byte) byte {
	if 'a' <= b && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
