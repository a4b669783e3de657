// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package verify estimates sample-swap and contamination risk for a
// sequenced sample by comparing pileups at a panel of common variant sites
// against each panel individual's declared genotype, in the style of
// verifyBamID: for every read group, it scores how well the observed bases
// fit a single declared genotype (the identity-by-descent, or IBD, model)
// versus how well they fit a two-source mixture (the contamination model),
// and reports the best-fitting candidate individual alongside the sample's
// self-declared one.
package verify

import (
	"github.com/statgen-go/hts/herr"
	"github.com/statgen-go/hts/htsfile"
	"github.com/statgen-go/hts/panel"
	"github.com/statgen-go/hts/sam"
)

// Options configures a Verifier. The defaults mirror the thresholds an
// out-of-scope command-line driver would expose as flags, so a caller
// wiring up such a driver need only translate flags into an Options value.
type Options struct {
	// MinQ is the minimum base quality a pileup base must carry to be used.
	MinQ byte
	// MaxQ caps the base quality used in the likelihood model, independent
	// of what the read reports, since very high reported qualities are
	// rarely well calibrated.
	MaxQ byte
	// MinMapQ is the minimum mapping quality a read must carry.
	MinMapQ byte
	// MaxDepth caps the number of bases considered per site per read
	// group; reads beyond the cap are ignored, not sampled.
	MaxDepth int
	// GenotypeError is the assumed rate at which a panel-declared genotype
	// is itself wrong, spread across the two other genotype classes.
	GenotypeError float64
	// MinAF excludes sites whose allele frequency falls outside
	// [MinAF, 1-MinAF], where the genotype classes carry too little
	// information to discriminate individuals.
	MinAF float64
	// IBDGrid is the set of mixing fractions alpha swept when scoring a
	// candidate individual against a single declared genotype.
	IBDGrid []float64
	// MixGrid is the set of two-source mixing fractions swept when scoring
	// contamination.
	MixGrid []float64
	// HomGrid is the set of genotype-prior bottleneck fractions swept
	// alongside MixGrid.
	HomGrid []float64
	// SelfOnly restricts reporting to the sample's self-declared identity,
	// skipping the best-candidate search across the whole panel.
	SelfOnly bool
	// Precise forces log-space genotype-likelihood accumulation, the mode
	// required once per-site depth exceeds roughly 100 reads to avoid
	// underflow in the plain linear accumulator.
	Precise bool
	// RequireFlags must all be set on a record for it to be used.
	RequireFlags sam.Flags
	// ExcludeFlags must all be clear on a record for it to be used.
	ExcludeFlags sam.Flags
}

// Option configures an Options value.
type Option func(*Options)

// WithMinQ sets the minimum usable base quality.
func WithMinQ(q byte) Option { return func(o *Options) { o.MinQ = q } }

// WithMaxQ sets the base quality cap.
func WithMaxQ(q byte) Option { return func(o *Options) { o.MaxQ = q } }

// WithMinMapQ sets the minimum usable mapping quality.
func WithMinMapQ(q byte) Option { return func(o *Options) { o.MinMapQ = q } }

// WithMaxDepth caps the number of bases considered per site per read group.
func WithMaxDepth(n int) Option { return func(o *Options) { o.MaxDepth = n } }

// WithGenotypeError sets the assumed panel genotype error rate.
func WithGenotypeError(e float64) Option { return func(o *Options) { o.GenotypeError = e } }

// WithMinAF sets the allele-frequency exclusion band.
func WithMinAF(af float64) Option { return func(o *Options) { o.MinAF = af } }

// WithIBDUnit sets the IBD-grid step size, producing a grid of
// 0, unit, 2*unit, ..., 1.
func WithIBDUnit(unit float64) Option { return func(o *Options) { o.IBDGrid = unitGrid(unit) } }

// WithMixUnit sets the mixing-fraction grid step size.
func WithMixUnit(unit float64) Option { return func(o *Options) { o.MixGrid = unitGrid(unit) } }

// WithHomUnit sets the bottleneck-fraction grid step size.
func WithHomUnit(unit float64) Option { return func(o *Options) { o.HomGrid = unitGrid(unit) } }

// WithSelfOnly restricts reporting to the self-declared identity.
func WithSelfOnly() Option { return func(o *Options) { o.SelfOnly = true } }

// WithPrecise forces log-space genotype-likelihood accumulation.
func WithPrecise() Option { return func(o *Options) { o.Precise = true } }

// WithFlagMask requires every flag in require and excludes every flag in
// exclude.
func WithFlagMask(require, exclude sam.Flags) Option {
	return func(o *Options) { o.RequireFlags, o.ExcludeFlags = require, exclude }
}

func unitGrid(unit float64) []float64 {
	if unit <= 0 || unit > 1 {
		unit = 0.01
	}
	n := int(1/unit+0.5) + 1
	grid := make([]float64, n)
	for i := range grid {
		grid[i] = float64(i) * unit
	}
	grid[n-1] = 1
	return grid
}

func defaultOptions() Options {
	return Options{
		MinQ:          20,
		MaxQ:          40,
		MinMapQ:       10,
		MaxDepth:      20,
		GenotypeError: 5e-3,
		MinAF:         5e-3,
		IBDGrid:       unitGrid(0.01),
		MixGrid:       unitGrid(0.01),
		HomGrid:       unitGrid(0.01),
	}
}

// Verifier scores a sequenced sample's pileups at a panel of sites against
// each panel individual's declared genotype.
type Verifier struct {
	file  *htsfile.File
	panel panel.Source
	refFn panel.ReferenceProvider
	opts  Options
}

// New returns a Verifier reading pileups from file and sites from src. refFn
// may be nil if the panel's alleles are already oriented to the reference
// strand; otherwise it is used to enforce that orientation before each site
// is scored.
func New(file *htsfile.File, src panel.Source, refFn panel.ReferenceProvider, opts ...Option) *Verifier {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Verifier{file: file, panel: src, refFn: refFn, opts: o}
}

// rgInfo accumulates one read group's evidence across every scored site.
type rgInfo struct {
	sample    string
	ibd       []*IBDAccumulator
	genoDepth []*genoDepthAccumulator
	mix       *MixAccumulator
	het       *hetAccumulator
	depth     *depthAccumulator
}

// Run streams every site from the panel, pileup up reads over it, and folds
// the observed bases into the IBD and mixture models for every read group
// encountered. It returns once the panel is exhausted.
func (v *Verifier) Run() (*Report, error) {
	individuals := v.panel.Individuals()
	rgSample := rgSampleMap(v.file.Header())

	byRG := make(map[string]*rgInfo)

	for {
		sg, err := v.panel.Next()
		if herr.IsEOF(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		if sg.AF < v.opts.MinAF || sg.AF > 1-v.opts.MinAF {
			continue
		}
		if v.refFn != nil && !panel.AlignToReference(sg, v.refFn) {
			continue
		}

		obsByRG, err := v.pileup(sg)
		if err != nil {
			return nil, err
		}

		for rg, obs := range obsByRG {
			if v.opts.MaxDepth > 0 && len(obs) > v.opts.MaxDepth {
				obs = obs[:v.opts.MaxDepth]
			}
			info, ok := byRG[rg]
			if !ok {
				info = &rgInfo{
					sample:    rgSample[rg],
					ibd:       make([]*IBDAccumulator, len(individuals)),
					genoDepth: make([]*genoDepthAccumulator, len(individuals)),
					mix:       NewMixAccumulator(v.opts.MixGrid, v.opts.HomGrid, v.opts.Precise),
					het:       newHetAccumulator(),
					depth:     newDepthAccumulator(),
				}
				for i, id := range individuals {
					info.ibd[i] = NewIBDAccumulator(id, v.opts.IBDGrid)
					info.genoDepth[i] = newGenoDepthAccumulator()
				}
				byRG[rg] = info
			}

			lg := NewGenotypeLikelihood()
			for _, o := range obs {
				lg.Observe(o.base, sg.A1, sg.A2, v.opts.MaxQ, o.qual)
			}
			for i := range individuals {
				info.ibd[i].Add(lg, sg.Genotypes[i], sg.AF, v.opts.GenotypeError, v.opts.Precise)
				info.genoDepth[i].Add(sg.Genotypes[i], obs, sg.A1, sg.A2)
			}
			info.mix.Add(obs, sg.A1, sg.A2, sg.AF)
			info.het.Add(lg, sg.AF, v.opts.Precise)
			info.depth.Add(len(obs))
		}
	}

	return buildReport(individuals, byRG, v.opts), nil
}

// baseObs is one base call folded into a site's accumulators.
type baseObs struct {
	base byte
	qual byte
}

// pileup reads every record overlapping sg's position, filters it per the
// Verifier's quality and flag thresholds, and returns the usable base calls
// grouped by read group name.
func (v *Verifier) pileup(sg *panel.SiteGenotypes) (map[string][]baseObs, error) {
	if err := v.file.SetReadSection(sg.Chrom, sg.Pos-1, sg.Pos); err != nil {
		// An unknown chromosome or absent index is not fatal to the scan
		// as a whole; the site simply contributes no evidence.
		return nil, nil
	}
	defer v.file.ClearReadSection()

	obs := make(map[string][]baseObs)
	for {
		rec, err := v.file.Read()
		if herr.IsEOF(err) {
			break
		}
		if err != nil {
			if e, ok := err.(*herr.Error); ok && recoverable(e.Kind()) {
				continue
			}
			return nil, err
		}
		if rec == nil {
			continue
		}
		if rec.MapQ < v.opts.MinMapQ {
			continue
		}
		if rec.Flags&v.opts.RequireFlags != v.opts.RequireFlags {
			continue
		}
		if rec.Flags&v.opts.ExcludeFlags != 0 {
			continue
		}
		base, qual, ok := baseAt(rec, sg.Pos)
		if !ok || base == 'N' {
			continue
		}
		if qual < v.opts.MinQ {
			continue
		}
		rg := readGroupOf(rec)
		obs[rg] = append(obs[rg], baseObs{base: base, qual: qual})
	}
	return obs, nil
}

func recoverable(k herr.Kind) bool {
	switch k {
	case herr.Parse, herr.InvalidSort, herr.Invalid:
		return true
	default:
		return false
	}
}

// baseAt returns the base and quality a record contributes at the 1-based
// genomic position pos, translating through the record's CIGAR.
func baseAt(rec *sam.Record, pos int) (base, qual byte, ok bool) {
	if rec.Ref == nil || rec.Pos < 0 {
		return 0, 0, false
	}
	refOffset := pos - 1 - rec.Pos
	qi := rec.Cigar.Index().QueryIndex(refOffset)
	if qi < 0 || qi >= rec.Seq.Length {
		return 0, 0, false
	}
	base = rec.Seq.At(qi)
	if qi < len(rec.Qual) {
		qual = rec.Qual[qi]
	}
	return base, qual, true
}

var rgTag = sam.NewTag("RG")

func readGroupOf(rec *sam.Record) string {
	if aux := rec.AuxFields.Get(rgTag); aux != nil {
		if s, ok := aux.Value().(string); ok {
			return s
		}
	}
	return ""
}

func rgSampleMap(h *sam.Header) map[string]string {
	m := make(map[string]string)
	for _, rg := range h.RGs() {
		m[rg.Name()] = rg.Get(sam.NewTag("SM"))
	}
	return m
}
