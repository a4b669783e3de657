// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package verify

import (
	"math"

	"github.com/statgen-go/hts/panel"
)

// Geno enumerates the three possible genotypes at a biallelic site,
// relative to its A1/A2 alleles.
type Geno int

const (
	GHomA1 Geno = iota
	GHet
	GHomA2
)

// GenotypeLikelihood holds one genotype-conditional likelihood per Geno,
// tracked two ways as bases are folded in with Observe: as a running linear
// product, and as a running sum of logs. The linear product is the cheap
// path and is what Values returns by default; past roughly 100 bases at a
// single site it can underflow to zero for every genotype alike, at which
// point Values(true) (what Options.Precise asks for) recovers a usable
// result from the log-space sum instead.
type GenotypeLikelihood struct {
	lin [3]float64
	log [3]float64
}

// NewGenotypeLikelihood returns the identity accumulator, ready to fold in
// per-base observations with Observe.
func NewGenotypeLikelihood() GenotypeLikelihood {
	return GenotypeLikelihood{lin: [3]float64{1, 1, 1}}
}

// baseProbGivenGeno returns, for one base call of error rate e against
// alleles a1/a2, the probability of that call under each of the three
// genotypes.
func baseProbGivenGeno(base, a1, a2 byte, e float64) [3]float64 {
	switch {
	case base == a1:
		return [3]float64{1 - e, 0.5 - e/3, e / 3}
	case base == a2:
		return [3]float64{e / 3, 0.5 - e/3, 1 - e}
	default:
		return [3]float64{e / 3, e / 3, e / 3}
	}
}

// Observe folds in one base call of quality qual (capped at maxQ) against
// alleles a1/a2.
func (l *GenotypeLikelihood) Observe(base, a1, a2, maxQ, qual byte) {
	if qual > maxQ {
		qual = maxQ
	}
	e := math.Pow(10, -float64(qual)/10)
	p := baseProbGivenGeno(base, a1, a2, e)
	for g := 0; g < 3; g++ {
		l.lin[g] *= p[g]
		l.log[g] += math.Log(p[g])
	}
}

// Values returns the three genotype-conditional likelihoods. With precise
// false it's the plain linear product; with precise true it instead
// exponentiates the log-space sum after subtracting its own maximum,
// trading the linear path's absolute scale for one immune to underflow.
// Every caller downstream (marginal, individualLikelihood, posteriorHet)
// only ever uses these values in likelihood ratios or as mixture weights
// alongside other values scaled the same way, so the per-site rescaling
// this normalization introduces washes out.
func (l GenotypeLikelihood) Values(precise bool) [3]float64 {
	if !precise {
		return l.lin
	}
	max := l.log[0]
	for _, v := range l.log[1:] {
		if v > max {
			max = v
		}
	}
	var out [3]float64
	for g := range out {
		out[g] = math.Exp(l.log[g] - max)
	}
	return out
}

// hwe returns the Hardy-Weinberg genotype frequencies for an A2 allele
// frequency of af.
func hwe(af float64) [3]float64 {
	return [3]float64{(1 - af) * (1 - af), 2 * af * (1 - af), af * af}
}

// marginal returns the panel-prior probability of the observed reads,
// marginalizing the genotype-conditional likelihood over Hardy-Weinberg
// genotype frequencies.
func marginal(lg [3]float64, af float64) float64 {
	w := hwe(af)
	return w[0]*lg[GHomA1] + w[1]*lg[GHet] + w[2]*lg[GHomA2]
}

// priorHet is the Hardy-Weinberg expected heterozygosity at allele
// frequency af.
func priorHet(af float64) float64 { return 2 * af * (1 - af) }

// posteriorHet is the heterozygosity implied by the observed reads: the
// Hardy-Weinberg het prior reweighted by how well the reads fit the
// heterozygous genotype relative to the panel-prior marginal.
func posteriorHet(lg [3]float64, af float64) float64 {
	m := marginal(lg, af)
	if m == 0 {
		return 0
	}
	return priorHet(af) * lg[GHet] / m
}

// genoIndex maps a panel.Genotype call onto a Geno, reporting false for a
// missing call, which carries no information about which genotype an
// individual declared.
func genoIndex(g panel.Genotype) (Geno, bool) {
	switch g {
	case panel.HomA1:
		return GHomA1, true
	case panel.Het:
		return GHet, true
	case panel.HomA2:
		return GHomA2, true
	default:
		return 0, false
	}
}

// individualLikelihood returns the probability of the observed reads given
// that the candidate individual's true genotype is declared, allowing for
// a genoError chance that the panel's declared genotype is itself wrong,
// spread evenly across the other two genotype classes.
func individualLikelihood(lg [3]float64, declared panel.Genotype, genoError float64) (float64, bool) {
	g, ok := genoIndex(declared)
	if !ok {
		return 0, false
	}
	wOther := genoError / 2
	wCorrect := 1 - genoError
	sum := lg[GHomA1] + lg[GHet] + lg[GHomA2]
	return wOther*sum + (wCorrect-wOther)*lg[g], true
}

// ibdSiteLogLikelihood is one site's contribution to the IBD grid at
// mixing fraction alpha: the log of a mixture between the candidate
// individual's declared-genotype likelihood and the panel-prior marginal.
func ibdSiteLogLikelihood(lg [3]float64, declared panel.Genotype, af, genoError, alpha float64) (float64, bool) {
	pInd, ok := individualLikelihood(lg, declared, genoError)
	if !ok {
		return 0, false
	}
	pPrior := marginal(lg, af)
	val := alpha*pInd + (1-alpha)*pPrior
	if val <= 0 {
		return math.Inf(-1), true
	}
	return math.Log(val), true
}

// IBDResult summarizes one candidate individual's scan across the IBD
// grid.
type IBDResult struct {
	Candidate  string
	NumSites   int
	BestAlpha  float64
	BestLogLik float64
	// MarginVsSelf is BestLogLik minus the log-likelihood at the grid
	// point closest to alpha=1, the point at which the candidate's
	// declared genotype alone explains the reads. A large positive margin
	// means the data are better explained by some degree of mixing with
	// the panel-wide background than by a pure match to this candidate.
	MarginVsSelf float64
}

// IBDAccumulator sums a candidate individual's per-site log-likelihood
// across the IBD grid as sites are folded in with Add.
type IBDAccumulator struct {
	candidate string
	grid      []float64
	logLik    []float64
	nSites    int
}

// NewIBDAccumulator returns an accumulator for candidate, scored at every
// mixing fraction in grid.
func NewIBDAccumulator(candidate string, grid []float64) *IBDAccumulator {
	return &IBDAccumulator{candidate: candidate, grid: grid, logLik: make([]float64, len(grid))}
}

// Add folds one site's genotype-conditional likelihood into the
// accumulator, using declared as the candidate's panel genotype at that
// site. A missing declared genotype contributes nothing. precise selects
// lg's log-space values over its linear ones; see GenotypeLikelihood.Values.
func (a *IBDAccumulator) Add(lg GenotypeLikelihood, declared panel.Genotype, af, genoError float64, precise bool) {
	vals := lg.Values(precise)
	var used bool
	for i, alpha := range a.grid {
		ll, ok := ibdSiteLogLikelihood(vals, declared, af, genoError, alpha)
		if !ok {
			continue
		}
		used = true
		a.logLik[i] += ll
	}
	if used {
		a.nSites++
	}
}

// Best returns the grid point and log-likelihood with the greatest
// log-likelihood accumulated so far.
func (a *IBDAccumulator) Best() (alpha, logLik float64) {
	best := math.Inf(-1)
	for i, ll := range a.logLik {
		if ll > best {
			best, alpha = ll, a.grid[i]
		}
	}
	return alpha, best
}

// Result summarizes the accumulator's scan.
func (a *IBDAccumulator) Result() IBDResult {
	alpha, best := a.Best()
	selfIdx := closestIndex(a.grid, 1)
	return IBDResult{
		Candidate:    a.candidate,
		NumSites:     a.nSites,
		BestAlpha:    alpha,
		BestLogLik:   best,
		MarginVsSelf: best - a.logLik[selfIdx],
	}
}

func closestIndex(grid []float64, target float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, v := range grid {
		d := math.Abs(v - target)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// hetAccumulator tracks the Hardy-Weinberg and observation-implied
// heterozygosity across every site folded in, for the ratio reported
// alongside each read group's best match.
type hetAccumulator struct {
	priorSum, posteriorSum float64
	n                      int
}

func newHetAccumulator() *hetAccumulator { return &hetAccumulator{} }

func (h *hetAccumulator) Add(lg GenotypeLikelihood, af float64, precise bool) {
	h.priorSum += priorHet(af)
	h.posteriorSum += posteriorHet(lg.Values(precise), af)
	h.n++
}

// Ratio returns the observed-to-expected heterozygosity ratio, or 1 if no
// sites contributed.
func (h *hetAccumulator) Ratio() float64 {
	if h.priorSum == 0 {
		return 1
	}
	return h.posteriorSum / h.priorSum
}

// genoDepthAccumulator tracks, for one candidate individual, pileup depth
// and allele composition partitioned by the candidate's declared genotype
// class at each site: how many sites fell in each class, how many bases
// were observed across them, and how many of those bases matched A1 (the
// reference allele, post AlignToReference) versus A2.
type genoDepthAccumulator struct {
	nSites   [3]int
	bases    [3]int
	refBases [3]int
	altBases [3]int
}

func newGenoDepthAccumulator() *genoDepthAccumulator { return &genoDepthAccumulator{} }

// Add folds one site's observed bases into the class declared's bucket. A
// missing declared genotype contributes nothing.
func (d *genoDepthAccumulator) Add(declared panel.Genotype, obs []baseObs, a1, a2 byte) {
	g, ok := genoIndex(declared)
	if !ok {
		return
	}
	d.nSites[g]++
	d.bases[g] += len(obs)
	for _, o := range obs {
		switch o.base {
		case a1:
			d.refBases[g]++
		case a2:
			d.altBases[g]++
		}
	}
}

// Snapshot returns the accumulated per-class counts, indexed by Geno.
func (d *genoDepthAccumulator) Snapshot() [3]genoClassStat {
	var out [3]genoClassStat
	for g := 0; g < 3; g++ {
		out[g] = genoClassStat{
			NumSites: d.nSites[g],
			Bases:    d.bases[g],
			RefBases: d.refBases[g],
			AltBases: d.altBases[g],
		}
	}
	return out
}

// depthAccumulator tracks mean per-site read depth.
type depthAccumulator struct {
	total, n int
}

func newDepthAccumulator() *depthAccumulator { return &depthAccumulator{} }

func (d *depthAccumulator) Add(depth int) {
	d.total += depth
	d.n++
}

func (d *depthAccumulator) Mean() float64 {
	if d.n == 0 {
		return 0
	}
	return float64(d.total) / float64(d.n)
}
