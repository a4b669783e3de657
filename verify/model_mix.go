// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package verify

import "math"

// bottleneckPrior returns the genotype-class prior at allele frequency af,
// adjusted by a bottleneck fraction beta that pulls mass toward the two
// homozygous classes, as a founder population passing through a narrow
// bottleneck would.
func bottleneckPrior(af, beta float64) [3]float64 {
	return [3]float64{
		(1-beta)*(1-af)*(1-af) + beta*(1-af),
		(1 - beta) * 2 * af * (1 - af),
		(1-beta)*af*af + beta*af,
	}
}

// MixResult summarizes a read group's scan across the two-source
// contamination grid.
type MixResult struct {
	NumSites    int
	BestAlpha   float64 // fraction attributed to the primary source.
	BestBeta    float64
	BestLogLik  float64
	MarginVsNull float64 // BestLogLik minus the log-likelihood at alpha=0, beta=0.
}

// MixAccumulator scores, at every (alpha, beta) grid point, how well the
// reads at each site are explained by a two-genotype mixture: a primary
// source carrying genotype g1 with weight alpha and a second source
// carrying genotype g2 with weight 1-alpha, each genotype drawn from a
// bottleneck-adjusted prior at the site's allele frequency.
type MixAccumulator struct {
	mixGrid []float64
	homGrid []float64
	logLik  [][]float64
	nSites  int
	precise bool
}

// NewMixAccumulator returns an accumulator scored over every combination of
// mixGrid and homGrid. precise forces the log-space accumulation path Add
// uses, the mode Options.Precise asks for once per-site depth makes the
// plain linear product prone to underflow.
func NewMixAccumulator(mixGrid, homGrid []float64, precise bool) *MixAccumulator {
	ll := make([][]float64, len(mixGrid))
	for i := range ll {
		ll[i] = make([]float64, len(homGrid))
	}
	return &MixAccumulator{mixGrid: mixGrid, homGrid: homGrid, logLik: ll, precise: precise}
}

// Add folds one site's base observations into the grid.
func (m *MixAccumulator) Add(obs []baseObs, a1, a2 byte, af float64) {
	if len(obs) == 0 {
		return
	}
	errs := make([]float64, len(obs))
	probs := make([][3]float64, len(obs))
	for k, o := range obs {
		errs[k] = math.Pow(10, -float64(o.qual)/10)
		probs[k] = baseProbGivenGeno(o.base, a1, a2, errs[k])
	}

	for i, alpha := range m.mixGrid {
		for j, beta := range m.homGrid {
			pi := bottleneckPrior(af, beta)
			var siteLogLik float64
			if m.precise {
				siteLogLik = m.preciseSiteLogLik(obs, probs, alpha, pi)
			} else {
				siteLogLik = linearSiteLogLik(obs, probs, alpha, pi)
			}
			m.logLik[i][j] += siteLogLik
		}
	}
	m.nSites++
}

// linearSiteLogLik computes one site's log-likelihood contribution by
// multiplying per-base mixture probabilities in linear space across every
// (g1, g2) genotype pair and summing the nine weighted products before
// taking a single log. Past roughly 100 bases the per-pair product can
// underflow to zero for every pair alike, which is what precise mode
// (preciseSiteLogLik) avoids.
func linearSiteLogLik(obs []baseObs, probs [][3]float64, alpha float64, pi [3]float64) float64 {
	var sum float64
	for g1 := 0; g1 < 3; g1++ {
		for g2 := 0; g2 < 3; g2++ {
			lik := 1.0
			for k := range obs {
				lik *= alpha*probs[k][g1] + (1-alpha)*probs[k][g2]
			}
			sum += lik * pi[g1] * pi[g2]
		}
	}
	if sum <= 0 {
		return math.Inf(-1)
	}
	return math.Log(sum)
}

// preciseSiteLogLik computes the same quantity as linearSiteLogLik without
// ever multiplying per-base probabilities together: each (g1, g2) pair's
// per-base terms are summed as logs, and the nine resulting log-weighted
// pair likelihoods are combined with a log-sum-exp, so no intermediate
// value needs to leave log space until the final result.
func (m *MixAccumulator) preciseSiteLogLik(obs []baseObs, probs [][3]float64, alpha float64, pi [3]float64) float64 {
	var terms [9]float64
	n := 0
	for g1 := 0; g1 < 3; g1++ {
		for g2 := 0; g2 < 3; g2++ {
			logLik := math.Log(pi[g1]) + math.Log(pi[g2])
			for k := range obs {
				term := alpha*probs[k][g1] + (1-alpha)*probs[k][g2]
				if term <= 0 {
					logLik = math.Inf(-1)
					break
				}
				logLik += math.Log(term)
			}
			terms[n] = logLik
			n++
		}
	}
	return logSumExp(terms[:])
}

// logSumExp returns log(sum(exp(xs))), computed by subtracting the running
// maximum before exponentiating so that the only values ever exponentiated
// lie in (0, 1].
func logSumExp(xs []float64) float64 {
	max := math.Inf(-1)
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

// Best returns the grid point with the greatest accumulated log-likelihood.
func (m *MixAccumulator) Best() (alpha, beta, logLik float64) {
	best := math.Inf(-1)
	for i, a := range m.mixGrid {
		for j, b := range m.homGrid {
			if m.logLik[i][j] > best {
				best, alpha, beta = m.logLik[i][j], a, b
			}
		}
	}
	return alpha, beta, best
}

// Result summarizes the accumulator's scan.
func (m *MixAccumulator) Result() MixResult {
	alpha, beta, best := m.Best()
	i0, j0 := closestIndex(m.mixGrid, 0), closestIndex(m.homGrid, 0)
	return MixResult{
		NumSites:     m.nSites,
		BestAlpha:    alpha,
		BestBeta:     beta,
		BestLogLik:   best,
		MarginVsNull: best - m.logLik[i0][j0],
	}
}
