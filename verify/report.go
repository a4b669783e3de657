// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package verify

import (
	"fmt"
	"io"
	"sort"

	"github.com/kortschak/utter"
)

// genoClassStat holds raw, additive counts for one genotype class: how many
// sites fell in it, how many bases were observed across them, and how many
// of those bases matched the site's A1 (reference) or A2 allele. MeanDepth,
// RefFrac and AltFrac derive the reported rates from these counts rather
// than storing rates directly, so that rolling several read groups into one
// sample (rollupBySample) can sum counts instead of averaging averages.
type genoClassStat struct {
	NumSites int
	Bases    int
	RefBases int
	AltBases int
}

// MeanDepth returns the mean number of bases observed per site in this
// class, or 0 if no sites fell in it.
func (s genoClassStat) MeanDepth() float64 {
	if s.NumSites == 0 {
		return 0
	}
	return float64(s.Bases) / float64(s.NumSites)
}

// RefFrac returns the fraction of bases in this class that matched A1.
func (s genoClassStat) RefFrac() float64 {
	if s.Bases == 0 {
		return 0
	}
	return float64(s.RefBases) / float64(s.Bases)
}

// AltFrac returns the fraction of bases in this class that matched A2.
func (s genoClassStat) AltFrac() float64 {
	if s.Bases == 0 {
		return 0
	}
	return float64(s.AltBases) / float64(s.Bases)
}

func addGenoClassStat(a, b genoClassStat) genoClassStat {
	return genoClassStat{
		NumSites: a.NumSites + b.NumSites,
		Bases:    a.Bases + b.Bases,
		RefBases: a.RefBases + b.RefBases,
		AltBases: a.AltBases + b.AltBases,
	}
}

// RGReport is one read group's scored evidence: the best-fitting candidate
// from the whole panel and, separately, the candidate matching the read
// group's own declared sample, alongside depth and heterozygosity
// diagnostics.
type RGReport struct {
	ReadGroup string
	Sample    string

	NumSites  int
	NumBases  int
	MeanDepth float64
	HetRatio  float64 // observed heterozygosity over Hardy-Weinberg expectation.

	// GenoStats holds depth and allele-composition counts partitioned by
	// declared genotype class (indexed by Geno), keyed to whichever
	// individual the row centers on: the self-declared sample when HasSelf,
	// the best candidate otherwise (zero value under SelfOnly, which does
	// not search for a best candidate). This follows verifyBamID's own
	// .selfRG/.bestRG convention of reporting these figures against the
	// individual the row is actually about.
	GenoStats [3]genoClassStat

	Best IBDResult
	Self IBDResult // zero value if Sample has no matching panel individual.
	HasSelf bool

	Mix MixResult
}

// Report collects one RGReport per read group, plus the same figures
// rolled up per sample by merging read groups that share an SM tag.
type Report struct {
	ByReadGroup []RGReport
	BySample    []RGReport
}

func buildReport(individuals []string, byRG map[string]*rgInfo, opts Options) *Report {
	var rgReports []RGReport
	names := make([]string, 0, len(byRG))
	for rg := range byRG {
		names = append(names, rg)
	}
	sort.Strings(names)

	for _, rg := range names {
		info := byRG[rg]
		rgReports = append(rgReports, rgReportFor(rg, info, individuals, opts))
	}

	return &Report{
		ByReadGroup: rgReports,
		BySample:    rollupBySample(rgReports),
	}
}

func rgReportFor(rg string, info *rgInfo, individuals []string, opts Options) RGReport {
	r := RGReport{
		ReadGroup: rg,
		Sample:    info.sample,
		NumBases:  info.depth.total,
		MeanDepth: info.depth.Mean(),
		HetRatio:  info.het.Ratio(),
		Mix:       info.mix.Result(),
	}

	genoIdx := -1
	if !opts.SelfOnly {
		bestIdx, best := bestCandidate(info.ibd)
		r.Best = best
		r.NumSites = best.NumSites
		genoIdx = bestIdx
	}

	for i, id := range individuals {
		if id == info.sample {
			r.Self = info.ibd[i].Result()
			r.HasSelf = true
			if opts.SelfOnly {
				r.NumSites = r.Self.NumSites
			}
			genoIdx = i
			break
		}
	}
	if genoIdx >= 0 {
		r.GenoStats = info.genoDepth[genoIdx].Snapshot()
	}
	return r
}

// bestCandidate returns the index into accs (and IBDResult) of the
// candidate with the greatest accumulated log-likelihood, or -1 if accs is
// empty.
func bestCandidate(accs []*IBDAccumulator) (int, IBDResult) {
	best := -1
	var bestRes IBDResult
	for i, a := range accs {
		res := a.Result()
		if best == -1 || res.BestLogLik > bestRes.BestLogLik {
			best, bestRes = i, res
		}
	}
	return best, bestRes
}

func rollupBySample(rgReports []RGReport) []RGReport {
	bySample := make(map[string][]RGReport)
	var order []string
	for _, r := range rgReports {
		if _, ok := bySample[r.Sample]; !ok {
			order = append(order, r.Sample)
		}
		bySample[r.Sample] = append(bySample[r.Sample], r)
	}

	var out []RGReport
	for _, sample := range order {
		rows := bySample[sample]
		merged := rows[0]
		merged.ReadGroup = sample
		for _, row := range rows[1:] {
			if row.Best.BestLogLik > merged.Best.BestLogLik {
				merged.Best = row.Best
			}
			if row.HasSelf && (!merged.HasSelf || row.Self.BestLogLik > merged.Self.BestLogLik) {
				merged.Self, merged.HasSelf = row.Self, true
			}
			merged.NumSites += row.NumSites
			merged.NumBases += row.NumBases
			merged.MeanDepth = (merged.MeanDepth + row.MeanDepth) / 2
			for g := range merged.GenoStats {
				merged.GenoStats[g] = addGenoClassStat(merged.GenoStats[g], row.GenoStats[g])
			}
		}
		out = append(out, merged)
	}
	return out
}

var reportColumns = []string{
	"RG", "SM", "#SITES", "#BASES", "AVG_DP",
	"DP_HOMA1", "DP_HET", "DP_HOMA2",
	"REFFRAC_HOMA1", "ALTFRAC_HOMA1",
	"REFFRAC_HET", "ALTFRAC_HET",
	"REFFRAC_HOMA2", "ALTFRAC_HOMA2",
	"BEST_SM", "BEST_ALPHA", "BEST_LLK",
	"SELF_ALPHA", "SELF_LLK", "IBD_MARGIN", "MIX_ALPHA", "MIX_BETA",
	"MIX_MARGIN", "HET_RATIO",
}

// WriteBestRG writes the .bestRG-style table: one row per read group, with
// the best-fitting candidate individual and the IBD/mixture grid results.
func WriteBestRG(w io.Writer, report *Report) error {
	return writeTable(w, report.ByReadGroup)
}

// WriteBestSM writes the .bestSM-style table: the same figures rolled up
// per sample.
func WriteBestSM(w io.Writer, report *Report) error {
	return writeTable(w, report.BySample)
}

func writeTable(w io.Writer, rows []RGReport) error {
	if _, err := fmt.Fprintln(w, tabJoin(reportColumns)); err != nil {
		return err
	}
	for _, r := range rows {
		selfAlpha, selfLLK := 0.0, 0.0
		if r.HasSelf {
			selfAlpha, selfLLK = r.Self.BestAlpha, r.Self.BestLogLik
		}
		row := []string{
			r.ReadGroup,
			r.Sample,
			fmt.Sprintf("%d", r.NumSites),
			fmt.Sprintf("%d", r.NumBases),
			fmt.Sprintf("%.2f", r.MeanDepth),
			fmt.Sprintf("%.2f", r.GenoStats[GHomA1].MeanDepth()),
			fmt.Sprintf("%.2f", r.GenoStats[GHet].MeanDepth()),
			fmt.Sprintf("%.2f", r.GenoStats[GHomA2].MeanDepth()),
			fmt.Sprintf("%.4f", r.GenoStats[GHomA1].RefFrac()),
			fmt.Sprintf("%.4f", r.GenoStats[GHomA1].AltFrac()),
			fmt.Sprintf("%.4f", r.GenoStats[GHet].RefFrac()),
			fmt.Sprintf("%.4f", r.GenoStats[GHet].AltFrac()),
			fmt.Sprintf("%.4f", r.GenoStats[GHomA2].RefFrac()),
			fmt.Sprintf("%.4f", r.GenoStats[GHomA2].AltFrac()),
			r.Best.Candidate,
			fmt.Sprintf("%.4f", r.Best.BestAlpha),
			fmt.Sprintf("%.4f", r.Best.BestLogLik),
			fmt.Sprintf("%.4f", selfAlpha),
			fmt.Sprintf("%.4f", selfLLK),
			fmt.Sprintf("%.4f", r.Best.MarginVsSelf),
			fmt.Sprintf("%.4f", r.Mix.BestAlpha),
			fmt.Sprintf("%.4f", r.Mix.BestBeta),
			fmt.Sprintf("%.4f", r.Mix.MarginVsNull),
			fmt.Sprintf("%.4f", r.HetRatio),
		}
		if _, err := fmt.Fprintln(w, tabJoin(row)); err != nil {
			return err
		}
	}
	return nil
}

func tabJoin(fields []string) string {
	s := ""
	for i, f := range fields {
		if i > 0 {
			s += "\t"
		}
		s += f
	}
	return s
}

// DumpAccumulator writes a human-readable dump of a read group's raw IBD
// and mixture accumulators, for diagnosing a surprising result without
// re-running the whole scan.
func DumpAccumulator(w io.Writer, ibd []*IBDAccumulator, mix *MixAccumulator) {
	utter.Fdump(w, struct {
		IBD []*IBDAccumulator
		Mix *MixAccumulator
	}{ibd, mix})
}
