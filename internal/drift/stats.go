// Package drift monitors the input distribution of each modelled tag and
// flags shifts between a long reference window and a recent current window.
// Three complementary measures run per check: the population stability
// index, a two-sample Kolmogorov-Smirnov test, and the Jensen-Shannon
// distance; the reported severity is the worst of the three.
package drift

import (
	"math"
	"sort"
)

// Severity levels ordered from least to most severe. They match the
// severity names used in notification and drift alert configuration.
const (
	SeverityNone     = "none"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// histogramBins is the bin count used for the binned measures.
const histogramBins = 10

// psiEpsilon floors bin fractions so empty bins cannot produce log(0).
const psiEpsilon = 1e-10

// Severity boundaries per measure, in ascending severity order
// {low, medium, high, critical}. PSI and JS grow with drift; the KS p-value
// shrinks with drift, so its classification runs on the inverse scale.
var (
	psiBounds = [4]float64{0.1, 0.2, 0.25, 0.3}
	ksBounds  = [4]float64{0.1, 0.05, 0.01, 0.001}
	jsBounds  = [4]float64{0.1, 0.2, 0.3, 0.4}
)

// classify maps a drift measure to a severity where larger means more drift.
func classify(value float64, bounds [4]float64) string {
	switch {
	case value < bounds[0]:
		return SeverityNone
	case value < bounds[1]:
		return SeverityLow
	case value < bounds[2]:
		return SeverityMedium
	case value < bounds[3]:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// classifyInverse maps a p-value to a severity, smaller meaning more drift.
func classifyInverse(value float64, bounds [4]float64) string {
	switch {
	case value > bounds[0]:
		return SeverityNone
	case value > bounds[1]:
		return SeverityLow
	case value > bounds[2]:
		return SeverityMedium
	case value > bounds[3]:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// worst returns the most severe of the given severities.
func worst(severities ...string) string {
	rank := map[string]int{
		SeverityNone:     0,
		SeverityLow:      1,
		SeverityMedium:   2,
		SeverityHigh:     3,
		SeverityCritical: 4,
	}
	result := SeverityNone
	for _, s := range severities {
		if rank[s] > rank[result] {
			result = s
		}
	}
	return result
}

// span is a histogram value range.
type span struct {
	lo, hi float64
}

// rangeOf returns the data's min/max span, widened for degenerate constant
// data so every value still lands in a bin.
func rangeOf(data []float64) span {
	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	return span{lo: lo, hi: hi}
}

// histogram counts data into bins equal-width bins over r. Values outside
// the span are excluded; the right edge of the last bin is inclusive.
func histogram(data []float64, r span, bins int) []int {
	counts := make([]int, bins)
	width := (r.hi - r.lo) / float64(bins)
	for _, v := range data {
		if v < r.lo || v > r.hi {
			continue
		}
		idx := int((v - r.lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	return counts
}

// PSI computes the population stability index between a reference and a
// current sample, binned over the reference's value range. Values below 0.1
// indicate a stable distribution; above 0.25 a significant shift.
func PSI(reference, current []float64) (float64, string) {
	r := rangeOf(reference)
	refHist := histogram(reference, r, histogramBins)
	curHist := histogram(current, r, histogramBins)

	psi := 0.0
	for i := range refHist {
		refPct := math.Max(float64(refHist[i])/float64(len(reference)), psiEpsilon)
		curPct := math.Max(float64(curHist[i])/float64(len(current)), psiEpsilon)
		psi += (curPct - refPct) * math.Log(curPct/refPct)
	}
	return psi, classify(psi, psiBounds)
}

// KSTest runs the two-sample Kolmogorov-Smirnov test and returns the
// statistic, the asymptotic two-sided p-value, and the drift severity the
// p-value maps to.
func KSTest(reference, current []float64) (statistic, pValue float64, severity string) {
	statistic = ksStatistic(reference, current)

	en := math.Sqrt(float64(len(reference)) * float64(len(current)) /
		float64(len(reference)+len(current)))
	lambda := (en + 0.12 + 0.11/en) * statistic
	pValue = kolmogorovQ(lambda)

	return statistic, pValue, classifyInverse(pValue, ksBounds)
}

// ksStatistic returns the maximum distance between the two empirical CDFs.
func ksStatistic(a, b []float64) float64 {
	sa := append([]float64(nil), a...)
	sb := append([]float64(nil), b...)
	sort.Float64s(sa)
	sort.Float64s(sb)

	na, nb := float64(len(sa)), float64(len(sb))
	var d float64
	i, j := 0, 0
	for i < len(sa) && j < len(sb) {
		x := math.Min(sa[i], sb[j])
		for i < len(sa) && sa[i] <= x {
			i++
		}
		for j < len(sb) && sb[j] <= x {
			j++
		}
		if diff := math.Abs(float64(i)/na - float64(j)/nb); diff > d {
			d = diff
		}
	}
	return d
}

// kolmogorovQ evaluates the asymptotic Kolmogorov survival function
// Q(lambda) = 2 * sum_{j>=1} (-1)^(j-1) * exp(-2 j^2 lambda^2).
func kolmogorovQ(lambda float64) float64 {
	const (
		eps1     = 0.001
		eps2     = 1e-8
		maxTerms = 100
	)

	a2 := -2 * lambda * lambda
	fac := 2.0
	sum := 0.0
	termbf := 0.0
	for j := 1; j <= maxTerms; j++ {
		term := fac * math.Exp(a2*float64(j*j))
		sum += term
		if math.Abs(term) <= eps1*termbf || math.Abs(term) <= eps2*sum {
			return math.Min(math.Max(sum, 0), 1)
		}
		fac = -fac
		termbf = math.Abs(term)
	}
	// the series only fails to converge for tiny lambda, where the
	// distributions are effectively indistinguishable
	return 1.0
}

// JSDistance computes the Jensen-Shannon distance (the square root of the
// base-2 JS divergence) between the two samples, binned over their combined
// value range. The result lies in [0, 1].
func JSDistance(reference, current []float64) (float64, string) {
	combined := make([]float64, 0, len(reference)+len(current))
	combined = append(combined, reference...)
	combined = append(combined, current...)
	r := rangeOf(combined)

	p := normalize(histogram(reference, r, histogramBins))
	q := normalize(histogram(current, r, histogramBins))

	js := 0.0
	for i := range p {
		m := (p[i] + q[i]) / 2
		js += klTerm(p[i], m)/2 + klTerm(q[i], m)/2
	}
	dist := math.Sqrt(math.Max(js, 0))
	if dist > 1 {
		dist = 1
	}
	return dist, classify(dist, jsBounds)
}

// normalize converts bin counts to probabilities.
func normalize(counts []int) []float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	probs := make([]float64, len(counts))
	if total == 0 {
		return probs
	}
	for i, c := range counts {
		probs[i] = float64(c) / float64(total)
	}
	return probs
}

// klTerm is one summand of the base-2 KL divergence; zero probability mass
// contributes nothing.
func klTerm(p, m float64) float64 {
	if p == 0 || m == 0 {
		return 0
	}
	return p * math.Log2(p/m)
}
