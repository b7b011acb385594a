package stats

import (
	"math"
	"sort"

	"github.com/splitlab/splitlab/internal/store"
)

// VariantResult contains the aggregated standing of a single variant.
// Rates are percentages rounded to two decimal places; the Wilson interval
// bounds are proportions in [0, 1] and are display-only.
type VariantResult struct {
	Variant        string  `json:"variant"`
	Users          int     `json:"users"`
	Impressions    int     `json:"impressions"`
	Conversions    int     `json:"conversions"`
	Revenue        float64 `json:"revenue"`
	Engagements    int     `json:"engagements"`
	ConversionRate float64 `json:"conversionRate"`
	AverageRevenue float64 `json:"averageRevenue"`
	CILower        float64 `json:"ciLower"`
	CIUpper        float64 `json:"ciUpper"`
}

// Significance is the outcome of the two-proportion z-test between the top
// two variants by conversion rate.
type Significance struct {
	IsSignificant   bool           `json:"isSignificant"`
	ConfidenceLevel float64        `json:"confidenceLevel"`
	Winner          *string        `json:"winner"`
	Control         *VariantResult `json:"control,omitempty"`
	Variation       *VariantResult `json:"variation,omitempty"`
	ZScore          float64        `json:"zScore"`
	Improvement     float64        `json:"improvement"`
}

// Aggregate rolls per-variant totals into result rows, one per declared
// variant in declaration order. Variants with no assignments get an
// all-zero row, never an omitted one.
func Aggregate(variants []store.Variant, totals []store.VariantTotals) []VariantResult {
	byVariant := make(map[string]store.VariantTotals, len(totals))
	for _, t := range totals {
		byVariant[t.Variant] = t
	}

	results := make([]VariantResult, len(variants))
	for i, v := range variants {
		t := byVariant[v.Name] // zero-valued if no assignments yet

		rate := 0.0
		if t.Impressions > 0 {
			rate = round2(float64(t.Conversions) / float64(t.Impressions) * 100)
		}
		avgRevenue := 0.0
		if t.Users > 0 {
			avgRevenue = round2(t.Revenue / float64(t.Users))
		}
		ciLower, ciUpper := WilsonInterval(t.Conversions, t.Impressions, 0.95)

		results[i] = VariantResult{
			Variant:        v.Name,
			Users:          t.Users,
			Impressions:    t.Impressions,
			Conversions:    t.Conversions,
			Revenue:        t.Revenue,
			Engagements:    t.Engagements,
			ConversionRate: rate,
			AverageRevenue: avgRevenue,
			CILower:        ciLower,
			CIUpper:        ciUpper,
		}
	}
	return results
}

// CalculateSignificance compares the two leading variants by conversion
// rate: the highest becomes the variation, the second-highest the control.
// The confidence level is a discrete bucket looked up from |z|, not a
// continuous CDF value.
func CalculateSignificance(results []VariantResult) Significance {
	if len(results) < 2 {
		return Significance{ConfidenceLevel: 0, Winner: nil}
	}

	sorted := make([]VariantResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ConversionRate > sorted[j].ConversionRate
	})

	variation := sorted[0]
	control := sorted[1]

	p1 := proportion(control.Conversions, control.Impressions)
	p2 := proportion(variation.Conversions, variation.Impressions)

	var z float64
	if control.Impressions > 0 && variation.Impressions > 0 {
		pooled := proportion(control.Conversions+variation.Conversions, control.Impressions+variation.Impressions)
		se := math.Sqrt(pooled * (1 - pooled) * (1/float64(control.Impressions) + 1/float64(variation.Impressions)))
		if se > 0 {
			z = (p2 - p1) / se
		}
	}

	confidenceLevel := ConfidenceBucket(math.Abs(z))
	isSignificant := confidenceLevel >= 95

	var winner *string
	if isSignificant {
		name := variation.Variant
		winner = &name
	}

	improvement := 0.0
	if p1 > 0 {
		improvement = (p2 - p1) / p1 * 100
	}

	return Significance{
		IsSignificant:   isSignificant,
		ConfidenceLevel: confidenceLevel,
		Winner:          winner,
		Control:         &control,
		Variation:       &variation,
		ZScore:          z,
		Improvement:     improvement,
	}
}

// ConfidenceBucket maps an absolute z-score to a discrete confidence level.
func ConfidenceBucket(absZ float64) float64 {
	switch {
	case absZ >= 1.96:
		return 95
	case absZ >= 1.645:
		return 90
	case absZ >= 1.28:
		return 80
	case absZ >= 0.84:
		return 60
	default:
		return 50
	}
}

// NormalCDF approximates the cumulative distribution function of the
// standard normal distribution (Abramowitz and Stegun, formula 7.1.26).
// Used for the descriptive confidence figure in CLI output only.
func NormalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt(2)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}

func proportion(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
