package stats_test

import (
	"testing"

	"github.com/splitlab/splitlab/internal/stats"
	"github.com/splitlab/splitlab/internal/store"
)

func variantsAB() []store.Variant {
	return []store.Variant{
		{Name: "A", TrafficAllocation: 50},
		{Name: "B", TrafficAllocation: 50},
	}
}

func TestCalculateSignificance_ClearWinner(t *testing.T) {
	// Control at 10% (100/1000), variation at 13% (130/1000) gives z just
	// above 1.96, so the 95 bucket.
	results := stats.Aggregate(variantsAB(), []store.VariantTotals{
		{Variant: "A", Users: 1000, Impressions: 1000, Conversions: 100},
		{Variant: "B", Users: 1000, Impressions: 1000, Conversions: 130},
	})

	sig := stats.CalculateSignificance(results)

	if sig.ZScore < 1.96 {
		t.Errorf("expected z above 1.96, got %f", sig.ZScore)
	}
	if sig.ConfidenceLevel != 95 {
		t.Errorf("expected confidence level 95, got %f", sig.ConfidenceLevel)
	}
	if !sig.IsSignificant {
		t.Error("expected significant result")
	}
	if sig.Winner == nil || *sig.Winner != "B" {
		t.Errorf("expected winner B, got %v", sig.Winner)
	}
	if sig.Control.Variant != "A" || sig.Variation.Variant != "B" {
		t.Errorf("expected control A / variation B, got %s / %s", sig.Control.Variant, sig.Variation.Variant)
	}
	if sig.Improvement < 29.9 || sig.Improvement > 30.1 {
		t.Errorf("expected improvement ~30%%, got %f", sig.Improvement)
	}
}

func TestCalculateSignificance_EqualRates(t *testing.T) {
	results := stats.Aggregate(variantsAB(), []store.VariantTotals{
		{Variant: "A", Users: 1000, Impressions: 1000, Conversions: 50},
		{Variant: "B", Users: 1000, Impressions: 1000, Conversions: 50},
	})

	sig := stats.CalculateSignificance(results)

	if sig.IsSignificant {
		t.Error("expected no significance for equal rates")
	}
	if sig.ConfidenceLevel != 50 {
		t.Errorf("expected confidence level 50 for z=0, got %f", sig.ConfidenceLevel)
	}
	if sig.Winner != nil {
		t.Errorf("expected no winner, got %v", *sig.Winner)
	}
}

func TestCalculateSignificance_FewerThanTwoVariants(t *testing.T) {
	results := stats.Aggregate([]store.Variant{{Name: "A", TrafficAllocation: 100}}, nil)

	sig := stats.CalculateSignificance(results)

	if sig.IsSignificant || sig.ConfidenceLevel != 0 || sig.Winner != nil {
		t.Errorf("expected empty verdict for single variant, got %+v", sig)
	}
	if sig.Control != nil || sig.Variation != nil {
		t.Error("expected no control/variation for single variant")
	}
}

func TestCalculateSignificance_NoData(t *testing.T) {
	results := stats.Aggregate(variantsAB(), nil)

	sig := stats.CalculateSignificance(results)

	if sig.ZScore != 0 {
		t.Errorf("expected z=0 with no impressions, got %f", sig.ZScore)
	}
	if sig.IsSignificant {
		t.Error("expected no significance with no data")
	}
}

func TestConfidenceBucket(t *testing.T) {
	cases := []struct {
		z    float64
		want float64
	}{
		{2.5, 95},
		{1.96, 95},
		{1.7, 90},
		{1.645, 90},
		{1.3, 80},
		{1.28, 80},
		{0.9, 60},
		{0.84, 60},
		{0.5, 50},
		{0, 50},
	}
	for _, c := range cases {
		if got := stats.ConfidenceBucket(c.z); got != c.want {
			t.Errorf("ConfidenceBucket(%f) = %f, want %f", c.z, got, c.want)
		}
	}
}

func TestAggregate_ZeroImpressionsIsZeroRate(t *testing.T) {
	results := stats.Aggregate(variantsAB(), []store.VariantTotals{
		{Variant: "A", Users: 3, Impressions: 0, Conversions: 0},
	})

	// Zero impressions must give rate 0, not NaN.
	if results[0].ConversionRate != 0 {
		t.Errorf("expected conversion rate 0, got %f", results[0].ConversionRate)
	}
	if results[1].ConversionRate != 0 {
		t.Errorf("expected conversion rate 0 for missing totals, got %f", results[1].ConversionRate)
	}
}

func TestAggregate_AllVariantsPresent(t *testing.T) {
	// Variants with no assignments get an all-zero row, not an omitted one.
	results := stats.Aggregate(variantsAB(), []store.VariantTotals{
		{Variant: "B", Users: 2, Impressions: 10, Conversions: 3, Revenue: 25, Engagements: 4},
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(results))
	}
	if results[0].Variant != "A" || results[0].Users != 0 || results[0].Impressions != 0 {
		t.Errorf("expected zero row for A, got %+v", results[0])
	}
	if results[1].ConversionRate != 30 {
		t.Errorf("expected rate 30 for B, got %f", results[1].ConversionRate)
	}
	if results[1].AverageRevenue != 12.5 {
		t.Errorf("expected average revenue 12.5 for B, got %f", results[1].AverageRevenue)
	}
}

func TestAggregate_Rounding(t *testing.T) {
	results := stats.Aggregate(variantsAB(), []store.VariantTotals{
		{Variant: "A", Users: 3, Impressions: 3, Conversions: 1, Revenue: 10},
	})

	if results[0].ConversionRate != 33.33 {
		t.Errorf("expected rate rounded to 33.33, got %f", results[0].ConversionRate)
	}
	if results[0].AverageRevenue != 3.33 {
		t.Errorf("expected average revenue rounded to 3.33, got %f", results[0].AverageRevenue)
	}
}
