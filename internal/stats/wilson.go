package stats

import "math"

// WilsonInterval calculates the Wilson score confidence interval
// for a binomial proportion. It's more accurate for small samples
// than the normal approximation.
func WilsonInterval(successes, trials int, confidence float64) (lower, upper float64) {
	if trials == 0 {
		return 0, 0
	}

	z := zScore(confidence)
	p := float64(successes) / float64(trials)
	n := float64(trials)

	denominator := 1 + z*z/n
	center := (p + z*z/(2*n)) / denominator
	spread := (z / denominator) * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))

	lower = center - spread
	upper = center + spread

	// Clamp to [0, 1]
	if lower < 0 {
		lower = 0
	}
	if upper > 1 {
		upper = 1
	}

	return lower, upper
}

// zScore returns the z-score for a given confidence level.
// Common values:
//   - 0.90 -> 1.645
//   - 0.95 -> 1.96
//   - 0.99 -> 2.576
func zScore(confidence float64) float64 {
	switch {
	case confidence >= 0.99:
		return 2.576
	case confidence >= 0.95:
		return 1.96
	case confidence >= 0.90:
		return 1.645
	case confidence >= 0.85:
		return 1.44
	case confidence >= 0.80:
		return 1.28
	default:
		return 0.84
	}
}
