package trend

import "math"

// computeMean calculates arithmetic mean of values.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// coefficientOfVariation returns stddev / mean, or 0 when the mean is zero.
func coefficientOfVariation(values []float64) float64 {
	mean := computeMean(values)
	if mean == 0 {
		return 0
	}
	return computeStddev(values, mean) / mean
}

// round2 rounds to two decimal places for report-facing percentages.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
