package util

import "math"

// SilenceDB is reported for zero-energy signals.
const SilenceDB = -200.0

func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

// DB converts a linear amplitude to decibels.
func DB(amplitude float64) float64 {
	if amplitude <= 0 {
		return SilenceDB
	}
	return 20 * math.Log10(amplitude)
}
