package fir

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidBand = errors.New("invalid filter band")

// ValidateBand checks the parameters of a filter design. Pass a zero low or
// high edge for one-sided (lowpass/highpass) designs.
func ValidateBand(sampleRate, low, high, transitionWidth float64) error {
	nyquist := sampleRate / 2
	switch {
	case sampleRate <= 0:
		return fmt.Errorf("sample rate %v: %w", sampleRate, ErrInvalidBand)
	case transitionWidth <= 0:
		return fmt.Errorf("transition width %v: %w", transitionWidth, ErrInvalidBand)
	case low < 0 || high < 0:
		return fmt.Errorf("negative cutoff %v/%v: %w", low, high, ErrInvalidBand)
	case low >= nyquist || high >= nyquist:
		return fmt.Errorf("cutoff %v/%v at or above nyquist %v: %w", low, high, nyquist, ErrInvalidBand)
	case low > 0 && high > 0 && low >= high:
		return fmt.Errorf("low cutoff %v >= high cutoff %v: %w", low, high, ErrInvalidBand)
	}
	return nil
}

func computeNTaps(sampleRate float64, transitionWidth float64, winType WindowType) int {
	maxAttenuation := windowMaxAttenuation[winType]
	ntaps := int(float64(maxAttenuation) * sampleRate / (22.0 * transitionWidth))
	ntaps |= 1

	return ntaps
}

// design windows the ideal impulse response and scales the taps so the
// response at refOmega (radians/sample) equals gain.
func design(gain, sampleRate, transitionWidth float64, winType WindowType, ideal func(i int) float64, refOmega float64) []float32 {
	nTaps := computeNTaps(sampleRate, transitionWidth, winType)
	w := windowFuncs[winType](nTaps)
	M := (nTaps - 1) / 2

	taps := make([]float64, nTaps)
	for i := -M; i <= M; i++ {
		taps[i+M] = ideal(i) * float64(w[i+M])
	}

	resp := taps[M]
	for i := 1; i <= M; i++ {
		resp += 2 * taps[i+M] * math.Cos(float64(i)*refOmega)
	}

	ret := make([]float32, nTaps)
	for i := range taps {
		ret[i] = float32(taps[i] * gain / resp)
	}
	return ret
}

func MakeLowPass(gain, sampleRate, cutFrequency, transitionWidth float64, winType WindowType) []float32 {
	fwT0 := 2 * math.Pi * cutFrequency / sampleRate

	return design(gain, sampleRate, transitionWidth, winType, func(i int) float64 {
		if i == 0 {
			return fwT0 / math.Pi
		}
		fi := float64(i)
		return math.Sin(fi*fwT0) / (fi * math.Pi)
	}, 0)
}

func MakeHighPass(gain, sampleRate, cutFrequency, transitionWidth float64, winType WindowType) []float32 {
	fwT0 := 2 * math.Pi * cutFrequency / sampleRate

	return design(gain, sampleRate, transitionWidth, winType, func(i int) float64 {
		if i == 0 {
			return 1 - fwT0/math.Pi
		}
		fi := float64(i)
		return -math.Sin(fi*fwT0) / (fi * math.Pi)
	}, math.Pi)
}

func MakeBandPass(gain, sampleRate, lowCut, highCut, transitionWidth float64, winType WindowType) []float32 {
	fwT0 := 2 * math.Pi * lowCut / sampleRate
	fwT1 := 2 * math.Pi * highCut / sampleRate

	return design(gain, sampleRate, transitionWidth, winType, func(i int) float64 {
		if i == 0 {
			return (fwT1 - fwT0) / math.Pi
		}
		fi := float64(i)
		return (math.Sin(fi*fwT1) - math.Sin(fi*fwT0)) / (fi * math.Pi)
	}, (fwT0+fwT1)/2)
}

// MakeComplexBandPass shifts a lowpass prototype to the centre of
// [lowCut, highCut]. Edges may be negative.
func MakeComplexBandPass(gain, sampleRate, lowCut, highCut, transitionWidth float64, winType WindowType) []complex64 {
	lptaps := MakeLowPass(gain, sampleRate, (highCut-lowCut)/2.0, transitionWidth, winType)
	ret := make([]complex64, len(lptaps))

	freq := math.Pi * (highCut + lowCut) / sampleRate
	phase := -freq * float64(len(lptaps)>>1)

	for i, tap := range lptaps {
		sin, cos := math.Sincos(phase)
		ret[i] = complex(tap*float32(cos), tap*float32(sin))
		phase += freq
	}

	return ret
}
