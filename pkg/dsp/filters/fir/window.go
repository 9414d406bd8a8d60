package fir

import (
	"fmt"
	"math"
	"strings"
)

type WindowFunc func(int) []float32

type WindowType int

const (
	Hamming        WindowType = 0
	Hann           WindowType = 1
	BlackmanHarris WindowType = 2
	Blackman       WindowType = 3
)

var (
	windowMaxAttenuation = map[WindowType]int{
		Hamming:        53,
		Hann:           44,
		BlackmanHarris: 92,
		Blackman:       74,
	}
	windowFuncs = map[WindowType]WindowFunc{
		Hamming:  HammingWindow,
		Hann:     HannWindow,
		Blackman: BlackmanWindow,
		BlackmanHarris: func(ntaps int) []float32 {
			return BlackmanHarrisWindow(ntaps, 92)
		},
	}
	windowNames = map[WindowType]string{
		Hamming:        "hamming",
		Hann:           "hann",
		BlackmanHarris: "blackman_harris",
		Blackman:       "blackman",
	}
)

func (w WindowType) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("window(%d)", int(w))
}

// WindowTypeFromString parses a window name as used in config files. An empty
// name selects Hamming.
func WindowTypeFromString(name string) (WindowType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Hamming, nil
	}
	for w, n := range windowNames {
		if n == name {
			return w, nil
		}
	}
	return 0, fmt.Errorf("unknown window type %q", name)
}

// cosWindow evaluates a generalized cosine window with alternating signs.
func cosWindow(ntaps int, coeffs ...float64) []float32 {
	ret := make([]float32, ntaps)
	if ntaps == 1 {
		ret[0] = 1
		return ret
	}
	M := float64(ntaps - 1)

	for i := 0; i < ntaps; i++ {
		fi := float64(i)
		var v float64
		sign := 1.0
		for n, c := range coeffs {
			v += sign * c * math.Cos(2*math.Pi*float64(n)*fi/M)
			sign = -sign
		}
		ret[i] = float32(v)
	}
	return ret
}

// BlackmanHarrisWindow supports attenuation values of 61, 67, 74 and 92 dB.
func BlackmanHarrisWindow(ntaps, atten int) []float32 {
	switch atten {
	case 61:
		return cosWindow(ntaps, 0.42323, 0.49755, 0.07922)
	case 67:
		return cosWindow(ntaps, 0.44959, 0.49364, 0.05677)
	case 74:
		return cosWindow(ntaps, 0.40271, 0.49703, 0.09392, 0.00183)
	case 92:
		return cosWindow(ntaps, 0.35875, 0.48829, 0.14128, 0.01168)
	default:
		panic(fmt.Errorf("blackman harris window must have attenuation value 61, 67, 74, 92: got %d", atten))
	}
}

func BlackmanWindow(ntaps int) []float32 {
	return cosWindow(ntaps, 0.42, 0.5, 0.08)
}

func HammingWindow(ntaps int) []float32 {
	return cosWindow(ntaps, 0.54, 0.46)
}

func HannWindow(ntaps int) []float32 {
	return cosWindow(ntaps, 0.5, 0.5)
}
