// Package spectral implements block FFT filters.
package spectral

import (
	"math/cmplx"
	"sort"

	dspfft "github.com/mjibson/go-dsp/fft"
)

const (
	peakWindow    = 13
	peakHalfWidth = 5
)

// ToneSuppressor attenuates the strongest narrowband peaks of each segment
// and removes content above a cutoff. Each segment is transformed
// independently after zero padding to a power of two.
type ToneSuppressor struct {
	sampleRate  int
	peaks       int
	attenuation float64
	cutoff      float64

	f64Buf []float64
}

// NewToneSuppressor returns a filter that multiplies the bins around the
// numPeaks strongest peaks by attenuation, in [0, 1], and zeroes everything
// above cutoff Hz. A cutoff of 0 disables the lowpass.
func NewToneSuppressor(sampleRate, numPeaks int, attenuation, cutoff float64) *ToneSuppressor {
	return &ToneSuppressor{
		sampleRate:  sampleRate,
		peaks:       numPeaks,
		attenuation: attenuation,
		cutoff:      cutoff,
	}
}

func nextRadix(size int) int {
	radix := 16

	for size > radix {
		radix *= 2
	}
	return radix
}

type indexedBin struct {
	index int
	mag   float64
}

// findPeaks returns the indices of up to numPeaks local maxima in mags,
// strongest first. A bin is a peak when it is the maximum of the window
// centred on it.
func findPeaks(mags []float64, numPeaks int) []int {
	half := peakWindow / 2
	peaks := make([]indexedBin, 0)
	for i := half; i < len(mags)-half; i++ {
		isPeak := mags[i] > 0
		for j := i - half; j <= i+half && isPeak; j++ {
			if j != i && mags[j] >= mags[i] {
				isPeak = false
			}
		}
		if isPeak {
			peaks = append(peaks, indexedBin{index: i, mag: mags[i]})
		}
	}

	sort.Slice(peaks, func(i, j int) bool {
		return peaks[i].mag > peaks[j].mag
	})

	if len(peaks) > numPeaks {
		peaks = peaks[:numPeaks]
	}
	ret := make([]int, len(peaks))
	for i, p := range peaks {
		ret[i] = p.index
	}
	return ret
}

func (f *ToneSuppressor) WorkBuffer(input, output []float32) int {
	fftSize := nextRadix(len(input))
	if len(f.f64Buf) != fftSize {
		f.f64Buf = make([]float64, fftSize)
	}
	allZero := true
	for i := 0; i < fftSize; i++ {
		if i < len(input) {
			f.f64Buf[i] = float64(input[i])
			if input[i] != 0 {
				allZero = false
			}
		} else {
			f.f64Buf[i] = 0
		}
	}
	if allZero {
		copy(output, input)
		return len(input)
	}

	spectrum := dspfft.FFTReal(f.f64Buf)
	half := fftSize / 2

	mags := make([]float64, half+1)
	for i := range mags {
		mags[i] = cmplx.Abs(spectrum[i])
	}

	// scale applies to bin k and its mirror so the output stays real.
	scale := func(k int, by float64) {
		spectrum[k] *= complex(by, 0)
		if k != 0 && k != half {
			spectrum[fftSize-k] *= complex(by, 0)
		}
	}

	for _, peak := range findPeaks(mags, f.peaks) {
		start := peak - peakHalfWidth
		if start < 1 {
			start = 1
		}
		end := peak + peakHalfWidth
		if end > half {
			end = half
		}
		for k := start; k <= end; k++ {
			scale(k, f.attenuation)
		}
	}

	if f.cutoff > 0 {
		first := int(f.cutoff*float64(fftSize)/float64(f.sampleRate)) + 1
		for k := first; k <= half; k++ {
			scale(k, 0)
		}
	}

	inverse := dspfft.IFFT(spectrum)

	for i := 0; i < len(input); i++ {
		output[i] = float32(real(inverse[i]))
	}

	return len(input)
}

func (f *ToneSuppressor) Work(input []float32) []float32 {
	ret := make([]float32, len(input))
	f.WorkBuffer(input, ret)
	return ret
}

func (f *ToneSuppressor) PredictOutputSize(inputSize int) int {
	return inputSize
}
