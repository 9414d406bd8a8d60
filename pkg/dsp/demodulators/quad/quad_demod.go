// Package quad implements a quadrature FM demodulator.
package quad

import (
	"math"

	"github.com/racerxdl/segdsp/dsp"
)

type QuadDemod struct {
	gain float32
	prev complex64
	buf  []complex64
}

// MakeQuadDemod returns a demodulator emitting gain * phase difference per
// sample. For FM with deviation d at sample rate fs, gain = fs / (2*pi*d)
// scales full deviation to 1.
func MakeQuadDemod(gain float32) *QuadDemod {
	return &QuadDemod{
		gain: gain,
	}
}

// GainForDeviation returns the demodulator gain mapping a peak deviation of
// deviation Hz to unit amplitude.
func GainForDeviation(sampleRate, deviation float64) float32 {
	return float32(sampleRate / (2 * math.Pi * deviation))
}

func (f *QuadDemod) Work(data []complex64) []float32 {
	out := make([]float32, f.PredictOutputSize(len(data)))

	f.WorkBuffer(data, out)

	return out
}

func (f *QuadDemod) WorkBuffer(input []complex64, output []float32) int {
	if len(input) == 0 {
		return 0
	}
	if cap(f.buf) < len(input)+1 {
		f.buf = make([]complex64, len(input)+1)
	}
	samples := f.buf[:len(input)+1]
	samples[0] = f.prev
	copy(samples[1:], input)

	tmp := dsp.MultiplyConjugate(samples[1:], samples, len(input))

	for i := 0; i < len(input); i++ {
		output[i] = f.gain * float32(math.Atan2(float64(imag(tmp[i])), float64(real(tmp[i]))))
	}

	f.prev = input[len(input)-1]
	return len(input)
}

func (f *QuadDemod) PredictOutputSize(inputLength int) int {
	return inputLength
}
