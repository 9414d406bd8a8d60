// Package mixer shifts complex baseband signals in frequency.
package mixer

import "math"

const tau = 2 * math.Pi

// WaveformMixer multiplies its input by e^(j*phase), the phase advancing by
// 2*pi*frequency/sampleRate per sample and carried across segments.
type WaveformMixer struct {
	frequency int
	step      float64
	phase     float64
}

// NewWaveformMixer returns a mixer that moves a signal by frequency Hz. Use a
// negative frequency to bring a channel at +f down to baseband.
func NewWaveformMixer(sampleRate int, frequency int) *WaveformMixer {
	return &WaveformMixer{
		frequency: frequency,
		step:      tau * float64(frequency) / float64(sampleRate),
	}
}

func (w *WaveformMixer) Frequency() int {
	return w.frequency
}

// Reset rewinds the oscillator to phase 0.
func (w *WaveformMixer) Reset() {
	w.phase = 0
}

func (w *WaveformMixer) WorkBuffer(input []complex64, output []complex64) int {
	phase := w.phase
	for i, v := range input {
		sin, cos := math.Sincos(phase)
		output[i] = v * complex(float32(cos), float32(sin))
		phase += w.step
	}
	// Kept in [-pi, pi] so precision does not degrade on long runs.
	w.phase = math.Remainder(phase, tau)

	return len(input)
}

func (w *WaveformMixer) Work(vals []complex64) []complex64 {
	ret := make([]complex64, len(vals))
	w.WorkBuffer(vals, ret)
	return ret
}

func (w *WaveformMixer) PredictOutputSize(inputSize int) int {
	return inputSize
}
