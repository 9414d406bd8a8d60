// Package rmsagc implements a root-mean-squared automatic gain controller.
//
// The controller keeps an exponential moving average of the input power and
// scales each sample so that the output RMS level tracks the reference k.
// A controller is not safe for concurrent use.
package rmsagc

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultAlpha = 0.01
	DefaultK     = 1.0
)

// ErrInvalidParameter is returned when alpha or k fall outside their domain.
var ErrInvalidParameter = errors.New("invalid parameter")

// RMSAGC is a root-mean-squared automatic gain controller
type RMSAGC struct {
	alpha float64
	beta  float64
	k     float64
	gain  float64
	power float64
}

// NewDefault returns a controller using DefaultAlpha and DefaultK.
func NewDefault() *RMSAGC {
	r, _ := New(DefaultAlpha, DefaultK)
	return r
}

// New returns a controller adapting at rate alpha, in (0, 1], towards the
// output RMS level k, which must be positive.
func New(alpha, k float64) (*RMSAGC, error) {
	if err := validateAlpha(alpha); err != nil {
		return nil, err
	}
	if err := validateK(k); err != nil {
		return nil, err
	}

	return &RMSAGC{
		alpha: alpha,
		beta:  1 - alpha,
		k:     k,
		gain:  k,
	}, nil
}

func validateAlpha(alpha float64) error {
	if math.IsNaN(alpha) || alpha <= 0 || alpha > 1 {
		return fmt.Errorf("alpha %v not in (0, 1]: %w", alpha, ErrInvalidParameter)
	}
	return nil
}

func validateK(k float64) error {
	if math.IsNaN(k) || math.IsInf(k, 0) || k <= 0 {
		return fmt.Errorf("k %v must be positive and finite: %w", k, ErrInvalidParameter)
	}
	return nil
}

func (r *RMSAGC) Alpha() float64 {
	return r.alpha
}

func (r *RMSAGC) K() float64 {
	return r.k
}

// Gain is the gain applied to the most recent sample.
func (r *RMSAGC) Gain() float64 {
	return r.gain
}

// Power is the current mean-square estimate.
func (r *RMSAGC) Power() float64 {
	return r.power
}

func (r *RMSAGC) SetAlpha(alpha float64) error {
	if err := validateAlpha(alpha); err != nil {
		return err
	}
	r.alpha = alpha
	r.beta = 1 - alpha
	return nil
}

// SetK changes the reference level. The new level takes effect on the next
// sample with non-zero power.
func (r *RMSAGC) SetK(k float64) error {
	if err := validateK(k); err != nil {
		return err
	}
	r.k = k
	return nil
}

// Reset clears the power estimate and restores the initial gain.
func (r *RMSAGC) Reset() {
	r.power = 0
	r.gain = r.k
}

func (r *RMSAGC) step(cur float64) float64 {
	if math.IsNaN(cur) || math.IsInf(cur, 0) {
		return 0
	}

	r.power = r.beta*r.power + r.alpha*cur*cur
	if r.power > 0 {
		gain := r.k / math.Sqrt(r.power)
		if !math.IsInf(gain, 0) {
			r.gain = gain
		}
	}

	return r.gain * cur
}

// Process scales a single sample.
func (r *RMSAGC) Process(sample float32) float32 {
	return float32(r.step(float64(sample)))
}

func (r *RMSAGC) PredictOutputSize(inputSize int) int {
	return inputSize
}

// WorkBuffer scales input into output, which may alias input.
func (r *RMSAGC) WorkBuffer(input, output []float32) int {
	for i := 0; i < len(input); i++ {
		output[i] = float32(r.step(float64(input[i])))
	}

	return len(input)
}

func (r *RMSAGC) Work(data []float32) []float32 {
	ret := make([]float32, len(data))
	r.WorkBuffer(data, ret)
	return ret
}
