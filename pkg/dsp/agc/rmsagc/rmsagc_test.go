package rmsagc

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		alpha   float64
		k       float64
		wantErr bool
	}{
		{"typical", 0.01, 1.0, false},
		{"alpha one", 1.0, 0.5, false},
		{"tiny alpha", 1e-9, 32768, false},
		{"alpha zero", 0, 1.0, true},
		{"alpha negative", -0.1, 1.0, true},
		{"alpha above one", 1.5, 1.0, true},
		{"alpha nan", math.NaN(), 1.0, true},
		{"alpha inf", math.Inf(1), 1.0, true},
		{"k zero", 0.1, 0, true},
		{"k negative", 0.1, -1, true},
		{"k nan", 0.1, math.NaN(), true},
		{"k inf", 0.1, math.Inf(1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.alpha, tt.k)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidParameter))
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.alpha, r.Alpha())
			assert.Equal(t, tt.k, r.K())
			assert.Equal(t, tt.k, r.Gain())
			assert.Zero(t, r.Power())
		})
	}
}

func TestNewDefault(t *testing.T) {
	r := NewDefault()
	assert.Equal(t, DefaultAlpha, r.Alpha())
	assert.Equal(t, DefaultK, r.K())
}

func TestSilence(t *testing.T) {
	for _, alpha := range []float64{1e-6, 0.01, 0.5, 1} {
		r, err := New(alpha, 2.5)
		require.NoError(t, err)

		out := r.Work(make([]float32, 4096))
		for i, v := range out {
			if v != 0 {
				t.Fatalf("alpha %v: sample %d = %v, want 0", alpha, i, v)
			}
		}
		assert.Zero(t, r.Power())
		assert.Equal(t, 2.5, r.Gain())
	}
}

func TestConstantInputConverges(t *testing.T) {
	r, err := New(0.001, 1.0)
	require.NoError(t, err)

	in := make([]float32, 10000)
	for i := range in {
		in[i] = 2.0
	}
	out := r.Work(in)

	for i := 5000; i < len(out); i++ {
		assert.InDelta(t, 1.0, out[i], 0.01, "sample %d", i)
	}
	assert.InDelta(t, 0.5, r.Gain(), 0.005)
	assert.InDelta(t, 4.0, r.Power(), 0.04)
}

func TestSineConvergesToReference(t *testing.T) {
	const k = 0.3
	r, err := New(0.005, k)
	require.NoError(t, err)

	in := make([]float32, 48000)
	for i := range in {
		in[i] = float32(1.7 * math.Sin(2*math.Pi*440*float64(i)/8000))
	}
	out := r.Work(in)

	var sum float64
	tail := out[len(out)-8000:]
	for _, v := range tail {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(tail)))
	assert.InEpsilon(t, k, rms, 0.05)
}

func TestLargerAlphaConvergesFaster(t *testing.T) {
	errAfter := func(alpha float64, n int) float64 {
		r, err := New(alpha, 1.0)
		require.NoError(t, err)
		var last float32
		for i := 0; i < n; i++ {
			last = r.Process(0.25)
		}
		return math.Abs(float64(last) - 1.0)
	}

	slow := errAfter(0.001, 500)
	fast := errAfter(0.05, 500)
	assert.Less(t, fast, slow)
}

func TestDeterminism(t *testing.T) {
	in := make([]float32, 2048)
	for i := range in {
		in[i] = float32(math.Sin(float64(i)*0.37) * (1 + float64(i%17)))
	}

	a, err := New(0.02, 0.7)
	require.NoError(t, err)
	b, err := New(0.02, 0.7)
	require.NoError(t, err)

	first := a.Work(in)
	assert.Equal(t, first, b.Work(in))

	a.Reset()
	assert.Equal(t, first, a.Work(in))
}

func TestReset(t *testing.T) {
	r, err := New(0.1, 3)
	require.NoError(t, err)
	r.Work([]float32{1, -2, 3})
	require.NotZero(t, r.Power())

	r.Reset()
	assert.Zero(t, r.Power())
	assert.Equal(t, 3.0, r.Gain())
}

func TestSetters(t *testing.T) {
	r := NewDefault()

	require.NoError(t, r.SetAlpha(0.25))
	assert.Equal(t, 0.25, r.Alpha())
	require.NoError(t, r.SetK(4))
	assert.Equal(t, 4.0, r.K())

	r.Work([]float32{0.5, 0.5})
	power, gain := r.Power(), r.Gain()

	for _, v := range []float64{0, 1.5, -0.2, math.NaN()} {
		err := r.SetAlpha(v)
		assert.True(t, errors.Is(err, ErrInvalidParameter), "alpha %v", v)
	}
	for _, v := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		err := r.SetK(v)
		assert.True(t, errors.Is(err, ErrInvalidParameter), "k %v", v)
	}

	assert.Equal(t, 0.25, r.Alpha())
	assert.Equal(t, 4.0, r.K())
	assert.Equal(t, power, r.Power())
	assert.Equal(t, gain, r.Gain())
}

func TestFirstSample(t *testing.T) {
	r, err := New(1.0, 1.0)
	require.NoError(t, err)

	// With alpha 1 the estimate is the instantaneous power.
	assert.Equal(t, float32(-1), r.Process(-8))
	assert.Equal(t, float32(-1), r.Process(-0.125))
	assert.Equal(t, float32(1), r.Process(0.125))
}

func TestSilenceHoldsGain(t *testing.T) {
	r, err := New(1.0, 1.0)
	require.NoError(t, err)

	r.Process(4)
	assert.Equal(t, 0.25, r.Gain())
	assert.Zero(t, r.Process(0))
	assert.Equal(t, 0.25, r.Gain())
	assert.Zero(t, r.Power())
}

func TestNonFiniteInput(t *testing.T) {
	r, err := New(0.5, 1.0)
	require.NoError(t, err)
	r.Process(1)
	power, gain := r.Power(), r.Gain()

	for _, v := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		assert.Zero(t, r.Process(v))
	}
	assert.Equal(t, power, r.Power())
	assert.Equal(t, gain, r.Gain())
}

func TestWorkBufferInPlace(t *testing.T) {
	in := []float32{1, 2, 3, 4, 5}
	want := NewDefault().Work(in)

	buf := append([]float32(nil), in...)
	n := NewDefault().WorkBuffer(buf, buf)
	assert.Equal(t, len(in), n)
	assert.Equal(t, want, buf)
}

func TestGainStaysFinite(t *testing.T) {
	r, err := New(1e-3, 1.0)
	require.NoError(t, err)

	tiny := float32(math.SmallestNonzeroFloat32)
	for i := 0; i < 1000; i++ {
		r.Process(tiny)
		g := r.Gain()
		if math.IsInf(g, 0) || math.IsNaN(g) || g < 0 {
			t.Fatalf("gain %v at %d", g, i)
		}
	}
}
