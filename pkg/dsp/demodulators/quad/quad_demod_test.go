package quad

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(n int, sampleRate, freq float64) []complex64 {
	ret := make([]complex64, n)
	for i := range ret {
		sin, cos := math.Sincos(2 * math.Pi * freq * float64(i) / sampleRate)
		ret[i] = complex(float32(cos), float32(sin))
	}
	return ret
}

func TestConstantOffsetDemodulatesToDC(t *testing.T) {
	const rate, dev = 48000.0, 5000.0
	d := MakeQuadDemod(GainForDeviation(rate, dev))

	out := d.Work(tone(1024, rate, dev))
	require.Len(t, out, 1024)

	// The first sample compares against the zero history.
	for i := 1; i < len(out); i++ {
		assert.InDelta(t, 1.0, out[i], 1e-3, "sample %d", i)
	}
}

func TestHistoryCarriesAcrossSegments(t *testing.T) {
	const rate = 48000.0
	in := tone(600, rate, -2500)

	whole := MakeQuadDemod(1).Work(in)

	split := MakeQuadDemod(1)
	got := append(split.Work(in[:250]), split.Work(in[250:])...)
	require.Len(t, got, len(whole))
	for i := range whole {
		assert.InDelta(t, whole[i], got[i], 1e-6, "sample %d", i)
	}
}

func TestEmptyInput(t *testing.T) {
	d := MakeQuadDemod(1)
	assert.Equal(t, 0, d.WorkBuffer(nil, nil))
}
