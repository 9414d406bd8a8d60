package rmsagc

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplesMatchesWork(t *testing.T) {
	in := []float32{0, 0.5, -1, 2, -4, 8, 0, 0.1}

	want := NewDefault().Work(in)
	got := slices.Collect(NewDefault().Samples(slices.Values(in)))
	assert.Equal(t, want, got)
}

func TestSamplesIsLazy(t *testing.T) {
	r := NewDefault()

	pulled := 0
	infinite := func(yield func(float32) bool) {
		for {
			pulled++
			if !yield(1) {
				return
			}
		}
	}

	n := 0
	for range r.Samples(infinite) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, pulled)
	assert.InDelta(t, 1-(1-DefaultAlpha)*(1-DefaultAlpha)*(1-DefaultAlpha), r.Power(), 1e-12)
}

func TestStream(t *testing.T) {
	segments := [][]float32{{1, 2, 3}, {}, {-1, 0.5}}

	ref := NewDefault()
	var want [][]float32
	for _, seg := range segments {
		want = append(want, ref.Work(seg))
	}

	in := make(chan []float32, len(segments))
	out := make(chan []float32, len(segments))
	for _, seg := range segments {
		in <- seg
	}
	close(in)

	require.NoError(t, NewDefault().Stream(context.Background(), in, out))
	close(out)

	var got [][]float32
	for seg := range out {
		got = append(got, seg)
	}
	assert.Equal(t, want, got)
}

func TestStreamCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewDefault().Stream(ctx, make(chan []float32), make(chan []float32))
	assert.ErrorIs(t, err, context.Canceled)
}
