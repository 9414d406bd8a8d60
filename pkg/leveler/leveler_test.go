package leveler

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/norasector/rmsagc/pkg/dsp/agc/rmsagc"
	"github.com/norasector/rmsagc/pkg/dsp/filters/fir"
	"github.com/norasector/rmsagc/pkg/dsp/viz"
	"github.com/norasector/rmsagc/pkg/leveler/config"
	"github.com/norasector/rmsagc/pkg/leveler/output"
	"github.com/norasector/rmsagc/pkg/leveler/source"
	"github.com/norasector/rmsagc/pkg/util"
	"github.com/norasector/turbine-common/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	rate    int
	complex bool
	segs    []*source.Segment
	block   bool
	stopped bool
}

func (s *sliceSource) Start(ctx context.Context, out chan<- *source.Segment) error {
	for _, seg := range s.segs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- seg:
		}
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (s *sliceSource) Stop() error {
	s.stopped = true
	return nil
}

func (s *sliceSource) SampleRate() int { return s.rate }
func (s *sliceSource) Complex() bool   { return s.complex }

func sineSource(rate, segments, segSize int, amplitude float64) *sliceSource {
	src := &sliceSource{rate: rate}
	n := 0
	for i := 0; i < segments; i++ {
		data := make([]float32, segSize)
		for j := range data {
			data[j] = float32(amplitude * math.Sin(2*math.Pi*440*float64(n)/float64(rate)))
			n++
		}
		src.segs = append(src.segs, &source.Segment{Float: &types.SegmentFloat32{
			SegmentNumber: i + 1,
			Data:          data,
		}})
	}
	return src
}

func baseOptions() Options {
	c := &config.Config{}
	c.ApplyDefaults()
	return OptionsFromConfig(c)
}

func blockNames(l *Leveler) []string {
	var ret []string
	for _, b := range l.proc.Blocks() {
		ret = append(ret, b.Name)
	}
	return ret
}

func TestLevelerNormalizesLevel(t *testing.T) {
	var b bytes.Buffer
	metrics := &util.RecordingWriteAPI{}

	opts := baseOptions()
	opts.AGC = config.AGC{Alpha: 0.01, K: 0.5}
	opts.AudioOutputs = []output.AudioOutput{output.NewRawOutput(&b)}

	l, err := New(sineSource(8000, 20, 400, 0.01), opts,
		WithInfluxDB(metrics),
		WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	assert.Equal(t, []string{"rms_agc"}, blockNames(l))
	assert.Equal(t, 8000, l.OutputRate())

	require.NoError(t, l.Start(context.Background()))

	out := make([]float32, b.Len()/4)
	require.NoError(t, binary.Read(&b, binary.LittleEndian, out))
	require.Len(t, out, 8000)
	assert.InDelta(t, 0.5, util.RMS(out[4000:]), 0.05)

	s := l.Summary()
	assert.Equal(t, 20, s.Segments)
	assert.Equal(t, 8000, s.SamplesIn)
	assert.Equal(t, 8000, s.SamplesOut)
	assert.InDelta(t, 0.5/(0.01/math.Sqrt2), s.Gain, 5)
	assert.InDelta(t, 0.00005, s.Power, 0.00001)

	assert.Len(t, metrics.Points("leveler.processed"), 20)
}

func TestLevelerValidation(t *testing.T) {
	out := []output.AudioOutput{output.NewRawOutput(&bytes.Buffer{})}
	src := sineSource(8000, 1, 10, 1)

	l, err := New(src, baseOptions())
	require.NoError(t, err)
	assert.ErrorContains(t, l.Start(context.Background()), "audio output")

	opts := baseOptions()
	opts.AudioOutputs = out
	opts.AGC.Alpha = 2
	_, err = New(src, opts)
	assert.ErrorIs(t, err, rmsagc.ErrInvalidParameter)

	opts = baseOptions()
	opts.AudioOutputs = out
	opts.Filters.HighpassHz = 5000
	_, err = New(src, opts)
	assert.ErrorIs(t, err, fir.ErrInvalidBand)

	opts = baseOptions()
	opts.AudioOutputs = out
	opts.Filters.BandpassLowHz = 300
	_, err = New(src, opts)
	assert.ErrorIs(t, err, fir.ErrInvalidBand)

	opts = baseOptions()
	opts.AudioOutputs = out
	opts.Filters.Window = "triangle"
	_, err = New(src, opts)
	assert.ErrorContains(t, err, "unknown window type")

	_, err = New(&sliceSource{}, Options{AGC: config.AGC{Alpha: 0.1, K: 1}, AudioOutputs: out})
	assert.ErrorContains(t, err, "sample rate")
}

func TestLevelerFloatChain(t *testing.T) {
	opts := baseOptions()
	opts.AudioOutputs = []output.AudioOutput{output.NewRawOutput(&bytes.Buffer{})}
	opts.Filters.HighpassHz = 200
	opts.Filters.BandpassLowHz = 300
	opts.Filters.BandpassHighHz = 3400
	opts.Filters.ToneSuppression = config.ToneSuppression{Peaks: 2, Attenuation: 0.1, CutoffHz: 3800}
	opts.OutputRate = 16000

	l, err := New(sineSource(8000, 1, 10, 1), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"highpass", "bandpass", "tone_suppressor", "rms_agc", "resampler"}, blockNames(l))
	assert.Equal(t, 16000, l.OutputRate())
	assert.Equal(t, 16000, l.Summary().OutputRate)
}

func TestLevelerIQChain(t *testing.T) {
	src := &sliceSource{rate: 48000, complex: true}

	opts := baseOptions()
	opts.AudioOutputs = []output.AudioOutput{output.NewRawOutput(&bytes.Buffer{})}
	opts.Input.Format = config.FormatCS8
	opts.Input.TuneOffset = 5000
	opts.Input.Deviation = 5000
	opts.Input.Decimation = 2
	opts.Input.Squelch = -40
	opts.Filters.Deemphasis = 75 * time.Microsecond
	opts.OutputRate = 8000

	l, err := New(src, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"offset_mixer",
		"lowpass_decimator",
		"squelch",
		"quad_demod",
		"fm_deemphasis",
		"rms_agc",
		"resampler",
	}, blockNames(l))
	assert.Equal(t, 8000, l.OutputRate())

	opts.Input.TuneOffset = 30000
	_, err = New(src, opts)
	assert.ErrorContains(t, err, "tune offset")
}

func TestLevelerIQProcessing(t *testing.T) {
	const rate = 16000
	seg := &types.SegmentComplex64{SegmentNumber: 1, Data: make([]complex64, 1600)}
	for i := range seg.Data {
		// 1 kHz tone, FM modulated with 2 kHz deviation.
		phase := 2000.0 / 1000.0 * math.Sin(2*math.Pi*1000*float64(i)/rate)
		seg.Data[i] = complex64(complex(math.Cos(phase), math.Sin(phase)))
	}
	src := &sliceSource{rate: rate, complex: true, segs: []*source.Segment{{Complex: seg}}}

	var b bytes.Buffer
	opts := baseOptions()
	opts.Input.Format = config.FormatCS8
	opts.Input.Deviation = 2000

	l, err := New(src, opts, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	l.AddOutput(output.NewRawOutput(&b))
	require.NoError(t, l.Start(context.Background()))

	s := l.Summary()
	assert.Equal(t, 1600, s.SamplesIn)
	assert.Equal(t, b.Len()/4, s.SamplesOut)
	assert.Greater(t, s.Power, 0.0)
}

func TestLevelerStop(t *testing.T) {
	src := sineSource(8000, 2, 100, 1)
	src.block = true

	opts := baseOptions()
	opts.AudioOutputs = []output.AudioOutput{output.NewRawOutput(&bytes.Buffer{})}
	l, err := New(src, opts, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Start(context.Background()) }()

	assert.Eventually(t, func() bool {
		return l.Summary().Segments == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, l.Stop())
	assert.True(t, src.stopped)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("leveler did not stop")
	}
}

func TestLevelerSetAGC(t *testing.T) {
	opts := baseOptions()
	opts.AudioOutputs = []output.AudioOutput{output.NewRawOutput(&bytes.Buffer{})}
	l, err := New(sineSource(8000, 1, 10, 1), opts)
	require.NoError(t, err)

	assert.ErrorIs(t, l.SetAGC(0.5, -1), rmsagc.ErrInvalidParameter)
	assert.Equal(t, rmsagc.DefaultAlpha, l.agc.Alpha())
	assert.Equal(t, rmsagc.DefaultK, l.agc.K())

	require.NoError(t, l.SetAGC(0.5, 2))
	assert.Equal(t, 0.5, l.agc.Alpha())
	assert.Equal(t, 2.0, l.agc.K())
}

func TestLevelerRegistersGainPlot(t *testing.T) {
	opts := baseOptions()
	opts.AudioOutputs = []output.AudioOutput{output.NewRawOutput(&bytes.Buffer{})}
	l, err := New(sineSource(8000, 1, 10, 1), opts, WithImageServer(viz.NewServer(0, 0)))
	require.NoError(t, err)
	require.NotNil(t, l.gainPlot)

	l.observeGain(nil)
	l.observeGain(nil)
	assert.NotNil(t, l.gainPlot.GetImage())
}
