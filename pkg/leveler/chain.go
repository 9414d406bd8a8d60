package leveler

import (
	"fmt"
	"math"

	"github.com/norasector/rmsagc/pkg/dsp/demodulators/quad"
	"github.com/norasector/rmsagc/pkg/dsp/filters/fir"
	"github.com/norasector/rmsagc/pkg/dsp/filters/spectral"
	"github.com/norasector/rmsagc/pkg/dsp/mixer"
	"github.com/norasector/rmsagc/pkg/dsp/processor"
	"github.com/norasector/rmsagc/pkg/dsp/viz"
	"github.com/racerxdl/segdsp/dsp"
)

const (
	// Audio bandwidth assumed when sizing the channel filter of IQ input.
	audioBandwidth = 3000
	squelchAlpha   = 0.1
	resamplerTaps  = 127
	gainPlotLength = 256
)

// buildChain adds every configured block to l.proc. The AGC is always
// present; everything else depends on the input format and filter options.
func (l *Leveler) buildChain() error {
	rate := l.source.SampleRate()
	if rate <= 0 {
		return fmt.Errorf("source sample rate %d must be positive", rate)
	}

	window, err := fir.WindowTypeFromString(l.opts.Filters.Window)
	if err != nil {
		return err
	}

	if l.source.Complex() {
		rate, err = l.addDemodulator(rate, window)
		if err != nil {
			return err
		}
	}

	if err := l.addAudioFilters(rate, window); err != nil {
		return err
	}

	vizLength := rate / 40
	l.proc.AddBlock(processor.NewDSPWorkerFF(
		"rms_agc",
		"RMS AGC",
		rate,
		rate,
		l.agc,
		processor.WithVizLength(vizLength),
		processor.WithPlotType(viz.PlotTypeLines),
		processor.WithObserver(l.observeGain),
	))

	if out := l.opts.OutputRate; out > 0 && out != rate {
		l.proc.AddBlock(processor.NewDSPWorkerFF(
			"resampler",
			"Audio Resampler",
			rate,
			out,
			dsp.MakeFloatResampler(resamplerTaps, float32(out)/float32(rate)),
			processor.WithVizLength(out/40),
			processor.WithPlotType(viz.PlotTypeLines),
		))
	}

	if l.vizServer != nil {
		l.gainPlot = viz.NewGainPlotter("AGC Gain", gainPlotLength)
		l.vizServer.Register(l.proc.Name, l.gainPlot)
	}

	return l.proc.Initialize()
}

// addDemodulator adds the NBFM front end for IQ input and returns the audio
// sample rate.
func (l *Leveler) addDemodulator(rate int, window fir.WindowType) (int, error) {
	in := l.opts.Input

	dec := in.Decimation
	if dec <= 0 {
		dec = 1
	}
	ifRate := rate / dec
	if ifRate <= 0 {
		return 0, fmt.Errorf("decimation %d too large for sample rate %d", dec, rate)
	}

	l.logger.Info().
		Int("sample_rate", rate).
		Int("tune_offset", in.TuneOffset).
		Int("decimation", dec).
		Int("intermediate_freq", ifRate).
		Int("deviation", in.Deviation).
		Msg("initializing demodulator")

	if in.TuneOffset != 0 {
		if math.Abs(float64(in.TuneOffset)) >= float64(rate)/2 {
			return 0, fmt.Errorf("tune offset %d outside of sample rate %d", in.TuneOffset, rate)
		}
		l.proc.AddBlock(processor.NewDSPWorkerCC(
			"offset_mixer",
			"Offset Mixer",
			rate,
			rate,
			mixer.NewWaveformMixer(rate, -in.TuneOffset),
		))
	}

	// Carson's rule, clamped under the intermediate Nyquist frequency.
	cutoff := float64(in.Deviation + audioBandwidth)
	if limit := float64(ifRate) * 0.45; cutoff > limit {
		cutoff = limit
	}
	transition := cutoff / 2
	if err := fir.ValidateBand(float64(rate), 0, cutoff, transition); err != nil {
		return 0, fmt.Errorf("channel filter: %w", err)
	}
	l.proc.AddBlock(processor.NewDSPWorkerCC(
		"lowpass_decimator",
		"Lowpass Decimator",
		rate,
		ifRate,
		dsp.MakeDecimationFirFilter(dec, fir.MakeLowPass(1.0, float64(rate), cutoff, transition, window)),
	))

	if in.Squelch != 0 {
		l.proc.AddBlock(processor.NewDSPWorkerCC(
			"squelch",
			"Squelch",
			ifRate,
			ifRate,
			dsp.MakeSquelch(float32(in.Squelch), squelchAlpha),
		))
	}

	l.proc.AddBlock(processor.NewDSPWorkerCF(
		"quad_demod",
		"Quadrature Demodulator",
		ifRate,
		ifRate,
		quad.MakeQuadDemod(quad.GainForDeviation(float64(ifRate), float64(in.Deviation))),
		processor.WithVizLength(ifRate/40),
	))

	if tau := l.opts.Filters.Deemphasis; tau > 0 {
		l.proc.AddBlock(processor.NewDSPWorkerFF(
			"fm_deemphasis",
			"FM Deemphasis",
			ifRate,
			ifRate,
			dsp.MakeFMDeemph(float32(tau.Seconds()), float32(ifRate)),
			processor.WithVizLength(ifRate/40),
		))
	}

	return ifRate, nil
}

func (l *Leveler) addAudioFilters(rate int, window fir.WindowType) error {
	f := l.opts.Filters
	fr := float64(rate)

	if f.HighpassHz > 0 {
		if err := fir.ValidateBand(fr, f.HighpassHz, 0, f.TransitionHz); err != nil {
			return fmt.Errorf("highpass: %w", err)
		}
		l.proc.AddBlock(processor.NewDSPWorkerFF(
			"highpass",
			"Highpass",
			rate,
			rate,
			dsp.MakeFloatFirFilter(fir.MakeHighPass(1.0, fr, f.HighpassHz, f.TransitionHz, window)),
			processor.WithVizLength(rate/40),
			processor.WithFloatFFTPlot(),
		))
	}

	if f.BandpassLowHz > 0 || f.BandpassHighHz > 0 {
		if err := fir.ValidateBand(fr, f.BandpassLowHz, f.BandpassHighHz, f.TransitionHz); err != nil {
			return fmt.Errorf("bandpass: %w", err)
		}
		if f.BandpassLowHz == 0 || f.BandpassHighHz == 0 {
			return fmt.Errorf("bandpass: both edges required: %w", fir.ErrInvalidBand)
		}
		l.proc.AddBlock(processor.NewDSPWorkerFF(
			"bandpass",
			"Bandpass",
			rate,
			rate,
			dsp.MakeFloatFirFilter(fir.MakeBandPass(1.0, fr, f.BandpassLowHz, f.BandpassHighHz, f.TransitionHz, window)),
			processor.WithVizLength(rate/40),
			processor.WithFloatFFTPlot(),
		))
	}

	if ts := f.ToneSuppression; ts.Peaks > 0 {
		if ts.Attenuation < 0 || ts.Attenuation > 1 {
			return fmt.Errorf("tone suppression attenuation %v not in [0, 1]", ts.Attenuation)
		}
		if ts.CutoffHz < 0 || ts.CutoffHz >= fr/2 {
			return fmt.Errorf("tone suppression cutoff %v outside of (0, %v)", ts.CutoffHz, fr/2)
		}
		l.proc.AddBlock(processor.NewDSPWorkerFF(
			"tone_suppressor",
			"Tone Suppressor",
			rate,
			rate,
			spectral.NewToneSuppressor(rate, ts.Peaks, ts.Attenuation, ts.CutoffHz),
			processor.WithVizLength(rate/40),
			processor.WithFloatFFTPlot(),
		))
	}

	return nil
}

// observeGain runs on the processing goroutine after the AGC block.
func (l *Leveler) observeGain([]float32) {
	if l.gainPlot != nil {
		l.gainPlot.AppendGain(l.agc.Gain())
	}
}
