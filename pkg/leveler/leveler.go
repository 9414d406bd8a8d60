// Package leveler reads a sample stream, normalizes its level with an RMS
// AGC, and delivers the result to one or more audio outputs.
package leveler

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rmsagc/pkg/dsp/agc/rmsagc"
	"github.com/norasector/rmsagc/pkg/dsp/processor"
	"github.com/norasector/rmsagc/pkg/dsp/viz"
	"github.com/norasector/rmsagc/pkg/leveler/output"
	"github.com/norasector/rmsagc/pkg/leveler/source"
	"github.com/norasector/rmsagc/pkg/util"
	"github.com/norasector/turbine-common/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const segmentQueueLength = 4

// Summary describes a run so far.
type Summary struct {
	Segments   int
	SamplesIn  int
	SamplesOut int
	Skipped    int
	OutputRate int
	Gain       float64
	Power      float64
}

type Leveler struct {
	source    source.Source
	opts      Options
	writeAPI  api.WriteAPI
	vizServer *viz.Server
	logger    zerolog.Logger

	// procMu guards proc and agc, which are driven by the processing loop.
	procMu   sync.Mutex
	proc     *processor.Processor
	agc      *rmsagc.RMSAGC
	gainPlot *viz.GainPlotter

	mu      sync.Mutex
	summary Summary
	cancel  context.CancelFunc
}

func New(src source.Source, options Options, opts ...Option) (*Leveler, error) {
	l := &Leveler{
		source:   src,
		opts:     options,
		writeAPI: &util.MockWriteAPI{}, // overwritten with option
		logger:   log.Logger,
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	if src == nil {
		return nil, errors.New("must specify a source")
	}
	if options.OutputRate < 0 {
		return nil, errors.New("output rate must not be negative")
	}

	agc, err := rmsagc.New(options.AGC.Alpha, options.AGC.K)
	if err != nil {
		return nil, err
	}
	l.agc = agc
	l.proc = processor.NewProcessor("leveler", "Input", l.vizServer)

	if err := l.buildChain(); err != nil {
		return nil, err
	}
	l.summary.OutputRate = l.proc.OutputRate()
	l.summary.Gain = agc.Gain()

	return l, nil
}

// AddOutput attaches an output before Start.
func (l *Leveler) AddOutput(o output.AudioOutput) {
	l.opts.AudioOutputs = append(l.opts.AudioOutputs, o)
}

// OutputRate is the sample rate delivered to the outputs.
func (l *Leveler) OutputRate() int {
	return l.proc.OutputRate()
}

// SetAGC changes the AGC parameters of a running leveler. Neither parameter
// is changed if either is invalid.
func (l *Leveler) SetAGC(alpha, k float64) error {
	l.procMu.Lock()
	defer l.procMu.Unlock()

	if _, err := rmsagc.New(alpha, k); err != nil {
		return err
	}
	if err := l.agc.SetAlpha(alpha); err != nil {
		return err
	}
	return l.agc.SetK(k)
}

func (l *Leveler) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summary
}

// Stop cancels a running leveler and releases the source.
func (l *Leveler) Stop() error {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if l.vizServer != nil {
		l.vizServer.Stop(context.TODO())
	}
	return l.source.Stop()
}

// Start runs until the source is exhausted and every output has drained, in
// which case it returns nil, or until ctx ends or a component fails.
func (l *Leveler) Start(ctx context.Context) error {
	if len(l.opts.AudioOutputs) == 0 {
		return errors.New("must specify at least one audio output")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	if l.vizServer != nil {
		// Outside the group: Run only returns once ctx ends.
		go func() {
			if err := l.vizServer.Run(ctx); err != nil {
				l.logger.Error().Err(err).Msg("viz server failed")
			}
		}()
	}

	eg, ctx := errgroup.WithContext(ctx)
	segChan := make(chan *source.Segment, segmentQueueLength)

	eg.Go(func() error {
		defer close(segChan)
		return l.source.Start(ctx, segChan)
	})

	eg.Go(func() error {
		return l.processSegments(ctx, segChan)
	})

	for _, o := range l.opts.AudioOutputs {
		thisOutput := o
		eg.Go(func() error {
			return thisOutput.Start(ctx)
		})
	}

	l.logger.Info().
		Int("sample_rate", l.source.SampleRate()).
		Int("output_rate", l.proc.OutputRate()).
		Bool("complex", l.source.Complex()).
		Float64("alpha", l.agc.Alpha()).
		Float64("k", l.agc.K()).
		Int("outputs", len(l.opts.AudioOutputs)).
		Msg("starting")

	if err := eg.Wait(); err != nil {
		return err
	}

	s := l.Summary()
	l.logger.Info().
		Int("segments", s.Segments).
		Int("samples_in", s.SamplesIn).
		Int("samples_out", s.SamplesOut).
		Float64("gain", s.Gain).
		Msg("finished")
	return nil
}

// processSegments closes every output once the source is exhausted.
func (l *Leveler) processSegments(ctx context.Context, segChan <-chan *source.Segment) error {
	closeOutputs := func() {
		for _, o := range l.opts.AudioOutputs {
			close(o.Receive())
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case seg, ok := <-segChan:
			if !ok {
				closeOutputs()
				return nil
			}
			if err := l.processSegment(ctx, seg); err != nil {
				return err
			}
		}
	}
}

func (l *Leveler) processSegment(ctx context.Context, seg *source.Segment) error {
	metrics := make(map[string]interface{})

	l.procMu.Lock()
	var (
		out *types.SegmentFloat32
		err error
	)
	elapsed := util.TimeOperationMicroseconds(func() {
		if seg.Complex != nil {
			out, err = l.proc.ProcessComplexToFloat(seg.Complex, metrics)
		} else {
			out, err = l.proc.ProcessFloat(seg.Float, metrics)
		}
	})
	gain, power := l.agc.Gain(), l.agc.Power()
	l.procMu.Unlock()

	if err != nil {
		return err
	}

	skipped := 0
	if len(out.Data) > 0 {
		tagged := &types.TaggedAudioSampleFloat32{
			TalkGroup: &types.TalkGroup{
				SystemID: l.opts.Stream.SystemID,
				ID:       l.opts.Stream.ID,
			},
			Audio: out,
		}
		if skipped, err = l.deliver(ctx, tagged); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.summary.Segments++
	l.summary.SamplesIn += seg.Len()
	l.summary.SamplesOut += len(out.Data)
	l.summary.Skipped += skipped
	l.summary.Gain = gain
	l.summary.Power = power
	l.mu.Unlock()

	metrics["duration"] = elapsed
	metrics["samples_in"] = seg.Len()
	metrics["samples_out"] = len(out.Data)
	metrics["skipped_outputs"] = skipped
	metrics["gain"] = gain
	metrics["gain_db"] = util.DB(gain)
	metrics["power"] = power
	metrics["output_rms_db"] = util.DB(util.RMS(out.Data))
	metrics["output_peak_db"] = util.DB(util.Peak(out.Data))

	l.writeAPI.WritePoint(influxdb2.NewPoint("leveler.processed",
		map[string]string{
			"system_id": strconv.Itoa(l.opts.Stream.SystemID),
			"stream_id": strconv.Itoa(l.opts.Stream.ID),
		},
		metrics, time.Now()))

	l.logger.Debug().
		Int("segment", out.SegmentNumber).
		Int("samples", len(out.Data)).
		Float64("gain", gain).
		Int64("duration_us", elapsed).
		Msg("processed segment")

	return nil
}

// deliver sends buf to every output and returns how many were skipped.
func (l *Leveler) deliver(ctx context.Context, buf *types.TaggedAudioSampleFloat32) (int, error) {
	skipped := 0
	for _, o := range l.opts.AudioOutputs {
		if l.opts.DropLate {
			select {
			case o.Receive() <- buf:
			default:
				skipped++
			}
			continue
		}

		select {
		case <-ctx.Done():
			return skipped, ctx.Err()
		case o.Receive() <- buf:
		}
	}
	return skipped, nil
}
