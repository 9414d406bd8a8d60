// Package source reads sample streams from files or pipes.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/norasector/rmsagc/pkg/leveler/config"
	"github.com/norasector/turbine-common/types"
)

// Segment carries exactly one of Float or Complex.
type Segment struct {
	Float   *types.SegmentFloat32
	Complex *types.SegmentComplex64
}

func (s *Segment) Len() int {
	switch {
	case s.Float != nil:
		return len(s.Float.Data)
	case s.Complex != nil:
		return len(s.Complex.Data)
	default:
		return 0
	}
}

// Source produces segments until its input ends.
type Source interface {
	// Start sends segments on out until the input is exhausted, in which case
	// it returns nil, or ctx ends.
	Start(ctx context.Context, out chan<- *Segment) error
	Stop() error
	SampleRate() int
	// Complex reports whether segments carry IQ samples.
	Complex() bool
}

// Open returns the source described by in. A path of "-" reads stdin.
func Open(in config.Input) (Source, error) {
	var rc io.ReadCloser
	if in.Path == "-" {
		rc = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(in.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		rc = f
	}

	switch in.Format {
	case config.FormatWAV:
		rs, ok := rc.(io.ReadSeekCloser)
		if !ok {
			rc.Close()
			return nil, fmt.Errorf("wav input must be a seekable file")
		}
		src, err := NewWAVSource(rs, in.SegmentSize, in.Realtime)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return src, nil
	case config.FormatFloat32, config.FormatCS8:
		return NewFileSource(rc, in.Format, in.SampleRate, in.SegmentSize, in.Realtime)
	default:
		rc.Close()
		return nil, fmt.Errorf("unknown input format %q", in.Format)
	}
}

// pacer throttles a loop to the wall clock duration of each segment. A nil
// pacer does not wait.
type pacer struct {
	ticker *time.Ticker
}

func newPacer(realtime bool, segmentSize, sampleRate int) *pacer {
	if !realtime || sampleRate <= 0 {
		return nil
	}
	interval := time.Duration(float64(segmentSize) / float64(sampleRate) * float64(time.Second))
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &pacer{ticker: time.NewTicker(interval)}
}

func (p *pacer) wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

func (p *pacer) stop() {
	if p != nil {
		p.ticker.Stop()
	}
}

func send(ctx context.Context, out chan<- *Segment, seg *Segment) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- seg:
		return nil
	}
}
