package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/norasector/rmsagc/pkg/leveler/config"
	"github.com/norasector/turbine-common/types"
)

// WAVSource reads PCM WAV files. Only the first channel is used; samples are
// scaled to [-1, 1).
type WAVSource struct {
	file        io.ReadSeekCloser
	decoder     *wav.Decoder
	segmentSize int
	sampleRate  int
	channels    int
	scale       float32
	realtime    bool
}

func NewWAVSource(r io.ReadSeekCloser, segmentSize int, realtime bool) (*WAVSource, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	format := decoder.Format()
	if format == nil || format.SampleRate <= 0 || format.NumChannels <= 0 {
		return nil, errors.New("WAV file missing format information")
	}
	bitDepth := int(decoder.BitDepth)
	if bitDepth < 16 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if segmentSize <= 0 {
		segmentSize = config.DefaultSegmentSize
	}

	return &WAVSource{
		file:        r,
		decoder:     decoder,
		segmentSize: segmentSize,
		sampleRate:  format.SampleRate,
		channels:    format.NumChannels,
		scale:       1 / float32(int64(1)<<(bitDepth-1)),
		realtime:    realtime,
	}, nil
}

func (w *WAVSource) SampleRate() int {
	return w.sampleRate
}

func (w *WAVSource) Complex() bool {
	return false
}

func (w *WAVSource) Start(ctx context.Context, out chan<- *Segment) error {
	p := newPacer(w.realtime, w.segmentSize, w.sampleRate)
	defer p.stop()

	buf := &audio.IntBuffer{
		Data:   make([]int, w.segmentSize*w.channels),
		Format: w.decoder.Format(),
	}
	segNum := 0

	for {
		if err := p.wait(ctx); err != nil {
			return err
		}

		n, err := w.decoder.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read audio data: %w", err)
		}

		frames := n / w.channels
		if frames == 0 {
			return nil
		}

		samples := make([]float32, frames)
		for i := range samples {
			samples[i] = float32(buf.Data[i*w.channels]) * w.scale
		}

		segNum++
		if err := send(ctx, out, &Segment{Float: &types.SegmentFloat32{
			SegmentNumber: segNum,
			Data:          samples,
		}}); err != nil {
			return err
		}
	}
}

func (w *WAVSource) Stop() error {
	return w.file.Close()
}
