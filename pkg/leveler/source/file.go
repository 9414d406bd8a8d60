package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/norasector/rmsagc/pkg/leveler/config"
	"github.com/norasector/turbine-common/types"
)

// FileSource reads headerless sample streams: little-endian float32 mono
// (f32) or interleaved signed 8-bit IQ (cs8).
type FileSource struct {
	readFile    io.ReadCloser
	format      string
	segmentSize int
	sampleRate  int
	realtime    bool
}

func NewFileSource(r io.ReadCloser, format string, sampleRate, segmentSize int, realtime bool) (*FileSource, error) {
	if format != config.FormatFloat32 && format != config.FormatCS8 {
		return nil, fmt.Errorf("unsupported raw format %q", format)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %d must be positive", sampleRate)
	}
	if segmentSize <= 0 {
		segmentSize = config.DefaultSegmentSize
	}

	return &FileSource{
		readFile:    r,
		format:      format,
		segmentSize: segmentSize,
		sampleRate:  sampleRate,
		realtime:    realtime,
	}, nil
}

func (f *FileSource) SampleRate() int {
	return f.sampleRate
}

func (f *FileSource) Complex() bool {
	return f.format == config.FormatCS8
}

func (f *FileSource) bytesPerSample() int {
	if f.format == config.FormatCS8 {
		return 2
	}
	return 4
}

func (f *FileSource) Start(ctx context.Context, out chan<- *Segment) error {
	p := newPacer(f.realtime, f.segmentSize, f.sampleRate)
	defer p.stop()

	width := f.bytesPerSample()
	buf := make([]byte, f.segmentSize*width)
	segNum := 0

	for {
		if err := p.wait(ctx); err != nil {
			return err
		}

		n, err := io.ReadFull(f.readFile, buf)
		eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !eof {
			return err
		}

		// Trailing partial samples are dropped.
		n -= n % width
		if n > 0 {
			segNum++
			if err := send(ctx, out, f.decode(buf[:n], segNum)); err != nil {
				return err
			}
		}

		if eof {
			return nil
		}
	}
}

func (f *FileSource) decode(data []byte, segNum int) *Segment {
	if f.format == config.FormatCS8 {
		raw := types.SegmentCS8Raw{
			SampleRate: f.sampleRate,
			Data:       make([]byte, len(data)),
		}
		copy(raw.Data, data)

		seg := raw.ToComplex64()
		seg.SegmentNumber = segNum
		return &Segment{Complex: seg}
	}

	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return &Segment{Float: &types.SegmentFloat32{
		SegmentNumber: segNum,
		Data:          samples,
	}}
}

func (f *FileSource) Stop() error {
	return f.readFile.Close()
}
