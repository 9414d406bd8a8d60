package output

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/norasector/turbine-common/types"
)

const (
	sampleBufferLength = 8
	rawFlushInterval   = time.Second
)

// RawOutput writes samples as little-endian float32, batching up to
// sampleBufferLength segments per write.
type RawOutput struct {
	dest     io.Writer
	recvChan chan *types.TaggedAudioSampleFloat32
}

func NewRawOutput(dest io.Writer) *RawOutput {
	return &RawOutput{
		dest:     dest,
		recvChan: make(chan *types.TaggedAudioSampleFloat32, sampleBufferLength),
	}
}

func (s *RawOutput) Receive() chan<- *types.TaggedAudioSampleFloat32 {
	return s.recvChan
}

func (s *RawOutput) Start(ctx context.Context) error {
	var b bytes.Buffer
	bufNum := 0

	flush := func() error {
		if bufNum == 0 {
			return nil
		}
		bufNum = 0
		_, err := b.WriteTo(s.dest)
		return err
	}

	ticker := time.NewTicker(rawFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}

		case ts, ok := <-s.recvChan:
			if !ok {
				return flush()
			}

			if err := binary.Write(&b, binary.LittleEndian, ts.Audio.Data); err != nil {
				return err
			}

			bufNum++
			if bufNum == sampleBufferLength {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}
