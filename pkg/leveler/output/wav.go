package output

import (
	"context"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/norasector/turbine-common/types"
)

const (
	wavBitDepth  = 16
	wavPCMFormat = 1
)

// WAVOutput writes 16-bit mono PCM. Samples are clipped to [-1, 1].
type WAVOutput struct {
	dest       io.WriteSeeker
	encoder    *wav.Encoder
	sampleRate int
	recvChan   chan *types.TaggedAudioSampleFloat32
	intBuf     *audio.IntBuffer
	wrote      bool
}

func NewWAVOutput(dest io.WriteSeeker, sampleRate int) *WAVOutput {
	return &WAVOutput{
		dest:       dest,
		encoder:    wav.NewEncoder(dest, sampleRate, wavBitDepth, 1, wavPCMFormat),
		sampleRate: sampleRate,
		recvChan:   make(chan *types.TaggedAudioSampleFloat32, sampleBufferLength),
		intBuf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
			SourceBitDepth: wavBitDepth,
		},
	}
}

func (o *WAVOutput) Receive() chan<- *types.TaggedAudioSampleFloat32 {
	return o.recvChan
}

func toPCM16(s float32) int {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		v = 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int(math.Round(v * math.MaxInt16))
}

// Start writes the WAV header on the first segment and finalizes it when the
// stream ends. A cancelled stream leaves the header unfinalized.
func (o *WAVOutput) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ts, ok := <-o.recvChan:
			if !ok {
				if !o.wrote {
					// Forces the header out for an empty stream.
					o.intBuf.Data = o.intBuf.Data[:0]
					if err := o.encoder.Write(o.intBuf); err != nil {
						return err
					}
				}
				return o.encoder.Close()
			}

			if cap(o.intBuf.Data) < len(ts.Audio.Data) {
				o.intBuf.Data = make([]int, len(ts.Audio.Data))
			}
			o.intBuf.Data = o.intBuf.Data[:len(ts.Audio.Data)]
			for i, s := range ts.Audio.Data {
				o.intBuf.Data[i] = toPCM16(s)
			}
			if err := o.encoder.Write(o.intBuf); err != nil {
				return err
			}
			o.wrote = true
		}
	}
}
