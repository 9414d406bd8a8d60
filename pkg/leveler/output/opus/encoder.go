// Package opus encodes leveled audio as Opus frames and streams them over UDP.
package opus

import (
	"context"
	"fmt"
	"time"

	"github.com/hraban/opus"
	"github.com/norasector/rmsagc/pkg/leveler/output"
	"github.com/norasector/turbine-common/types"
	"golang.org/x/sync/errgroup"
)

const (
	usPerFrame      = 20e3
	maxEncodedBytes = 4000
	frameQueueLen   = 16
)

// Frame durations Opus accepts, shortest first.
var validUsRates = []int{2.5e3, 5e3, 10e3, 20e3}

var validSampleRates = []int{8000, 12000, 16000, 24000, 48000}

// ValidSampleRate reports whether Opus can encode at rate.
func ValidSampleRate(rate int) bool {
	for _, r := range validSampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

// paddedFrameSize returns the shortest valid frame, in samples, that holds n
// samples at rate, or 0 if n exceeds the longest frame.
func paddedFrameSize(n, rate int) int {
	for _, us := range validUsRates {
		if size := us * rate / 1e6; size >= n {
			return size
		}
	}
	return 0
}

// Output encodes one mono stream in fixed 20ms frames and hands them to a
// UDPSender. The tail of the stream is zero-padded to the shortest valid frame.
type Output struct {
	sampleRate      int
	samplesPerFrame int
	encoder         *opus.Encoder
	sender          *output.UDPSender
	talkGroup       types.TalkGroup

	inBuf         []float32
	encBuf        [maxEncodedBytes]byte
	segmentNumber int

	recvChan chan *types.TaggedAudioSampleFloat32
}

var _ output.AudioOutput = (*Output)(nil)

// NewOutput builds an encoder for sampleRate. Frames are tagged with tg
// unless an incoming segment carries its own talk group.
func NewOutput(sampleRate int, tg types.TalkGroup, sender *output.UDPSender) (*Output, error) {
	if !ValidSampleRate(sampleRate) {
		return nil, fmt.Errorf("opus cannot encode at %d Hz (valid rates: %v)", sampleRate, validSampleRates)
	}

	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	if err := enc.SetPacketLossPerc(20); err != nil {
		return nil, err
	}
	enc.SetBitrateToAuto()

	samplesPerFrame := sampleRate * usPerFrame / 1e6
	return &Output{
		sampleRate:      sampleRate,
		samplesPerFrame: samplesPerFrame,
		encoder:         enc,
		sender:          sender,
		talkGroup:       tg,
		inBuf:           make([]float32, 0, samplesPerFrame*2),
		recvChan:        make(chan *types.TaggedAudioSampleFloat32, 1),
	}, nil
}

func (o *Output) Receive() chan<- *types.TaggedAudioSampleFloat32 {
	return o.recvChan
}

func (o *Output) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	frames := make(chan *types.TaggedAudioFrameOpus, frameQueueLen)

	eg.Go(func() error {
		return o.sender.Run(ctx, frames)
	})

	eg.Go(func() error {
		defer close(frames)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case seg, ok := <-o.recvChan:
				if !ok {
					return o.flushTail(ctx, frames)
				}
				if seg.TalkGroup != nil {
					o.talkGroup = *seg.TalkGroup
				}
				o.inBuf = append(o.inBuf, seg.Audio.Data...)
				if err := o.encodeFull(ctx, frames); err != nil {
					return err
				}
			}
		}
	})

	return eg.Wait()
}

func (o *Output) encodeFull(ctx context.Context, frames chan<- *types.TaggedAudioFrameOpus) error {
	consumed := 0
	for len(o.inBuf)-consumed >= o.samplesPerFrame {
		if err := o.encode(ctx, frames, o.inBuf[consumed:consumed+o.samplesPerFrame]); err != nil {
			return err
		}
		consumed += o.samplesPerFrame
	}

	// Move leftover samples to the beginning of the buffer.
	n := copy(o.inBuf, o.inBuf[consumed:])
	o.inBuf = o.inBuf[:n]
	return nil
}

func (o *Output) flushTail(ctx context.Context, frames chan<- *types.TaggedAudioFrameOpus) error {
	if len(o.inBuf) == 0 {
		return nil
	}
	size := paddedFrameSize(len(o.inBuf), o.sampleRate)
	for len(o.inBuf) < size {
		o.inBuf = append(o.inBuf, 0)
	}
	err := o.encode(ctx, frames, o.inBuf[:size])
	o.inBuf = o.inBuf[:0]
	return err
}

func (o *Output) encode(ctx context.Context, frames chan<- *types.TaggedAudioFrameOpus, pcm []float32) error {
	n, err := o.encoder.EncodeFloat32(pcm, o.encBuf[:])
	if err != nil {
		return fmt.Errorf("error encoding opus frame: %w", err)
	}

	data := make([]byte, n)
	copy(data, o.encBuf[:n])
	tg := o.talkGroup

	select {
	case <-ctx.Done():
		return ctx.Err()
	case frames <- &types.TaggedAudioFrameOpus{
		Audio: &types.SegmentBinaryBytes{
			SegmentNumber: o.segmentNumber,
			Data:          data,
		},
		TalkGroup:                &tg,
		SampleLengthMicroseconds: len(pcm) * 1e6 / o.sampleRate,
		Timestamp:                time.Now().UTC(),
	}:
		o.segmentNumber++
	}
	return nil
}
