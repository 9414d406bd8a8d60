package output

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/norasector/rmsagc/pkg/leveler/config"
	"github.com/norasector/rmsagc/pkg/util"
	"github.com/norasector/turbine-common/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func tagged(samples ...float32) *types.TaggedAudioSampleFloat32 {
	return &types.TaggedAudioSampleFloat32{
		TalkGroup: &types.TalkGroup{SystemID: 1, ID: 2},
		Audio:     &types.SegmentFloat32{Data: samples},
	}
}

func runOutput(t *testing.T, o AudioOutput, segs ...*types.TaggedAudioSampleFloat32) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- o.Start(context.Background()) }()

	for _, s := range segs {
		o.Receive() <- s
	}
	close(o.Receive())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("output did not finish")
	}
}

func TestRawOutput(t *testing.T) {
	var b bytes.Buffer
	o := NewRawOutput(&b)

	var segs []*types.TaggedAudioSampleFloat32
	var want []float32
	for i := 0; i < sampleBufferLength+3; i++ {
		segs = append(segs, tagged(float32(i), -float32(i)))
		want = append(want, float32(i), -float32(i))
	}
	runOutput(t, o, segs...)

	got := make([]float32, b.Len()/4)
	require.NoError(t, binary.Read(&b, binary.LittleEndian, got))
	assert.Equal(t, want, got)
}

func TestRawOutputCancel(t *testing.T) {
	o := NewRawOutput(&bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, o.Start(ctx), context.Canceled)
}

func TestToPCM16(t *testing.T) {
	assert.Equal(t, 0, toPCM16(0))
	assert.Equal(t, math.MaxInt16, toPCM16(1))
	assert.Equal(t, math.MaxInt16, toPCM16(4))
	assert.Equal(t, -math.MaxInt16, toPCM16(-4))
	assert.Equal(t, 0, toPCM16(float32(math.NaN())))
	assert.Equal(t, 16384, toPCM16(0.5))
}

func TestWAVOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	runOutput(t, NewWAVOutput(f, 8000), tagged(0.5, -0.5), tagged(2, 0))
	require.NoError(t, f.Close())

	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()

	dec := wav.NewDecoder(r)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 8000, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, []int{16384, -16384, math.MaxInt16, 0}, buf.Data)
}

func TestWAVOutputEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	runOutput(t, NewWAVOutput(f, 16000))
	require.NoError(t, f.Close())

	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, wav.NewDecoder(r).IsValidFile())
}

func testFrame() *types.TaggedAudioFrameOpus {
	return &types.TaggedAudioFrameOpus{
		Audio: &types.SegmentBinaryBytes{
			SegmentNumber: 7,
			Data:          []byte{1, 2, 3, 4},
		},
		TalkGroup:                &types.TalkGroup{SystemID: 3, ID: 9},
		SampleLengthMicroseconds: 20000,
		Timestamp:                time.Unix(1600000000, 0).UTC(),
	}
}

func TestEncodeFrame(t *testing.T) {
	msg, err := EncodeFrame(testFrame())
	require.NoError(t, err)
	require.Greater(t, len(msg), 2)

	length := binary.LittleEndian.Uint16(msg[:2])
	assert.Equal(t, len(msg)-2, int(length))

	encoded, err := proto.Marshal(testFrame().ToProtobuf())
	require.NoError(t, err)
	assert.Equal(t, encoded, msg[2:])
}

func TestUDPSender(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	dests, err := ResolveDestinations([]config.OutputDestination{{
		Host: "127.0.0.1",
		Port: listener.LocalAddr().(*net.UDPAddr).Port,
	}})
	require.NoError(t, err)

	metrics := &util.RecordingWriteAPI{}
	sender := NewUDPSender(dests, metrics, zerolog.Nop())

	frames := make(chan *types.TaggedAudioFrameOpus, 1)
	frames <- testFrame()
	close(frames)
	require.NoError(t, sender.Run(context.Background(), frames))

	want, err := EncodeFrame(testFrame())
	require.NoError(t, err)

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, want, buf[:n])

	points := metrics.Points("opus.sent_frame")
	require.Len(t, points, 1)
}
