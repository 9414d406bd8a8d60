package output

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rmsagc/pkg/leveler/config"
	"github.com/norasector/turbine-common/types"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"
)

// EncodeFrame marshals frame as protobuf prefixed with its little-endian
// uint16 length.
func EncodeFrame(frame *types.TaggedAudioFrameOpus) ([]byte, error) {
	encoded, err := proto.Marshal(frame.ToProtobuf())
	if err != nil {
		return nil, fmt.Errorf("error marshaling protobuf: %w", err)
	}
	if len(encoded) > math.MaxUint16 {
		return nil, fmt.Errorf("encoded frame too large: %d bytes", len(encoded))
	}

	var msgBuf bytes.Buffer
	msgBuf.Grow(len(encoded) + 2)
	if err := binary.Write(&msgBuf, binary.LittleEndian, uint16(len(encoded))); err != nil {
		return nil, err
	}
	msgBuf.Write(encoded)
	return msgBuf.Bytes(), nil
}

// ResolveDestinations looks up every destination host.
func ResolveDestinations(dests []config.OutputDestination) ([]*net.UDPAddr, error) {
	ret := make([]*net.UDPAddr, 0, len(dests))
	for _, dest := range dests {
		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no IPs returned for %s", dest.Host)
		}
		ret = append(ret, &net.UDPAddr{IP: ips[0], Port: dest.Port})
	}
	return ret, nil
}

// UDPSender sends encoded frames to a fixed set of destinations.
type UDPSender struct {
	dests   []*net.UDPAddr
	metrics api.WriteAPI
	logger  zerolog.Logger
}

func NewUDPSender(dests []*net.UDPAddr, metrics api.WriteAPI, logger zerolog.Logger) *UDPSender {
	return &UDPSender{
		dests:   dests,
		metrics: metrics,
		logger:  logger,
	}
}

// Run sends every frame received on frames. It returns nil once frames is
// closed. Send failures are logged and counted, not returned.
func (s *UDPSender) Run(ctx context.Context, frames <-chan *types.TaggedAudioFrameOpus) error {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, dest := range s.dests {
		s.logger.Info().IPAddr("dest_ip", dest.IP).Int("port", dest.Port).Msg("stream output starting")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			s.send(conn, frame)
		}
	}
}

func (s *UDPSender) send(conn *net.UDPConn, frame *types.TaggedAudioFrameOpus) {
	msg, err := EncodeFrame(frame)
	if err != nil {
		s.logger.Warn().Err(err).Msg("error encoding frame")
		return
	}

	sent, dropped, bytesWritten := 0, 0, 0
	for _, dest := range s.dests {
		n, err := conn.WriteToUDP(msg, dest)
		if err != nil {
			s.logger.Error().Err(err).Str("dest", dest.String()).Msg("error writing")
			dropped++
			continue
		}
		sent++
		bytesWritten += n
	}

	s.metrics.WritePoint(influxdb2.NewPoint("opus.sent_frame",
		map[string]string{
			"system_id": strconv.Itoa(frame.TalkGroup.SystemID),
			"stream_id": strconv.Itoa(frame.TalkGroup.ID),
		},
		map[string]interface{}{
			"bytes_written":  bytesWritten,
			"frame_length":   len(frame.Audio.Data),
			"encoded_length": len(msg),
			"sent":           sent,
			"dropped":        dropped,
		}, time.Now()))
}
