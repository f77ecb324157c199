package rtpsink

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"ingest/internal/assetloader"
	"ingest/internal/capability"
	"ingest/internal/logging"
)

const (
	defaultMTU       = 1200
	rtpHeaderSize    = 12
	maxFramedPacket  = 0xFFFF
	videoClockRate   = 90000
	opusClockRate    = 48000
	dynamicVideoType = 96
	dynamicOpusType  = 111
)

// ErrUnsupportedCodec reports a codec without an RTP payloader.
var ErrUnsupportedCodec = errors.New("rtpsink: unsupported codec")

// Options configures a Sink.
type Options struct {
	Codec string
	// PayloadType defaults to a dynamic type for the codec.
	PayloadType uint8
	// SSRC defaults to a random value.
	SSRC   uint32
	MTU    int
	Logger *slog.Logger
}

// Stats counts what a Sink has written.
type Stats struct {
	Samples int
	Skipped int
	Packets int
	Bytes   int64
	Ended   bool
}

type codecInfo struct {
	newPayloader func() rtp.Payloader
	clockRate    uint32
	payloadType  uint8
	annexB       bool
}

var codecTable = map[string]codecInfo{
	"h264": {newPayloader: func() rtp.Payloader { return &codecs.H264Payloader{} }, clockRate: videoClockRate, payloadType: dynamicVideoType, annexB: true},
	"vp8":  {newPayloader: func() rtp.Payloader { return &codecs.VP8Payloader{} }, clockRate: videoClockRate, payloadType: dynamicVideoType},
	"vp9":  {newPayloader: func() rtp.Payloader { return &codecs.VP9Payloader{} }, clockRate: videoClockRate, payloadType: dynamicVideoType},
	"av1":  {newPayloader: func() rtp.Payloader { return &codecs.AV1Payloader{} }, clockRate: videoClockRate, payloadType: dynamicVideoType},
	"opus": {newPayloader: func() rtp.Payloader { return &codecs.OpusPayloader{} }, clockRate: opusClockRate, payloadType: dynamicOpusType},
}

// Supports reports whether codec can be packetized.
func Supports(codec string) bool {
	_, ok := codecTable[strings.ToLower(strings.TrimSpace(codec))]
	return ok
}

// Sink is a SampleConsumer that requires ENCODED samples and writes them as
// RTP packets, each framed with a two-byte big-endian length (RFC 4571).
type Sink struct {
	w           io.Writer
	codec       string
	info        codecInfo
	payloader   rtp.Payloader
	sequencer   rtp.Sequencer
	payloadType uint8
	ssrc        uint32
	mtu         int
	logger      *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New returns a Sink writing to w.
func New(w io.Writer, opts Options) (*Sink, error) {
	if w == nil {
		return nil, errors.New("rtpsink: nil writer")
	}
	codec := strings.ToLower(strings.TrimSpace(opts.Codec))
	info, ok := codecTable[codec]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, opts.Codec)
	}
	mtu := opts.MTU
	if mtu <= rtpHeaderSize {
		mtu = defaultMTU
	}
	payloadType := opts.PayloadType
	if payloadType == 0 {
		payloadType = info.payloadType
	}
	ssrc := opts.SSRC
	if ssrc == 0 {
		ssrc = rand.Uint32()
	}
	return &Sink{
		w:           w,
		codec:       codec,
		info:        info,
		payloader:   info.newPayloader(),
		sequencer:   rtp.NewRandomSequencer(),
		payloadType: payloadType,
		ssrc:        ssrc,
		mtu:         mtu,
		logger:      logging.NewComponentLogger(opts.Logger, "rtp_sink").With(logging.String("codec", codec)),
	}, nil
}

// ExpectedOutput implements assetloader.SampleConsumer.
func (s *Sink) ExpectedOutput() capability.OutputType {
	return capability.Encoded
}

// QueueSample packetizes one access unit. Samples without payload data are
// counted and skipped.
func (s *Sink) QueueSample(ctx context.Context, sample assetloader.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stats.Ended {
		return errors.New("rtpsink: sample after end of stream")
	}
	if sample.Output != capability.NoPreference && sample.Output != capability.Encoded {
		return fmt.Errorf("rtpsink: %s samples are not packetizable", sample.Output)
	}
	s.stats.Samples++
	data := sample.Data
	if len(data) == 0 {
		s.stats.Skipped++
		return nil
	}
	if s.info.annexB {
		data = toAnnexB(data)
	}

	timestamp := uint32(uint64(sample.TimeUs) * uint64(s.info.clockRate) / 1_000_000)
	payloads := s.payloader.Payload(uint16(s.mtu-rtpHeaderSize), data)
	for i, payload := range payloads {
		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    s.payloadType,
				SequenceNumber: s.sequencer.NextSequenceNumber(),
				Timestamp:      timestamp,
				SSRC:           s.ssrc,
			},
			Payload: payload,
		}
		raw, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("rtpsink: marshal packet: %w", err)
		}
		if err := s.writeFramed(raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) writeFramed(raw []byte) error {
	if len(raw) > maxFramedPacket {
		return fmt.Errorf("rtpsink: packet of %d bytes exceeds framing limit", len(raw))
	}
	frame := make([]byte, 2+len(raw))
	binary.BigEndian.PutUint16(frame, uint16(len(raw)))
	copy(frame[2:], raw)
	n, err := s.w.Write(frame)
	s.stats.Bytes += int64(n)
	if err != nil {
		return fmt.Errorf("rtpsink: write: %w", err)
	}
	s.stats.Packets++
	return nil
}

// EndOfStream implements assetloader.SampleConsumer.
func (s *Sink) EndOfStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats.Ended {
		return nil
	}
	s.stats.Ended = true
	s.logger.Debug("rtp stream ended",
		logging.Int("samples", s.stats.Samples),
		logging.Int("skipped", s.stats.Skipped),
		logging.Int("packets", s.stats.Packets),
		logging.Int64("bytes", s.stats.Bytes),
	)
	return nil
}

// Stats returns a snapshot of the sink counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

var _ assetloader.SampleConsumer = (*Sink)(nil)

// toAnnexB converts length-prefixed (AVCC) H.264 access units to start-code
// form. Data that does not parse as 4-byte length prefixed NAL units is
// assumed to be start-code form already and returned unchanged.
func toAnnexB(data []byte) []byte {
	out := make([]byte, 0, len(data)+16)
	for rest := data; len(rest) > 0; {
		if len(rest) < 4 {
			return data
		}
		size := int(binary.BigEndian.Uint32(rest))
		rest = rest[4:]
		if size == 0 || size > len(rest) {
			return data
		}
		out = append(out, 0, 0, 0, 1)
		out = append(out, rest[:size]...)
		rest = rest[size:]
	}
	return out
}
