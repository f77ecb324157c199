package rtpsink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtp"
)

// ReadPackets parses an RFC 4571 framed stream as written by Sink and calls
// fn for every packet.
func ReadPackets(r io.Reader, fn func(*rtp.Packet) error) error {
	var prefix [2]byte
	for {
		if _, err := io.ReadFull(r, prefix[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("rtpsink: read length: %w", err)
		}
		raw := make([]byte, binary.BigEndian.Uint16(prefix[:]))
		if _, err := io.ReadFull(r, raw); err != nil {
			return fmt.Errorf("rtpsink: read packet: %w", err)
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(raw); err != nil {
			return fmt.Errorf("rtpsink: unmarshal packet: %w", err)
		}
		if err := fn(pkt); err != nil {
			return err
		}
	}
}
