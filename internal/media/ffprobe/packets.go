package ffprobe

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Packet is one demuxed packet as listed by ffprobe -show_packets.
type Packet struct {
	StreamIndex int
	// PTS and DTS are in seconds. HasPTS is false when ffprobe printed N/A.
	PTS          float64
	HasPTS       bool
	DTS          float64
	DurationTime float64
	Size         int
	KeyFrame     bool
	Data         []byte
}

// PacketOptions tunes ReadPackets.
type PacketOptions struct {
	// WithData asks ffprobe for packet payloads. Without it packets carry
	// only timing and size.
	WithData bool
	// Streams limits the listing to the given stream indexes.
	Streams []int
}

// ErrStop can be returned from a ReadPackets callback to end the listing
// early without an error.
var ErrStop = errors.New("ffprobe: stop reading packets")

// ReadPackets runs ffprobe in packet listing mode and calls fn for every
// packet in demux order. The listing stops at the first error returned by fn.
func ReadPackets(ctx context.Context, binary, path string, opts PacketOptions, fn func(Packet) error) error {
	binary = resolveBinary(binary)
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("ffprobe packets: empty path")
	}

	entries := "packet=stream_index,pts_time,dts_time,duration_time,size,flags"
	if opts.WithData {
		entries += ",data"
	}
	args := []string{"-v", "error", "-hide_banner", "-show_entries", entries, "-of", "compact=p=0"}
	if opts.WithData {
		args = append(args, "-show_data")
	}
	if len(opts.Streams) == 1 {
		args = append(args, "-select_streams", strconv.Itoa(opts.Streams[0]))
	}
	args = append(args, "--", path)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffprobe packets: stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffprobe packets: start: %w", err)
	}

	allowed := make(map[int]struct{}, len(opts.Streams))
	for _, index := range opts.Streams {
		allowed[index] = struct{}{}
	}

	readErr := scanPackets(stdout, func(pkt Packet) error {
		if len(allowed) > 0 {
			if _, ok := allowed[pkt.StreamIndex]; !ok {
				return nil
			}
		}
		return fn(pkt)
	})
	if readErr != nil {
		cancel()
		_, _ = io.Copy(io.Discard, stdout)
		_ = cmd.Wait()
		if errors.Is(readErr, ErrStop) {
			return nil
		}
		return readErr
	}
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ffprobe packets: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func scanPackets(r io.Reader, fn func(Packet) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		pkt, err := ParsePacketLine(line)
		if err != nil {
			return err
		}
		if err := fn(pkt); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ffprobe packets: read: %w", err)
	}
	return nil
}

// ParsePacketLine parses one compact-format packet line such as
// "stream_index=0|pts_time=0.040000|dts_time=0.000000|duration_time=0.040000|size=1234|flags=K__".
func ParsePacketLine(line string) (Packet, error) {
	var pkt Packet
	seenIndex := false
	for _, field := range splitCompact(line) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "stream_index":
			index, err := strconv.Atoi(value)
			if err != nil {
				return Packet{}, fmt.Errorf("ffprobe packets: stream_index %q: %w", value, err)
			}
			pkt.StreamIndex = index
			seenIndex = true
		case "pts_time":
			if parsed, err := strconv.ParseFloat(value, 64); err == nil {
				pkt.PTS = parsed
				pkt.HasPTS = true
			}
		case "dts_time":
			pkt.DTS = finiteOrZero(parseFloat(value))
		case "duration_time":
			pkt.DurationTime = finiteOrZero(parseFloat(value))
		case "size":
			size, err := strconv.Atoi(value)
			if err != nil {
				return Packet{}, fmt.Errorf("ffprobe packets: size %q: %w", value, err)
			}
			pkt.Size = size
		case "flags":
			pkt.KeyFrame = strings.HasPrefix(value, "K")
		case "data":
			data, err := decodeHexDump(unescapeCompact(value))
			if err != nil {
				return Packet{}, err
			}
			pkt.Data = data
		}
	}
	if !seenIndex {
		return Packet{}, fmt.Errorf("ffprobe packets: line without stream_index: %q", line)
	}
	return pkt, nil
}

// splitCompact splits on unescaped '|' separators.
func splitCompact(line string) []string {
	var (
		fields []string
		b      strings.Builder
	)
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			b.WriteRune('\\')
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '|':
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(fields, b.String())
}

func unescapeCompact(value string) string {
	replacer := strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\|`, "|", `\\`, `\`)
	return replacer.Replace(value)
}

// decodeHexDump parses ffprobe's data dump format:
// "00000000: 0000 0001 0910 ...  ascii". Only the hex column is read.
func decodeHexDump(dump string) ([]byte, error) {
	var out []byte
	for _, line := range strings.Split(dump, "\n") {
		_, rest, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		if len(rest) > 40 {
			rest = rest[:40]
		}
		chunk, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(rest), " ", ""))
		if err != nil {
			return nil, fmt.Errorf("ffprobe packets: data dump: %w", err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}
