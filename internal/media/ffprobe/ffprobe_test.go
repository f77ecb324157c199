package ffprobe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{Index: 0, CodecType: "video", StartTime: "0.080000"},
			{Index: 1, CodecType: "audio", SampleRate: "48000", Tags: map[string]string{"LANGUAGE": "eng"}},
			{Index: 2, CodecType: "audio", StartTime: "N/A"},
		},
		Format: Format{
			StartTime: "0.080000",
			Duration:  "123.45",
			Size:      "1000",
			BitRate:   "32000",
		},
	}
	if got := len(result.StreamsOfType("VIDEO")); got != 1 {
		t.Fatalf("expected 1 video stream, got %d", got)
	}
	if got := len(result.StreamsOfType("audio")); got != 2 {
		t.Fatalf("expected 2 audio streams, got %d", got)
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.StartSeconds() != 0.08 {
		t.Fatalf("unexpected start: %v", result.StartSeconds())
	}
	if result.BitRate() != 32000 {
		t.Fatalf("unexpected bitrate: %d", result.BitRate())
	}
	audio := result.StreamsOfType("audio")
	if audio[0].Language() != "eng" || audio[0].SampleRateHz() != 48000 {
		t.Fatalf("unexpected audio helpers: %q %d", audio[0].Language(), audio[0].SampleRateHz())
	}
	if audio[1].StartSeconds() != 0 {
		t.Fatalf("N/A start should be 0, got %v", audio[1].StartSeconds())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
			BitRate:  "nope",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.BitRate() != 0 {
		t.Fatalf("expected bitrate 0, got %d", result.BitRate())
	}
}

func TestInspectParsesOutput(t *testing.T) {
	var capturedArgs []string
	stubCommand(t, "inspect", &capturedArgs)

	result, err := Inspect(context.Background(), "", "/media/clip.mkv")
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if len(result.Streams) != 2 || result.Streams[1].CodecName != "opus" {
		t.Fatalf("unexpected streams: %+v", result.Streams)
	}
	if result.DurationSeconds() != 120 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.Format.FormatName != "matroska,webm" {
		t.Fatalf("unexpected format: %q", result.Format.FormatName)
	}
	joined := strings.Join(capturedArgs, " ")
	if !strings.Contains(joined, "-show_streams") || !strings.HasSuffix(joined, "-- /media/clip.mkv") {
		t.Fatalf("unexpected args: %v", capturedArgs)
	}
}

func TestInspectReportsFailure(t *testing.T) {
	stubCommand(t, "failure", nil)
	_, err := Inspect(context.Background(), "ffprobe", "/media/missing.mkv")
	if err == nil || !strings.Contains(err.Error(), "No such file") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestInspectRejectsEmptyPath(t *testing.T) {
	if _, err := Inspect(context.Background(), "", "  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestReadPackets(t *testing.T) {
	var capturedArgs []string
	stubCommand(t, "packets", &capturedArgs)

	var packets []Packet
	err := ReadPackets(context.Background(), "", "/media/clip.mkv", PacketOptions{WithData: true}, func(pkt Packet) error {
		packets = append(packets, pkt)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadPackets returned error: %v", err)
	}
	if len(packets) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(packets))
	}
	if !packets[0].KeyFrame || packets[0].StreamIndex != 0 || packets[0].PTS != 0.08 {
		t.Fatalf("unexpected first packet: %+v", packets[0])
	}
	if !bytes.Equal(packets[0].Data, []byte{0, 0, 0, 1, 0x09, 0x10}) {
		t.Fatalf("unexpected payload: %x", packets[0].Data)
	}
	if packets[2].HasPTS {
		t.Fatalf("N/A pts should not be set: %+v", packets[2])
	}
	if !strings.Contains(strings.Join(capturedArgs, " "), "-show_data") {
		t.Fatalf("expected -show_data in args: %v", capturedArgs)
	}
}

func TestReadPacketsStopsEarly(t *testing.T) {
	stubCommand(t, "packets", nil)
	count := 0
	err := ReadPackets(context.Background(), "", "/media/clip.mkv", PacketOptions{}, func(Packet) error {
		count++
		return ErrStop
	})
	if err != nil {
		t.Fatalf("ErrStop should end without error, got %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one callback, got %d", count)
	}

	boom := errors.New("consumer failed")
	err = ReadPackets(context.Background(), "", "/media/clip.mkv", PacketOptions{}, func(Packet) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestReadPacketsFiltersStreams(t *testing.T) {
	stubCommand(t, "packets", nil)
	var indexes []int
	err := ReadPackets(context.Background(), "", "/media/clip.mkv", PacketOptions{Streams: []int{0, 5}}, func(pkt Packet) error {
		indexes = append(indexes, pkt.StreamIndex)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadPackets returned error: %v", err)
	}
	if len(indexes) != 2 || indexes[0] != 0 || indexes[1] != 0 {
		t.Fatalf("unexpected stream indexes: %v", indexes)
	}
}

func TestParsePacketLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Packet
		wantErr bool
	}{
		{
			line: "stream_index=1|pts_time=0.020000|dts_time=0.020000|duration_time=0.020000|size=120|flags=__",
			want: Packet{StreamIndex: 1, PTS: 0.02, HasPTS: true, DTS: 0.02, DurationTime: 0.02, Size: 120},
		},
		{
			line: "stream_index=0|pts_time=N/A|dts_time=N/A|duration_time=N/A|size=7|flags=K_",
			want: Packet{StreamIndex: 0, Size: 7, KeyFrame: true},
		},
		{line: "pts_time=0.1|size=3", wantErr: true},
		{line: "stream_index=x|size=3", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePacketLine(tt.line)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParsePacketLine(%q) error = %v", tt.line, err)
		}
		if !tt.wantErr && (got.StreamIndex != tt.want.StreamIndex || got.PTS != tt.want.PTS || got.HasPTS != tt.want.HasPTS ||
			got.DurationTime != tt.want.DurationTime || got.Size != tt.want.Size || got.KeyFrame != tt.want.KeyFrame) {
			t.Fatalf("ParsePacketLine(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestDecodeHexDump(t *testing.T) {
	dump := "00000000: 0001 0203 0405 0607 0809 0a0b 0c0d 0e0f  ................\n" +
		"00000010: 1011                                     ..\n"
	data, err := decodeHexDump(dump)
	if err != nil {
		t.Fatalf("decodeHexDump: %v", err)
	}
	if len(data) != 18 || data[17] != 0x11 {
		t.Fatalf("unexpected data: %x", data)
	}
}

func stubCommand(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string(nil), args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFPROBE_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("FFPROBE_HELPER_MODE") {
	case "inspect":
		fmt.Println(`{"streams":[{"index":0,"codec_name":"h264","codec_type":"video","width":1280,"height":720},` +
			`{"index":1,"codec_name":"opus","codec_type":"audio","sample_rate":"48000","channels":2}],` +
			`"format":{"filename":"/media/clip.mkv","nb_streams":2,"duration":"120.000000","format_name":"matroska,webm"}}`)
		os.Exit(0)
	case "packets":
		fmt.Println(`stream_index=0|pts_time=0.080000|dts_time=0.000000|duration_time=0.040000|size=6|flags=K_|data=\n00000000: 0000 0001 0910                           ......\n`)
		fmt.Println(`stream_index=1|pts_time=0.000000|dts_time=0.000000|duration_time=0.020000|size=3|flags=K_`)
		fmt.Println(`stream_index=0|pts_time=N/A|dts_time=0.040000|duration_time=0.040000|size=4|flags=__`)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "/media/missing.mkv: No such file or directory")
		os.Exit(1)
	}
	os.Exit(2)
}
