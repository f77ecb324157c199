package probeloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"ingest/internal/assetloader"
	"ingest/internal/capability"
	"ingest/internal/conformance"
	"ingest/internal/logging"
)

const probeJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1280, "height": 720, "start_time": "-0.040000"},
    {"index": 1, "codec_name": "opus", "codec_type": "audio", "sample_rate": "48000", "channels": 2, "start_time": "0.000000", "tags": {"language": "eng"}},
    {"index": 2, "codec_name": "aac", "codec_type": "audio", "sample_rate": "44100", "channels": 2}
  ],
  "format": {"filename": "clip.mkv", "nb_streams": 3, "start_time": "-0.040000", "duration": "2.000000", "format_name": "matroska,webm"}
}`

const packetListing = `stream_index=0|pts_time=-0.040000|dts_time=-0.080000|duration_time=0.040000|size=900|flags=K_
stream_index=1|pts_time=0.000000|dts_time=0.000000|duration_time=0.020000|size=120|flags=K_
stream_index=0|pts_time=0.080000|dts_time=-0.040000|duration_time=0.040000|size=300|flags=__
stream_index=2|pts_time=0.000000|dts_time=0.000000|duration_time=0.023000|size=200|flags=K_
stream_index=0|pts_time=0.000000|dts_time=0.000000|duration_time=0.040000|size=200|flags=__
stream_index=1|pts_time=0.020000|dts_time=0.020000|duration_time=0.020000|size=120|flags=K_
stream_index=0|pts_time=0.040000|dts_time=0.040000|duration_time=0.040000|size=200|flags=__
stream_index=1|pts_time=0.040000|dts_time=0.040000|duration_time=0.020000|size=120|flags=K_
`

// writeFakeFFProbe installs a shell script answering both ffprobe modes from
// fixture files and returns its path together with a readable asset path.
func writeFakeFFProbe(t *testing.T, probe, packets string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	probePath := filepath.Join(dir, "probe.json")
	packetsPath := filepath.Join(dir, "packets.txt")
	if err := os.WriteFile(probePath, []byte(probe), 0o644); err != nil {
		t.Fatalf("write probe fixture: %v", err)
	}
	if err := os.WriteFile(packetsPath, []byte(packets), 0o644); err != nil {
		t.Fatalf("write packets fixture: %v", err)
	}
	script := strings.Join([]string{
		"#!/bin/sh",
		`for arg in "$@"; do`,
		`  case "$arg" in`,
		`    -show_streams) cat "` + probePath + `"; exit 0;;`,
		`    -show_entries) cat "` + packetsPath + `"; exit 0;;`,
		"  esac",
		"done",
		"exit 1",
		"",
	}, "\n")
	binary := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffprobe: %v", err)
	}
	asset := filepath.Join(dir, "clip.mkv")
	if err := os.WriteFile(asset, []byte("not really matroska"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	return binary, asset
}

func runLoader(t *testing.T, factory *Factory, asset assetloader.Asset, rec *conformance.Recorder) conformance.Report {
	t.Helper()
	report, err := conformance.Run(context.Background(), factory, asset, rec, conformance.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.TraceErr != nil {
		t.Fatalf("trace: %v", report.TraceErr)
	}
	return report
}

func TestLoaderNegotiatesAndDelivers(t *testing.T) {
	binary, assetPath := writeFakeFFProbe(t, probeJSON, packetListing)
	factory := NewFactory(Options{
		FFProbeBinary: binary,
		LockDir:       t.TempDir(),
		ReorderWindow: 2,
		Logger:        logging.NewNop(),
	})
	rec := conformance.NewRecorder(map[assetloader.TrackType]capability.OutputType{
		assetloader.TrackTypeVideo: capability.Encoded,
	})

	report := runLoader(t, factory, assetloader.Asset{URI: "file://" + assetPath}, rec)
	if report.Err != nil {
		t.Fatalf("unexpected error: %v", report.Err)
	}
	if got := report.Events[0].Duration; got != 2_000_000 {
		t.Fatalf("duration = %d", got)
	}
	if got := report.Events[1].Count; got != 2 {
		t.Fatalf("track count = %d", got)
	}

	video, audio := report.Outcomes[0], report.Outcomes[1]
	if video.Track.Format.Type != assetloader.TrackTypeVideo || video.Output != capability.Encoded {
		t.Fatalf("video outcome = %+v", video)
	}
	if video.Track.OffsetUs != 40_000 || video.Track.StartPositionUs != 0 {
		t.Fatalf("video offset/start = %d/%d", video.Track.OffsetUs, video.Track.StartPositionUs)
	}
	if audio.Output != capability.Decoded || audio.Track.Format.Language != "en" {
		t.Fatalf("audio outcome = %+v", audio)
	}
	if audio.Track.StartPositionUs != 40_000 {
		t.Fatalf("audio start = %d", audio.Track.StartPositionUs)
	}
	if len(report.DecoderNames) != 1 || report.DecoderNames[assetloader.TrackTypeAudio] != "ffmpeg/opus" {
		t.Fatalf("decoder names = %v", report.DecoderNames)
	}

	videoSamples := rec.Sink(assetloader.TrackTypeVideo).Samples()
	wantVideo := []int64{0, 40_000, 80_000, 120_000}
	if len(videoSamples) != len(wantVideo) {
		t.Fatalf("expected %d video samples, got %d", len(wantVideo), len(videoSamples))
	}
	for i, want := range wantVideo {
		if videoSamples[i].TimeUs != want {
			t.Fatalf("video sample %d at %d, want %d", i, videoSamples[i].TimeUs, want)
		}
	}
	if !videoSamples[0].KeyFrame || videoSamples[0].Size != 900 {
		t.Fatalf("first video sample = %+v", videoSamples[0])
	}

	audioSamples := rec.Sink(assetloader.TrackTypeAudio).Samples()
	if len(audioSamples) != 3 || audioSamples[0].TimeUs != 40_000 || audioSamples[0].Output != capability.Decoded {
		t.Fatalf("audio samples = %+v", audioSamples)
	}
	if n := len(report.Progress); n == 0 || report.Progress[n-1] != 100 {
		t.Fatalf("final progress = %v", report.Progress)
	}
}

func TestLoaderHonorsRemoveAudio(t *testing.T) {
	binary, assetPath := writeFakeFFProbe(t, probeJSON, packetListing)
	factory := NewFactory(Options{FFProbeBinary: binary, Logger: logging.NewNop()})
	rec := conformance.NewRecorder(nil)

	report := runLoader(t, factory, assetloader.Asset{URI: assetPath, RemoveAudio: true}, rec)
	if report.Err != nil {
		t.Fatalf("unexpected error: %v", report.Err)
	}
	if got := report.Events[1].Count; got != 1 {
		t.Fatalf("track count = %d, want 1", got)
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].Track.Format.Type != assetloader.TrackTypeVideo {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	// h264 advertises both; no preference picks decoded.
	if report.Outcomes[0].Output != capability.Decoded {
		t.Fatalf("video output = %s", report.Outcomes[0].Output)
	}
}

func TestLoaderMissingAssetIsSourceRead(t *testing.T) {
	binary, _ := writeFakeFFProbe(t, probeJSON, packetListing)
	factory := NewFactory(Options{FFProbeBinary: binary, Logger: logging.NewNop()})
	rec := conformance.NewRecorder(nil)

	report := runLoader(t, factory, assetloader.Asset{URI: filepath.Join(t.TempDir(), "missing.mkv")}, rec)
	if report.Err == nil || report.Err.Kind != assetloader.KindSourceRead {
		t.Fatalf("expected source read error, got %v", report.Err)
	}
	if len(report.Events) != 1 {
		t.Fatalf("expected only the error event, got %d events", len(report.Events))
	}
}

func TestLoaderNoStreamsFailsAfterDuration(t *testing.T) {
	probe := `{"streams":[{"index":0,"codec_type":"subtitle","codec_name":"subrip"}],"format":{"duration":"N/A"}}`
	binary, assetPath := writeFakeFFProbe(t, probe, "")
	factory := NewFactory(Options{FFProbeBinary: binary, Logger: logging.NewNop()})
	rec := conformance.NewRecorder(nil)

	report := runLoader(t, factory, assetloader.Asset{URI: assetPath}, rec)
	if report.Err == nil || report.Err.Kind != assetloader.KindSourceRead {
		t.Fatalf("expected source read error, got %v", report.Err)
	}
	if report.Events[0].Kind != conformance.EventDuration || report.Events[0].Duration != assetloader.DurationUnknown {
		t.Fatalf("expected unknown duration first, got %+v", report.Events[0])
	}
}

func TestLoaderLockBusy(t *testing.T) {
	binary, assetPath := writeFakeFFProbe(t, probeJSON, packetListing)
	lockDir := t.TempDir()
	held := flock.New(lockPathFor(lockDir, assetPath))
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("pre-lock: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	factory := NewFactory(Options{FFProbeBinary: binary, LockDir: lockDir, Logger: logging.NewNop()})
	rec := conformance.NewRecorder(nil)
	report := runLoader(t, factory, assetloader.Asset{URI: assetPath}, rec)
	if report.Err == nil || !errors.Is(report.Err, ErrAssetBusy) {
		t.Fatalf("expected busy error, got %v", report.Err)
	}
	if !errors.Is(report.Err, assetloader.ErrSourceRead) {
		t.Fatalf("busy asset should classify as source read: %v", report.Err)
	}
}

func TestLoaderReleasesLock(t *testing.T) {
	binary, assetPath := writeFakeFFProbe(t, probeJSON, packetListing)
	lockDir := t.TempDir()
	factory := NewFactory(Options{FFProbeBinary: binary, LockDir: lockDir, Logger: logging.NewNop()})

	report := runLoader(t, factory, assetloader.Asset{URI: assetPath}, conformance.NewRecorder(nil))
	if report.Err != nil {
		t.Fatalf("unexpected error: %v", report.Err)
	}

	// Run releases the loader before returning, so the lock is free again.
	probe := flock.New(lockPathFor(lockDir, assetPath))
	ok, err := probe.TryLock()
	if err != nil || !ok {
		t.Fatalf("lock still held after release: ok=%v err=%v", ok, err)
	}
	_ = probe.Unlock()
}

func TestNewLoaderRejectsEmptyURI(t *testing.T) {
	factory := NewFactory(Options{})
	if _, err := factory.NewLoader(context.Background(), assetloader.Asset{URI: "  "}, conformance.NewRecorder(nil)); err == nil {
		t.Fatalf("expected error for empty uri")
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		uri   string
		path  string
		local bool
	}{
		{"/media/clip.mkv", "/media/clip.mkv", true},
		{"file:///media/clip.mkv", "/media/clip.mkv", true},
		{"https://example.com/live.m3u8", "https://example.com/live.m3u8", false},
	}
	for _, tt := range tests {
		path, local := resolvePath(tt.uri)
		if path != tt.path || local != tt.local {
			t.Fatalf("resolvePath(%q) = %q,%v", tt.uri, path, local)
		}
	}
}
