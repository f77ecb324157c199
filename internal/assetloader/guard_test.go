package assetloader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ingest/internal/capability"
)

type stubListener struct {
	mu        sync.Mutex
	durations []Duration
	counts    []int
	tracks    []Track
	errs      []*Error
	consumer  func(Track) (SampleConsumer, error)
}

func (l *stubListener) OnDuration(d Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.durations = append(l.durations, d)
}

func (l *stubListener) OnTrackCount(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts = append(l.counts, n)
}

func (l *stubListener) OnTrackAdded(track Track) (SampleConsumer, error) {
	l.mu.Lock()
	l.tracks = append(l.tracks, track)
	fn := l.consumer
	l.mu.Unlock()
	if fn != nil {
		return fn(track)
	}
	return &stubConsumer{}, nil
}

func (l *stubListener) OnError(err *Error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

type stubConsumer struct {
	want    capability.OutputType
	samples []Sample
	ended   bool
}

func (c *stubConsumer) ExpectedOutput() capability.OutputType { return c.want }

func (c *stubConsumer) QueueSample(_ context.Context, s Sample) error {
	c.samples = append(c.samples, s)
	return nil
}

func (c *stubConsumer) EndOfStream() error {
	c.ended = true
	return nil
}

func track(t TrackType, supported ...capability.OutputType) Track {
	return Track{Index: int(t), Format: Format{Type: t}, Supported: capability.NewSet(supported...)}
}

func activeGuard(t *testing.T, listener *stubListener, tracks ...Track) (*Guard, []Negotiation) {
	t.Helper()
	g := NewGuard(listener, nil)
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := g.Duration(5_000_000); err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if err := g.TrackCount(len(tracks)); err != nil {
		t.Fatalf("TrackCount: %v", err)
	}
	var out []Negotiation
	for _, tr := range tracks {
		n, err := g.AddTrack(tr)
		if err != nil {
			t.Fatalf("AddTrack: %v", err)
		}
		out = append(out, n)
	}
	return g, out
}

func TestGuardHappyPath(t *testing.T) {
	listener := &stubListener{}
	g, negotiations := activeGuard(t, listener,
		track(TrackTypeAudio, capability.Encoded, capability.Decoded),
		track(TrackTypeVideo, capability.Encoded),
	)
	if g.State() != StateActive {
		t.Fatalf("state = %s, want active", g.State())
	}
	if negotiations[0].Output != capability.Decoded {
		t.Fatalf("audio with no preference should decode, got %s", negotiations[0].Output)
	}
	if negotiations[1].Output != capability.Encoded {
		t.Fatalf("video output = %s", negotiations[1].Output)
	}
	if len(listener.durations) != 1 || len(listener.counts) != 1 || len(listener.tracks) != 2 {
		t.Fatalf("unexpected callback counts: %+v", listener)
	}

	ctx := context.Background()
	consumer := negotiations[0].Consumer
	if err := consumer.QueueSample(ctx, Sample{TimeUs: 0}); err != nil {
		t.Fatalf("QueueSample: %v", err)
	}
	if err := consumer.QueueSample(ctx, Sample{TimeUs: 0}); err != nil {
		t.Fatalf("equal timestamps should be accepted: %v", err)
	}
	if err := consumer.EndOfStream(); err != nil {
		t.Fatalf("EndOfStream: %v", err)
	}
	inner := g.Outcomes()[0].Consumer.(*stubConsumer)
	if len(inner.samples) != 2 || inner.samples[0].Output != capability.Decoded || !inner.ended {
		t.Fatalf("inner consumer = %+v", inner)
	}
	if g.Completed() {
		t.Fatalf("completed with one track still open")
	}
	if err := negotiations[1].Consumer.EndOfStream(); err != nil {
		t.Fatalf("EndOfStream: %v", err)
	}
	if !g.Completed() {
		t.Fatalf("expected completed after all tracks ended")
	}
}

func TestGuardNormalizesNegativeDuration(t *testing.T) {
	listener := &stubListener{}
	g := NewGuard(listener, nil)
	_ = g.Start()
	if err := g.Duration(-42); err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if listener.durations[0] != DurationUnknown {
		t.Fatalf("duration = %d, want unknown", listener.durations[0])
	}
}

func TestGuardReportsOnceAndRunsHook(t *testing.T) {
	listener := &stubListener{}
	g := NewGuard(listener, nil)
	hooks := 0
	g.OnFailure(func() { hooks++ })
	_ = g.Start()

	if err := g.TrackCount(1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("TrackCount before duration = %v", err)
	}
	g.Fail("read", errors.New("second failure"))
	if err := g.Duration(1); !errors.Is(err, ErrReleased) {
		t.Fatalf("Duration after error = %v, want ErrReleased", err)
	}
	if len(listener.errs) != 1 {
		t.Fatalf("expected one error, got %d", len(listener.errs))
	}
	if hooks != 1 {
		t.Fatalf("hook ran %d times", hooks)
	}
	if g.Swallowed() != 1 {
		t.Fatalf("swallowed = %d, want 1", g.Swallowed())
	}
	if g.State() != StateError {
		t.Fatalf("state = %s", g.State())
	}
	if !g.markReleased() || g.markReleased() {
		t.Fatalf("markReleased should transition exactly once")
	}
}

func TestGuardFinished(t *testing.T) {
	listener := &stubListener{}
	g := NewGuard(listener, nil)
	_ = g.Start()
	_ = g.Duration(10)
	_ = g.TrackCount(2)
	if _, err := g.AddTrack(track(TrackTypeAudio, capability.Encoded)); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if err := g.Finished("run"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Finished with a missing track = %v", err)
	}
	if len(listener.errs) != 1 || g.State() != StateError {
		t.Fatalf("errs = %d, state = %s", len(listener.errs), g.State())
	}
	if err := g.Finished("run"); err != nil {
		t.Fatalf("Finished after error = %v", err)
	}

	complete, _ := activeGuard(t, &stubListener{}, track(TrackTypeAudio, capability.Encoded))
	if err := complete.Finished("run"); err != nil {
		t.Fatalf("Finished while active = %v", err)
	}
	if complete.State() != StateActive {
		t.Fatalf("state = %s, want active", complete.State())
	}
}

func TestGuardFailIgnoresReleased(t *testing.T) {
	listener := &stubListener{}
	g := NewGuard(listener, nil)
	g.Fail("run", ErrReleased)
	g.Fail("run", nil)
	if len(listener.errs) != 0 {
		t.Fatalf("unexpected errors: %v", listener.errs)
	}
}

func TestGuardTrackChecks(t *testing.T) {
	tests := []struct {
		name  string
		track Track
	}{
		{"unknown type", track(TrackTypeUnknown, capability.Encoded)},
		{"empty set", track(TrackTypeAudio)},
		{"unknown bits", Track{Format: Format{Type: TrackTypeAudio}, Supported: capability.Set(0x80)}},
		{"negative offset", Track{Format: Format{Type: TrackTypeAudio}, Supported: capability.NewSet(capability.Encoded), OffsetUs: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listener := &stubListener{}
			g := NewGuard(listener, nil)
			_ = g.Start()
			_ = g.Duration(1)
			_ = g.TrackCount(1)
			if _, err := g.AddTrack(tt.track); !errors.Is(err, ErrInvalidState) {
				t.Fatalf("AddTrack = %v, want invalid state", err)
			}
			if len(listener.tracks) != 0 {
				t.Fatalf("malformed track reached the listener")
			}
			if len(listener.errs) != 1 {
				t.Fatalf("expected one error, got %d", len(listener.errs))
			}
		})
	}
}

func TestGuardNilConsumerIsInternal(t *testing.T) {
	listener := &stubListener{consumer: func(Track) (SampleConsumer, error) { return nil, nil }}
	g := NewGuard(listener, nil)
	_ = g.Start()
	_ = g.Duration(1)
	_ = g.TrackCount(1)
	_, err := g.AddTrack(track(TrackTypeAudio, capability.Encoded))
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("AddTrack = %v, want internal", err)
	}
}

func TestGateRejectsAfterRelease(t *testing.T) {
	listener := &stubListener{}
	g, negotiations := activeGuard(t, listener, track(TrackTypeAudio, capability.Encoded))
	g.markReleased()
	if err := negotiations[0].Consumer.QueueSample(context.Background(), Sample{}); !errors.Is(err, ErrReleased) {
		t.Fatalf("QueueSample after release = %v", err)
	}
	if err := negotiations[0].Consumer.EndOfStream(); !errors.Is(err, ErrReleased) {
		t.Fatalf("EndOfStream after release = %v", err)
	}
	if len(listener.errs) != 0 {
		t.Fatalf("release must not produce errors")
	}
}

func TestDecoderRegistry(t *testing.T) {
	var reg DecoderRegistry
	if got := reg.Snapshot(); len(got) != 0 {
		t.Fatalf("empty registry snapshot = %v", got)
	}
	if err := reg.Register(TrackTypeAudio, "ffmpeg/opus"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(TrackTypeAudio, "ffmpeg/aac"); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := reg.Register(TrackTypeVideo, "  "); err == nil {
		t.Fatalf("expected empty name to fail")
	}
	snapshot := reg.Snapshot()
	snapshot[TrackTypeVideo] = "mutated"
	if got := reg.Snapshot(); len(got) != 1 || got[TrackTypeAudio] != "ffmpeg/opus" {
		t.Fatalf("snapshot = %v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("boom"), KindInternal},
		{capability.ErrUnsupported, KindUnsupportedOutputType},
		{capability.ErrEmptySet, KindInvalidState},
		{ErrSourceRead, KindSourceRead},
		{Wrap(KindSourceRead, "probe", "", nil), KindSourceRead},
	}
	for _, tt := range tests {
		got := Classify("op", tt.err)
		if got.Kind != tt.want {
			t.Fatalf("Classify(%v) = %s, want %s", tt.err, got.Kind, tt.want)
		}
	}
	if Classify("op", nil) != nil {
		t.Fatalf("Classify(nil) should be nil")
	}
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("permission denied")
	err := Wrap(KindSourceRead, "open", "cannot open asset", cause)
	if got := err.Error(); got != "source read error: open: cannot open asset: permission denied" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, ErrSourceRead) || !errors.Is(err, cause) {
		t.Fatalf("errors.Is should match sentinel and cause")
	}
	if errors.Is(err, ErrInternal) {
		t.Fatalf("source read error must not match internal")
	}
	if err.ErrorKind() != "source_read" {
		t.Fatalf("ErrorKind() = %q", err.ErrorKind())
	}
}

func TestDurationFromSeconds(t *testing.T) {
	if got := DurationFromSeconds(120); got != 120_000_000 {
		t.Fatalf("DurationFromSeconds(120) = %d", got)
	}
	if got := DurationFromSeconds(-1); got != DurationUnknown {
		t.Fatalf("negative seconds = %d", got)
	}
	if DurationUnknown.String() != "unknown" || DurationUnknown.Std() != 0 {
		t.Fatalf("unknown duration formatting")
	}
}
