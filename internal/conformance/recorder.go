package conformance

import (
	"context"
	"fmt"
	"sync"

	"ingest/internal/assetloader"
	"ingest/internal/capability"
)

// EventKind names a Listener callback.
type EventKind int

const (
	EventDuration EventKind = iota
	EventTrackCount
	EventTrackAdded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventDuration:
		return "duration"
	case EventTrackCount:
		return "track_count"
	case EventTrackAdded:
		return "track_added"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one recorded callback.
type Event struct {
	Kind     EventKind
	Duration assetloader.Duration
	Count    int
	Track    assetloader.Track
	Err      *assetloader.Error
}

// ConsumerFunc builds the consumer returned for a track. Returning an error
// fails negotiation.
type ConsumerFunc func(track assetloader.Track) (assetloader.SampleConsumer, error)

// Recorder is a Listener that records every callback. By default it answers
// each track event with a new Sink whose requirement comes from Requirements.
type Recorder struct {
	// Requirements maps a track type to the output the Sink will require.
	// Missing entries mean no preference.
	Requirements map[assetloader.TrackType]capability.OutputType
	// Consumers overrides Sink creation when set.
	Consumers ConsumerFunc

	mu       sync.Mutex
	events   []Event
	sinks    map[assetloader.TrackType]*Sink
	declared int
	ended    int
	err      *assetloader.Error
	done     chan struct{}
	doneOnce sync.Once
}

// NewRecorder returns a Recorder with the given per-type requirements.
func NewRecorder(requirements map[assetloader.TrackType]capability.OutputType) *Recorder {
	return &Recorder{Requirements: requirements}
}

func (r *Recorder) init() {
	if r.done == nil {
		r.done = make(chan struct{})
		r.sinks = make(map[assetloader.TrackType]*Sink, 2)
	}
}

// Done is closed when an error is reported or every declared track's Sink has
// reached end of stream.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	return r.done
}

func (r *Recorder) finish() {
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *Recorder) OnDuration(d assetloader.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	r.events = append(r.events, Event{Kind: EventDuration, Duration: d})
}

func (r *Recorder) OnTrackCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	r.declared = n
	r.events = append(r.events, Event{Kind: EventTrackCount, Count: n})
}

func (r *Recorder) OnTrackAdded(track assetloader.Track) (assetloader.SampleConsumer, error) {
	r.mu.Lock()
	r.init()
	r.events = append(r.events, Event{Kind: EventTrackAdded, Track: track})
	custom := r.Consumers
	want := r.Requirements[track.Format.Type]
	r.mu.Unlock()

	if custom != nil {
		return custom(track)
	}
	sink := NewSink(want)
	sink.onEnd = r.trackEnded
	r.mu.Lock()
	r.sinks[track.Format.Type] = sink
	r.mu.Unlock()
	return sink, nil
}

func (r *Recorder) OnError(err *assetloader.Error) {
	r.mu.Lock()
	r.init()
	r.events = append(r.events, Event{Kind: EventError, Err: err})
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
	r.finish()
}

func (r *Recorder) trackEnded() {
	r.mu.Lock()
	r.ended++
	complete := r.declared > 0 && r.ended >= r.declared
	r.mu.Unlock()
	if complete {
		r.finish()
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Err returns the reported error, if any.
func (r *Recorder) Err() *assetloader.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ErrorCount returns how many OnError calls were recorded.
func (r *Recorder) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, event := range r.events {
		if event.Kind == EventError {
			count++
		}
	}
	return count
}

// Sink returns the Sink created for a track type.
func (r *Recorder) Sink(t assetloader.TrackType) *Sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sinks[t]
}

// Sink collects samples for one track in memory.
type Sink struct {
	want  capability.OutputType
	onEnd func()

	mu      sync.Mutex
	samples []assetloader.Sample
	ended   bool
}

// NewSink returns a Sink requiring want.
func NewSink(want capability.OutputType) *Sink {
	return &Sink{want: want}
}

func (s *Sink) ExpectedOutput() capability.OutputType {
	return s.want
}

func (s *Sink) QueueSample(ctx context.Context, sample assetloader.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return fmt.Errorf("sink: sample after end of stream")
	}
	s.samples = append(s.samples, sample)
	return nil
}

func (s *Sink) EndOfStream() error {
	s.mu.Lock()
	s.ended = true
	onEnd := s.onEnd
	s.mu.Unlock()
	if onEnd != nil {
		onEnd()
	}
	return nil
}

// Samples returns a copy of the received samples.
func (s *Sink) Samples() []assetloader.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]assetloader.Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Ended reports whether EndOfStream was received.
func (s *Sink) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
