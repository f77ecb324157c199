package assetloader

import (
	"context"

	"ingest/internal/capability"
)

// Listener receives discovery and negotiation events. Implementations must
// expect calls from any goroutine; events of one session never overlap.
type Listener interface {
	// OnDuration is called once, before OnTrackCount.
	OnDuration(d Duration)
	// OnTrackCount is called once with n >= 1, before any OnTrackAdded.
	OnTrackCount(n int)
	// OnTrackAdded is called once per declared track and returns the consumer
	// that will receive that track's samples. Returning an error fails the
	// session.
	OnTrackAdded(track Track) (SampleConsumer, error)
	// OnError is called at most once. The session is released automatically
	// afterwards.
	OnError(err *Error)
}

// SampleConsumer is the downstream sink for one track.
type SampleConsumer interface {
	// ExpectedOutput is the representation the consumer requires, or
	// capability.NoPreference to let the session choose.
	ExpectedOutput() capability.OutputType
	// QueueSample hands over one sample. Implementations may block for
	// backpressure and should return when ctx is done.
	QueueSample(ctx context.Context, sample Sample) error
	// EndOfStream signals that no further samples follow.
	EndOfStream() error
}

// Loader is the owning-side surface of a session.
type Loader interface {
	// Start begins discovery on background workers. It fails with an
	// InvalidState error when called more than once or after release.
	Start() error
	// Progress updates holder and returns ProgressAvailable when a
	// percentage is known.
	Progress(holder *ProgressHolder) ProgressState
	// DecoderNames returns a snapshot of decoder names keyed by track type.
	DecoderNames() map[TrackType]string
	// Release stops loading and frees all resources. It is idempotent and
	// blocks until background work has stopped. It must not be called from
	// inside a Listener callback.
	Release()
}

// Factory builds loaders. ctx is the owning context; cancelling it releases
// the session.
type Factory interface {
	NewLoader(ctx context.Context, asset Asset, listener Listener) (Loader, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, asset Asset, listener Listener) (Loader, error)

func (f FactoryFunc) NewLoader(ctx context.Context, asset Asset, listener Listener) (Loader, error) {
	return f(ctx, asset, listener)
}

// Driver is the format-specific half of a loader. Session calls Run once on a
// background goroutine after Start and Close once during teardown, after all
// workers have returned.
type Driver interface {
	Run(ctx context.Context, session *Session) error
	Close() error
}
