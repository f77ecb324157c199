package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ingest/internal/assetloader"
	"ingest/internal/capability"
	"ingest/internal/logging"
)

// Listener records session events in a Store and forwards them to next.
// Events are only written after Begin; a nil store turns it into a plain
// pass-through.
type Listener struct {
	store  *Store
	next   assetloader.Listener
	asset  string
	logger *slog.Logger
	ctx    context.Context

	mu       sync.Mutex
	id       string
	position int
	failure  *assetloader.Error
	finished bool
}

// NewListener wraps next. Writes use ctx values but ignore its cancellation
// so the terminal status is still recorded after the owning context ends.
func NewListener(ctx context.Context, store *Store, assetURI string, next assetloader.Listener, logger *slog.Logger) *Listener {
	return &Listener{
		store:  store,
		next:   next,
		asset:  assetURI,
		logger: logging.NewComponentLogger(logger, "journal"),
		ctx:    context.WithoutCancel(ensureContext(ctx)),
	}
}

// Begin binds the listener to a session id and inserts the running row. It
// must be called before the session is started.
func (l *Listener) Begin(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.id = id
	if l.store == nil {
		return nil
	}
	return l.store.BeginSession(l.ctx, id, l.asset, time.Now())
}

// ID returns the bound session id.
func (l *Listener) ID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id
}

func (l *Listener) write(event string, fn func(ctx context.Context, id string) error) {
	l.mu.Lock()
	id := l.id
	l.mu.Unlock()
	if l.store == nil || id == "" {
		return
	}
	if err := fn(l.ctx, id); err != nil {
		logging.WarnWithContext(l.logger, "journal write failed", "journal_write_failed",
			logging.String(logging.FieldSessionID, id),
			logging.String("journal_event", event),
			logging.Error(err),
			logging.String(logging.FieldImpact, "session history is incomplete"),
		)
	}
}

func (l *Listener) OnDuration(d assetloader.Duration) {
	l.write("duration", func(ctx context.Context, id string) error {
		return l.store.RecordDuration(ctx, id, d)
	})
	l.next.OnDuration(d)
}

func (l *Listener) OnTrackCount(n int) {
	l.write("track_count", func(ctx context.Context, id string) error {
		return l.store.RecordTrackCount(ctx, id, n)
	})
	l.next.OnTrackCount(n)
}

func (l *Listener) OnTrackAdded(track assetloader.Track) (assetloader.SampleConsumer, error) {
	consumer, err := l.next.OnTrackAdded(track)
	requested := capability.NoPreference
	if consumer != nil {
		requested = consumer.ExpectedOutput()
	}
	l.mu.Lock()
	position := l.position
	l.position++
	l.mu.Unlock()
	l.write("track_added", func(ctx context.Context, id string) error {
		return l.store.RecordTrack(ctx, id, position, track, requested)
	})
	return consumer, err
}

func (l *Listener) OnError(err *assetloader.Error) {
	l.mu.Lock()
	l.failure = err
	l.mu.Unlock()
	l.next.OnError(err)
}

// Failure returns the error reported to the listener, if any.
func (l *Listener) Failure() *assetloader.Error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failure
}

// Finish records negotiated outputs, decoder names and the terminal status.
// Only the first call writes.
func (l *Listener) Finish(completed bool, outcomes []assetloader.Negotiation, decoders map[assetloader.TrackType]string) {
	l.mu.Lock()
	if l.finished {
		l.mu.Unlock()
		return
	}
	l.finished = true
	failure := l.failure
	l.mu.Unlock()

	l.write("finish", func(ctx context.Context, id string) error {
		if err := l.store.RecordOutcomes(ctx, id, outcomes); err != nil {
			return err
		}
		return l.store.Finish(ctx, id, completed, failure, decoders, time.Now())
	})
}

var _ assetloader.Listener = (*Listener)(nil)
