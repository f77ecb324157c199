package assetloader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ingest/internal/logging"
)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the base logger. Session adds component and session_id.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.baseLogger = logger
		}
	}
}

// WithID overrides the generated session identifier.
func WithID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// Session is the reusable loader skeleton. It implements Loader on top of a
// Driver: the Driver discovers tracks and pushes samples, the Session owns
// the Guard, the worker group, decoder names, progress and teardown.
type Session struct {
	id         string
	baseLogger *slog.Logger
	logger     *slog.Logger
	guard      *Guard
	driver     Driver
	decoders   DecoderRegistry

	cancel   context.CancelFunc
	group    *errgroup.Group
	groupCtx context.Context

	stopMu sync.Mutex
	stop   func() bool

	progressMu sync.Mutex
	percent    int

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession binds driver and listener to the owning context ctx. Cancelling
// ctx releases the session.
func NewSession(ctx context.Context, driver Driver, listener Listener, opts ...SessionOption) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Session{
		id:      uuid.NewString(),
		driver:  driver,
		percent: -1,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.baseLogger, "asset_loader").With(logging.String(logging.FieldSessionID, s.id))
	s.guard = NewGuard(listener, s.logger)
	s.guard.OnFailure(func() { s.release(false) })

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.group, s.groupCtx = errgroup.WithContext(runCtx)
	s.stopMu.Lock()
	s.stop = context.AfterFunc(ctx, func() { s.release(false) })
	s.stopMu.Unlock()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Guard exposes the session's conformance guard.
func (s *Session) Guard() *Guard {
	return s.guard
}

// Outcomes returns the negotiations completed so far.
func (s *Session) Outcomes() []Negotiation {
	return s.guard.Outcomes()
}

// Logger returns the session-scoped logger for drivers.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Done is closed once teardown has finished and the driver is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start launches the driver on a background worker.
func (s *Session) Start() error {
	if err := s.guard.Start(); err != nil {
		return err
	}
	s.logger.Info("asset loader started")
	s.Go("run", func(ctx context.Context) error {
		if err := s.driver.Run(ctx, s); err != nil {
			return err
		}
		if ctx.Err() == nil {
			_ = s.guard.Finished("run")
		}
		return nil
	})
	return nil
}

// Go runs fn on the session's worker group. A failure is reported through
// the Guard unless the session is already stopping. Drivers use it for
// per-track delivery.
func (s *Session) Go(op string, fn func(ctx context.Context) error) {
	s.group.Go(func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = Wrap(KindInternal, op, fmt.Sprintf("panic: %v", recovered), nil)
				s.guard.Fail(op, err)
			}
		}()
		err = fn(s.groupCtx)
		if err != nil && s.groupCtx.Err() == nil {
			s.guard.Fail(op, err)
		}
		return err
	})
}

// ReportDuration forwards the asset duration through the Guard.
func (s *Session) ReportDuration(d Duration) error {
	return s.guard.Duration(d)
}

// ReportTrackCount forwards the declared track count through the Guard.
func (s *Session) ReportTrackCount(n int) error {
	return s.guard.TrackCount(n)
}

// AddTrack forwards a track event and returns the negotiated outcome whose
// Consumer the driver must push samples into.
func (s *Session) AddTrack(track Track) (Negotiation, error) {
	return s.guard.AddTrack(track)
}

// RegisterDecoder records the decoder serving a track negotiated as decoded.
func (s *Session) RegisterDecoder(t TrackType, name string) error {
	if !s.guard.hasDecodedTrack(t) {
		return Wrap(KindInvalidState, "decoder", fmt.Sprintf("no decoded %s track negotiated", t), nil)
	}
	if err := s.decoders.Register(t, name); err != nil {
		return Wrap(KindInvalidState, "decoder", "", err)
	}
	s.logger.Debug("decoder registered", logging.String("track_type", t.String()), logging.String("decoder", name))
	return nil
}

// ReportProgress records the loading percentage. Values are clamped to
// 0..100 and never move backwards.
func (s *Session) ReportProgress(percent int) {
	percent = min(max(percent, 0), 100)
	s.progressMu.Lock()
	if percent > s.percent {
		s.percent = percent
	}
	s.progressMu.Unlock()
}

// Progress implements Loader.
func (s *Session) Progress(holder *ProgressHolder) ProgressState {
	if s.guard.State() != StateActive {
		return ProgressUnavailable
	}
	if s.guard.Completed() {
		s.ReportProgress(100)
	}
	s.progressMu.Lock()
	percent := s.percent
	s.progressMu.Unlock()
	if percent < 0 {
		return ProgressUnavailable
	}
	if holder != nil {
		holder.Percent = percent
	}
	return ProgressAvailable
}

// DecoderNames implements Loader.
func (s *Session) DecoderNames() map[TrackType]string {
	return s.decoders.Snapshot()
}

// Release implements Loader.
func (s *Session) Release() {
	s.release(true)
}

// release tears the session down. Worker-triggered releases pass wait=false
// so the worker does not wait on itself.
func (s *Session) release(wait bool) {
	if s.guard.markReleased() {
		s.logger.Debug("asset loader releasing", logging.Bool("wait", wait))
	}
	s.cancel()
	s.stopMu.Lock()
	stop := s.stop
	s.stopMu.Unlock()
	if stop != nil {
		stop()
	}
	if !wait {
		go s.finish()
		return
	}
	s.finish()
}

func (s *Session) finish() {
	_ = s.group.Wait()
	s.closeOnce.Do(func() {
		if err := s.driver.Close(); err != nil {
			logging.WarnWithContext(s.logger, "driver close failed", "release_close_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "loader resources may not be fully released"),
			)
		}
		s.logger.Info("asset loader released")
		close(s.done)
	})
}

var _ Loader = (*Session)(nil)
