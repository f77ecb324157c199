package assetloader

import (
	"errors"
	"log/slog"
	"sync"

	"ingest/internal/capability"
	"ingest/internal/logging"
)

// Guard sits between a concrete loader and its Listener. Every listener-bound
// call is validated against the session state machine before it is forwarded;
// a violation is converted into one InvalidState report instead of reaching
// the Listener as malformed data. After the first error nothing else is
// forwarded and later failures are swallowed.
type Guard struct {
	listener Listener
	logger   *slog.Logger

	// emitMu serializes listener-bound events so callbacks never overlap.
	emitMu sync.Mutex

	mu        sync.Mutex
	state     State
	declared  int
	added     int
	ended     int
	byType    map[TrackType]int
	outcomes  []Negotiation
	reported  bool
	swallowed int
	onFailure func()
}

// NewGuard wraps listener. A nil logger discards output.
func NewGuard(listener Listener, logger *slog.Logger) *Guard {
	return &Guard{
		listener: listener,
		logger:   logging.NewComponentLogger(logger, "guard"),
		byType:   make(map[TrackType]int, 2),
	}
}

// OnFailure registers fn to run once after the error report has been
// delivered. Session uses it to release itself.
func (g *Guard) OnFailure(fn func()) {
	g.mu.Lock()
	g.onFailure = fn
	g.mu.Unlock()
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Outcomes returns the negotiations completed so far, in event order. The
// consumers are the ones returned by the Listener.
func (g *Guard) Outcomes() []Negotiation {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Negotiation, len(g.outcomes))
	copy(out, g.outcomes)
	return out
}

// Swallowed counts failures dropped because an error had already been
// reported or the session was released.
func (g *Guard) Swallowed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.swallowed
}

// Completed reports whether every declared track has signalled end of stream.
func (g *Guard) Completed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == StateActive && g.declared > 0 && g.ended == g.declared
}

// Start moves Created to Started. It is an owning-side call: a repeated call
// fails without affecting the running session.
func (g *Guard) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateCreated {
		return violation("start", "start called in state %s", g.state)
	}
	g.state = StateStarted
	return nil
}

// Duration forwards the asset duration. Negative values are normalized to
// DurationUnknown.
func (g *Guard) Duration(d Duration) error {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()

	g.mu.Lock()
	if g.state.Terminal() {
		g.mu.Unlock()
		return ErrReleased
	}
	if g.state != StateStarted {
		bad := violation("duration", "duration reported in state %s", g.state)
		g.mu.Unlock()
		return g.reportLocked(bad)
	}
	g.state = StateDurationKnown
	g.mu.Unlock()

	if !d.Known() {
		d = DurationUnknown
	}
	g.logger.Debug("duration known", logging.String("duration", d.String()))
	g.listener.OnDuration(d)
	return nil
}

// TrackCount forwards the number of tracks the loader will declare.
func (g *Guard) TrackCount(n int) error {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()

	g.mu.Lock()
	if g.state.Terminal() {
		g.mu.Unlock()
		return ErrReleased
	}
	var bad *Error
	switch {
	case g.state != StateDurationKnown:
		bad = violation("track_count", "track count reported in state %s", g.state)
	case n < 1:
		bad = violation("track_count", "track count %d is below 1", n)
	}
	if bad != nil {
		g.mu.Unlock()
		return g.reportLocked(bad)
	}
	g.declared = n
	g.state = StateCountKnown
	g.mu.Unlock()

	g.logger.Debug("track count known", logging.Int("track_count", n))
	g.listener.OnTrackCount(n)
	return nil
}

// AddTrack forwards a track event, negotiates the output type against the
// consumer the Listener returns, and hands back the negotiation. The returned
// Consumer is a gate in front of the Listener's consumer; drivers must push
// samples through it.
func (g *Guard) AddTrack(track Track) (Negotiation, error) {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()

	g.mu.Lock()
	if g.state.Terminal() {
		g.mu.Unlock()
		return Negotiation{}, ErrReleased
	}
	if bad := g.checkTrackLocked(track); bad != nil {
		g.mu.Unlock()
		return Negotiation{}, g.reportLocked(bad)
	}
	g.added++
	g.byType[track.Format.Type] = track.Index
	g.state = StateNegotiating
	position, declared := g.added, g.declared
	g.mu.Unlock()

	consumer, err := g.listener.OnTrackAdded(track)
	if err != nil {
		return Negotiation{}, g.reportLocked(Classify("track", err))
	}
	if consumer == nil {
		return Negotiation{}, g.reportLocked(Wrap(KindInternal, "track", "listener returned no sample consumer", nil))
	}
	output, err := capability.Negotiate(track.Supported, consumer.ExpectedOutput())
	if err != nil {
		return Negotiation{}, g.reportLocked(Classify("negotiate", err))
	}

	outcome := Negotiation{Track: track, Output: output, Consumer: consumer}
	g.mu.Lock()
	if g.state.Terminal() {
		g.mu.Unlock()
		return Negotiation{}, ErrReleased
	}
	g.outcomes = append(g.outcomes, outcome)
	if g.added == g.declared {
		g.state = StateActive
	}
	g.mu.Unlock()

	attrs := append(logging.TrackAttrs(track.Index, track.Format.Type.String(), track.Format.Codec),
		logging.String("supported", track.Supported.String()),
		logging.String("output", output.String()),
		logging.Int("position", position),
		logging.Int("track_count", declared),
	)
	g.logger.Debug("track negotiated", logging.Args(attrs...)...)

	gated := outcome
	gated.Consumer = &gate{guard: g, track: track, output: output, next: consumer}
	return gated, nil
}

func (g *Guard) checkTrackLocked(track Track) *Error {
	switch {
	case g.state != StateCountKnown && g.state != StateNegotiating:
		return violation("track", "track event in state %s", g.state)
	case g.added >= g.declared:
		return violation("track", "track event %d exceeds declared count %d", g.added+1, g.declared)
	case !track.Supported.Valid():
		return violation("track", "track %d advertises invalid output types %s", track.Index, track.Supported)
	case track.Format.Type != TrackTypeAudio && track.Format.Type != TrackTypeVideo:
		return violation("track", "track %d has unsupported type %s", track.Index, track.Format.Type)
	case track.OffsetUs < 0 || track.StartPositionUs < 0:
		return violation("track", "track %d has negative start position or offset", track.Index)
	}
	if previous, ok := g.byType[track.Format.Type]; ok {
		return violation("track", "second %s track %d (first was %d)", track.Format.Type, track.Index, previous)
	}
	return nil
}

// Fail reports err unless an error was already reported or the session was
// released. ErrReleased is ignored.
func (g *Guard) Fail(op string, err error) {
	if err == nil || errors.Is(err, ErrReleased) {
		return
	}
	g.emitMu.Lock()
	defer g.emitMu.Unlock()
	_ = g.reportLocked(Classify(op, err))
}

// Finished checks the session after the driver returned without error. A
// driver that stopped before every declared track was added is reported as
// an InvalidState error.
func (g *Guard) Finished(op string) error {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()
	g.mu.Lock()
	state, added, declared := g.state, g.added, g.declared
	g.mu.Unlock()
	if state == StateActive || state.Terminal() {
		return nil
	}
	return g.reportLocked(violation(op, "driver finished in state %s after %d of %d tracks", state, added, declared))
}

func (g *Guard) reject(bad *Error) error {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()
	return g.reportLocked(bad)
}

// reportLocked delivers e as the session's only error. emitMu must be held.
func (g *Guard) reportLocked(e *Error) error {
	g.mu.Lock()
	if g.reported || g.state == StateReleased {
		g.swallowed++
		g.mu.Unlock()
		g.logger.Debug("error swallowed after session end", logging.Error(e))
		return e
	}
	g.reported = true
	previous := g.state
	g.state = StateError
	hook := g.onFailure
	g.mu.Unlock()

	logging.WarnWithContext(g.logger, "asset loader failed", "session_error",
		logging.String("error_kind", e.Kind.String()),
		logging.String("previous_state", previous.String()),
		logging.Error(e),
		logging.String(logging.FieldImpact, "session released"),
	)
	g.listener.OnError(e)
	if hook != nil {
		hook()
	}
	return e
}

// markReleased moves the session to Released. It reports whether this call
// performed the transition.
func (g *Guard) markReleased() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateReleased {
		return false
	}
	g.state = StateReleased
	return true
}

func (g *Guard) trackEnded() {
	g.mu.Lock()
	g.ended++
	g.mu.Unlock()
}

func (g *Guard) hasDecodedTrack(t TrackType) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, outcome := range g.outcomes {
		if outcome.Track.Format.Type == t {
			return outcome.Output == capability.Decoded
		}
	}
	return false
}
