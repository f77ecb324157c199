package conformance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"ingest/internal/assetloader"
	"ingest/internal/capability"
	"ingest/internal/logging"
)

// StepKind identifies a scripted driver action.
type StepKind int

const (
	StepDuration StepKind = iota
	StepTrackCount
	StepTrack
	StepSamples
	StepEnd
	StepProgress
	StepFail
	StepDecoder
	StepBlock
)

// Step is one scripted driver action. Build steps with the helper functions.
type Step struct {
	Kind     StepKind
	Duration assetloader.Duration
	Count    int
	Track    assetloader.Track
	Decoder  string
	Type     assetloader.TrackType
	Samples  []assetloader.Sample
	Percent  int
	Err      error
}

// ReportDuration scripts a duration report.
func ReportDuration(d assetloader.Duration) Step {
	return Step{Kind: StepDuration, Duration: d}
}

// ReportCount scripts a track count report.
func ReportCount(n int) Step {
	return Step{Kind: StepTrackCount, Count: n}
}

// AddTrack scripts a track event. When decoder is set and the track is
// negotiated as decoded, the driver registers it.
func AddTrack(track assetloader.Track, decoder string) Step {
	return Step{Kind: StepTrack, Track: track, Decoder: decoder}
}

// Deliver scripts samples for the track of type t.
func Deliver(t assetloader.TrackType, samples ...assetloader.Sample) Step {
	return Step{Kind: StepSamples, Type: t, Samples: samples}
}

// End scripts end of stream for the track of type t.
func End(t assetloader.TrackType) Step {
	return Step{Kind: StepEnd, Type: t}
}

// Progress scripts a progress report.
func Progress(percent int) Step {
	return Step{Kind: StepProgress, Percent: percent}
}

// Fail scripts a driver failure.
func Fail(err error) Step {
	return Step{Kind: StepFail, Err: err}
}

// RegisterDecoder scripts a decoder registration outside track negotiation.
func RegisterDecoder(t assetloader.TrackType, name string) Step {
	return Step{Kind: StepDecoder, Type: t, Decoder: name}
}

// Block scripts a wait until the session is released.
func Block() Step {
	return Step{Kind: StepBlock}
}

// ScriptDriver replays Steps against a Session. By default the first
// rejected step ends the run; ContinueOnError keeps going so tests can inject
// several violations in a row.
type ScriptDriver struct {
	Steps           []Step
	ContinueOnError bool

	closed atomic.Int32

	mu       sync.Mutex
	accepted int
	rejected []error
	tracks   map[assetloader.TrackType]assetloader.SampleConsumer
}

// NewScriptDriver returns a driver replaying steps.
func NewScriptDriver(steps ...Step) *ScriptDriver {
	return &ScriptDriver{Steps: steps}
}

// Run implements assetloader.Driver.
func (d *ScriptDriver) Run(ctx context.Context, session *assetloader.Session) error {
	for i, step := range d.Steps {
		err := d.apply(ctx, session, step)
		d.mu.Lock()
		if err != nil {
			d.rejected = append(d.rejected, err)
		} else {
			d.accepted++
		}
		d.mu.Unlock()
		if err == nil {
			continue
		}
		if step.Kind == StepFail || step.Kind == StepBlock {
			return err
		}
		if !d.ContinueOnError {
			session.Logger().Debug("script stopped", logging.Int("step", i), logging.Error(err))
			return nil
		}
	}
	return nil
}

func (d *ScriptDriver) apply(ctx context.Context, session *assetloader.Session, step Step) error {
	switch step.Kind {
	case StepDuration:
		return session.ReportDuration(step.Duration)
	case StepTrackCount:
		return session.ReportTrackCount(step.Count)
	case StepTrack:
		negotiation, err := session.AddTrack(step.Track)
		if err != nil {
			return err
		}
		d.mu.Lock()
		if d.tracks == nil {
			d.tracks = make(map[assetloader.TrackType]assetloader.SampleConsumer, 2)
		}
		d.tracks[step.Track.Format.Type] = negotiation.Consumer
		d.mu.Unlock()
		if step.Decoder != "" && negotiation.Output == capability.Decoded {
			return session.RegisterDecoder(step.Track.Format.Type, step.Decoder)
		}
		return nil
	case StepSamples:
		consumer, err := d.consumer(step.Type)
		if err != nil {
			return err
		}
		for _, sample := range step.Samples {
			if err := consumer.QueueSample(ctx, sample); err != nil {
				return err
			}
		}
		return nil
	case StepEnd:
		consumer, err := d.consumer(step.Type)
		if err != nil {
			return err
		}
		return consumer.EndOfStream()
	case StepProgress:
		session.ReportProgress(step.Percent)
		return nil
	case StepFail:
		return step.Err
	case StepDecoder:
		return session.RegisterDecoder(step.Type, step.Decoder)
	case StepBlock:
		<-ctx.Done()
		return ctx.Err()
	default:
		return fmt.Errorf("unknown script step %d", step.Kind)
	}
}

func (d *ScriptDriver) consumer(t assetloader.TrackType) (assetloader.SampleConsumer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	consumer, ok := d.tracks[t]
	if !ok {
		return nil, fmt.Errorf("script: no negotiated %s track", t)
	}
	return consumer, nil
}

// Close implements assetloader.Driver.
func (d *ScriptDriver) Close() error {
	d.closed.Add(1)
	return nil
}

// Closed returns how many times Close ran.
func (d *ScriptDriver) Closed() int {
	return int(d.closed.Load())
}

// Accepted returns how many steps completed without error.
func (d *ScriptDriver) Accepted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted
}

// Rejected returns the errors returned to the driver, in order.
func (d *ScriptDriver) Rejected() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]error, len(d.rejected))
	copy(out, d.rejected)
	return out
}

// RejectedReleased counts rejected steps that failed because the session had
// already ended.
func (d *ScriptDriver) RejectedReleased() int {
	count := 0
	for _, err := range d.Rejected() {
		if errors.Is(err, assetloader.ErrReleased) {
			count++
		}
	}
	return count
}

// Factory returns an assetloader.Factory that builds one Session per call,
// each running a copy of the steps.
func Factory(logger *slog.Logger, steps ...Step) assetloader.Factory {
	return assetloader.FactoryFunc(func(ctx context.Context, _ assetloader.Asset, listener assetloader.Listener) (assetloader.Loader, error) {
		driver := NewScriptDriver(steps...)
		return assetloader.NewSession(ctx, driver, listener, assetloader.WithLogger(logger)), nil
	})
}
