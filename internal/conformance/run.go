package conformance

import (
	"context"
	"time"

	"ingest/internal/assetloader"
)

// DefaultPollInterval is how often Run samples progress.
const DefaultPollInterval = 10 * time.Millisecond

// Report summarizes one session driven by Run.
type Report struct {
	Events       []Event
	Outcomes     []assetloader.Negotiation
	DecoderNames map[assetloader.TrackType]string
	Progress     []int
	Err          *assetloader.Error
	TraceErr     error
}

// RunOptions tunes Run.
type RunOptions struct {
	PollInterval time.Duration
}

type outcomeSource interface {
	Outcomes() []assetloader.Negotiation
}

// Run creates a loader from factory, starts it, and waits until the Recorder
// is done or ctx ends. The loader is released before Run returns. A non-nil
// error means the session could not be created or started, or ctx ended
// first; protocol failures are reported in Report.Err.
func Run(ctx context.Context, factory assetloader.Factory, asset assetloader.Asset, rec *Recorder, opts RunOptions) (Report, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	loader, err := factory.NewLoader(ctx, asset, rec)
	if err != nil {
		return Report{}, err
	}
	defer loader.Release()

	if err := loader.Start(); err != nil {
		return Report{}, err
	}

	var (
		progress []int
		holder   assetloader.ProgressHolder
		waitErr  error
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	poll := func() {
		if loader.Progress(&holder) == assetloader.ProgressAvailable {
			progress = append(progress, holder.Percent)
		}
	}

wait:
	for {
		select {
		case <-rec.Done():
			poll()
			break wait
		case <-ctx.Done():
			waitErr = ctx.Err()
			break wait
		case <-ticker.C:
			poll()
		}
	}

	report := Report{
		Progress:     progress,
		DecoderNames: loader.DecoderNames(),
		Err:          rec.Err(),
	}
	if source, ok := loader.(outcomeSource); ok {
		report.Outcomes = source.Outcomes()
	}
	report.Events = rec.Events()
	report.TraceErr = CheckTrace(report.Events)
	return report, waitErr
}
