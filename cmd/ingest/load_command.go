package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ingest/internal/assetloader"
	"ingest/internal/journal"
	"ingest/internal/logging"
	"ingest/internal/probeloader"
)

const defaultPollInterval = 500 * time.Millisecond

// errStalled is returned when the watchdog sees no progress for too long.
var errStalled = errors.New("session stalled")

type identified interface {
	ID() string
}

type outcomeSource interface {
	Outcomes() []assetloader.Negotiation
}

type loadOptions struct {
	removeAudio bool
	removeVideo bool
	rtpDir      string
}

type loadResult struct {
	id       string
	asset    string
	outcomes []assetloader.Negotiation
	decoders map[assetloader.TrackType]string
	failure  *assetloader.Error
	stalled  bool
}

func newLoadCommand(ctx *commandContext) *cobra.Command {
	var opts loadOptions

	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Run a loading session and report the negotiated outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, ctx, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.removeAudio, "no-audio", false, "Omit audio tracks from the session")
	cmd.Flags().BoolVar(&opts.removeVideo, "no-video", false, "Omit video tracks from the session")
	cmd.Flags().StringVar(&opts.rtpDir, "rtp-dir", "", "Write packetizable encoded tracks as framed RTP files into this directory")
	return cmd
}

func runLoad(cmd *cobra.Command, ctx *commandContext, uri string, opts loadOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if opts.rtpDir != "" {
		if err := os.MkdirAll(opts.rtpDir, 0o755); err != nil {
			return fmt.Errorf("create rtp dir: %w", err)
		}
	}

	var store *journal.Store
	if cfg.Session.JournalEnabled {
		store, err = journal.Open(cfg.JournalPath())
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()
	}

	factory := probeloader.NewFactory(probeloader.Options{
		FFProbeBinary: cfg.Probe.FFProbeBinary,
		LockDir:       cfg.LockDir(),
		ReorderWindow: cfg.Probe.ReorderWindow,
		WithData:      opts.rtpDir != "",
		Logger:        logger,
	})

	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	listener := newSessionListener(cfg, opts.rtpDir, logger)
	journaled := journal.NewListener(runCtx, store, uri, listener, logger)
	asset := assetloader.Asset{URI: uri, RemoveAudio: opts.removeAudio, RemoveVideo: opts.removeVideo}

	loader, err := factory.NewLoader(runCtx, asset, journaled)
	if err != nil {
		return err
	}
	defer loader.Release()
	defer listener.closeOutputs()

	id := uuid.NewString()
	if withID, ok := loader.(identified); ok {
		id = withID.ID()
	}
	if err := journaled.Begin(id); err != nil {
		logging.WarnWithContext(logger, "journal unavailable", "journal_begin_failed",
			logging.String(logging.FieldSessionID, id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "session will not appear in history"),
		)
	}
	if err := loader.Start(); err != nil {
		return err
	}

	stalled := supervise(runCtx, loader, listener.Done(), listener.delivered, cfg.PollInterval(), cfg.WatchdogTimeout(), logger)
	if stalled {
		logging.ErrorWithContext(logger, "session stalled", "watchdog_expired",
			logging.String(logging.FieldSessionID, id),
			logging.Duration("watchdog", cfg.WatchdogTimeout()),
			logging.String(logging.FieldErrorHint, "raise session.watchdog_seconds or inspect the source"),
		)
	}

	result := loadResult{id: id, asset: uri, decoders: loader.DecoderNames(), failure: listener.failure(), stalled: stalled}
	if source, ok := loader.(outcomeSource); ok {
		result.outcomes = source.Outcomes()
	}
	loader.Release()
	journaled.Finish(listener.completed(), result.outcomes, result.decoders)

	renderLoadResult(cmd.OutOrStdout(), result, listener)

	switch {
	case result.failure != nil:
		return result.failure
	case stalled:
		return fmt.Errorf("%w: no progress for %s", errStalled, cfg.WatchdogTimeout())
	case runCtx.Err() != nil:
		return runCtx.Err()
	}
	return nil
}

// supervise polls progress until done closes or ctx ends. A change in either
// the progress percentage or the delivered sample count keeps the session
// alive; assets of unknown duration never report a percentage. It returns
// true when the watchdog gave up on the session.
func supervise(ctx context.Context, loader assetloader.Loader, done <-chan struct{}, delivered func() int, interval, watchdog time.Duration, logger *slog.Logger) bool {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	sampler := logging.NewProgressSampler(10)

	var holder assetloader.ProgressHolder
	last, lastDelivered := -1, -1
	lastChange := time.Now()
	for {
		select {
		case <-done:
			return false
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		if loader.Progress(&holder) == assetloader.ProgressAvailable && holder.Percent != last {
			last = holder.Percent
			lastChange = time.Now()
			if sampler.ShouldLog(float64(holder.Percent), "loading") {
				logger.Info("loading progress", logging.Int("percent", holder.Percent))
			}
		}
		if delivered != nil {
			if n := delivered(); n != lastDelivered {
				lastDelivered = n
				lastChange = time.Now()
			}
		}
		if watchdog > 0 && time.Since(lastChange) > watchdog {
			return true
		}
	}
}

func renderLoadResult(out io.Writer, result loadResult, listener *sessionListener) {
	colorize := shouldColorize(out)
	writeLines(out, renderSectionHeader("Session "+result.id, colorize))
	fmt.Fprintln(out, renderStatusLine("Asset", statusInfo, result.asset, colorize))

	listener.mu.Lock()
	duration, declared := listener.duration, listener.declared
	listener.mu.Unlock()
	fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, duration.String(), colorize))
	fmt.Fprintln(out, renderStatusLine("Tracks", statusInfo, fmt.Sprintf("%d declared, %d negotiated", declared, len(result.outcomes)), colorize))

	switch {
	case result.failure != nil:
		fmt.Fprintln(out, renderStatusLine("Result", statusError, result.failure.Error(), colorize))
	case result.stalled:
		fmt.Fprintln(out, renderStatusLine("Result", statusError, "stalled", colorize))
	case listener.completed():
		fmt.Fprintln(out, renderStatusLine("Result", statusOK, "completed", colorize))
	default:
		fmt.Fprintln(out, renderStatusLine("Result", statusWarn, "released before completion", colorize))
	}

	if len(result.outcomes) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, negotiationTable(result.outcomes, result.decoders, listener.summary))
	}
	if len(result.decoders) > 0 {
		types := make([]assetloader.TrackType, 0, len(result.decoders))
		for t := range result.decoders {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		parts := make([]string, 0, len(types))
		for _, t := range types {
			parts = append(parts, fmt.Sprintf("%s=%s", t, result.decoders[t]))
		}
		fmt.Fprintln(out, renderStatusLine("Decoders", statusInfo, strings.Join(parts, ", "), colorize))
	}
}
