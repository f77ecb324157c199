package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ingest/internal/assetloader"
	"ingest/internal/capability"
	"ingest/internal/conformance"
	"ingest/internal/preflight"
	"ingest/internal/probeloader"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Run preflight checks and verify the loader's event order for an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			uri := args[0]
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cfg, localPath(uri))
			writeLines(out, renderSectionHeader("Preflight", colorize))
			writeLines(out, preflightLines(results, colorize))
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}

			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, timeout)
				defer cancel()
			}

			factory := probeloader.NewFactory(probeloader.Options{
				FFProbeBinary: cfg.Probe.FFProbeBinary,
				LockDir:       cfg.LockDir(),
				ReorderWindow: cfg.Probe.ReorderWindow,
				Logger:        logger,
			})
			rec := conformance.NewRecorder(map[assetloader.TrackType]capability.OutputType{
				assetloader.TrackTypeAudio: cfg.AudioOutput(),
				assetloader.TrackTypeVideo: cfg.VideoOutput(),
			})
			report, err := conformance.Run(runCtx, factory, assetloader.Asset{URI: uri}, rec, conformance.RunOptions{PollInterval: cfg.PollInterval()})
			if err != nil {
				return fmt.Errorf("run session: %w", err)
			}

			fmt.Fprintln(out)
			writeLines(out, renderSectionHeader("Conformance", colorize))
			writeLines(out, traceLines(report, colorize))

			switch {
			case report.TraceErr != nil:
				return fmt.Errorf("event order: %w", report.TraceErr)
			case conformance.CheckProgress(report.Progress) != nil:
				return fmt.Errorf("progress: %w", conformance.CheckProgress(report.Progress))
			case report.Err != nil:
				return report.Err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Give up on the session after this long (0 disables)")
	return cmd
}

// localPath returns the filesystem path of uri, or "" for non-file schemes.
func localPath(uri string) string {
	uri = strings.TrimSpace(uri)
	if rest, ok := strings.CutPrefix(uri, "file://"); ok {
		return rest
	}
	if strings.Contains(uri, "://") {
		return ""
	}
	return uri
}
