package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ingest/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var sessionID string
	var pruneDays int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled loading sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if pruneDays > 0 {
				removed, err := store.Prune(cmd.Context(), time.Now().AddDate(0, 0, -pruneDays))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d session(s) older than %d day(s)\n", removed, pruneDays)
				return nil
			}

			if id := strings.TrimSpace(sessionID); id != "" {
				rec, err := store.Session(cmd.Context(), id)
				if errors.Is(err, journal.ErrNotFound) {
					return fmt.Errorf("session %s not found in %s", id, store.Path())
				}
				if err != nil {
					return err
				}
				writeLines(out, renderSectionHeader("Session "+rec.ID, colorize))
				fmt.Fprintln(out, renderStatusLine("Asset", statusInfo, rec.AssetURI, colorize))
				fmt.Fprintln(out, renderStatusLine("Status", sessionStatusKind(rec.Status), string(rec.Status), colorize))
				fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, rec.Duration.String(), colorize))
				if rec.ErrorMessage != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, rec.ErrorMessage, colorize))
				}
				for trackType, name := range rec.Decoders {
					fmt.Fprintln(out, renderStatusLine("Decoder "+trackType, statusInfo, name, colorize))
				}
				if len(rec.Tracks) > 0 {
					fmt.Fprintln(out, trackHistoryTable(rec.Tracks))
				}
				return nil
			}

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No sessions recorded")
				return nil
			}
			fmt.Fprintln(out, historyTable(records))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to list")
	cmd.Flags().StringVar(&sessionID, "session", "", "Show one session with its tracks")
	cmd.Flags().IntVar(&pruneDays, "prune-days", 0, "Delete sessions older than this many days")
	return cmd
}

func sessionStatusKind(status journal.Status) statusKind {
	switch status {
	case journal.StatusCompleted:
		return statusOK
	case journal.StatusFailed:
		return statusError
	case journal.StatusReleased:
		return statusWarn
	default:
		return statusInfo
	}
}
