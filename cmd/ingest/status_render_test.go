package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"ingest/internal/assetloader"
	"ingest/internal/conformance"
	"ingest/internal/journal"
	"ingest/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Result", statusError, "stalled", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Result:", "[ERROR] stalled")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Result", statusOK, "completed", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestRenderSectionHeader(t *testing.T) {
	lines := renderSectionHeader("  Preflight ", false)
	if len(lines) != 2 || lines[0] != "Preflight" || lines[1] != "=========" {
		t.Fatalf("header = %q", lines)
	}
	if short := renderSectionHeader("A", false); short[1] != "===" {
		t.Fatalf("short rule = %q", short[1])
	}
	if unknown := renderStatusLine("X", statusKind(42), "", false); !strings.HasSuffix(unknown, "[INFO]") {
		t.Fatalf("unknown kind = %q", unknown)
	}
}

func TestPreflightLines(t *testing.T) {
	lines := preflightLines([]preflight.Result{
		{Name: "State directory", Passed: true, Detail: "/var/lib/ingest"},
		{Name: "Asset", Passed: false, Detail: "asset not readable"},
	}, false)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[OK] /var/lib/ingest") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] asset not readable") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestTraceLines(t *testing.T) {
	report := conformance.Report{
		Events:   make([]conformance.Event, 3),
		Progress: []int{10, 5},
		Err:      assetloader.Wrap(assetloader.KindInvalidState, "track", "duplicate audio track", nil),
		TraceErr: errors.New("event 2: unexpected track"),
	}
	lines := traceLines(report, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, want := range []string{"[ERROR] event 2", "[ERROR] progress sample 1", "[ERROR] invalid state"} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("line %d = %q, want it to contain %q", i, lines[i], want)
		}
	}

	clean := traceLines(conformance.Report{}, false)
	if !strings.Contains(clean[1], "[WARN] never available") {
		t.Fatalf("expected progress warning, got %q", clean[1])
	}
}

func TestSessionStatusKind(t *testing.T) {
	tests := map[journal.Status]statusKind{
		journal.StatusCompleted: statusOK,
		journal.StatusFailed:    statusError,
		journal.StatusReleased:  statusWarn,
		journal.StatusRunning:   statusInfo,
	}
	for status, want := range tests {
		if got := sessionStatusKind(status); got != want {
			t.Fatalf("sessionStatusKind(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
