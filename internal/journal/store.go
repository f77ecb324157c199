package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ingest/internal/assetloader"
	"ingest/internal/capability"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Status is the lifecycle of a journaled session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusReleased  Status = "released"
)

// ErrNotFound is returned when a session id is not in the journal.
var ErrNotFound = errors.New("journal: session not found")

// Store persists session records in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// SessionRecord is one journaled session.
type SessionRecord struct {
	ID           string
	AssetURI     string
	Status       Status
	Duration     assetloader.Duration
	TrackCount   int
	ErrorKind    string
	ErrorMessage string
	Decoders     map[string]string
	StartedAt    time.Time
	FinishedAt   time.Time
	Tracks       []TrackRecord
}

// TrackRecord is one declared track of a session.
type TrackRecord struct {
	Position  int
	Index     int
	Type      assetloader.TrackType
	Codec     string
	Language  string
	Supported string
	Requested string
	Output    string
	StartUs   int64
	OffsetUs  int64
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open creates or connects to the journal database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// timestampLayout is fixed width so stored values sort chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// BeginSession inserts a running session row.
func (s *Store) BeginSession(ctx context.Context, id, assetURI string, startedAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("journal: empty session id")
	}
	_, err := s.exec(ctx,
		`INSERT INTO sessions (id, asset_uri, status, started_at) VALUES (?, ?, ?, ?)`,
		id, assetURI, string(StatusRunning), timestamp(startedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// RecordDuration stores the reported duration. Unknown durations are stored
// as -1.
func (s *Store) RecordDuration(ctx context.Context, id string, d assetloader.Duration) error {
	return s.updateSession(ctx, id, "duration_us = ?", int64(d))
}

// RecordTrackCount stores the declared track count.
func (s *Store) RecordTrackCount(ctx context.Context, id string, n int) error {
	return s.updateSession(ctx, id, "track_count = ?", n)
}

// RecordTrack stores a declared track and the output its consumer asked for.
func (s *Store) RecordTrack(ctx context.Context, id string, position int, track assetloader.Track, requested capability.OutputType) error {
	_, err := s.exec(ctx,
		`INSERT INTO tracks (session_id, position, track_index, track_type, codec, language, supported, requested, start_us, offset_us)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, position, track.Index, track.Format.Type.String(), track.Format.Codec, track.Format.Language,
		track.Supported.String(), requested.String(), track.StartPositionUs, track.OffsetUs,
	)
	if err != nil {
		return fmt.Errorf("insert track: %w", err)
	}
	return nil
}

// RecordOutcomes stores the negotiated output of each track, matched by its
// container index.
func (s *Store) RecordOutcomes(ctx context.Context, id string, outcomes []assetloader.Negotiation) error {
	for _, outcome := range outcomes {
		_, err := s.exec(ctx,
			`UPDATE tracks SET output = ? WHERE session_id = ? AND track_index = ?`,
			outcome.Output.String(), id, outcome.Track.Index,
		)
		if err != nil {
			return fmt.Errorf("update track output: %w", err)
		}
	}
	return nil
}

// Finish marks the session terminal. A nil failure with completed true is
// StatusCompleted; a nil failure otherwise is StatusReleased.
func (s *Store) Finish(ctx context.Context, id string, completed bool, failure *assetloader.Error, decoders map[assetloader.TrackType]string, finishedAt time.Time) error {
	status := StatusReleased
	var kind, message sql.NullString
	switch {
	case failure != nil:
		status = StatusFailed
		kind = sql.NullString{String: failure.ErrorKind(), Valid: true}
		message = sql.NullString{String: failure.Error(), Valid: true}
	case completed:
		status = StatusCompleted
	}
	var decodersJSON sql.NullString
	if len(decoders) > 0 {
		named := make(map[string]string, len(decoders))
		for t, name := range decoders {
			named[t.String()] = name
		}
		raw, err := json.Marshal(named)
		if err != nil {
			return fmt.Errorf("encode decoders: %w", err)
		}
		decodersJSON = sql.NullString{String: string(raw), Valid: true}
	}
	res, err := s.exec(ctx,
		`UPDATE sessions SET status = ?, error_kind = ?, error_message = ?, decoders_json = ?, finished_at = ? WHERE id = ?`,
		string(status), kind, message, decodersJSON, timestamp(finishedAt), id,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return requireRow(res)
}

func (s *Store) updateSession(ctx context.Context, id, set string, value any) error {
	res, err := s.exec(ctx, "UPDATE sessions SET "+set+" WHERE id = ?", value, id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const sessionColumns = "id, asset_uri, status, duration_us, track_count, error_kind, error_message, decoders_json, started_at, finished_at"

// Recent returns up to limit sessions, newest first, without tracks.
func (s *Store) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Session returns one session with its tracks in declaration order.
func (s *Store) Session(ctx context.Context, id string) (SessionRecord, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, track_index, track_type, codec, language, supported, requested, output, start_us, offset_us
		 FROM tracks WHERE session_id = ? ORDER BY position`, id)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tr                                 TrackRecord
			trackType                          string
			codec, language, requested, output sql.NullString
		)
		if err := rows.Scan(&tr.Position, &tr.Index, &trackType, &codec, &language, &tr.Supported, &requested, &output, &tr.StartUs, &tr.OffsetUs); err != nil {
			return SessionRecord{}, fmt.Errorf("scan track: %w", err)
		}
		tr.Type = assetloader.ParseTrackType(trackType)
		tr.Codec = codec.String
		tr.Language = language.String
		tr.Requested = requested.String
		tr.Output = output.String
		rec.Tracks = append(rec.Tracks, tr)
	}
	return rec, rows.Err()
}

// Prune deletes sessions started before cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if _, err := s.exec(ctx,
		"DELETE FROM tracks WHERE session_id IN (SELECT id FROM sessions WHERE started_at < ?)", timestamp(cutoff)); err != nil {
		return 0, fmt.Errorf("prune tracks: %w", err)
	}
	res, err := s.exec(ctx, "DELETE FROM sessions WHERE started_at < ?", timestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (SessionRecord, error) {
	var (
		rec                     SessionRecord
		status                  string
		duration, trackCount    sql.NullInt64
		errorKind, errorMessage sql.NullString
		decoders                sql.NullString
		startedRaw              string
		finishedRaw             sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &rec.AssetURI, &status, &duration, &trackCount, &errorKind, &errorMessage, &decoders, &startedRaw, &finishedRaw); err != nil {
		return SessionRecord{}, err
	}
	rec.Status = Status(status)
	rec.Duration = assetloader.DurationUnknown
	if duration.Valid {
		rec.Duration = assetloader.Duration(duration.Int64)
	}
	rec.TrackCount = int(trackCount.Int64)
	rec.ErrorKind = errorKind.String
	rec.ErrorMessage = errorMessage.String
	if decoders.Valid && decoders.String != "" {
		if err := json.Unmarshal([]byte(decoders.String), &rec.Decoders); err != nil {
			return SessionRecord{}, fmt.Errorf("decode decoders: %w", err)
		}
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedRaw)
	if finishedRaw.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedRaw.String)
	}
	return rec, nil
}
