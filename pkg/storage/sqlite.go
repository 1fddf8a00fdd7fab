package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
)

func init() {
	Register(DriverSQLite, func(ctx context.Context, cfg *Config) (Backend, error) {
		return OpenSQLite(cfg.Path, cfg.BusyTimeout)
	})
}

// migrations are applied in order; each index+1 is its schema version.
var migrations = []string{
	`CREATE TABLE jobs (
		id                TEXT PRIMARY KEY,
		target            TEXT NOT NULL,
		type              TEXT NOT NULL,
		lane              TEXT NOT NULL,
		state             TEXT NOT NULL,
		spec              TEXT NOT NULL,
		attempt           INTEGER NOT NULL DEFAULT 1,
		progress          INTEGER NOT NULL DEFAULT 0,
		credentials       INTEGER NOT NULL DEFAULT 0,
		last_error        TEXT NOT NULL DEFAULT '',
		queued_at         INTEGER NOT NULL,
		started_at        INTEGER,
		finished_at       INTEGER,
		last_heartbeat_at INTEGER
	);
	CREATE INDEX idx_jobs_state ON jobs(state);
	CREATE INDEX idx_jobs_queued ON jobs(queued_at, id);

	CREATE TABLE job_logs (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id     TEXT NOT NULL,
		level      TEXT NOT NULL,
		message    TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX idx_job_logs_job ON job_logs(job_id, seq);`,

	`CREATE TABLE credentials (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id     TEXT NOT NULL,
		host       TEXT NOT NULL,
		service    TEXT NOT NULL,
		port       INTEGER NOT NULL DEFAULT 0,
		username   TEXT NOT NULL,
		password   TEXT NOT NULL,
		found_at   INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX idx_credentials_unique
		ON credentials(job_id, lower(host), lower(service), port, username, password);`,
}

// SQLiteBackend stores everything in a single sqlite database.
type SQLiteBackend struct {
	db  *sql.DB
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

var _ Backend = (*SQLiteBackend)(nil)

// OpenSQLite opens (creating if needed) the database at path. Call
// Initialize before use; NewBackend does so.
func OpenSQLite(path string, busyTimeout time.Duration) (*SQLiteBackend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection serializes writers and keeps :memory: databases
	// from splitting across the pool
	db.SetMaxOpenConns(1)

	return &SQLiteBackend{db: db, now: time.Now}, nil
}

// Initialize applies pending migrations.
func (s *SQLiteBackend) Initialize(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, version, s.now().UnixNano()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Debug().Str("component", "storage").Int("version", version).Msg("Applied sqlite migration")
	}
	return nil
}

// SchemaVersion returns the latest applied migration.
func (s *SQLiteBackend) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteBackend) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *SQLiteBackend) SaveJob(ctx context.Context, j job.Job) error {
	if err := s.check(); err != nil {
		return err
	}
	if j.ID == "" {
		return NewInvalidInputError("id", "job id is required")
	}
	spec, err := json.Marshal(j.Spec)
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO jobs (id, target, type, lane, state, spec, attempt, progress, credentials, last_error,
                  queued_at, started_at, finished_at, last_heartbeat_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	state = excluded.state,
	lane = excluded.lane,
	attempt = excluded.attempt,
	progress = excluded.progress,
	credentials = excluded.credentials,
	last_error = excluded.last_error,
	started_at = excluded.started_at,
	finished_at = excluded.finished_at,
	last_heartbeat_at = excluded.last_heartbeat_at`,
		j.ID, j.Spec.Target, string(j.Spec.Type), string(j.Lane), string(j.State), string(spec),
		j.Attempt, j.Progress, j.Credentials, j.LastError,
		j.QueuedAt.UnixNano(), nullableTime(j.StartedAt), nullableTime(j.FinishedAt), nullableTime(j.LastHeartbeatAt))
	return err
}

const jobColumns = `id, lane, state, spec, attempt, progress, credentials, last_error,
	queued_at, started_at, finished_at, last_heartbeat_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (job.Job, error) {
	var (
		j                         job.Job
		lane, state, spec         string
		queued                    int64
		started, finished, beatAt sql.NullInt64
	)
	if err := row.Scan(&j.ID, &lane, &state, &spec, &j.Attempt, &j.Progress, &j.Credentials, &j.LastError,
		&queued, &started, &finished, &beatAt); err != nil {
		return job.Job{}, err
	}
	if err := json.Unmarshal([]byte(spec), &j.Spec); err != nil {
		return job.Job{}, fmt.Errorf("decode spec of %s: %w", j.ID, err)
	}
	j.Lane = job.Lane(lane)
	j.State = job.State(state)
	j.QueuedAt = fromUnixNano(queued)
	j.StartedAt = timePtr(started)
	j.FinishedAt = timePtr(finished)
	j.LastHeartbeatAt = timePtr(beatAt)
	return j, nil
}

func (s *SQLiteBackend) LoadJob(ctx context.Context, id string) (job.Job, error) {
	if err := s.check(); err != nil {
		return job.Job{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return job.Job{}, NewNotFoundError("job", id)
	}
	return j, err
}

func (s *SQLiteBackend) ListJobs(ctx context.Context, f JobFilter) (JobPage, error) {
	if err := s.check(); err != nil {
		return JobPage{}, err
	}
	cur, err := DecodeCursor(f.Cursor)
	if err != nil {
		return JobPage{}, err
	}

	var (
		where []string
		args  []any
	)
	if len(f.States) > 0 {
		marks := make([]string, len(f.States))
		for i, st := range f.States {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "state IN ("+strings.Join(marks, ", ")+")")
	}
	if cur != nil {
		where = append(where, "(queued_at > ? OR (queued_at = ? AND id > ?))")
		args = append(args, cur.LastTime, cur.LastTime, cur.LastJobID)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := pageSize(f.Limit)
	query += " ORDER BY queued_at ASC, id ASC LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return JobPage{}, err
	}
	defer rows.Close()

	var out []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return JobPage{}, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return JobPage{}, err
	}

	page := JobPage{Jobs: out}
	if len(out) > limit {
		page.Jobs = out[:limit]
		page.NextCursor = EncodeCursor(cursorFor(page.Jobs[limit-1]))
	}
	return page, nil
}

func (s *SQLiteBackend) AppendLog(ctx context.Context, jobID, level, message string) error {
	if err := s.check(); err != nil {
		return err
	}
	if !validLevel(level) {
		return NewInvalidInputError("level", "unknown log level "+level)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_logs (job_id, level, message, created_at) VALUES (?, ?, ?, ?)`,
		jobID, level, message, s.now().UnixNano())
	return err
}

func (s *SQLiteBackend) Logs(ctx context.Context, jobID string) ([]LogEntry, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, job_id, level, message, created_at FROM job_logs WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e  LogEntry
			at int64
		)
		if err := rows.Scan(&e.Seq, &e.JobID, &e.Level, &e.Message, &at); err != nil {
			return nil, err
		}
		e.At = fromUnixNano(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) SaveCredential(ctx context.Context, rec extract.Record) error {
	if err := s.check(); err != nil {
		return err
	}
	if rec.SourceJobID == "" {
		return NewInvalidInputError("source_job_id", "credential must reference a job")
	}
	found := rec.FoundAt
	if found.IsZero() {
		found = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO credentials (job_id, host, service, port, username, password, found_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SourceJobID, rec.Host, rec.Service, rec.Port, rec.Username, rec.Password, found.UnixNano())
	return err
}

func (s *SQLiteBackend) ListCredentials(ctx context.Context, jobID string) ([]extract.Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	query := `SELECT job_id, host, service, port, username, password, found_at FROM credentials`
	var args []any
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []extract.Record
	for rows.Next() {
		var (
			r     extract.Record
			found int64
		)
		if err := rows.Scan(&r.SourceJobID, &r.Host, &r.Service, &r.Port, &r.Username, &r.Password, &found); err != nil {
			return nil, err
		}
		r.FoundAt = fromUnixNano(found)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnixNano(n.Int64)
	return &t
}
