package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
)

// Record is one persisted observation row.
type Record struct {
	ID         int64
	SessionID  string
	Sequence   int
	Label      string
	Confidence int
	Accepted   bool
	CreatedAt  time.Time
}

// Store keeps the SQLite-backed session timeline: one row per observation,
// accepted or not, grouped by capture session.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config. In ephemeral retention mode
// no database is opened and every write is a no-op.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS observations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    label TEXT NOT NULL,
    confidence INTEGER NOT NULL,
    accepted INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_observations_session_created ON observations(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendSession ensures a session row exists. In session retention mode the
// new session replaces everything recorded before it.
func (s *Store) AppendSession(ctx context.Context, sessionID string, startedAt time.Time) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if startedAt.IsZero() {
		startedAt = s.clock()
	}
	if s.cfg.RetentionMode == "session" {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id != ?`, sessionID); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, started_at)
		 VALUES(?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, startedAt.UTC())
	return err
}

// AppendObservation writes one observation row, flagged with the sentence
// builder's accept decision.
func (s *Store) AppendObservation(ctx context.Context, obs protocol.Observation, accepted bool) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	created := obs.Timestamp
	if created.IsZero() {
		created = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations(session_id, sequence, label, confidence, accepted, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		obs.SessionID, obs.Sequence, obs.Label, obs.Confidence, boolToInt(accepted), created.UTC())
	return err
}

// ListSessionObservations retrieves up to limit observations for a session
// ordered ascending by time.
func (s *Store) ListSessionObservations(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sequence, label, confidence, accepted, created_at
		 FROM observations WHERE session_id = ? ORDER BY created_at ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var accepted int
		var created string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Sequence, &r.Label, &r.Confidence, &accepted, &created); err != nil {
			return nil, err
		}
		r.Accepted = accepted != 0
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = ts
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM observations WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
