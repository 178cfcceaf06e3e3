package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotInitialized = errors.New("store not initialized")

const (
	defaultQueryLimit = 200
	maxQueryLimit     = 1000
)

// Store is the sqlite backing for price history, per-cycle quotes, watch
// events and alert deliveries. A nil *Store accepts writes as no-ops.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "data/monitor.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready() bool {
	return s != nil && s.db != nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_history (
			symbol TEXT NOT NULL,
			ts_ns INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			price REAL,
			PRIMARY KEY (symbol, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS quote_snapshot (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id TEXT,
			ts INTEGER NOT NULL,
			symbol TEXT,
			source TEXT,
			bid TEXT,
			ask TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_quote_snapshot_symbol_ts ON quote_snapshot(symbol, ts);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			type TEXT,
			severity TEXT,
			symbol TEXT,
			title TEXT,
			dedup_key TEXT,
			evidence_json TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			priority TEXT,
			symbol TEXT,
			title TEXT,
			dedup_key TEXT,
			status TEXT,
			channel TEXT,
			err_code INTEGER,
			err_msg TEXT,
			payload_md TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(dedup_key);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// dateRange returns the [start, end) unix-second bounds of a UTC day.
func dateRange(date string) (int64, int64, error) {
	t, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid date: %q", date)
	}
	return t.Unix(), t.Add(24 * time.Hour).Unix(), nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
