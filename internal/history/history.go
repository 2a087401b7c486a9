// Package history records completed dispatches in SQLite so operators can
// query throughput and latency after the fact.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lyralab/quantumd/internal/logging"
)

// Record is one finished dispatch, successful or not.
type Record struct {
	RequestID       string
	UserID          string
	Channel         string
	State           string // done, failed, cancelled
	Degraded        bool
	Fallback        bool
	Personalization float64
	CPUUtilization  float64
	ParticleSeconds float64
	WaveSeconds     float64
	EmbedSeconds    float64
	TotalSeconds    float64
	CompletedAt     time.Time
}

// Stats is the aggregate view over all recorded dispatches.
type Stats struct {
	Total           int
	Successful      int
	Degraded        int
	AvgTotalSeconds float64
}

// DB wraps the dispatch history database.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the history database under statePath.
func Open(statePath string) (*DB, error) {
	dbPath := filepath.Join(statePath, "system", "history.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	h := &DB{db: db, path: dbPath}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	logging.Info("history", "Opened %s", dbPath)
	return h, nil
}

// Close closes the database connection.
func (h *DB) Close() error {
	return h.db.Close()
}

func (h *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS dispatches (
		request_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		channel TEXT,
		state TEXT NOT NULL,
		degraded BOOLEAN DEFAULT FALSE,
		fallback BOOLEAN DEFAULT FALSE,
		personalization REAL DEFAULT 0,
		cpu_utilization REAL DEFAULT 0,
		particle_seconds REAL DEFAULT 0,
		wave_seconds REAL DEFAULT 0,
		embed_seconds REAL DEFAULT 0,
		total_seconds REAL DEFAULT 0,
		completed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dispatches_user ON dispatches(user_id);
	CREATE INDEX IF NOT EXISTS idx_dispatches_state ON dispatches(state);
	CREATE INDEX IF NOT EXISTS idx_dispatches_completed ON dispatches(completed_at);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Append inserts one dispatch record. Re-recording the same request ID
// overwrites the previous row.
func (h *DB) Append(r Record) error {
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now()
	}
	_, err := h.db.Exec(`
		INSERT OR REPLACE INTO dispatches
		(request_id, user_id, channel, state, degraded, fallback, personalization,
		 cpu_utilization, particle_seconds, wave_seconds, embed_seconds,
		 total_seconds, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.UserID, r.Channel, r.State, r.Degraded, r.Fallback,
		r.Personalization, r.CPUUtilization, r.ParticleSeconds, r.WaveSeconds,
		r.EmbedSeconds, r.TotalSeconds, r.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (h *DB) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.Query(`
		SELECT request_id, user_id, channel, state, degraded, fallback,
		       personalization, cpu_utilization, particle_seconds, wave_seconds,
		       embed_seconds, total_seconds, completed_at
		FROM dispatches ORDER BY completed_at DESC, request_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatches: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.RequestID, &r.UserID, &r.Channel, &r.State,
			&r.Degraded, &r.Fallback, &r.Personalization, &r.CPUUtilization,
			&r.ParticleSeconds, &r.WaveSeconds, &r.EmbedSeconds, &r.TotalSeconds,
			&r.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentForUser returns the newest records for one user, most recent first.
func (h *DB) RecentForUser(userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.Query(`
		SELECT request_id, user_id, channel, state, degraded, fallback,
		       personalization, cpu_utilization, particle_seconds, wave_seconds,
		       embed_seconds, total_seconds, completed_at
		FROM dispatches WHERE user_id = ?
		ORDER BY completed_at DESC, request_id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatches: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.RequestID, &r.UserID, &r.Channel, &r.State,
			&r.Degraded, &r.Fallback, &r.Personalization, &r.CPUUtilization,
			&r.ParticleSeconds, &r.WaveSeconds, &r.EmbedSeconds, &r.TotalSeconds,
			&r.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetStats returns aggregate dispatch statistics.
func (h *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	err := h.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN state = 'done' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN degraded THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(total_seconds), 0)
		FROM dispatches`).
		Scan(&s.Total, &s.Successful, &s.Degraded, &s.AvgTotalSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return s, nil
}
