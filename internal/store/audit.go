package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrPathRequired is returned when Open is called without a database path.
var ErrPathRequired = errors.New("audit database path is required")

// Outcome is one resolved reply. Message text is never stored.
type Outcome struct {
	ConversationID string
	Source         string
	Strategy       string
	Rule           string
	Attempts       int
	Latency        time.Duration
	CreatedAt      time.Time
}

// Summary aggregates recorded outcomes.
type Summary struct {
	Total            int            `json:"total"`
	BySource         map[string]int `json:"bySource"`
	ByStrategy       map[string]int `json:"byStrategy,omitempty"`
	AvgRemoteLatency float64        `json:"avgRemoteLatencyMs"`
}

// Journal is the SQLite-backed resolution audit log.
type Journal struct {
	db *sql.DB
}

// Open opens (and migrates) the journal at path. ":memory:" is accepted.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, ErrPathRequired
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	createResolutionsTable := `
	CREATE TABLE IF NOT EXISTS resolutions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT,
		source TEXT NOT NULL,
		strategy TEXT,
		rule TEXT,
		attempts INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);`

	if _, err := db.Exec(createResolutionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create resolutions table: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record appends one outcome.
func (j *Journal) Record(ctx context.Context, o Outcome) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO resolutions (conversation_id, source, strategy, rule, attempts, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ConversationID, o.Source, o.Strategy, o.Rule, o.Attempts, o.Latency.Milliseconds(), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record resolution: %w", err)
	}
	return nil
}

// Summary counts outcomes per source and per remote strategy.
func (j *Journal) Summary(ctx context.Context) (Summary, error) {
	summary := Summary{
		BySource:   make(map[string]int),
		ByStrategy: make(map[string]int),
	}

	rows, err := j.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM resolutions GROUP BY source`)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to query sources: %w", err)
	}
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			rows.Close()
			return Summary{}, fmt.Errorf("failed to scan source row: %w", err)
		}
		summary.BySource[source] = count
		summary.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	rows, err = j.db.QueryContext(ctx,
		`SELECT strategy, COUNT(*) FROM resolutions WHERE strategy != '' GROUP BY strategy`)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to query strategies: %w", err)
	}
	for rows.Next() {
		var strategy string
		var count int
		if err := rows.Scan(&strategy, &count); err != nil {
			rows.Close()
			return Summary{}, fmt.Errorf("failed to scan strategy row: %w", err)
		}
		summary.ByStrategy[strategy] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	var avg sql.NullFloat64
	err = j.db.QueryRowContext(ctx,
		`SELECT AVG(latency_ms) FROM resolutions WHERE source = 'remote'`).Scan(&avg)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to query latency: %w", err)
	}
	if avg.Valid {
		summary.AvgRemoteLatency = avg.Float64
	}

	return summary, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
