// Package history is the sqlite journal of completed analyses and saved
// contacts. It is strictly best effort: conversation flow never depends on
// it, and a write failure only surfaces in the logs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"vocabot/internal/domain"
	"vocabot/internal/store"
)

// Store persists the analysis journal in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		sender         TEXT NOT NULL,
		kind           TEXT NOT NULL,
		depth          TEXT NOT NULL,
		duration_s     INTEGER DEFAULT 0,
		response_chars INTEGER DEFAULT 0,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_sender ON analyses(sender, created_at);

	CREATE TABLE IF NOT EXISTS contacts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		sender     TEXT NOT NULL,
		name       TEXT,
		company    TEXT,
		phone      TEXT,
		email      TEXT,
		address    TEXT,
		website    TEXT,
		raw        TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_contacts_sender ON contacts(sender);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordAnalysis journals one completed analysis.
func (s *Store) RecordAnalysis(ctx context.Context, sender string, kind domain.MessageKind, depth domain.AnalysisDepth, durationS, responseChars int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (sender, kind, depth, duration_s, response_chars) VALUES (?, ?, ?, ?, ?)`,
		sender, string(kind), string(depth), durationS, responseChars,
	)
	return err
}

// SaveContact persists a confirmed contact extraction.
func (s *Store) SaveContact(ctx context.Context, sender string, c store.Contact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (sender, name, company, phone, email, address, website, raw)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sender, c.Name, c.Company, c.Phone, c.Email, c.Address, c.Website, c.Raw,
	)
	return err
}

// Stats summarizes the journal for the !stats command.
type Stats struct {
	Analyses int
	ByDepth  map[string]int
	Contacts int
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByDepth: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT depth, COUNT(*) FROM analyses GROUP BY depth`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var depth string
		var n int
		if err := rows.Scan(&depth, &n); err != nil {
			return nil, err
		}
		stats.ByDepth[depth] = n
		stats.Analyses += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&stats.Contacts); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
