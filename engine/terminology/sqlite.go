package terminology

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/WessleyAI/patentrag/engine/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS terminology (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source_term TEXT NOT NULL,
	target_term TEXT NOT NULL,
	domain      TEXT NOT NULL DEFAULT 'general',
	usage_count REAL NOT NULL DEFAULT 0,
	verified    INTEGER NOT NULL DEFAULT 0,
	notes       TEXT NOT NULL DEFAULT '',
	updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	UNIQUE (source_term, domain)
);
CREATE INDEX IF NOT EXISTS idx_terminology_domain ON terminology(domain);
`

// SQLiteStore keeps terminology in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("terminology: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("terminology: pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("terminology: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Lookup returns the entries tagged with d, ordered by source term.
func (s *SQLiteStore) Lookup(ctx context.Context, d domain.Domain) ([]domain.TerminologyEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_term, target_term, domain, verified, usage_count, notes
		 FROM terminology WHERE domain = ? ORDER BY source_term`, string(d))
	if err != nil {
		return nil, fmt.Errorf("terminology: query %s: %w", d, err)
	}
	defer rows.Close()

	var out []domain.TerminologyEntry
	for rows.Next() {
		var (
			e   domain.TerminologyEntry
			dom string
		)
		if err := rows.Scan(&e.Source, &e.Target, &dom, &e.Verified, &e.Weight, &e.Notes); err != nil {
			return nil, fmt.Errorf("terminology: scan: %w", err)
		}
		e.Domain = domain.Domain(dom)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Upsert inserts the entry or updates the existing row for (source, domain).
func (s *SQLiteStore) Upsert(ctx context.Context, e domain.TerminologyEntry) error {
	if err := domain.ValidateEntry(e); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO terminology (source_term, target_term, domain, verified, usage_count, notes)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_term, domain) DO UPDATE SET
			target_term = excluded.target_term,
			verified    = excluded.verified,
			usage_count = excluded.usage_count,
			notes       = excluded.notes,
			updated_at  = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		e.Source, e.Target, string(e.Domain), e.Verified, e.Weight, e.Notes)
	if err != nil {
		return fmt.Errorf("terminology: upsert %q: %w", e.Source, err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM terminology`).Scan(&n)
	return n, err
}
