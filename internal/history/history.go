// Package history records every transposition ScoreShift performs in a
// SQLite ledger.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/core/sqlite"
)

var migrations = []string{
	`CREATE TABLE transpositions (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at    TEXT    NOT NULL,
		source        TEXT    NOT NULL,
		input_blake3  TEXT    NOT NULL,
		output_sha256 TEXT    NOT NULL,
		semitones     INTEGER NOT NULL,
		from_fifths   INTEGER NOT NULL,
		to_fifths     INTEGER NOT NULL,
		pitches       INTEGER NOT NULL
	)`,
	`CREATE INDEX transpositions_input ON transpositions (input_blake3)`,
}

// Entry is one recorded transposition.
type Entry struct {
	ID           int64     `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Source       string    `json:"source"`
	InputBlake3  string    `json:"input_blake3"`
	OutputSHA256 string    `json:"output_sha256"`
	Semitones    int       `json:"semitones"`
	FromFifths   int       `json:"from_fifths"`
	ToFifths     int       `json:"to_fifths"`
	Pitches      int       `json:"pitches"`
}

// Ledger is an open history database. It is safe for concurrent use.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the ledger at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, migrations); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// OpenReadOnly opens an existing ledger for reading. A missing file is
// reported as not found.
func OpenReadOnly(path string) (*Ledger, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("history database", path)
		}
		return nil, fmt.Errorf("history: %w", err)
	}
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Record appends e to the ledger and returns it with ID and CreatedAt set.
func (l *Ledger) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO transpositions
		 (created_at, source, input_blake3, output_sha256, semitones, from_fifths, to_fifths, pitches)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CreatedAt.Format(time.RFC3339Nano), e.Source, e.InputBlake3, e.OutputSHA256,
		e.Semitones, e.FromFifths, e.ToFifths, e.Pitches)
	if err != nil {
		return Entry{}, fmt.Errorf("history: record: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return Entry{}, fmt.Errorf("history: record: %w", err)
	}
	return e, nil
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (l *Ledger) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, created_at, source, input_blake3, output_sha256,
	                 semitones, from_fifths, to_fifths, pitches
	          FROM transpositions ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return l.query(ctx, query, args...)
}

// ForInput returns every entry whose input had the given BLAKE3 digest, oldest first.
func (l *Ledger) ForInput(ctx context.Context, blake3 string) ([]Entry, error) {
	return l.query(ctx,
		`SELECT id, created_at, source, input_blake3, output_sha256,
		        semitones, from_fifths, to_fifths, pitches
		 FROM transpositions WHERE input_blake3 = ? ORDER BY id`, blake3)
}

func (l *Ledger) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &created, &e.Source, &e.InputBlake3, &e.OutputSHA256,
			&e.Semitones, &e.FromFifths, &e.ToFifths, &e.Pitches); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("history: entry %d: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
