// Baseline digest store for record/reproduce workflows
// Embedded sqlite database; schema managed by embedded migrations
package baseline

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a named baseline has not been recorded.
var ErrNotFound = errors.New("baseline not found")

// Entry is one recorded baseline.
type Entry struct {
	Name       string
	Digest     string
	Passed     bool
	RecordedAt time.Time
}

// Store persists baseline digests in a local sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the baseline database at path and
// applies pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening baseline db: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("preparing migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Put records or replaces the baseline for a name.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("baseline name is required")
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baselines (name, digest, passed, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			digest = excluded.digest,
			passed = excluded.passed,
			recorded_at = excluded.recorded_at`,
		e.Name, e.Digest, boolToInt(e.Passed), e.RecordedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording baseline %q: %w", e.Name, err)
	}
	return nil
}

// Get returns the baseline recorded under name, or ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, digest, passed, recorded_at FROM baselines WHERE name = ?`, name)

	var e Entry
	var passed int
	var recordedAt string
	if err := row.Scan(&e.Name, &e.Digest, &passed, &recordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading baseline %q: %w", name, err)
	}
	e.Passed = passed != 0
	ts, err := time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return nil, fmt.Errorf("baseline %q has malformed timestamp %q: %w", name, recordedAt, err)
	}
	e.RecordedAt = ts
	return &e, nil
}

// Compare checks a fresh digest against the recorded baseline. The bool
// reports whether they match; the entry is the recorded baseline.
func (s *Store) Compare(ctx context.Context, name, digest string) (bool, *Entry, error) {
	e, err := s.Get(ctx, name)
	if err != nil {
		return false, nil, err
	}
	return e.Digest == digest, e, nil
}

// List returns all recorded baselines ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, digest, passed, recorded_at FROM baselines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing baselines: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []Entry
	for rows.Next() {
		var e Entry
		var passed int
		var recordedAt string
		if err := rows.Scan(&e.Name, &e.Digest, &passed, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning baseline row: %w", err)
		}
		e.Passed = passed != 0
		if ts, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			e.RecordedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
