// Package cachestore persists max rate cache knots in SQLite so that later
// runs can start from the maxima estimated by earlier ones.
package cachestore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/kinegen/internal/kine"
	"github.com/banshee-data/kinegen/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var logf = monitoring.Prefixed("[cachestore] ")

// Store is a SQLite database of cache knots.
type Store struct {
	db *sql.DB
}

// Run describes one saved snapshot.
type Run struct {
	RunID     string
	KnotCount int
	CreatedAt time.Time
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the underlying DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and dirty state.
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

// Save upserts knots under runID, generating a run id when it is empty, and
// returns the id used. An existing knot keeps the larger maximum.
func (s *Store) Save(runID string, knots []kine.CacheKnot) (string, error) {
	if runID == "" {
		runID = uuid.New().String()
	}
	now := time.Now().UnixNano()

	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO max_rate_knots (
				fingerprint, energy, max_rate, safety_factor, run_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (fingerprint, energy) DO UPDATE SET
				run_id = CASE WHEN excluded.max_rate > max_rate THEN excluded.run_id ELSE run_id END,
				safety_factor = CASE WHEN excluded.max_rate > max_rate THEN excluded.safety_factor ELSE safety_factor END,
				created_at = CASE WHEN excluded.max_rate > max_rate THEN excluded.created_at ELSE created_at END,
				max_rate = MAX(max_rate, excluded.max_rate)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, k := range knots {
			if !(k.MaxRate > 0) {
				continue
			}
			if _, err := stmt.Exec(k.Fingerprint, k.Energy, k.MaxRate, k.SafetyFactor, runID, now); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(`
			INSERT INTO cache_runs (run_id, knot_count, created_at) VALUES (?, ?, ?)
			ON CONFLICT (run_id) DO UPDATE SET knot_count = excluded.knot_count, created_at = excluded.created_at`,
			runID, len(knots), now); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return "", fmt.Errorf("failed to save cache knots: %w", err)
	}

	logf("saved %d knots for run %s", len(knots), runID)
	return runID, nil
}

// Load returns every stored knot ordered by fingerprint and energy.
func (s *Store) Load() ([]kine.CacheKnot, error) {
	rows, err := s.db.Query(`
		SELECT fingerprint, energy, max_rate, safety_factor
		FROM max_rate_knots
		ORDER BY fingerprint, energy`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache knots: %w", err)
	}
	defer rows.Close()

	var knots []kine.CacheKnot
	for rows.Next() {
		var k kine.CacheKnot
		if err := rows.Scan(&k.Fingerprint, &k.Energy, &k.MaxRate, &k.SafetyFactor); err != nil {
			return nil, fmt.Errorf("failed to scan cache knot: %w", err)
		}
		knots = append(knots, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cache knots: %w", err)
	}
	return knots, nil
}

// Runs lists the saved snapshots, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT run_id, knot_count, created_at FROM cache_runs ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created int64
		if err := rows.Scan(&r.RunID, &r.KnotCount, &created); err != nil {
			return nil, fmt.Errorf("failed to scan cache run: %w", err)
		}
		r.CreatedAt = time.Unix(0, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Invalidate removes every knot stored for fingerprint and returns the
// number removed.
func (s *Store) Invalidate(fingerprint string) (int64, error) {
	var n int64
	err := retryOnBusy(func() error {
		res, err := s.db.Exec(`DELETE FROM max_rate_knots WHERE fingerprint = ?`, fingerprint)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate %s: %w", fingerprint, err)
	}
	return n, nil
}

const (
	maxBusyAttempts = 5
	busyBaseDelay   = 10 * time.Millisecond
)

// retryOnBusy runs fn, retrying with exponential backoff while SQLite
// reports the database as busy.
func retryOnBusy(fn func() error) error {
	var err error
	delay := busyBaseDelay
	for attempt := 1; attempt <= maxBusyAttempts; attempt++ {
		err = fn()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
		if attempt < maxBusyAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("database still busy after %d attempts: %w", maxBusyAttempts, err)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
