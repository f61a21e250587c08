package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades a database from version-1 to version. Databases
// created from schema.sql already have every change; migrations carry
// older snapshots forward and must be idempotent.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{
		version: 1,
		name:    "index chronologies by kind",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_chronologies_kind ON chronologies(kind, nid)`,
	},
}

var currentSchemaVersion = migrations[len(migrations)-1].version

// Store is a SQLite snapshot database. A single connection serializes
// writers; WAL lets other processes read a snapshot while it is saved.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

type config struct {
	logger      *slog.Logger
	busyTimeout time.Duration
}

// Option configures Open.
type Option func(*config)

// WithLogger sets the logger used for schema upgrades.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithBusyTimeout sets how long a statement waits on a locked database.
// The default is five seconds.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) { c.busyTimeout = d }
}

// Open creates or opens the snapshot database at path, applying pragmas,
// the schema and any pending migrations. ":memory:" opens a private
// in-memory database. Opening an existing snapshot again is a no-op.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		busyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: cfg.logger}
	if err := s.applyPragmas(cfg.busyTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) applyPragmas(busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) applySchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return s.migrate()
}

// migrate runs every migration newer than the database's user_version,
// each in its own transaction together with the version bump.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		s.logger.Info("snapshot schema upgraded", "version", m.version, "migration", m.name)
		version = m.version
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
