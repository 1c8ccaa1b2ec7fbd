package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite" // Pure Go sqlite driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/neej1979/mealplanner/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const connParams = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// DB wraps the planner's SQLite handle.
type DB struct {
	SQL *sql.DB
	// SchemaVersion is the migration version the file was left at.
	SchemaVersion uint
}

// Option configures NewDB.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger reports migration progress to logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewDB creates the database file if needed, brings its schema up to date
// and opens a single-connection pool on it.
func NewDB(dbPath string, opts ...Option) (*DB, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	version, err := RunMigrations(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+connParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{SQL: db, SchemaVersion: version}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.SQL.Close()
}

// RunMigrations applies the embedded migrations to the database at path and
// returns the resulting schema version.
func RunMigrations(path string, logger *zap.Logger) (uint, error) {
	logger = logging.OrNop(logger)

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to create iofs driver: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+path)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	before, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("database schema up to date", zap.Uint("version", before))
		return before, nil
	case err != nil:
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}

	after, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return after, fmt.Errorf("schema left dirty at version %d", after)
	}
	logger.Info("database migrations applied",
		zap.String("path", path),
		zap.Uint("from", before),
		zap.Uint("to", after),
	)
	return after, nil
}
