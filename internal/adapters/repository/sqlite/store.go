// Package sqlite is the SQLite-backed repository.Store.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/readq/internal/adapters/repository"
	"github.com/okian/readq/pkg/logger"
	"github.com/okian/readq/pkg/metrics"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const defaultMaxOpenConns = 4

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets the logger used for migration output.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// Store provides SQLite-backed persistence of reading lists.
type Store struct {
	db           *sql.DB
	log          logger.Logger
	maxOpenConns int
}

var _ repository.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies pending
// migrations. Write transactions take the database lock when they begin so
// concurrent writers queue on busy_timeout instead of failing mid-transaction.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{maxOpenConns: defaultMaxOpenConns}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("sqlite")
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConns)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s.db = db

	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies every pending migration.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{ctx: ctx, log: s.log})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, s.db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	s.log.Info(ctx, "database migrated", logger.Int64("version", version))
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version(ctx context.Context) (int64, error) {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, s.db)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update implements repository.Store.
func (s *Store) Update(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.run(ctx, "update", nil, true, fn)
}

// View implements repository.Store.
func (s *Store) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.run(ctx, "view", &sql.TxOptions{ReadOnly: true}, false, fn)
}

func (s *Store) run(ctx context.Context, kind string, opts *sql.TxOptions, writable bool, fn func(tx repository.Tx) error) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreTx(kind, float64(time.Since(start).Microseconds())/1000, err != nil)
	}()

	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&sqlTx{tx: tx, writable: writable}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through the service logger.
type gooseLogger struct {
	ctx context.Context
	log logger.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Debug(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Fatal(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}
