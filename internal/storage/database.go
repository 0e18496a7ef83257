// Package storage is the SQLite implementation of the rating store.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	maxOpenConns    = 4
	maxIdleConns    = 2
	connMaxLifetime = time.Hour
)

// Open connects to the SQLite database at path and brings its schema up to date.
func Open(path string, logger *log.Logger) (*sql.DB, error) {
	logger = logger.WithPrefix("storage")
	logger.Info("Opening database", "path", path)

	// Connection parameters apply to every pooled connection. Immediate
	// transactions take the write lock up front so two concurrent
	// read-modify-write pairs cannot deadlock on lock upgrade.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := migrate(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Database ready", "path", path)
	return db, nil
}

func migrate(db *sql.DB, logger *log.Logger) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(context.Background())
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, res := range results {
		logger.Debug("Applied migration", "source", res.Source.Path, "duration", res.Duration)
	}
	logger.Info("Migrations complete", "applied", len(results))
	return nil
}
