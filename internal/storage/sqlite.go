// Package storage implements the persistence collaborator using SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/joshsymonds/subwatch/internal/model"
	"github.com/joshsymonds/subwatch/internal/service"
)

// queryable abstracts *sql.DB and *sql.Tx for shared query helpers.
type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStorage implements the service.Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginReconcile starts the transaction covering one sync run's writes.
// Subscription upserts and processed-message marks commit or roll back as
// one unit, so an aborted reconciliation never leaves messages marked
// processed without their subscriptions.
func (s *SQLiteStorage) BeginReconcile(ctx context.Context) (service.ReconcileTx, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &reconcileTx{tx: tx, storage: s}, nil
}

// reconcileTx wraps sql.Tx to implement service.ReconcileTx.
type reconcileTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *reconcileTx) Commit() error {
	return t.tx.Commit()
}

func (t *reconcileTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *reconcileTx) UpsertSubscription(ctx context.Context, userID string, candidate model.Candidate) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return false, err
	}
	return t.storage.upsertSubscriptionTx(ctx, t.tx, userID, candidate)
}

func (t *reconcileTx) MarkMessagesProcessed(ctx context.Context, userID string, messages []service.ProcessedMessage) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	return t.storage.markMessagesProcessedTx(ctx, t.tx, userID, messages)
}
