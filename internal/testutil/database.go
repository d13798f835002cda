// Package testutil provides test fixtures for packages that need a real
// storage layer: an in-memory database with migrations applied, plus
// helpers for seeding the common entities.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/joshsymonds/subwatch/internal/model"
	"github.com/joshsymonds/subwatch/internal/service"
	"github.com/joshsymonds/subwatch/internal/storage"
)

// TestDB wraps an in-memory storage instance scoped to one test.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a migrated in-memory database that is closed when the
// test finishes.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// SeedConnection stores a mailbox connection and returns it as persisted.
func (db *TestDB) SeedConnection(userID, accessToken, refreshToken string, expiresAt *time.Time) *model.MailboxConnection {
	db.t.Helper()
	ctx := context.Background()

	conn := &model.MailboxConnection{
		UserID:         userID,
		Provider:       "gmail",
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: expiresAt,
	}
	if err := db.Storage.SaveConnection(ctx, conn); err != nil {
		db.t.Fatalf("failed to seed connection: %v", err)
	}

	saved, err := db.Storage.GetConnection(ctx, userID, "gmail")
	if err != nil {
		db.t.Fatalf("failed to reload seeded connection: %v", err)
	}
	return saved
}

// MarkProcessed records message IDs as already evaluated for a user.
func (db *TestDB) MarkProcessed(userID string, messages ...service.ProcessedMessage) {
	db.t.Helper()
	ctx := context.Background()

	tx, err := db.Storage.BeginReconcile(ctx)
	if err != nil {
		db.t.Fatalf("failed to begin reconcile: %v", err)
	}
	if err := tx.MarkMessagesProcessed(ctx, userID, messages); err != nil {
		db.t.Fatalf("failed to mark messages processed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		db.t.Fatalf("failed to commit: %v", err)
	}
}

// SeedSubscription stores a subscription with sensible defaults.
func (db *TestDB) SeedSubscription(userID, vendorName string, mutate func(*model.Subscription)) *model.Subscription {
	db.t.Helper()

	sub := &model.Subscription{
		UserID:     userID,
		VendorName: vendorName,
	}
	if mutate != nil {
		mutate(sub)
	}
	if err := db.Storage.CreateSubscription(context.Background(), sub); err != nil {
		db.t.Fatalf("failed to seed subscription: %v", err)
	}
	return sub
}
