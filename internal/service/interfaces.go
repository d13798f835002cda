// Package service defines the interfaces and surface types for all
// application services.
package service

import (
	"context"
	"time"

	"github.com/joshsymonds/subwatch/internal/model"
)

// SubscriptionFilter defines filtering options for subscription queries.
type SubscriptionFilter struct {
	Status *model.SubscriptionStatus
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Mailbox connection operations
	GetConnection(ctx context.Context, userID, provider string) (*model.MailboxConnection, error)
	SaveConnection(ctx context.Context, conn *model.MailboxConnection) error
	UpdateConnectionTokens(ctx context.Context, connectionID, accessToken, refreshToken string, expiresAt time.Time) error
	AcquireSyncLock(ctx context.Context, connectionID string, staleAfter time.Duration) (bool, error)
	ReleaseSyncLock(ctx context.Context, connectionID string) error
	MarkSyncCompleted(ctx context.Context, connectionID string, at time.Time) error

	// Subscription operations
	GetSubscriptions(ctx context.Context, userID string, filter SubscriptionFilter) ([]model.Subscription, error)
	GetSubscriptionByID(ctx context.Context, id string) (*model.Subscription, error)
	GetSubscriptionByVendor(ctx context.Context, userID, vendorKey string) (*model.Subscription, error)
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	UpdateSubscriptionStatus(ctx context.Context, id string, status model.SubscriptionStatus) error

	// Processed-message registry
	ProcessedMessageIDs(ctx context.Context, userID string) (map[string]bool, error)
	CountRecentBillingEmails(ctx context.Context, userID, vendorKey string, since time.Time) (int, error)

	// Decision operations
	SaveDecision(ctx context.Context, decision *model.Decision) error
	GetDecision(ctx context.Context, id string) (*model.Decision, error)
	GetDecisionsBySubscription(ctx context.Context, subscriptionID string) ([]model.Decision, error)
	ApproveDecision(ctx context.Context, id string) error
	RejectDecision(ctx context.Context, id string) error
	ExecuteDecision(ctx context.Context, id string) error

	// Reconciliation
	BeginReconcile(ctx context.Context) (ReconcileTx, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// ReconcileTx covers the writes of one sync run so that a failed
// reconciliation rolls back subscription upserts and processed-message
// marks together.
type ReconcileTx interface {
	// UpsertSubscription inserts a new subscription for the candidate's
	// vendor key or updates the existing one. Updates replace amount,
	// currency and cycle, advance the last charge date via max() and raise
	// confidence via max(); neither is ever lowered.
	UpsertSubscription(ctx context.Context, userID string, candidate model.Candidate) (created bool, err error)

	// MarkMessagesProcessed records messages as evaluated. Inserting a
	// (user, message) pair twice is a no-op, not an error.
	MarkMessagesProcessed(ctx context.Context, userID string, messages []ProcessedMessage) error

	Commit() error
	Rollback() error
}

// ProcessedMessage marks one evaluated email. VendorKey is set when the
// email parsed into a candidate, and feeds per-vendor activity counts.
type ProcessedMessage struct {
	MessageID string
	VendorKey string
}

// Mailbox defines the contract for the remote mailbox collaborator.
type Mailbox interface {
	ListMessageIDs(ctx context.Context, query, pageToken string) (ids []string, nextPageToken string, err error)
	GetMessageMetadata(ctx context.Context, id string) (*model.MessageHeader, error)
	GetMessageFull(ctx context.Context, id string) (*model.RawMessage, error)
}

// TokenRefresher exchanges a refresh token for fresh credentials.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, expiresAt time.Time, err error)
}

// SyncStatus is the outcome of one sync invocation.
type SyncStatus string

// Sync status constants.
const (
	SyncCompleted SyncStatus = "completed"
	SyncPartial   SyncStatus = "partial"
	SyncFailed    SyncStatus = "failed"
	SyncLocked    SyncStatus = "locked"
)

// SyncRequest is the trigger surface for a sync invocation.
type SyncRequest struct {
	Force    bool
	DaysBack int // clamped to [30, 365]
}

// SyncResult reports the counters of one sync invocation.
type SyncResult struct {
	SyncFromDate         time.Time
	Status               SyncStatus
	Message              string
	SubscriptionsFound   int
	NewSubscriptions     int
	UpdatedSubscriptions int
	EmailsProcessed      int
	EmailsSkipped        int
	IsIncremental        bool
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
