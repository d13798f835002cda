// Package sync orchestrates one mailbox sync run: lock the connection,
// freshen credentials, scan the billing window, extract candidates and
// reconcile them into stored subscriptions.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshsymonds/subwatch/internal/classifier"
	"github.com/joshsymonds/subwatch/internal/common"
	"github.com/joshsymonds/subwatch/internal/extract"
	"github.com/joshsymonds/subwatch/internal/gmail"
	"github.com/joshsymonds/subwatch/internal/model"
	"github.com/joshsymonds/subwatch/internal/secrets"
	"github.com/joshsymonds/subwatch/internal/service"
)

const gmailProvider = "gmail"

// Config holds the orchestrator's operational knobs.
type Config struct {
	// LockStaleAfter is how old a held sync lock must be before another
	// run may reclaim it from a crashed predecessor.
	LockStaleAfter time.Duration

	// MaxLookbackDays caps a full sync's window no matter what the
	// request asks for.
	MaxLookbackDays int

	// MinDaysBack and MaxDaysBack clamp the requested window.
	MinDaysBack int
	MaxDaysBack int

	// TokenExpiryMargin forces a refresh when the access token expires
	// within this window, so it cannot lapse mid-run.
	TokenExpiryMargin time.Duration
}

// DefaultConfig returns the stock orchestrator settings.
func DefaultConfig() Config {
	return Config{
		LockStaleAfter:    10 * time.Minute,
		MaxLookbackDays:   90,
		MinDaysBack:       30,
		MaxDaysBack:       365,
		TokenExpiryMargin: 2 * time.Minute,
	}
}

// MailboxFactory builds a mailbox client from a decrypted access token.
type MailboxFactory func(ctx context.Context, accessToken string) (service.Mailbox, error)

// ProgressFunc is invoked as messages are evaluated.
type ProgressFunc func(done, total int)

// Orchestrator runs the detect-and-reconcile pipeline for one user at a
// time. It is safe for concurrent use; cross-process exclusion per
// connection comes from the storage sync lock.
type Orchestrator struct {
	store      service.Storage
	refresher  service.TokenRefresher
	newMailbox MailboxFactory
	box        *secrets.Box
	gate       *classifier.Classifier
	parser     *extract.Parser
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
	onProgress ProgressFunc
	retryOpts  service.RetryOptions
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(store service.Storage, refresher service.TokenRefresher, newMailbox MailboxFactory, box *secrets.Box, gate *classifier.Classifier, parser *extract.Parser, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:      store,
		refresher:  refresher,
		newMailbox: newMailbox,
		box:        box,
		gate:       gate,
		parser:     parser,
		cfg:        cfg,
		logger:     slog.Default(),
		now:        time.Now,
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// SetProgress installs a progress callback for interactive runs.
func (o *Orchestrator) SetProgress(fn ProgressFunc) {
	o.onProgress = fn
}

// Sync runs one full detect-and-reconcile pass for the user's mailbox.
// A run that loses the lock race returns a result with status "locked"
// and zero counters; that is a defined outcome, not an error.
func (o *Orchestrator) Sync(ctx context.Context, userID string, req service.SyncRequest) (*service.SyncResult, error) {
	conn, err := o.store.GetConnection(ctx, userID, gmailProvider)
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}
	if conn.Status != model.ConnectionActive {
		return nil, fmt.Errorf("connection %s: %w", conn.ID, common.ErrReconnectRequired)
	}

	acquired, err := o.store.AcquireSyncLock(ctx, conn.ID, o.cfg.LockStaleAfter)
	if err != nil {
		return nil, fmt.Errorf("acquiring sync lock: %w", err)
	}
	if !acquired {
		o.logger.Info("sync already in progress", "user_id", userID, "connection_id", conn.ID)
		return &service.SyncResult{
			Status:  service.SyncLocked,
			Message: "sync already in progress",
		}, nil
	}
	// Release must survive a cancelled or expired context; a connection
	// left locked blocks every sync until the staleness window passes.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if relErr := o.store.ReleaseSyncLock(releaseCtx, conn.ID); relErr != nil {
			o.logger.Error("failed to release sync lock", "connection_id", conn.ID, "error", relErr)
		}
	}()

	accessToken, err := o.freshAccessToken(ctx, conn)
	if err != nil {
		return nil, err
	}

	from, incremental := o.syncWindow(conn, req)
	result, err := o.scanAndReconcile(ctx, userID, accessToken, from)
	if err != nil {
		return &service.SyncResult{
			Status:        service.SyncFailed,
			Message:       err.Error(),
			SyncFromDate:  from,
			IsIncremental: incremental,
		}, fmt.Errorf("%w: %v", common.ErrSyncFailed, err)
	}
	result.SyncFromDate = from
	result.IsIncremental = incremental

	if markErr := o.store.MarkSyncCompleted(ctx, conn.ID, o.now()); markErr != nil {
		o.logger.Error("failed to record sync completion", "connection_id", conn.ID, "error", markErr)
	}

	o.logger.Info("sync finished",
		"user_id", userID,
		"status", result.Status,
		"incremental", incremental,
		"emails_processed", result.EmailsProcessed,
		"emails_skipped", result.EmailsSkipped,
		"new_subscriptions", result.NewSubscriptions,
		"updated_subscriptions", result.UpdatedSubscriptions,
	)
	return result, nil
}

// freshAccessToken returns a usable decrypted access token, refreshing and
// persisting new credentials when the stored token is expired or about to
// expire.
func (o *Orchestrator) freshAccessToken(ctx context.Context, conn *model.MailboxConnection) (string, error) {
	needsRefresh := conn.TokenExpiresAt == nil || o.now().Add(o.cfg.TokenExpiryMargin).After(*conn.TokenExpiresAt)
	if !needsRefresh {
		token, err := o.box.Decrypt(conn.AccessToken)
		if err != nil {
			return "", fmt.Errorf("decrypting access token: %w", err)
		}
		return token, nil
	}

	if conn.RefreshToken == "" {
		return "", fmt.Errorf("access token expired and no refresh token stored: %w", common.ErrReconnectRequired)
	}
	refreshToken, err := o.box.Decrypt(conn.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("decrypting refresh token: %w", err)
	}

	accessToken, newRefresh, expiresAt, err := o.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrReconnectRequired) {
			if updErr := o.store.SaveConnection(ctx, markRevoked(conn)); updErr != nil {
				o.logger.Error("failed to mark connection revoked", "connection_id", conn.ID, "error", updErr)
			}
		}
		return "", fmt.Errorf("refreshing access token: %w", err)
	}
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	encAccess, err := o.box.Encrypt(accessToken)
	if err != nil {
		return "", fmt.Errorf("encrypting access token: %w", err)
	}
	encRefresh, err := o.box.Encrypt(newRefresh)
	if err != nil {
		return "", fmt.Errorf("encrypting refresh token: %w", err)
	}
	if err := o.store.UpdateConnectionTokens(ctx, conn.ID, encAccess, encRefresh, expiresAt); err != nil {
		return "", fmt.Errorf("storing refreshed tokens: %w", err)
	}
	return accessToken, nil
}

// syncWindow picks the look-back start for this run. Incremental syncs
// resume from the last completed run; full syncs honor the requested
// depth but never exceed the lookback cap.
func (o *Orchestrator) syncWindow(conn *model.MailboxConnection, req service.SyncRequest) (time.Time, bool) {
	now := o.now()
	if !req.Force && conn.LastSyncAt != nil {
		return *conn.LastSyncAt, true
	}

	days := req.DaysBack
	if days < o.cfg.MinDaysBack {
		days = o.cfg.MinDaysBack
	}
	if days > o.cfg.MaxDaysBack {
		days = o.cfg.MaxDaysBack
	}
	if days > o.cfg.MaxLookbackDays {
		days = o.cfg.MaxLookbackDays
	}
	return now.AddDate(0, 0, -days), false
}

func (o *Orchestrator) scanAndReconcile(ctx context.Context, userID, accessToken string, from time.Time) (*service.SyncResult, error) {
	mailbox, err := o.newMailbox(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("creating mailbox client: %w", err)
	}

	processed, err := o.store.ProcessedMessageIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading processed registry: %w", err)
	}

	ids, err := o.listAllMessageIDs(ctx, mailbox, from)
	if err != nil {
		return nil, err
	}

	result := &service.SyncResult{Status: service.SyncCompleted}
	var (
		candidates []model.Candidate
		marks      []service.ProcessedMessage
		fetchErrs  int
	)
	for i, id := range ids {
		if o.onProgress != nil {
			o.onProgress(i+1, len(ids))
		}
		if processed[id] {
			result.EmailsSkipped++
			continue
		}

		header, err := mailbox.GetMessageMetadata(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("failed to fetch message metadata", "message_id", id, "error", err)
			fetchErrs++
			continue
		}
		if !o.gate.IsCandidate(header.From, header.Subject, header.Date) {
			continue
		}

		msg, err := mailbox.GetMessageFull(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("failed to fetch message body", "message_id", id, "error", err)
			fetchErrs++
			continue
		}

		result.EmailsProcessed++
		mark := service.ProcessedMessage{MessageID: id}
		if candidate := o.parser.Parse(msg); candidate != nil {
			mark.VendorKey = candidate.VendorKey
			candidates = append(candidates, *candidate)
		}
		marks = append(marks, mark)
	}

	merged := extract.Merge(candidates)
	result.SubscriptionsFound = len(merged)

	if err := o.reconcile(ctx, userID, merged, marks, result); err != nil {
		return nil, err
	}

	if fetchErrs > 0 {
		result.Status = service.SyncPartial
		result.Message = fmt.Sprintf("%d messages could not be fetched", fetchErrs)
	}
	return result, nil
}

// reconcile applies every upsert and every processed mark in one
// transaction, so an interrupted run never marks an email processed
// without its subscription write landing.
func (o *Orchestrator) reconcile(ctx context.Context, userID string, candidates []model.Candidate, marks []service.ProcessedMessage, result *service.SyncResult) error {
	if len(candidates) == 0 && len(marks) == 0 {
		return nil
	}

	tx, err := o.store.BeginReconcile(ctx)
	if err != nil {
		return fmt.Errorf("beginning reconciliation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, candidate := range candidates {
		created, err := tx.UpsertSubscription(ctx, userID, candidate)
		if err != nil {
			return fmt.Errorf("upserting subscription %s: %w", candidate.VendorKey, err)
		}
		if created {
			result.NewSubscriptions++
		} else {
			result.UpdatedSubscriptions++
		}
	}
	if err := tx.MarkMessagesProcessed(ctx, userID, marks); err != nil {
		return fmt.Errorf("marking messages processed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reconciliation: %w", err)
	}
	return nil
}

func (o *Orchestrator) listAllMessageIDs(ctx context.Context, mailbox service.Mailbox, from time.Time) ([]string, error) {
	query := gmail.BuildQuery(from)
	var (
		all       []string
		pageToken string
	)
	for {
		var (
			ids  []string
			next string
		)
		err := common.WithRetry(ctx, func() error {
			var listErr error
			ids, next, listErr = mailbox.ListMessageIDs(ctx, query, pageToken)
			return listErr
		}, o.retryOpts)
		if err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}
		all = append(all, ids...)
		if next == "" {
			return all, nil
		}
		pageToken = next
	}
}

func markRevoked(conn *model.MailboxConnection) *model.MailboxConnection {
	updated := *conn
	updated.Status = model.ConnectionRevoked
	return &updated
}
