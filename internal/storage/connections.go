package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joshsymonds/subwatch/internal/common"
	"github.com/joshsymonds/subwatch/internal/model"
)

// GetConnection returns the active mailbox connection for a user, or
// common.ErrNoConnection when none exists.
func (s *SQLiteStorage) GetConnection(ctx context.Context, userID, provider string) (*model.MailboxConnection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(provider, "provider"); err != nil {
		return nil, err
	}

	var conn model.MailboxConnection
	var refresh sql.NullString
	var expiresAt, lastSyncAt, syncStartedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, access_token, refresh_token,
		       token_expires_at, last_sync_at, sync_in_progress,
		       sync_started_at, status, created_at
		FROM connections
		WHERE user_id = ? AND provider = ? AND status = 'active'
	`, userID, provider).Scan(
		&conn.ID,
		&conn.UserID,
		&conn.Provider,
		&conn.AccessToken,
		&refresh,
		&expiresAt,
		&lastSyncAt,
		&conn.SyncInProgress,
		&syncStartedAt,
		&conn.Status,
		&conn.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNoConnection
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	conn.RefreshToken = refresh.String
	if expiresAt.Valid {
		conn.TokenExpiresAt = &expiresAt.Time
	}
	if lastSyncAt.Valid {
		conn.LastSyncAt = &lastSyncAt.Time
	}
	if syncStartedAt.Valid {
		conn.SyncStartedAt = &syncStartedAt.Time
	}

	return &conn, nil
}

// SaveConnection inserts a connection or replaces the existing one for the
// same (user, provider) pair.
func (s *SQLiteStorage) SaveConnection(ctx context.Context, conn *model.MailboxConnection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if conn == nil {
		return fmt.Errorf("connection cannot be nil")
	}
	if err := validateString(conn.UserID, "userID"); err != nil {
		return err
	}

	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if conn.Status == "" {
		conn.Status = model.ConnectionActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (id, user_id, provider, access_token, refresh_token, token_expires_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expires_at = excluded.token_expires_at,
			status = excluded.status
	`, conn.ID, conn.UserID, conn.Provider, conn.AccessToken, nullString(conn.RefreshToken), nullTime(conn.TokenExpiresAt), conn.Status)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	return nil
}

// UpdateConnectionTokens stores freshly refreshed tokens.
func (s *SQLiteStorage) UpdateConnectionTokens(ctx context.Context, connectionID, accessToken, refreshToken string, expiresAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(connectionID, "connectionID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE connections
		SET access_token = ?, refresh_token = ?, token_expires_at = ?
		WHERE id = ?
	`, accessToken, nullString(refreshToken), expiresAt, connectionID)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}

	return nil
}

// AcquireSyncLock attempts the atomic test-and-set on the connection's sync
// lock. It succeeds only when no sync is in progress or the held lock is
// older than staleAfter. A false return is the defined "locked" outcome,
// not an error.
func (s *SQLiteStorage) AcquireSyncLock(ctx context.Context, connectionID string, staleAfter time.Duration) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(connectionID, "connectionID"); err != nil {
		return false, err
	}

	now := time.Now().UTC()
	staleBefore := now.Add(-staleAfter)

	result, err := s.db.ExecContext(ctx, `
		UPDATE connections
		SET sync_in_progress = 1, sync_started_at = ?
		WHERE id = ?
		  AND (sync_in_progress = 0
		       OR sync_started_at IS NULL
		       OR sync_started_at < ?)
	`, now, connectionID, staleBefore)
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check lock acquisition: %w", err)
	}

	return affected > 0, nil
}

// ReleaseSyncLock clears the sync lock unconditionally.
func (s *SQLiteStorage) ReleaseSyncLock(ctx context.Context, connectionID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(connectionID, "connectionID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE connections
		SET sync_in_progress = 0, sync_started_at = NULL
		WHERE id = ?
	`, connectionID)
	if err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}

	return nil
}

// MarkSyncCompleted records the timestamp a successful sync finished at,
// which becomes the lower bound of the next incremental window.
func (s *SQLiteStorage) MarkSyncCompleted(ctx context.Context, connectionID string, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(connectionID, "connectionID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE connections SET last_sync_at = ? WHERE id = ?
	`, at.UTC(), connectionID)
	if err != nil {
		return fmt.Errorf("failed to mark sync completed: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
