package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/joshsymonds/subwatch/internal/service"
)

// ProcessedMessageIDs returns the set of message IDs already evaluated for
// a user.
func (s *SQLiteStorage) ProcessedMessageIDs(ctx context.Context, userID string) (map[string]bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id FROM processed_messages WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan processed message: %w", err)
		}
		ids[id] = true
	}

	return ids, rows.Err()
}

// CountRecentBillingEmails counts evaluated billing emails attributed to a
// vendor since the given time. This is the observed email-activity signal
// used by the individual decision engine.
func (s *SQLiteStorage) CountRecentBillingEmails(ctx context.Context, userID, vendorKey string, since time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	if err := validateString(vendorKey, "vendorKey"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM processed_messages
		WHERE user_id = ? AND vendor_key = ? AND processed_at >= ?
	`, userID, vendorKey, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count billing emails: %w", err)
	}

	return count, nil
}

// markMessagesProcessedTx records messages idempotently; re-inserting a
// (user, message) pair is a no-op.
func (s *SQLiteStorage) markMessagesProcessedTx(ctx context.Context, tx *sql.Tx, userID string, messages []service.ProcessedMessage) error {
	if len(messages) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO processed_messages (user_id, message_id, vendor_key)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, message_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare processed insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, msg := range messages {
		if _, err := stmt.ExecContext(ctx, userID, msg.MessageID, nullString(msg.VendorKey)); err != nil {
			return fmt.Errorf("failed to mark message processed: %w", err)
		}
	}

	return nil
}
