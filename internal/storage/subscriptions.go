package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joshsymonds/subwatch/internal/common"
	"github.com/joshsymonds/subwatch/internal/extract"
	"github.com/joshsymonds/subwatch/internal/model"
	"github.com/joshsymonds/subwatch/internal/service"
)

const subscriptionColumns = `
	id, user_id, vendor_name, vendor_key, amount_cents, currency,
	billing_cycle, status, last_charge_at, next_renewal_at, source,
	confidence, raw_data, created_at, updated_at`

// GetSubscriptions lists a user's subscriptions, optionally filtered by
// status, most recently updated first.
func (s *SQLiteStorage) GetSubscriptions(ctx context.Context, userID string, filter service.SubscriptionFilter) ([]model.Subscription, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ?`
	args := []any{userID}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}

	return subs, rows.Err()
}

// GetSubscriptionByID retrieves one subscription.
func (s *SQLiteStorage) GetSubscriptionByID(ctx context.Context, id string) (*model.Subscription, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getSubscription(ctx, s.db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

// GetSubscriptionByVendor retrieves the subscription reconciled under a
// normalized vendor key for a user.
func (s *SQLiteStorage) GetSubscriptionByVendor(ctx context.Context, userID, vendorKey string) (*model.Subscription, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(vendorKey, "vendorKey"); err != nil {
		return nil, err
	}
	return s.getSubscription(ctx, s.db,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? AND vendor_key = ?`,
		userID, vendorKey)
}

func (s *SQLiteStorage) getSubscription(ctx context.Context, q queryable, query string, args ...any) (*model.Subscription, error) {
	row := q.QueryRowContext(ctx, query, args...)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// CreateSubscription inserts a manually tracked subscription. The vendor
// key is derived from the name when absent.
func (s *SQLiteStorage) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("subscription cannot be nil")
	}
	if err := validateString(sub.UserID, "userID"); err != nil {
		return err
	}
	if err := validateString(sub.VendorName, "vendorName"); err != nil {
		return err
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.VendorKey == "" {
		sub.VendorKey = extract.NormalizeVendor(sub.VendorName)
	}
	if sub.Status == "" {
		sub.Status = model.SubscriptionActive
	}
	if sub.Currency == "" {
		sub.Currency = "USD"
	}
	if sub.Source == "" {
		sub.Source = "manual"
	}

	// Only one active subscription may exist per (user, vendor key).
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM subscriptions WHERE user_id = ? AND vendor_key = ? AND status = ?)`,
		sub.UserID, sub.VendorKey, string(model.SubscriptionActive)).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check for existing subscription: %w", err)
	}
	if exists {
		return fmt.Errorf("active subscription for vendor %q already exists: %w", sub.VendorKey, common.ErrDuplicateEntry)
	}

	raw, err := json.Marshal(sub.Provenance)
	if err != nil {
		return fmt.Errorf("failed to marshal provenance: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, user_id, vendor_name, vendor_key, amount_cents, currency,
			billing_cycle, status, last_charge_at, next_renewal_at, source,
			confidence, raw_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.UserID, sub.VendorName, sub.VendorKey, nullInt64(sub.AmountCents),
		sub.Currency, string(sub.Cycle), string(sub.Status),
		nullTime(sub.LastChargeAt), nullTime(sub.NextRenewalAt),
		sub.Source, sub.Confidence, string(raw))
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// UpdateSubscriptionStatus moves a subscription through its lifecycle.
func (s *SQLiteStorage) UpdateSubscriptionStatus(ctx context.Context, id string, status model.SubscriptionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}

	return nil
}

// upsertSubscriptionTx reconciles one deduplicated candidate. Updates
// replace amount, currency and cycle; the last charge date only advances
// and confidence only rises.
func (s *SQLiteStorage) upsertSubscriptionTx(ctx context.Context, tx *sql.Tx, userID string, candidate model.Candidate) (bool, error) {
	existing, err := s.getSubscription(ctx, tx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? AND vendor_key = ?`,
		userID, candidate.VendorKey)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return false, err
	}

	raw, err := json.Marshal(candidate.Provenance)
	if err != nil {
		return false, fmt.Errorf("failed to marshal provenance: %w", err)
	}

	if existing == nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO subscriptions (
				id, user_id, vendor_name, vendor_key, amount_cents, currency,
				billing_cycle, status, last_charge_at, next_renewal_at, source,
				confidence, raw_data
			) VALUES (?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, 'gmail', ?, ?)
		`, uuid.NewString(), userID, candidate.VendorName, candidate.VendorKey,
			nullInt64(candidate.AmountCents), candidate.Currency, string(candidate.Cycle),
			nullTime(candidate.ChargeDate), nullTime(candidate.NextRenewalAt),
			candidate.Confidence, string(raw))
		if err != nil {
			return false, fmt.Errorf("failed to insert subscription: %w", err)
		}
		return true, nil
	}

	amount := existing.AmountCents
	if candidate.AmountCents != nil {
		amount = candidate.AmountCents
	}
	cycle := existing.Cycle
	if candidate.Cycle != model.CycleUnknown {
		cycle = candidate.Cycle
	}
	lastCharge := maxTime(existing.LastChargeAt, candidate.ChargeDate)
	renewal := existing.NextRenewalAt
	if candidate.NextRenewalAt != nil {
		renewal = candidate.NextRenewalAt
	}
	confidence := existing.Confidence
	if candidate.Confidence > confidence {
		confidence = candidate.Confidence
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET amount_cents = ?, currency = ?, billing_cycle = ?,
		    last_charge_at = ?, next_renewal_at = ?, confidence = ?,
		    raw_data = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, nullInt64(amount), candidate.Currency, string(cycle),
		nullTime(lastCharge), nullTime(renewal), confidence, string(raw), existing.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}

	return false, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (*model.Subscription, error) {
	var sub model.Subscription
	var amount sql.NullInt64
	var cycle sql.NullString
	var lastCharge, renewal sql.NullTime
	var raw sql.NullString

	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.VendorName,
		&sub.VendorKey,
		&amount,
		&sub.Currency,
		&cycle,
		&sub.Status,
		&lastCharge,
		&renewal,
		&sub.Source,
		&sub.Confidence,
		&raw,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}

	if amount.Valid {
		sub.AmountCents = &amount.Int64
	}
	sub.Cycle = model.BillingCycle(cycle.String)
	if lastCharge.Valid {
		sub.LastChargeAt = &lastCharge.Time
	}
	if renewal.Valid {
		sub.NextRenewalAt = &renewal.Time
	}
	if raw.Valid && raw.String != "" {
		_ = json.Unmarshal([]byte(raw.String), &sub.Provenance)
	}

	return &sub, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func maxTime(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.After(*a) {
		return b
	}
	return a
}
