package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/joshsymonds/subwatch/internal/common"
	"github.com/joshsymonds/subwatch/internal/model"
)

const decisionColumns = `
	id, subscription_id, decision_type, confidence, risk_score, risk_level,
	priority, savings_cents, recommended_seats, explanation, factors,
	due_date, requires_approval, status, created_at`

// SaveDecision persists an engine's recommendation with status pending.
func (s *SQLiteStorage) SaveDecision(ctx context.Context, decision *model.Decision) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if decision == nil {
		return fmt.Errorf("decision cannot be nil")
	}
	if err := validateString(decision.SubscriptionID, "subscriptionID"); err != nil {
		return err
	}

	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	if decision.Status == "" {
		decision.Status = model.DecisionPending
	}

	factors, err := json.Marshal(decision.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}

	var seats sql.NullInt64
	if decision.RecommendedSeats != nil {
		seats = sql.NullInt64{Int64: int64(*decision.RecommendedSeats), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (
			id, subscription_id, decision_type, confidence, risk_score,
			risk_level, priority, savings_cents, recommended_seats,
			explanation, factors, due_date, requires_approval, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, decision.ID, decision.SubscriptionID, string(decision.Type),
		decision.Confidence, decision.RiskScore, string(decision.RiskLevel),
		string(decision.Priority), decision.SavingsCents, seats,
		decision.Explanation, string(factors), nullTime(decision.DueDate),
		decision.RequiresApproval, string(decision.Status))
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}

	return nil
}

// GetDecision retrieves one decision.
func (s *SQLiteStorage) GetDecision(ctx context.Context, id string) (*model.Decision, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE id = ?`, id)
	decision, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return decision, err
}

// GetDecisionsBySubscription lists decisions for a subscription, newest
// first.
func (s *SQLiteStorage) GetDecisionsBySubscription(ctx context.Context, subscriptionID string) ([]model.Decision, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(subscriptionID, "subscriptionID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+decisionColumns+` FROM decisions
		WHERE subscription_id = ? ORDER BY created_at DESC
	`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []model.Decision
	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, *decision)
	}

	return decisions, rows.Err()
}

// ApproveDecision moves a pending decision to approved.
func (s *SQLiteStorage) ApproveDecision(ctx context.Context, id string) error {
	return s.transitionDecision(ctx, id, model.DecisionApproved, model.DecisionPending)
}

// RejectDecision moves a pending decision to rejected.
func (s *SQLiteStorage) RejectDecision(ctx context.Context, id string) error {
	return s.transitionDecision(ctx, id, model.DecisionRejected, model.DecisionPending)
}

// ExecuteDecision moves an approved decision to executed.
func (s *SQLiteStorage) ExecuteDecision(ctx context.Context, id string) error {
	return s.transitionDecision(ctx, id, model.DecisionExecuted, model.DecisionApproved)
}

// transitionDecision enforces the decision state machine with a conditional
// update; a zero-row update against an existing decision means the current
// status does not permit the transition.
func (s *SQLiteStorage) transitionDecision(ctx context.Context, id string, to model.DecisionStatus, from model.DecisionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE decisions SET status = ? WHERE id = ? AND status = ?
	`, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update decision status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check decision update: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM decisions WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check decision existence: %w", err)
	}
	if !exists {
		return common.ErrNotFound
	}
	return fmt.Errorf("%w: decision %s is not %s", common.ErrInvalidTransition, id, from)
}

func scanDecision(row scanner) (*model.Decision, error) {
	var decision model.Decision
	var seats sql.NullInt64
	var factors sql.NullString
	var dueDate sql.NullTime

	err := row.Scan(
		&decision.ID,
		&decision.SubscriptionID,
		&decision.Type,
		&decision.Confidence,
		&decision.RiskScore,
		&decision.RiskLevel,
		&decision.Priority,
		&decision.SavingsCents,
		&seats,
		&decision.Explanation,
		&factors,
		&dueDate,
		&decision.RequiresApproval,
		&decision.Status,
		&decision.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan decision: %w", err)
	}

	if seats.Valid {
		v := int(seats.Int64)
		decision.RecommendedSeats = &v
	}
	if dueDate.Valid {
		decision.DueDate = &dueDate.Time
	}
	if factors.Valid && factors.String != "" {
		_ = json.Unmarshal([]byte(factors.String), &decision.Factors)
	}

	return &decision, nil
}
