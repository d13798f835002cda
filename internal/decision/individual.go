// Package decision implements the rule-based recommendation engines. Both
// engines are pure functions of a snapshot context: no internal state, fully
// deterministic given identical input, safe to invoke concurrently.
package decision

import (
	"fmt"
	"time"

	"github.com/joshsymonds/subwatch/internal/model"
)

// IndividualConfig holds the tunable thresholds of the individual engine.
// The dollar figures are business constants, not product policy; they are
// configuration so deployments can adjust them without code changes.
type IndividualConfig struct {
	InactiveDays            int
	ExpensiveThresholdCents int64
	RenewalReminderDays     int
	LowActivityThreshold    int
}

// DefaultIndividualConfig returns the stock thresholds.
func DefaultIndividualConfig() IndividualConfig {
	return IndividualConfig{
		InactiveDays:            90,
		ExpensiveThresholdCents: 2000, // $20/month-equivalent
		RenewalReminderDays:     7,
		LowActivityThreshold:    2,
	}
}

// IndividualEngine evaluates one subscription in isolation against four
// ordered rules; the first matching rule wins.
type IndividualEngine struct {
	now func() time.Time
	cfg IndividualConfig
}

// NewIndividualEngine creates an engine with the given thresholds.
func NewIndividualEngine(cfg IndividualConfig) *IndividualEngine {
	return &IndividualEngine{cfg: cfg, now: time.Now}
}

// Evaluate produces a recommendation for a subscription. emailCount is the
// observed billing-email activity for the vendor within the lookback
// window.
func (e *IndividualEngine) Evaluate(sub model.Subscription, emailCount int) model.Decision {
	if sub.Status == model.SubscriptionCancelled {
		return e.decision(sub, model.DecisionKeep, 1.0, "Already cancelled")
	}

	now := e.now()

	// Rule 1: no charge activity beyond the inactivity window.
	if sub.LastChargeAt != nil {
		daysSinceCharge := int(now.Sub(*sub.LastChargeAt).Hours() / 24)
		if daysSinceCharge > e.cfg.InactiveDays {
			return e.decision(sub, model.DecisionCancel, 0.85,
				fmt.Sprintf("No activity in %d days. Consider cancelling to save money.", daysSinceCharge))
		}
	}

	// Rule 2: expensive with minimal observed usage.
	if sub.AmountCents != nil && *sub.AmountCents >= e.cfg.ExpensiveThresholdCents &&
		emailCount <= e.cfg.LowActivityThreshold {
		return e.decision(sub, model.DecisionReview, 0.75,
			fmt.Sprintf("Costing $%.2f/mo with minimal usage. Review if you still need it.", float64(*sub.AmountCents)/100))
	}

	// Rule 3: renewal imminent.
	if sub.NextRenewalAt != nil {
		daysUntilRenewal := int(sub.NextRenewalAt.Sub(now).Hours() / 24)
		if daysUntilRenewal >= 0 && daysUntilRenewal <= e.cfg.RenewalReminderDays {
			amount := "unknown amount"
			if sub.AmountCents != nil {
				amount = fmt.Sprintf("$%.2f", float64(*sub.AmountCents)/100)
			}
			return e.decision(sub, model.DecisionRemind, 0.9,
				fmt.Sprintf("Renews in %d days for %s. Decide if you want to continue.", daysUntilRenewal, amount))
		}
	}

	return e.decision(sub, model.DecisionKeep, 0.7, "Subscription appears to be in active use.")
}

// EvaluateAll produces recommendations for every subscription. emailCounts
// maps subscription IDs to observed activity.
func (e *IndividualEngine) EvaluateAll(subs []model.Subscription, emailCounts map[string]int) []model.Decision {
	decisions := make([]model.Decision, 0, len(subs))
	for _, sub := range subs {
		decisions = append(decisions, e.Evaluate(sub, emailCounts[sub.ID]))
	}
	return decisions
}

func (e *IndividualEngine) decision(sub model.Subscription, decisionType model.DecisionType, confidence float64, reason string) model.Decision {
	return model.Decision{
		SubscriptionID: sub.ID,
		Type:           decisionType,
		Confidence:     confidence,
		Explanation:    reason,
		RiskLevel:      model.RiskLow,
		Priority:       model.PriorityNormal,
		Status:         model.DecisionPending,
		CreatedAt:      e.now(),
	}
}

// Actionable filters out KEEP decisions.
func Actionable(decisions []model.Decision) []model.Decision {
	var actionable []model.Decision
	for _, d := range decisions {
		if d.Type != model.DecisionKeep {
			actionable = append(actionable, d)
		}
	}
	return actionable
}

// PotentialSavings totals the monthly amounts of subscriptions flagged for
// cancel or review.
func PotentialSavings(decisions []model.Decision, subs map[string]model.Subscription) int64 {
	var total int64
	for _, d := range decisions {
		if d.Type != model.DecisionCancel && d.Type != model.DecisionReview {
			continue
		}
		if sub, ok := subs[d.SubscriptionID]; ok && sub.AmountCents != nil {
			total += *sub.AmountCents
		}
	}
	return total
}
