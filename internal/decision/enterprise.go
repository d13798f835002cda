package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/joshsymonds/subwatch/internal/model"
)

// EnterpriseConfig holds the thresholds of the organization-level engine.
type EnterpriseConfig struct {
	KeystoneThreshold     float64
	LowUtilization        float64
	ModerateUtilization   float64
	HealthyUtilization    float64
	InactiveDays          int
	RenewalWindowDays     int
	UrgentRenewalDays     int
	MinSeatsForDownsize   int
	DownsizeBuffer        int
	MinSavingsForDownsize int64
	ApprovalCostThreshold int64
}

// DefaultEnterpriseConfig returns the stock thresholds.
func DefaultEnterpriseConfig() EnterpriseConfig {
	return EnterpriseConfig{
		KeystoneThreshold:     0.70,
		LowUtilization:        0.30,
		ModerateUtilization:   0.50,
		HealthyUtilization:    0.70,
		InactiveDays:          60,
		RenewalWindowDays:     30,
		UrgentRenewalDays:     7,
		MinSeatsForDownsize:   5,
		DownsizeBuffer:        2,
		MinSavingsForDownsize: 10000, // $100 annualized
		ApprovalCostThreshold: 50000, // $500 annualized
	}
}

// EnterpriseEngine evaluates a subscription against organization-wide usage
// and dependency signals. Rules are ordered; the first match wins.
type EnterpriseEngine struct {
	now func() time.Time
	cfg EnterpriseConfig
}

// NewEnterpriseEngine creates an engine with the given thresholds.
func NewEnterpriseEngine(cfg EnterpriseConfig) *EnterpriseEngine {
	return &EnterpriseEngine{cfg: cfg, now: time.Now}
}

// Evaluate produces a recommendation from one subscription context snapshot.
func (e *EnterpriseEngine) Evaluate(sctx model.SubscriptionContext) model.Decision {
	now := e.now()
	factors := e.computeFactors(sctx, now)
	utilization := seatUtilization(sctx)
	annualCost := annualizedCost(sctx.AmountCents, sctx.Cycle)

	d := model.Decision{
		SubscriptionID: sctx.SubscriptionID,
		Factors:        factors,
		Status:         model.DecisionPending,
		CreatedAt:      now,
		RiskLevel:      model.RiskLow,
		Priority:       model.PriorityNormal,
	}

	// Rule 1: keystone tools are never flagged regardless of usage.
	if sctx.KeystoneScore >= e.cfg.KeystoneThreshold {
		d.Type = model.DecisionKeep
		d.Confidence = 0.95
		d.RiskScore = 0.9
		d.RiskLevel = model.RiskCritical
		d.Explanation = fmt.Sprintf("%s is a keystone tool: %d other tools depend on it. Cancelling would cascade.",
			sctx.ToolName, sctx.DependencyCount)
		return d
	}

	// Rule 2: the purchase owner has left the organization. Only fires
	// when an owner is on record; ownerless contexts fall through.
	if sctx.OwnerID != "" && !sctx.OwnerActive {
		d.Type = model.DecisionReview
		d.Confidence = 0.8
		d.RiskScore = 0.6
		d.RiskLevel = model.RiskHigh
		d.RequiresApproval = true
		d.Explanation = fmt.Sprintf("Owner %s is no longer active. Reassign ownership before the next renewal.",
			sctx.OwnerName)
		return d
	}

	// Rule 3: nobody uses it and it has been idle past the inactivity window.
	if sctx.ActiveUsers == 0 && daysSince(sctx.LastActivityAt, now) > e.cfg.InactiveDays {
		d.Type = model.DecisionCancel
		d.Confidence = 0.85
		d.RiskScore = 0.20 + 0.4*sctx.KeystoneScore
		d.RiskLevel = riskLevelFor(d.RiskScore)
		d.SavingsCents = annualCost
		d.RequiresApproval = annualCost > e.cfg.ApprovalCostThreshold
		d.Explanation = fmt.Sprintf("%s has zero active users and no activity in over %d days. Cancelling saves $%.2f/year.",
			sctx.ToolName, e.cfg.InactiveDays, cents(annualCost))
		return d
	}

	// Rule 4: badly over-seated.
	if utilization < e.cfg.LowUtilization && sctx.PaidSeats > e.cfg.MinSeatsForDownsize {
		seats := sctx.ActiveUsers + e.cfg.DownsizeBuffer
		if seats < e.cfg.MinSeatsForDownsize {
			seats = e.cfg.MinSeatsForDownsize
		}
		savings := int64(math.Round(float64(annualCost) * float64(sctx.PaidSeats-seats) / float64(sctx.PaidSeats)))
		if savings >= e.cfg.MinSavingsForDownsize {
			d.Type = model.DecisionDownsize
			d.Confidence = 0.8
			d.RiskScore = 0.3
			d.RiskLevel = model.RiskMedium
			d.RecommendedSeats = &seats
			d.SavingsCents = savings
			d.Explanation = fmt.Sprintf("Only %d of %d seats active (%.0f%%). Reducing to %d seats saves $%.2f/year.",
				sctx.ActiveUsers, sctx.PaidSeats, utilization*100, seats, cents(savings))
			return d
		}
	}

	// Rule 5: soft under-utilization worth a look.
	if utilization < e.cfg.ModerateUtilization {
		d.Type = model.DecisionReview
		d.Confidence = 0.7
		d.RiskScore = 0.3
		d.RiskLevel = model.RiskMedium
		d.SavingsCents = int64(math.Round(float64(annualCost) * 0.30))
		d.Explanation = fmt.Sprintf("%s is at %.0f%% seat utilization. Review whether the current plan fits.",
			sctx.ToolName, utilization*100)
		return d
	}

	// Rule 6: renewal approaching on a tool without healthy usage.
	if sctx.RenewalAt != nil {
		daysUntil := int(sctx.RenewalAt.Sub(now).Hours() / 24)
		if daysUntil >= 0 && daysUntil < e.cfg.RenewalWindowDays && utilization < e.cfg.HealthyUtilization {
			d.Type = model.DecisionReview
			d.Confidence = 0.75
			d.RiskScore = 0.4
			d.RiskLevel = model.RiskMedium
			d.SavingsCents = int64(math.Round(float64(annualCost) * 0.15))
			d.DueDate = sctx.RenewalAt
			d.Priority = model.PriorityHigh
			if daysUntil <= e.cfg.UrgentRenewalDays {
				d.Priority = model.PriorityUrgent
			}
			d.Explanation = fmt.Sprintf("%s renews in %d days at %.0f%% utilization. Negotiate or adjust before renewal.",
				sctx.ToolName, daysUntil, utilization*100)
			return d
		}
	}

	d.Type = model.DecisionKeep
	d.Confidence = 0.7
	d.RiskScore = 0.1
	d.Explanation = fmt.Sprintf("%s shows healthy usage. No action needed.", sctx.ToolName)
	return d
}

// EvaluateAll evaluates every context snapshot.
func (e *EnterpriseEngine) EvaluateAll(contexts []model.SubscriptionContext) []model.Decision {
	decisions := make([]model.Decision, 0, len(contexts))
	for _, sctx := range contexts {
		decisions = append(decisions, e.Evaluate(sctx))
	}
	return decisions
}

func (e *EnterpriseEngine) computeFactors(sctx model.SubscriptionContext, now time.Time) []model.DecisionFactor {
	utilization := seatUtilization(sctx)
	annualCost := annualizedCost(sctx.AmountCents, sctx.Cycle)
	activityDays := daysSince(sctx.LastActivityAt, now)
	activityExplanation := "no activity data on record"
	if sctx.LastActivityAt != nil {
		activityExplanation = fmt.Sprintf("last activity %d days ago", activityDays)
	}
	factors := []model.DecisionFactor{
		{
			Name:        "seat_utilization",
			Value:       utilization,
			Weight:      0.30,
			Impact:      impactForUtilization(utilization, e.cfg),
			Explanation: fmt.Sprintf("%d of %d paid seats active", sctx.ActiveUsers, sctx.PaidSeats),
		},
		{
			Name:        "recent_activity",
			Value:       activityDays,
			Weight:      0.25,
			Impact:      impactForActivity(activityDays, e.cfg.InactiveDays),
			Explanation: activityExplanation,
		},
		{
			Name:        "dependency_weight",
			Value:       sctx.KeystoneScore,
			Weight:      0.20,
			Impact:      impactForKeystone(sctx.KeystoneScore, e.cfg.KeystoneThreshold),
			Explanation: fmt.Sprintf("%d dependent tools", sctx.DependencyCount),
		},
		{
			Name:        "annual_cost",
			Value:       annualCost,
			Weight:      0.15,
			Impact:      impactForCost(annualCost, e.cfg.ApprovalCostThreshold),
			Explanation: fmt.Sprintf("$%.2f per year", cents(annualCost)),
		},
	}

	renewalDays := -1
	if sctx.RenewalAt != nil {
		renewalDays = int(sctx.RenewalAt.Sub(now).Hours() / 24)
	}
	impact := model.ImpactNeutral
	explanation := "no renewal date on record"
	if renewalDays >= 0 {
		explanation = fmt.Sprintf("renews in %d days", renewalDays)
		if renewalDays < e.cfg.RenewalWindowDays {
			impact = model.ImpactNegative
		}
	}
	factors = append(factors, model.DecisionFactor{
		Name:        "renewal_proximity",
		Value:       renewalDays,
		Weight:      0.10,
		Impact:      impact,
		Explanation: explanation,
	})
	return factors
}

func seatUtilization(sctx model.SubscriptionContext) float64 {
	if sctx.PaidSeats <= 0 {
		return 1.0
	}
	return float64(sctx.ActiveUsers) / float64(sctx.PaidSeats)
}

// annualizedCost normalizes a per-cycle amount to a yearly figure. Unknown
// and one-time cycles are treated as monthly, the most common case.
func annualizedCost(amountCents int64, cycle model.BillingCycle) int64 {
	switch cycle {
	case model.CycleWeekly:
		return amountCents * 52
	case model.CycleQuarterly:
		return amountCents * 4
	case model.CycleYearly:
		return amountCents
	default:
		return amountCents * 12
	}
}

func daysSince(t *time.Time, now time.Time) int {
	if t == nil {
		return int(^uint(0) >> 1) // never seen: treat as maximally stale
	}
	return int(now.Sub(*t).Hours() / 24)
}

func riskLevelFor(score float64) model.RiskLevel {
	switch {
	case score >= 0.75:
		return model.RiskCritical
	case score >= 0.5:
		return model.RiskHigh
	case score >= 0.25:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func impactForUtilization(utilization float64, cfg EnterpriseConfig) model.FactorImpact {
	switch {
	case utilization >= cfg.HealthyUtilization:
		return model.ImpactPositive
	case utilization < cfg.ModerateUtilization:
		return model.ImpactNegative
	default:
		return model.ImpactNeutral
	}
}

func impactForActivity(days, inactiveDays int) model.FactorImpact {
	switch {
	case days > inactiveDays:
		return model.ImpactNegative
	case days <= 7:
		return model.ImpactPositive
	default:
		return model.ImpactNeutral
	}
}

func impactForKeystone(score, threshold float64) model.FactorImpact {
	if score >= threshold {
		return model.ImpactPositive
	}
	return model.ImpactNeutral
}

func impactForCost(annualCents, approvalThreshold int64) model.FactorImpact {
	if annualCents > approvalThreshold {
		return model.ImpactNegative
	}
	return model.ImpactNeutral
}

func cents(c int64) float64 {
	return float64(c) / 100
}
