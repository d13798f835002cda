package model

import "time"

// DecisionType is the recommended action for a subscription.
type DecisionType string

// Decision type constants.
const (
	DecisionKeep     DecisionType = "keep"
	DecisionCancel   DecisionType = "cancel"
	DecisionReview   DecisionType = "review"
	DecisionRemind   DecisionType = "remind"
	DecisionDownsize DecisionType = "downsize"
)

// RiskLevel rates how risky it is to act on a decision.
type RiskLevel string

// Risk level constants.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Priority rates how urgently a decision should be acted on.
type Priority string

// Priority constants.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// FactorImpact indicates how a factor pushed the decision.
type FactorImpact string

// Factor impact constants.
const (
	ImpactPositive FactorImpact = "positive"
	ImpactNegative FactorImpact = "negative"
	ImpactNeutral  FactorImpact = "neutral"
)

// DecisionStatus tracks the approve/reject/execute lifecycle of a persisted
// decision. Transitions: pending -> approved|rejected, approved -> executed.
type DecisionStatus string

// Decision status constants.
const (
	DecisionPending  DecisionStatus = "pending"
	DecisionApproved DecisionStatus = "approved"
	DecisionRejected DecisionStatus = "rejected"
	DecisionExecuted DecisionStatus = "executed"
)

// DecisionFactor is a single weighted signal contributing to a decision.
type DecisionFactor struct {
	Value       any          `json:"value"`
	Name        string       `json:"name"`
	Impact      FactorImpact `json:"impact"`
	Explanation string       `json:"explanation"`
	Weight      float64      `json:"weight"`
}

// Decision is a recommendation produced by one engine run. It is persisted
// with status pending and mutated only through the approve/reject/execute
// state machine.
type Decision struct {
	CreatedAt        time.Time
	DueDate          *time.Time
	RecommendedSeats *int
	ID               string
	SubscriptionID   string
	Explanation      string
	Factors          []DecisionFactor
	Type             DecisionType
	RiskLevel        RiskLevel
	Priority         Priority
	Status           DecisionStatus
	SavingsCents     int64
	Confidence       float64
	RiskScore        float64
	RequiresApproval bool
}

// SubscriptionContext carries everything the enterprise engine needs to make
// a decision about one subscription. It is a pure value snapshot; the engine
// never reads additional state.
type SubscriptionContext struct {
	LastActivityAt  *time.Time
	RenewalAt       *time.Time
	ContractEndAt   *time.Time
	SubscriptionID  string
	ToolID          string
	ToolName        string
	OrgID           string
	OwnerID         string
	OwnerName       string
	Category        string
	Cycle           BillingCycle
	DependentTools  []string
	PaidSeats       int
	ActiveUsers     int
	AmountCents     int64
	DependencyCount int
	KeystoneScore   float64 // 0-1, normalized count of tools depending on this one
	AutoRenew       bool
	OwnerActive     bool
}
