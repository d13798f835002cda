package model

import "time"

// BillingCycle indicates how often a subscription charges.
type BillingCycle string

// Billing cycle constants.
const (
	CycleWeekly    BillingCycle = "weekly"
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
	CycleOneTime   BillingCycle = "one_time"
	CycleUnknown   BillingCycle = ""
)

// SubscriptionStatus indicates the lifecycle state of a subscription.
type SubscriptionStatus string

// Subscription status constants.
const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Provenance records where a candidate subscription came from.
type Provenance struct {
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Snippet   string `json:"snippet"`
	MessageID string `json:"message_id"`
}

// Candidate is a provisional subscription extracted from one email. It is
// consumed immediately by the deduplicator and never persisted directly.
type Candidate struct {
	ChargeDate    *time.Time
	NextRenewalAt *time.Time
	AmountCents   *int64
	VendorName    string
	VendorKey     string // lowercase, alphanumeric-only merge key
	Currency      string
	Cycle         BillingCycle
	Provenance    Provenance
	Confidence    float64
}

// Subscription is the durable entity reconciled from candidates. At most one
// active subscription exists per (user, vendor key) pair.
type Subscription struct {
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastChargeAt  *time.Time
	NextRenewalAt *time.Time
	AmountCents   *int64
	ID            string
	UserID        string
	VendorName    string
	VendorKey     string
	Currency      string
	Source        string // gmail or manual
	Cycle         BillingCycle
	Status        SubscriptionStatus
	Provenance    Provenance
	Confidence    float64
}
