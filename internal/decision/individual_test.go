package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/joshsymonds/subwatch/internal/model"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestIndividualEngine() *IndividualEngine {
	e := NewIndividualEngine(DefaultIndividualConfig())
	e.now = func() time.Time { return testNow }
	return e
}

func int64Ptr(v int64) *int64        { return &v }
func timePtr(t time.Time) *time.Time { return &t }

func TestIndividualEngine_Evaluate(t *testing.T) {
	tests := []struct {
		name           string
		sub            model.Subscription
		emailCount     int
		wantType       model.DecisionType
		wantConfidence float64
	}{
		{
			name: "cancelled subscription needs nothing",
			sub: model.Subscription{
				ID:     "sub-1",
				Status: model.SubscriptionCancelled,
			},
			wantType:       model.DecisionKeep,
			wantConfidence: 1.0,
		},
		{
			name: "inactive beyond window",
			sub: model.Subscription{
				ID:           "sub-2",
				Status:       model.SubscriptionActive,
				LastChargeAt: timePtr(testNow.AddDate(0, 0, -120)),
				AmountCents:  int64Ptr(999),
			},
			emailCount:     5,
			wantType:       model.DecisionCancel,
			wantConfidence: 0.85,
		},
		{
			name: "expensive with minimal usage",
			sub: model.Subscription{
				ID:           "sub-3",
				Status:       model.SubscriptionActive,
				LastChargeAt: timePtr(testNow.AddDate(0, 0, -10)),
				AmountCents:  int64Ptr(2500),
			},
			emailCount:     1,
			wantType:       model.DecisionReview,
			wantConfidence: 0.75,
		},
		{
			name: "renewal imminent without charge history",
			sub: model.Subscription{
				ID:            "sub-4",
				Status:        model.SubscriptionActive,
				AmountCents:   int64Ptr(1599),
				NextRenewalAt: timePtr(testNow.AddDate(0, 0, 3)),
			},
			emailCount:     4,
			wantType:       model.DecisionRemind,
			wantConfidence: 0.9,
		},
		{
			name: "healthy subscription kept",
			sub: model.Subscription{
				ID:           "sub-5",
				Status:       model.SubscriptionActive,
				LastChargeAt: timePtr(testNow.AddDate(0, 0, -10)),
				AmountCents:  int64Ptr(999),
			},
			emailCount:     4,
			wantType:       model.DecisionKeep,
			wantConfidence: 0.7,
		},
		{
			name: "cheap with low usage still kept",
			sub: model.Subscription{
				ID:           "sub-6",
				Status:       model.SubscriptionActive,
				LastChargeAt: timePtr(testNow.AddDate(0, 0, -10)),
				AmountCents:  int64Ptr(499),
			},
			emailCount:     1,
			wantType:       model.DecisionKeep,
			wantConfidence: 0.7,
		},
		{
			name: "renewal already past does not remind",
			sub: model.Subscription{
				ID:            "sub-7",
				Status:        model.SubscriptionActive,
				LastChargeAt:  timePtr(testNow.AddDate(0, 0, -10)),
				NextRenewalAt: timePtr(testNow.AddDate(0, 0, -2)),
			},
			emailCount:     4,
			wantType:       model.DecisionKeep,
			wantConfidence: 0.7,
		},
	}

	e := newTestIndividualEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Evaluate(tt.sub, tt.emailCount)
			assert.Equal(t, tt.wantType, d.Type)
			assert.InDelta(t, tt.wantConfidence, d.Confidence, 0.001)
			assert.Equal(t, tt.sub.ID, d.SubscriptionID)
			assert.Equal(t, model.DecisionPending, d.Status)
			assert.NotEmpty(t, d.Explanation)
		})
	}
}

func TestIndividualEngine_RuleOrder(t *testing.T) {
	e := newTestIndividualEngine()

	// Inactivity outranks the imminent-renewal rule when both apply.
	sub := model.Subscription{
		ID:            "sub-8",
		Status:        model.SubscriptionActive,
		LastChargeAt:  timePtr(testNow.AddDate(0, 0, -200)),
		NextRenewalAt: timePtr(testNow.AddDate(0, 0, 2)),
		AmountCents:   int64Ptr(2500),
	}
	d := e.Evaluate(sub, 0)
	assert.Equal(t, model.DecisionCancel, d.Type)
}

func TestActionable(t *testing.T) {
	decisions := []model.Decision{
		{SubscriptionID: "a", Type: model.DecisionKeep},
		{SubscriptionID: "b", Type: model.DecisionCancel},
		{SubscriptionID: "c", Type: model.DecisionRemind},
		{SubscriptionID: "d", Type: model.DecisionKeep},
	}

	actionable := Actionable(decisions)
	assert.Len(t, actionable, 2)
	assert.Equal(t, "b", actionable[0].SubscriptionID)
	assert.Equal(t, "c", actionable[1].SubscriptionID)
}

func TestPotentialSavings(t *testing.T) {
	subs := map[string]model.Subscription{
		"a": {AmountCents: int64Ptr(1299)},
		"b": {AmountCents: int64Ptr(2500)},
		"c": {AmountCents: int64Ptr(999)},
		"d": {}, // no amount on record
	}
	decisions := []model.Decision{
		{SubscriptionID: "a", Type: model.DecisionCancel},
		{SubscriptionID: "b", Type: model.DecisionReview},
		{SubscriptionID: "c", Type: model.DecisionKeep},
		{SubscriptionID: "d", Type: model.DecisionCancel},
	}

	assert.Equal(t, int64(3799), PotentialSavings(decisions, subs))
}
