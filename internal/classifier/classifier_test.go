package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(DefaultTables())
	require.NoError(t, err)
	c.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return c
}

func TestClassifier_PassesGate(t *testing.T) {
	tests := []struct {
		name    string
		sender  string
		subject string
		want    bool
	}{
		{
			name:    "known merchant receipt",
			sender:  "Netflix <info@netflix.com>",
			subject: "Your Netflix receipt",
			want:    true,
		},
		{
			name:    "blocked domain notification",
			sender:  "GitHub <alerts@github.com>",
			subject: "Your receipt from GitHub",
			want:    false,
		},
		{
			name:    "blocked domain with billing local part",
			sender:  "GitHub <billing@github.com>",
			subject: "Your receipt from GitHub",
			want:    true,
		},
		{
			name:    "blocked sender pattern",
			sender:  "Acme <notifications@acme.com>",
			subject: "Payment received for your subscription",
			want:    false,
		},
		{
			name:    "restricted domain outside allow list",
			sender:  "Google <workspace-noreply@google.com>",
			subject: "Your invoice is ready",
			want:    false,
		},
		{
			name:    "restricted domain on allow list",
			sender:  "Google Payments <payments@google.com>",
			subject: "Your invoice is ready",
			want:    true,
		},
		{
			name:    "no billing indicator in subject",
			sender:  "Spotify <info@spotify.com>",
			subject: "New music for you this week",
			want:    false,
		},
		{
			name:    "mobile recharge rejected",
			sender:  "Payments <receipts@paytm.com>",
			subject: "Receipt for your mobile recharge",
			want:    false,
		},
		{
			name:    "utility bill rejected",
			sender:  "Utility Co <billing@utilityco.com>",
			subject: "Payment received: electricity bill for June",
			want:    false,
		},
		{
			name:    "gift card rejected",
			sender:  "Amazon <order-update@amazon.com>",
			subject: "Your order: gift card delivered",
			want:    false,
		},
	}

	c := newTestClassifier(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.PassesGate(tt.sender, tt.subject))
		})
	}
}

func TestClassifier_Score(t *testing.T) {
	c := newTestClassifier(t)
	now := c.now()

	tests := []struct {
		name    string
		sender  string
		subject string
		date    time.Time
		want    float64
	}{
		{
			name:    "strong keyword plus known merchant plus recent",
			sender:  "Netflix <info@netflix.com>",
			subject: "Your Netflix receipt",
			date:    now.AddDate(0, 0, -3),
			want:    1.0,
		},
		{
			name:    "strong keyword only",
			sender:  "Tiny SaaS <hello@tinysaas.io>",
			subject: "Invoice #1042",
			date:    now.AddDate(0, 0, -120),
			want:    0.5,
		},
		{
			name:    "known merchant and recent but weak subject",
			sender:  "Spotify <info@spotify.com>",
			subject: "Payment confirmation",
			date:    now.AddDate(0, 0, -10),
			want:    0.5,
		},
		{
			name:    "nothing matches",
			sender:  "Unknown <mail@unknown.example>",
			subject: "Hello there",
			date:    time.Time{},
			want:    0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, c.Score(tt.sender, tt.subject, tt.date), 0.001)
		})
	}
}

func TestClassifier_IsCandidate(t *testing.T) {
	c := newTestClassifier(t)
	now := c.now()

	// Gate passes and score reaches the threshold.
	assert.True(t, c.IsCandidate("Netflix <info@netflix.com>", "Your Netflix receipt", now.AddDate(0, 0, -1)))

	// Gate passes but the score stays below the threshold: indicator
	// matched, but no strong keyword and no known merchant.
	assert.False(t, c.IsCandidate("Tiny SaaS <hello@tinysaas.io>", "Payment confirmation", now.AddDate(0, 0, -1)))

	// Gate failure short-circuits regardless of score.
	assert.False(t, c.IsCandidate("GitHub <alerts@github.com>", "Your receipt from GitHub", now.AddDate(0, 0, -1)))
}

func TestClassifier_InvalidRejectPattern(t *testing.T) {
	tables := DefaultTables()
	tables.NonSubscriptionPatterns = append(tables.NonSubscriptionPatterns, `broken(`)

	_, err := New(tables)
	require.Error(t, err)
}
