// Package classifier decides whether a raw email is a billing candidate
// worth a full-body fetch, using only sender and subject heuristics.
package classifier

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Scoring weights and thresholds.
const (
	// ScoreThreshold is the minimum score for promotion to full parsing.
	ScoreThreshold = 0.7

	strongKeywordWeight = 0.5
	knownMerchantWeight = 0.3
	recencyWeight       = 0.2
	recencyWindowDays   = 45
)

// Classifier applies the hard billing gate and the candidate scorer. The
// gate runs on headers only, keeping expensive full-message retrieval
// limited to high-likelihood candidates.
type Classifier struct {
	now       func() time.Time
	tables    Tables
	rejectRes []*regexp.Regexp
}

// New creates a classifier from the given tables, compiling the reject
// vocabulary up front.
func New(tables Tables) (*Classifier, error) {
	rejectRes := make([]*regexp.Regexp, 0, len(tables.NonSubscriptionPatterns))
	for _, pattern := range tables.NonSubscriptionPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile reject pattern %q: %w", pattern, err)
		}
		rejectRes = append(rejectRes, re)
	}

	return &Classifier{
		tables:    tables,
		rejectRes: rejectRes,
		now:       time.Now,
	}, nil
}

// PassesGate reports whether an email clears the hard billing gate. All
// checks must hold; the gate is a strict precondition for scoring and
// parsing.
func (c *Classifier) PassesGate(sender, subject string) bool {
	senderLower := strings.ToLower(sender)
	subjectLower := strings.ToLower(subject)

	// Blocked sender domains, with the billing local-part exception.
	for _, blocked := range c.tables.BlockedDomains {
		if strings.Contains(senderLower, blocked) && !strings.Contains(localPart(senderLower), "billing") {
			return false
		}
	}

	for _, pattern := range c.tables.BlockedSenderPatterns {
		if strings.Contains(senderLower, pattern) {
			return false
		}
	}

	// Restricted domains are default-deny outside their allow-list.
	for domain, allowed := range c.tables.RestrictedDomains {
		if !strings.Contains(senderLower, domain) {
			continue
		}
		permitted := false
		for _, addr := range allowed {
			if strings.Contains(senderLower, addr) {
				permitted = true
				break
			}
		}
		if !permitted {
			return false
		}
	}

	// At least one billing indicator must appear in the subject.
	hasIndicator := false
	for _, indicator := range c.tables.BillingIndicators {
		if strings.Contains(subjectLower, indicator) {
			hasIndicator = true
			break
		}
	}
	if !hasIndicator {
		return false
	}

	// Reject non-subscription payment mail.
	for _, re := range c.rejectRes {
		if re.MatchString(subjectLower) {
			return false
		}
	}

	return true
}

// Score rates a gate-passing email in [0, 1]. Only emails scoring at least
// ScoreThreshold are promoted to full parsing.
func (c *Classifier) Score(sender, subject string, date time.Time) float64 {
	senderLower := strings.ToLower(sender)
	subjectLower := strings.ToLower(subject)

	score := 0.0

	for _, keyword := range c.tables.StrongBillingKeywords {
		if strings.Contains(subjectLower, keyword) {
			score += strongKeywordWeight
			break
		}
	}

	for domain := range c.tables.KnownMerchants {
		if strings.Contains(senderLower, domain) {
			score += knownMerchantWeight
			break
		}
	}

	if !date.IsZero() && c.now().Sub(date) <= recencyWindowDays*24*time.Hour {
		score += recencyWeight
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// IsCandidate combines the gate and the scorer.
func (c *Classifier) IsCandidate(sender, subject string, date time.Time) bool {
	return c.PassesGate(sender, subject) && c.Score(sender, subject, date) >= ScoreThreshold
}

func localPart(addr string) string {
	// Sender headers look like `Name <local@domain>` or a bare address.
	if start := strings.LastIndex(addr, "<"); start >= 0 {
		addr = addr[start+1:]
	}
	if at := strings.Index(addr, "@"); at >= 0 {
		return addr[:at]
	}
	return addr
}
