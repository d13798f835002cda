// Package extract turns classified billing emails into candidate
// subscription records and merges candidates per vendor.
package extract

import (
	"html"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/joshsymonds/subwatch/internal/model"
)

// Confidence weights for parsed candidates.
const (
	confidenceBase        = 0.3
	confidenceKnownVendor = 0.3
	confidenceAmount      = 0.2
	confidenceCycle       = 0.1
	confidenceReceipt     = 0.1
)

// maxPlausibleAmount bounds extracted amounts; anything above is treated as
// a parsing artifact rather than a real charge.
const maxPlausibleAmount = 1_000_000

var (
	emailAddrRe   = regexp.MustCompile(`<([^>]+)>|([^\s<]+@[^\s>]+)`)
	displayNameRe = regexp.MustCompile(`^([^<]+)`)
	domainRe      = regexp.MustCompile(`@([^.>\s]+)`)
	nonAlnumRe    = regexp.MustCompile(`[^a-z0-9]`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	ordinalRe     = regexp.MustCompile(`(\d+)(st|nd|rd|th)`)
)

// amountPatterns are tried in order; the first match with a plausible value
// wins. Commas are thousands separators.
var amountPatterns = []*regexp.Regexp{
	// Symbol-prefixed: $12.99, ₹ 1,499.00
	regexp.MustCompile(`[$€£₹]\s*([0-9][0-9,]*(?:\.[0-9]{1,3})?)`),
	// Rs. 1,499.00
	regexp.MustCompile(`(?i)\brs\.?\s*([0-9][0-9,]*(?:\.[0-9]{1,3})?)`),
	// Code-suffixed: 12.99 USD
	regexp.MustCompile(`(?i)\b([0-9][0-9,]*(?:\.[0-9]{1,3})?)\s*(?:usd|eur|gbp|cad|aud|inr)\b`),
	// Label-prefixed: Total: 12.99, Grand Total: 1,499.00
	regexp.MustCompile(`(?i)(?:grand\s+total|order\s+total|total\s+amount|total|amount|charged|paid|price|payable|received)[:\s]*(?:rs\.?\s*)?[$€£₹]?\s*([0-9][0-9,]*(?:\.[0-9]{2})?)`),
}

// currencyMarkers resolve the currency independently of the amount; the
// first marker found in the text wins, defaulting to USD.
var currencyMarkers = []struct {
	re   *regexp.Regexp
	code string
}{
	{regexp.MustCompile(`₹`), "INR"},
	{regexp.MustCompile(`(?i)\brs\.?\s*[0-9]`), "INR"},
	{regexp.MustCompile(`(?i)\binr\b`), "INR"},
	{regexp.MustCompile(`€`), "EUR"},
	{regexp.MustCompile(`£`), "GBP"},
	{regexp.MustCompile(`¥`), "JPY"},
	{regexp.MustCompile(`\$`), "USD"},
	{regexp.MustCompile(`(?i)\busd\b`), "USD"},
	{regexp.MustCompile(`(?i)\beur\b`), "EUR"},
	{regexp.MustCompile(`(?i)\bgbp\b`), "GBP"},
	{regexp.MustCompile(`(?i)\bcad\b`), "CAD"},
	{regexp.MustCompile(`(?i)\baud\b`), "AUD"},
}

// cycleVocabularies are checked in order; the first matching cycle wins.
var cycleVocabularies = []struct {
	cycle model.BillingCycle
	terms []string
}{
	{model.CycleMonthly, []string{"monthly", "per month", "/month", "/mo", "each month", "every month", "billed month"}},
	{model.CycleYearly, []string{"yearly", "annual", "per year", "/year", "/yr", "each year", "every year", "billed year", "12 months"}},
	{model.CycleWeekly, []string{"weekly", "per week", "/week", "/wk"}},
	{model.CycleQuarterly, []string{"quarterly", "per quarter", "every 3 months", "3 months"}},
}

const renewalDateCapture = `([a-zA-Z]+ \d{1,2}(?:st|nd|rd|th)?,? \d{4}|\d{1,2}(?:st|nd|rd|th)? [a-zA-Z]+ \d{4})`

var renewalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)next (?:payment|billing|charge|renewal)(?: date)? (?:is |will be )?(?:on |due )?(?:on )?\s*` + renewalDateCapture),
	regexp.MustCompile(`(?i)renews (?:on )?\s*` + renewalDateCapture),
	regexp.MustCompile(`(?i)valid (?:until|till)\s*` + renewalDateCapture),
	regexp.MustCompile(`(?i)expires (?:on )?\s*` + renewalDateCapture),
}

var renewalDateFormats = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// subscriptionKeywords feed the likelihood re-check that runs after the
// header gate, since the gate only inspected the subject.
var subscriptionKeywords = []string{
	"subscription", "receipt", "invoice", "payment", "billing",
	"order confirmation", "thank you for your order", "purchase",
	"charged", "renewal", "monthly", "annual", "plan",
}

var strongReceiptKeywords = []string{
	"receipt", "invoice", "payment received", "order confirmation",
}

// Parser extracts candidate subscriptions from billing emails.
type Parser struct {
	sanitizer  *bluemonday.Policy
	vendors    map[string]string
	vendorKeys []string // sorted for deterministic resolution
}

// NewParser creates a parser using the default known-vendor table.
func NewParser() *Parser {
	return NewParserWithVendors(KnownVendors)
}

// NewParserWithVendors creates a parser with an injected vendor table.
func NewParserWithVendors(vendors map[string]string) *Parser {
	keys := make([]string, 0, len(vendors))
	for k := range vendors {
		keys = append(keys, k)
	}
	// Longer keys first so the most specific vendor wins ties.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	return &Parser{
		vendors:    vendors,
		vendorKeys: keys,
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

// Parse extracts a subscription candidate from one email. It returns nil
// when the email fails vendor resolution or the subscription-likelihood
// re-check; such emails contribute nothing but are still marked processed
// by the caller.
func (p *Parser) Parse(msg *model.RawMessage) *model.Candidate {
	bodyText := p.cleanHTML(msg.Body)
	blob := strings.ToLower(strings.Join([]string{msg.Subject, msg.Snippet, bodyText}, " "))

	vendorName, vendorKey := p.resolveVendor(msg.From)
	if vendorName == "" {
		return nil
	}

	if !p.looksLikeSubscription(blob, strings.ToLower(msg.Subject)) {
		return nil
	}

	amountCents, currency := p.extractAmount(blob)
	cycle := p.extractCycle(blob)
	renewalAt := p.extractRenewalDate(blob)

	var chargeDate *time.Time
	if !msg.Date.IsZero() {
		d := msg.Date
		chargeDate = &d
	}

	return &model.Candidate{
		VendorName:    vendorName,
		VendorKey:     vendorKey,
		AmountCents:   amountCents,
		Currency:      currency,
		Cycle:         cycle,
		ChargeDate:    chargeDate,
		NextRenewalAt: renewalAt,
		Confidence:    p.confidence(vendorName, amountCents, cycle, blob),
		Provenance: model.Provenance{
			From:      msg.From,
			Subject:   msg.Subject,
			Snippet:   msg.Snippet,
			MessageID: msg.ID,
		},
	}
}

func (p *Parser) cleanHTML(text string) string {
	clean := p.sanitizer.Sanitize(text)
	clean = html.UnescapeString(clean)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(clean, " "))
}

// resolveVendor resolves (displayName, normalizedKey) from the sender
// header, in order: known vendor by address domain, known vendor by display
// name, plausible display name verbatim, title-cased domain as last resort.
func (p *Parser) resolveVendor(from string) (string, string) {
	if m := emailAddrRe.FindStringSubmatch(from); m != nil {
		addr := m[1]
		if addr == "" {
			addr = m[2]
		}
		if at := strings.LastIndex(addr, "@"); at >= 0 {
			domain := strings.ToLower(addr[at+1:])
			if dot := strings.Index(domain, "."); dot >= 0 {
				domain = domain[:dot]
			}
			for _, key := range p.vendorKeys {
				if strings.Contains(domain, key) {
					return p.vendors[key], key
				}
			}
		}
	}

	if m := displayNameRe.FindStringSubmatch(from); m != nil && !strings.Contains(m[1], "@") {
		displayName := strings.Trim(strings.TrimSpace(m[1]), `"`)
		normalized := NormalizeVendor(displayName)
		for _, key := range p.vendorKeys {
			if strings.Contains(normalized, key) {
				return p.vendors[key], key
			}
		}
		if len(displayName) > 1 && len(displayName) < 50 {
			return displayName, normalized
		}
	}

	if m := domainRe.FindStringSubmatch(from); m != nil {
		domain := strings.ToLower(m[1])
		return titleCase(domain), domain
	}

	return "", ""
}

// NormalizeVendor produces the lowercase alphanumeric merge key for a
// vendor display name, with common corporate suffixes stripped.
func NormalizeVendor(name string) string {
	normalized := strings.ToLower(name)
	for _, suffix := range corporateSuffixes {
		normalized = strings.ReplaceAll(normalized, suffix, "")
	}
	return nonAlnumRe.ReplaceAllString(normalized, "")
}

// looksLikeSubscription is the defense-in-depth re-check: subject keywords
// pass directly, body text needs at least two distinct keywords.
func (p *Parser) looksLikeSubscription(blob, subject string) bool {
	for _, keyword := range subscriptionKeywords {
		if strings.Contains(subject, keyword) {
			return true
		}
	}

	count := 0
	for _, keyword := range subscriptionKeywords {
		if strings.Contains(blob, keyword) {
			count++
		}
	}
	return count >= 2
}

func (p *Parser) extractAmount(blob string) (*int64, string) {
	currency := "USD"
	for _, marker := range currencyMarkers {
		if marker.re.MatchString(blob) {
			currency = marker.code
			break
		}
	}

	for _, re := range amountPatterns {
		for _, match := range re.FindAllStringSubmatch(blob, -1) {
			raw := strings.ReplaceAll(match[1], ",", "")
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			if value < 0 || value > maxPlausibleAmount {
				continue
			}
			cents := int64(math.Round(value * 100))
			return &cents, currency
		}
	}

	return nil, currency
}

func (p *Parser) extractCycle(blob string) model.BillingCycle {
	for _, vocab := range cycleVocabularies {
		for _, term := range vocab.terms {
			if strings.Contains(blob, term) {
				return vocab.cycle
			}
		}
	}
	return model.CycleUnknown
}

func (p *Parser) extractRenewalDate(blob string) *time.Time {
	for _, re := range renewalPatterns {
		match := re.FindStringSubmatch(blob)
		if match == nil {
			continue
		}
		raw := ordinalRe.ReplaceAllString(match[1], "$1")
		for _, format := range renewalDateFormats {
			if t, err := time.Parse(format, titleCase(raw)); err == nil {
				return &t
			}
		}
	}
	return nil
}

func (p *Parser) confidence(vendorName string, amountCents *int64, cycle model.BillingCycle, blob string) float64 {
	score := confidenceBase

	if _, known := p.vendors[NormalizeVendor(vendorName)]; known {
		score += confidenceKnownVendor
	}
	if amountCents != nil {
		score += confidenceAmount
	}
	if cycle != model.CycleUnknown {
		score += confidenceCycle
	}
	for _, keyword := range strongReceiptKeywords {
		if strings.Contains(blob, keyword) {
			score += confidenceReceipt
			break
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// titleCase upper-cases the first letter of each space-separated word.
// Month names arrive lower-cased from the search blob, and time.Parse wants
// them capitalized.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
