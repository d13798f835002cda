package classifier

// Tables holds the lookup tables driving the billing gate and scorer. They
// are injected rather than hard-coded so deployments can extend them without
// touching control flow.
type Tables struct {
	// RestrictedDomains maps very high-volume consumer-platform domains to
	// the explicit allow-list of payment-sending addresses; everything else
	// from such a domain is denied.
	RestrictedDomains map[string][]string

	// KnownMerchants maps sender domains to merchant display names. A match
	// contributes to the candidate score.
	KnownMerchants map[string]string

	// BlockedDomains are sender domains that never send billing mail (job
	// boards, dev-collaboration notifiers). A blocked domain is still let
	// through when the sender local-part explicitly signals billing.
	BlockedDomains []string

	// BlockedSenderPatterns are local-part prefixes that mark generic
	// notification traffic.
	BlockedSenderPatterns []string

	// BillingIndicators is the subject vocabulary of which at least one
	// entry must be present.
	BillingIndicators []string

	// NonSubscriptionPatterns are regular expressions rejecting one-off
	// payment mail (recharges, utility bills, gift cards).
	NonSubscriptionPatterns []string

	// StrongBillingKeywords are the subject keywords that carry the largest
	// score contribution.
	StrongBillingKeywords []string
}

// DefaultTables returns the curated tables shipped with the application.
func DefaultTables() Tables {
	return Tables{
		BlockedDomains: []string{
			"linkedin.com",
			"github.com",
			"naukri.com",
			"indeed.com",
			"glassdoor.com",
			"monster.com",
			"hackerrank.com",
			"leetcode.com",
			"stackoverflow.com",
		},
		BlockedSenderPatterns: []string{
			"notifications@",
			"alerts@",
			"jobs@",
			"careers@",
			"newsletter@",
			"news@",
			"security@",
			"noreply@accounts",
			"no-reply@accounts",
			"notification@",
			"alert@",
			"marketing@",
			"promo@",
		},
		RestrictedDomains: map[string][]string{
			"google.com": {"payments@google.com", "googleplay@google.com"},
		},
		BillingIndicators: []string{
			"receipt",
			"invoice",
			"tax invoice",
			"charged",
			"payment successful",
			"payment received",
			"order total",
			"renewal",
			"subscription",
			"billed",
			"your order",
			"payment confirmation",
			"billing statement",
		},
		NonSubscriptionPatterns: []string{
			`mobile.*recharge`,
			`prepaid.*recharge`,
			`upi.*payment`,
			`wallet.*added`,
			`top.?up`,
			`electricity.*bill`,
			`water.*bill`,
			`gas.*bill`,
			`one.?time.*purchase`,
			`gift.*card`,
		},
		KnownMerchants: map[string]string{
			"netflix.com":      "Netflix",
			"spotify.com":      "Spotify",
			"apple.com":        "Apple",
			"amazon.com":       "Amazon Prime",
			"primevideo.com":   "Amazon Prime",
			"microsoft.com":    "Microsoft",
			"adobe.com":        "Adobe",
			"dropbox.com":      "Dropbox",
			"slack.com":        "Slack",
			"zoom.us":          "Zoom",
			"notion.so":        "Notion",
			"figma.com":        "Figma",
			"canva.com":        "Canva",
			"openai.com":       "OpenAI",
			"anthropic.com":    "Anthropic",
			"hulu.com":         "Hulu",
			"disneyplus.com":   "Disney+",
			"hbomax.com":       "HBO Max",
			"youtube.com":      "YouTube Premium",
			"grammarly.com":    "Grammarly",
			"1password.com":    "1Password",
			"nordvpn.com":      "NordVPN",
			"expressvpn.com":   "ExpressVPN",
			"evernote.com":     "Evernote",
			"todoist.com":      "Todoist",
			"linear.app":       "Linear",
			"vercel.com":       "Vercel",
			"netlify.com":      "Netlify",
			"digitalocean.com": "DigitalOcean",
			"cloudflare.com":   "Cloudflare",
			"cursor.com":       "Cursor",
			"chatgpt.com":      "ChatGPT",
			"claude.ai":        "Claude",
			"midjourney.com":   "Midjourney",
			"github.com":       "GitHub", // reachable only via the billing local-part exception
		},
		StrongBillingKeywords: []string{
			"receipt",
			"invoice",
			"charged",
			"billed",
			"renewal",
			"subscription",
			"monthly",
			"annual",
			"yearly",
		},
	}
}
