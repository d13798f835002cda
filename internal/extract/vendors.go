package extract

// KnownVendors maps normalized vendor keys to display names. Matching a key
// anywhere in the sender domain or display name resolves the vendor and
// contributes to candidate confidence.
var KnownVendors = map[string]string{
	"netflix":      "Netflix",
	"spotify":      "Spotify",
	"apple":        "Apple",
	"google":       "Google",
	"amazon":       "Amazon",
	"microsoft":    "Microsoft",
	"adobe":        "Adobe",
	"dropbox":      "Dropbox",
	"slack":        "Slack",
	"zoom":         "Zoom",
	"github":       "GitHub",
	"notion":       "Notion",
	"figma":        "Figma",
	"canva":        "Canva",
	"openai":       "OpenAI",
	"anthropic":    "Anthropic",
	"hulu":         "Hulu",
	"disney":       "Disney+",
	"hbo":          "HBO Max",
	"paramount":    "Paramount+",
	"youtube":      "YouTube",
	"twitch":       "Twitch",
	"linkedin":     "LinkedIn",
	"grammarly":    "Grammarly",
	"1password":    "1Password",
	"lastpass":     "LastPass",
	"nordvpn":      "NordVPN",
	"expressvpn":   "ExpressVPN",
	"evernote":     "Evernote",
	"todoist":      "Todoist",
	"asana":        "Asana",
	"trello":       "Trello",
	"mailchimp":    "Mailchimp",
	"squarespace":  "Squarespace",
	"wix":          "Wix",
	"shopify":      "Shopify",
	"heroku":       "Heroku",
	"vercel":       "Vercel",
	"netlify":      "Netlify",
	"digitalocean": "DigitalOcean",
	"aws":          "AWS",
	"cloudflare":   "Cloudflare",
	"hotstar":      "Disney+ Hotstar",
	"zee5":         "ZEE5",
	"sony":         "Sony LIV",
	"jio":          "Jio Cinema",
	"swiggy":       "Swiggy One",
	"zomato":       "Zomato Gold",
	"rapido":       "Rapido",
	"uber":         "Uber",
	"ola":          "Ola",
	"tataneu":      "Tata Neu",
	"cult":         "Cult.fit",
	"itunes":       "iTunes",
}

// corporateSuffixes are stripped during vendor key normalization.
var corporateSuffixes = []string{" inc", " llc", " ltd", " corp", " co"}
