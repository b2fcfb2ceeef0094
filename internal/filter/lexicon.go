package filter

// Default lexicons. Matching is a case-insensitive substring test, which is a
// heuristic: it will miss some adult channels and catch a few innocent ones.
// Both lists are overridable from configuration.

// DefaultDenyTerms mark adult content in a channel name or category.
var DefaultDenyTerms = []string{
	"xxx", "porn", "sex", "adult", "erotic", "nude", "naked", "hentai",
	"amateur", "fetish", "bdsm", "milf", "shemale", "ladyboy", "escort",
	"18+", "+18",
	"onlyfans", "only fans", "manyvids", "webcam",
	"brazzers", "bangbros", "naughtyamerica", "realitykings", "evilangel",
	"blacked", "tushy", "vixen",
}

// DefaultDenyIDPrefixes mark adult channels by playlist tvg-id, e.g.
// "xxx.channel.us".
var DefaultDenyIDPrefixes = []string{"xxx.", "porn.", "sex.", "adult.", "erotic."}

// DefaultExceptions are masked out before deny terms are matched.
var DefaultExceptions = []string{
	"adult swim",
	"black jesus",
	"essex", "sussex", "middlesex", "wessex",
	"sexton",
}

// DefaultRadioTerms are matched as whole words.
var DefaultRadioTerms = []string{"radio"}

// DefaultNonDirectHosts serve web pages, not streams a media server can open.
var DefaultNonDirectHosts = []string{
	"youtube.com", "youtu.be",
	"twitch.tv",
	"dailymotion.com",
	"facebook.com",
}
