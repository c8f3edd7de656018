package auth

import "regexp"

// botSignatures are matched case-insensitively against the User-Agent header.
// Besides obvious crawler markers the list covers generic HTTP client
// libraries, which browsers never announce.
var botSignatures = regexp.MustCompile(`(?i)` +
	`bot|crawler|spider|scraper|curl|wget|` +
	`python-requests|python-urllib|aiohttp|go-http-client|java/|okhttp|` +
	`axios|node-fetch|libwww-perl|httpclient|headless`)

// LooksLikeBot reports whether userAgent matches a known automated-client
// signature. An empty user agent counts as a bot.
func LooksLikeBot(userAgent string) bool {
	if userAgent == "" {
		return true
	}
	return botSignatures.MatchString(userAgent)
}
