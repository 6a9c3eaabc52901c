// Package urlnorm turns media URLs scraped from embed pages into absolute URLs.
package urlnorm

import (
	"net/url"
	"regexp"
	"strings"
)

// schemePattern matches an explicit scheme such as "https://".
var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// unescaper undoes the escaping that JS string literals and JSON apply to URLs.
var unescaper = strings.NewReplacer(
	`\/`, `/`,
	`\"`, `"`,
	`\'`, `'`,
	`\u002F`, `/`,
	`\u002f`, `/`,
)

// Unescape strips backslash escapes of quotes and slashes and unicode slash escapes.
func Unescape(s string) string {
	return unescaper.Replace(strings.TrimSpace(s))
}

// ToAbsolute resolves candidate relative to baseURL.
// It returns false only when baseURL is not a parseable absolute URL; otherwise the result
// is a best-effort absolute string.
func ToAbsolute(candidate, baseURL string) (string, bool) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", false
	}

	c := Unescape(candidate)
	origin := base.Scheme + "://" + base.Host

	switch {
	case schemePattern.MatchString(c):
		return c, true
	case strings.HasPrefix(c, "//"):
		return "https:" + c, true
	case strings.HasPrefix(c, "/"):
		return origin + c, true
	default:
		return directory(origin, base.Path) + c, true
	}
}

// directory returns origin+path up to and including the last slash.
func directory(origin, path string) string {
	if path == "" {
		return origin + "/"
	}
	full := origin + path
	return full[:strings.LastIndex(full, "/")+1]
}
