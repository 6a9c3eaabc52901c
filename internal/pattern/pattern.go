// Package pattern scans raw embed page text for media URLs.
// Everything here is a pure function over its input so it can be tested with literal fixtures.
package pattern

import (
	"encoding/base64"
	"iter"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"sportstream/internal/media"
	"sportstream/internal/urlnorm"
)

// Candidate is a media URL as found in the text, before normalization.
type Candidate struct {
	URL  string
	Kind media.Kind
}

// Patterns for player-configuration idioms, tried in order:
// 0: file: "..." / source = '...' (JS field assignment)
// 1: "file":"..." (JSON-like key/value, slashes possibly escaped)
// 2: any quoted string carrying a media extension (last resort)
var (
	fieldPattern = regexp.MustCompile(
		`(?i)\b(?:file|src|source|hls|hlsurl|url|stream|streamurl|video|videourl|playlist)\s*[:=]\s*["'` + "`" + `]([^"'` + "`" + `\s]+?\.(?:m3u8|mp4)[^"'` + "`" + `\s]*)["'` + "`" + `]`)

	jsonPattern = regexp.MustCompile(
		`(?i)"(?:file|src|source|hls|hlsurl|url|stream|streamurl|videourl|playlist)"\s*:\s*"([^"]+?\.(?:m3u8|mp4)[^"]*)"`)

	quotedPattern = regexp.MustCompile(
		`(?i)["'` + "`" + `]([^"'` + "`" + `\s<>]*\.(?:m3u8|mp4)[^"'` + "`" + `\s<>]*)["'` + "`" + `]`)

	// decodePattern matches decode-like calls wrapping a base64 literal:
	// atob("..."), base64_decode('...'), Base64.decode("..."), b64decode("..."), decode("...").
	decodePattern = regexp.MustCompile(
		`(?i)(?:atob|base64_decode|base64\.decode|b64decode|decode)\s*\(\s*["'` + "`" + `]([A-Za-z0-9+/_=-]{8,})["'` + "`" + `]\s*\)`)
)

// decodedPatterns are the regex scanners applied to decoded payloads.
var decodedPatterns = []*regexp.Regexp{fieldPattern, jsonPattern, quotedPattern}

// mediaAttrs are the tag attributes inspected by the DOM scan.
var mediaAttrs = []string{"src", "data-src", "data-file", "data-hls", "data-url"}

// Candidates returns every media URL found in text, in discovery order, without duplicates.
// The sequence is lazy and can be ranged over any number of times with the same result.
func Candidates(text string) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		seen := make(map[string]bool)

		scans := []iter.Seq[string]{
			submatches(fieldPattern, text),
			submatches(jsonPattern, text),
			tagAttributes(text),
			decodedPayloads(text),
			submatches(quotedPattern, text),
		}

		for _, scan := range scans {
			for raw := range scan {
				key := urlnorm.Unescape(raw)
				if key == "" || seen[key] || !media.HasMediaExtension(key) {
					continue
				}
				seen[key] = true
				if !yield(Candidate{URL: raw, Kind: media.KindOf(key)}) {
					return
				}
			}
		}
	}
}

// Best picks the highest-priority candidate: hls over mp4 over unknown,
// first discovered within the same kind.
func Best(candidates iter.Seq[Candidate]) (Candidate, bool) {
	var best Candidate
	found := false
	for c := range candidates {
		if !found || c.Kind.Priority() > best.Kind.Priority() {
			best = c
			found = true
		}
	}
	return best, found
}

// submatches lazily yields the first capture group of each non-overlapping match.
func submatches(re *regexp.Regexp, text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for off := 0; off < len(text); {
			loc := re.FindStringSubmatchIndex(text[off:])
			if loc == nil {
				return
			}
			if loc[2] >= 0 && !yield(text[off+loc[2]:off+loc[3]]) {
				return
			}
			if loc[1] == 0 {
				off++
			} else {
				off += loc[1]
			}
		}
	}
}

// tagAttributes yields media-looking attribute values from <video>, <source> and data-* tags.
func tagAttributes(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if !strings.Contains(text, "<") {
			return
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
		if err != nil {
			return
		}

		doc.Find("video, source, [data-src], [data-file], [data-hls], [data-url]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			for _, attr := range mediaAttrs {
				v, ok := s.Attr(attr)
				if !ok || !media.HasMediaExtension(v) {
					continue
				}
				if !yield(strings.TrimSpace(v)) {
					return false
				}
			}
			return true
		})
	}
}

// decodedPayloads yields URLs hidden inside base64 literals passed to decode-like calls.
func decodedPayloads(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for literal := range submatches(decodePattern, text) {
			decoded, ok := decodeBase64(literal)
			if !ok || !media.HasMediaExtension(decoded) {
				continue
			}

			decoded = strings.TrimSpace(decoded)
			if !strings.ContainsAny(decoded, "\"'` \n<") {
				if !yield(decoded) {
					return
				}
				continue
			}

			// Decoded to a config blob rather than a bare URL.
			for _, re := range decodedPatterns {
				for raw := range submatches(re, decoded) {
					if !yield(raw) {
						return
					}
				}
			}
		}
	}
}

// decodeBase64 tries the standard and URL-safe alphabets, padded and raw.
// Results that are not printable UTF-8 text are rejected.
func decodeBase64(s string) (string, bool) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err != nil {
			continue
		}
		out := string(b)
		if utf8.ValidString(out) && printable(out) {
			return out, true
		}
	}
	return "", false
}

func printable(s string) bool {
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}
