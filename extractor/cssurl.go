package extractor

import (
	"regexp"
	"strings"
)

// cssURLPattern matches url(...) with optional single or double quotes.
var cssURLPattern = regexp.MustCompile(`(?i)url\(\s*['"]?([^)'"]+)['"]?\s*\)`)

// URLMatch is one URL found inside a text value.
type URLMatch struct {
	Match  string // Full matched token, e.g. url('bg.jpg')
	URL    string // URL text inside the token
	Offset int    // Byte offset of Match in the scanned text
}

// ExtractURLs returns every url(...) reference in CSS text, in order.
func ExtractURLs(text string) []URLMatch {
	var matches []URLMatch
	for _, loc := range cssURLPattern.FindAllStringSubmatchIndex(text, -1) {
		u := strings.TrimSpace(text[loc[2]:loc[3]])
		if u == "" {
			continue
		}
		matches = append(matches, URLMatch{
			Match:  text[loc[0]:loc[1]],
			URL:    u,
			Offset: loc[0],
		})
	}
	return matches
}

// ReplaceURLToken returns token with its URL swapped for replacement. The
// URL is the last occurrence of rawURL, since only quotes, spaces and the
// closing parenthesis may follow it.
func ReplaceURLToken(token, rawURL, replacement string) string {
	i := strings.LastIndex(token, rawURL)
	if i < 0 {
		return token
	}
	return token[:i] + replacement + token[i+len(rawURL):]
}

// SrcsetCandidates returns the URL of each image candidate in a srcset
// attribute value. A URL is a run of non-whitespace; commas inside it are
// part of the URL unless they trail it.
func SrcsetCandidates(srcset string) []URLMatch {
	var matches []URLMatch
	i, n := 0, len(srcset)
	for {
		for i < n && (isSrcsetSpace(srcset[i]) || srcset[i] == ',') {
			i++
		}
		if i >= n {
			return matches
		}

		start := i
		for i < n && !isSrcsetSpace(srcset[i]) {
			i++
		}
		u := srcset[start:i]
		if trimmed := strings.TrimRight(u, ","); len(trimmed) < len(u) {
			// trailing commas end a candidate without descriptors
			u = trimmed
		} else {
			i = skipDescriptors(srcset, i)
		}

		matches = append(matches, URLMatch{Match: u, URL: u, Offset: start})
	}
}

// skipDescriptors returns the index just past the comma that ends the
// descriptors starting at i. Commas inside parentheses do not count.
func skipDescriptors(s string, i int) int {
	inParens := false
	for ; i < len(s); i++ {
		switch s[i] {
		case '(':
			inParens = true
		case ')':
			inParens = false
		case ',':
			if !inParens {
				return i + 1
			}
		}
	}
	return i
}

func isSrcsetSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// ReplaceSrcsetURL swaps every candidate URL equal to rawURL, leaving
// descriptors and spacing untouched.
func ReplaceSrcsetURL(srcset, rawURL, replacement string) string {
	var b strings.Builder
	last := 0
	for _, c := range SrcsetCandidates(srcset) {
		if c.URL != rawURL {
			continue
		}
		b.WriteString(srcset[last:c.Offset])
		b.WriteString(replacement)
		last = c.Offset + len(c.URL)
	}
	b.WriteString(srcset[last:])
	return b.String()
}
