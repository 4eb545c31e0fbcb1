// Package urlextract finds mega.nz share URLs and .dlc container paths
// inside arbitrary text, normalizing legacy URL forms and unwrapping
// text that has been base64-encoded one or more times.
package urlextract

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxBase64Rounds = 3

var (
	legacyFolderRe = regexp.MustCompile(`https?://mega\.nz/#F!([^\s"'<>\[\](){}!]+)!([^\s"'<>\[\](){}]+)`)
	legacyFileRe   = regexp.MustCompile(`https?://mega\.nz/#!([^\s"'<>\[\](){}!]+)!([^\s"'<>\[\](){}]+)`)
	modernRe       = regexp.MustCompile(`https?://mega\.nz/[^\s"'<>\[\](){}]+`)
)

// Extract scans text for mega.nz share URLs and .dlc container paths,
// returning them deduplicated in first-occurrence order. It never
// fails; unrecognized or malformed input simply yields no matches.
func Extract(text string) []string {
	var out []string
	seen := make(map[string]struct{})

	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	scan(text, add)
	return out
}

// scan performs one pass of legacy/modern URL + container-path
// detection over text, then recurses into base64-wrapped tokens up to
// maxBase64Rounds deep.
func scan(text string, add func(string)) {
	remaining := text

	// Legacy folder links, normalized first so raw #F! text is never
	// re-emitted as a match.
	remaining = legacyFolderRe.ReplaceAllStringFunc(remaining, func(m string) string {
		sub := legacyFolderRe.FindStringSubmatch(m)
		add("https://mega.nz/folder/" + sub[1] + "#" + sub[2])
		return ""
	})

	// Legacy file links.
	remaining = legacyFileRe.ReplaceAllStringFunc(remaining, func(m string) string {
		sub := legacyFileRe.FindStringSubmatch(m)
		add("https://mega.nz/file/" + sub[1] + "#" + sub[2])
		return ""
	})

	// Modern links.
	matched := make(map[string]struct{})
	for _, m := range modernRe.FindAllString(remaining, -1) {
		add(m)
		matched[m] = struct{}{}
	}
	remaining = modernRe.ReplaceAllString(remaining, "")

	for _, tok := range strings.Fields(remaining) {
		if isContainerPath(tok) {
			add(tok)
			continue
		}
		tryBase64Rounds(tok, add, 0)
	}
}

func isContainerPath(tok string) bool {
	return len(tok) > 4 && strings.EqualFold(tok[len(tok)-4:], ".dlc")
}

// tryBase64Rounds attempts to decode tok (standard alphabet, then
// URL-safe) and rescans the decoded text, recursing up to
// maxBase64Rounds times. It stops at the first decode failure or
// non-UTF-8 result.
func tryBase64Rounds(tok string, add func(string), depth int) {
	if depth >= maxBase64Rounds {
		return
	}

	decoded, ok := decodeBase64(tok)
	if !ok {
		return
	}
	if !utf8.Valid(decoded) {
		return
	}

	s := string(decoded)
	scanDecoded(s, add, depth+1)
}

// scanDecoded rescans a decoded string for legacy/modern URLs and
// container paths, and recurses into any still-undecoded tokens.
func scanDecoded(text string, add func(string), depth int) {
	remaining := text

	remaining = legacyFolderRe.ReplaceAllStringFunc(remaining, func(m string) string {
		sub := legacyFolderRe.FindStringSubmatch(m)
		add("https://mega.nz/folder/" + sub[1] + "#" + sub[2])
		return ""
	})
	remaining = legacyFileRe.ReplaceAllStringFunc(remaining, func(m string) string {
		sub := legacyFileRe.FindStringSubmatch(m)
		add("https://mega.nz/file/" + sub[1] + "#" + sub[2])
		return ""
	})
	for _, m := range modernRe.FindAllString(remaining, -1) {
		add(m)
	}
	remaining = modernRe.ReplaceAllString(remaining, "")

	for _, tok := range strings.Fields(remaining) {
		if isContainerPath(tok) {
			add(tok)
			continue
		}
		tryBase64Rounds(tok, add, depth)
	}
}

func decodeBase64(tok string) ([]byte, bool) {
	if b, err := base64.StdEncoding.DecodeString(tok); err == nil {
		return b, true
	}
	if b, err := base64.StdEncoding.WithPadding(base64.NoPadding).DecodeString(tok); err == nil {
		return b, true
	}
	if b, err := base64.URLEncoding.DecodeString(tok); err == nil {
		return b, true
	}
	if b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(tok); err == nil {
		return b, true
	}
	return nil, false
}

// Normalize converts a legacy mega.nz URL to its modern form. Inputs
// that are not legacy URLs are returned unchanged.
func Normalize(u string) string {
	if sub := legacyFolderRe.FindStringSubmatch(u); sub != nil {
		return "https://mega.nz/folder/" + sub[1] + "#" + sub[2]
	}
	if sub := legacyFileRe.FindStringSubmatch(u); sub != nil {
		return "https://mega.nz/file/" + sub[1] + "#" + sub[2]
	}
	return u
}
