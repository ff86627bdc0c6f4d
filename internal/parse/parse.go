// Package parse turns free-form delimited user input into normalized,
// deduplicated term and source lists. Parsing never fails: malformed or
// empty input degrades to an empty list.
package parse

import (
	"regexp"
	"strings"
)

var (
	listSepRe = regexp.MustCompile(`[\n,;]+`)
	termSepRe = regexp.MustCompile(`[\n,;/]+`)

	publicMsgRe  = regexp.MustCompile(`(?i)^https?://t\.me/([^/]+)/(\d+)/?$`)
	privateMsgRe = regexp.MustCompile(`(?i)^https?://t\.me/c/(\d+)/(\d+)/?$`)
	publicChatRe = regexp.MustCompile(`^[A-Za-z0-9_]{4,}$`)
)

// Terms splits raw keyword or exclusion text on commas, semicolons, line
// breaks and forward slashes, lower-cases each entry and deduplicates
// while preserving first-seen order.
func Terms(raw string) []string {
	return splitClean(termSepRe, raw)
}

// List splits raw text on commas, semicolons and line breaks, lower-cases
// each entry and deduplicates preserving first-seen order.
func List(raw string) []string {
	return splitClean(listSepRe, raw)
}

func splitClean(sep *regexp.Regexp, raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, chunk := range sep.Split(raw, -1) {
		v := strings.ToLower(strings.TrimSpace(chunk))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Sources splits raw source text into chat/channel references.
// Beyond the usual delimiters it splits space-separated runs of handles
// ("@a @b @c") and deduplicates by canonical source identity, so
// "@chat" and "https://t.me/chat" collapse into one entry while a chat
// and a single-message link within it stay distinct.
func Sources(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, chunk := range listSepRe.Split(raw, -1) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		for _, src := range splitSourceChunk(chunk) {
			key := sourceKey(src)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, src)
		}
	}
	return out
}

// splitSourceChunk breaks a whitespace-separated run into individual
// sources, but only when every part looks like a source on its own.
func splitSourceChunk(chunk string) []string {
	parts := strings.Fields(chunk)
	if len(parts) > 1 {
		all := true
		for _, p := range parts {
			if !looksLikeSource(p) {
				all = false
				break
			}
		}
		if all {
			return parts
		}
	}
	return []string{chunk}
}

func looksLikeSource(v string) bool {
	return strings.HasPrefix(v, "@") ||
		strings.HasPrefix(v, "http://") ||
		strings.HasPrefix(v, "https://") ||
		strings.HasPrefix(v, "t.me/") ||
		strings.HasPrefix(v, "-100") ||
		isDigits(v)
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// sourceKey returns the canonical dedup identity of a source reference.
func sourceKey(value string) string {
	src := strings.TrimSpace(value)
	if src == "" {
		return ""
	}

	if m := privateMsgRe.FindStringSubmatch(src); m != nil {
		return "msg:c/" + m[1] + "/" + m[2]
	}
	if m := publicMsgRe.FindStringSubmatch(src); m != nil {
		return "msg:" + strings.ToLower(m[1]) + "/" + m[2]
	}

	lowered := strings.ToLower(src)
	if strings.HasPrefix(lowered, "https://t.me/") || strings.HasPrefix(lowered, "http://t.me/") {
		path := strings.Trim(src[strings.Index(lowered, "t.me/")+len("t.me/"):], "/")
		chatRef := strings.TrimPrefix(strings.SplitN(path, "/", 2)[0], "@")
		if publicChatRe.MatchString(chatRef) {
			return "chat:" + strings.ToLower(chatRef)
		}
		return "raw:" + lowered
	}

	if strings.HasPrefix(src, "@") {
		chatRef := strings.TrimSpace(src[1:])
		if publicChatRe.MatchString(chatRef) {
			return "chat:" + strings.ToLower(chatRef)
		}
	}

	if publicChatRe.MatchString(src) {
		return "chat:" + lowered
	}

	return "raw:" + lowered
}
