package services

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// defaultTitlePrefix marks a conversation whose title was never set by
	// the user and is still eligible for auto-titling.
	defaultTitlePrefix = "New Chat"
	untitled           = "Untitled"

	autoTitleWords = 5
	autoTitleMax   = 50
)

// defaultTitle is the title given to conversations created without one.
func defaultTitle(now time.Time) string {
	return defaultTitlePrefix + " " + now.Format("2006-01-02 15:04:05")
}

// shouldAutoTitle reports whether current is still a placeholder title.
func shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(current)
	return t == "" || strings.HasPrefix(t, defaultTitlePrefix)
}

// titleFromPrompt derives a title from the first words of a prompt. Titles
// longer than 50 bytes are cut to 47 and suffixed with "...".
func titleFromPrompt(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > autoTitleWords {
		words = words[:autoTitleWords]
	}
	title := strings.Join(words, " ")
	if len(title) > autoTitleMax {
		title = truncateRunes(title, autoTitleMax-3) + "..."
	}
	return title
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// clipTitle truncates a title to max runes; non-positive max disables it.
func clipTitle(title string, max int) string {
	if max > 0 && utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

// normalizeTitle trims whitespace and collapses runs of it to one space.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

var whitespaceRE = regexp.MustCompile(`\s+`)
