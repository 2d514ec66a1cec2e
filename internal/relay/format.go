// ABOUTME: Pure rendering of relay text and thread digests for destination platforms
// ABOUTME: Always attributes the speaker and the source platform; never mutates input

package relay

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultMaxLength is the content size before relays truncate with an ellipsis.
const DefaultMaxLength = 500

// Formatter renders canonical message content for posting to a
// destination platform. Pure; no I/O.
type Formatter struct {
	maxLength int
	marker    string
}

// NewFormatter creates a formatter. Zero values select the defaults.
// Truncation replaces the tail with a three-rune ellipsis, so maxLength
// under 4 falls back to the default as well.
func NewFormatter(maxLength int, marker string) *Formatter {
	if maxLength < 4 {
		maxLength = DefaultMaxLength
	}
	if marker == "" {
		marker = DefaultMarker
	}
	return &Formatter{maxLength: maxLength, marker: marker}
}

// FormatRelay renders a message for relay to another platform.
//
// Example output:
//
//	📡 from Discord — @cobraChicken:
//	> This is the thing I was saying about communities owning their own data.
func (f *Formatter) FormatRelay(content, author, sourcePlatform string) string {
	runes := []rune(content)
	if len(runes) > f.maxLength {
		content = string(runes[:f.maxLength-3]) + "..."
	}

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}

	return fmt.Sprintf("%s from %s — @%s:\n%s",
		f.marker, titleCase(sourcePlatform), author, strings.Join(lines, "\n"))
}

// SummaryMessage carries the author of one reply in a thread digest.
type SummaryMessage struct {
	Author string
}

// FormatSummary renders a thread activity digest: "a lot happened over
// there, here's the shape of it". Callers invoke it once a reply-count
// threshold is reached on the source platform instead of relaying every
// reply individually.
func (f *Formatter) FormatSummary(messages []SummaryMessage, sourcePlatform, channel string) string {
	count := len(messages)

	// Distinct authors in order of first appearance
	seen := make(map[string]bool, count)
	var authors []string
	for _, m := range messages {
		if !seen[m.Author] {
			seen[m.Author] = true
			authors = append(authors, m.Author)
		}
	}

	var authorStr string
	switch {
	case len(authors) == 1:
		authorStr = "@" + authors[0]
	case len(authors) <= 3:
		prefixed := make([]string, len(authors))
		for i, a := range authors {
			prefixed[i] = "@" + a
		}
		authorStr = strings.Join(prefixed, ", ")
	default:
		authorStr = fmt.Sprintf("@%s, @%s, and %d others", authors[0], authors[1], len(authors)-2)
	}

	noun := "replies"
	if count == 1 {
		noun = "reply"
	}

	return fmt.Sprintf("%s %d %s on %s #%s from %s. Head there for the full thread.",
		f.marker, count, noun, titleCase(sourcePlatform), channel, authorStr)
}

// titleCase renders a platform name for attribution headers.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}
