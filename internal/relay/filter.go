// ABOUTME: Relay filter deciding whether a message is worth crossing a platform boundary
// ABOUTME: Pure and deterministic; rules apply in order, first match wins

package relay

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Filter defaults. These encode judgment, not protocol; tune per scope.
const (
	// DefaultMinLength is roughly "I think this is worth talking about."
	// Shorter messages are likely reactions, acks, or noise.
	DefaultMinLength = 40

	// DefaultMarker is the attribution prefix on everything this system
	// posts. A message starting with it is our own relay output and must
	// never be re-ingested.
	DefaultMarker = "📡"
)

// emojiOnlyPattern matches content consisting solely of emoji and whitespace.
var emojiOnlyPattern = regexp.MustCompile(
	`^[\x{1F300}-\x{1F9FF}\x{1FA00}-\x{1FA9F}\x{2600}-\x{26FF}\x{2700}-\x{27BF}\s]+$`,
)

// Filter decides whether inbound content deserves to cross a platform
// boundary. It performs no I/O and holds no mutable state.
type Filter struct {
	minLength int
	marker    string
}

// NewFilter creates a filter. Zero values select the defaults.
func NewFilter(minLength int, marker string) *Filter {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if marker == "" {
		marker = DefaultMarker
	}
	return &Filter{minLength: minLength, marker: marker}
}

// ShouldRelay reports whether content is worth carrying across platforms.
//
// Rules, in order:
//   - long enough to be a complete thought (not a reaction or one-word reply)
//   - not emoji-only
//   - not already a relay (prevents loops back through our own output)
func (f *Filter) ShouldRelay(content string) bool {
	content = strings.TrimSpace(content)

	if utf8.RuneCountInString(content) < f.minLength {
		return false
	}

	if emojiOnlyPattern.MatchString(content) {
		return false
	}

	if strings.HasPrefix(content, f.marker) {
		return false
	}

	return true
}
