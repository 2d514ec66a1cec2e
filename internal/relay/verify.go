// ABOUTME: Verification command interception ahead of the relay pipeline
// ABOUTME: Members send "VERIFY <code>" from a platform to link their handle to their identity

package relay

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cobrachicken/scope-relay/internal/store"
)

// verifyPattern matches a trimmed, upper-cased verification command:
// the word VERIFY, whitespace, and exactly an 8-character hex code.
var verifyPattern = regexp.MustCompile(`^VERIFY\s+([A-F0-9]{8})$`)

// Fixed responses sent back on the source platform. The wrong-code and
// already-used cases are deliberately indistinguishable so probing input
// can't learn claim state.
const (
	replyNotRecognized = "I don't recognize this handle. Register at the community surface first."
	replyBadCode       = "That code didn't work. Double-check it or re-register at the surface."
)

// replyVerified is the success response; it names the member so they
// know which identity their handle is now linked to.
func replyVerified(displayName string) string {
	return fmt.Sprintf("Verified! You're now linked as %s in this community.", displayName)
}

// CheckVerification tests inbound content against the verification
// command grammar. The grammar check runs before any store lookup.
//
// Returns ("", false, nil) when content is not a verification command;
// the caller should fall through to the relay pipeline. Otherwise the
// returned string is the response to send back on the source platform.
func (p *Pipeline) CheckVerification(ctx context.Context, platform, authorHandle, content string) (string, bool, error) {
	m := verifyPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(content)))
	if m == nil {
		return "", false, nil
	}
	code := m[1]

	member, err := p.store.GetMemberByHandle(ctx, platform, authorHandle, p.scopeID)
	if errors.Is(err, store.ErrMemberNotFound) {
		return replyNotRecognized, true, nil
	}
	if err != nil {
		return "", true, fmt.Errorf("resolving handle for verification: %w", err)
	}

	ok, err := p.store.VerifyClaim(ctx, member.ID, platform, code)
	if err != nil {
		return "", true, fmt.Errorf("verifying claim: %w", err)
	}
	if !ok {
		return replyBadCode, true, nil
	}

	p.logger.Info("verified identity claim",
		"member_id", member.ID,
		"platform", platform,
	)
	return replyVerified(member.DisplayName), true, nil
}
