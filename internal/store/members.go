// ABOUTME: Member and identity claim store methods
// ABOUTME: Handles registration, handle-to-member resolution and claim verification

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newVerificationCode returns an 8-character uppercase hex code.
func newVerificationCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// CreateMember creates a member and issues a verification code for each
// claimed platform handle. Returns {platform: code} so the codes can be
// delivered to the member for proving ownership from within each platform.
func (s *SQLiteStore) CreateMember(ctx context.Context, member *Member) (map[string]string, error) {
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	if member.ArchetypeName == "" {
		member.ArchetypeName = "member"
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}
	if member.PlatformHandles == nil {
		member.PlatformHandles = map[string]string{}
	}

	handlesJSON, err := json.Marshal(member.PlatformHandles)
	if err != nil {
		return nil, fmt.Errorf("marshaling platform handles: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO members (id, scope_id, archetype_name, display_name, canonical_identity,
			platform_handles, is_agent, joined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		member.ID,
		member.ScopeID,
		member.ArchetypeName,
		member.DisplayName,
		member.CanonicalIdentity,
		string(handlesJSON),
		boolToInt(member.IsAgent),
		member.JoinedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting member: %w", err)
	}

	codes := make(map[string]string, len(member.PlatformHandles))
	for platform, handle := range member.PlatformHandles {
		code, err := newVerificationCode()
		if err != nil {
			return nil, err
		}
		codes[platform] = code

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO identity_claims
				(member_id, platform, handle, verification_code, verified, claimed_at)
			VALUES (?, ?, ?, ?, 0, ?)
		`, member.ID, platform, handle, code, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return nil, fmt.Errorf("inserting identity claim: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing member: %w", err)
	}

	s.logger.Debug("created member",
		"id", member.ID,
		"scope", member.ScopeID,
		"platforms_claimed", len(codes),
	)
	return codes, nil
}

// GetMember retrieves a member by its ID.
func (s *SQLiteStore) GetMember(ctx context.Context, id string) (*Member, error) {
	query := `
		SELECT id, scope_id, archetype_name, display_name, canonical_identity,
		       platform_handles, is_agent, joined_at
		FROM members
		WHERE id = ?
	`
	return s.scanMember(s.db.QueryRowContext(ctx, query, id))
}

// GetMemberByHandle resolves a platform handle to a community member
// within a scope. Unverified self-declared claims resolve too; resolution
// is best-effort and never requires verification.
// Returns ErrMemberNotFound when no claim matches, which callers should
// treat as a normal outcome, not a failure.
func (s *SQLiteStore) GetMemberByHandle(ctx context.Context, platform, handle, scopeID string) (*Member, error) {
	query := `
		SELECT m.id, m.scope_id, m.archetype_name, m.display_name, m.canonical_identity,
		       m.platform_handles, m.is_agent, m.joined_at
		FROM members m
		JOIN identity_claims ic ON ic.member_id = m.id
		WHERE ic.platform = ? AND ic.handle = ? AND m.scope_id = ?
	`
	return s.scanMember(s.db.QueryRowContext(ctx, query, platform, handle, scopeID))
}

// VerifyClaim checks a verification code against an unverified claim and
// marks the claim verified on an exact case-insensitive match. Returns
// false uniformly for wrong code, already-verified claim, or no such
// claim, so callers cannot distinguish claim state from probing input.
func (s *SQLiteStore) VerifyClaim(ctx context.Context, memberID, platform, code string) (bool, error) {
	query := `
		UPDATE identity_claims
		SET verified = 1
		WHERE member_id = ? AND platform = ? AND verification_code = ? AND verified = 0
	`

	result, err := s.db.ExecContext(ctx, query, memberID, platform, strings.ToUpper(code))
	if err != nil {
		return false, fmt.Errorf("verifying claim: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Debug("verified identity claim", "member_id", memberID, "platform", platform)
	return true, nil
}

// ListClaims returns all identity claims for a member.
func (s *SQLiteStore) ListClaims(ctx context.Context, memberID string) ([]IdentityClaim, error) {
	query := `
		SELECT member_id, platform, handle, verification_code, verified, claimed_at
		FROM identity_claims
		WHERE member_id = ?
		ORDER BY platform
	`

	rows, err := s.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("querying claims: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var claims []IdentityClaim
	for rows.Next() {
		var c IdentityClaim
		var verified int
		var claimedAtStr string
		var code sql.NullString

		if err := rows.Scan(&c.MemberID, &c.Platform, &c.Handle, &code, &verified, &claimedAtStr); err != nil {
			return nil, fmt.Errorf("scanning claim: %w", err)
		}

		c.VerificationCode = code.String
		c.Verified = verified != 0
		c.ClaimedAt, err = time.Parse(time.RFC3339, claimedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing claimed_at: %w", err)
		}
		claims = append(claims, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claims: %w", err)
	}
	return claims, nil
}

// scanMember scans a single member row.
func (s *SQLiteStore) scanMember(row *sql.Row) (*Member, error) {
	var m Member
	var handlesJSON, joinedAtStr string
	var isAgent int

	err := row.Scan(
		&m.ID,
		&m.ScopeID,
		&m.ArchetypeName,
		&m.DisplayName,
		&m.CanonicalIdentity,
		&handlesJSON,
		&isAgent,
		&joinedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning member: %w", err)
	}

	if err := json.Unmarshal([]byte(handlesJSON), &m.PlatformHandles); err != nil {
		return nil, fmt.Errorf("unmarshaling platform handles: %w", err)
	}
	m.IsAgent = isAgent != 0
	m.JoinedAt, err = time.Parse(time.RFC3339, joinedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing joined_at: %w", err)
	}

	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
