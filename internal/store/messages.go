// ABOUTME: RelayMessage store methods with idempotent insert semantics
// ABOUTME: Duplicate (scope, platform, native message id) inserts are silently absorbed

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveRelayMessage persists a canonical relay message. The insert is
// idempotent on (scope_id, source_platform, source_message_id): a
// duplicate is absorbed without error and inserted=false is returned,
// leaving the first stored row untouched. Safe under racing callers.
func (s *SQLiteStore) SaveRelayMessage(ctx context.Context, msg *RelayMessage) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO relay_messages (id, scope_id, provenance_id, content, source_platform,
			source_channel, source_message_id, author_handle, resolved_member_id,
			is_summary, relay_count, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope_id, source_platform, source_message_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ScopeID,
		msg.ProvenanceID,
		msg.Content,
		msg.SourcePlatform,
		msg.SourceChannel,
		msg.SourceMessageID,
		msg.AuthorHandle,
		msg.ResolvedMemberID,
		boolToInt(msg.IsSummary),
		msg.RelayCount,
		msg.ReceivedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("inserting relay message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		s.logger.Debug("duplicate relay message absorbed",
			"scope", msg.ScopeID,
			"platform", msg.SourcePlatform,
			"source_message_id", msg.SourceMessageID,
		)
		return false, nil
	}

	s.logger.Debug("saved relay message",
		"id", msg.ID,
		"platform", msg.SourcePlatform,
		"channel", msg.SourceChannel,
	)
	return true, nil
}

// GetRelayMessageBySource retrieves the canonical message for a
// platform-native message id within a scope.
func (s *SQLiteStore) GetRelayMessageBySource(ctx context.Context, scopeID, platform, messageID string) (*RelayMessage, error) {
	query := `
		SELECT id, scope_id, provenance_id, content, source_platform, source_channel,
		       source_message_id, author_handle, resolved_member_id, is_summary,
		       relay_count, received_at
		FROM relay_messages
		WHERE scope_id = ? AND source_platform = ? AND source_message_id = ?
	`

	var msg RelayMessage
	var isSummary int
	var receivedAtStr string

	err := s.db.QueryRowContext(ctx, query, scopeID, platform, messageID).Scan(
		&msg.ID,
		&msg.ScopeID,
		&msg.ProvenanceID,
		&msg.Content,
		&msg.SourcePlatform,
		&msg.SourceChannel,
		&msg.SourceMessageID,
		&msg.AuthorHandle,
		&msg.ResolvedMemberID,
		&isSummary,
		&msg.RelayCount,
		&receivedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying relay message: %w", err)
	}

	msg.IsSummary = isSummary != 0
	msg.ReceivedAt, err = time.Parse(time.RFC3339, receivedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing received_at: %w", err)
	}
	return &msg, nil
}

// IncrementRelayCount adds delta to a message's relay count. The
// increment happens inside SQL so concurrent callers serialize on the
// row rather than racing a read-modify-write.
func (s *SQLiteStore) IncrementRelayCount(ctx context.Context, id string, delta int) error {
	query := `UPDATE relay_messages SET relay_count = relay_count + ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("incrementing relay count: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}
