// ABOUTME: Append-only provenance store methods
// ABOUTME: Every significant pipeline or surface action is recorded here, never mutated

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendProvenance appends a new provenance record. Generates ID and
// Timestamp if not set. There is deliberately no update or delete
// counterpart; immutability is enforced by the absence of a mutation
// surface.
func (s *SQLiteStore) AppendProvenance(ctx context.Context, p *Provenance) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	if p.Detail == nil {
		p.Detail = map[string]any{}
	}

	detailJSON, err := json.Marshal(p.Detail)
	if err != nil {
		return fmt.Errorf("marshaling provenance detail: %w", err)
	}

	query := `
		INSERT INTO provenance (id, scope_id, action, source_platform, source_identity, subject_id, detail, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		p.ID,
		p.ScopeID,
		string(p.Action),
		p.SourcePlatform,
		p.SourceIdentity,
		p.SubjectID,
		string(detailJSON),
		p.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting provenance: %w", err)
	}

	s.logger.Debug("appended provenance",
		"id", p.ID,
		"scope", p.ScopeID,
		"action", p.Action,
	)
	return nil
}

// normalizeProvenanceLimit applies default (100) and cap (1000).
func normalizeProvenanceLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// ListProvenance returns provenance records for a scope, newest first.
func (s *SQLiteStore) ListProvenance(ctx context.Context, scopeID string, limit int) ([]Provenance, error) {
	query := `
		SELECT id, scope_id, action, source_platform, source_identity, subject_id, detail, ts
		FROM provenance
		WHERE scope_id = ?
		ORDER BY ts DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, scopeID, normalizeProvenanceLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying provenance: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Provenance
	for rows.Next() {
		var p Provenance
		var action, detailJSON, tsStr string

		if err := rows.Scan(
			&p.ID,
			&p.ScopeID,
			&action,
			&p.SourcePlatform,
			&p.SourceIdentity,
			&p.SubjectID,
			&detailJSON,
			&tsStr,
		); err != nil {
			return nil, fmt.Errorf("scanning provenance: %w", err)
		}

		p.Action = ProvenanceAction(action)
		if err := json.Unmarshal([]byte(detailJSON), &p.Detail); err != nil {
			return nil, fmt.Errorf("unmarshaling detail: %w", err)
		}
		p.Timestamp, err = time.Parse(time.RFC3339, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		records = append(records, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provenance: %w", err)
	}

	if records == nil {
		records = []Provenance{}
	}
	return records, nil
}
