// ABOUTME: Connector and Binding store methods
// ABOUTME: Connectors watch platforms inbound, bindings are outbound fan-out destinations

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// UpsertConnector registers or replaces the connector for (scope, platform).
// The new record is active.
func (s *SQLiteStore) UpsertConnector(ctx context.Context, c *Connector) error {
	return s.upsertIntegration(ctx, "connectors", c.ID, c.ScopeID, c.Platform, c.Config, &c.ID)
}

// UpsertBinding registers or replaces the binding for (scope, platform).
// The new record is active. Config should contain "default_channel_id";
// bindings without one are skipped during fan-out.
func (s *SQLiteStore) UpsertBinding(ctx context.Context, b *Binding) error {
	return s.upsertIntegration(ctx, "bindings", b.ID, b.ScopeID, b.Platform, b.Config, &b.ID)
}

// upsertIntegration shares the insert-or-replace logic for the two
// integration tables, which have identical shapes.
func (s *SQLiteStore) upsertIntegration(ctx context.Context, table, id, scopeID, platform string, config map[string]string, idOut *string) error {
	if id == "" {
		id = uuid.New().String()
		*idOut = id
	}
	if config == nil {
		config = map[string]string{}
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, scope_id, platform, config, active)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (scope_id, platform) DO UPDATE SET
			config = excluded.config,
			active = 1
	`, table)

	if _, err := s.db.ExecContext(ctx, query, id, scopeID, platform, string(configJSON)); err != nil {
		return fmt.Errorf("upserting into %s: %w", table, err)
	}

	s.logger.Debug("upserted integration", "table", table, "scope", scopeID, "platform", platform)
	return nil
}

// ListActiveBindings returns all active bindings for a scope.
func (s *SQLiteStore) ListActiveBindings(ctx context.Context, scopeID string) ([]Binding, error) {
	query := `
		SELECT id, scope_id, platform, config, active
		FROM bindings
		WHERE scope_id = ? AND active = 1
		ORDER BY platform
	`

	rows, err := s.db.QueryContext(ctx, query, scopeID)
	if err != nil {
		return nil, fmt.Errorf("querying bindings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bindings []Binding
	for rows.Next() {
		var b Binding
		var configJSON string
		var active int

		if err := rows.Scan(&b.ID, &b.ScopeID, &b.Platform, &configJSON, &active); err != nil {
			return nil, fmt.Errorf("scanning binding: %w", err)
		}

		if err := json.Unmarshal([]byte(configJSON), &b.Config); err != nil {
			return nil, fmt.Errorf("unmarshaling binding config: %w", err)
		}
		b.Active = active != 0
		bindings = append(bindings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bindings: %w", err)
	}
	return bindings, nil
}
