package store

import (
	"context"
	"fmt"
	"time"

	"github.com/loomworks/gantry/internal/trace"
)

var _ trace.Store = (*Store)(nil)

// ConnectIntegration records an org's integration connection together
// with its encrypted credential blob. Reconnecting replaces the blob.
//
// Credentials arrive already encrypted; the store never sees plaintext
// and never issues or refreshes them.
func (s *Store) ConnectIntegration(ctx context.Context, orgID, integrationID, encryptedCredentials string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO integration_connections
		(org_id, integration_id, encrypted_credentials, connected_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(org_id, integration_id) DO UPDATE SET
			encrypted_credentials = excluded.encrypted_credentials,
			connected_at = excluded.connected_at
	`,
		orgID,
		integrationID,
		encryptedCredentials,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("connect integration %s/%s: %w", orgID, integrationID, err)
	}
	return nil
}

// DisconnectIntegration removes a connection.
func (s *Store) DisconnectIntegration(ctx context.Context, orgID, integrationID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM integration_connections
		WHERE org_id = ? AND integration_id = ?
	`, orgID, integrationID)
	if err != nil {
		return fmt.Errorf("disconnect integration %s/%s: %w", orgID, integrationID, err)
	}
	return nil
}

// ListConnectedIntegrations returns the org's connected integration
// ids, ordered for deterministic advisory output.
func (s *Store) ListConnectedIntegrations(ctx context.Context, orgID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT integration_id
		FROM integration_connections
		WHERE org_id = ?
		ORDER BY integration_id ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list connections for %s: %w", orgID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list connections for %s: %w", orgID, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list connections for %s: %w", orgID, err)
	}

	return ids, nil
}
