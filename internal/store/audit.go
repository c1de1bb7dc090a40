package store

import (
	"context"
	"encoding/json"
	"fmt"
)

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, event AuditEvent) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (kind, actor_id, actor_name, path, decision, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`, event.Kind, event.ActorID, event.ActorName, event.Path, event.Decision, string(encoded))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, kind, actorID string, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, actor_id, actor_name, path, decision, metadata, created_at
		FROM audit_events
		WHERE ($1='' OR kind=$1)
		  AND ($2='' OR actor_id=$2)
		ORDER BY created_at DESC
		LIMIT $3
	`, kind, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEvent, 0)
	for rows.Next() {
		var item AuditEvent
		var metadataRaw []byte
		if err := rows.Scan(
			&item.ID,
			&item.Kind,
			&item.ActorID,
			&item.ActorName,
			&item.Path,
			&item.Decision,
			&metadataRaw,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		_ = json.Unmarshal(metadataRaw, &item.Metadata)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return items, nil
}
