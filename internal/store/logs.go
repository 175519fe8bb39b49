package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ndikhoa/ladesk-api/internal/models"
)

// LogWebhook appends one audit row. Diagnostics only; a failure here
// is logged but never fails the request being audited.
func (s *Store) LogWebhook(ctx context.Context, entry *models.WebhookLogEntry) error {
	entry.CreatedAt = time.Now().UTC()

	query := s.db.Rebind(`INSERT INTO webhook_logs
		(webhook_type, conversation_id, ticket_id, contact_id, event_type,
		 raw_data, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		entry.WebhookType, entry.ConversationID, entry.TicketID, entry.ContactID,
		entry.EventType, entry.RawData, entry.Status, entry.ErrorMessage, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log webhook: %w", err)
	}
	return nil
}

// WebhookLogs lists audit rows newest-first, up to limit.
func (s *Store) WebhookLogs(ctx context.Context, limit int) ([]models.WebhookLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Rebind(`SELECT id, webhook_type, conversation_id, ticket_id, contact_id,
		event_type, raw_data, status, error_message, created_at
		FROM webhook_logs ORDER BY created_at DESC, id DESC LIMIT ?`)

	logs := []models.WebhookLogEntry{}
	if err := s.db.SelectContext(ctx, &logs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list webhook logs: %w", err)
	}
	return logs, nil
}

// Stats returns mapping and audit-log counters for the health probe.
func (s *Store) Stats(ctx context.Context) (*models.StoreStats, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	stats := &models.StoreStats{}

	counts := []struct {
		dest  *int64
		query string
		args  []interface{}
	}{
		{&stats.TotalMappings, `SELECT COUNT(*) FROM conversation_mappings`, nil},
		{&stats.TodayMappings, s.db.Rebind(`SELECT COUNT(*) FROM conversation_mappings WHERE created_at >= ?`), []interface{}{midnight}},
		{&stats.TotalLogs, `SELECT COUNT(*) FROM webhook_logs`, nil},
		{&stats.TodayLogs, s.db.Rebind(`SELECT COUNT(*) FROM webhook_logs WHERE created_at >= ?`), []interface{}{midnight}},
	}

	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dest, c.query, c.args...); err != nil {
			log.Error().Err(err).Msg("Failed to read store stats")
			return nil, fmt.Errorf("failed to read store stats: %w", err)
		}
	}
	return stats, nil
}
