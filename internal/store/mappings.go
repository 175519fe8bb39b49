package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ndikhoa/ladesk-api/internal/models"
)

const mappingColumns = `id, cloud_conversation_id, onpremise_ticket_id, onpremise_contact_id,
	customer_name, customer_email, last_agent_reply, last_agent_name, last_reply_time,
	created_at, updated_at`

// CreateMapping inserts a new mapping row. Timestamps are set here so
// both drivers behave identically.
func (s *Store) CreateMapping(ctx context.Context, m *models.ConversationMapping) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	query := s.db.Rebind(`INSERT INTO conversation_mappings
		(cloud_conversation_id, onpremise_ticket_id, onpremise_contact_id,
		 customer_name, customer_email, last_agent_reply, last_agent_name, last_reply_time,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		m.CloudConversationID, m.OnPremiseTicketID, m.OnPremiseContactID,
		m.CustomerName, m.CustomerEmail, m.LastAgentReply, m.LastAgentName, m.LastReplyTime,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create mapping: %w", err)
	}

	log.Info().
		Str("conversationID", m.CloudConversationID).
		Str("ticketID", m.OnPremiseTicketID).
		Msg("Created conversation mapping")
	return nil
}

// MappingByTicket returns the mapping for an On-Premise ticket id, or
// nil when no row matches.
func (s *Store) MappingByTicket(ctx context.Context, ticketID string) (*models.ConversationMapping, error) {
	query := s.db.Rebind(`SELECT ` + mappingColumns + `
		FROM conversation_mappings WHERE onpremise_ticket_id = ? LIMIT 1`)
	return s.getMapping(ctx, query, ticketID)
}

// MappingByConversation returns the most recently created mapping for
// a Cloud conversation id, or nil. Last-ticket-wins: when a
// conversation spawned several tickets, replies route to the newest.
func (s *Store) MappingByConversation(ctx context.Context, conversationID string) (*models.ConversationMapping, error) {
	query := s.db.Rebind(`SELECT ` + mappingColumns + `
		FROM conversation_mappings WHERE cloud_conversation_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`)
	return s.getMapping(ctx, query, conversationID)
}

// MappingByEmail returns the most recently created mapping for a
// customer email, or nil.
func (s *Store) MappingByEmail(ctx context.Context, email string) (*models.ConversationMapping, error) {
	query := s.db.Rebind(`SELECT ` + mappingColumns + `
		FROM conversation_mappings WHERE customer_email = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`)
	return s.getMapping(ctx, query, email)
}

func (s *Store) getMapping(ctx context.Context, query string, arg string) (*models.ConversationMapping, error) {
	var m models.ConversationMapping
	err := s.db.GetContext(ctx, &m, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping: %w", err)
	}
	return &m, nil
}

// UpdateLastReply overwrites the last-reply fields of the mapping for
// the given ticket. No history is kept; re-sent replies simply win.
func (s *Store) UpdateLastReply(ctx context.Context, ticketID, reply, agentName string, at time.Time) error {
	query := s.db.Rebind(`UPDATE conversation_mappings
		SET last_agent_reply = ?, last_agent_name = ?, last_reply_time = ?, updated_at = ?
		WHERE onpremise_ticket_id = ?`)

	res, err := s.db.ExecContext(ctx, query,
		reply, agentName, at.UTC().Format(time.RFC3339), time.Now().UTC(), ticketID)
	if err != nil {
		return fmt.Errorf("failed to update mapping for ticket %s: %w", ticketID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		log.Warn().Str("ticketID", ticketID).Msg("No mapping row to update for ticket")
	}
	return nil
}

// AllMappings lists mappings newest-first, up to limit.
func (s *Store) AllMappings(ctx context.Context, limit int) ([]models.ConversationMapping, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.db.Rebind(`SELECT ` + mappingColumns + `
		FROM conversation_mappings ORDER BY created_at DESC, id DESC LIMIT ?`)

	mappings := []models.ConversationMapping{}
	if err := s.db.SelectContext(ctx, &mappings, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return mappings, nil
}

// PurgeMappings deletes every mapping row. Administrative use only;
// normal operation never deletes mappings.
func (s *Store) PurgeMappings(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversation_mappings`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge mappings: %w", err)
	}
	n, _ := res.RowsAffected()
	log.Info().Int64("deleted", n).Msg("Purged conversation mappings")
	return n, nil
}
