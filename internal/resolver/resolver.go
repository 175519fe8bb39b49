package resolver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ndikhoa/ladesk-api/internal/models"
)

// MappingSource is the subset of the mapping store the resolver needs.
// Each lookup is an independent query returning nil when nothing
// matches; the results of different lookups are never reconciled.
type MappingSource interface {
	MappingByTicket(ctx context.Context, ticketID string) (*models.ConversationMapping, error)
	MappingByConversation(ctx context.Context, conversationID string) (*models.ConversationMapping, error)
	MappingByEmail(ctx context.Context, email string) (*models.ConversationMapping, error)
}

// Identifiers are the correlation keys extracted from an event, in
// priority order: ticket id, conversation id, customer email.
type Identifiers struct {
	TicketID       string
	ConversationID string
	Email          string
}

// Resolver locates the ConversationMapping an event belongs to.
type Resolver struct {
	src MappingSource
}

func New(src MappingSource) (*Resolver, error) {
	if src == nil {
		return nil, fmt.Errorf("mapping source cannot be nil")
	}
	return &Resolver{src: src}, nil
}

// Resolve walks the fallback chain and returns the first hit, or nil
// when no lookup matched.
//
// The ticket id wins over a conversation id pointing at a different
// row: the reply webhook's ticket_id names the exact row written at
// ticket creation, while the conversation id only names the newest
// row for that conversation. On-Premise webhooks sometimes carry the
// ticket code in the conversation_id field, so that value is also
// tried as a ticket key before the conversation lookup.
func (r *Resolver) Resolve(ctx context.Context, ids Identifiers) (*models.ConversationMapping, error) {
	if ids.TicketID != "" {
		m, err := r.src.MappingByTicket(ctx, ids.TicketID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			log.Info().Str("ticketID", ids.TicketID).Msg("Found mapping by ticket id")
			r.noteConversationDisagreement(ctx, ids, m)
			return m, nil
		}
	}

	if ids.ConversationID != "" {
		m, err := r.src.MappingByTicket(ctx, ids.ConversationID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			log.Info().Str("conversationID", ids.ConversationID).Msg("Found mapping by conversation id used as ticket key")
			return m, nil
		}

		m, err = r.src.MappingByConversation(ctx, ids.ConversationID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			log.Info().Str("conversationID", ids.ConversationID).Str("ticketID", m.OnPremiseTicketID).Msg("Found mapping by conversation id")
			return m, nil
		}
	}

	if ids.Email != "" {
		m, err := r.src.MappingByEmail(ctx, ids.Email)
		if err != nil {
			return nil, err
		}
		if m != nil {
			log.Info().Str("email", ids.Email).Str("ticketID", m.OnPremiseTicketID).Msg("Found mapping by customer email")
			return m, nil
		}
	}

	return nil, nil
}

// noteConversationDisagreement keeps the documented ticket-id-wins
// ambiguity observable: when both keys are present and point at
// different rows, the discarded conversation hit is logged at debug.
func (r *Resolver) noteConversationDisagreement(ctx context.Context, ids Identifiers, winner *models.ConversationMapping) {
	if ids.ConversationID == "" || ids.ConversationID == winner.CloudConversationID {
		return
	}
	other, err := r.src.MappingByConversation(ctx, ids.ConversationID)
	if err != nil || other == nil || other.ID == winner.ID {
		return
	}
	log.Debug().
		Str("ticketID", ids.TicketID).
		Str("conversationID", ids.ConversationID).
		Str("discardedTicketID", other.OnPremiseTicketID).
		Msg("Ticket and conversation ids resolve to different mappings; ticket id wins")
}
