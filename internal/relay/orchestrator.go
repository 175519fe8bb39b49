package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ndikhoa/ladesk-api/internal/adapters/cloud"
	"github.com/ndikhoa/ladesk-api/internal/adapters/onpremise"
	"github.com/ndikhoa/ladesk-api/internal/classifier"
	"github.com/ndikhoa/ladesk-api/internal/events"
	"github.com/ndikhoa/ladesk-api/internal/models"
	"github.com/ndikhoa/ladesk-api/internal/resolver"
)

// ErrNoMapping marks a reply-style event with no conversation to
// reply into. Terminal: not retried, surfaced as 404.
var ErrNoMapping = errors.New("no mapping found")

// ErrBadEvent marks an event missing fields the pipeline cannot
// proceed without.
var ErrBadEvent = errors.New("event payload missing required fields")

// CloudService is the Cloud platform surface the orchestrator uses.
type CloudService interface {
	ConversationDetails(ctx context.Context, conversationID string) (*cloud.Conversation, error)
	ContactDetails(ctx context.Context, contactID string) (*cloud.Contact, error)
	ConversationMessages(ctx context.Context, conversationID string) ([]cloud.Message, error)
	SendReply(ctx context.Context, conversationID, message, userIdentifier string) error
}

// OnPremiseService is the On-Premise platform surface.
type OnPremiseService interface {
	CreateContact(ctx context.Context, req onpremise.ContactRequest) (string, bool, error)
	CreateTicket(ctx context.Context, req onpremise.TicketRequest) (*onpremise.Ticket, error)
}

// MappingStore is the mapping-store surface the orchestrator mutates.
type MappingStore interface {
	CreateMapping(ctx context.Context, m *models.ConversationMapping) error
	UpdateLastReply(ctx context.Context, ticketID, reply, agentName string, at time.Time) error
	AllMappings(ctx context.Context, limit int) ([]models.ConversationMapping, error)
}

// AgentResolver maps an On-Premise agent identity to the Cloud
// useridentifier replies are attributed to.
type AgentResolver interface {
	CloudIdentifier(ctx context.Context, agentID, agentName string) string
}

// Config carries the On-Premise ticket defaults.
type Config struct {
	DepartmentID   string
	RecipientEmail string

	// BotSenders are author names skipped when recovering a
	// commenter's identity from a conversation thread.
	BotSenders []string
}

// TicketResult reports a mirrored customer message.
type TicketResult struct {
	ConversationID string `json:"conversation_id"`
	TicketID       string `json:"ticket_id"`
	TicketCode     string `json:"ticket_code"`
}

// ReplyResult reports a relayed agent reply.
type ReplyResult struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// Orchestrator sequences the cross-system side effects for each event
// kind and keeps the mapping store consistent with what actually
// happened externally.
type Orchestrator struct {
	cloud    CloudService
	onprem   OnPremiseService
	store    MappingStore
	resolver *resolver.Resolver
	agents   AgentResolver
	events   *events.Publisher
	cfg      Config
}

func NewOrchestrator(
	cloudSvc CloudService,
	onpremSvc OnPremiseService,
	store MappingStore,
	res *resolver.Resolver,
	agents AgentResolver,
	publisher *events.Publisher,
	cfg Config,
) (*Orchestrator, error) {
	if cloudSvc == nil {
		return nil, fmt.Errorf("Cloud service cannot be nil")
	}
	if onpremSvc == nil {
		return nil, fmt.Errorf("On-Premise service cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("mapping store cannot be nil")
	}
	if res == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if agents == nil {
		return nil, fmt.Errorf("agent resolver cannot be nil")
	}
	return &Orchestrator{
		cloud:    cloudSvc,
		onprem:   onpremSvc,
		store:    store,
		resolver: res,
		agents:   agents,
		events:   publisher,
		cfg:      cfg,
	}, nil
}

// customerIdentity is the resolved (or synthesized) customer behind an
// inbound message.
type customerIdentity struct {
	Firstname string
	Lastname  string
	Name      string
	Email     string
}

// HandleCustomerMessage mirrors a customer message into On-Premise:
// resolve identity, create (or reuse) a contact, create a fresh
// ticket, record the mapping. A new ticket is always created — the
// ticketing system disallows updating a ticket's message, so existing
// mappings are never reused for incoming messages.
func (o *Orchestrator) HandleCustomerMessage(ctx context.Context, p classifier.Payload) (*TicketResult, error) {
	conversationID := p.Get("conversation_id")
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id", ErrBadEvent)
	}

	identity := o.resolveCustomerIdentity(ctx, conversationID, p.Get("contact_id", "contactid", "userid"))
	return o.createTicket(ctx, p, conversationID, identity)
}

// HandleComment mirrors a social comment. The webhook attributes the
// message to the fan page, so the real commenter is recovered from the
// conversation thread: newest message backward, first author that is
// not a known system/bot sender.
func (o *Orchestrator) HandleComment(ctx context.Context, p classifier.Payload) (*TicketResult, error) {
	conversationID := p.Get("conversation_id")
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id", ErrBadEvent)
	}

	identity := o.recoverCommenterIdentity(ctx, conversationID)
	return o.createTicket(ctx, p, conversationID, identity)
}

func (o *Orchestrator) createTicket(ctx context.Context, p classifier.Payload, conversationID string, identity customerIdentity) (*TicketResult, error) {
	// Contact creation failure is non-fatal: the ticket still carries
	// the customer identity inline.
	contactID, existed, err := o.onprem.CreateContact(ctx, onpremise.ContactRequest{
		Firstname:   identity.Firstname,
		Lastname:    identity.Lastname,
		Emails:      []string{identity.Email},
		Description: "Facebook Customer - " + identity.Name,
		Type:        "V",
	})
	if err != nil {
		log.Warn().Err(err).Str("conversationID", conversationID).Msg("Contact creation failed, continuing without contact id")
		contactID = ""
	} else if existed {
		log.Info().Str("contactID", contactID).Msg("Reusing existing On-Premise contact")
	}

	subject := p.Get("subject")
	if subject == "" {
		if conv, err := o.cloud.ConversationDetails(ctx, conversationID); err == nil && conv != nil && conv.Subject != "" {
			subject = conv.Subject
		} else {
			subject = "Facebook Message"
		}
	}

	ticket, err := o.onprem.CreateTicket(ctx, onpremise.TicketRequest{
		DepartmentID:   o.cfg.DepartmentID,
		Subject:        fmt.Sprintf("Facebook - %s - %s", conversationID, subject),
		Message:        p.Get("message"),
		ContactEmail:   identity.Email,
		ContactName:    identity.Name,
		UserIdentifier: identity.Email,
		Recipient:      o.cfg.RecipientEmail,
		Status:         "N",
		ChannelType:    "E",
	})
	if err != nil {
		return nil, fmt.Errorf("ticket creation failed: %w", err)
	}

	// The reply webhook references the human-readable code when the
	// platform assigns one, so the mapping is keyed by it.
	ticketKey := ticket.Code
	if ticketKey == "" {
		ticketKey = ticket.ID
	}

	mapping := &models.ConversationMapping{
		CloudConversationID: conversationID,
		OnPremiseTicketID:   ticketKey,
		OnPremiseContactID:  contactID,
		CustomerName:        identity.Name,
		CustomerEmail:       identity.Email,
	}
	if err := o.store.CreateMapping(ctx, mapping); err != nil {
		return nil, fmt.Errorf("ticket %s created but mapping could not be stored: %w", ticketKey, err)
	}

	o.events.Publish("ticket.created", mapping)
	log.Info().
		Str("conversationID", conversationID).
		Str("ticketID", ticket.ID).
		Str("ticketCode", ticket.Code).
		Msg("Mirrored customer message into On-Premise ticket")

	return &TicketResult{ConversationID: conversationID, TicketID: ticket.ID, TicketCode: ticketKey}, nil
}

// HandleAgentReply relays an On-Premise agent reply back to the Cloud
// conversation and records it on the mapping. On failure the mapping
// is left untouched.
func (o *Orchestrator) HandleAgentReply(ctx context.Context, p classifier.Payload, d classifier.Decision) (*ReplyResult, error) {
	mapping, err := o.resolveMapping(ctx, p)
	if err != nil {
		return nil, err
	}

	userIdentifier := o.agents.CloudIdentifier(ctx, d.AgentID, d.AgentName)
	message := SanitizeMessage(p.Get("message"))

	if err := o.cloud.SendReply(ctx, mapping.CloudConversationID, message, userIdentifier); err != nil {
		return nil, fmt.Errorf("failed to send reply: %w", err)
	}

	if err := o.store.UpdateLastReply(ctx, mapping.OnPremiseTicketID, message, d.AgentName, time.Now()); err != nil {
		// The reply went out; a bookkeeping failure is logged, not
		// surfaced as a relay failure.
		log.Error().Err(err).Str("ticketID", mapping.OnPremiseTicketID).Msg("Reply sent but mapping update failed")
	}

	o.events.Publish("reply.relayed", map[string]string{
		"conversation_id": mapping.CloudConversationID,
		"ticket_id":       mapping.OnPremiseTicketID,
		"agent_name":      d.AgentName,
	})

	return &ReplyResult{ConversationID: mapping.CloudConversationID, Message: message}, nil
}

// HandleCloudAgentReply processes a genuine agent reply observed on
// the Cloud feed. The reply already lives in Cloud, so nothing is sent
// anywhere; the mapping's last-reply fields are updated for parity.
func (o *Orchestrator) HandleCloudAgentReply(ctx context.Context, p classifier.Payload, d classifier.Decision) (*ReplyResult, error) {
	mapping, err := o.resolveMapping(ctx, p)
	if err != nil {
		return nil, err
	}

	message := SanitizeMessage(p.Get("message"))
	if err := o.store.UpdateLastReply(ctx, mapping.OnPremiseTicketID, message, d.AgentName, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to record Cloud agent reply: %w", err)
	}

	log.Info().Str("conversationID", mapping.CloudConversationID).Str("agentName", d.AgentName).Msg("Recorded agent reply from Cloud feed")
	return &ReplyResult{ConversationID: mapping.CloudConversationID, Message: message}, nil
}

func (o *Orchestrator) resolveMapping(ctx context.Context, p classifier.Payload) (*models.ConversationMapping, error) {
	ids := resolver.Identifiers{
		TicketID:       p.Get("ticket_id"),
		ConversationID: p.Get("conversation_id"),
		Email:          p.Get("customer_email"),
	}

	mapping, err := o.resolver.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		o.dumpMappings(ctx, ids)
		return nil, fmt.Errorf("%w for ticket %q / conversation %q", ErrNoMapping, ids.TicketID, ids.ConversationID)
	}
	return mapping, nil
}

// dumpMappings logs every known mapping when a reply cannot be
// correlated, for operator diagnosis.
func (o *Orchestrator) dumpMappings(ctx context.Context, ids resolver.Identifiers) {
	log.Error().
		Str("ticketID", ids.TicketID).
		Str("conversationID", ids.ConversationID).
		Str("email", ids.Email).
		Msg("No mapping found for reply event")

	mappings, err := o.store.AllMappings(ctx, 100)
	if err != nil {
		log.Error().Err(err).Msg("Could not list mappings for diagnosis")
		return
	}
	log.Error().Int("count", len(mappings)).Msg("Known mappings:")
	for _, m := range mappings {
		log.Error().
			Str("cloud", m.CloudConversationID).
			Str("onpremise", m.OnPremiseTicketID).
			Str("email", m.CustomerEmail).
			Msg("  mapping")
	}
}

// resolveCustomerIdentity pulls the real customer behind a message
// from the Cloud contact record, with deterministic fallbacks when the
// payload carries no usable contact.
func (o *Orchestrator) resolveCustomerIdentity(ctx context.Context, conversationID, contactID string) customerIdentity {
	identity := customerIdentity{
		Firstname: "Facebook",
		Lastname:  "Customer",
		Name:      "Facebook Customer",
		Email:     syntheticEmail(conversationID),
	}

	if contactID == "" {
		log.Warn().Str("conversationID", conversationID).Msg("No contact id in webhook payload, using synthesized identity")
		return identity
	}

	contact, err := o.cloud.ContactDetails(ctx, contactID)
	if err != nil || contact == nil {
		log.Warn().Err(err).Str("contactID", contactID).Msg("Could not fetch Cloud contact details, using synthesized identity")
		return identity
	}

	if contact.Firstname != "" {
		identity.Firstname = contact.Firstname
	}
	if contact.Lastname != "" {
		identity.Lastname = contact.Lastname
	}
	if name := strings.TrimSpace(contact.Firstname + " " + contact.Lastname); name != "" {
		identity.Name = name
	}
	if len(contact.Emails) > 0 && contact.Emails[0] != "" {
		identity.Email = contact.Emails[0]
	}

	log.Info().Str("name", identity.Name).Str("email", identity.Email).Msg("Resolved customer identity from Cloud contact")
	return identity
}

// recoverCommenterIdentity scans the conversation thread newest-first
// for the first author that is not a system/bot sender.
func (o *Orchestrator) recoverCommenterIdentity(ctx context.Context, conversationID string) customerIdentity {
	identity := customerIdentity{
		Firstname: "Facebook",
		Lastname:  "User",
		Name:      "Facebook User " + conversationID,
		Email:     syntheticEmail(conversationID),
	}

	messages, err := o.cloud.ConversationMessages(ctx, conversationID)
	if err != nil {
		log.Warn().Err(err).Str("conversationID", conversationID).Msg("Could not fetch conversation thread, using synthesized commenter identity")
		return identity
	}

	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		name := strings.TrimSpace(m.UserFullName)
		if name == "" || classifier.IsPlaceholder(name) || o.isBotSender(name) {
			continue
		}
		identity.Name = name
		parts := strings.SplitN(name, " ", 2)
		identity.Firstname = parts[0]
		if len(parts) > 1 {
			identity.Lastname = parts[1]
		} else {
			identity.Lastname = ""
		}
		if m.UserID != "" {
			identity.Email = syntheticEmail(m.UserID)
		}
		log.Info().Str("name", name).Str("userID", m.UserID).Msg("Recovered commenter identity from conversation thread")
		return identity
	}

	log.Warn().Str("conversationID", conversationID).Msg("No customer author found in thread, using synthesized commenter identity")
	return identity
}

func (o *Orchestrator) isBotSender(name string) bool {
	for _, bot := range o.cfg.BotSenders {
		if bot != "" && strings.EqualFold(name, bot) {
			return true
		}
	}
	return false
}

// syntheticEmail derives a deterministic placeholder address when the
// platform gives us no real one.
func syntheticEmail(id string) string {
	return fmt.Sprintf("facebook_%s@facebook.com", id)
}
