package onpremise

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Config holds the connection settings for the On-Premise platform.
type Config struct {
	BaseURLV1 string
	APIKeyV1  string
	BaseURLV3 string
	APIKeyV3  string
	Timeout   time.Duration
}

// Client is a stateless On-Premise API client.
type Client struct {
	v1 *resty.Client
	v3 *resty.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURLV1 == "" || cfg.BaseURLV3 == "" {
		return nil, fmt.Errorf("On-Premise base URLs cannot be empty")
	}
	if cfg.APIKeyV1 == "" || cfg.APIKeyV3 == "" {
		return nil, fmt.Errorf("On-Premise API keys cannot be empty")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	v1 := resty.New().
		SetBaseURL(cfg.BaseURLV1).
		SetHeader("apikey", cfg.APIKeyV1).
		SetTimeout(timeout)
	v3 := resty.New().
		SetBaseURL(cfg.BaseURLV3).
		SetHeader("apikey", cfg.APIKeyV3).
		SetTimeout(timeout)

	log.Info().Str("baseURLV1", cfg.BaseURLV1).Str("baseURLV3", cfg.BaseURLV3).Msg("On-Premise client configured")
	return &Client{v1: v1, v3: v3}, nil
}

// The platform rejects duplicate contacts with a 400 whose error text
// carries the existing id.
var existingContactID = regexp.MustCompile(`Id: ([a-zA-Z0-9]+)`)

// CreateContact creates a contact, recovering the existing id when the
// platform reports the contact already exists. The second return value
// reports whether an existing contact was reused.
func (c *Client) CreateContact(ctx context.Context, req ContactRequest) (string, bool, error) {
	resp, err := c.v3.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&contactResponse{}).
		Post("/contacts")
	if err != nil {
		return "", false, fmt.Errorf("On-Premise API CreateContact request failed: %w", err)
	}

	if resp.StatusCode() == http.StatusBadRequest && strings.Contains(resp.String(), "already exist") {
		if m := existingContactID.FindStringSubmatch(resp.String()); m != nil {
			log.Info().Str("contactID", m[1]).Msg("Contact already exists, reusing id")
			return m[1], true, nil
		}
		return "", false, fmt.Errorf("On-Premise API CreateContact: contact exists but id could not be extracted from: %s", resp.String())
	}

	if resp.IsError() {
		log.Error().Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("On-Premise API: CreateContact returned an error")
		return "", false, fmt.Errorf("On-Premise API CreateContact error: status %s, body: %s", resp.Status(), resp.String())
	}

	contact := resp.Result().(*contactResponse)
	id := contact.ID
	if id == "" {
		id = contact.ContactID
	}
	log.Info().Str("contactID", id).Msg("Created On-Premise contact")
	return id, false, nil
}

// CreateTicket creates a ticket via the v3 API.
func (c *Client) CreateTicket(ctx context.Context, req TicketRequest) (*Ticket, error) {
	resp, err := c.v3.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&Ticket{}).
		Post("/tickets")
	if err != nil {
		return nil, fmt.Errorf("On-Premise API CreateTicket request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("On-Premise API: CreateTicket returned an error")
		return nil, fmt.Errorf("On-Premise API CreateTicket error: status %s, body: %s", resp.Status(), resp.String())
	}

	ticket := resp.Result().(*Ticket)
	log.Info().Str("ticketID", ticket.ID).Str("ticketCode", ticket.Code).Msg("Created On-Premise ticket")
	return ticket, nil
}

// AgentByContactID looks an agent up in the v1 directory by contact
// id. Returns nil when no agent matches.
func (c *Client) AgentByContactID(ctx context.Context, contactID string) (*Agent, error) {
	resp, err := c.v1.R().
		SetContext(ctx).
		SetResult(&agentEnvelope{}).
		Get("/agents/" + contactID)
	if err != nil {
		return nil, fmt.Errorf("On-Premise API AgentByContactID request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		log.Error().Str("contactID", contactID).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("On-Premise API: AgentByContactID returned an error")
		return nil, fmt.Errorf("On-Premise API AgentByContactID error: status %s, body: %s", resp.Status(), resp.String())
	}

	agents, err := resp.Result().(*agentEnvelope).agents()
	if err != nil {
		return nil, fmt.Errorf("On-Premise API AgentByContactID: invalid response: %w", err)
	}
	if len(agents) == 0 || agents[0].Identifier() == "" {
		return nil, nil
	}
	return &agents[0], nil
}

// AgentByName searches the v1 directory by display name and returns
// the first match, or nil when none is found.
func (c *Client) AgentByName(ctx context.Context, name string) (*Agent, error) {
	resp, err := c.v1.R().
		SetContext(ctx).
		SetQueryParam("search", name).
		SetResult(&agentEnvelope{}).
		Get("/agents")
	if err != nil {
		return nil, fmt.Errorf("On-Premise API AgentByName request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("name", name).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("On-Premise API: AgentByName returned an error")
		return nil, fmt.Errorf("On-Premise API AgentByName error: status %s, body: %s", resp.Status(), resp.String())
	}

	agents, err := resp.Result().(*agentEnvelope).agents()
	if err != nil {
		return nil, fmt.Errorf("On-Premise API AgentByName: invalid response: %w", err)
	}
	for _, a := range agents {
		if a.Identifier() != "" {
			agent := a
			return &agent, nil
		}
	}
	return nil, nil
}
