package cloud

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Config holds the connection settings for the Cloud platform. The
// platform exposes two API generations: v1 (conversations, replies)
// and v3 (contacts), each with its own base URL and key.
type Config struct {
	BaseURLV1 string
	APIKeyV1  string
	BaseURLV3 string
	APIKeyV3  string
	Timeout   time.Duration
}

// Client is a stateless Cloud API client, constructed once at startup
// and passed explicitly to its consumers.
type Client struct {
	v1 *resty.Client
	v3 *resty.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURLV1 == "" || cfg.BaseURLV3 == "" {
		return nil, fmt.Errorf("Cloud base URLs cannot be empty")
	}
	if cfg.APIKeyV1 == "" || cfg.APIKeyV3 == "" {
		return nil, fmt.Errorf("Cloud API keys cannot be empty")
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

	log.Info().Str("baseURLV1", cfg.BaseURLV1).Str("baseURLV3", cfg.BaseURLV3).Msg("Cloud client configured")
	return &Client{v1: v1, v3: v3}, nil
}

// ConversationDetails fetches a conversation from the v1 API.
func (c *Client) ConversationDetails(ctx context.Context, conversationID string) (*Conversation, error) {
	resp, err := c.v1.R().
		SetContext(ctx).
		SetResult(&Conversation{}).
		Get("/conversations/" + conversationID)
	if err != nil {
		return nil, fmt.Errorf("Cloud API ConversationDetails request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("conversationID", conversationID).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("Cloud API: ConversationDetails returned an error")
		return nil, fmt.Errorf("Cloud API ConversationDetails error: status %s, body: %s", resp.Status(), resp.String())
	}
	return resp.Result().(*Conversation), nil
}

// ConversationMessages fetches the conversation thread from the v1 API
// and flattens the message groups, preserving chronological order.
func (c *Client) ConversationMessages(ctx context.Context, conversationID string) ([]Message, error) {
	resp, err := c.v1.R().
		SetContext(ctx).
		SetResult(&conversationMessagesResponse{}).
		Get("/conversations/" + conversationID + "/messages")
	if err != nil {
		return nil, fmt.Errorf("Cloud API ConversationMessages request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("conversationID", conversationID).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("Cloud API: ConversationMessages returned an error")
		return nil, fmt.Errorf("Cloud API ConversationMessages error: status %s, body: %s", resp.Status(), resp.String())
	}

	groups := resp.Result().(*conversationMessagesResponse)
	var messages []Message
	for _, g := range groups.Groups {
		for _, m := range g.Messages {
			if m.UserID == "" {
				m.UserID = g.UserID
			}
			messages = append(messages, m)
		}
	}
	return messages, nil
}

// ContactDetails fetches a contact from the v3 API. Returns nil when
// the contact does not exist.
func (c *Client) ContactDetails(ctx context.Context, contactID string) (*Contact, error) {
	resp, err := c.v3.R().
		SetContext(ctx).
		SetResult(&Contact{}).
		Get("/contacts/" + contactID)
	if err != nil {
		return nil, fmt.Errorf("Cloud API ContactDetails request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		log.Error().Str("contactID", contactID).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("Cloud API: ContactDetails returned an error")
		return nil, fmt.Errorf("Cloud API ContactDetails error: status %s, body: %s", resp.Status(), resp.String())
	}
	return resp.Result().(*Contact), nil
}

// SendReply posts an agent reply into a Cloud conversation. The v1
// endpoint takes form data; type M marks a visible message and isagent
// attributes it to the given useridentifier.
func (c *Client) SendReply(ctx context.Context, conversationID, message, userIdentifier string) error {
	resp, err := c.v1.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"message":        message,
			"useridentifier": userIdentifier,
			"type":           "M",
			"isagent":        "1",
			"agentid":        userIdentifier,
		}).
		Post("/conversations/" + conversationID + "/messages")
	if err != nil {
		return fmt.Errorf("Cloud API SendReply request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("conversationID", conversationID).Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("Cloud API: SendReply returned an error")
		return fmt.Errorf("Cloud API SendReply error: status %s, body: %s", resp.Status(), resp.String())
	}

	log.Info().Str("conversationID", conversationID).Str("userIdentifier", userIdentifier).Msg("Sent agent reply to Cloud")
	return nil
}
