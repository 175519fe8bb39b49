package models

import (
	"time"
)

// ConversationMapping links one Cloud conversation message to the
// On-Premise ticket created for it. A conversation may accumulate
// several rows (one per customer message, since On-Premise tickets
// cannot have their message updated after creation); reply routing
// always targets the most recently created row.
type ConversationMapping struct {
	ID                  int64     `db:"id" json:"id"`
	CloudConversationID string    `db:"cloud_conversation_id" json:"cloud_conversation_id"`
	OnPremiseTicketID   string    `db:"onpremise_ticket_id" json:"onpremise_ticket_id"`
	OnPremiseContactID  string    `db:"onpremise_contact_id" json:"onpremise_contact_id"`
	CustomerName        string    `db:"customer_name" json:"customer_name"`
	CustomerEmail       string    `db:"customer_email" json:"customer_email"`
	LastAgentReply      string    `db:"last_agent_reply" json:"last_agent_reply,omitempty"`
	LastAgentName       string    `db:"last_agent_name" json:"last_agent_name,omitempty"`
	LastReplyTime       string    `db:"last_reply_time" json:"last_reply_time,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// WebhookLogEntry is an append-only audit record of one inbound
// webhook. Rows are never mutated after insert.
type WebhookLogEntry struct {
	ID             int64     `db:"id" json:"id"`
	WebhookType    string    `db:"webhook_type" json:"webhook_type"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	TicketID       string    `db:"ticket_id" json:"ticket_id"`
	ContactID      string    `db:"contact_id" json:"contact_id"`
	EventType      string    `db:"event_type" json:"event_type"`
	RawData        string    `db:"raw_data" json:"raw_data"`
	Status         string    `db:"status" json:"status"`
	ErrorMessage   string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// StoreStats are the counters reported by the health endpoint.
type StoreStats struct {
	TotalMappings int64 `json:"total_mappings"`
	TodayMappings int64 `json:"today_mappings"`
	TotalLogs     int64 `json:"total_logs"`
	TodayLogs     int64 `json:"today_logs"`
}
