package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ndikhoa/ladesk-api/internal/classifier"
	"github.com/ndikhoa/ladesk-api/internal/models"
	"github.com/ndikhoa/ladesk-api/internal/relay"
)

// maxBodySize caps webhook bodies. The platforms send small JSON
// payloads; anything bigger is garbage.
const maxBodySize = 1 << 20

// AuditStore is the persistence surface the HTTP layer needs.
type AuditStore interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*models.StoreStats, error)
	LogWebhook(ctx context.Context, entry *models.WebhookLogEntry) error
	AllMappings(ctx context.Context, limit int) ([]models.ConversationMapping, error)
	PurgeMappings(ctx context.Context) (int64, error)
	WebhookLogs(ctx context.Context, limit int) ([]models.WebhookLogEntry, error)
}

// AgentMappings is the admin surface over the agent directory.
type AgentMappings interface {
	Add(agentID, cloudUserID string) error
	Remove(agentID string) (bool, error)
	List() map[string]string
}

// Handlers holds the HTTP endpoints.
type Handlers struct {
	classifier   *classifier.Classifier
	orchestrator *relay.Orchestrator
	store        AuditStore
	agents       AgentMappings
}

func New(c *classifier.Classifier, o *relay.Orchestrator, store AuditStore, agents AgentMappings) (*Handlers, error) {
	if c == nil || o == nil || store == nil || agents == nil {
		return nil, fmt.Errorf("handlers require classifier, orchestrator, store and agent mappings")
	}
	return &Handlers{classifier: c, orchestrator: o, store: store, agents: agents}, nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"status": "error", "error": message})
}

// knownFields anchors the form-encoded fallback: a body that parses as
// a query string but contains none of these is not a webhook.
var knownFields = []string{
	"event_type", "conversation_id", "ticket_id", "message",
	"agent_id", "agent_name", "status", "customer_email",
}

// decodePayload normalizes a webhook body into flat string fields.
// Strict JSON first; when that fails, a bounded fallback accepts
// form-encoded bodies that carry at least one known field. Nested JSON
// values are dropped, not repaired.
func decodePayload(body []byte) (classifier.Payload, error) {
	cleaned := stripControlChars(body)

	// UseNumber keeps numeric ids verbatim; a float64 round-trip would
	// mangle ids beyond 2^53.
	dec := json.NewDecoder(bytes.NewReader(cleaned))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err == nil {
		return flatten(raw), nil
	}

	values, err := url.ParseQuery(strings.TrimSpace(string(cleaned)))
	if err != nil {
		return nil, fmt.Errorf("body is neither JSON nor form-encoded")
	}
	p := classifier.Payload{}
	for k, v := range values {
		if len(v) > 0 {
			p[k] = v[0]
		}
	}
	for _, f := range knownFields {
		if _, ok := p[f]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("form-encoded body carries no recognized webhook field")
}

// stripControlChars removes raw control bytes the upstream platform is
// known to leak into JSON string values.
func stripControlChars(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			continue
		}
		out = append(out, c)
	}
	return out
}

func flatten(raw map[string]interface{}) classifier.Payload {
	p := classifier.Payload{}
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			p[k] = val
		case json.Number:
			p[k] = val.String()
		case bool:
			p[k] = fmt.Sprintf("%t", val)
		case nil:
			// absent
		default:
			// Nested objects and arrays are not webhook fields.
		}
	}
	return p
}

// CloudInbound receives webhooks from the Cloud platform.
func (h *Handlers) CloudInbound(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, classifier.SourceCloud)
}

// OnPremiseInbound receives webhooks from the On-Premise platform.
func (h *Handlers) OnPremiseInbound(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, classifier.SourceOnPremise)
}

func (h *Handlers) handleWebhook(w http.ResponseWriter, r *http.Request, src classifier.Source) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	entry := &models.WebhookLogEntry{
		WebhookType: string(src),
		RawData:     string(body),
	}

	payload, err := decodePayload(body)
	if err != nil {
		entry.Status = "error"
		entry.ErrorMessage = err.Error()
		h.audit(ctx, entry)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry.ConversationID = payload.Get("conversation_id")
	entry.TicketID = payload.Get("ticket_id")
	entry.ContactID = payload.Get("contact_id", "contactid")
	entry.EventType = payload.Get("event_type")

	decision := h.classifier.Classify(src, payload)
	log.Info().
		Str("source", string(src)).
		Str("kind", string(decision.Kind)).
		Str("reason", decision.Reason).
		Str("conversationID", entry.ConversationID).
		Str("ticketID", entry.TicketID).
		Msg("Classified webhook event")

	var result interface{}
	var procErr error

	switch decision.Kind {
	case classifier.KindIgnorable:
		entry.Status = "skipped"
		entry.ErrorMessage = decision.Reason
		h.audit(ctx, entry)
		respondJSON(w, http.StatusOK, map[string]string{"status": "skipped", "reason": decision.Reason})
		return
	case classifier.KindCustomerMessage:
		result, procErr = h.orchestrator.HandleCustomerMessage(ctx, payload)
	case classifier.KindComment:
		result, procErr = h.orchestrator.HandleComment(ctx, payload)
	case classifier.KindAgentReply:
		if src == classifier.SourceCloud {
			result, procErr = h.orchestrator.HandleCloudAgentReply(ctx, payload, decision)
		} else {
			result, procErr = h.orchestrator.HandleAgentReply(ctx, payload, decision)
		}
	}

	if procErr != nil {
		entry.Status = "error"
		entry.ErrorMessage = procErr.Error()
		h.audit(ctx, entry)

		switch {
		case errors.Is(procErr, relay.ErrNoMapping):
			respondError(w, http.StatusNotFound, procErr.Error())
		case errors.Is(procErr, relay.ErrBadEvent):
			respondError(w, http.StatusBadRequest, procErr.Error())
		default:
			log.Error().Err(procErr).Str("source", string(src)).Msg("Webhook processing failed")
			respondError(w, http.StatusInternalServerError, procErr.Error())
		}
		return
	}

	entry.Status = "success"
	h.audit(ctx, entry)

	response := map[string]interface{}{"status": "ok"}
	switch res := result.(type) {
	case *relay.TicketResult:
		response["conversation_id"] = res.ConversationID
		response["ticket_id"] = res.TicketCode
	case *relay.ReplyResult:
		response["conversation_id"] = res.ConversationID
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *Handlers) audit(ctx context.Context, entry *models.WebhookLogEntry) {
	if err := h.store.LogWebhook(ctx, entry); err != nil {
		log.Error().Err(err).Msg("Failed to write webhook audit log")
	}
}

// Health reports liveness plus store statistics.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.store.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}

	stats, err := h.store.Stats(ctx)
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy", "stats": stats})
}
