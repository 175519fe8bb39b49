package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
)

// Router wires the endpoints. Webhook routes get recovery and request
// logging; admin routes additionally require the bearer token.
func Router(h *Handlers, adminToken string) http.Handler {
	base := alice.New(Recoverer, RequestLogger)
	admin := base.Append(AdminAuth(adminToken))

	r := mux.NewRouter()
	r.Handle("/webhook/cloud-inbound", base.ThenFunc(h.CloudInbound)).Methods(http.MethodPost)
	r.Handle("/webhook/onpremise-inbound", base.ThenFunc(h.OnPremiseInbound)).Methods(http.MethodPost)
	r.Handle("/health", base.ThenFunc(h.Health)).Methods(http.MethodGet)

	r.Handle("/admin/mappings", admin.ThenFunc(h.Mappings)).Methods(http.MethodGet)
	r.Handle("/admin/mappings", admin.ThenFunc(h.PurgeMappings)).Methods(http.MethodDelete)
	r.Handle("/admin/webhook-logs", admin.ThenFunc(h.WebhookLogs)).Methods(http.MethodGet)
	r.Handle("/admin/agent-mappings", admin.ThenFunc(h.AgentMappingList)).Methods(http.MethodGet)
	r.Handle("/admin/agent-mappings", admin.ThenFunc(h.AgentMappingUpsert)).Methods(http.MethodPut)
	r.Handle("/admin/agent-mappings/{id}", admin.ThenFunc(h.AgentMappingDelete)).Methods(http.MethodDelete)
	return r
}
