package handlers

import (
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/akmatori/article73/internal/alerts"
	"github.com/akmatori/article73/internal/api"
	"github.com/akmatori/article73/internal/ratelimit"
	"github.com/akmatori/article73/internal/services"
)

// Per-alert outcomes reported in the webhook response
const (
	alertResultCreated = "incident_created"
	alertResultLogged  = "logged"
	alertResultError   = "error"
)

// AlertHandler turns monitoring webhooks into serious incidents
type AlertHandler struct {
	adapter   alerts.AlertAdapter
	incidents *services.IncidentService
	secret    string
	limiter   *ratelimit.KeyedLimiter
}

// NewAlertHandler creates a new alert handler. A nil limiter disables rate limiting.
func NewAlertHandler(adapter alerts.AlertAdapter, incidents *services.IncidentService, secret string, limiter *ratelimit.KeyedLimiter) *AlertHandler {
	return &AlertHandler{
		adapter:   adapter,
		incidents: incidents,
		secret:    secret,
		limiter:   limiter,
	}
}

// SetupRoutes registers the webhook route for the adapter's source type
func (h *AlertHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/"+h.adapter.GetSourceType(), h.HandleWebhook)
}

// HandleWebhook processes incoming webhook requests
func (h *AlertHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	client := clientIP(r)
	if h.limiter != nil && !h.limiter.Allow(client) {
		log.Printf("Webhook: Rate limit exceeded for %s", client)
		api.RespondErrorWithCode(w, http.StatusTooManyRequests, api.CodeRateLimited, "Rate limit exceeded")
		return
	}

	// Validate webhook secret
	if err := h.adapter.ValidateWebhookSecret(r, h.secret); err != nil {
		log.Printf("Webhook: Secret validation failed for %s: %v", client, err)
		api.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	// Read request body
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, api.MaxBodySize))
	if err != nil {
		log.Printf("Webhook: Error reading body: %v", err)
		api.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	defer r.Body.Close()
	if len(strings.TrimSpace(string(body))) == 0 {
		api.RespondError(w, http.StatusBadRequest, "No data received")
		return
	}

	// Parse payload into normalized alerts
	normalized, err := h.adapter.ParsePayload(body)
	if err != nil {
		log.Printf("Webhook: Invalid %s payload: %v", h.adapter.GetSourceType(), err)
		if errors.Is(err, alerts.ErrInvalidPayload) {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		api.RespondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	log.Printf("Webhook: Received %d alerts from %s", len(normalized), h.adapter.GetSourceType())

	resp := api.WebhookResponse{
		Status:          "processed",
		AlertsProcessed: len(normalized),
		Results:         make([]api.WebhookAlertResult, 0, len(normalized)),
	}
	allResolved := len(normalized) > 0
	for _, a := range normalized {
		if a.Status != alerts.AlertStatusResolved {
			allResolved = false
		}
		resp.Results = append(resp.Results, h.processAlert(r, a))
	}
	if allResolved {
		resp.Status = "resolved"
	}

	api.RespondJSON(w, http.StatusOK, resp)
}

// processAlert opens an incident for a firing safety alert and logs the rest
func (h *AlertHandler) processAlert(r *http.Request, a alerts.NormalizedAlert) api.WebhookAlertResult {
	result := api.WebhookAlertResult{RiskID: a.RiskID}

	if !a.IsSafetyRisk() {
		log.Printf("Webhook: Logged %s alert %q (risk %s)", a.Status, a.AlertName, a.RiskID)
		result.Status = alertResultLogged
		return result
	}

	inc, err := h.incidents.Create(r.Context(), a.CreateParams(h.adapter.GetSourceType()))
	if err != nil {
		log.Printf("Webhook: Failed to create incident for risk %s: %v", a.RiskID, err)
		result.Status = alertResultError
		result.Error = err.Error()
		return result
	}

	log.Printf("Webhook: Created incident %s for safety risk %s", inc.ID, a.RiskID)
	result.Status = alertResultCreated
	result.IncidentID = inc.ID
	return result
}

// clientIP returns the first X-Forwarded-For hop, falling back to the peer address
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
