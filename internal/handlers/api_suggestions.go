package handlers

import (
	"net/http"

	"github.com/akmatori/article73/internal/api"
	"github.com/akmatori/article73/internal/deadline"
)

// handleSuggestClassification handles GET /api/incidents/{id}/suggestions/classification.
// The suggestion is advisory; nothing is persisted until the incident is classified.
func (h *APIHandler) handleSuggestClassification(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}

	suggestion, err := h.suggestions.SuggestClassification(r.Context(), inc)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}

	resp := api.ClassificationSuggestionResponse{
		IncidentID: inc.ID,
		Suggestion: suggestion,
	}
	if window, err := deadline.WindowFor(suggestion.Type); err == nil {
		resp.WindowDays = int(window / deadline.Day)
	}
	api.RespondJSON(w, http.StatusOK, resp)
}

// handleSuggestRemediation handles GET /api/incidents/{id}/suggestions/remediation
func (h *APIHandler) handleSuggestRemediation(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}

	actions, err := h.suggestions.SuggestRemediation(r.Context(), inc)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.RemediationSuggestionResponse{
		IncidentID: inc.ID,
		Actions:    actions,
	})
}

// handleListAuthorities handles GET /api/authorities
func (h *APIHandler) handleListAuthorities(w http.ResponseWriter, r *http.Request) {
	api.RespondJSON(w, http.StatusOK, h.authorities.List())
}
