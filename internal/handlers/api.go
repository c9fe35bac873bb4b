package handlers

import (
	"net/http"

	"github.com/akmatori/article73/internal/api"
	"github.com/akmatori/article73/internal/authorities"
	"github.com/akmatori/article73/internal/services"
)

// APIHandler handles the incident REST API
type APIHandler struct {
	incidents   *services.IncidentService
	suggestions *services.SuggestionService
	authorities *authorities.Directory
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(incidents *services.IncidentService, suggestions *services.SuggestionService, directory *authorities.Directory) *APIHandler {
	if directory == nil {
		directory = authorities.Default()
	}
	return &APIHandler{
		incidents:   incidents,
		suggestions: suggestions,
		authorities: directory,
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Incidents
	mux.HandleFunc("GET /api/incidents", h.handleListIncidents)
	mux.HandleFunc("POST /api/incidents", h.handleCreateIncident)
	mux.HandleFunc("GET /api/incidents/{id}", h.handleGetIncident)

	// Lifecycle operations
	mux.HandleFunc("POST /api/incidents/{id}/classify", h.handleClassify)
	mux.HandleFunc("POST /api/incidents/{id}/causal-link", h.handleCausalLink)
	mux.HandleFunc("POST /api/incidents/{id}/remediation-actions", h.handleAddRemediationAction)
	mux.HandleFunc("PUT /api/incidents/{id}/remediation-actions/{actionId}", h.handleUpdateRemediationStatus)
	mux.HandleFunc("POST /api/incidents/{id}/reports", h.handleSubmitReport)
	mux.HandleFunc("POST /api/incidents/{id}/authority-notification", h.handleNotifyAuthority)
	mux.HandleFunc("POST /api/incidents/{id}/risk-assessment", h.handleRiskAssessment)
	mux.HandleFunc("POST /api/incidents/{id}/resolve", h.handleResolve)
	mux.HandleFunc("POST /api/incidents/{id}/close", h.handleClose)
	mux.HandleFunc("GET /api/incidents/{id}/timeline", h.handleTimeline)

	// Suggestions
	mux.HandleFunc("GET /api/incidents/{id}/suggestions/classification", h.handleSuggestClassification)
	mux.HandleFunc("GET /api/incidents/{id}/suggestions/remediation", h.handleSuggestRemediation)

	// Authority directory
	mux.HandleFunc("GET /api/authorities", h.handleListAuthorities)
}

// decodeAndValidate decodes the request body into dst and runs struct
// validation. It writes the error response itself and reports whether the
// handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := api.DecodeJSON(r, dst); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if errs := api.Validate(dst); errs != nil {
		api.RespondValidationError(w, errs)
		return false
	}
	return true
}
