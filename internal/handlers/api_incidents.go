package handlers

import (
	"log"
	"net/http"

	"github.com/akmatori/article73/internal/api"
	"github.com/akmatori/article73/internal/database"
)

// handleListIncidents handles GET /api/incidents
func (h *APIHandler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := api.ParsePagination(q)
	filter := api.IncidentFilterFromQuery(q, params)

	incidents, total, err := h.incidents.List(r.Context(), filter)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, api.NewPaginatedResponse(api.IncidentsToListItems(incidents), params, total))
}

// handleCreateIncident handles POST /api/incidents
func (h *APIHandler) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var req api.CreateIncidentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inc, err := h.incidents.Create(r.Context(), req.ToCreateParams())
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}

	log.Printf("API: Created incident %s for AI system %s", inc.ID, inc.AISystemID)
	api.RespondJSON(w, http.StatusCreated, inc)
}

// handleGetIncident handles GET /api/incidents/{id}
func (h *APIHandler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleClassify handles POST /api/incidents/{id}/classify
func (h *APIHandler) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req api.ClassifyIncidentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inc, err := h.incidents.Classify(r.Context(), r.PathValue("id"),
		database.IncidentType(req.Type), database.Severity(req.Severity), req.Suggestion)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleCausalLink handles POST /api/incidents/{id}/causal-link
func (h *APIHandler) handleCausalLink(w http.ResponseWriter, r *http.Request) {
	var req api.CausalLinkRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inc, err := h.incidents.EstablishCausalLink(r.Context(), r.PathValue("id"), *req.Established, req.Evidence)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleAddRemediationAction handles POST /api/incidents/{id}/remediation-actions
func (h *APIHandler) handleAddRemediationAction(w http.ResponseWriter, r *http.Request) {
	var req api.AddRemediationActionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inc, action, err := h.incidents.AddRemediationAction(r.Context(), r.PathValue("id"), req.Description, req.AISuggested)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, api.AddRemediationActionResponse{
		Action:   action,
		Incident: inc,
	})
}

// handleUpdateRemediationStatus handles PUT /api/incidents/{id}/remediation-actions/{actionId}
func (h *APIHandler) handleUpdateRemediationStatus(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateRemediationStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inc, err := h.incidents.UpdateRemediationStatus(r.Context(), r.PathValue("id"),
		r.PathValue("actionId"), database.RemediationStatus(req.Status))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleSubmitReport handles POST /api/incidents/{id}/reports
func (h *APIHandler) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitReportRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inc, err := h.incidents.SubmitReport(r.Context(), r.PathValue("id"), database.ReportType(req.Type), req.Content)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, inc)
}

// handleNotifyAuthority handles POST /api/incidents/{id}/authority-notification.
// Without an explicit contact the member state's authority is used.
func (h *APIHandler) handleNotifyAuthority(w http.ResponseWriter, r *http.Request) {
	var req api.NotifyAuthorityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	contact := req.Contact
	if contact == "" {
		inc, err := h.incidents.Get(r.Context(), id)
		if err != nil {
			api.RespondServiceError(w, err)
			return
		}
		var ok bool
		if contact, ok = h.authorities.ContactFor(inc.MemberState); !ok {
			api.RespondValidationError(w, map[string]string{
				"contact": "no authority contact known for member state " + inc.MemberState,
			})
			return
		}
	}

	inc, err := h.incidents.NotifyAuthority(r.Context(), id, contact, req.Content)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleRiskAssessment handles POST /api/incidents/{id}/risk-assessment
func (h *APIHandler) handleRiskAssessment(w http.ResponseWriter, r *http.Request) {
	var req api.RiskAssessmentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inc, err := h.incidents.PerformRiskAssessment(r.Context(), r.PathValue("id"), req.Content, req.CorrectiveActions)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleResolve handles POST /api/incidents/{id}/resolve
func (h *APIHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req api.ResolveIncidentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inc, err := h.incidents.Resolve(r.Context(), r.PathValue("id"), req.ResolutionNotes)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleClose handles POST /api/incidents/{id}/close
func (h *APIHandler) handleClose(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Close(r.Context(), r.PathValue("id"))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleTimeline handles GET /api/incidents/{id}/timeline
func (h *APIHandler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	tl, err := h.incidents.TrackTimeline(r.Context(), r.PathValue("id"))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, tl)
}
