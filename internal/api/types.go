package api

import (
	"time"

	"github.com/akmatori/article73/internal/database"
)

// ========== Incident Types ==========

// CreateIncidentRequest is the request body for POST /api/incidents.
type CreateIncidentRequest struct {
	Title           string         `json:"title" validate:"required,notblank,max=255"`
	Description     string         `json:"description" validate:"required,notblank"`
	AISystemID      string         `json:"ai_system_id" validate:"required,max=255"`
	AISystemName    string         `json:"ai_system_name" validate:"required,max=255"`
	MemberState     string         `json:"member_state" validate:"required,max=64"`
	DetectionMethod string         `json:"detection_method" validate:"omitempty,oneof=automated manual"`
	Metadata        database.JSONB `json:"metadata,omitempty"`
}

// ClassifyIncidentRequest is the request body for POST /api/incidents/{id}/classify.
// Type and severity are checked by the lifecycle so unknown values map to
// invalid_classification rather than a field error.
type ClassifyIncidentRequest struct {
	Type       string                             `json:"type" validate:"required"`
	Severity   string                             `json:"severity" validate:"required"`
	Suggestion *database.ClassificationSuggestion `json:"suggestion,omitempty"`
}

// CausalLinkRequest is the request body for POST /api/incidents/{id}/causal-link.
type CausalLinkRequest struct {
	Established *bool  `json:"established" validate:"required"`
	Evidence    string `json:"evidence"`
}

// AddRemediationActionRequest is the request body for POST /api/incidents/{id}/remediation-actions.
type AddRemediationActionRequest struct {
	Description string `json:"description" validate:"required,notblank"`
	AISuggested bool   `json:"ai_suggested"`
}

// UpdateRemediationStatusRequest is the request body for PUT /api/incidents/{id}/remediation-actions/{actionId}.
type UpdateRemediationStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SubmitReportRequest is the request body for POST /api/incidents/{id}/reports.
type SubmitReportRequest struct {
	Type    string `json:"type" validate:"required,oneof=initial complete"`
	Content string `json:"content" validate:"required,notblank"`
}

// NotifyAuthorityRequest is the request body for POST /api/incidents/{id}/authority-notification.
// An empty contact is looked up in the authority directory by member state.
type NotifyAuthorityRequest struct {
	Contact string `json:"contact" validate:"omitempty,max=255"`
	Content string `json:"content" validate:"required,notblank"`
}

// RiskAssessmentRequest is the request body for POST /api/incidents/{id}/risk-assessment.
type RiskAssessmentRequest struct {
	Content           string   `json:"content" validate:"required,notblank"`
	CorrectiveActions []string `json:"corrective_actions" validate:"max=50,dive,required,notblank,max=1000"`
}

// ResolveIncidentRequest is the request body for POST /api/incidents/{id}/resolve.
type ResolveIncidentRequest struct {
	ResolutionNotes string `json:"resolution_notes"`
}

// AddRemediationActionResponse is the response body for a new remediation action.
type AddRemediationActionResponse struct {
	Action   *database.RemediationAction `json:"action"`
	Incident *database.SeriousIncident   `json:"incident"`
}

// ClassificationSuggestionResponse is the response body for a classification suggestion.
type ClassificationSuggestionResponse struct {
	IncidentID string                            `json:"incident_id"`
	Suggestion database.ClassificationSuggestion `json:"suggestion"`
	WindowDays int                               `json:"window_days"`
}

// RemediationSuggestionResponse is the response body for remediation suggestions.
type RemediationSuggestionResponse struct {
	IncidentID string   `json:"incident_id"`
	Actions    []string `json:"actions"`
}

// ========== Webhook Types ==========

// WebhookAlertResult reports what happened to one alert of a webhook delivery.
type WebhookAlertResult struct {
	Status     string `json:"status"`
	RiskID     string `json:"risk_id"`
	IncidentID string `json:"incident_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// WebhookResponse is the response body for POST /webhook/grafana.
type WebhookResponse struct {
	Status          string               `json:"status"`
	AlertsProcessed int                  `json:"alerts_processed"`
	Results         []WebhookAlertResult `json:"results"`
}

// ========== Mapper Output Types ==========

// IncidentListItem is a compact representation of an incident for list views.
// It omits descriptions, reports and other long text.
type IncidentListItem struct {
	ID                string                   `json:"id"`
	Title             string                   `json:"title"`
	AISystemID        string                   `json:"ai_system_id"`
	AISystemName      string                   `json:"ai_system_name"`
	MemberState       string                   `json:"member_state"`
	Type              *database.IncidentType   `json:"type,omitempty"`
	Severity          *database.Severity       `json:"severity,omitempty"`
	Status            database.IncidentStatus  `json:"status"`
	CausalLink        database.CausalLink      `json:"causal_link"`
	DetectedAt        time.Time                `json:"detected_at"`
	ReportingDeadline *time.Time               `json:"reporting_deadline,omitempty"`
	RemediationCount  int                      `json:"remediation_count"`
	ReportCount       int                      `json:"report_count"`
	AuthorityNotified bool                     `json:"authority_notified"`
	DetectionMethod   database.DetectionMethod `json:"detection_method"`
	UpdatedAt         time.Time                `json:"updated_at"`
}
