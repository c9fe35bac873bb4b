package alerts

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/lifecycle"
)

// ErrInvalidPayload marks a webhook body that failed validation
var ErrInvalidPayload = errors.New("invalid alert payload")

// ErrInvalidSecret marks a webhook request with a missing or wrong secret
var ErrInvalidSecret = errors.New("invalid webhook secret")

// AlertStatus is the normalized firing state of an alert
type AlertStatus string

const (
	AlertStatusFiring   AlertStatus = "firing"
	AlertStatusResolved AlertStatus = "resolved"
)

// SafetyRiskPrefix selects alerts that open serious incidents
const SafetyRiskPrefix = "safety-"

// Defaults applied when an alert lacks the corresponding label
const (
	DefaultAISystemID   = "GRAFANA-MONITORED-SYSTEM"
	DefaultAISystemName = "AI System"
	DefaultMemberState  = "EU"
	DefaultAlertName    = "Grafana Alert"
)

// NormalizedAlert is the common alert format all adapters produce
type NormalizedAlert struct {
	AlertName   string
	Status      AlertStatus
	Severity    string
	Summary     string
	Description string

	RiskID           string
	AISystemID       string
	AISystemName     string
	MemberState      string
	ArticleReference string

	Labels      map[string]string
	Annotations map[string]string

	StartedAt   *time.Time
	Fingerprint string
}

// AlertAdapter defines the interface for source-specific alert parsing
type AlertAdapter interface {
	// GetSourceType returns the source type name (e.g., "grafana")
	GetSourceType() string

	// ValidateWebhookSecret checks the request against the configured secret
	ValidateWebhookSecret(r *http.Request, secret string) error

	// ParsePayload parses the raw request body into normalized alerts
	ParsePayload(body []byte) ([]NormalizedAlert, error)
}

// BaseAdapter provides common functionality for all adapters
type BaseAdapter struct {
	SourceType string
}

// GetSourceType returns the source type name
func (b *BaseAdapter) GetSourceType() string {
	return b.SourceType
}

// IsSafetyRisk reports whether the alert should open a serious incident
func (a NormalizedAlert) IsSafetyRisk() bool {
	return a.Status == AlertStatusFiring && strings.HasPrefix(a.RiskID, SafetyRiskPrefix)
}

// CreateParams maps a safety alert onto the parameters of a new incident
func (a NormalizedAlert) CreateParams(source string) lifecycle.CreateParams {
	title := a.Summary
	if title == "" {
		title = a.AlertName
	}

	var desc strings.Builder
	if a.Description != "" {
		desc.WriteString(a.Description)
		desc.WriteString("\n\n")
	}
	desc.WriteString("Alert Details:\n")
	desc.WriteString("Risk ID: " + a.RiskID + "\n")
	desc.WriteString("Severity: " + orDefault(a.Severity, "N/A") + "\n")
	desc.WriteString("Article Reference: " + orDefault(a.ArticleReference, "N/A") + "\n")
	desc.WriteString("Alert Fingerprint: " + orDefault(a.Fingerprint, "N/A"))

	return lifecycle.CreateParams{
		Title:           title,
		Description:     desc.String(),
		AISystemID:      orDefault(a.AISystemID, DefaultAISystemID),
		AISystemName:    orDefault(a.AISystemName, DefaultAISystemName),
		MemberState:     orDefault(a.MemberState, DefaultMemberState),
		DetectionMethod: database.DetectionMethodAutomated,
		Metadata: database.JSONB{
			"source":            source,
			"alert_fingerprint": a.Fingerprint,
			"risk_id":           a.RiskID,
			"severity_label":    a.Severity,
			"article_reference": a.ArticleReference,
			"alert_labels":      stringMap(a.Labels),
			"alert_annotations": stringMap(a.Annotations),
		},
	}
}

// NormalizeStatus normalizes status strings to standard values
func NormalizeStatus(status string) AlertStatus {
	switch strings.ToLower(status) {
	case "resolved", "ok", "normal", "inactive":
		return AlertStatusResolved
	default:
		return AlertStatusFiring
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// stringMap converts labels into a JSON friendly map
func stringMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
