package adapters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/akmatori/article73/internal/alerts"
	"github.com/akmatori/article73/internal/utils"
)

// Payload limits for a single Grafana webhook delivery
const (
	MaxAlertsPerPayload = 200
	maxKeyLength        = 128
	maxLabelLength      = 2048
	maxAnnotationLength = 4096
)

// GrafanaAdapter handles Grafana alerting webhooks
type GrafanaAdapter struct {
	alerts.BaseAdapter
}

// NewGrafanaAdapter creates a new Grafana adapter
func NewGrafanaAdapter() *GrafanaAdapter {
	return &GrafanaAdapter{
		BaseAdapter: alerts.BaseAdapter{SourceType: "grafana"},
	}
}

// GrafanaPayload represents a Grafana Alerting (unified alerting) webhook
type GrafanaPayload struct {
	Receiver string            `json:"receiver"`
	Status   string            `json:"status"`
	Alerts   []json.RawMessage `json:"alerts"`
}

// GrafanaAlert represents a single alert in unified alerting.
// Label and annotation values may be any JSON scalar.
type GrafanaAlert struct {
	Status       string                 `json:"status"`
	Labels       map[string]interface{} `json:"labels"`
	Annotations  map[string]interface{} `json:"annotations"`
	StartsAt     string                 `json:"startsAt"`
	EndsAt       string                 `json:"endsAt"`
	Fingerprint  string                 `json:"fingerprint"`
	GeneratorURL string                 `json:"generatorURL"`
}

// ValidateWebhookSecret validates the Grafana webhook secret header
func (a *GrafanaAdapter) ValidateWebhookSecret(r *http.Request, secret string) error {
	if secret == "" {
		return nil // No secret configured, allow request
	}

	// Check custom header
	got := r.Header.Get("X-Grafana-Secret")
	if got == "" {
		got = r.Header.Get("Authorization")
	}

	if got != secret && got != "Bearer "+secret {
		return alerts.ErrInvalidSecret
	}

	return nil
}

// ParsePayload validates a Grafana webhook payload and normalizes its alerts
func (a *GrafanaAdapter) ParsePayload(body []byte) ([]alerts.NormalizedAlert, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		return nil, fmt.Errorf("%w: payload must be a JSON object", alerts.ErrInvalidPayload)
	}

	var payload GrafanaPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: failed to parse grafana payload: %v", alerts.ErrInvalidPayload, err)
	}

	status := strings.ToLower(payload.Status)
	if status != string(alerts.AlertStatusFiring) && status != string(alerts.AlertStatusResolved) {
		return nil, fmt.Errorf("%w: invalid or missing 'status'", alerts.ErrInvalidPayload)
	}
	if payload.Alerts == nil {
		return nil, fmt.Errorf("%w: invalid or missing 'alerts' array", alerts.ErrInvalidPayload)
	}
	if len(payload.Alerts) > MaxAlertsPerPayload {
		return nil, fmt.Errorf("%w: too many alerts in one request (%d > %d)",
			alerts.ErrInvalidPayload, len(payload.Alerts), MaxAlertsPerPayload)
	}

	normalized := make([]alerts.NormalizedAlert, 0, len(payload.Alerts))
	for i, raw := range payload.Alerts {
		var alert GrafanaAlert
		if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
			return nil, fmt.Errorf("%w: alert %d must be an object", alerts.ErrInvalidPayload, i)
		}
		if err := json.Unmarshal(raw, &alert); err != nil {
			return nil, fmt.Errorf("%w: alert %d: labels and annotations must be objects", alerts.ErrInvalidPayload, i)
		}
		// alerts without their own status inherit the group status
		if alert.Status == "" {
			alert.Status = status
		}
		normalized = append(normalized, a.parseUnifiedAlert(alert))
	}

	return normalized, nil
}

func (a *GrafanaAdapter) parseUnifiedAlert(alert GrafanaAlert) alerts.NormalizedAlert {
	labels := sanitizeValues(alert.Labels, maxLabelLength)
	annotations := sanitizeValues(alert.Annotations, maxAnnotationLength)

	// Get alert name from labels
	alertName := labels["alertname"]
	if alertName == "" {
		alertName = alerts.DefaultAlertName
	}

	riskID := labels["risk_id"]
	if riskID == "" {
		riskID = "unknown"
	}

	n := alerts.NormalizedAlert{
		AlertName:        alertName,
		Status:           alerts.NormalizeStatus(alert.Status),
		Severity:         strings.ToLower(labels["severity"]),
		Summary:          annotations["summary"],
		Description:      annotations["description"],
		RiskID:           riskID,
		AISystemID:       labels["ai_system_id"],
		AISystemName:     labels["ai_system"],
		MemberState:      labels["member_state"],
		ArticleReference: annotations["article_reference"],
		Labels:           labels,
		Annotations:      annotations,
		Fingerprint:      utils.SanitizeText(alert.Fingerprint, maxKeyLength),
	}
	if t, err := time.Parse(time.RFC3339, alert.StartsAt); err == nil && !t.IsZero() {
		n.StartedAt = &t
	}
	return n
}

// sanitizeValues keeps scalar values only, bounding keys and values
func sanitizeValues(in map[string]interface{}, maxLen int) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case float64:
			s = fmt.Sprintf("%v", val)
		case bool:
			s = fmt.Sprintf("%t", val)
		default:
			continue
		}
		out[utils.SanitizeKey(k, maxKeyLength)] = utils.SanitizeText(s, maxLen)
	}
	return out
}
