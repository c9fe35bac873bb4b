// Package lifecycle enforces the legal sequence of operations on a serious
// incident record and keeps its reporting deadline current.
//
// Operations never mutate their input. Each one validates the incident's
// current state, applies the change to a deep copy and returns the copy, so
// a failed call leaves the caller's value untouched.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/deadline"
	"github.com/akmatori/article73/internal/utils"
)

// notePreviewLength caps report and assessment text quoted in investigation notes
const notePreviewLength = 100

// Clock returns the current time
type Clock func() time.Time

// IDGenerator returns a fresh unique identifier
type IDGenerator func() string

// SystemClock is the production clock: UTC, truncated to the microsecond
// precision PostgreSQL stores.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewUUID is the production ID generator
func NewUUID() string {
	return uuid.New().String()
}

// Lifecycle applies state transitions to incident records
type Lifecycle struct {
	now   Clock
	newID IDGenerator
}

// New creates a lifecycle with explicit collaborators. Nil arguments fall
// back to SystemClock and NewUUID.
func New(clock Clock, newID IDGenerator) *Lifecycle {
	if clock == nil {
		clock = SystemClock
	}
	if newID == nil {
		newID = NewUUID
	}
	return &Lifecycle{now: clock, newID: newID}
}

// Now returns the lifecycle clock's current time in UTC
func (l *Lifecycle) Now() time.Time {
	return l.now().UTC()
}

// CreateParams holds the caller-supplied fields of a new incident
type CreateParams struct {
	Title           string
	Description     string
	AISystemID      string
	AISystemName    string
	MemberState     string
	DetectionMethod database.DetectionMethod
	Metadata        database.JSONB
}

// Create records a newly detected incident
func (l *Lifecycle) Create(p CreateParams) (*database.SeriousIncident, error) {
	const op = "create"
	required := []struct {
		name  string
		value string
	}{
		{"title", p.Title},
		{"description", p.Description},
		{"ai_system_id", p.AISystemID},
		{"ai_system_name", p.AISystemName},
		{"member_state", p.MemberState},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return nil, validationError(op, "%s is required", f.name)
		}
	}
	if !p.DetectionMethod.IsValid() {
		return nil, validationError(op, "invalid detection method %q", p.DetectionMethod)
	}

	now := l.Now()
	inc := &database.SeriousIncident{
		ID:                 l.newID(),
		Title:              strings.TrimSpace(p.Title),
		Description:        strings.TrimSpace(p.Description),
		AISystemID:         strings.TrimSpace(p.AISystemID),
		AISystemName:       strings.TrimSpace(p.AISystemName),
		MemberState:        strings.ToUpper(strings.TrimSpace(p.MemberState)),
		DetectedAt:         now,
		DetectionMethod:    p.DetectionMethod,
		CausalLink:         database.CausalLinkUnknown,
		Status:             database.IncidentStatusDetected,
		Metadata:           p.Metadata,
		RemediationActions: []database.RemediationAction{},
		Reports:            []database.IncidentReport{},
		InvestigationNotes: []database.InvestigationNote{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return inc, nil
}

// Classify sets type and severity and computes the reporting deadline.
// The suggestion, if any, is stored for the record only; the caller's
// type and severity are what get applied.
func (l *Lifecycle) Classify(inc *database.SeriousIncident, t database.IncidentType, s database.Severity, suggestion *database.ClassificationSuggestion) (*database.SeriousIncident, error) {
	const op = "classify"
	if inc.Status != database.IncidentStatusDetected {
		return nil, stateError(op, "incident %s is %s, expected %s", inc.ID, inc.Status, database.IncidentStatusDetected)
	}
	if !t.IsValid() {
		if t == "" {
			return nil, fmt.Errorf("%s: %w: incident type is required", op, ErrInvalidClassification)
		}
		return nil, fmt.Errorf("%s: %w: unknown incident type %q", op, ErrInvalidClassification, t)
	}
	if !s.IsValid() {
		return nil, validationError(op, "invalid severity %q", s)
	}
	due, err := deadline.ComputeDeadline(t, deadline.ReferenceTime(inc))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := inc.Clone()
	out.Type = &t
	out.Severity = &s
	out.ReportingDeadline = &due
	if suggestion != nil {
		out.Suggestion = *suggestion
	}
	l.advance(out, database.IncidentStatusClassified)
	return out, nil
}

// EstablishCausalLink records whether the AI system caused the incident.
// An established link restarts the reporting window from the link time and
// can be set only once.
func (l *Lifecycle) EstablishCausalLink(inc *database.SeriousIncident, established bool, evidence string) (*database.SeriousIncident, error) {
	const op = "establish causal link"
	if err := requireClassifiedOpen(op, inc); err != nil {
		return nil, err
	}
	if inc.CausalLink == database.CausalLinkEstablished {
		return nil, stateError(op, "causal link of incident %s was already established", inc.ID)
	}

	out := inc.Clone()
	out.CausalLinkEvidence = strings.TrimSpace(evidence)
	if established {
		linkTime := l.Now()
		if linkTime.Before(inc.DetectedAt) {
			linkTime = inc.DetectedAt
		}
		due, err := deadline.ComputeDeadline(*inc.Type, linkTime)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out.CausalLink = database.CausalLinkEstablished
		out.CausalLinkEstablishedAt = &linkTime
		out.ReportingDeadline = &due
		l.note(out, withDetail("Causal link established", out.CausalLinkEvidence))
	} else {
		due, err := deadline.ComputeDeadline(*inc.Type, inc.DetectedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out.CausalLink = database.CausalLinkRuledOut
		out.ReportingDeadline = &due
		l.note(out, withDetail("Causal link ruled out", out.CausalLinkEvidence))
	}
	l.advance(out, database.IncidentStatusCausalLinkPending)
	return out, nil
}

// AddRemediationAction appends a new action in the suggested state
func (l *Lifecycle) AddRemediationAction(inc *database.SeriousIncident, description string, aiSuggested bool) (*database.SeriousIncident, *database.RemediationAction, error) {
	const op = "add remediation action"
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, nil, validationError(op, "description is required")
	}
	if err := requireClassifiedOpen(op, inc); err != nil {
		return nil, nil, err
	}

	now := l.Now()
	out := inc.Clone()
	out.RemediationActions = append(out.RemediationActions, database.RemediationAction{
		ID:          l.newID(),
		Description: description,
		Status:      database.RemediationStatusSuggested,
		AISuggested: aiSuggested,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	l.advance(out, database.IncidentStatusRemediating)
	action := out.RemediationActions[len(out.RemediationActions)-1]
	return out, &action, nil
}

// UpdateRemediationStatus moves an action forward through
// suggested, approved, in_progress and completed. Setting the current status
// again is a no-op.
func (l *Lifecycle) UpdateRemediationStatus(inc *database.SeriousIncident, actionID string, status database.RemediationStatus) (*database.SeriousIncident, error) {
	const op = "update remediation status"
	if err := requireClassifiedOpen(op, inc); err != nil {
		return nil, err
	}
	idx := inc.FindRemediationAction(actionID)
	if idx < 0 {
		return nil, notFoundError(op, "remediation action %s", actionID)
	}
	if status.Rank() < 0 {
		return nil, validationError(op, "invalid remediation status %q", status)
	}
	current := inc.RemediationActions[idx].Status
	if status.Rank() < current.Rank() {
		return nil, stateError(op, "cannot move action %s from %s back to %s", actionID, current, status)
	}

	out := inc.Clone()
	if status != current {
		out.RemediationActions[idx].Status = status
		out.RemediationActions[idx].UpdatedAt = l.Now()
	}
	l.advance(out, database.IncidentStatusRemediating)
	return out, nil
}

// SubmitReport appends a report. Nothing may follow a complete report.
func (l *Lifecycle) SubmitReport(inc *database.SeriousIncident, t database.ReportType, content string) (*database.SeriousIncident, error) {
	const op = "submit report"
	if !t.IsValid() {
		return nil, validationError(op, "invalid report type %q", t)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationError(op, "content is required")
	}
	if err := requireClassifiedOpen(op, inc); err != nil {
		return nil, err
	}
	if inc.CompleteReport() != nil {
		return nil, stateError(op, "incident %s already has a complete report", inc.ID)
	}

	out := inc.Clone()
	out.Reports = append(out.Reports, database.IncidentReport{
		ID:          l.newID(),
		Type:        t,
		Content:     content,
		SubmittedAt: l.Now(),
	})
	if t == database.ReportTypeComplete {
		l.note(out, "Complete report submitted")
	} else {
		l.note(out, withDetail("Initial report submitted", utils.TruncateText(content, notePreviewLength)))
	}
	l.advance(out, database.IncidentStatusReporting)
	return out, nil
}

// NotifyAuthority records the notification sent to the market surveillance
// authority, replacing any earlier one.
func (l *Lifecycle) NotifyAuthority(inc *database.SeriousIncident, contact, content string) (*database.SeriousIncident, error) {
	const op = "notify authority"
	contact = strings.TrimSpace(contact)
	content = strings.TrimSpace(content)
	if contact == "" {
		return nil, validationError(op, "contact is required")
	}
	if content == "" {
		return nil, validationError(op, "content is required")
	}
	if inc.ReportingDeadline == nil {
		return nil, stateError(op, "incident %s has no reporting deadline", inc.ID)
	}
	if inc.IsClosed() {
		return nil, stateError(op, "incident %s is closed", inc.ID)
	}

	out := inc.Clone()
	out.AuthorityNotification = &database.AuthorityNotification{
		IncidentID: inc.ID,
		Contact:    contact,
		Content:    content,
		NotifiedAt: l.Now(),
	}
	l.note(out, "Authority notified: "+contact)
	out.UpdatedAt = l.Now()
	return out, nil
}

// PerformRiskAssessment sets the outcome of the investigation and the
// corrective actions it calls for. A repeated assessment replaces the earlier one.
func (l *Lifecycle) PerformRiskAssessment(inc *database.SeriousIncident, content string, correctiveActions []string) (*database.SeriousIncident, error) {
	const op = "perform risk assessment"
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationError(op, "content is required")
	}
	actions := make(database.StringList, 0, len(correctiveActions))
	for i, a := range correctiveActions {
		a = strings.TrimSpace(a)
		if a == "" {
			return nil, validationError(op, "corrective action %d is blank", i)
		}
		actions = append(actions, a)
	}
	if err := requireClassifiedOpen(op, inc); err != nil {
		return nil, err
	}

	out := inc.Clone()
	out.RiskAssessment = &database.RiskAssessment{
		IncidentID:        inc.ID,
		Content:           content,
		CorrectiveActions: actions,
		PerformedAt:       l.Now(),
	}
	l.note(out, withDetail("Investigation completed", utils.TruncateText(content, notePreviewLength)))
	l.advance(out, database.IncidentStatusInvestigating)
	return out, nil
}

// Resolve marks the incident resolved once every remediation action is completed
func (l *Lifecycle) Resolve(inc *database.SeriousIncident, notes string) (*database.SeriousIncident, error) {
	const op = "resolve"
	if err := requireClassifiedOpen(op, inc); err != nil {
		return nil, err
	}
	if inc.Status == database.IncidentStatusResolved {
		return nil, stateError(op, "incident %s is already resolved", inc.ID)
	}
	for _, a := range inc.RemediationActions {
		if a.Status != database.RemediationStatusCompleted {
			return nil, stateError(op, "remediation action %s is %s", a.ID, a.Status)
		}
	}

	now := l.Now()
	out := inc.Clone()
	out.ResolutionNotes = strings.TrimSpace(notes)
	out.ResolvedAt = &now
	l.note(out, withDetail("Resolved", out.ResolutionNotes))
	l.advance(out, database.IncidentStatusResolved)
	return out, nil
}

// Close makes the incident terminal. It requires a complete report and an
// authority notification.
func (l *Lifecycle) Close(inc *database.SeriousIncident) (*database.SeriousIncident, error) {
	const op = "close"
	if inc.IsClosed() {
		return nil, stateError(op, "incident %s is already closed", inc.ID)
	}
	if inc.CompleteReport() == nil {
		return nil, stateError(op, "incident %s has no complete report", inc.ID)
	}
	if inc.AuthorityNotification == nil {
		return nil, stateError(op, "incident %s has no authority notification", inc.ID)
	}

	now := l.Now()
	out := inc.Clone()
	out.ClosedAt = &now
	l.advance(out, database.IncidentStatusClosed)
	return out, nil
}

// Timeline is the reporting view of an incident at a point in time
type Timeline struct {
	IncidentID string `json:"incident_id"`
	deadline.Timeline
	ReportingCompliant        bool       `json:"reporting_compliant"`
	InitialReportSubmitted    bool       `json:"initial_report_submitted"`
	CompleteReportSubmitted   bool       `json:"complete_report_submitted"`
	CompleteReportSubmittedAt *time.Time `json:"complete_report_submitted_at,omitempty"`
}

// TrackTimeline evaluates the reporting deadline at now. It is read-only.
func (l *Lifecycle) TrackTimeline(inc *database.SeriousIncident, now time.Time) (Timeline, error) {
	return TrackTimeline(inc, now)
}

// TrackTimeline evaluates the reporting deadline of inc at now
func TrackTimeline(inc *database.SeriousIncident, now time.Time) (Timeline, error) {
	const op = "track timeline"
	if inc.Type == nil || inc.ReportingDeadline == nil {
		return Timeline{}, stateError(op, "incident %s is not classified", inc.ID)
	}
	tl, err := deadline.Evaluate(*inc.Type, *inc.ReportingDeadline, now)
	if err != nil {
		return Timeline{}, fmt.Errorf("%s: %w", op, err)
	}

	out := Timeline{
		IncidentID:             inc.ID,
		Timeline:               tl,
		InitialReportSubmitted: inc.HasInitialReport(),
	}
	if complete := inc.CompleteReport(); complete != nil {
		submitted := complete.SubmittedAt
		out.CompleteReportSubmitted = true
		out.CompleteReportSubmittedAt = &submitted
		out.ReportingCompliant = !submitted.After(*inc.ReportingDeadline)
	} else {
		out.ReportingCompliant = now.Before(*inc.ReportingDeadline)
	}
	return out, nil
}

func requireClassifiedOpen(op string, inc *database.SeriousIncident) error {
	if inc.IsClosed() {
		return stateError(op, "incident %s is closed", inc.ID)
	}
	if !inc.IsClassified() {
		return stateError(op, "incident %s is not classified", inc.ID)
	}
	return nil
}

// advance moves the status forward to phase; it never moves it back
func (l *Lifecycle) advance(inc *database.SeriousIncident, phase database.IncidentStatus) {
	if phase.Rank() > inc.Status.Rank() {
		inc.Status = phase
	}
	inc.UpdatedAt = l.Now()
}

// note appends an entry to the incident's investigation trail
func (l *Lifecycle) note(inc *database.SeriousIncident, text string) {
	inc.InvestigationNotes = append(inc.InvestigationNotes, database.InvestigationNote{
		ID:        l.newID(),
		Note:      text,
		CreatedAt: l.Now(),
	})
}

func withDetail(event, detail string) string {
	if detail == "" {
		return event
	}
	return event + ": " + detail
}
