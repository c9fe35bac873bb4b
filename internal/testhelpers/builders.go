package testhelpers

import (
	"time"

	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/deadline"
)

// BaseTime is the detection time builders use unless told otherwise
var BaseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// ========================================
// Serious Incident Builder
// ========================================

// SeriousIncidentBuilder builds SeriousIncident instances for testing
type SeriousIncidentBuilder struct {
	incident database.SeriousIncident
}

// NewSeriousIncidentBuilder creates a detected, unclassified incident with defaults
func NewSeriousIncidentBuilder() *SeriousIncidentBuilder {
	return &SeriousIncidentBuilder{
		incident: database.SeriousIncident{
			ID:                 "inc-test-1",
			Title:              "Test serious incident",
			Description:        "AI system produced a harmful output",
			AISystemID:         "test-system",
			AISystemName:       "Test System",
			MemberState:        "DE",
			DetectedAt:         BaseTime,
			DetectionMethod:    database.DetectionMethodManual,
			CausalLink:         database.CausalLinkUnknown,
			Status:             database.IncidentStatusDetected,
			RemediationActions: []database.RemediationAction{},
			Reports:            []database.IncidentReport{},
			InvestigationNotes: []database.InvestigationNote{},
			CreatedAt:          BaseTime,
			UpdatedAt:          BaseTime,
		},
	}
}

// WithID sets the incident ID
func (b *SeriousIncidentBuilder) WithID(id string) *SeriousIncidentBuilder {
	b.incident.ID = id
	return b
}

// WithTitle sets the title
func (b *SeriousIncidentBuilder) WithTitle(title string) *SeriousIncidentBuilder {
	b.incident.Title = title
	return b
}

// WithMemberState sets the member state
func (b *SeriousIncidentBuilder) WithMemberState(state string) *SeriousIncidentBuilder {
	b.incident.MemberState = state
	return b
}

// DetectedAt sets the detection time
func (b *SeriousIncidentBuilder) DetectedAt(t time.Time) *SeriousIncidentBuilder {
	b.incident.DetectedAt = t
	b.incident.CreatedAt = t
	b.incident.UpdatedAt = t
	return b
}

// Classified sets type and severity and derives the reporting deadline
// from the detection time
func (b *SeriousIncidentBuilder) Classified(t database.IncidentType, s database.Severity) *SeriousIncidentBuilder {
	b.incident.Type = &t
	b.incident.Severity = &s
	if due, err := deadline.ComputeDeadline(t, deadline.ReferenceTime(&b.incident)); err == nil {
		b.incident.ReportingDeadline = &due
	}
	if !b.incident.Status.AtLeast(database.IncidentStatusClassified) {
		b.incident.Status = database.IncidentStatusClassified
	}
	return b
}

// WithStatus sets the status
func (b *SeriousIncidentBuilder) WithStatus(status database.IncidentStatus) *SeriousIncidentBuilder {
	b.incident.Status = status
	return b
}

// WithRemediation adds a remediation action
func (b *SeriousIncidentBuilder) WithRemediation(id, description string, status database.RemediationStatus) *SeriousIncidentBuilder {
	b.incident.RemediationActions = append(b.incident.RemediationActions, database.RemediationAction{
		ID:          id,
		IncidentID:  b.incident.ID,
		Description: description,
		Status:      status,
		CreatedAt:   b.incident.DetectedAt,
		UpdatedAt:   b.incident.DetectedAt,
	})
	return b
}

// WithReport adds a submitted report
func (b *SeriousIncidentBuilder) WithReport(id string, t database.ReportType, submittedAt time.Time) *SeriousIncidentBuilder {
	b.incident.Reports = append(b.incident.Reports, database.IncidentReport{
		ID:          id,
		IncidentID:  b.incident.ID,
		Type:        t,
		Content:     string(t) + " report",
		SubmittedAt: submittedAt,
	})
	return b
}

// WithAuthorityNotification records a notification to contact
func (b *SeriousIncidentBuilder) WithAuthorityNotification(contact string, notifiedAt time.Time) *SeriousIncidentBuilder {
	b.incident.AuthorityNotification = &database.AuthorityNotification{
		IncidentID: b.incident.ID,
		Contact:    contact,
		Content:    "Notification of serious incident",
		NotifiedAt: notifiedAt,
	}
	return b
}

// Build returns the constructed incident
func (b *SeriousIncidentBuilder) Build() *database.SeriousIncident {
	inc := b.incident.Clone()
	return inc
}
