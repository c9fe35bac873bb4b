package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		// SQLite hands text columns back as strings
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList is a list of strings stored as a JSON array
type StringList []string

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// IncidentType is the Article 3(49) category of a serious incident
type IncidentType string

const (
	IncidentTypeDeathOrSeriousHarm               IncidentType = "death_or_serious_harm"
	IncidentTypeCriticalInfrastructureDisruption IncidentType = "critical_infrastructure_disruption"
	IncidentTypeFundamentalRightsInfringement    IncidentType = "fundamental_rights_infringement"
	IncidentTypePropertyOrEnvironmentHarm        IncidentType = "property_or_environment_harm"
)

// ValidIncidentTypes returns every recognised incident type in statutory order (a) to (d)
func ValidIncidentTypes() []IncidentType {
	return []IncidentType{
		IncidentTypeDeathOrSeriousHarm,
		IncidentTypeCriticalInfrastructureDisruption,
		IncidentTypeFundamentalRightsInfringement,
		IncidentTypePropertyOrEnvironmentHarm,
	}
}

// IsValid reports whether t is one of the recognised incident types
func (t IncidentType) IsValid() bool {
	for _, v := range ValidIncidentTypes() {
		if t == v {
			return true
		}
	}
	return false
}

// Severity is the classified severity of an incident
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid reports whether s is a recognised severity
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// DetectionMethod records how an incident was detected
type DetectionMethod string

const (
	DetectionMethodAutomated DetectionMethod = "automated"
	DetectionMethodManual    DetectionMethod = "manual"
)

// IsValid reports whether m is a recognised detection method
func (m DetectionMethod) IsValid() bool {
	return m == DetectionMethodAutomated || m == DetectionMethodManual
}

// CausalLink is the tri-state causal link determination
type CausalLink string

const (
	CausalLinkUnknown     CausalLink = "unknown"
	CausalLinkEstablished CausalLink = "established"
	CausalLinkRuledOut    CausalLink = "ruled_out"
)

// IncidentStatus represents the dominant lifecycle phase of an incident
type IncidentStatus string

const (
	IncidentStatusDetected          IncidentStatus = "detected"
	IncidentStatusClassified        IncidentStatus = "classified"
	IncidentStatusCausalLinkPending IncidentStatus = "causal_link_pending"
	IncidentStatusRemediating       IncidentStatus = "remediating"
	IncidentStatusReporting         IncidentStatus = "reporting"
	IncidentStatusInvestigating     IncidentStatus = "investigating"
	IncidentStatusResolved          IncidentStatus = "resolved"
	IncidentStatusClosed            IncidentStatus = "closed"
)

var incidentStatusOrder = map[IncidentStatus]int{
	IncidentStatusDetected:          0,
	IncidentStatusClassified:        1,
	IncidentStatusCausalLinkPending: 2,
	IncidentStatusRemediating:       3,
	IncidentStatusReporting:         4,
	IncidentStatusInvestigating:     5,
	IncidentStatusResolved:          6,
	IncidentStatusClosed:            7,
}

// Rank returns the position of the status in the lifecycle order, or -1 if unknown
func (s IncidentStatus) Rank() int {
	if r, ok := incidentStatusOrder[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is at or beyond other in the lifecycle order
func (s IncidentStatus) AtLeast(other IncidentStatus) bool {
	return s.Rank() >= other.Rank()
}

// IsValid reports whether s is a recognised status
func (s IncidentStatus) IsValid() bool {
	return s.Rank() >= 0
}

// RemediationStatus is the progress of a single remediation action
type RemediationStatus string

const (
	RemediationStatusSuggested  RemediationStatus = "suggested"
	RemediationStatusApproved   RemediationStatus = "approved"
	RemediationStatusInProgress RemediationStatus = "in_progress"
	RemediationStatusCompleted  RemediationStatus = "completed"
)

// Rank returns the position of the remediation status, or -1 if unknown
func (s RemediationStatus) Rank() int {
	switch s {
	case RemediationStatusSuggested:
		return 0
	case RemediationStatusApproved:
		return 1
	case RemediationStatusInProgress:
		return 2
	case RemediationStatusCompleted:
		return 3
	}
	return -1
}

// ReportType distinguishes a preliminary report from the full one
type ReportType string

const (
	ReportTypeInitial  ReportType = "initial"
	ReportTypeComplete ReportType = "complete"
)

// IsValid reports whether t is a recognised report type
func (t ReportType) IsValid() bool {
	return t == ReportTypeInitial || t == ReportTypeComplete
}

// ClassificationSuggestion records what an assisted classifier proposed.
// It is informational only and never applied to the incident automatically.
type ClassificationSuggestion struct {
	Type      IncidentType `gorm:"type:varchar(64)" json:"type,omitempty"`
	Severity  Severity     `gorm:"type:varchar(20)" json:"severity,omitempty"`
	Rationale string       `gorm:"type:text" json:"rationale,omitempty"`
}

// IsZero reports whether no suggestion was recorded
func (s ClassificationSuggestion) IsZero() bool {
	return s.Type == "" && s.Severity == "" && s.Rationale == ""
}

// SeriousIncident is the record of a serious incident involving a deployed AI system
type SeriousIncident struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	Title           string          `gorm:"type:varchar(255);not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	AISystemID      string          `gorm:"column:ai_system_id;type:varchar(255);not null;index" json:"ai_system_id"`
	AISystemName    string          `gorm:"column:ai_system_name;type:varchar(255)" json:"ai_system_name"`
	MemberState     string          `gorm:"type:varchar(64);index" json:"member_state"`
	DetectedAt      time.Time       `gorm:"not null;index" json:"detected_at"`
	DetectionMethod DetectionMethod `gorm:"type:varchar(20);not null" json:"detection_method"`

	// Classification
	Type       *IncidentType            `gorm:"type:varchar(64);index" json:"type,omitempty"`
	Severity   *Severity                `gorm:"type:varchar(20);index" json:"severity,omitempty"`
	Suggestion ClassificationSuggestion `gorm:"embedded;embeddedPrefix:suggested_" json:"suggestion"`

	// Causal link and reporting deadline
	CausalLink              CausalLink `gorm:"type:varchar(20);not null;default:'unknown'" json:"causal_link"`
	CausalLinkEvidence      string     `gorm:"type:text" json:"causal_link_evidence,omitempty"`
	CausalLinkEstablishedAt *time.Time `json:"causal_link_established_at,omitempty"`
	ReportingDeadline       *time.Time `gorm:"index" json:"reporting_deadline,omitempty"`

	Status          IncidentStatus `gorm:"type:varchar(32);not null;default:'detected';index" json:"status"`
	ResolutionNotes string         `gorm:"type:text" json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
	Metadata        JSONB          `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	// Relationships
	RemediationActions    []RemediationAction    `gorm:"foreignKey:IncidentID" json:"remediation_actions"`
	Reports               []IncidentReport       `gorm:"foreignKey:IncidentID" json:"reports"`
	InvestigationNotes    []InvestigationNote    `gorm:"foreignKey:IncidentID" json:"investigation_notes"`
	AuthorityNotification *AuthorityNotification `gorm:"foreignKey:IncidentID" json:"authority_notification,omitempty"`
	RiskAssessment        *RiskAssessment        `gorm:"foreignKey:IncidentID" json:"risk_assessment,omitempty"`
}

// IsClassified returns true once a type has been set
func (i *SeriousIncident) IsClassified() bool {
	return i.Type != nil
}

// IsClosed returns true if the incident reached the terminal status
func (i *SeriousIncident) IsClosed() bool {
	return i.Status == IncidentStatusClosed
}

// CompleteReport returns the complete report if one was submitted
func (i *SeriousIncident) CompleteReport() *IncidentReport {
	for idx := range i.Reports {
		if i.Reports[idx].Type == ReportTypeComplete {
			return &i.Reports[idx]
		}
	}
	return nil
}

// HasInitialReport returns true if a preliminary report was submitted
func (i *SeriousIncident) HasInitialReport() bool {
	for _, r := range i.Reports {
		if r.Type == ReportTypeInitial {
			return true
		}
	}
	return false
}

// FindRemediationAction returns the index of the action with the given ID, or -1
func (i *SeriousIncident) FindRemediationAction(actionID string) int {
	for idx, a := range i.RemediationActions {
		if a.ID == actionID {
			return idx
		}
	}
	return -1
}

// Clone returns a deep copy so callers can mutate it without touching the original
func (i *SeriousIncident) Clone() *SeriousIncident {
	c := *i
	c.Type = clonePtr(i.Type)
	c.Severity = clonePtr(i.Severity)
	c.CausalLinkEstablishedAt = clonePtr(i.CausalLinkEstablishedAt)
	c.ReportingDeadline = clonePtr(i.ReportingDeadline)
	c.ResolvedAt = clonePtr(i.ResolvedAt)
	c.ClosedAt = clonePtr(i.ClosedAt)
	if i.Metadata != nil {
		c.Metadata = make(JSONB, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = v
		}
	}
	c.RemediationActions = cloneSlice(i.RemediationActions)
	c.Reports = cloneSlice(i.Reports)
	c.InvestigationNotes = cloneSlice(i.InvestigationNotes)
	if i.AuthorityNotification != nil {
		n := *i.AuthorityNotification
		c.AuthorityNotification = &n
	}
	if i.RiskAssessment != nil {
		r := *i.RiskAssessment
		r.CorrectiveActions = cloneSlice(i.RiskAssessment.CorrectiveActions)
		c.RiskAssessment = &r
	}
	return &c
}

// cloneSlice copies s, keeping nil and empty distinct
func cloneSlice[S ~[]E, E any](s S) S {
	if s == nil {
		return nil
	}
	out := make(S, len(s))
	copy(out, s)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// RemediationAction is one step taken to remediate an incident
type RemediationAction struct {
	ID          string            `gorm:"primaryKey;size:36" json:"id"`
	IncidentID  string            `gorm:"size:36;not null;index" json:"-"`
	Position    int               `gorm:"not null" json:"-"`
	Description string            `gorm:"type:text;not null" json:"description"`
	Status      RemediationStatus `gorm:"type:varchar(20);not null" json:"status"`
	AISuggested bool              `gorm:"default:false" json:"ai_suggested"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IncidentReport is a report submitted to the market surveillance authority
type IncidentReport struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	IncidentID  string     `gorm:"size:36;not null;index" json:"-"`
	Position    int        `gorm:"not null" json:"-"`
	Type        ReportType `gorm:"type:varchar(20);not null" json:"type"`
	Content     string     `gorm:"type:text" json:"content"`
	SubmittedAt time.Time  `gorm:"not null" json:"submitted_at"`
}

// AuthorityNotification is the latest notification sent to the authority
type AuthorityNotification struct {
	IncidentID string    `gorm:"primaryKey;size:36" json:"-"`
	Contact    string    `gorm:"type:varchar(255);not null" json:"contact"`
	Content    string    `gorm:"type:text" json:"content"`
	NotifiedAt time.Time `gorm:"not null" json:"notified_at"`
}

// RiskAssessment holds the outcome of the incident investigation
type RiskAssessment struct {
	IncidentID        string     `gorm:"primaryKey;size:36" json:"-"`
	Content           string     `gorm:"type:text" json:"content"`
	CorrectiveActions StringList `gorm:"type:text" json:"corrective_actions"`
	PerformedAt       time.Time  `gorm:"not null" json:"performed_at"`
}

// InvestigationNote is one append-only entry in an incident's audit trail
type InvestigationNote struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	IncidentID string    `gorm:"size:36;not null;index" json:"-"`
	Position   int       `gorm:"not null" json:"-"`
	Note       string    `gorm:"type:text;not null" json:"note"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TimelineAlert remembers the last timeline status an alert was raised for
type TimelineAlert struct {
	IncidentID string    `gorm:"primaryKey;size:36" json:"incident_id"`
	Status     string    `gorm:"type:varchar(20);not null" json:"status"`
	RaisedAt   time.Time `gorm:"not null" json:"raised_at"`
}

// TableName overrides for explicit table naming
func (SeriousIncident) TableName() string {
	return "serious_incidents"
}

func (RemediationAction) TableName() string {
	return "remediation_actions"
}

func (IncidentReport) TableName() string {
	return "incident_reports"
}

func (AuthorityNotification) TableName() string {
	return "authority_notifications"
}

func (RiskAssessment) TableName() string {
	return "risk_assessments"
}

func (InvestigationNote) TableName() string {
	return "investigation_notes"
}

func (TimelineAlert) TableName() string {
	return "timeline_alerts"
}

// GetSeverityEmoji returns a Slack emoji for the incident severity
func GetSeverityEmoji(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return ":red_circle:"
	case SeverityHigh:
		return ":large_orange_circle:"
	case SeverityMedium:
		return ":large_yellow_circle:"
	case SeverityLow:
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}
