package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrIncidentNotFound is returned when no incident exists with the requested ID
var ErrIncidentNotFound = errors.New("incident not found")

// IncidentFilter narrows a List call. Empty fields do not filter.
type IncidentFilter struct {
	Status      IncidentStatus
	Severity    Severity
	Type        IncidentType
	MemberState string
	AISystemID  string
	// OpenOnly excludes closed incidents
	OpenOnly bool
	// ClassifiedOnly excludes incidents that have no reporting deadline yet
	ClassifiedOnly bool
	Limit          int
	Offset         int
}

// IncidentStore persists whole incident records keyed by ID.
// Writes are last-write-wins; callers serialize writers per ID.
type IncidentStore struct {
	db *gorm.DB
}

// NewIncidentStore creates a store over db
func NewIncidentStore(db *gorm.DB) *IncidentStore {
	return &IncidentStore{db: db}
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (s *IncidentStore) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("RemediationActions", orderByPosition).
		Preload("Reports", orderByPosition).
		Preload("InvestigationNotes", orderByPosition).
		Preload("AuthorityNotification").
		Preload("RiskAssessment")
}

// Load fetches an incident and all of its child records
func (s *IncidentStore) Load(ctx context.Context, id string) (*SeriousIncident, error) {
	var inc SeriousIncident
	err := s.preloaded(ctx).Where("id = ?", id).First(&inc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load incident %s: %w", id, err)
	}
	normalizeChildren(&inc)
	return &inc, nil
}

// Save writes the incident and replaces its child records in one transaction
func (s *IncidentStore) Save(ctx context.Context, inc *SeriousIncident) error {
	if inc.ID == "" {
		return errors.New("incident ID is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&SeriousIncident{}).Where("id = ?", inc.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := tx.Omit(clause.Associations).Create(inc).Error; err != nil {
				return fmt.Errorf("failed to create incident: %w", err)
			}
		} else if err := tx.Omit(clause.Associations).Save(inc).Error; err != nil {
			return fmt.Errorf("failed to update incident: %w", err)
		}
		return replaceChildren(tx, inc)
	})
}

func replaceChildren(tx *gorm.DB, inc *SeriousIncident) error {
	for _, model := range []interface{}{
		&RemediationAction{}, &IncidentReport{}, &AuthorityNotification{}, &RiskAssessment{},
		&InvestigationNote{},
	} {
		if err := tx.Where("incident_id = ?", inc.ID).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clear child records: %w", err)
		}
	}

	for i := range inc.RemediationActions {
		inc.RemediationActions[i].IncidentID = inc.ID
		inc.RemediationActions[i].Position = i
	}
	if len(inc.RemediationActions) > 0 {
		if err := tx.Create(&inc.RemediationActions).Error; err != nil {
			return fmt.Errorf("failed to save remediation actions: %w", err)
		}
	}

	for i := range inc.Reports {
		inc.Reports[i].IncidentID = inc.ID
		inc.Reports[i].Position = i
	}
	if len(inc.Reports) > 0 {
		if err := tx.Create(&inc.Reports).Error; err != nil {
			return fmt.Errorf("failed to save reports: %w", err)
		}
	}

	for i := range inc.InvestigationNotes {
		inc.InvestigationNotes[i].IncidentID = inc.ID
		inc.InvestigationNotes[i].Position = i
	}
	if len(inc.InvestigationNotes) > 0 {
		if err := tx.Create(&inc.InvestigationNotes).Error; err != nil {
			return fmt.Errorf("failed to save investigation notes: %w", err)
		}
	}

	if inc.AuthorityNotification != nil {
		inc.AuthorityNotification.IncidentID = inc.ID
		if err := tx.Create(inc.AuthorityNotification).Error; err != nil {
			return fmt.Errorf("failed to save authority notification: %w", err)
		}
	}

	if inc.RiskAssessment != nil {
		inc.RiskAssessment.IncidentID = inc.ID
		if err := tx.Create(inc.RiskAssessment).Error; err != nil {
			return fmt.Errorf("failed to save risk assessment: %w", err)
		}
	}
	return nil
}

// List returns incidents matching filter, newest detection first, with the total count
func (s *IncidentStore) List(ctx context.Context, filter IncidentFilter) ([]SeriousIncident, int64, error) {
	var total int64
	countQuery := applyFilter(s.db.WithContext(ctx).Model(&SeriousIncident{}), filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	query := applyFilter(s.preloaded(ctx), filter).Order("detected_at DESC").Order("id ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	incidents := []SeriousIncident{}
	if err := query.Find(&incidents).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	for i := range incidents {
		normalizeChildren(&incidents[i])
	}
	return incidents, total, nil
}

func applyFilter(query *gorm.DB, filter IncidentFilter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.MemberState != "" {
		query = query.Where("member_state = ?", filter.MemberState)
	}
	if filter.AISystemID != "" {
		query = query.Where("ai_system_id = ?", filter.AISystemID)
	}
	if filter.OpenOnly {
		query = query.Where("status <> ?", IncidentStatusClosed)
	}
	if filter.ClassifiedOnly {
		query = query.Where("reporting_deadline IS NOT NULL")
	}
	return query
}

func normalizeChildren(inc *SeriousIncident) {
	if inc.RemediationActions == nil {
		inc.RemediationActions = []RemediationAction{}
	}
	if inc.Reports == nil {
		inc.Reports = []IncidentReport{}
	}
	if inc.InvestigationNotes == nil {
		inc.InvestigationNotes = []InvestigationNote{}
	}
	if inc.RiskAssessment != nil && inc.RiskAssessment.CorrectiveActions == nil {
		inc.RiskAssessment.CorrectiveActions = StringList{}
	}
}
