package database

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetTimelineAlert returns the last alert raised for an incident, or nil if none was raised.
// Accepts a db parameter for dependency injection and testing.
func GetTimelineAlert(db *gorm.DB, incidentID string) (*TimelineAlert, error) {
	var alert TimelineAlert
	err := db.Where("incident_id = ?", incidentID).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// UpsertTimelineAlert records the status an alert was just raised for
func UpsertTimelineAlert(db *gorm.DB, alert *TimelineAlert) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "incident_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "raised_at"}),
	}).Create(alert).Error
}

// DeleteTimelineAlert forgets the alert state of an incident
func DeleteTimelineAlert(db *gorm.DB, incidentID string) error {
	return db.Where("incident_id = ?", incidentID).Delete(&TimelineAlert{}).Error
}
