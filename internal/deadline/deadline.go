// Package deadline maps incident types to Article 73 reporting windows and
// derives the timeline status of a reporting deadline.
package deadline

import (
	"errors"
	"fmt"
	"time"

	"github.com/akmatori/article73/internal/database"
)

// Day is the unit reporting windows are expressed in
const Day = 24 * time.Hour

// ErrInvalidClassification is returned when the incident type is unset or unknown
var ErrInvalidClassification = errors.New("invalid classification")

// Status is the urgency of a reporting deadline relative to now
type Status string

const (
	StatusOnTrack     Status = "on_track"
	StatusApproaching Status = "approaching"
	StatusUrgent      Status = "urgent"
	StatusOverdue     Status = "overdue"
)

// Rank orders statuses from least to most urgent; unknown values rank -1
func (s Status) Rank() int {
	switch s {
	case StatusOnTrack:
		return 0
	case StatusApproaching:
		return 1
	case StatusUrgent:
		return 2
	case StatusOverdue:
		return 3
	}
	return -1
}

// MoreUrgentThan reports whether s is strictly further along than other
func (s Status) MoreUrgentThan(other Status) bool {
	return s.Rank() > other.Rank()
}

// Fractions of the window at or below which the status escalates
const (
	ApproachingFraction = 0.50
	UrgentFraction      = 0.25
)

var windows = map[database.IncidentType]time.Duration{
	database.IncidentTypeCriticalInfrastructureDisruption: 2 * Day,
	database.IncidentTypeDeathOrSeriousHarm:               10 * Day,
	database.IncidentTypeFundamentalRightsInfringement:    15 * Day,
	database.IncidentTypePropertyOrEnvironmentHarm:        15 * Day,
}

// WindowFor returns the reporting window for an incident type
func WindowFor(t database.IncidentType) (time.Duration, error) {
	w, ok := windows[t]
	if !ok {
		if t == "" {
			return 0, fmt.Errorf("%w: incident type is not set", ErrInvalidClassification)
		}
		return 0, fmt.Errorf("%w: unknown incident type %q", ErrInvalidClassification, t)
	}
	return w, nil
}

// ComputeDeadline returns reference plus the window for t
func ComputeDeadline(t database.IncidentType, reference time.Time) (time.Time, error) {
	w, err := WindowFor(t)
	if err != nil {
		return time.Time{}, err
	}
	return reference.Add(w).UTC(), nil
}

// ReferenceTime is the instant the reporting window runs from: the causal
// link time once established, the detection time otherwise.
func ReferenceTime(inc *database.SeriousIncident) time.Time {
	if inc.CausalLinkEstablishedAt != nil {
		return *inc.CausalLinkEstablishedAt
	}
	return inc.DetectedAt
}

// StatusFor classifies the time remaining against the full window
func StatusFor(remaining, window time.Duration) Status {
	if remaining <= 0 {
		return StatusOverdue
	}
	if window <= 0 {
		return StatusUrgent
	}
	fraction := float64(remaining) / float64(window)
	switch {
	case fraction <= UrgentFraction:
		return StatusUrgent
	case fraction <= ApproachingFraction:
		return StatusApproaching
	default:
		return StatusOnTrack
	}
}

// Timeline is a point-in-time view of a reporting deadline
type Timeline struct {
	Deadline      time.Time     `json:"deadline"`
	Window        time.Duration `json:"-"`
	WindowDays    float64       `json:"window_days"`
	DaysRemaining float64       `json:"days_remaining"`
	Status        Status        `json:"status"`
	EvaluatedAt   time.Time     `json:"evaluated_at"`
}

// Evaluate derives the timeline of deadline at now for an incident of type t
func Evaluate(t database.IncidentType, deadline, now time.Time) (Timeline, error) {
	w, err := WindowFor(t)
	if err != nil {
		return Timeline{}, err
	}
	remaining := deadline.Sub(now)
	return Timeline{
		Deadline:      deadline.UTC(),
		Window:        w,
		WindowDays:    w.Hours() / 24,
		DaysRemaining: remaining.Hours() / 24,
		Status:        StatusFor(remaining, w),
		EvaluatedAt:   now.UTC(),
	}, nil
}
