// Package notify defines timeline alert events and fans them out to the
// configured delivery channels.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/deadline"
	"github.com/akmatori/article73/internal/lifecycle"
)

// TimelineEvent is raised when an incident's reporting deadline crosses into
// a more urgent status
type TimelineEvent struct {
	IncidentID         string                `json:"incident_id"`
	Title              string                `json:"title"`
	AISystemName       string                `json:"ai_system_name"`
	MemberState        string                `json:"member_state"`
	Type               database.IncidentType `json:"type"`
	Severity           database.Severity     `json:"severity,omitempty"`
	Previous           deadline.Status       `json:"previous_status,omitempty"`
	Status             deadline.Status       `json:"status"`
	Deadline           time.Time             `json:"deadline"`
	DaysRemaining      float64               `json:"days_remaining"`
	ReportingCompliant bool                  `json:"reporting_compliant"`
	RaisedAt           time.Time             `json:"raised_at"`
}

// NewTimelineEvent builds the event for inc whose timeline moved from previous to tl.Status
func NewTimelineEvent(inc *database.SeriousIncident, tl lifecycle.Timeline, previous deadline.Status) TimelineEvent {
	ev := TimelineEvent{
		IncidentID:         inc.ID,
		Title:              inc.Title,
		AISystemName:       inc.AISystemName,
		MemberState:        inc.MemberState,
		Previous:           previous,
		Status:             tl.Status,
		Deadline:           tl.Deadline,
		DaysRemaining:      tl.DaysRemaining,
		ReportingCompliant: tl.ReportingCompliant,
		RaisedAt:           tl.EvaluatedAt,
	}
	if inc.Type != nil {
		ev.Type = *inc.Type
	}
	if inc.Severity != nil {
		ev.Severity = *inc.Severity
	}
	return ev
}

// Notifier delivers timeline events
type Notifier interface {
	NotifyTimeline(ctx context.Context, ev TimelineEvent) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, ev TimelineEvent) error

// NotifyTimeline calls f
func (f NotifierFunc) NotifyTimeline(ctx context.Context, ev TimelineEvent) error {
	return f(ctx, ev)
}

// Multi delivers each event to every notifier, even when some fail
type Multi []Notifier

// NotifyTimeline delivers ev to all notifiers and joins their errors
func (m Multi) NotifyTimeline(ctx context.Context, ev TimelineEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyTimeline(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
