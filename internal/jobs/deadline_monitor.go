package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/deadline"
	"github.com/akmatori/article73/internal/lifecycle"
	"github.com/akmatori/article73/internal/notify"
)

// DefaultDeadlineCheckSchedule runs the sweep every five minutes
const DefaultDeadlineCheckSchedule = "@every 5m"

// DeadlineMonitor sweeps open classified incidents and raises an alert each
// time a reporting deadline crosses forward into approaching, urgent or overdue
type DeadlineMonitor struct {
	db       *gorm.DB
	store    *database.IncidentStore
	notifier notify.Notifier
	now      func() time.Time
}

// NewDeadlineMonitor creates a new deadline monitor
func NewDeadlineMonitor(db *gorm.DB, notifier notify.Notifier) *DeadlineMonitor {
	return &DeadlineMonitor{
		db:       db,
		store:    database.NewIncidentStore(db),
		notifier: notifier,
		now:      lifecycle.SystemClock,
	}
}

// CheckDeadlines evaluates every open classified incident and returns the
// number of alerts raised
func (m *DeadlineMonitor) CheckDeadlines(ctx context.Context) (int, error) {
	incidents, _, err := m.store.List(ctx, database.IncidentFilter{OpenOnly: true, ClassifiedOnly: true})
	if err != nil {
		return 0, err
	}

	now := m.now()
	raised := 0
	for i := range incidents {
		if ctx.Err() != nil {
			return raised, ctx.Err()
		}
		ok, err := m.checkIncident(ctx, &incidents[i], now)
		if err != nil {
			log.Printf("Deadline monitor: incident %s: %v", incidents[i].ID, err)
			continue
		}
		if ok {
			raised++
		}
	}
	return raised, nil
}

func (m *DeadlineMonitor) checkIncident(ctx context.Context, inc *database.SeriousIncident, now time.Time) (bool, error) {
	tl, err := lifecycle.TrackTimeline(inc, now)
	if err != nil {
		return false, err
	}
	// a submitted complete report ends the reporting obligation
	if tl.CompleteReportSubmitted {
		return false, nil
	}

	last, err := database.GetTimelineAlert(m.db.WithContext(ctx), inc.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load alert state: %w", err)
	}
	previous := deadline.StatusOnTrack
	if last != nil {
		previous = deadline.Status(last.Status)
	}

	// the deadline moved out (causal link established later), so rearm
	if last != nil && previous.MoreUrgentThan(tl.Status) {
		if err := database.DeleteTimelineAlert(m.db.WithContext(ctx), inc.ID); err != nil {
			return false, fmt.Errorf("failed to reset alert state: %w", err)
		}
		previous = deadline.StatusOnTrack
	}
	if !tl.Status.MoreUrgentThan(previous) {
		return false, nil
	}

	if m.notifier != nil {
		ev := notify.NewTimelineEvent(inc, tl, previous)
		if err := m.notifier.NotifyTimeline(ctx, ev); err != nil {
			return false, fmt.Errorf("failed to deliver %s alert: %w", tl.Status, err)
		}
	}

	err = database.UpsertTimelineAlert(m.db.WithContext(ctx), &database.TimelineAlert{
		IncidentID: inc.ID,
		Status:     string(tl.Status),
		RaisedAt:   now,
	})
	if err != nil {
		return false, fmt.Errorf("failed to record alert state: %w", err)
	}
	log.Printf("Deadline monitor: incident %s reporting deadline is %s (%.2f days remaining)", inc.ID, tl.Status, tl.DaysRemaining)
	return true, nil
}

// Start schedules the sweep on a cron spec and runs until stop is closed
func (m *DeadlineMonitor) Start(schedule string, stop <-chan struct{}) error {
	if schedule == "" {
		schedule = DefaultDeadlineCheckSchedule
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		raised, err := m.CheckDeadlines(context.Background())
		if err != nil {
			log.Printf("Deadline monitor error: %v", err)
		} else if raised > 0 {
			log.Printf("Deadline monitor: raised %d timeline alerts", raised)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid deadline check schedule %q: %w", schedule, err)
	}
	c.Start()
	log.Printf("Deadline monitor started (schedule %s)", schedule)

	go func() {
		<-stop
		<-c.Stop().Done()
		log.Println("Deadline monitor stopped")
	}()
	return nil
}
