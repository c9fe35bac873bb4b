package deadline

import (
	"errors"
	"testing"
	"time"

	"github.com/akmatori/article73/internal/database"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestWindowFor(t *testing.T) {
	tests := []struct {
		incidentType database.IncidentType
		want         time.Duration
	}{
		{database.IncidentTypeCriticalInfrastructureDisruption, 2 * Day},
		{database.IncidentTypeDeathOrSeriousHarm, 10 * Day},
		{database.IncidentTypeFundamentalRightsInfringement, 15 * Day},
		{database.IncidentTypePropertyOrEnvironmentHarm, 15 * Day},
	}

	for _, tt := range tests {
		t.Run(string(tt.incidentType), func(t *testing.T) {
			got, err := WindowFor(tt.incidentType)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("WindowFor(%s) = %v, want %v", tt.incidentType, got, tt.want)
			}
		})
	}
}

func TestWindowFor_Invalid(t *testing.T) {
	for _, it := range []database.IncidentType{"", "x", "critical"} {
		_, err := WindowFor(it)
		if !errors.Is(err, ErrInvalidClassification) {
			t.Errorf("WindowFor(%q) error = %v, want ErrInvalidClassification", it, err)
		}
	}
}

func TestComputeDeadline(t *testing.T) {
	for _, it := range database.ValidIncidentTypes() {
		w, _ := WindowFor(it)
		got, err := ComputeDeadline(it, t0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Equal(t0.Add(w)) {
			t.Errorf("ComputeDeadline(%s) = %v, want %v", it, got, t0.Add(w))
		}
	}

	if _, err := ComputeDeadline("bogus", t0); !errors.Is(err, ErrInvalidClassification) {
		t.Errorf("expected ErrInvalidClassification, got %v", err)
	}
}

func TestReferenceTime(t *testing.T) {
	inc := &database.SeriousIncident{DetectedAt: t0}
	if got := ReferenceTime(inc); !got.Equal(t0) {
		t.Errorf("expected detection time, got %v", got)
	}

	linked := t0.Add(Day)
	inc.CausalLinkEstablishedAt = &linked
	if got := ReferenceTime(inc); !got.Equal(linked) {
		t.Errorf("expected link time, got %v", got)
	}
}

func TestStatusFor(t *testing.T) {
	window := 10 * Day
	tests := []struct {
		name      string
		remaining time.Duration
		want      Status
	}{
		{"full window", window, StatusOnTrack},
		{"just over half", 5*Day + time.Minute, StatusOnTrack},
		{"exactly half", 5 * Day, StatusApproaching},
		{"just over quarter", window/4 + time.Minute, StatusApproaching},
		{"exactly quarter", window / 4, StatusUrgent},
		{"one second left", time.Second, StatusUrgent},
		{"deadline reached", 0, StatusOverdue},
		{"past deadline", -Day, StatusOverdue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.remaining, window); got != tt.want {
				t.Errorf("StatusFor(%v) = %s, want %s", tt.remaining, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Monotonic(t *testing.T) {
	it := database.IncidentTypeDeathOrSeriousHarm
	dl, _ := ComputeDeadline(it, t0)

	prev, err := Evaluate(it, dl, t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for now := t0.Add(6 * time.Hour); now.Before(t0.Add(12 * Day)); now = now.Add(6 * time.Hour) {
		cur, err := Evaluate(it, dl, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cur.DaysRemaining >= prev.DaysRemaining {
			t.Fatalf("days remaining did not decrease at %v: %f -> %f", now, prev.DaysRemaining, cur.DaysRemaining)
		}
		if prev.Status.MoreUrgentThan(cur.Status) {
			t.Fatalf("status moved backwards at %v: %s -> %s", now, prev.Status, cur.Status)
		}
		prev = cur
	}
	if prev.Status != StatusOverdue {
		t.Errorf("expected overdue at end, got %s", prev.Status)
	}
}

func TestEvaluate_Fields(t *testing.T) {
	it := database.IncidentTypeCriticalInfrastructureDisruption
	dl := t0.Add(2 * Day)
	tl, err := Evaluate(it, dl, t0.Add(36*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tl.WindowDays != 2 {
		t.Errorf("expected window of 2 days, got %f", tl.WindowDays)
	}
	if tl.DaysRemaining != 0.5 {
		t.Errorf("expected 0.5 days remaining, got %f", tl.DaysRemaining)
	}
	if tl.Status != StatusUrgent {
		t.Errorf("expected urgent, got %s", tl.Status)
	}
}

func TestStatus_Rank(t *testing.T) {
	order := []Status{StatusOnTrack, StatusApproaching, StatusUrgent, StatusOverdue}
	for i := 1; i < len(order); i++ {
		if !order[i].MoreUrgentThan(order[i-1]) {
			t.Errorf("%s should be more urgent than %s", order[i], order[i-1])
		}
	}
	if Status("nope").Rank() != -1 {
		t.Error("unknown status should rank -1")
	}
}
