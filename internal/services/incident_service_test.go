package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/lifecycle"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*IncidentService, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	return NewIncidentService(database.NewIncidentStore(db), lifecycle.New(nil, nil)), db
}

func createParams() lifecycle.CreateParams {
	return lifecycle.CreateParams{
		Title:           "Credit model denied protected group",
		Description:     "Systematic denial pattern found in audit",
		AISystemID:      "credit-ai",
		AISystemName:    "CreditScorer",
		MemberState:     "FR",
		DetectionMethod: database.DetectionMethodManual,
	}
}

func TestIncidentService_FullLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inc, err := svc.Create(ctx, createParams())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	inc, err = svc.Classify(ctx, inc.ID, database.IncidentTypeFundamentalRightsInfringement, database.SeverityHigh, nil)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if _, err := svc.EstablishCausalLink(ctx, inc.ID, true, "audit trail"); err != nil {
		t.Fatalf("EstablishCausalLink failed: %v", err)
	}
	_, action, err := svc.AddRemediationAction(ctx, inc.ID, "Suspend automated denials", false)
	if err != nil {
		t.Fatalf("AddRemediationAction failed: %v", err)
	}
	if _, err := svc.UpdateRemediationStatus(ctx, inc.ID, action.ID, database.RemediationStatusCompleted); err != nil {
		t.Fatalf("UpdateRemediationStatus failed: %v", err)
	}
	if _, err := svc.SubmitReport(ctx, inc.ID, database.ReportTypeComplete, "full report"); err != nil {
		t.Fatalf("SubmitReport failed: %v", err)
	}
	if _, err := svc.NotifyAuthority(ctx, inc.ID, "dgccrf@example.fr", "notification"); err != nil {
		t.Fatalf("NotifyAuthority failed: %v", err)
	}
	if _, err := svc.PerformRiskAssessment(ctx, inc.ID, "bias mitigated", []string{"retrain scoring model"}); err != nil {
		t.Fatalf("PerformRiskAssessment failed: %v", err)
	}
	if _, err := svc.Resolve(ctx, inc.ID, "model retrained"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	closed, err := svc.Close(ctx, inc.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed.Status != database.IncidentStatusClosed {
		t.Errorf("expected closed, got %s", closed.Status)
	}

	stored, err := svc.Get(ctx, inc.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != database.IncidentStatusClosed || stored.CausalLink != database.CausalLinkEstablished {
		t.Errorf("unexpected stored incident: status=%s link=%s", stored.Status, stored.CausalLink)
	}
	if len(stored.RemediationActions) != 1 || stored.RemediationActions[0].Status != database.RemediationStatusCompleted {
		t.Errorf("unexpected stored actions: %+v", stored.RemediationActions)
	}

	tl, err := svc.TrackTimeline(ctx, inc.ID)
	if err != nil {
		t.Fatalf("TrackTimeline failed: %v", err)
	}
	if !tl.ReportingCompliant || !tl.CompleteReportSubmitted {
		t.Errorf("expected compliant timeline, got %+v", tl)
	}
}

func TestIncidentService_FailedOperationDoesNotSave(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inc, err := svc.Create(ctx, createParams())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Close(ctx, inc.ID); !errors.Is(err, lifecycle.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	stored, err := svc.Get(ctx, inc.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != database.IncidentStatusDetected {
		t.Errorf("expected untouched status detected, got %s", stored.Status)
	}
}

func TestIncidentService_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Classify(context.Background(), "missing", database.IncidentTypeDeathOrSeriousHarm, database.SeverityLow, nil)
	if !errors.Is(err, database.ErrIncidentNotFound) {
		t.Errorf("expected ErrIncidentNotFound, got %v", err)
	}
	if _, err := svc.TrackTimeline(context.Background(), "missing"); !errors.Is(err, database.ErrIncidentNotFound) {
		t.Errorf("expected ErrIncidentNotFound, got %v", err)
	}
}

func TestIncidentService_ConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inc, err := svc.Create(ctx, createParams())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Classify(ctx, inc.ID, database.IncidentTypeDeathOrSeriousHarm, database.SeverityCritical, nil); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, _, err := svc.AddRemediationAction(ctx, inc.ID, fmt.Sprintf("action %d", i), false); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("AddRemediationAction failed: %v", err)
	}

	stored, err := svc.Get(ctx, inc.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(stored.RemediationActions) != writers {
		t.Errorf("expected %d actions, got %d", writers, len(stored.RemediationActions))
	}
	if svc.locks.size() != 0 {
		t.Errorf("expected lock table to be empty, got %d entries", svc.locks.size())
	}
}

func TestIncidentService_List(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, createParams()); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	incidents, total, err := svc.List(ctx, database.IncidentFilter{Status: database.IncidentStatusDetected})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 || len(incidents) != 3 {
		t.Errorf("expected 3 incidents, got %d (total %d)", len(incidents), total)
	}
}

// failingRepo fails every save
type failingRepo struct {
	inc *database.SeriousIncident
}

func (r *failingRepo) Load(ctx context.Context, id string) (*database.SeriousIncident, error) {
	return r.inc.Clone(), nil
}

func (r *failingRepo) Save(ctx context.Context, inc *database.SeriousIncident) error {
	return errors.New("disk full")
}

func (r *failingRepo) List(ctx context.Context, filter database.IncidentFilter) ([]database.SeriousIncident, int64, error) {
	return nil, 0, nil
}

func TestIncidentService_SaveErrorIsReturned(t *testing.T) {
	repo := &failingRepo{inc: &database.SeriousIncident{
		ID:         "inc-1",
		DetectedAt: time.Now().UTC(),
		Status:     database.IncidentStatusDetected,
		CausalLink: database.CausalLinkUnknown,
	}}
	svc := NewIncidentService(repo, nil)

	_, err := svc.Classify(context.Background(), "inc-1", database.IncidentTypeDeathOrSeriousHarm, database.SeverityHigh, nil)
	if err == nil {
		t.Fatal("expected save error")
	}
	if repo.inc.Type != nil {
		t.Error("stored incident should not change when save fails")
	}
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")

	acquired := make(chan struct{})
	go func() {
		u := k.Lock("a")
		close(acquired)
		u()
	}()

	// a different key is never blocked
	k.Lock("b")()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same key should block")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock was not released")
	}
}
