package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/lifecycle"
)

// IncidentRepository is the keyed record store the service reads and writes
type IncidentRepository interface {
	Load(ctx context.Context, id string) (*database.SeriousIncident, error)
	Save(ctx context.Context, inc *database.SeriousIncident) error
	List(ctx context.Context, filter database.IncidentFilter) ([]database.SeriousIncident, int64, error)
}

// IncidentService applies lifecycle operations to stored incidents.
// Writers to the same incident are serialized; each operation is
// load, apply, save, and nothing is saved when the operation fails.
type IncidentService struct {
	repo      IncidentRepository
	lifecycle *lifecycle.Lifecycle
	locks     *keyedMutex
}

// NewIncidentService creates a new incident service
func NewIncidentService(repo IncidentRepository, lc *lifecycle.Lifecycle) *IncidentService {
	if lc == nil {
		lc = lifecycle.New(nil, nil)
	}
	return &IncidentService{
		repo:      repo,
		lifecycle: lc,
		locks:     newKeyedMutex(),
	}
}

// Lifecycle exposes the lifecycle the service applies
func (s *IncidentService) Lifecycle() *lifecycle.Lifecycle {
	return s.lifecycle
}

// Create records a new incident
func (s *IncidentService) Create(ctx context.Context, p lifecycle.CreateParams) (*database.SeriousIncident, error) {
	inc, err := s.lifecycle.Create(p)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to save incident: %w", err)
	}
	log.Printf("Created serious incident %s for AI system %s (%s)", inc.ID, inc.AISystemID, inc.DetectionMethod)
	return inc, nil
}

// Get loads an incident by ID
func (s *IncidentService) Get(ctx context.Context, id string) (*database.SeriousIncident, error) {
	return s.repo.Load(ctx, id)
}

// List returns incidents matching filter with the total match count
func (s *IncidentService) List(ctx context.Context, filter database.IncidentFilter) ([]database.SeriousIncident, int64, error) {
	return s.repo.List(ctx, filter)
}

// Classify sets type and severity of an incident
func (s *IncidentService) Classify(ctx context.Context, id string, t database.IncidentType, sev database.Severity, suggestion *database.ClassificationSuggestion) (*database.SeriousIncident, error) {
	return s.mutate(ctx, id, "classify", func(inc *database.SeriousIncident) (*database.SeriousIncident, error) {
		return s.lifecycle.Classify(inc, t, sev, suggestion)
	})
}

// EstablishCausalLink records the causal link determination
func (s *IncidentService) EstablishCausalLink(ctx context.Context, id string, established bool, evidence string) (*database.SeriousIncident, error) {
	return s.mutate(ctx, id, "causal link", func(inc *database.SeriousIncident) (*database.SeriousIncident, error) {
		return s.lifecycle.EstablishCausalLink(inc, established, evidence)
	})
}

// AddRemediationAction appends a remediation action
func (s *IncidentService) AddRemediationAction(ctx context.Context, id, description string, aiSuggested bool) (*database.SeriousIncident, *database.RemediationAction, error) {
	var action *database.RemediationAction
	inc, err := s.mutate(ctx, id, "add remediation action", func(inc *database.SeriousIncident) (*database.SeriousIncident, error) {
		out, a, err := s.lifecycle.AddRemediationAction(inc, description, aiSuggested)
		action = a
		return out, err
	})
	if err != nil {
		return nil, nil, err
	}
	return inc, action, nil
}

// UpdateRemediationStatus advances a remediation action
func (s *IncidentService) UpdateRemediationStatus(ctx context.Context, id, actionID string, status database.RemediationStatus) (*database.SeriousIncident, error) {
	return s.mutate(ctx, id, "update remediation status", func(inc *database.SeriousIncident) (*database.SeriousIncident, error) {
		return s.lifecycle.UpdateRemediationStatus(inc, actionID, status)
	})
}

// SubmitReport appends a report
func (s *IncidentService) SubmitReport(ctx context.Context, id string, t database.ReportType, content string) (*database.SeriousIncident, error) {
	return s.mutate(ctx, id, "submit report", func(inc *database.SeriousIncident) (*database.SeriousIncident, error) {
		return s.lifecycle.SubmitReport(inc, t, content)
	})
}

// NotifyAuthority records the authority notification
func (s *IncidentService) NotifyAuthority(ctx context.Context, id, contact, content string) (*database.SeriousIncident, error) {
	return s.mutate(ctx, id, "notify authority", func(inc *database.SeriousIncident) (*database.SeriousIncident, error) {
		return s.lifecycle.NotifyAuthority(inc, contact, content)
	})
}

// PerformRiskAssessment records the risk assessment and its corrective actions
func (s *IncidentService) PerformRiskAssessment(ctx context.Context, id, content string, correctiveActions []string) (*database.SeriousIncident, error) {
	return s.mutate(ctx, id, "risk assessment", func(inc *database.SeriousIncident) (*database.SeriousIncident, error) {
		return s.lifecycle.PerformRiskAssessment(inc, content, correctiveActions)
	})
}

// Resolve marks the incident resolved
func (s *IncidentService) Resolve(ctx context.Context, id, notes string) (*database.SeriousIncident, error) {
	return s.mutate(ctx, id, "resolve", func(inc *database.SeriousIncident) (*database.SeriousIncident, error) {
		return s.lifecycle.Resolve(inc, notes)
	})
}

// Close closes the incident
func (s *IncidentService) Close(ctx context.Context, id string) (*database.SeriousIncident, error) {
	return s.mutate(ctx, id, "close", func(inc *database.SeriousIncident) (*database.SeriousIncident, error) {
		return s.lifecycle.Close(inc)
	})
}

// TrackTimeline evaluates the reporting timeline of an incident now.
// It takes no lock.
func (s *IncidentService) TrackTimeline(ctx context.Context, id string) (lifecycle.Timeline, error) {
	inc, err := s.repo.Load(ctx, id)
	if err != nil {
		return lifecycle.Timeline{}, err
	}
	return s.lifecycle.TrackTimeline(inc, s.lifecycle.Now())
}

func (s *IncidentService) mutate(ctx context.Context, id, op string, apply func(*database.SeriousIncident) (*database.SeriousIncident, error)) (*database.SeriousIncident, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	inc, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := apply(inc)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, out); err != nil {
		return nil, fmt.Errorf("failed to save incident %s: %w", id, err)
	}
	log.Printf("Incident %s: %s applied, status %s", id, op, out.Status)
	return out, nil
}

// keyedMutex hands out one mutex per key and frees it when nobody holds it
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns the matching unlock func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
