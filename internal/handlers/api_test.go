package handlers

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/akmatori/article73/internal/api"
	"github.com/akmatori/article73/internal/authorities"
	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/deadline"
	"github.com/akmatori/article73/internal/lifecycle"
	"github.com/akmatori/article73/internal/services"
	"github.com/akmatori/article73/internal/testhelpers"
)

const testDirectory = `
authorities:
  - {member_state: DE, country: Germany, name: Bundesnetzagentur, contact: ki-meldungen@authority.example}
  - {member_state: FR, country: France, name: CNIL, contact: ""}
`

type apiHarness struct {
	t   *testing.T
	mux *http.ServeMux
	svc *services.IncidentService
	now time.Time
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	h := &apiHarness{t: t, now: testhelpers.BaseTime}

	directory, err := authorities.Parse([]byte(testDirectory))
	if err != nil {
		t.Fatalf("Parse directory failed: %v", err)
	}
	lc := lifecycle.New(func() time.Time { return h.now }, nil)
	h.svc = services.NewIncidentService(database.NewIncidentStore(testhelpers.NewTestDB(t)), lc)

	h.mux = http.NewServeMux()
	NewAPIHandler(h.svc, services.NewSuggestionService(services.SuggestionConfig{}), directory).SetupRoutes(h.mux)
	return h
}

func (h *apiHarness) do(method, path string, body interface{}) *testhelpers.HTTPTestContext {
	h.t.Helper()
	ctx := testhelpers.NewHTTPTestContext(h.t, method, path, nil)
	if body != nil {
		ctx.WithJSONBody(body)
	}
	return ctx.Execute(h.mux)
}

func (h *apiHarness) create(memberState string) *database.SeriousIncident {
	h.t.Helper()
	var inc database.SeriousIncident
	h.do(http.MethodPost, "/api/incidents", api.CreateIncidentRequest{
		Title:        "Triage model under-prioritised cardiac patients",
		Description:  "Emergency triage scores were systematically low",
		AISystemID:   "triage-v2",
		AISystemName: "TriageNet",
		MemberState:  memberState,
	}).AssertStatus(http.StatusCreated).DecodeJSON(&inc)
	return &inc
}

func (h *apiHarness) classify(id string, t database.IncidentType) *database.SeriousIncident {
	h.t.Helper()
	var inc database.SeriousIncident
	h.do(http.MethodPost, "/api/incidents/"+id+"/classify", api.ClassifyIncidentRequest{
		Type:     string(t),
		Severity: string(database.SeverityCritical),
	}).AssertStatus(http.StatusOK).DecodeJSON(&inc)
	return &inc
}

func TestAPI_CreateAndGetIncident(t *testing.T) {
	h := newAPIHarness(t)

	created := h.create("de")
	if created.ID == "" {
		t.Fatal("expected generated incident ID")
	}
	if created.Status != database.IncidentStatusDetected {
		t.Errorf("status = %s, want %s", created.Status, database.IncidentStatusDetected)
	}
	if created.DetectionMethod != database.DetectionMethodManual {
		t.Errorf("detection method = %s, want manual", created.DetectionMethod)
	}
	if created.MemberState != "DE" {
		t.Errorf("member state = %q, want DE", created.MemberState)
	}

	var got database.SeriousIncident
	h.do(http.MethodGet, "/api/incidents/"+created.ID, nil).
		AssertStatus(http.StatusOK).
		DecodeJSON(&got)
	if got.ID != created.ID || got.Title != created.Title {
		t.Errorf("unexpected incident: %+v", got)
	}

	h.do(http.MethodGet, "/api/incidents/does-not-exist", nil).
		AssertStatus(http.StatusNotFound).
		AssertErrorCode("not_found")
}

func TestAPI_CreateIncident_RejectsBadInput(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed json", `{"title":`, http.StatusBadRequest},
		{"unknown field", `{"title":"t","colour":"red"}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"missing fields", `{"title":"t"}`, http.StatusUnprocessableEntity},
		{"bad detection method", `{"title":"t","description":"d","ai_system_id":"a","ai_system_name":"n","member_state":"DE","detection_method":"psychic"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/incidents", bytes.NewBufferString(tt.body)).
				Execute(h.mux).
				AssertStatus(tt.wantStatus)
			if tt.wantStatus == http.StatusUnprocessableEntity {
				ctx.AssertErrorCode("validation_error")
			}
		})
	}
}

func TestAPI_ClassifyComputesDeadline(t *testing.T) {
	h := newAPIHarness(t)
	inc := h.create("DE")

	classified := h.classify(inc.ID, database.IncidentTypeCriticalInfrastructureDisruption)
	if classified.Status != database.IncidentStatusClassified {
		t.Errorf("status = %s, want classified", classified.Status)
	}
	want := inc.DetectedAt.Add(2 * deadline.Day)
	if classified.ReportingDeadline == nil || !classified.ReportingDeadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", classified.ReportingDeadline, want)
	}

	// child lists serialize as empty arrays, never null
	other := h.create("DE")
	h.do(http.MethodPost, "/api/incidents/"+other.ID+"/classify", api.ClassifyIncidentRequest{
		Type: string(database.IncidentTypeDeathOrSeriousHarm), Severity: "high",
	}).AssertStatus(http.StatusOK).
		AssertBodyContains(`"remediation_actions":[]`).
		AssertBodyContains(`"reports":[]`).
		AssertBodyContains(`"investigation_notes":[]`)

	// classification happens once
	h.do(http.MethodPost, "/api/incidents/"+inc.ID+"/classify", api.ClassifyIncidentRequest{
		Type: string(database.IncidentTypeDeathOrSeriousHarm), Severity: "high",
	}).AssertStatus(http.StatusConflict).AssertErrorCode("invalid_state")
}

func TestAPI_ClassifyRejectsUnknownValues(t *testing.T) {
	h := newAPIHarness(t)
	inc := h.create("DE")

	tests := []struct {
		name     string
		req      api.ClassifyIncidentRequest
		wantCode string
	}{
		{"unknown type", api.ClassifyIncidentRequest{Type: "minor_glitch", Severity: "high"}, "invalid_classification"},
		{"unknown severity", api.ClassifyIncidentRequest{Type: string(database.IncidentTypeDeathOrSeriousHarm), Severity: "apocalyptic"}, "validation_error"},
		{"missing type", api.ClassifyIncidentRequest{Severity: "high"}, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.do(http.MethodPost, "/api/incidents/"+inc.ID+"/classify", tt.req).
				AssertStatus(http.StatusUnprocessableEntity).
				AssertErrorCode(tt.wantCode)
		})
	}
}

func TestAPI_FullLifecycle(t *testing.T) {
	h := newAPIHarness(t)
	inc := h.create("DE")
	id := inc.ID
	h.classify(id, database.IncidentTypeDeathOrSeriousHarm)

	h.now = h.now.Add(deadline.Day)
	established := true
	var linked database.SeriousIncident
	h.do(http.MethodPost, "/api/incidents/"+id+"/causal-link", api.CausalLinkRequest{
		Established: &established,
		Evidence:    "Model output traced to the misclassification",
	}).AssertStatus(http.StatusOK).DecodeJSON(&linked)
	if linked.CausalLink != database.CausalLinkEstablished {
		t.Errorf("causal link = %s, want established", linked.CausalLink)
	}
	if want := h.now.Add(10 * deadline.Day); !linked.ReportingDeadline.Equal(want) {
		t.Errorf("deadline = %v, want restarted window %v", linked.ReportingDeadline, want)
	}

	var added api.AddRemediationActionResponse
	h.do(http.MethodPost, "/api/incidents/"+id+"/remediation-actions", api.AddRemediationActionRequest{
		Description: "Roll back to previous triage model",
	}).AssertStatus(http.StatusCreated).DecodeJSON(&added)
	if added.Action == nil || added.Action.Status != database.RemediationStatusSuggested {
		t.Fatalf("unexpected action: %+v", added.Action)
	}

	// resolving with an open action is refused
	h.do(http.MethodPost, "/api/incidents/"+id+"/resolve", api.ResolveIncidentRequest{}).
		AssertStatus(http.StatusConflict).
		AssertErrorCode("invalid_state")

	h.do(http.MethodPut, "/api/incidents/"+id+"/remediation-actions/"+added.Action.ID, api.UpdateRemediationStatusRequest{
		Status: string(database.RemediationStatusCompleted),
	}).AssertStatus(http.StatusOK)

	h.do(http.MethodPost, "/api/incidents/"+id+"/reports", api.SubmitReportRequest{
		Type: "initial", Content: "Initial notification of a serious incident",
	}).AssertStatus(http.StatusCreated)

	var notified database.SeriousIncident
	h.do(http.MethodPost, "/api/incidents/"+id+"/authority-notification", api.NotifyAuthorityRequest{
		Content: "Serious incident notification under Article 73",
	}).AssertStatus(http.StatusOK).DecodeJSON(&notified)
	if notified.AuthorityNotification == nil || notified.AuthorityNotification.Contact != "ki-meldungen@authority.example" {
		t.Errorf("expected directory contact, got %+v", notified.AuthorityNotification)
	}

	var assessed database.SeriousIncident
	h.do(http.MethodPost, "/api/incidents/"+id+"/risk-assessment", api.RiskAssessmentRequest{
		Content:           "Risk contained after rollback",
		CorrectiveActions: []string{"Pin model version", "Add canary evaluation"},
	}).AssertStatus(http.StatusOK).DecodeJSON(&assessed)
	if assessed.RiskAssessment == nil || len(assessed.RiskAssessment.CorrectiveActions) != 2 {
		t.Errorf("expected corrective actions to be stored, got %+v", assessed.RiskAssessment)
	}

	// closing without a complete report is refused
	h.do(http.MethodPost, "/api/incidents/"+id+"/close", nil).
		AssertStatus(http.StatusConflict)

	h.now = h.now.Add(3 * deadline.Day)
	h.do(http.MethodPost, "/api/incidents/"+id+"/reports", api.SubmitReportRequest{
		Type: "complete", Content: "Final report",
	}).AssertStatus(http.StatusCreated)

	var resolved database.SeriousIncident
	h.do(http.MethodPost, "/api/incidents/"+id+"/resolve", api.ResolveIncidentRequest{
		ResolutionNotes: "Model replaced",
	}).AssertStatus(http.StatusOK).DecodeJSON(&resolved)
	if resolved.Status != database.IncidentStatusResolved {
		t.Errorf("status = %s, want resolved", resolved.Status)
	}
	if n := len(resolved.InvestigationNotes); n == 0 || resolved.InvestigationNotes[n-1].Note != "Resolved: Model replaced" {
		t.Errorf("expected the resolution at the end of the investigation trail, got %+v", resolved.InvestigationNotes)
	}

	var tl lifecycle.Timeline
	h.do(http.MethodGet, "/api/incidents/"+id+"/timeline", nil).
		AssertStatus(http.StatusOK).
		DecodeJSON(&tl)
	if !tl.ReportingCompliant || !tl.CompleteReportSubmitted || !tl.InitialReportSubmitted {
		t.Errorf("unexpected timeline: %+v", tl)
	}

	var closed database.SeriousIncident
	h.do(http.MethodPost, "/api/incidents/"+id+"/close", nil).
		AssertStatus(http.StatusOK).
		DecodeJSON(&closed)
	if closed.Status != database.IncidentStatusClosed || closed.ClosedAt == nil {
		t.Errorf("expected closed incident, got status %s", closed.Status)
	}

	// closed incidents accept no further changes
	h.do(http.MethodPost, "/api/incidents/"+id+"/risk-assessment", api.RiskAssessmentRequest{Content: "late"}).
		AssertStatus(http.StatusConflict)
}

func TestAPI_OperationErrors(t *testing.T) {
	h := newAPIHarness(t)
	unclassified := h.create("DE")
	classified := h.create("DE")
	h.classify(classified.ID, database.IncidentTypeFundamentalRightsInfringement)

	yes := true
	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"causal link before classification", http.MethodPost, "/api/incidents/" + unclassified.ID + "/causal-link",
			api.CausalLinkRequest{Established: &yes}, http.StatusConflict, "invalid_state"},
		{"causal link without decision", http.MethodPost, "/api/incidents/" + classified.ID + "/causal-link",
			map[string]string{"evidence": "x"}, http.StatusUnprocessableEntity, "validation_error"},
		{"timeline before classification", http.MethodGet, "/api/incidents/" + unclassified.ID + "/timeline",
			nil, http.StatusConflict, "invalid_state"},
		{"unknown remediation action", http.MethodPut, "/api/incidents/" + classified.ID + "/remediation-actions/nope",
			api.UpdateRemediationStatusRequest{Status: "approved"}, http.StatusNotFound, "not_found"},
		{"bad report type", http.MethodPost, "/api/incidents/" + classified.ID + "/reports",
			api.SubmitReportRequest{Type: "interim", Content: "x"}, http.StatusUnprocessableEntity, "validation_error"},
		{"report on missing incident", http.MethodPost, "/api/incidents/missing/reports",
			api.SubmitReportRequest{Type: "initial", Content: "x"}, http.StatusNotFound, "not_found"},
		{"blank corrective action", http.MethodPost, "/api/incidents/" + classified.ID + "/risk-assessment",
			api.RiskAssessmentRequest{Content: "x", CorrectiveActions: []string{"retrain", " "}}, http.StatusUnprocessableEntity, "validation_error"},
		{"close without reports", http.MethodPost, "/api/incidents/" + classified.ID + "/close",
			nil, http.StatusConflict, "invalid_state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.do(tt.method, tt.path, tt.body).
				AssertStatus(tt.wantStatus).
				AssertErrorCode(tt.wantCode)
		})
	}
}

func TestAPI_RemediationStatusCannotMoveBack(t *testing.T) {
	h := newAPIHarness(t)
	inc := h.create("DE")
	h.classify(inc.ID, database.IncidentTypePropertyOrEnvironmentHarm)

	var added api.AddRemediationActionResponse
	h.do(http.MethodPost, "/api/incidents/"+inc.ID+"/remediation-actions", api.AddRemediationActionRequest{
		Description: "Disable automated dispatch", AISuggested: true,
	}).AssertStatus(http.StatusCreated).DecodeJSON(&added)
	if !added.Action.AISuggested {
		t.Error("expected action to be marked AI suggested")
	}

	path := "/api/incidents/" + inc.ID + "/remediation-actions/" + added.Action.ID
	h.do(http.MethodPut, path, api.UpdateRemediationStatusRequest{Status: "in_progress"}).
		AssertStatus(http.StatusOK)
	h.do(http.MethodPut, path, api.UpdateRemediationStatusRequest{Status: "approved"}).
		AssertStatus(http.StatusConflict).
		AssertErrorCode("invalid_state")
	h.do(http.MethodPut, path, api.UpdateRemediationStatusRequest{Status: "paused"}).
		AssertStatus(http.StatusUnprocessableEntity)
}

func TestAPI_NotifyAuthorityContact(t *testing.T) {
	h := newAPIHarness(t)
	inc := h.create("FR")
	h.classify(inc.ID, database.IncidentTypeFundamentalRightsInfringement)
	path := "/api/incidents/" + inc.ID + "/authority-notification"

	// FR has no contact in the directory
	h.do(http.MethodPost, path, api.NotifyAuthorityRequest{Content: "notification"}).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertErrorCode("validation_error")

	var notified database.SeriousIncident
	h.do(http.MethodPost, path, api.NotifyAuthorityRequest{
		Contact: "ia@authority.example",
		Content: "notification",
	}).AssertStatus(http.StatusOK).DecodeJSON(&notified)
	if notified.AuthorityNotification.Contact != "ia@authority.example" {
		t.Errorf("contact = %q", notified.AuthorityNotification.Contact)
	}
	if notified.Status != database.IncidentStatusClassified {
		t.Errorf("notification must not advance status, got %s", notified.Status)
	}

	h.do(http.MethodPost, "/api/incidents/missing/authority-notification", api.NotifyAuthorityRequest{Content: "x"}).
		AssertStatus(http.StatusNotFound)
}

func TestAPI_ListIncidents(t *testing.T) {
	h := newAPIHarness(t)
	for _, ms := range []string{"DE", "DE", "FR"} {
		h.create(ms)
		h.now = h.now.Add(time.Minute)
	}
	classified := h.create("FR")
	h.classify(classified.ID, database.IncidentTypeDeathOrSeriousHarm)

	tests := []struct {
		name      string
		query     string
		wantTotal int64
		wantItems int
		wantPages int
	}{
		{"all", "", 4, 4, 1},
		{"member state is case insensitive", "?member_state=de", 2, 2, 1},
		{"by status", "?status=classified", 1, 1, 1},
		{"by type", "?type=death_or_serious_harm", 1, 1, 1},
		{"paginated", "?per_page=3&page=2", 4, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp struct {
				Data       []api.IncidentListItem `json:"data"`
				Pagination api.PaginationMeta     `json:"pagination"`
			}
			h.do(http.MethodGet, "/api/incidents"+tt.query, nil).
				AssertStatus(http.StatusOK).
				DecodeJSON(&resp)
			if resp.Pagination.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", resp.Pagination.Total, tt.wantTotal)
			}
			if len(resp.Data) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(resp.Data), tt.wantItems)
			}
			if resp.Pagination.TotalPages != tt.wantPages {
				t.Errorf("total pages = %d, want %d", resp.Pagination.TotalPages, tt.wantPages)
			}
		})
	}
}

func TestAPI_TimelineStatus(t *testing.T) {
	h := newAPIHarness(t)
	inc := h.create("DE")
	h.classify(inc.ID, database.IncidentTypeDeathOrSeriousHarm)

	tests := []struct {
		elapsed time.Duration
		want    deadline.Status
	}{
		{2 * deadline.Day, deadline.StatusOnTrack},
		{6 * deadline.Day, deadline.StatusApproaching},
		{8 * deadline.Day, deadline.StatusUrgent},
		{10 * deadline.Day, deadline.StatusOverdue},
	}

	for _, tt := range tests {
		h.now = inc.DetectedAt.Add(tt.elapsed)
		var tl lifecycle.Timeline
		h.do(http.MethodGet, "/api/incidents/"+inc.ID+"/timeline", nil).
			AssertStatus(http.StatusOK).
			DecodeJSON(&tl)
		if tl.Status != tt.want {
			t.Errorf("after %v: status = %s, want %s", tt.elapsed, tl.Status, tt.want)
		}
	}
}

func TestAPI_Suggestions(t *testing.T) {
	h := newAPIHarness(t)
	inc := h.create("DE")

	var classification api.ClassificationSuggestionResponse
	h.do(http.MethodGet, "/api/incidents/"+inc.ID+"/suggestions/classification", nil).
		AssertStatus(http.StatusOK).
		DecodeJSON(&classification)
	if classification.Suggestion.Severity != database.SeverityMedium {
		t.Errorf("fallback severity = %s, want medium", classification.Suggestion.Severity)
	}
	if classification.WindowDays != 0 {
		t.Errorf("window days without a type = %d, want 0", classification.WindowDays)
	}

	var remediation api.RemediationSuggestionResponse
	h.do(http.MethodGet, "/api/incidents/"+inc.ID+"/suggestions/remediation", nil).
		AssertStatus(http.StatusOK).
		DecodeJSON(&remediation)
	if len(remediation.Actions) != len(services.FallbackRemediation()) {
		t.Errorf("expected fallback remediation, got %v", remediation.Actions)
	}

	h.do(http.MethodGet, "/api/incidents/missing/suggestions/remediation", nil).
		AssertStatus(http.StatusNotFound)

	// suggestions never change the incident
	var got database.SeriousIncident
	h.do(http.MethodGet, "/api/incidents/"+inc.ID, nil).DecodeJSON(&got)
	if got.Status != database.IncidentStatusDetected || len(got.RemediationActions) != 0 {
		t.Errorf("incident changed by suggestion: %+v", got)
	}
}

func TestAPI_ListAuthorities(t *testing.T) {
	h := newAPIHarness(t)

	var list []authorities.Authority
	h.do(http.MethodGet, "/api/authorities", nil).
		AssertStatus(http.StatusOK).
		DecodeJSON(&list)
	if len(list) != 2 || list[0].MemberState != "DE" || list[1].MemberState != "FR" {
		t.Errorf("unexpected authorities: %+v", list)
	}
}
