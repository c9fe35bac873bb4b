// Package testhelpers provides reusable testing utilities for the
// incident service.
//
// This package contains:
// - HTTP test helpers (requests, recorders, JSON decoding)
// - An in-memory SQLite database with the schema migrated
// - A mock alert adapter and a normalized alert builder
// - A serious incident builder (builders.go)
// - Timing helpers
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/akmatori/article73/internal/alerts"
	"github.com/akmatori/article73/internal/database"
)

// ========================================
// HTTP Test Helpers
// ========================================

// HTTPTestContext holds components for HTTP handler testing
type HTTPTestContext struct {
	T        *testing.T
	Recorder *httptest.ResponseRecorder
	Request  *http.Request
}

// NewHTTPTestContext creates a new HTTP test context
func NewHTTPTestContext(t *testing.T, method, path string, body io.Reader) *HTTPTestContext {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	return &HTTPTestContext{
		T:        t,
		Recorder: httptest.NewRecorder(),
		Request:  req,
	}
}

// WithHeader adds a header to the request
func (ctx *HTTPTestContext) WithHeader(key, value string) *HTTPTestContext {
	ctx.Request.Header.Set(key, value)
	return ctx
}

// WithJSONBody sets JSON body on the request
func (ctx *HTTPTestContext) WithJSONBody(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		ctx.T.Fatalf("failed to marshal JSON body: %v", err)
	}
	header := ctx.Request.Header
	ctx.Request = httptest.NewRequest(ctx.Request.Method, ctx.Request.URL.String(), bytes.NewReader(body))
	ctx.Request.Header = header
	ctx.Request.Header.Set("Content-Type", "application/json")
	return ctx
}

// WithBearerToken adds Authorization Bearer header
func (ctx *HTTPTestContext) WithBearerToken(token string) *HTTPTestContext {
	return ctx.WithHeader("Authorization", "Bearer "+token)
}

// Execute runs the handler and returns the response
func (ctx *HTTPTestContext) Execute(handler http.Handler) *HTTPTestContext {
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	return ctx
}

// ExecuteFunc runs the handler func and returns the response
func (ctx *HTTPTestContext) ExecuteFunc(handler http.HandlerFunc) *HTTPTestContext {
	handler(ctx.Recorder, ctx.Request)
	return ctx
}

// AssertStatus checks the response status code
func (ctx *HTTPTestContext) AssertStatus(expected int) *HTTPTestContext {
	ctx.T.Helper()
	if ctx.Recorder.Code != expected {
		ctx.T.Errorf("expected status %d, got %d. Body: %s", expected, ctx.Recorder.Code, ctx.Recorder.Body.String())
	}
	return ctx
}

// AssertBodyContains checks if response body contains substring
func (ctx *HTTPTestContext) AssertBodyContains(substr string) *HTTPTestContext {
	ctx.T.Helper()
	body := ctx.Recorder.Body.String()
	if !strings.Contains(body, substr) {
		ctx.T.Errorf("expected body to contain %q, got: %s", substr, body)
	}
	return ctx
}

// AssertErrorCode checks the machine-readable code of an error response
func (ctx *HTTPTestContext) AssertErrorCode(expected string) *HTTPTestContext {
	ctx.T.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(ctx.Recorder.Body.Bytes(), &resp); err != nil {
		ctx.T.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Code != expected {
		ctx.T.Errorf("expected error code %q, got %q. Body: %s", expected, resp.Code, ctx.Recorder.Body.String())
	}
	return ctx
}

// AssertHeader checks response header value
func (ctx *HTTPTestContext) AssertHeader(key, expected string) *HTTPTestContext {
	ctx.T.Helper()
	got := ctx.Recorder.Header().Get(key)
	if got != expected {
		ctx.T.Errorf("expected header %s=%q, got %q", key, expected, got)
	}
	return ctx
}

// DecodeJSON decodes response body as JSON
func (ctx *HTTPTestContext) DecodeJSON(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	if err := json.NewDecoder(ctx.Recorder.Body).Decode(v); err != nil {
		ctx.T.Fatalf("failed to decode JSON response: %v", err)
	}
	return ctx
}

// ========================================
// Database
// ========================================

// NewTestDB opens an in-memory SQLite database with the schema migrated.
// The pool is pinned to one connection so every query sees the same memory database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// ========================================
// Mock Alert Adapter
// ========================================

// MockAlertAdapter implements alerts.AlertAdapter for testing
type MockAlertAdapter struct {
	SourceType        string
	ParsedAlerts      []alerts.NormalizedAlert
	ParseError        error
	ValidateSecretErr error
}

// NewMockAlertAdapter creates a new mock adapter
func NewMockAlertAdapter(sourceType string) *MockAlertAdapter {
	return &MockAlertAdapter{SourceType: sourceType}
}

// GetSourceType returns the source type
func (m *MockAlertAdapter) GetSourceType() string {
	return m.SourceType
}

// ParsePayload returns configured alerts or error
func (m *MockAlertAdapter) ParsePayload(body []byte) ([]alerts.NormalizedAlert, error) {
	if m.ParseError != nil {
		return nil, m.ParseError
	}
	return m.ParsedAlerts, nil
}

// ValidateWebhookSecret returns configured error
func (m *MockAlertAdapter) ValidateWebhookSecret(r *http.Request, secret string) error {
	return m.ValidateSecretErr
}

// WithAlerts sets alerts to return from ParsePayload
func (m *MockAlertAdapter) WithAlerts(a ...alerts.NormalizedAlert) *MockAlertAdapter {
	m.ParsedAlerts = a
	return m
}

// WithParseError sets error to return from ParsePayload
func (m *MockAlertAdapter) WithParseError(err error) *MockAlertAdapter {
	m.ParseError = err
	return m
}

// WithValidationError sets error to return from ValidateWebhookSecret
func (m *MockAlertAdapter) WithValidationError(err error) *MockAlertAdapter {
	m.ValidateSecretErr = err
	return m
}

// ========================================
// Normalized Alert Builder
// ========================================

// NormalizedAlertBuilder builds alerts.NormalizedAlert values
type NormalizedAlertBuilder struct {
	alert alerts.NormalizedAlert
}

// NewAlertBuilder creates a firing safety alert builder with defaults
func NewAlertBuilder() *NormalizedAlertBuilder {
	return &NormalizedAlertBuilder{
		alert: alerts.NormalizedAlert{
			AlertName:    "SafetyThresholdBreached",
			Status:       alerts.AlertStatusFiring,
			Severity:     "critical",
			Summary:      "Safety threshold breached",
			Description:  "Model output crossed the safety threshold",
			RiskID:       "safety-001",
			AISystemID:   "test-system",
			AISystemName: "Test System",
			MemberState:  "DE",
			Labels:       map[string]string{"risk_id": "safety-001"},
			Annotations:  map[string]string{},
			Fingerprint:  "test-fingerprint",
		},
	}
}

// WithRiskID sets the risk ID label
func (b *NormalizedAlertBuilder) WithRiskID(riskID string) *NormalizedAlertBuilder {
	b.alert.RiskID = riskID
	b.alert.Labels["risk_id"] = riskID
	return b
}

// WithStatus sets the alert status
func (b *NormalizedAlertBuilder) WithStatus(status alerts.AlertStatus) *NormalizedAlertBuilder {
	b.alert.Status = status
	return b
}

// WithSummary sets the summary annotation
func (b *NormalizedAlertBuilder) WithSummary(summary string) *NormalizedAlertBuilder {
	b.alert.Summary = summary
	return b
}

// WithAISystem sets the AI system labels
func (b *NormalizedAlertBuilder) WithAISystem(id, name string) *NormalizedAlertBuilder {
	b.alert.AISystemID = id
	b.alert.AISystemName = name
	return b
}

// WithLabel adds a label
func (b *NormalizedAlertBuilder) WithLabel(key, value string) *NormalizedAlertBuilder {
	b.alert.Labels[key] = value
	return b
}

// Build returns the constructed alert
func (b *NormalizedAlertBuilder) Build() alerts.NormalizedAlert {
	return b.alert
}

// ========================================
// Timing Helpers
// ========================================

// MustCompleteWithin fails the test if the function takes longer than the timeout
func MustCompleteWithin(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		t.Fatalf("function did not complete within %v", timeout)
	}
}
