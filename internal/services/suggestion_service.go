package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/akmatori/article73/internal/cache"
	"github.com/akmatori/article73/internal/database"
)

// DefaultLLMBaseURL is the OpenAI-compatible endpoint used when none is configured
const DefaultLLMBaseURL = "https://api.openai.com/v1"

// DefaultLLMModel is a fast, cheap model suited to short structured answers
const DefaultLLMModel = "gpt-4o-mini"

// fallbackRemediation is offered whenever no model answer is available
var fallbackRemediation = []string{
	"Conduct root cause analysis",
	"Implement immediate containment measures",
	"Review and update risk management system (Article 9)",
	"Update technical documentation",
	"Notify affected users if required",
}

// FallbackRemediation returns the default remediation suggestions
func FallbackRemediation() []string {
	return append([]string(nil), fallbackRemediation...)
}

// fallbackClassificationRationale marks a suggestion that carries no model opinion
const fallbackClassificationRationale = "AI classification unavailable, manual review required"

// SuggestionConfig configures the chat completion endpoint
type SuggestionConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// IsConfigured returns true if an API key is set
func (c SuggestionConfig) IsConfigured() bool {
	return c.APIKey != ""
}

// SuggestionService proposes classifications and remediation actions with an
// OpenAI-compatible chat completion API. Answers are suggestions only; when
// the model is unavailable it degrades to fixed fallbacks.
type SuggestionService struct {
	config     SuggestionConfig
	httpClient *http.Client

	// model answers per incident revision
	classifications *cache.Cache[database.ClassificationSuggestion]
	remediations    *cache.Cache[[]string]
}

const (
	suggestionCacheTTL   = 15 * time.Minute
	maxCachedSuggestions = 500
)

// NewSuggestionService creates a new suggestion service
func NewSuggestionService(cfg SuggestionConfig) *SuggestionService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLLMBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SuggestionService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		classifications: cache.New[database.ClassificationSuggestion](suggestionCacheTTL, maxCachedSuggestions),
		remediations:    cache.New[[]string](suggestionCacheTTL, maxCachedSuggestions),
	}
}

// suggestionKey identifies an incident revision; any update invalidates
// earlier answers
func suggestionKey(inc *database.SeriousIncident) string {
	return fmt.Sprintf("%s:%d", inc.ID, inc.UpdatedAt.UnixNano())
}

// OpenAI API request/response structures
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

const classificationPrompt = `You are an expert on EU AI Act Article 73 compliance. Classify the incident according to Article 3, point (49).

Serious incident categories:
(a) Death of a person, or serious harm to a person's health
(b) Serious and irreversible disruption of the management or operation of critical infrastructure
(c) Infringement of obligations under Union law intended to protect fundamental rights
(d) Serious harm to property or the environment

Return JSON with:
- "severity": "critical", "high", "medium" or "low"
- "incident_type": "a", "b", "c", "d", or null if not serious
- "reasoning": brief explanation

Return only valid JSON, no markdown formatting.`

const remediationPrompt = `You are an expert on EU AI Act compliance and incident remediation. Suggest remediation actions for the incident.

Provide a JSON array of strings. Each action should be specific and actionable.
Return only a valid JSON array, no markdown formatting.`

var incidentTypeLetters = map[string]database.IncidentType{
	"a": database.IncidentTypeDeathOrSeriousHarm,
	"b": database.IncidentTypeCriticalInfrastructureDisruption,
	"c": database.IncidentTypeFundamentalRightsInfringement,
	"d": database.IncidentTypePropertyOrEnvironmentHarm,
}

type classificationAnswer struct {
	Severity     string  `json:"severity"`
	IncidentType *string `json:"incident_type"`
	Reasoning    string  `json:"reasoning"`
}

// SuggestClassification proposes a type and severity for the incident.
// It never fails because of the model: any model problem yields a medium
// severity suggestion without a type.
func (s *SuggestionService) SuggestClassification(ctx context.Context, inc *database.SeriousIncident) (database.ClassificationSuggestion, error) {
	fallback := database.ClassificationSuggestion{
		Severity:  database.SeverityMedium,
		Rationale: fallbackClassificationRationale,
	}
	if !s.config.IsConfigured() {
		return fallback, nil
	}
	key := suggestionKey(inc)
	if cached, ok := s.classifications.Get(key); ok {
		return cached, nil
	}

	userPrompt := fmt.Sprintf("Incident Title: %s\nIncident Description: %s\nAI System: %s\nMember State: %s",
		inc.Title, truncateForPrompt(inc.Description, 4000), inc.AISystemName, inc.MemberState)

	content, err := s.complete(ctx, classificationPrompt, userPrompt, 300, 0.1)
	if err != nil {
		log.Printf("Classification suggestion failed, using fallback: %v", err)
		return fallback, nil
	}

	var answer classificationAnswer
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &answer); err != nil {
		log.Printf("Failed to parse classification suggestion, using fallback: %v", err)
		return fallback, nil
	}

	suggestion := database.ClassificationSuggestion{
		Severity:  database.Severity(strings.ToLower(strings.TrimSpace(answer.Severity))),
		Rationale: strings.TrimSpace(answer.Reasoning),
	}
	if !suggestion.Severity.IsValid() {
		suggestion.Severity = database.SeverityMedium
	}
	if answer.IncidentType != nil {
		answerType := strings.ToLower(strings.Trim(strings.TrimSpace(*answer.IncidentType), "()"))
		if t, ok := incidentTypeLetters[answerType]; ok {
			suggestion.Type = t
		} else if t := database.IncidentType(answerType); t.IsValid() {
			suggestion.Type = t
		}
	}
	s.classifications.Set(key, suggestion)
	return suggestion, nil
}

// SuggestRemediation proposes an ordered list of remediation actions.
// Model problems yield the fallback list.
func (s *SuggestionService) SuggestRemediation(ctx context.Context, inc *database.SeriousIncident) ([]string, error) {
	if !s.config.IsConfigured() {
		return FallbackRemediation(), nil
	}
	key := suggestionKey(inc)
	if cached, ok := s.remediations.Get(key); ok {
		return append([]string(nil), cached...), nil
	}

	severity, incidentType := "unknown", "unknown"
	if inc.Severity != nil {
		severity = string(*inc.Severity)
	}
	if inc.Type != nil {
		incidentType = string(*inc.Type)
	}
	userPrompt := fmt.Sprintf("Incident: %s\nDescription: %s\nSeverity: %s\nType: %s\nAI System: %s",
		inc.Title, truncateForPrompt(inc.Description, 4000), severity, incidentType, inc.AISystemName)

	content, err := s.complete(ctx, remediationPrompt, userPrompt, 600, 0.2)
	if err != nil {
		log.Printf("Remediation suggestion failed, using fallback: %v", err)
		return FallbackRemediation(), nil
	}

	var actions []string
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &actions); err != nil {
		log.Printf("Failed to parse remediation suggestion, using fallback: %v", err)
		return FallbackRemediation(), nil
	}

	out := make([]string, 0, len(actions))
	for _, a := range actions {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return FallbackRemediation(), nil
	}
	s.remediations.Set(key, append([]string(nil), out...))
	return out, nil
}

func (s *SuggestionService) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	reqBody := openAIRequest{
		Model: s.config.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return "", fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if openAIResp.Error != nil {
		return "", fmt.Errorf("API error: %s", openAIResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if len(openAIResp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return strings.TrimSpace(openAIResp.Choices[0].Message.Content), nil
}

// stripCodeFence removes a markdown code fence the model may wrap JSON in
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// truncateForPrompt truncates a string to fit in the prompt
func truncateForPrompt(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
