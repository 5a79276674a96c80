package drift

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"clawmem/internal/logging"
)

// =============================================================================
// MODEL-BACKED CLASSIFIER
// =============================================================================

// LLMClassifier sends both entry bodies and tag contexts to a local chat
// endpoint and parses a strict JSON verdict. Parse failures degrade to
// UNRELATED at confidence 0.3; transport failures surface as Result.Err so
// the drift job can fall back to the heuristic classifier.
type LLMClassifier struct {
	Endpoint    string
	Model       string
	Temperature float64
	Timeout     time.Duration

	client *http.Client
}

// NewLLMClassifier creates a classifier client for the given endpoint.
func NewLLMClassifier(endpoint, model string, temperature float64, timeout time.Duration) *LLMClassifier {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &LLMClassifier{
		Endpoint:    strings.TrimRight(endpoint, "/"),
		Model:       model,
		Temperature: temperature,
		Timeout:     timeout,
		client:      &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

const classifierSystemPrompt = "You are a memory relationship classifier. " +
	"Always respond with valid JSON containing: relationship (REINFORCES/REFINES/SUPERSEDES/UNRELATED), " +
	"confidence (0.0-1.0), and reasoning (string)."

// Classify implements Classifier. Timeouts retry at most once.
func (l *LLMClassifier) Classify(ctx context.Context, newer, older *SemanticEntry) Result {
	prompt := buildClassifierPrompt(newer, older)

	var content string
	attempt := func() error {
		var err error
		content, err = l.call(ctx, prompt)
		return err
	}

	// One retry on timeout-style failures; everything else is permanent.
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 1), ctx)
	err := backoff.Retry(func() error {
		err := attempt()
		if err == nil {
			return nil
		}
		if isTimeout(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil {
		logging.DriftWarn("classifier transport error: %v", err)
		return Result{Err: err}
	}
	return parseClassifierResponse(content)
}

func (l *LLMClassifier) call(ctx context.Context, prompt string) (string, error) {
	payload := chatRequest{
		Model: l.Model,
		Messages: []chatMessage{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Stream:  false,
		Options: chatOptions{Temperature: l.Temperature},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.Endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(raw))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(out.Message.Content), nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func buildClassifierPrompt(newer, older *SemanticEntry) string {
	return fmt.Sprintf(`You are a memory relationship classifier.

## Categories
- REINFORCES: Second memory supports/validates first
- REFINES: Second adds detail without contradiction
- SUPERSEDES: Second contradicts/replaces first
- UNRELATED: No meaningful relationship

## Examples

REINFORCES:
A: "I prefer quiet work environments"
B: "Noise-canceling headphones help me focus"
-> {"relationship": "REINFORCES", "confidence": 0.85, "reasoning": "Both express preference for focused work"}

SUPERSEDES:
A: "Using Python 3.9"
B: "Migrated to Python 3.11, 3.9 deprecated"
-> {"relationship": "SUPERSEDES", "confidence": 0.95, "reasoning": "Migration makes old version obsolete"}

## Task

Memory A (%s):
"%s"

Memory B (%s):
"%s"

Output JSON:
{"relationship": "CATEGORY", "confidence": 0.0-1.0, "reasoning": "brief explanation"}`,
		formatEntryContext(older), strings.TrimSpace(older.Content),
		formatEntryContext(newer), strings.TrimSpace(newer.Content))
}

func formatEntryContext(e *SemanticEntry) string {
	var parts []string
	if t, ok := e.Meta["time"]; ok {
		parts = append(parts, "time: "+t)
	}
	if imp, ok := e.Meta["importance"]; ok {
		parts = append(parts, "importance: "+imp)
	}
	if len(e.Tags) > 0 {
		parts = append(parts, "tags: "+strings.Join(e.Tags, ", "))
	}
	if len(parts) == 0 {
		return "no metadata"
	}
	return strings.Join(parts, ", ")
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*?\}`)

type verdictPayload struct {
	Relationship string  `json:"relationship"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// parseClassifierResponse extracts the first JSON object from the model
// output. Anything unparseable defaults to UNRELATED at confidence 0.3.
func parseClassifierResponse(content string) Result {
	if m := jsonObjectRe.FindString(content); m != "" {
		content = m
	}
	var payload verdictPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return Result{
			Relation:   RelationUnrelated,
			Confidence: 0.3,
			Reasoning:  fmt.Sprintf("parse error, fallback to UNRELATED: %v", err),
		}
	}
	relation, _ := ParseRelation(payload.Relationship)
	confidence := math.Max(0, math.Min(1, payload.Confidence))
	reasoning := payload.Reasoning
	if reasoning == "" {
		reasoning = "no reasoning provided"
	}
	return Result{Relation: relation, Confidence: confidence, Reasoning: reasoning}
}
