package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const goalParsingPrompt = `You are a procurement intent parser for an autonomous shopping system.

Given a natural language procurement goal, extract structured data as JSON with keys:
eventType (hackathon, party, skiing, office, conference, wedding), attendees (number),
budget (dollars), deadline (YYYY-MM-DD or empty), categories (array of standard
category names), confidence (0-1).

Standard categories: snacks, badges, tech_accessories, prizes, decorations,
outerwear, accessories, base_layer, office_supplies.

Return JSON only, no explanation.`

// minConfidence below which a model reading is ignored.
const minConfidence = 0.5

var ErrInterpreterNotConfigured = errors.New("goal interpreter not configured")

// LLMInterpreter calls an OpenAI-compatible chat completions endpoint.
type LLMInterpreter struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

func NewLLMInterpreter(url, apiKey, model string, timeout time.Duration, client *http.Client) *LLMInterpreter {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &LLMInterpreter{url: strings.TrimSpace(url), apiKey: apiKey, model: model, client: client}
}

type llmGoal struct {
	EventType  string   `json:"eventType"`
	Attendees  int      `json:"attendees"`
	Budget     float64  `json:"budget"`
	Deadline   string   `json:"deadline"`
	Categories []string `json:"categories"`
	Confidence float64  `json:"confidence"`
}

func (l *LLMInterpreter) Interpret(ctx context.Context, goal string) (Intent, error) {
	if l == nil || l.url == "" || l.apiKey == "" {
		return Intent{}, ErrInterpreterNotConfigured
	}

	payload := map[string]any{
		"model": l.model,
		"messages": []map[string]string{
			{"role": "system", "content": goalParsingPrompt},
			{"role": "user", "content": goal},
		},
		"response_format": map[string]string{"type": "json_object"},
		"temperature":     0.2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Intent{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return Intent{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return Intent{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Intent{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Intent{}, fmt.Errorf("llm api error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return Intent{}, err
	}
	if len(result.Choices) == 0 {
		return Intent{}, errors.New("empty llm response")
	}

	content := strings.TrimSpace(result.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var parsed llmGoal
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		return Intent{}, fmt.Errorf("decode llm goal: %w", err)
	}
	if parsed.Confidence < minConfidence {
		return Intent{}, fmt.Errorf("llm confidence %.2f below %.2f", parsed.Confidence, minConfidence)
	}

	intent := Intent{
		EventType:  strings.ToLower(strings.TrimSpace(parsed.EventType)),
		Attendees:  parsed.Attendees,
		Budget:     parsed.Budget,
		Mentioned:  parsed.Categories,
		Confidence: parsed.Confidence,
	}
	if parsed.Deadline != "" {
		if d, err := time.Parse(dateLayout, parsed.Deadline); err == nil {
			intent.Deadline = &d
		}
	}
	return intent, nil
}
