package routing

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"agenthub/internal/domain"
)

type stubProvider struct {
	text string
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.CompletionResponse{Text: s.text}, nil
}

func (s *stubProvider) Healthy(ctx context.Context) error { return nil }

func decider(p domain.CompletionProvider) *LLMDecider {
	return NewLLMDecider(LLMDeciderConfig{
		Provider: p,
		Logger:   slog.New(slog.DiscardHandler),
	})
}

func roster(ids ...string) []domain.Agent {
	out := make([]domain.Agent, len(ids))
	for i, id := range ids {
		out[i] = domain.Agent{ID: id, Name: id, Type: "general", Active: true}
	}
	return out
}

func TestLLMDecideValidDecision(t *testing.T) {
	d := decider(&stubProvider{text: `{"decision":"single_agent","selected_agent_id":"helper","confidence":0.85,"reasoning":"clear technical question","intent_category":"technical","alternative_agent_ids":["backup"]}`})

	got := d.Decide(context.Background(), "my server is down", roster("helper", "backup"), nil)
	if got.Decision != domain.DecisionSingleAgent {
		t.Fatalf("expected single_agent, got %s", got.Decision)
	}
	if got.Selected == nil || got.Selected.AgentID != "helper" {
		t.Fatalf("expected helper selected, got %+v", got.Selected)
	}
	if got.Confidence != 0.85 {
		t.Fatalf("expected confidence 0.85, got %f", got.Confidence)
	}
	if got.Intent.Category != domain.CategoryTechnical {
		t.Fatalf("expected technical intent, got %s", got.Intent.Category)
	}
	if len(got.Alternatives) != 1 || got.Alternatives[0].AgentID != "backup" {
		t.Fatalf("expected backup alternative, got %+v", got.Alternatives)
	}
}

func TestLLMDecideStripsCodeFences(t *testing.T) {
	d := decider(&stubProvider{text: "```json\n{\"decision\":\"single_agent\",\"selected_agent_id\":\"a\",\"confidence\":0.7,\"reasoning\":\"ok\",\"intent_category\":\"general\"}\n```"})

	got := d.Decide(context.Background(), "hi", roster("a"), nil)
	if got.Decision != domain.DecisionSingleAgent || got.Selected == nil || got.Selected.AgentID != "a" {
		t.Fatalf("fenced JSON should parse, got %+v", got)
	}
}

func TestLLMDecideUnrecognizedDecision(t *testing.T) {
	d := decider(&stubProvider{text: `{"decision":"multi_agent","selected_agent_id":"a","confidence":0.9,"reasoning":"x","intent_category":"general"}`})

	got := d.Decide(context.Background(), "hi", roster("a"), nil)
	if got.Decision != domain.DecisionNoSuitable {
		t.Fatalf("expected no_suitable_agent, got %s", got.Decision)
	}
	if got.Reasoning != "model returned an unrecognized decision" {
		t.Fatalf("unexpected reasoning: %q", got.Reasoning)
	}
}

func TestLLMDecideOutOfRosterSelection(t *testing.T) {
	d := decider(&stubProvider{text: `{"decision":"single_agent","selected_agent_id":"ghost","confidence":0.9,"reasoning":"x","intent_category":"general"}`})

	got := d.Decide(context.Background(), "hi", roster("a", "b"), nil)
	if got.Decision != domain.DecisionNoSuitable {
		t.Fatalf("expected no_suitable_agent, got %s", got.Decision)
	}
	if got.Selected != nil {
		t.Fatalf("out-of-roster selection must be discarded, got %+v", got.Selected)
	}
	if got.Reasoning != "model selected an agent outside the roster" {
		t.Fatalf("unexpected reasoning: %q", got.Reasoning)
	}
}

func TestLLMDecideClampsConfidence(t *testing.T) {
	d := decider(&stubProvider{text: `{"decision":"single_agent","selected_agent_id":"a","confidence":3.7,"reasoning":"x","intent_category":"general"}`})

	got := d.Decide(context.Background(), "hi", roster("a"), nil)
	if got.Confidence != 1.0 {
		t.Fatalf("expected confidence clamped to 1.0, got %f", got.Confidence)
	}
}

func TestLLMDecideInvalidCategoryDefaultsGeneral(t *testing.T) {
	d := decider(&stubProvider{text: `{"decision":"single_agent","selected_agent_id":"a","confidence":0.6,"reasoning":"x","intent_category":"astrology"}`})

	got := d.Decide(context.Background(), "hi", roster("a"), nil)
	if got.Intent.Category != domain.CategoryGeneral {
		t.Fatalf("expected general intent, got %s", got.Intent.Category)
	}
}

func TestLLMDecideProviderErrorFallsBack(t *testing.T) {
	d := decider(&stubProvider{err: errors.New("connection refused")})

	pool := []domain.Agent{
		{ID: "seldom", UsageCount: 2},
		{ID: "workhorse", UsageCount: 90},
	}
	got := d.Decide(context.Background(), "hi", pool, nil)
	if got.Decision != domain.DecisionSingleAgent {
		t.Fatalf("expected fallback single_agent, got %s", got.Decision)
	}
	if got.Selected == nil || got.Selected.AgentID != "workhorse" {
		t.Fatalf("fallback should pick the most used agent, got %+v", got.Selected)
	}
	if got.Confidence != 0.4 {
		t.Fatalf("expected fallback confidence 0.4, got %f", got.Confidence)
	}
	if got.Reasoning != "fallback decision due to classification error" {
		t.Fatalf("unexpected reasoning: %q", got.Reasoning)
	}
	if got.Intent.Category != domain.CategoryGeneral || got.Intent.Confidence != 0.5 {
		t.Fatalf("fallback intent should be neutral, got %+v", got.Intent)
	}
}

func TestLLMDecideFallbackEmptyRoster(t *testing.T) {
	d := decider(&stubProvider{err: errors.New("boom")})

	got := d.Decide(context.Background(), "hi", nil, nil)
	if got.Decision != domain.DecisionNoSuitable {
		t.Fatalf("expected no_suitable_agent, got %s", got.Decision)
	}
	if got.Confidence != 0.0 {
		t.Fatalf("expected confidence 0.0, got %f", got.Confidence)
	}
}

func TestLLMDecideGarbageOutputFallsBack(t *testing.T) {
	d := decider(&stubProvider{text: "sorry, I cannot help with that"})

	got := d.Decide(context.Background(), "hi", roster("a"), nil)
	if got.Decision != domain.DecisionSingleAgent || got.Selected == nil || got.Selected.AgentID != "a" {
		t.Fatalf("unparsable output should fall back to the roster head, got %+v", got)
	}
}

func TestExtractDecisionJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{`Here you go: {"a":{"b":2}} hope that helps`, `{"a":{"b":2}}`, true},
		{"```\n{\"a\":1}\n```", `{"a":1}`, true},
		{`{"s":"brace } inside"}`, `{"s":"brace } inside"}`, true},
		{"no json here", "", false},
		{`{"unterminated":`, "", false},
	}
	for _, tc := range cases {
		got, ok := extractDecisionJSON(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("extractDecisionJSON(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
