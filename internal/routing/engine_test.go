package routing

import (
	"testing"

	"agenthub/internal/domain"
)

func candidates(scores ...float64) []domain.CandidateMatch {
	out := make([]domain.CandidateMatch, len(scores))
	for i, s := range scores {
		out[i] = domain.CandidateMatch{AgentID: string(rune('a' + i)), Score: s}
	}
	return out
}

func TestDecideEmptyMatches(t *testing.T) {
	e := NewEngine(EngineConfig{})

	got := e.Decide(domain.IntentAnalysis{Category: domain.CategoryGeneral, Confidence: 0.9}, nil)
	if got.Decision != domain.DecisionNoSuitable {
		t.Fatalf("expected no_suitable_agent, got %s", got.Decision)
	}
	if got.Confidence != 0.0 {
		t.Fatalf("expected confidence 0.0, got %f", got.Confidence)
	}
	if got.Selected != nil {
		t.Fatalf("no agent must be selected")
	}
}

func TestDecideEscalationTakesPriority(t *testing.T) {
	e := NewEngine(EngineConfig{})

	// Excellent agent score, but the intent signal is below the escalation
	// threshold: escalation must win.
	intent := domain.IntentAnalysis{Category: domain.CategoryGeneral, Confidence: 0.05}
	got := e.Decide(intent, candidates(0.95))
	if got.Decision != domain.DecisionEscalateHuman {
		t.Fatalf("expected escalate_human, got %s", got.Decision)
	}
	if got.Confidence != 0.05 {
		t.Fatalf("escalation keeps the intent confidence, got %f", got.Confidence)
	}
}

func TestDecideEscalatesOnBestScoreBelowFloor(t *testing.T) {
	e := NewEngine(EngineConfig{})

	intent := domain.IntentAnalysis{Category: domain.CategoryGeneral, Confidence: 0.9}
	got := e.Decide(intent, candidates(0.04))
	if got.Decision != domain.DecisionEscalateHuman {
		t.Fatalf("expected escalate_human for best score below floor, got %s", got.Decision)
	}
}

func TestDecideStrongMatch(t *testing.T) {
	e := NewEngine(EngineConfig{})

	intent := domain.IntentAnalysis{Category: domain.CategoryTechnical, Confidence: 0.8}
	got := e.Decide(intent, candidates(0.6, 0.3))
	if got.Decision != domain.DecisionSingleAgent {
		t.Fatalf("expected single_agent, got %s", got.Decision)
	}
	if got.Selected == nil || got.Selected.AgentID != "a" {
		t.Fatalf("expected best candidate selected, got %+v", got.Selected)
	}
	want := 0.8 * 0.6
	if !approx(got.Confidence, want) {
		t.Fatalf("expected confidence %f, got %f", want, got.Confidence)
	}
}

func TestDecideWeakMatchFixedConfidence(t *testing.T) {
	e := NewEngine(EngineConfig{})

	intent := domain.IntentAnalysis{Category: domain.CategoryGeneral, Confidence: 0.9}
	got := e.Decide(intent, candidates(0.15))
	if got.Decision != domain.DecisionSingleAgent {
		t.Fatalf("weak match should still dispatch, got %s", got.Decision)
	}
	if got.Confidence != 0.3 {
		t.Fatalf("weak match confidence is fixed at 0.3, got %f", got.Confidence)
	}
}

func TestDecideBelowWeakIsNoMatch(t *testing.T) {
	e := NewEngine(EngineConfig{})

	intent := domain.IntentAnalysis{Category: domain.CategoryGeneral, Confidence: 0.9}
	got := e.Decide(intent, candidates(0.07))
	if got.Decision != domain.DecisionNoSuitable {
		t.Fatalf("expected no_suitable_agent, got %s", got.Decision)
	}
	if got.Confidence != 0.1 {
		t.Fatalf("expected confidence 0.1, got %f", got.Confidence)
	}
	if got.Selected != nil {
		t.Fatalf("no agent must be selected below the weak threshold")
	}
}

func TestDecideAlternativesExcludeSelected(t *testing.T) {
	e := NewEngine(EngineConfig{})

	intent := domain.IntentAnalysis{Category: domain.CategoryGeneral, Confidence: 0.9}
	got := e.Decide(intent, candidates(0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2))

	if len(got.Alternatives) != 5 {
		t.Fatalf("expected 5 alternatives, got %d", len(got.Alternatives))
	}
	for _, alt := range got.Alternatives {
		if alt.AgentID == got.Selected.AgentID {
			t.Fatalf("selected agent leaked into alternatives")
		}
	}
}

func TestDecideCustomThresholds(t *testing.T) {
	e := NewEngine(EngineConfig{
		Thresholds: Thresholds{Strong: 0.9, Moderate: 0.8, Weak: 0.7, MinAgentScore: 0.6, EscalateBelow: 0.0},
	})

	intent := domain.IntentAnalysis{Category: domain.CategoryGeneral, Confidence: 0.9}
	got := e.Decide(intent, candidates(0.5))
	if got.Decision != domain.DecisionEscalateHuman {
		t.Fatalf("raised floor should escalate, got %s", got.Decision)
	}
}
