package routing

import (
	"fmt"
	"log/slog"

	"agenthub/internal/domain"
)

// Thresholds are the hand-tuned cut points of the decision state machine.
// They are configuration defaults, not constants: callers may override them.
type Thresholds struct {
	Strong        float64 // best score at or above: confident dispatch
	Moderate      float64 // best score at or above: lower-confidence dispatch
	Weak          float64 // best score at or above: attempt anyway at fixed confidence
	MinAgentScore float64 // best score below: escalate
	EscalateBelow float64 // intent confidence below: escalate
}

// DefaultThresholds returns the reference cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Strong:        0.5,
		Moderate:      0.3,
		Weak:          0.1,
		MinAgentScore: 0.05,
		EscalateBelow: 0.1,
	}
}

const attemptAnywayConfidence = 0.3

// Engine is the routing decision state machine. Every outcome is terminal
// for the turn being routed.
type Engine struct {
	thresholds      Thresholds
	maxAlternatives int
	logger          *slog.Logger
}

type EngineConfig struct {
	Thresholds      Thresholds
	MaxAlternatives int // alternatives kept alongside the selected match (default 5)
	Logger          *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	zero := Thresholds{}
	if cfg.Thresholds == zero {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		thresholds:      cfg.Thresholds,
		maxAlternatives: cfg.MaxAlternatives,
		logger:          cfg.Logger,
	}
}

// Decide consumes the classifier output and the ranked candidates and emits
// the routing decision. The escalation check runs first: it takes priority
// over any score-based acceptance.
func (e *Engine) Decide(intent domain.IntentAnalysis, matches []domain.CandidateMatch) domain.RoutingResult {
	result := domain.RoutingResult{Intent: intent}

	if len(matches) == 0 {
		result.Decision = domain.DecisionNoSuitable
		result.Confidence = 0.0
		result.Reasoning = "no agents available"
		return e.logged(result)
	}

	best := matches[0]

	switch {
	case intent.Confidence < e.thresholds.EscalateBelow || best.Score < e.thresholds.MinAgentScore:
		result.Decision = domain.DecisionEscalateHuman
		result.Confidence = intent.Confidence
		result.Reasoning = fmt.Sprintf("signal too weak (intent %.2f, best score %.2f), escalating to a human operator",
			intent.Confidence, best.Score)
		result.Alternatives = topAlternatives(matches, "", e.maxAlternatives)

	case best.Score >= e.thresholds.Strong:
		result.Decision = domain.DecisionSingleAgent
		result.Selected = &best
		result.Confidence = clamp(intent.Confidence * best.Score)
		result.Reasoning = fmt.Sprintf("strong match: %s", best.Reasoning)
		result.Alternatives = topAlternatives(matches, best.AgentID, e.maxAlternatives)

	case best.Score >= e.thresholds.Moderate:
		result.Decision = domain.DecisionSingleAgent
		result.Selected = &best
		result.Confidence = clamp(intent.Confidence * best.Score)
		result.Reasoning = fmt.Sprintf("moderate match: %s", best.Reasoning)
		result.Alternatives = topAlternatives(matches, best.AgentID, e.maxAlternatives)

	case best.Score >= e.thresholds.Weak:
		// A weak match still beats no help at all.
		result.Decision = domain.DecisionSingleAgent
		result.Selected = &best
		result.Confidence = attemptAnywayConfidence
		result.Reasoning = fmt.Sprintf("weak match, attempting anyway: %s", best.Reasoning)
		result.Alternatives = topAlternatives(matches, best.AgentID, e.maxAlternatives)

	default:
		result.Decision = domain.DecisionNoSuitable
		result.Confidence = 0.1
		result.Reasoning = "no agent cleared the minimum score"
		result.Alternatives = topAlternatives(matches, "", e.maxAlternatives)
	}

	return e.logged(result)
}

func (e *Engine) logged(r domain.RoutingResult) domain.RoutingResult {
	selected := ""
	if r.Selected != nil {
		selected = r.Selected.AgentID
	}
	e.logger.Info("routing decision",
		"decision", r.Decision,
		"intent", r.Intent.Category,
		"confidence", r.Confidence,
		"agent", selected,
	)
	return r
}

// topAlternatives returns up to max candidates excluding the selected one.
func topAlternatives(matches []domain.CandidateMatch, selectedID string, max int) []domain.CandidateMatch {
	var alts []domain.CandidateMatch
	for _, m := range matches {
		if m.AgentID == selectedID {
			continue
		}
		alts = append(alts, m)
		if len(alts) >= max {
			break
		}
	}
	return alts
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}
