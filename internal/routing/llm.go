package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"agenthub/internal/domain"
)

const (
	fallbackConfidence = 0.4
	fallbackReasoning  = "fallback decision due to classification error"
	deciderMaxTokens   = 512
	deciderTemperature = 0.1
	deciderMaxTurns    = 10
)

// LLMDecider is the LLM-assisted routing strategy: it sends the message, the
// agent roster, and the recent turns to the completion provider and parses a
// structured decision out of the reply. Any failure degrades to a
// deterministic fallback; Decide never returns an error.
type LLMDecider struct {
	provider domain.CompletionProvider
	timeout  time.Duration
	logger   *slog.Logger
}

type LLMDeciderConfig struct {
	Provider domain.CompletionProvider
	Timeout  time.Duration // per-call bound (default 30s)
	Logger   *slog.Logger
}

func NewLLMDecider(cfg LLMDeciderConfig) *LLMDecider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LLMDecider{provider: cfg.Provider, timeout: cfg.Timeout, logger: cfg.Logger}
}

// llmDecision is the raw decision document parsed from model output. Every
// field is validated before anything is trusted.
type llmDecision struct {
	Decision            string   `json:"decision"`
	SelectedAgentID     string   `json:"selected_agent_id"`
	Confidence          float64  `json:"confidence"`
	Reasoning           string   `json:"reasoning"`
	IntentCategory      string   `json:"intent_category"`
	AlternativeAgentIDs []string `json:"alternative_agent_ids"`
}

// Decide asks the model for a routing decision. The roster is ordered most
// used first so the fallback path picks the caller's workhorse agent.
func (d *LLMDecider) Decide(ctx context.Context, message string, pool []domain.Agent, recent []domain.Turn) domain.RoutingResult {
	roster := make([]domain.Agent, len(pool))
	copy(roster, pool)
	sort.SliceStable(roster, func(i, j int) bool {
		return roster[i].UsageCount > roster[j].UsageCount
	})

	if d.provider == nil {
		return d.fallback(roster, "no completion provider configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.provider.Complete(callCtx, domain.CompletionRequest{
		System:      deciderSystemPrompt,
		Prompt:      buildDeciderPrompt(message, roster, recent),
		MaxTokens:   deciderMaxTokens,
		Temperature: deciderTemperature,
	})
	if err != nil {
		return d.fallback(roster, err.Error())
	}

	raw, ok := extractDecisionJSON(resp.Text)
	if !ok {
		return d.fallback(roster, "unparsable model output")
	}

	var decision llmDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return d.fallback(roster, "invalid decision document: "+err.Error())
	}

	return d.validate(decision, roster)
}

// validate applies the trust rules to a parsed decision: decision value must
// be one of the three active variants, the category must be declared, a
// selected id must exist in the roster passed to this call, and confidence is
// clamped to [0,1]. Violations are corrected silently, never surfaced.
func (d *LLMDecider) validate(decision llmDecision, roster []domain.Agent) domain.RoutingResult {
	result := domain.RoutingResult{
		Reasoning:  decision.Reasoning,
		Confidence: clamp(decision.Confidence),
	}

	switch domain.Decision(strings.ToLower(strings.TrimSpace(decision.Decision))) {
	case domain.DecisionSingleAgent:
		result.Decision = domain.DecisionSingleAgent
	case domain.DecisionNoSuitable:
		result.Decision = domain.DecisionNoSuitable
	case domain.DecisionEscalateHuman:
		result.Decision = domain.DecisionEscalateHuman
	default:
		result.Decision = domain.DecisionNoSuitable
		result.Reasoning = "model returned an unrecognized decision"
	}

	category := domain.Category(strings.ToLower(strings.TrimSpace(decision.IntentCategory)))
	if !domain.ValidCategory(category) {
		category = domain.CategoryGeneral
	}
	result.Intent = domain.IntentAnalysis{
		Category:   category,
		Confidence: result.Confidence,
		Reasoning:  decision.Reasoning,
	}

	if result.Decision == domain.DecisionSingleAgent {
		if inRoster(roster, decision.SelectedAgentID) {
			result.Selected = &domain.CandidateMatch{
				AgentID:   decision.SelectedAgentID,
				Score:     result.Confidence,
				Reasoning: "selected by model",
			}
		} else {
			// Never trust an out-of-roster id.
			result.Decision = domain.DecisionNoSuitable
			result.Selected = nil
			result.Reasoning = "model selected an agent outside the roster"
			d.logger.Warn("llm decision referenced unknown agent",
				"agent", decision.SelectedAgentID)
		}
	}

	for _, id := range decision.AlternativeAgentIDs {
		if result.Selected != nil && id == result.Selected.AgentID {
			continue
		}
		if !inRoster(roster, id) {
			continue
		}
		result.Alternatives = append(result.Alternatives, domain.CandidateMatch{
			AgentID:   id,
			Reasoning: "suggested by model",
		})
		if len(result.Alternatives) >= 5 {
			break
		}
	}

	return result
}

// fallback is the deterministic decision used when the model call fails or
// its output cannot be trusted: the first roster entry at confidence 0.4, or
// no-match at 0.0 when the roster is empty.
func (d *LLMDecider) fallback(roster []domain.Agent, cause string) domain.RoutingResult {
	d.logger.Warn("llm routing failed, using fallback decision", "cause", cause)

	intent := domain.IntentAnalysis{
		Category:   domain.CategoryGeneral,
		Confidence: neutralConfidence,
		Reasoning:  "classification unavailable",
	}

	if len(roster) == 0 {
		return domain.RoutingResult{
			Decision:   domain.DecisionNoSuitable,
			Intent:     intent,
			Confidence: 0.0,
			Reasoning:  fallbackReasoning,
		}
	}

	return domain.RoutingResult{
		Decision: domain.DecisionSingleAgent,
		Intent:   intent,
		Selected: &domain.CandidateMatch{
			AgentID:   roster[0].ID,
			Score:     fallbackConfidence,
			Reasoning: fallbackReasoning,
		},
		Confidence: fallbackConfidence,
		Reasoning:  fallbackReasoning,
	}
}

const deciderSystemPrompt = `You are a message router. Pick the single best agent for the user's message, or declare that none fits, or escalate to a human.
Respond with only a JSON object:
{"decision": "single_agent" | "no_suitable_agent" | "escalate_human",
 "selected_agent_id": "<id or null>",
 "confidence": <0.0-1.0>,
 "reasoning": "<one sentence>",
 "intent_category": "general" | "customer_service" | "technical" | "sales" | "research" | "scheduling",
 "alternative_agent_ids": ["<id>", ...]}`

// buildDeciderPrompt lays out the roster and up to the last 10 turns
// verbatim. Turn text is never truncated: follow-up detection depends on the
// prior wording.
func buildDeciderPrompt(message string, roster []domain.Agent, recent []domain.Turn) string {
	var sb strings.Builder

	sb.WriteString("## Available agents\n")
	for _, a := range roster {
		fmt.Fprintf(&sb, "- id=%s name=%q type=%s knowledge=%t uses=%d: %s\n",
			a.ID, a.Name, a.Type, a.Knowledge, a.UsageCount, a.Description)
	}

	if len(recent) > 0 {
		start := 0
		if len(recent) > deciderMaxTurns {
			start = len(recent) - deciderMaxTurns
		}
		sb.WriteString("\n## Conversation so far\n")
		for _, t := range recent[start:] {
			fmt.Fprintf(&sb, "user: %s\n", t.UserMessage)
			fmt.Fprintf(&sb, "agent(%s): %s\n", t.AgentID, t.AgentReply)
		}
	}

	sb.WriteString("\n## Message to route\n")
	sb.WriteString(message)
	return sb.String()
}

// extractDecisionJSON pulls the first top-level JSON object out of model
// output, tolerating markdown code fences and surrounding prose.
func extractDecisionJSON(content string) (string, bool) {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inStr := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], true
			}
		}
	}
	return "", false
}

func inRoster(roster []domain.Agent, id string) bool {
	if id == "" {
		return false
	}
	for _, a := range roster {
		if a.ID == id {
			return true
		}
	}
	return false
}
