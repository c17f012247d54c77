package routing

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"agenthub/internal/domain"
)

const (
	primaryTypeScore      = 0.6
	secondaryTypeScore    = 0.4
	unrecognizedTypeScore = 0.2 // every agent keeps a floor chance
	keywordWeight         = 0.3
	maxUsageBonus         = 0.1
)

// Matcher scores a pool of agents against an intent and ranks them. The pool
// is expected to be pre-filtered to active agents visible to the caller.
type Matcher struct {
	logger *slog.Logger
}

func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{logger: logger}
}

type rankedCandidate struct {
	match domain.CandidateMatch
	agent domain.Agent
}

// Match computes a score per agent and returns up to limit candidates sorted
// descending by score. Ties break caller-owned first, then usage count
// descending, then creation time descending.
func (m *Matcher) Match(intent domain.IntentAnalysis, pool []domain.Agent, ownerID string, limit int) []domain.CandidateMatch {
	if len(pool) == 0 {
		return nil
	}

	acceptable := agentTypesByCategory[intent.Category]

	ranked := make([]rankedCandidate, 0, len(pool))
	for _, agent := range pool {
		score, reasoning := m.scoreAgent(intent, agent, acceptable)
		ranked = append(ranked, rankedCandidate{
			match: domain.CandidateMatch{AgentID: agent.ID, Score: score, Reasoning: reasoning},
			agent: agent,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.match.Score != b.match.Score {
			return a.match.Score > b.match.Score
		}
		aOwned, bOwned := a.agent.OwnedBy(ownerID), b.agent.OwnedBy(ownerID)
		if aOwned != bOwned {
			return aOwned
		}
		if a.agent.UsageCount != b.agent.UsageCount {
			return a.agent.UsageCount > b.agent.UsageCount
		}
		return a.agent.CreatedAt.After(b.agent.CreatedAt)
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	matches := make([]domain.CandidateMatch, len(ranked))
	for i, rc := range ranked {
		matches[i] = rc.match
	}
	return matches
}

func (m *Matcher) scoreAgent(intent domain.IntentAnalysis, agent domain.Agent, acceptable []string) (float64, string) {
	score := unrecognizedTypeScore
	label := "unrecognized type"
	for i, t := range acceptable {
		if agent.Type == t {
			if i == 0 {
				score = primaryTypeScore
				label = "primary type match"
			} else {
				score = secondaryTypeScore
				label = "secondary type match"
			}
			break
		}
	}

	haystack := strings.ToLower(agent.Name + " " + agent.Description + " " + agent.SystemPrompt)
	hits := 0
	for _, kw := range intent.Keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			hits++
		}
	}
	ratio := 0.0
	if len(intent.Keywords) > 0 {
		ratio = float64(hits) / float64(len(intent.Keywords))
	}
	score += keywordWeight * ratio

	usageBonus := float64(agent.UsageCount) / 100
	if usageBonus > maxUsageBonus {
		usageBonus = maxUsageBonus
	}
	score += usageBonus

	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}

	reasoning := label
	if len(intent.Keywords) > 0 {
		reasoning = fmt.Sprintf("%s, %d/%d intent keywords present", label, hits, len(intent.Keywords))
	}
	return score, reasoning
}
