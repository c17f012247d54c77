// Package orchestrator composes the routing pipeline: conversation context,
// intent classification, candidate matching, the decision engine, dispatch,
// and the audited turn write.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"agenthub/internal/bus"
	"agenthub/internal/conversation"
	"agenthub/internal/dispatch"
	"agenthub/internal/domain"
	"agenthub/internal/metrics"
	"agenthub/internal/routing"
)

const (
	StrategyRules = "rules"
	StrategyLLM   = "llm"
)

// Orchestrator exposes the single public operation Route. It holds no mutable
// state of its own; everything lives in the store.
type Orchestrator struct {
	store          domain.Store
	conversations  *conversation.Manager
	classifier     *routing.Classifier
	matcher        *routing.Matcher
	engine         *routing.Engine
	decider        *routing.LLMDecider
	dispatcher     *dispatch.Executor
	events         *bus.EventBus
	strategy       string
	candidateLimit int
	logger         *slog.Logger
}

type Config struct {
	Store          domain.Store
	Conversations  *conversation.Manager
	Classifier     *routing.Classifier
	Matcher        *routing.Matcher
	Engine         *routing.Engine
	Decider        *routing.LLMDecider // required only for StrategyLLM
	Dispatcher     *dispatch.Executor
	Events         *bus.EventBus // optional lifecycle event sink
	Strategy       string        // "rules" (default) or "llm"
	CandidateLimit int           // candidates kept from the matcher (default 10)
	Logger         *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyRules
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		store:          cfg.Store,
		conversations:  cfg.Conversations,
		classifier:     cfg.Classifier,
		matcher:        cfg.Matcher,
		engine:         cfg.Engine,
		decider:        cfg.Decider,
		dispatcher:     cfg.Dispatcher,
		events:         cfg.Events,
		strategy:       cfg.Strategy,
		candidateLimit: cfg.CandidateLimit,
		logger:         cfg.Logger,
	}
}

// RouteRequest is one inbound message with its identity and continuity keys.
type RouteRequest struct {
	OwnerID          string            `json:"owner_id"`
	TenantID         string            `json:"tenant_id"`
	Message          string            `json:"message"`
	ConversationID   string            `json:"conversation_id,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
	PreferredAgentID string            `json:"preferred_agent_id,omitempty"`
}

// RouteResponse is the persisted turn plus the auditable routing decision.
type RouteResponse struct {
	ConversationID string               `json:"conversation_id"`
	TurnIndex      int                  `json:"turn_index"`
	UserMessage    string               `json:"user_message"`
	AgentReply     string               `json:"agent_reply"`
	AgentName      string               `json:"agent_name,omitempty"`
	Routing        domain.RoutingResult `json:"routing"`
	ElapsedMs      int64                `json:"elapsed_ms"`
}

// Route classifies the message, picks an agent, dispatches, and persists the
// turn. Only ownership violations (ErrNotFound) and unrecoverable storage
// conflicts (ErrConflict) surface as errors; everything else degrades to a
// best-effort textual reply with an honest audit trail.
func (o *Orchestrator) Route(ctx context.Context, req RouteRequest) (*RouteResponse, error) {
	start := time.Now()
	metrics.MessagesTotal.Inc()

	if req.OwnerID == "" {
		return nil, fmt.Errorf("owner id required")
	}
	if req.TenantID == "" {
		req.TenantID = "default"
	}

	conv, err := o.conversations.GetOrCreate(ctx, req.OwnerID, req.TenantID, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.TurnCount == 0 {
		o.emit(bus.EventConversationCreated, map[string]any{
			"conversation": conv.ID,
			"owner":        req.OwnerID,
			"tenant":       req.TenantID,
		})
	}

	cctx, err := o.conversations.BuildContext(ctx, conv)
	if err != nil {
		return nil, err
	}

	pool, err := o.store.ListActiveAgents(ctx, req.OwnerID, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	result := o.decide(ctx, req, pool, cctx)
	o.emit(bus.EventRoutingDecided, map[string]any{
		"conversation": conv.ID,
		"decision":     string(result.Decision),
		"intent":       string(result.Intent.Category),
		"confidence":   result.Confidence,
	})
	if result.Decision == domain.DecisionEscalateHuman {
		o.emit(bus.EventEscalated, map[string]any{
			"conversation": conv.ID,
			"reason":       result.Reasoning,
		})
	}

	// Cancellation checkpoint: stop before the dispatch suspension point so
	// no partial turn is ever written.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reply, agentName, dispatched := o.execute(ctx, &result, req.Message, pool, cctx)

	// The turn is written exactly once, after dispatch completed. A caller
	// cancelling mid-dispatch must not lose the audit record.
	persistCtx := context.WithoutCancel(ctx)

	if dispatched {
		if err := o.store.IncrementAgentUsage(persistCtx, result.Selected.AgentID); err != nil {
			o.logger.Warn("usage increment failed", "agent", result.Selected.AgentID, "err", err)
		}
	}

	turnIndex, err := o.persistTurn(persistCtx, conv, req.Message, reply, result, dispatched)
	if err != nil {
		return nil, err
	}
	o.emit(bus.EventTurnPersisted, map[string]any{
		"conversation": conv.ID,
		"turn":         turnIndex,
	})

	metrics.CountDecision(string(result.Decision))
	elapsed := time.Since(start)
	metrics.RouteLatency.Observe(elapsed.Seconds())

	o.logger.Info("message routed",
		"conversation", conv.ID,
		"turn", turnIndex,
		"decision", result.Decision,
		"intent", result.Intent.Category,
		"confidence", result.Confidence,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return &RouteResponse{
		ConversationID: conv.ID,
		TurnIndex:      turnIndex,
		UserMessage:    req.Message,
		AgentReply:     reply,
		AgentName:      agentName,
		Routing:        result,
		ElapsedMs:      elapsed.Milliseconds(),
	}, nil
}

// decide produces the routing result for this turn. An empty pool
// short-circuits to no-match before any strategy runs; a valid caller
// preference overrides the engine's choice.
func (o *Orchestrator) decide(ctx context.Context, req RouteRequest, pool []domain.Agent, cctx *conversation.Context) domain.RoutingResult {
	if len(pool) == 0 {
		intent := o.classifier.Classify(req.Message, cctx.RecentTurns, req.Context)
		return domain.RoutingResult{
			Decision:   domain.DecisionNoSuitable,
			Intent:     intent,
			Confidence: 0.0,
			Reasoning:  "no agents available",
		}
	}

	if req.PreferredAgentID != "" {
		if preferred := findAgent(pool, req.PreferredAgentID); preferred != nil {
			intent := o.classifier.Classify(req.Message, cctx.RecentTurns, req.Context)
			matches := o.matcher.Match(intent, pool, req.OwnerID, o.candidateLimit)
			return preferredResult(intent, matches, preferred.ID)
		}
		o.logger.Warn("preferred agent not in caller's pool, ignoring",
			"agent", req.PreferredAgentID)
	}

	if o.strategy == StrategyLLM && o.decider != nil {
		return o.decider.Decide(ctx, req.Message, pool, cctx.RecentTurns)
	}

	intent := o.classifier.Classify(req.Message, cctx.RecentTurns, req.Context)
	matches := o.matcher.Match(intent, pool, req.OwnerID, o.candidateLimit)
	return o.engine.Decide(intent, matches)
}

// execute runs the dispatch step for single-agent decisions and synthesizes
// the templated reply for the rest. A failed dispatch keeps the apologetic
// reply but rewrites the audit trail to a no-match entry.
func (o *Orchestrator) execute(ctx context.Context, result *domain.RoutingResult, message string, pool []domain.Agent, cctx *conversation.Context) (reply, agentName string, dispatched bool) {
	if result.Decision == domain.DecisionSingleAgent && result.Selected != nil {
		agent := findAgent(pool, result.Selected.AgentID)
		if agent == nil {
			// Engine and decider both guarantee roster membership; treat a
			// miss as a dispatch failure rather than panicking.
			result.Decision = domain.DecisionNoSuitable
			result.Reasoning = "selected agent disappeared from the pool"
			return o.unroutedReply(*result, pool), "", false
		}

		text, _, derr := o.dispatcher.Dispatch(ctx, *agent, message, cctx.RecentTurns)
		if derr != nil {
			metrics.DispatchFailures.Inc()
			o.emit(bus.EventDispatchFailed, map[string]any{
				"agent": agent.ID,
				"error": derr.Error(),
			})
			result.Decision = domain.DecisionNoSuitable
			result.Reasoning = fmt.Sprintf("dispatch failed: %v", derr)
			return text, agent.Name, false
		}
		return text, agent.Name, true
	}

	return o.unroutedReply(*result, pool), "", false
}

// unroutedReply synthesizes the user-facing text for no-match and escalation
// outcomes, naming up to 3 alternative agents when any were ranked.
func (o *Orchestrator) unroutedReply(result domain.RoutingResult, pool []domain.Agent) string {
	var names []string
	for _, alt := range result.Alternatives {
		if a := findAgent(pool, alt.AgentID); a != nil {
			names = append(names, a.Name)
		}
		if len(names) == 3 {
			break
		}
	}

	var reply string
	if result.Decision == domain.DecisionEscalateHuman {
		reply = "This looks like something a person should handle, so I've flagged your request for a human operator."
	} else {
		reply = "I couldn't find an agent suited to your request."
	}

	switch len(names) {
	case 0:
		return reply
	case 1:
		return fmt.Sprintf("%s You could try asking %s instead.", reply, names[0])
	default:
		last := names[len(names)-1]
		rest := names[:len(names)-1]
		return fmt.Sprintf("%s You could try asking %s or %s instead.",
			reply, joinNames(rest), last)
	}
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// persistTurn allocates the next turn index and writes the turn atomically
// with the conversation update. A write conflict is retried once against a
// re-read conversation; a second conflict is fatal.
func (o *Orchestrator) persistTurn(ctx context.Context, conv *domain.Conversation, message, reply string, result domain.RoutingResult, dispatched bool) (int, error) {
	selectedID := ""
	if result.Selected != nil {
		selectedID = result.Selected.AgentID
	}

	for attempt := 0; attempt < 2; attempt++ {
		updated := *conv
		updated.TurnCount = conv.TurnCount + 1
		updated.LastActivity = time.Now()
		if updated.PrimaryIntent == "" {
			updated.PrimaryIntent = result.Intent.Category
		}
		if dispatched && !updated.UsedAgent(selectedID) {
			updated.AgentsUsed = append(append([]string(nil), updated.AgentsUsed...), selectedID)
		}

		turn := domain.Turn{
			ConversationID: conv.ID,
			Index:          updated.TurnCount,
			UserMessage:    message,
			AgentReply:     reply,
			Intent:         result.Intent.Category,
			Confidence:     result.Confidence,
			AgentID:        selectedID,
			Decision:       result.Decision,
			Reasoning:      result.Reasoning,
			CreatedAt:      time.Now(),
		}

		err := o.store.AppendTurn(ctx, updated, turn)
		if err == nil {
			*conv = updated
			return turn.Index, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return 0, fmt.Errorf("append turn: %w", err)
		}

		metrics.WriteConflicts.Inc()
		if attempt == 0 {
			fresh, gerr := o.store.GetConversation(ctx, conv.ID)
			if gerr != nil {
				return 0, fmt.Errorf("re-read conversation after conflict: %w", gerr)
			}
			if fresh == nil {
				return 0, domain.ErrNotFound
			}
			o.logger.Warn("turn index conflict, retrying",
				"conversation", conv.ID,
				"turn_count", fresh.TurnCount,
			)
			*conv = *fresh
		}
	}

	return 0, fmt.Errorf("append turn for %s: %w", conv.ID, domain.ErrConflict)
}

func (o *Orchestrator) emit(eventType string, payload map[string]any) {
	if o.events == nil {
		return
	}
	o.events.Emit(bus.Event{Type: eventType, Source: "orchestrator", Payload: payload})
}

func findAgent(pool []domain.Agent, id string) *domain.Agent {
	for i := range pool {
		if pool[i].ID == id {
			return &pool[i]
		}
	}
	return nil
}

// preferredResult honors an explicit caller preference. The preferred agent
// keeps its matcher score when ranked, or the floor score otherwise.
func preferredResult(intent domain.IntentAnalysis, matches []domain.CandidateMatch, preferredID string) domain.RoutingResult {
	selected := domain.CandidateMatch{
		AgentID:   preferredID,
		Score:     0.2,
		Reasoning: "selected by caller preference",
	}
	for _, m := range matches {
		if m.AgentID == preferredID {
			selected.Score = m.Score
			break
		}
	}
	return domain.RoutingResult{
		Decision:     domain.DecisionSingleAgent,
		Intent:       intent,
		Selected:     &selected,
		Alternatives: topPreferredAlternatives(matches, preferredID),
		Confidence:   intent.Confidence,
		Reasoning:    "selected by caller preference",
	}
}

func topPreferredAlternatives(matches []domain.CandidateMatch, selectedID string) []domain.CandidateMatch {
	var alts []domain.CandidateMatch
	for _, m := range matches {
		if m.AgentID == selectedID {
			continue
		}
		alts = append(alts, m)
		if len(alts) == 5 {
			break
		}
	}
	return alts
}
