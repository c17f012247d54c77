package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"agenthub/internal/conversation"
	"agenthub/internal/dispatch"
	"agenthub/internal/domain"
	"agenthub/internal/routing"
)

type memStore struct {
	conversations map[string]*domain.Conversation
	turns         map[string][]domain.Turn
	agents        []domain.Agent
	usage         map[string]int

	conflictsLeft int // AppendTurn failures to inject before succeeding
}

func newMemStore(agents ...domain.Agent) *memStore {
	return &memStore{
		conversations: make(map[string]*domain.Conversation),
		turns:         make(map[string][]domain.Turn),
		agents:        agents,
		usage:         make(map[string]int),
	}
}

func (s *memStore) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	c := conv
	s.conversations[conv.ID] = &c
	return nil
}

func (s *memStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	c := *conv
	return &c, nil
}

func (s *memStore) AppendTurn(ctx context.Context, conv domain.Conversation, turn domain.Turn) error {
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return domain.ErrConflict
	}
	stored, ok := s.conversations[conv.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.TurnCount != conv.TurnCount-1 {
		return domain.ErrConflict
	}
	s.turns[conv.ID] = append(s.turns[conv.ID], turn)
	c := conv
	s.conversations[conv.ID] = &c
	return nil
}

func (s *memStore) RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	turns := s.turns[conversationID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (s *memStore) ListActiveAgents(ctx context.Context, ownerID, tenantID string) ([]domain.Agent, error) {
	var out []domain.Agent
	for _, a := range s.agents {
		if !a.Active || a.TenantID != tenantID {
			continue
		}
		if a.OwnerID != ownerID && !a.IsPublic {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *memStore) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	for i := range s.agents {
		if s.agents[i].ID == id {
			a := s.agents[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpsertAgent(ctx context.Context, agent domain.Agent) error { return nil }

func (s *memStore) IncrementAgentUsage(ctx context.Context, id string) error {
	s.usage[id]++
	return nil
}

func (s *memStore) Close() error { return nil }

type scriptedProvider struct {
	text  string
	err   error
	calls int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &domain.CompletionResponse{Text: p.text}, nil
}

func (p *scriptedProvider) Healthy(ctx context.Context) error { return nil }

func testOrchestrator(store domain.Store, provider domain.CompletionProvider) *Orchestrator {
	logger := slog.New(slog.DiscardHandler)
	return New(Config{
		Store:         store,
		Conversations: conversation.NewManager(conversation.ManagerConfig{Store: store, Logger: logger}),
		Classifier:    routing.NewClassifier(logger),
		Matcher:       routing.NewMatcher(logger),
		Engine:        routing.NewEngine(routing.EngineConfig{}),
		Dispatcher: dispatch.NewExecutor(dispatch.ExecutorConfig{
			Provider: provider,
			Logger:   logger,
		}),
		Logger: logger,
	})
}

func csAgent(id string) domain.Agent {
	return domain.Agent{
		ID:       id,
		Name:     id,
		Type:     "customer_service",
		OwnerID:  "u1",
		TenantID: "default",
		Active:   true,
	}
}

func TestRouteEmptyPoolNeverDispatches(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{text: "should never be seen"}
	o := testOrchestrator(store, provider)

	resp, err := o.Route(context.Background(), RouteRequest{
		OwnerID: "u1", TenantID: "default", Message: "hello",
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("no dispatch expected with an empty pool, provider called %d times", provider.calls)
	}
	if resp.Routing.Decision != domain.DecisionNoSuitable {
		t.Fatalf("expected no_suitable_agent, got %s", resp.Routing.Decision)
	}
	if resp.Routing.Confidence != 0.0 {
		t.Fatalf("expected confidence 0.0, got %f", resp.Routing.Confidence)
	}
	if resp.TurnIndex != 1 {
		t.Fatalf("the turn must still be persisted, got index %d", resp.TurnIndex)
	}
	if !strings.Contains(resp.AgentReply, "couldn't find an agent") {
		t.Fatalf("unexpected reply: %q", resp.AgentReply)
	}
}

func TestRouteSequentialTurnIndices(t *testing.T) {
	store := newMemStore(csAgent("support"))
	o := testOrchestrator(store, &scriptedProvider{text: "happy to help"})

	convID := ""
	for want := 1; want <= 3; want++ {
		resp, err := o.Route(context.Background(), RouteRequest{
			OwnerID: "u1", TenantID: "default",
			Message:        "I want a refund for my order",
			ConversationID: convID,
		})
		if err != nil {
			t.Fatalf("Route turn %d: %v", want, err)
		}
		if resp.TurnIndex != want {
			t.Fatalf("expected turn index %d, got %d", want, resp.TurnIndex)
		}
		convID = resp.ConversationID
	}

	turns := store.turns[convID]
	if len(turns) != 3 {
		t.Fatalf("expected 3 persisted turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Index != i+1 {
			t.Fatalf("turn %d has index %d", i, turn.Index)
		}
	}
}

func TestRouteSuccessIncrementsUsage(t *testing.T) {
	store := newMemStore(csAgent("support"))
	o := testOrchestrator(store, &scriptedProvider{text: "refund is on its way"})

	resp, err := o.Route(context.Background(), RouteRequest{
		OwnerID: "u1", TenantID: "default", Message: "I want a refund for my order",
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if resp.Routing.Decision != domain.DecisionSingleAgent {
		t.Fatalf("expected single_agent, got %s", resp.Routing.Decision)
	}
	if resp.AgentName != "support" {
		t.Fatalf("expected agent name in response, got %q", resp.AgentName)
	}
	if resp.AgentReply != "refund is on its way" {
		t.Fatalf("unexpected reply: %q", resp.AgentReply)
	}
	if store.usage["support"] != 1 {
		t.Fatalf("expected usage 1, got %d", store.usage["support"])
	}
}

func TestRouteDispatchFailure(t *testing.T) {
	store := newMemStore(csAgent("support"))
	o := testOrchestrator(store, &scriptedProvider{err: errors.New("provider down")})

	resp, err := o.Route(context.Background(), RouteRequest{
		OwnerID: "u1", TenantID: "default", Message: "I want a refund for my order",
	})
	if err != nil {
		t.Fatalf("dispatch failure must not fail the route: %v", err)
	}
	if !strings.Contains(resp.AgentReply, "I'm sorry") {
		t.Fatalf("expected apologetic reply, got %q", resp.AgentReply)
	}
	if resp.Routing.Decision != domain.DecisionNoSuitable {
		t.Fatalf("audit trail must record no_suitable_agent, got %s", resp.Routing.Decision)
	}
	if !strings.Contains(resp.Routing.Reasoning, "dispatch failed") {
		t.Fatalf("reasoning should carry the cause: %q", resp.Routing.Reasoning)
	}
	if store.usage["support"] != 0 {
		t.Fatalf("usage must not count a failed dispatch, got %d", store.usage["support"])
	}

	turns := store.turns[resp.ConversationID]
	if len(turns) != 1 || turns[0].Decision != domain.DecisionNoSuitable {
		t.Fatalf("persisted turn should carry the rewritten decision: %+v", turns)
	}
}

func TestRouteForeignConversation(t *testing.T) {
	store := newMemStore(csAgent("support"))
	store.conversations["c1"] = &domain.Conversation{ID: "c1", OwnerID: "someone-else", TenantID: "default"}
	o := testOrchestrator(store, &scriptedProvider{text: "ok"})

	_, err := o.Route(context.Background(), RouteRequest{
		OwnerID: "u1", TenantID: "default", Message: "hello", ConversationID: "c1",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRouteConflictRetried(t *testing.T) {
	store := newMemStore(csAgent("support"))
	store.conflictsLeft = 1
	o := testOrchestrator(store, &scriptedProvider{text: "ok"})

	resp, err := o.Route(context.Background(), RouteRequest{
		OwnerID: "u1", TenantID: "default", Message: "I want a refund for my order",
	})
	if err != nil {
		t.Fatalf("a single conflict must be retried: %v", err)
	}
	if resp.TurnIndex != 1 {
		t.Fatalf("expected turn index 1 after retry, got %d", resp.TurnIndex)
	}
}

func TestRoutePersistentConflictFails(t *testing.T) {
	store := newMemStore(csAgent("support"))
	store.conflictsLeft = 2
	o := testOrchestrator(store, &scriptedProvider{text: "ok"})

	_, err := o.Route(context.Background(), RouteRequest{
		OwnerID: "u1", TenantID: "default", Message: "hello",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict after exhausted retries, got %v", err)
	}
}

func TestRoutePreferredAgent(t *testing.T) {
	other := csAgent("support")
	preferred := domain.Agent{
		ID: "niche", Name: "niche", Type: "technical",
		OwnerID: "u1", TenantID: "default", Active: true,
	}
	store := newMemStore(other, preferred)
	o := testOrchestrator(store, &scriptedProvider{text: "ok"})

	resp, err := o.Route(context.Background(), RouteRequest{
		OwnerID: "u1", TenantID: "default",
		Message:          "I want a refund for my order",
		PreferredAgentID: "niche",
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if resp.Routing.Selected == nil || resp.Routing.Selected.AgentID != "niche" {
		t.Fatalf("caller preference must win, got %+v", resp.Routing.Selected)
	}
	if resp.Routing.Reasoning != "selected by caller preference" {
		t.Fatalf("unexpected reasoning: %q", resp.Routing.Reasoning)
	}
}

func TestRoutePreferredAgentOutsidePool(t *testing.T) {
	store := newMemStore(csAgent("support"))
	o := testOrchestrator(store, &scriptedProvider{text: "ok"})

	resp, err := o.Route(context.Background(), RouteRequest{
		OwnerID: "u1", TenantID: "default",
		Message:          "I want a refund for my order",
		PreferredAgentID: "ghost",
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if resp.Routing.Selected == nil || resp.Routing.Selected.AgentID != "support" {
		t.Fatalf("unknown preference should fall through to the engine, got %+v", resp.Routing.Selected)
	}
}

func TestRouteOwnerRequired(t *testing.T) {
	o := testOrchestrator(newMemStore(), &scriptedProvider{text: "ok"})
	if _, err := o.Route(context.Background(), RouteRequest{Message: "hello"}); err == nil {
		t.Fatalf("expected an error for a missing owner id")
	}
}
