package conversation

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"agenthub/internal/domain"
)

type fakeStore struct {
	conversations map[string]*domain.Conversation
	turns         map[string][]domain.Turn
	created       []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*domain.Conversation),
		turns:         make(map[string][]domain.Turn),
	}
}

func (f *fakeStore) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	c := conv
	f.conversations[conv.ID] = &c
	f.created = append(f.created, conv.ID)
	return nil
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, nil
	}
	c := *conv
	return &c, nil
}

func (f *fakeStore) AppendTurn(ctx context.Context, conv domain.Conversation, turn domain.Turn) error {
	f.turns[conv.ID] = append(f.turns[conv.ID], turn)
	c := conv
	f.conversations[conv.ID] = &c
	return nil
}

func (f *fakeStore) RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	turns := f.turns[conversationID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (f *fakeStore) ListActiveAgents(ctx context.Context, ownerID, tenantID string) ([]domain.Agent, error) {
	return nil, nil
}

func (f *fakeStore) GetAgent(ctx context.Context, id string) (*domain.Agent, error) { return nil, nil }

func (f *fakeStore) UpsertAgent(ctx context.Context, agent domain.Agent) error { return nil }

func (f *fakeStore) IncrementAgentUsage(ctx context.Context, id string) error { return nil }

func (f *fakeStore) Close() error { return nil }

func testManager(store domain.Store) *Manager {
	return NewManager(ManagerConfig{
		Store:  store,
		Logger: slog.New(slog.DiscardHandler),
	})
}

func TestGetOrCreateNewConversation(t *testing.T) {
	store := newFakeStore()
	m := testManager(store)

	conv, err := m.GetOrCreate(context.Background(), "u1", "default", "")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if conv.ID == "" {
		t.Fatalf("new conversation must get an id")
	}
	if conv.OwnerID != "u1" || conv.TenantID != "default" {
		t.Fatalf("ownership not recorded: %+v", conv)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one create, got %d", len(store.created))
	}
}

func TestGetOrCreateExisting(t *testing.T) {
	store := newFakeStore()
	store.conversations["c1"] = &domain.Conversation{ID: "c1", OwnerID: "u1", TenantID: "default", TurnCount: 3}
	m := testManager(store)

	conv, err := m.GetOrCreate(context.Background(), "u1", "default", "c1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if conv.ID != "c1" || conv.TurnCount != 3 {
		t.Fatalf("existing conversation not returned: %+v", conv)
	}
	if len(store.created) != 0 {
		t.Fatalf("must not create when the id resolves")
	}
}

func TestGetOrCreateForeignOwner(t *testing.T) {
	store := newFakeStore()
	store.conversations["c1"] = &domain.Conversation{ID: "c1", OwnerID: "someone-else", TenantID: "default"}
	m := testManager(store)

	_, err := m.GetOrCreate(context.Background(), "u1", "default", "c1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
}

func TestGetOrCreateForeignTenant(t *testing.T) {
	store := newFakeStore()
	store.conversations["c1"] = &domain.Conversation{ID: "c1", OwnerID: "u1", TenantID: "acme"}
	m := testManager(store)

	_, err := m.GetOrCreate(context.Background(), "u1", "default", "c1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign tenant, got %v", err)
	}
}

func TestGetOrCreateUnknownIDCreatesFresh(t *testing.T) {
	store := newFakeStore()
	m := testManager(store)

	conv, err := m.GetOrCreate(context.Background(), "u1", "default", "no-such-id")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if conv.ID == "no-such-id" {
		t.Fatalf("unknown id must not be adopted")
	}
	if len(store.created) != 1 {
		t.Fatalf("expected a fresh conversation, got %d creates", len(store.created))
	}
}

func TestBuildContextWindow(t *testing.T) {
	store := newFakeStore()
	conv := &domain.Conversation{ID: "c1", OwnerID: "u1", TenantID: "default", TurnCount: 15,
		PrimaryIntent: domain.CategoryTechnical, AgentsUsed: []string{"helper"}}
	store.conversations["c1"] = conv
	for i := 1; i <= 15; i++ {
		store.turns["c1"] = append(store.turns["c1"], domain.Turn{ConversationID: "c1", Index: i})
	}

	m := NewManager(ManagerConfig{Store: store, Window: 5, Logger: slog.New(slog.DiscardHandler)})
	cc, err := m.BuildContext(context.Background(), conv)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if cc.TurnCount != 15 {
		t.Fatalf("expected turn count 15, got %d", cc.TurnCount)
	}
	if cc.PrimaryIntent != domain.CategoryTechnical {
		t.Fatalf("primary intent not carried: %s", cc.PrimaryIntent)
	}
	if len(cc.RecentTurns) != 5 {
		t.Fatalf("expected window of 5 turns, got %d", len(cc.RecentTurns))
	}
	if cc.RecentTurns[0].Index != 11 || cc.RecentTurns[4].Index != 15 {
		t.Fatalf("window must hold the most recent turns in order, got %d..%d",
			cc.RecentTurns[0].Index, cc.RecentTurns[4].Index)
	}
}
