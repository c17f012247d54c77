package domain

import "context"

// Store handles persistent storage of conversations, turns, and agents.
//
// AppendTurn must serialize turn-index allocation per conversation: the turn
// insert and the conversation update happen in one transaction guarded by an
// optimistic check on the conversation's current TurnCount. A losing writer
// gets ErrConflict.
type Store interface {
	CreateConversation(ctx context.Context, conv Conversation) error
	// GetConversation returns the conversation regardless of owner; callers
	// enforce ownership. Returns (nil, nil) when absent.
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// AppendTurn writes the turn and applies the updated conversation fields
	// (TurnCount, PrimaryIntent, AgentsUsed, LastActivity) atomically. The
	// update is conditional on the stored turn_count still being
	// conv.TurnCount-1; otherwise ErrConflict.
	AppendTurn(ctx context.Context, conv Conversation, turn Turn) error
	// RecentTurns returns up to limit most recent turns in chronological
	// order, full text preserved.
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]Turn, error)

	// ListActiveAgents returns active agents visible to the caller: owned by
	// ownerID or public, within the tenant.
	ListActiveAgents(ctx context.Context, ownerID, tenantID string) ([]Agent, error)
	GetAgent(ctx context.Context, id string) (*Agent, error)
	// UpsertAgent inserts or updates an agent definition without resetting
	// its usage counter.
	UpsertAgent(ctx context.Context, agent Agent) error
	IncrementAgentUsage(ctx context.Context, id string) error

	Close() error
}
