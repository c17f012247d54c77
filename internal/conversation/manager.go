// Package conversation loads and creates conversation records and assembles
// the bounded context window the classifier needs for follow-up detection.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agenthub/internal/domain"

	"github.com/google/uuid"
)

const defaultWindow = 10

// Manager mediates conversation access through the store. It enforces
// ownership: a supplied conversation id must belong to the caller's owner and
// tenant, or the lookup fails with domain.ErrNotFound.
type Manager struct {
	store  domain.Store
	window int
	logger *slog.Logger
}

type ManagerConfig struct {
	Store  domain.Store
	Window int // recent turns included in context (default 10)
	Logger *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{store: cfg.Store, window: cfg.Window, logger: cfg.Logger}
}

// GetOrCreate resolves the conversation for this turn. A supplied id that
// exists under a different owner or tenant yields ErrNotFound — a foreign id
// never silently becomes a new conversation. An id with no record at all
// behaves like no id: a fresh conversation is created with a new id.
func (m *Manager) GetOrCreate(ctx context.Context, ownerID, tenantID, conversationID string) (*domain.Conversation, error) {
	if conversationID != "" {
		conv, err := m.store.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("load conversation: %w", err)
		}
		if conv != nil {
			if conv.OwnerID != ownerID || conv.TenantID != tenantID {
				return nil, domain.ErrNotFound
			}
			return conv, nil
		}
	}

	now := time.Now()
	conv := domain.Conversation{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		TenantID:     tenantID,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := m.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	m.logger.Info("created new conversation",
		"conversation", conv.ID,
		"owner", ownerID,
		"tenant", tenantID,
	)
	return &conv, nil
}

// Context is the continuity signal handed to the classifier and dispatcher.
type Context struct {
	TurnCount     int
	PrimaryIntent domain.Category
	AgentsUsed    []string
	RecentTurns   []domain.Turn // chronological, full text preserved
}

// BuildContext assembles the bounded window of prior turns. The window bounds
// how many turns are included, never how much of each turn's text survives.
func (m *Manager) BuildContext(ctx context.Context, conv *domain.Conversation) (*Context, error) {
	turns, err := m.store.RecentTurns(ctx, conv.ID, m.window)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	return &Context{
		TurnCount:     conv.TurnCount,
		PrimaryIntent: conv.PrimaryIntent,
		AgentsUsed:    conv.AgentsUsed,
		RecentTurns:   turns,
	}, nil
}
