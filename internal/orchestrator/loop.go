package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"agenthub/internal/domain"
)

// Loop consumes inbound channel messages from the bus, routes each one, and
// sends the reply back out. Each message is handled on its own goroutine,
// bounded by maxConcurrent; channel sessions are pinned to their conversation
// in memory so follow-ups keep their continuity key.
type Loop struct {
	orch          *Orchestrator
	bus           domain.MessageBus
	maxConcurrent int
	logger        *slog.Logger

	mu       sync.Mutex
	sessions map[string]string // channel:chatID -> conversationID
}

type LoopConfig struct {
	Orchestrator  *Orchestrator
	Bus           domain.MessageBus
	MaxConcurrent int
	Logger        *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		orch:          cfg.Orchestrator,
		bus:           cfg.Bus,
		maxConcurrent: cfg.MaxConcurrent,
		logger:        cfg.Logger,
		sessions:      make(map[string]string),
	}
}

// Run blocks until the context is cancelled or the bus closes.
func (l *Loop) Run(ctx context.Context) {
	inbound := l.bus.Subscribe()
	sem := make(chan struct{}, l.maxConcurrent)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				l.handle(ctx, m)
			}(msg)
		}
	}
}

func (l *Loop) handle(ctx context.Context, msg domain.InboundMessage) {
	key := msg.Channel + ":" + msg.ChatID

	convID := msg.ConversationID
	if convID == "" {
		l.mu.Lock()
		convID = l.sessions[key]
		l.mu.Unlock()
	}

	tenant := msg.TenantID
	if tenant == "" {
		tenant = "default"
	}

	resp, err := l.orch.Route(ctx, RouteRequest{
		OwnerID:        msg.SenderID,
		TenantID:       tenant,
		Message:        msg.Content,
		ConversationID: convID,
	})
	if err != nil {
		l.logger.Error("routing failed",
			"channel", msg.Channel,
			"chat", msg.ChatID,
			"err", err,
		)
		l.bus.SendOutbound(domain.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: "Sorry, something went wrong while routing your message. Please try again.",
		})
		return
	}

	l.mu.Lock()
	l.sessions[key] = resp.ConversationID
	l.mu.Unlock()

	l.bus.SendOutbound(domain.OutboundMessage{
		Channel:        msg.Channel,
		ChatID:         msg.ChatID,
		Content:        resp.AgentReply,
		AgentName:      resp.AgentName,
		Decision:       resp.Routing.Decision,
		Confidence:     resp.Routing.Confidence,
		ConversationID: resp.ConversationID,
	})
}
