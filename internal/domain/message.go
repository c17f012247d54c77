package domain

import "time"

// InboundMessage is a raw message arriving from a channel.
type InboundMessage struct {
	Channel        string
	ChatID         string
	SenderID       string
	TenantID       string
	ConversationID string // empty on the first turn of a session
	Content        string
	Timestamp      time.Time
}

// OutboundMessage carries the routed reply back to its channel.
type OutboundMessage struct {
	Channel        string
	ChatID         string
	Content        string
	AgentName      string // empty when no agent was dispatched
	Decision       Decision
	Confidence     float64
	ConversationID string
}
