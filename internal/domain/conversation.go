package domain

import "time"

// Conversation is the continuity aggregate for one caller. TurnCount always
// equals the number of persisted turns and never decreases.
type Conversation struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	TenantID      string    `json:"tenant_id"`
	TurnCount     int       `json:"turn_count"`
	PrimaryIntent Category  `json:"primary_intent,omitempty"` // empty until the first turn sets it
	AgentsUsed    []string  `json:"agents_used,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// UsedAgent reports whether the given agent already appears in AgentsUsed.
func (c Conversation) UsedAgent(agentID string) bool {
	for _, id := range c.AgentsUsed {
		if id == agentID {
			return true
		}
	}
	return false
}

// Turn is one user-message/agent-reply pair. Turns are append-only and
// immutable once written; Index is 1-based and strictly increasing with no
// gaps within a conversation.
type Turn struct {
	ConversationID string    `json:"conversation_id"`
	Index          int       `json:"index"`
	UserMessage    string    `json:"user_message"`
	AgentReply     string    `json:"agent_reply"`
	Intent         Category  `json:"intent"`
	Confidence     float64   `json:"confidence"`
	AgentID        string    `json:"agent_id,omitempty"` // selected agent, empty on no-match/escalation
	Decision       Decision  `json:"decision"`
	Reasoning      string    `json:"reasoning"`
	CreatedAt      time.Time `json:"created_at"`
}
