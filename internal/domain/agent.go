package domain

import "time"

// Agent is a named responder with a declared specialization. Agents are owned
// externally; the routing core only reads their metadata and bumps usage
// counters after a successful dispatch.
type Agent struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         string     `json:"type"` // specialization tag, usually a Category value
	Description  string     `json:"description"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
	Capabilities []string   `json:"capabilities,omitempty"`
	Knowledge    bool       `json:"knowledge_available"`
	UsageCount   int        `json:"usage_count"`
	OwnerID      string     `json:"owner_id"`
	TenantID     string     `json:"tenant_id"`
	IsPublic     bool       `json:"is_public"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
}

// OwnedBy reports whether the agent belongs to the given caller.
func (a Agent) OwnedBy(ownerID string) bool {
	return a.OwnerID == ownerID
}
