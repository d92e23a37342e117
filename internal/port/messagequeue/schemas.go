package messagequeue

import "time"

// DistributionsReplacedPayload is the schema for distributions.replaced messages.
type DistributionsReplacedPayload struct {
	BatchID    string    `json:"batch_id"`
	Source     string    `json:"source"`
	Agents     int       `json:"agents"`
	Tasks      int       `json:"tasks"`
	ReplacedAt time.Time `json:"replaced_at"`
}

// AgentPayload is the schema for agents.created and agents.deleted messages.
type AgentPayload struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
}
