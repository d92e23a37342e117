package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// DistributionReplacedEvent is broadcast after an upload replaces the snapshot.
type DistributionReplacedEvent struct {
	BatchID string `json:"batch_id"`
	Source  string `json:"source"`
	Agents  int    `json:"agents"`
	Tasks   int    `json:"tasks"`
}

// AgentEvent is broadcast when the roster changes.
type AgentEvent struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
}

// BroadcastEvent marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
