// Package distribution defines the per-agent task groups produced by an upload
// and the round-robin policy that builds them.
package distribution

import (
	"time"

	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/domain/record"
)

// Distribution is the ordered task group assigned to one agent.
type Distribution struct {
	AgentID string        `json:"agent_id"`
	Tasks   []record.Task `json:"tasks"`
}

// Snapshot is the complete set of distributions produced by one upload,
// ordered by the roster position of each agent.
type Snapshot []Distribution

// TaskCount returns the number of tasks across all distributions.
func (s Snapshot) TaskCount() int {
	n := 0
	for i := range s {
		n += len(s[i].Tasks)
	}
	return n
}

// Batch identifies the upload that produced a snapshot.
type Batch struct {
	ID            string    `json:"batch_id"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
	Distributions Snapshot  `json:"distributions"`
}

// Entry is a persisted distribution with its agent reference resolved for display.
type Entry struct {
	Agent agent.Ref     `json:"agentId"`
	Tasks []record.Task `json:"tasks"`
}

// Distribute assigns task i to agentIDs[i mod len(agentIDs)].
// Agents that receive no task are omitted. Within a group, tasks keep their
// input order. The result depends only on the two input sequences.
func Distribute(tasks []record.Task, agentIDs []string) (Snapshot, error) {
	if len(agentIDs) == 0 {
		return nil, domain.ErrNoAgentsAvailable
	}

	groups := make([][]record.Task, len(agentIDs))
	for i, t := range tasks {
		slot := i % len(agentIDs)
		groups[slot] = append(groups[slot], t)
	}

	snap := make(Snapshot, 0, min(len(tasks), len(agentIDs)))
	for slot, g := range groups {
		if len(g) == 0 {
			continue
		}
		snap = append(snap, Distribution{AgentID: agentIDs[slot], Tasks: g})
	}
	return snap, nil
}
