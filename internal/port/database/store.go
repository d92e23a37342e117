// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/domain/distribution"
)

// AgentDirectory is the read side of the agent roster consumed by uploads.
type AgentDirectory interface {
	// ListAgents returns every registered agent ordered by creation time, then id.
	ListAgents(ctx context.Context) ([]agent.Agent, error)
}

// DistributionStore holds the single current distribution snapshot.
type DistributionStore interface {
	// ReplaceSnapshot atomically swaps the stored snapshot for b. Readers
	// observe either the previous snapshot or b in full, never a mix. On
	// error the previous snapshot is left intact.
	ReplaceSnapshot(ctx context.Context, b distribution.Batch) error

	// ListSnapshot returns the current snapshot with agent references
	// resolved. Agents that no longer resolve get agent.UnknownRef.
	ListSnapshot(ctx context.Context) ([]distribution.Entry, error)

	// LatestBatch returns the metadata of the upload behind the current
	// snapshot, or domain.ErrNotFound before the first upload.
	LatestBatch(ctx context.Context) (*distribution.Batch, error)
}

// Store is the port interface for database operations.
type Store interface {
	AgentDirectory
	DistributionStore

	// Agents
	GetAgent(ctx context.Context, id string) (*agent.Agent, error)
	CreateAgent(ctx context.Context, a *agent.Agent) error
	DeleteAgent(ctx context.Context, id string) error

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
}
