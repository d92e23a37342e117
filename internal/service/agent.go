package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/TaskDealer/internal/adapter/ws"
	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/port/broadcast"
	"github.com/Strob0t/TaskDealer/internal/port/database"
	"github.com/Strob0t/TaskDealer/internal/port/messagequeue"
	"github.com/Strob0t/TaskDealer/internal/resilience"
)

// SnapshotInvalidator drops cached copies of the distribution snapshot.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context)
}

// AgentService manages the agent roster.
type AgentService struct {
	store      database.Store
	snapshots  SnapshotInvalidator
	notify     notifier
	bcryptCost int
}

// NewAgentService creates a new AgentService.
func NewAgentService(store database.Store, bcryptCost int) *AgentService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AgentService{store: store, bcryptCost: bcryptCost}
}

// SetBroadcaster attaches the dashboard event hub.
func (s *AgentService) SetBroadcaster(hub broadcast.Broadcaster) {
	s.notify.hub = hub
}

// SetQueue attaches a message queue for cross-instance events.
// breaker may be nil.
func (s *AgentService) SetQueue(q messagequeue.Queue, breaker *resilience.Breaker) {
	s.notify.queue = q
	s.notify.breaker = breaker
}

// SetSnapshotInvalidator attaches the owner of the cached snapshot, which
// embeds agent names and must be dropped when an agent is removed.
func (s *AgentService) SetSnapshotInvalidator(inv SnapshotInvalidator) {
	s.snapshots = inv
}

// List returns all agents in roster order.
func (s *AgentService) List(ctx context.Context) ([]agent.Agent, error) {
	return s.store.ListAgents(ctx)
}

// Get returns an agent by ID.
func (s *AgentService) Get(ctx context.Context, id string) (*agent.Agent, error) {
	return s.store.GetAgent(ctx, id)
}

// Create validates req, hashes the password and registers the agent.
func (s *AgentService) Create(ctx context.Context, req agent.CreateRequest) (*agent.Agent, error) {
	if err := agent.ValidateCreateRequest(&req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a := &agent.Agent{
		Name:         req.Name,
		Email:        req.Email,
		Mobile:       req.Mobile,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateAgent(ctx, a); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("agent with email %s already exists: %w", req.Email, domain.ErrConflict)
		}
		return nil, fmt.Errorf("create agent: %w", err)
	}

	slog.InfoContext(ctx, "agent created", "agent_id", a.ID)
	s.notify.broadcast(ctx, broadcast.EventAgentCreated, ws.AgentEvent{AgentID: a.ID, Name: a.Name, Email: a.Email})
	s.notify.publish(ctx, messagequeue.SubjectAgentCreated, messagequeue.AgentPayload{AgentID: a.ID, Name: a.Name, Email: a.Email})
	return a, nil
}

// Delete removes an agent. Distributions that reference it stay in place
// and are listed with an unknown agent reference.
func (s *AgentService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteAgent(ctx, id); err != nil {
		return err
	}

	if s.snapshots != nil {
		s.snapshots.Invalidate(ctx)
	}

	slog.InfoContext(ctx, "agent deleted", "agent_id", id)
	s.notify.broadcast(ctx, broadcast.EventAgentDeleted, ws.AgentEvent{AgentID: id})
	s.notify.publish(ctx, messagequeue.SubjectAgentDeleted, messagequeue.AgentPayload{AgentID: id})
	return nil
}
