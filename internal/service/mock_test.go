package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/domain/distribution"
	"github.com/Strob0t/TaskDealer/internal/port/broadcast"
	"github.com/Strob0t/TaskDealer/internal/port/database"
	"github.com/Strob0t/TaskDealer/internal/port/messagequeue"
)

// Ensure mock types implement their interfaces at compile time.
var (
	_ broadcast.Broadcaster = (*mockBroadcaster)(nil)
	_ database.Store        = (*mockStore)(nil)
	_ messagequeue.Queue    = (*mockQueue)(nil)
)

type mockBroadcaster struct {
	mu     sync.Mutex
	events []struct {
		eventType string
		payload   any
	}
}

func (m *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, struct {
		eventType string
		payload   any
	}{eventType, payload})
}

func (m *mockBroadcaster) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i := range m.events {
		out[i] = m.events[i].eventType
	}
	return out
}

type published struct {
	subject string
	data    []byte
}

type mockQueue struct {
	mu         sync.Mutex
	msgs       []published
	publishErr error
}

func (m *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.msgs = append(m.msgs, published{subject, data})
	return nil
}

func (m *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (m *mockQueue) Drain() error      { return nil }
func (m *mockQueue) Close() error      { return nil }
func (m *mockQueue) IsConnected() bool { return true }

func (m *mockQueue) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.msgs))
	for i := range m.msgs {
		out[i] = m.msgs[i].subject
	}
	return out
}

// mockStore is an in-memory database.Store.
type mockStore struct {
	mu      sync.Mutex
	agents  []agent.Agent
	batch   *distribution.Batch
	nextID  int
	replace int
	lists   int

	listAgentsErr error
	replaceErr    error
	listErr       error

	// listHook runs once after a snapshot read, before it is returned.
	listHook func()
}

func (m *mockStore) addAgents(names ...string) {
	for _, n := range names {
		_ = m.CreateAgent(context.Background(), &agent.Agent{
			Name:  n,
			Email: strings.ToLower(n) + "@example.com",
		})
	}
}

func (m *mockStore) ListAgents(_ context.Context) ([]agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listAgentsErr != nil {
		return nil, m.listAgentsErr
	}
	return append([]agent.Agent(nil), m.agents...), nil
}

func (m *mockStore) GetAgent(_ context.Context, id string) (*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.agents {
		if m.agents[i].ID == id {
			a := m.agents[i]
			return &a, nil
		}
	}
	return nil, fmt.Errorf("get agent %s: %w", id, domain.ErrNotFound)
}

func (m *mockStore) CreateAgent(_ context.Context, a *agent.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.agents {
		if strings.EqualFold(m.agents[i].Email, a.Email) {
			return fmt.Errorf("create agent: %w", domain.ErrConflict)
		}
	}
	m.nextID++
	a.ID = fmt.Sprintf("agent-%d", m.nextID)
	m.agents = append(m.agents, *a)
	return nil
}

func (m *mockStore) DeleteAgent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.agents {
		if m.agents[i].ID == id {
			m.agents = append(m.agents[:i], m.agents[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete agent %s: %w", id, domain.ErrNotFound)
}

func (m *mockStore) ReplaceSnapshot(_ context.Context, b distribution.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replace++
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.batch = &b
	return nil
}

func (m *mockStore) ListSnapshot(_ context.Context) ([]distribution.Entry, error) {
	entries, err := m.readSnapshot()
	m.mu.Lock()
	hook := m.listHook
	m.listHook = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return entries, err
}

func (m *mockStore) readSnapshot() ([]distribution.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	if m.batch == nil {
		return nil, nil
	}
	entries := make([]distribution.Entry, 0, len(m.batch.Distributions))
	for _, d := range m.batch.Distributions {
		ref := agent.UnknownRef(d.AgentID)
		for i := range m.agents {
			if m.agents[i].ID == d.AgentID {
				ref = agent.RefOf(m.agents[i])
			}
		}
		entries = append(entries, distribution.Entry{Agent: ref, Tasks: d.Tasks})
	}
	return entries, nil
}

func (m *mockStore) LatestBatch(_ context.Context) (*distribution.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batch == nil {
		return nil, fmt.Errorf("latest batch: %w", domain.ErrNotFound)
	}
	b := *m.batch
	return &b, nil
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

var errBoom = errors.New("boom")
