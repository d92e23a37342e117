package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/port/broadcast"
	"github.com/Strob0t/TaskDealer/internal/port/cache"
	"github.com/Strob0t/TaskDealer/internal/port/cache/cachetest"
	"github.com/Strob0t/TaskDealer/internal/port/messagequeue"
)

func validRequest() agent.CreateRequest {
	return agent.CreateRequest{
		Name:     "  Alice ",
		Email:    "alice@example.com",
		Mobile:   "+4915112345678",
		Password: "secret123",
	}
}

func TestAgentService_Create(t *testing.T) {
	store := &mockStore{}
	hub := &mockBroadcaster{}
	q := &mockQueue{}
	svc := NewAgentService(store, bcrypt.MinCost)
	svc.SetBroadcaster(hub)
	svc.SetQueue(q, nil)

	a, err := svc.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if a.Name != "Alice" {
		t.Errorf("expected trimmed name, got %q", a.Name)
	}
	if a.PasswordHash == "" || a.PasswordHash == "secret123" {
		t.Fatalf("password not hashed: %q", a.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte("secret123")); err != nil {
		t.Errorf("hash does not match password: %v", err)
	}

	if got := hub.types(); len(got) != 1 || got[0] != broadcast.EventAgentCreated {
		t.Errorf("broadcast events = %v", got)
	}
	if got := q.subjects(); len(got) != 1 || got[0] != messagequeue.SubjectAgentCreated {
		t.Fatalf("published subjects = %v", got)
	}
	var p messagequeue.AgentPayload
	if err := json.Unmarshal(q.msgs[0].data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.AgentID != a.ID || p.Email != "alice@example.com" {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestAgentService_CreateValidation(t *testing.T) {
	store := &mockStore{}
	hub := &mockBroadcaster{}
	svc := NewAgentService(store, bcrypt.MinCost)
	svc.SetBroadcaster(hub)

	req := validRequest()
	req.Email = "not-an-email"
	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(store.agents) != 0 {
		t.Error("invalid agent must not be stored")
	}
	if len(hub.types()) != 0 {
		t.Error("no event expected for a rejected agent")
	}
}

func TestAgentService_CreateDuplicateEmail(t *testing.T) {
	store := &mockStore{}
	svc := NewAgentService(store, bcrypt.MinCost)

	if _, err := svc.Create(context.Background(), validRequest()); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	req := validRequest()
	req.Email = "ALICE@example.com"
	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAgentService_QueueFailureDoesNotFailCreate(t *testing.T) {
	store := &mockStore{}
	svc := NewAgentService(store, bcrypt.MinCost)
	svc.SetQueue(&mockQueue{publishErr: errBoom}, nil)

	if _, err := svc.Create(context.Background(), validRequest()); err != nil {
		t.Fatalf("Create should succeed when publishing fails: %v", err)
	}
}

func TestAgentService_Delete(t *testing.T) {
	store := &mockStore{}
	store.addAgents("Alice")
	hub := &mockBroadcaster{}
	q := &mockQueue{}
	mem := cachetest.NewMemory()
	_ = mem.Set(context.Background(), cache.KeySnapshot, []byte("[]"), 0)

	dist := NewDistributionService(store, store, nil)
	dist.SetCache(mem, 0)

	svc := NewAgentService(store, bcrypt.MinCost)
	svc.SetBroadcaster(hub)
	svc.SetQueue(q, nil)
	svc.SetSnapshotInvalidator(dist)

	if err := svc.Delete(context.Background(), "agent-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), "agent-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if mem.Len() != 0 {
		t.Error("expected cached snapshot to be dropped")
	}
	if dist.gen.Load() != 1 {
		t.Error("expected in-flight snapshot fills to be discarded")
	}
	if got := hub.types(); len(got) != 1 || got[0] != broadcast.EventAgentDeleted {
		t.Errorf("broadcast events = %v", got)
	}
	if got := q.subjects(); len(got) != 1 || got[0] != messagequeue.SubjectAgentDeleted {
		t.Errorf("published subjects = %v", got)
	}
}

func TestAgentService_DeleteNotFound(t *testing.T) {
	hub := &mockBroadcaster{}
	svc := NewAgentService(&mockStore{}, bcrypt.MinCost)
	svc.SetBroadcaster(hub)

	err := svc.Delete(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(hub.types()) != 0 {
		t.Error("no event expected when nothing was deleted")
	}
}

func TestAgentService_ListKeepsRosterOrder(t *testing.T) {
	store := &mockStore{}
	store.addAgents("Alice", "Bob", "Carol")
	svc := NewAgentService(store, bcrypt.MinCost)

	agents, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"Alice", "Bob", "Carol"}
	if len(agents) != len(want) {
		t.Fatalf("expected %d agents, got %d", len(want), len(agents))
	}
	for i, n := range want {
		if agents[i].Name != n {
			t.Errorf("agents[%d] = %q, want %q", i, agents[i].Name, n)
		}
	}
}
