package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/port/database"
)

var _ database.Store = (*Store)(nil)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Agents ---

const agentColumns = `id, name, email, mobile, password_hash, created_at`

func scanAgent(row scannable) (agent.Agent, error) {
	var a agent.Agent
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Mobile, &a.PasswordHash, &a.CreatedAt)
	return a, err
}

func (s *Store) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := []agent.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	if !validID(id) {
		return nil, fmt.Errorf("get agent %s: %w", id, domain.ErrNotFound)
	}
	a, err := scanAgent(s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get agent %s", id)
	}
	return &a, nil
}

// CreateAgent inserts a and fills in its generated ID and CreatedAt.
func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO agents (name, email, mobile, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		a.Name, a.Email, a.Mobile, a.PasswordHash).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create agent %s: %w", a.Email, domain.ErrConflict)
		}
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("delete agent %s: %w", id, domain.ErrNotFound)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete agent %s", id)
}
