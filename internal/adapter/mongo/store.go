package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/port/database"
)

var _ database.Store = (*Store)(nil)

// Store implements database.Store using MongoDB.
//
// The current snapshot is the set of distribution documents whose batch_id
// matches the pointer document in snapshot_state. Replacing writes the new
// batch first and then flips the pointer with a single-document upsert, so
// readers never observe a partially written snapshot.
type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
	lease        time.Duration

	// gate serializes replaces within this process; the snapshot lock
	// serializes them across processes.
	gate sync.Mutex
}

// NewStore wraps database db of client. With transactions enabled (replica
// set required) each replace runs inside a multi-document transaction.
func NewStore(client *mongo.Client, db string, transactions bool) *Store {
	return &Store{client: client, db: client.Database(db), transactions: transactions, lease: snapshotLease}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

type agentDoc struct {
	ID           bson.ObjectID `bson:"_id"`
	Name         string        `bson:"name"`
	Email        string        `bson:"email"`
	EmailLower   string        `bson:"email_lower"`
	Mobile       string        `bson:"mobile"`
	PasswordHash string        `bson:"password_hash"`
	CreatedAt    time.Time     `bson:"created_at"`
}

func (d agentDoc) toDomain() agent.Agent {
	return agent.Agent{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		Mobile:       d.Mobile,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
	}
}

func (s *Store) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	cur, err := s.db.Collection(collAgents).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	var docs []agentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	agents := make([]agent.Agent, len(docs))
	for i, d := range docs {
		agents[i] = d.toDomain()
	}
	return agents, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, domain.ErrNotFound)
	}
	var d agentDoc
	if err := s.db.Collection(collAgents).FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("get agent %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	a := d.toDomain()
	return &a, nil
}

// CreateAgent inserts a and fills in its generated ID and CreatedAt.
func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) error {
	d := agentDoc{
		ID:           bson.NewObjectID(),
		Name:         a.Name,
		Email:        a.Email,
		EmailLower:   strings.ToLower(a.Email),
		Mobile:       a.Mobile,
		PasswordHash: a.PasswordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.db.Collection(collAgents).InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("create agent %s: %w", a.Email, domain.ErrConflict)
		}
		return fmt.Errorf("create agent: %w", err)
	}
	a.ID = d.ID.Hex()
	a.CreatedAt = d.CreatedAt
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", id, domain.ErrNotFound)
	}
	res, err := s.db.Collection(collAgents).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete agent %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// resolveAgents loads the display references for ids. Ids that do not
// resolve are absent from the result.
func (s *Store) resolveAgents(ctx context.Context, ids []string) (map[string]agent.Ref, error) {
	oids := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := bson.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	refs := make(map[string]agent.Ref, len(oids))
	if len(oids) == 0 {
		return refs, nil
	}

	cur, err := s.db.Collection(collAgents).Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("resolve agents: %w", err)
	}
	var docs []agentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("resolve agents: %w", err)
	}
	for _, d := range docs {
		refs[d.ID.Hex()] = agent.RefOf(d.toDomain())
	}
	return refs, nil
}
