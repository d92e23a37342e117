package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/domain/distribution"
	"github.com/Strob0t/TaskDealer/internal/domain/record"
)

const (
	stateID         = "current"
	maxReadAttempts = 5
)

type taskDoc struct {
	FirstName string `bson:"first_name"`
	Phone     string `bson:"phone"`
	Notes     string `bson:"notes"`
}

type distributionDoc struct {
	BatchID  string    `bson:"batch_id"`
	Position int       `bson:"position"`
	AgentID  string    `bson:"agent_id"`
	Tasks    []taskDoc `bson:"tasks"`
}

type stateDoc struct {
	ID        string    `bson:"_id"`
	BatchID   string    `bson:"batch_id"`
	Source    string    `bson:"source"`
	CreatedAt time.Time `bson:"created_at"`
}

// ReplaceSnapshot writes b under its batch id, flips the pointer to it and
// removes every other batch. If any step before the flip fails the
// previous snapshot stays current; leftovers are removed by the next
// successful replace. Replaces from all processes are serialized by the
// snapshot lock.
func (s *Store) ReplaceSnapshot(ctx context.Context, b distribution.Batch) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	release, err := s.lock(ctx, lockSnapshot)
	if err != nil {
		return err
	}
	defer release()

	if !s.transactions {
		return s.replace(ctx, b)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, s.replace(ctx, b)
	})
	if err != nil {
		return fmt.Errorf("replace snapshot transaction: %w", err)
	}
	return nil
}

func (s *Store) replace(ctx context.Context, b distribution.Batch) error {
	dists := s.db.Collection(collDistributions)

	// A retried transaction or an earlier failed attempt may have left docs
	// under this batch id.
	if _, err := dists.DeleteMany(ctx, bson.M{"batch_id": b.ID}); err != nil {
		return fmt.Errorf("clear batch %s: %w", b.ID, err)
	}

	if len(b.Distributions) > 0 {
		docs := make([]distributionDoc, len(b.Distributions))
		for pos, d := range b.Distributions {
			tasks := make([]taskDoc, len(d.Tasks))
			for i, t := range d.Tasks {
				tasks[i] = taskDoc{FirstName: t.FirstName, Phone: t.Phone, Notes: t.Notes}
			}
			docs[pos] = distributionDoc{BatchID: b.ID, Position: pos, AgentID: d.AgentID, Tasks: tasks}
		}
		if _, err := dists.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("insert distributions: %w", err)
		}
	}

	state := stateDoc{ID: stateID, BatchID: b.ID, Source: b.Source, CreatedAt: b.CreatedAt}
	_, err := s.db.Collection(collState).ReplaceOne(ctx, bson.M{"_id": stateID}, state,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("switch snapshot to %s: %w", b.ID, err)
	}

	// Cleanup is left to whoever flipped the pointer last, in case our lease
	// expired mid-replace and another process took over.
	current, err := s.currentState(ctx)
	if err != nil {
		return err
	}
	if current == nil || current.BatchID != b.ID {
		return nil
	}
	if _, err := dists.DeleteMany(ctx, bson.M{"batch_id": bson.M{"$ne": b.ID}}); err != nil {
		return fmt.Errorf("remove previous snapshot: %w", err)
	}
	return nil
}

func (s *Store) currentState(ctx context.Context) (*stateDoc, error) {
	var st stateDoc
	err := s.db.Collection(collState).FindOne(ctx, bson.M{"_id": stateID}).Decode(&st)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot state: %w", err)
	}
	return &st, nil
}

// ListSnapshot reads the distributions of the current batch. If a replace
// switches the pointer mid-read the read is retried.
func (s *Store) ListSnapshot(ctx context.Context) ([]distribution.Entry, error) {
	for range maxReadAttempts {
		before, err := s.currentState(ctx)
		if err != nil {
			return nil, err
		}
		if before == nil {
			return []distribution.Entry{}, nil
		}

		entries, err := s.readBatch(ctx, before.BatchID)
		if err != nil {
			return nil, err
		}

		after, err := s.currentState(ctx)
		if err != nil {
			return nil, err
		}
		if after != nil && after.BatchID == before.BatchID {
			return entries, nil
		}
	}
	return nil, errors.New("list snapshot: snapshot kept changing during read")
}

func (s *Store) readBatch(ctx context.Context, batchID string) ([]distribution.Entry, error) {
	cur, err := s.db.Collection(collDistributions).Find(ctx, bson.M{"batch_id": batchID},
		options.Find().SetSort(bson.D{{Key: "position", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	var docs []distributionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.AgentID
	}
	refs, err := s.resolveAgents(ctx, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]distribution.Entry, len(docs))
	for i, d := range docs {
		ref, ok := refs[d.AgentID]
		if !ok {
			ref = agent.UnknownRef(d.AgentID)
		}
		tasks := make([]record.Task, len(d.Tasks))
		for j, t := range d.Tasks {
			tasks[j] = record.Task{FirstName: t.FirstName, Phone: t.Phone, Notes: t.Notes}
		}
		entries[i] = distribution.Entry{Agent: ref, Tasks: tasks}
	}
	return entries, nil
}

// LatestBatch returns metadata of the upload that produced the current snapshot.
func (s *Store) LatestBatch(ctx context.Context) (*distribution.Batch, error) {
	st, err := s.currentState(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("latest batch: %w", domain.ErrNotFound)
	}
	return &distribution.Batch{ID: st.BatchID, Source: st.Source, CreatedAt: st.CreatedAt}, nil
}
