package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	lockSnapshot   = "snapshot"
	snapshotLease  = 30 * time.Second
	lockRetryDelay = 50 * time.Millisecond
	releaseTimeout = 5 * time.Second
)

// lock takes the lease document id in the locks collection, waiting while
// another holder's lease is live. Processes sharing the database exclude
// each other through it; an expired lease is taken over.
//
// The upsert only matches an expired lease. A live one makes the insert
// collide on _id, which is reported as a duplicate key error.
func (s *Store) lock(ctx context.Context, id string) (release func(), err error) {
	locks := s.db.Collection(collLocks)
	owner := uuid.NewString()

	for {
		now := time.Now().UTC()
		_, err := locks.UpdateOne(ctx,
			bson.M{"_id": id, "expires_at": bson.M{"$lt": now}},
			bson.M{"$set": bson.M{"owner": owner, "expires_at": now.Add(s.lease)}},
			options.UpdateOne().SetUpsert(true))
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquire %s lock: %w", id, ctx.Err())
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("acquire %s lock: %w", id, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire %s lock: %w", id, ctx.Err())
		case <-time.After(lockRetryDelay):
		}
	}

	return func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if _, err := locks.DeleteOne(rctx, bson.M{"_id": id, "owner": owner}); err != nil {
			slog.WarnContext(ctx, "lock release failed, lease will expire", "lock", id, "error", err)
		}
	}, nil
}
