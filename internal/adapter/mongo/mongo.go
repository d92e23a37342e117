// Package mongo implements database.Store on MongoDB as an alternative to
// PostgreSQL.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Strob0t/TaskDealer/internal/config"
)

const (
	collAgents        = "agents"
	collDistributions = "distributions"
	collState         = "snapshot_state"
	collLocks         = "locks"
)

// Connect dials MongoDB and verifies the connection with a ping.
// The caller owns the client and must Disconnect it.
func Connect(ctx context.Context, cfg config.Mongo) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetAppName("taskdealer")
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the store relies on. It is idempotent
// and plays the role of the SQL migrations.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(collAgents).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email_lower", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("agents_email_key"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("agents_roster_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("agents indexes: %w", err)
	}

	_, err = db.Collection(collDistributions).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "batch_id", Value: 1}, {Key: "position", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("distributions_batch_position"),
	})
	if err != nil {
		return fmt.Errorf("distributions indexes: %w", err)
	}
	return nil
}
