package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/skyatlas/solarwarehouse/pkg/config"
)

// MongoStore holds the document-store client and the results collection.
type MongoStore struct {
	Client     *mongo.Client
	Collection *mongo.Collection
}

// NewMongoStore connects to the document store and verifies the connection.
func NewMongoStore(ctx context.Context, cfg *config.MongoConfig) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping document store: %w", err)
	}

	return &MongoStore{
		Client:     client,
		Collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.Client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from document store: %w", err)
	}
	return nil
}
