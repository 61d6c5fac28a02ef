package documents

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/skyatlas/solarwarehouse/pkg/models"
)

// Repository provides access to stored vision-model result documents.
type Repository interface {
	// ListAll returns every document in the collection, processed or not.
	// Pairing needs the full store: a processed document may still be the
	// counterpart of an unprocessed one.
	ListAll(ctx context.Context) ([]models.ResultDocument, error)
	// MarkProcessed sets the processed flag on one document. The flag is
	// the sole cross-run idempotency signal for the extract stage.
	MarkProcessed(ctx context.Context, id primitive.ObjectID) error
	// RemoveProcessedFlags clears the processed flag store-wide and
	// returns how many documents were touched. Debug use only.
	RemoveProcessedFlags(ctx context.Context) (int64, error)
}

type mongoRepository struct {
	collection *mongo.Collection
}

// NewRepository creates a document repository over a Mongo collection.
func NewRepository(collection *mongo.Collection) Repository {
	return &mongoRepository{collection: collection}
}

var _ Repository = (*mongoRepository)(nil)

func (r *mongoRepository) ListAll(ctx context.Context) ([]models.ResultDocument, error) {
	cursor, err := r.collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to scan document store: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.ResultDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

func (r *mongoRepository) MarkProcessed(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"processed": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark document %s processed: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("no document found with id %s", id.Hex())
	}
	return nil
}

func (r *mongoRepository) RemoveProcessedFlags(ctx context.Context) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"processed": true},
		bson.M{"$unset": bson.M{"processed": ""}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove processed flags: %w", err)
	}
	return result.ModifiedCount, nil
}
