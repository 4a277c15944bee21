package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gumbo/internal/database"
	"gumbo/internal/models"
)

// archivedSuggestion is a suggestion embedded in its batch document
type archivedSuggestion struct {
	ID                primitive.ObjectID `bson:"_id"`
	Title             string             `bson:"title"`
	Description       string             `bson:"description"`
	Category          string             `bson:"category"`
	Rationale         string             `bson:"rationale"`
	ExpectedUtility   float64            `bson:"expectedUtility"`
	ProbabilityUseful float64            `bson:"probabilityUseful"`
	Urgency           string             `bson:"urgency,omitempty"`
	ActionItems       []string           `bson:"actionItems,omitempty"`
	Delivered         bool               `bson:"delivered"`
	DeliveredAt       *time.Time         `bson:"deliveredAt,omitempty"`
}

// archivedBatch stores a whole batch as one document, so a write is all-or-nothing
type archivedBatch struct {
	ID                      primitive.ObjectID   `bson:"_id,omitempty"`
	BatchID                 string               `bson:"batchId"`
	TriggerPropositionID    *int64               `bson:"triggerPropositionId,omitempty"`
	GeneratedAt             time.Time            `bson:"generatedAt"`
	ProcessingTimeSeconds   float64              `bson:"processingTimeSeconds"`
	ContextPropositionsUsed int                  `bson:"contextPropositionsUsed"`
	BundlesUsed             int                  `bson:"bundlesUsed"`
	ScoringStrategy         string               `bson:"scoringStrategy"`
	Suggestions             []archivedSuggestion `bson:"suggestions"`
}

// batchCollection is the part of *mongo.Collection the archive uses
type batchCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// MongoSuggestionArchive persists suggestion batches in MongoDB
type MongoSuggestionArchive struct {
	collection batchCollection
	now        func() time.Time
}

// NewMongoSuggestionArchive creates an archive on the suggestion_batches collection
func NewMongoSuggestionArchive(mongodb *database.MongoDB) *MongoSuggestionArchive {
	return newMongoSuggestionArchive(mongodb.Collection(database.CollectionSuggestionBatches), time.Now)
}

func newMongoSuggestionArchive(collection batchCollection, now func() time.Time) *MongoSuggestionArchive {
	return &MongoSuggestionArchive{collection: collection, now: now}
}

// SaveSuggestions inserts the batch document and returns the embedded suggestion ids
func (a *MongoSuggestionArchive) SaveSuggestions(ctx context.Context, batch *models.SuggestionBatch) ([]string, error) {
	doc := toArchivedBatch(batch)

	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("%w: insert batch %s: %v", ErrPersistenceFailed, batch.BatchID, err)
	}

	ids := make([]string, len(doc.Suggestions))
	for i, s := range doc.Suggestions {
		ids[i] = s.ID.Hex()
	}

	log.Printf("💾 [SUGGESTION-ARCHIVE] Archived batch %s with %d suggestions", batch.BatchID, len(ids))
	return ids, nil
}

// MarkDelivered flags the given embedded suggestions as delivered
func (a *MongoSuggestionArchive) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	objectIDs, err := parseObjectIDs(ids)
	if err != nil {
		return err
	}

	filter := bson.M{"suggestions._id": bson.M{"$in": objectIDs}}
	update := bson.M{"$set": bson.M{
		"suggestions.$[s].delivered":   true,
		"suggestions.$[s].deliveredAt": a.now().UTC(),
	}}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"s._id": bson.M{"$in": objectIDs}}},
	})

	if _, err := a.collection.UpdateMany(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// RecentSuggestions returns suggestions from the newest batches, newest first
func (a *MongoSuggestionArchive) RecentSuggestions(ctx context.Context, limit int) ([]models.Suggestion, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "generatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer cursor.Close(ctx)

	var batches []archivedBatch
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, fmt.Errorf("decode batches: %w", err)
	}

	results := []models.Suggestion{}
	for _, doc := range batches {
		for _, s := range doc.Suggestions {
			if len(results) >= limit {
				return results, nil
			}
			results = append(results, fromArchivedSuggestion(doc, s))
		}
	}
	return results, nil
}

// PruneSuggestions deletes batch documents generated before cutoff
func (a *MongoSuggestionArchive) PruneSuggestions(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{"generatedAt": bson.M{"$lt": cutoff.UTC()}}

	cursor, err := a.collection.Find(ctx, filter, options.Find().SetProjection(bson.M{"suggestions._id": 1}))
	if err != nil {
		return 0, fmt.Errorf("find expired batches: %w", err)
	}
	var expired []archivedBatch
	if err := cursor.All(ctx, &expired); err != nil {
		return 0, fmt.Errorf("decode expired batches: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	var suggestions int64
	for _, doc := range expired {
		suggestions += int64(len(doc.Suggestions))
	}

	if _, err := a.collection.DeleteMany(ctx, filter); err != nil {
		return 0, fmt.Errorf("delete expired batches: %w", err)
	}
	return suggestions, nil
}

func toArchivedBatch(batch *models.SuggestionBatch) archivedBatch {
	doc := archivedBatch{
		BatchID:                 batch.BatchID,
		TriggerPropositionID:    batch.TriggerPropositionID,
		GeneratedAt:             batch.GeneratedAt.UTC(),
		ProcessingTimeSeconds:   batch.ProcessingTimeSeconds,
		ContextPropositionsUsed: batch.ContextPropositionsUsed,
		BundlesUsed:             batch.BundlesUsed,
		ScoringStrategy:         batch.ScoringStrategy,
		Suggestions:             make([]archivedSuggestion, len(batch.Suggestions)),
	}
	for i, s := range batch.Suggestions {
		doc.Suggestions[i] = archivedSuggestion{
			ID:                primitive.NewObjectID(),
			Title:             s.Title,
			Description:       s.Description,
			Category:          s.Category,
			Rationale:         s.Rationale,
			ExpectedUtility:   s.ExpectedUtility,
			ProbabilityUseful: s.ProbabilityUseful,
			Urgency:           s.Urgency,
			ActionItems:       s.ActionItems,
		}
	}
	return doc
}

func fromArchivedSuggestion(doc archivedBatch, s archivedSuggestion) models.Suggestion {
	return models.Suggestion{
		ID:                   s.ID.Hex(),
		Title:                s.Title,
		Description:          s.Description,
		Category:             s.Category,
		Rationale:            s.Rationale,
		ExpectedUtility:      s.ExpectedUtility,
		ProbabilityUseful:    s.ProbabilityUseful,
		Urgency:              s.Urgency,
		ActionItems:          s.ActionItems,
		TriggerPropositionID: doc.TriggerPropositionID,
		BatchID:              doc.BatchID,
		Delivered:            s.Delivered,
	}
}

func parseObjectIDs(ids []string) ([]primitive.ObjectID, error) {
	objectIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid suggestion id %q: %w", id, err)
		}
		objectIDs = append(objectIDs, oid)
	}
	return objectIDs, nil
}
