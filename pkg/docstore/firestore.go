package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for a Firestore-backed gateway.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// FirestoreGateway is a Gateway implementation for a single Firestore
// collection. Document IDs double as record IDs, so the store's document
// ordering matches the ID ordering the cache layer expects.
type FirestoreGateway[T any] struct {
	client     *firestore.Client
	collection string
	handlers   Handlers[T]
	logger     zerolog.Logger
}

// NewFirestoreGateway creates a new generic FirestoreGateway.
func NewFirestoreGateway[T any](
	cfg *FirestoreConfig,
	client *firestore.Client,
	handlers Handlers[T],
	logger zerolog.Logger,
) (*FirestoreGateway[T], error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if handlers.ID == nil || handlers.SetID == nil {
		return nil, errors.New("handlers must provide ID and SetID")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreGateway initialized.")

	return &FirestoreGateway[T]{
		client:     client,
		collection: cfg.CollectionName,
		handlers:   handlers,
		logger:     logger.With().Str("component", "FirestoreGateway").Str("collection", cfg.CollectionName).Logger(),
	}, nil
}

// FindAll reads the entire collection ordered by document ID ascending.
func (g *FirestoreGateway[T]) FindAll(ctx context.Context) ([]T, error) {
	iter := g.client.Collection(g.collection).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var records []T
	for {
		docSnap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration over %s failed: %w", g.collection, err)
		}
		var record T
		if err := docSnap.DataTo(&record); err != nil {
			return nil, fmt.Errorf("firestore DataTo for %s: %w", docSnap.Ref.ID, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// FindByID retrieves a single record by its document ID.
func (g *FirestoreGateway[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	docSnap, err := g.client.Collection(g.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return zero, fmt.Errorf("firestore get for %s: %w", id, err)
	}
	var record T
	if err := docSnap.DataTo(&record); err != nil {
		return zero, fmt.Errorf("firestore DataTo for %s: %w", id, err)
	}
	return record, nil
}

// Count returns the number of documents in the collection using a
// server-side aggregation, avoiding a full read.
func (g *FirestoreGateway[T]) Count(ctx context.Context) (int, error) {
	result, err := g.client.Collection(g.collection).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("firestore count aggregation for %s failed: %w", g.collection, err)
	}
	countValue, ok := result["all"]
	if !ok {
		return 0, fmt.Errorf("firestore count aggregation for %s returned no result", g.collection)
	}
	count, ok := countValue.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("firestore count aggregation for %s returned unexpected type %T", g.collection, countValue)
	}
	return int(count.GetIntegerValue()), nil
}

// Insert creates the document, assigning a new ID when the caller has not
// set one. A pre-set ID is kept so callers that key collaborating resources
// by record ID can mint the ID before the insert.
func (g *FirestoreGateway[T]) Insert(ctx context.Context, record T) (T, error) {
	var zero T
	id := g.handlers.ID(record)
	if id == "" {
		id = uuid.NewString()
		record = g.handlers.SetID(record, id)
	}
	if _, err := g.client.Collection(g.collection).Doc(id).Create(ctx, record); err != nil {
		return zero, fmt.Errorf("firestore create for %s: %w", id, err)
	}
	g.logger.Debug().Str("id", id).Msg("Document created.")
	return record, nil
}

// Update overwrites the document with the given record. The record's ID field
// is forced to the document ID so the two can never disagree.
func (g *FirestoreGateway[T]) Update(ctx context.Context, id string, record T) (T, error) {
	var zero T
	docRef := g.client.Collection(g.collection).Doc(id)
	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return zero, fmt.Errorf("firestore get for %s: %w", id, err)
	}
	record = g.handlers.SetID(record, id)
	if _, err := docRef.Set(ctx, record); err != nil {
		return zero, fmt.Errorf("firestore set for %s: %w", id, err)
	}
	return record, nil
}

// DeleteByID removes a single document. A missing document is reported as
// ErrNotFound so callers can surface it as a normal outcome.
func (g *FirestoreGateway[T]) DeleteByID(ctx context.Context, id string) error {
	docRef := g.client.Collection(g.collection).Doc(id)
	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("firestore get for %s: %w", id, err)
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete for %s: %w", id, err)
	}
	return nil
}

// DeleteMany removes every document whose named field equals the given value,
// using a BulkWriter to batch the deletes server-side. The returned count is
// the number of deletes the server confirmed, not the number enqueued.
func (g *FirestoreGateway[T]) DeleteMany(ctx context.Context, field string, equals any) (int, error) {
	iter := g.client.Collection(g.collection).Where(field, "==", equals).Documents(ctx)
	defer iter.Stop()

	bulkWriter := g.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		docSnap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bulkWriter.End()
			return 0, fmt.Errorf("firestore query on %s failed: %w", g.collection, err)
		}
		job, err := bulkWriter.Delete(docSnap.Ref)
		if err != nil {
			bulkWriter.End()
			return 0, fmt.Errorf("firestore bulk delete for %s: %w", docSnap.Ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	bulkWriter.End()

	deleted := 0
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return deleted, fmt.Errorf("firestore bulk delete on %s failed after %d deletes: %w", g.collection, deleted, err)
		}
		deleted++
	}

	g.logger.Debug().Int("deleted", deleted).Str("field", field).Msg("Bulk delete complete.")
	return deleted, nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (g *FirestoreGateway[T]) Close() error {
	return nil
}
