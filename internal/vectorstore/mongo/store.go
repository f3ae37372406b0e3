// Package mongo stores chunk records in MongoDB Atlas and searches them with
// the $vectorSearch aggregation stage.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/vectorstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultDatabase   = "storyrag"
	DefaultCollection = "storyembeddings"
	DefaultIndex      = "vector_index"

	// Atlas rejects numCandidates above this value.
	maxCandidates = 10000
)

// storyEmbedding is the stored document.
type storyEmbedding struct {
	ChunkID       string    `bson:"_id"`
	OwnerID       string    `bson:"userId"`
	DocumentID    string    `bson:"pdfId"`
	SequenceIndex int       `bson:"sequenceIndex"`
	Text          string    `bson:"textChunk"`
	Vector        []float32 `bson:"embedding,omitempty"`
	Metadata      metadata  `bson:"metadata"`
	Score         float64   `bson:"score,omitempty"`
}

type metadata struct {
	Title     string    `bson:"title"`
	CreatedAt time.Time `bson:"createdAt"`
}

func fromRecord(r domain.Record) storyEmbedding {
	return storyEmbedding{
		ChunkID:       r.ChunkID,
		OwnerID:       r.OwnerID,
		DocumentID:    r.DocumentID,
		SequenceIndex: r.SequenceIndex,
		Text:          r.Text,
		Vector:        r.Vector,
		Metadata:      metadata{Title: r.Title, CreatedAt: r.CreatedAt.UTC()},
	}
}

func (d storyEmbedding) hit() domain.SearchHit {
	return domain.SearchHit{
		Record: domain.Record{
			ChunkID:       d.ChunkID,
			OwnerID:       d.OwnerID,
			DocumentID:    d.DocumentID,
			SequenceIndex: d.SequenceIndex,
			Text:          d.Text,
			Title:         d.Metadata.Title,
			CreatedAt:     d.Metadata.CreatedAt,
		},
		// Atlas reports cosine as (1 + cos) / 2.
		Score: float32(2*d.Score - 1),
	}
}

type Config struct {
	URI        string
	Database   string
	Collection string
	Index      string
}

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	index  string
}

var _ vectorstore.Store = (*Store)(nil)

// Connect opens a client and pings the deployment.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return NewStore(client, cfg), nil
}

func NewStore(client *mongo.Client, cfg Config) *Store {
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	return &Store{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		index:  cfg.Index,
	}
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// IndexDefinition returns the Atlas vector search index for dims-long
// vectors, with the owner and document fields usable as filters.
func IndexDefinition(dims int) bson.D {
	return bson.D{{Key: "fields", Value: bson.A{
		bson.D{
			{Key: "type", Value: "vector"},
			{Key: "path", Value: "embedding"},
			{Key: "numDimensions", Value: dims},
			{Key: "similarity", Value: "cosine"},
		},
		bson.D{{Key: "type", Value: "filter"}, {Key: "path", Value: "userId"}},
		bson.D{{Key: "type", Value: "filter"}, {Key: "path", Value: "pdfId"}},
	}}}
}

// EnsureIndex creates the vector search index if it does not exist yet.
func (s *Store) EnsureIndex(ctx context.Context, dims int) error {
	cur, err := s.coll.SearchIndexes().List(ctx, options.SearchIndexes().SetName(s.index))
	if err != nil {
		return fmt.Errorf("failed to list search indexes: %w", err)
	}
	defer cur.Close(ctx)
	if cur.Next(ctx) {
		return nil
	}

	_, err = s.coll.SearchIndexes().CreateOne(ctx, mongo.SearchIndexModel{
		Definition: IndexDefinition(dims),
		Options:    options.SearchIndexes().SetName(s.index).SetType("vectorSearch"),
	})
	if err != nil {
		return fmt.Errorf("failed to create search index %s: %w", s.index, err)
	}
	return nil
}

func (s *Store) Write(ctx context.Context, record domain.Record) error {
	if err := vectorstore.CheckRecord(record); err != nil {
		return err
	}
	doc := fromRecord(record)
	// A chunk held by another owner fails the upsert with a duplicate _id.
	filter := bson.D{{Key: "_id", Value: doc.ChunkID}, {Key: "userId", Value: doc.OwnerID}}
	_, err := s.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrChunkOwnerConflict.Wrap(fmt.Errorf("chunk %s", doc.ChunkID))
	}
	if err != nil {
		return storeError(ctx, "write", err)
	}
	return nil
}

// Delete removes the document's records inside a transaction so readers see
// all of them or none.
func (s *Store) Delete(ctx context.Context, ownerID, documentID string) (int64, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return 0, storeError(ctx, "delete", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		r, err := s.coll.DeleteMany(sc, bson.D{
			{Key: "userId", Value: ownerID},
			{Key: "pdfId", Value: documentID},
		})
		if err != nil {
			return nil, err
		}
		return r.DeletedCount, nil
	})
	if err != nil {
		return 0, storeError(ctx, "delete", err)
	}
	return res.(int64), nil
}

// SearchPipeline builds the aggregation for an owner-scoped vector search.
func SearchPipeline(index, ownerID string, query []float32, k, numCandidates int) mongo.Pipeline {
	if numCandidates > maxCandidates {
		numCandidates = maxCandidates
	}
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: index},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: query},
			{Key: "numCandidates", Value: numCandidates},
			{Key: "limit", Value: k},
			{Key: "filter", Value: bson.D{{Key: "userId", Value: bson.D{{Key: "$eq", Value: ownerID}}}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "userId", Value: 1},
			{Key: "pdfId", Value: 1},
			{Key: "sequenceIndex", Value: 1},
			{Key: "textChunk", Value: 1},
			{Key: "metadata", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

func (s *Store) Search(ctx context.Context, ownerID string, query []float32, k, numCandidates int) ([]domain.SearchHit, error) {
	numCandidates, err := vectorstore.SearchArgs(k, numCandidates)
	if err != nil {
		return nil, err
	}

	cur, err := s.coll.Aggregate(ctx, SearchPipeline(s.index, ownerID, query, k, numCandidates))
	if err != nil {
		return nil, storeError(ctx, "search", err)
	}
	var docs []storyEmbedding
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeError(ctx, "search", err)
	}

	hits := make([]domain.SearchHit, 0, len(docs))
	for _, d := range docs {
		hits = append(hits, d.hit())
	}
	return hits, nil
}

func storeError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.FromContextError(ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) {
		return domain.ErrDeadlineExceeded.Wrap(err)
	}
	return domain.ErrStoreUnavailable.Wrap(fmt.Errorf("mongo %s: %w", op, err))
}
