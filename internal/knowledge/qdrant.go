package knowledge

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/converseai/converse/internal/config"
	"github.com/converseai/converse/internal/embeddings"
)

const maxGrpcRecvSize = 16 * 1024 * 1024

// QdrantStore is the Qdrant-backed knowledge store. Points are
// content-addressed: the id is derived from the raw text, so re-adding
// identical text overwrites instead of duplicating.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimensions uint64
	embedder   embeddings.Embedder
	timeout    time.Duration
	logger     *slog.Logger
}

// NewQdrantStore connects to Qdrant over gRPC and ensures the collection.
func NewQdrantStore(log *slog.Logger, cfg config.QdrantConfig, embedder embeddings.Embedder) (*QdrantStore, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxGrpcRecvSize)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	store := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimensions: uint64(embedder.Dimensions()),
		embedder:   embedder,
		timeout:    timeout,
		logger:     log.With(slog.String("service", "knowledge")),
	}
	return store, nil
}

// EnsureCollection creates the cosine-distance collection when missing.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection: %v", ErrRetrievalUnavailable, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection: %v", ErrRetrievalUnavailable, err)
	}
	s.logger.Info("knowledge collection created",
		slog.String("collection", s.collection),
		slog.Uint64("dimensions", s.dimensions))
	return nil
}

// AddDocuments embeds and upserts raw texts with a source tag. Returns the
// number of documents written.
func (s *QdrantStore) AddDocuments(ctx context.Context, texts []string, source string) (int, error) {
	if err := s.EnsureCollection(ctx); err != nil {
		return 0, err
	}
	addedAt := time.Now().UTC().Format(time.RFC3339)
	points := make([]*qdrant.PointStruct, 0, len(texts))
	for _, text := range texts {
		vector, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return 0, fmt.Errorf("embed document: %w", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(contentID(text)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocument: text,
				payloadSource:   source,
				payloadAddedAt:  addedAt,
			}),
		})
	}

	upsertCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.client.Upsert(upsertCtx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: upsert points: %v", ErrRetrievalUnavailable, err)
	}
	s.logger.Info("documents added to knowledge base",
		slog.Int("count", len(points)),
		slog.String("source", source))
	return len(points), nil
}

// Search runs a cosine nearest-neighbor query and returns up to limit
// documents in descending similarity order.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query points: %v", ErrRetrievalUnavailable, err)
	}

	docs := make([]Document, 0, len(points))
	for _, point := range points {
		docs = append(docs, Document{
			Text:    point.Payload[payloadDocument].GetStringValue(),
			Source:  point.Payload[payloadSource].GetStringValue(),
			AddedAt: point.Payload[payloadAddedAt].GetStringValue(),
			Score:   point.Score,
		})
	}
	return docs, nil
}

// Wipe drops and recreates the collection.
func (s *QdrantStore) Wipe(ctx context.Context) error {
	deleteCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.DeleteCollection(deleteCtx, s.collection); err != nil {
		return fmt.Errorf("%w: delete collection: %v", ErrRetrievalUnavailable, err)
	}
	return s.EnsureCollection(ctx)
}

// Healthy reports whether Qdrant answers a health probe.
func (s *QdrantStore) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}
	return nil
}

// contentID derives a deterministic UUID point id from the raw text, keeping
// the store content-addressed.
func contentID(text string) string {
	sum := md5.Sum([]byte(text))
	return uuid.UUID(sum).String()
}
