// Package partition implements the per-user, per-project document store.
//
// A partition is one named collection in the shared vector store; the
// namespace package guarantees that collections from different users can
// never collide. Partitions are created implicitly on first add and persist
// indefinitely.
package partition

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/k0luchiy/LumeNote/internal/namespace"
	"github.com/k0luchiy/LumeNote/internal/vectorstore"
)

// DefaultTopK is the retrieval depth used by job bodies.
const DefaultTopK = 4

// Chunk is the stored unit: a bounded text span plus retrieval metadata.
type Chunk struct {
	// Text is the chunk content.
	Text string

	// Source identifies the origin document (file name, URL).
	Source string

	// Title is a human-readable label for the origin, may be empty.
	Title string
}

// Service provides access to document partitions.
//
// The underlying store handle is process-wide: constructed once at startup
// and shared by every caller. Retrieval consults the store at call time, so
// it observes whatever has been committed so far; there is no ordering
// guarantee relative to in-flight ingestion jobs.
type Service struct {
	store  vectorstore.Store
	logger *zap.Logger
}

// NewService creates a partition service over the given store.
func NewService(store vectorstore.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}, nil
}

// Add appends chunks to the user's project partition, creating the partition
// on first use. Returns the number of chunks added.
//
// Every chunk gets a fresh ID: re-adding the same document duplicates its
// chunks. Content-hash dedup is deliberately not performed (see DESIGN.md).
func (s *Service) Add(ctx context.Context, userID int64, project string, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no chunks to add")
	}

	collection := namespace.Resolve(userID, project)

	docs := make([]vectorstore.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vectorstore.Document{
			ID:      uuid.New().String(),
			Content: c.Text,
			Metadata: map[string]string{
				"source": c.Source,
				"title":  c.Title,
			},
		}
	}

	if _, err := s.store.AddDocuments(ctx, collection, docs); err != nil {
		return 0, fmt.Errorf("adding chunks to partition %s: %w", collection, err)
	}

	s.logger.Info("chunks added to partition",
		zap.String("collection", collection),
		zap.Int64("user_id", userID),
		zap.Int("count", len(chunks)),
	)

	return len(chunks), nil
}

// Retrieve returns up to k chunks ranked by similarity to the query.
//
// A partition that does not exist yet yields an empty slice, never an error:
// questions asked before the first ingestion completes simply see nothing.
func (s *Service) Retrieve(ctx context.Context, userID int64, project string, query string, k int) ([]Chunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	collection := namespace.Resolve(userID, project)

	results, err := s.store.Query(ctx, collection, query, k)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return []Chunk{}, nil
		}
		return nil, fmt.Errorf("retrieving from partition %s: %w", collection, err)
	}

	chunks := make([]Chunk, len(results))
	for i, r := range results {
		chunks[i] = Chunk{
			Text:   r.Content,
			Source: r.Metadata["source"],
			Title:  r.Metadata["title"],
		}
	}
	return chunks, nil
}

// ListProjects returns the project slugs belonging to a user, derived from
// the global collection list.
//
// A fresh or unreachable store degrades to an empty set so a new deployment
// answers "no projects" instead of failing.
func (s *Service) ListProjects(ctx context.Context, userID int64) []string {
	names, err := s.store.ListCollections(ctx)
	if err != nil {
		s.logger.Warn("listing collections failed, reporting no projects",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return []string{}
	}

	projects := make([]string, 0, len(names))
	for _, name := range names {
		slug, ok := namespace.DisplaySlug(name, userID)
		if !ok || slug == "" {
			continue
		}
		projects = append(projects, slug)
	}
	return projects
}

// Exists reports whether the user's project partition has been created.
func (s *Service) Exists(ctx context.Context, userID int64, project string) (bool, error) {
	return s.store.CollectionExists(ctx, namespace.Resolve(userID, project))
}
