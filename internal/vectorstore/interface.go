// Package vectorstore provides the embedding index behind document partitions.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Document is a unit of text stored in a collection.
type Document struct {
	// ID is the unique identifier within the collection.
	ID string

	// Content is the text content.
	Content string

	// Metadata holds retrieval metadata (source, title).
	Metadata map[string]string
}

// Result is a similarity search hit.
type Result struct {
	ID string

	Content string

	// Similarity is the cosine similarity to the query (higher = closer).
	Similarity float32

	Metadata map[string]string
}

// Store is the interface for collection-addressed vector storage.
//
// Every operation names its collection explicitly; collections are the
// isolation boundary between partitions. Implementations must be safe for
// concurrent use across distinct collections. Concurrent writes to the same
// collection keep documents from all writers (no dedup, no interleaving
// guarantee beyond the backend's own).
type Store interface {
	// AddDocuments embeds and appends documents to a collection, creating
	// the collection on first use. Returns the stored document IDs.
	AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error)

	// Query returns up to k documents from the collection ranked by
	// similarity to the query text. Returns ErrCollectionNotFound when the
	// collection has never been written.
	Query(ctx context.Context, collection string, query string, k int) ([]Result, error)

	// ListCollections returns the names of all collections in the store.
	ListCollections(ctx context.Context) ([]string, error)

	// CollectionExists reports whether a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// Close releases store resources.
	Close() error
}
