package interfaces

import (
	"context"

	"github.com/ternarybob/ragserver/internal/models"
)

// VectorSpace is one open collection in a vector store backend.
type VectorSpace interface {
	// Get returns up to limit metadata records from the collection.
	Get(ctx context.Context, limit int) ([]models.Metadata, error)

	// Delete removes the given ids. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// AddEmbeddings writes vectors with their payloads and metadata
	// under the given ids. All four slices share one length.
	AddEmbeddings(ctx context.Context, payloads []string, vecs [][]float32, metas []models.Metadata, ids []string) error

	// Query returns the k nearest documents by cosine distance,
	// optionally filtered by metadata equality.
	Query(ctx context.Context, vec []float32, k int, filter models.Metadata) ([]models.Document, error)
}

// VectorBackend opens collections for a concrete vector store.
type VectorBackend interface {
	// Name identifies the backend ("chroma", "pgvector").
	Name() string

	// Open creates or attaches the collection for spaceKey.
	Open(ctx context.Context, spaceKey string) (VectorSpace, error)

	// Close releases connections and storage handles.
	Close() error
}

// VectorStoreManager tracks open spaces, enforces fingerprint-idempotent
// upserts and serves similarity queries. A spaceKey argument of "" means
// the currently active space.
type VectorStoreManager interface {
	// Name identifies the backend in use.
	Name() string

	// LoadSpace opens the space once and primes its fingerprint cache;
	// later calls for the same key reuse the open handle. The embedder
	// becomes the space's embedding function for upserts.
	LoadSpace(ctx context.Context, spaceKey string, embedder TextEmbedder) error

	// ActivateSpace switches the active space to a loaded key.
	ActivateSpace(spaceKey string)

	// Active returns the currently active space.
	Active() (VectorSpace, error)

	// Upsert embeds and writes text documents, dropping those whose
	// source fingerprint is already stored. Returns the written ids.
	Upsert(ctx context.Context, docs []models.Document, spaceKey string) ([]string, error)

	// UpsertMulti embeds and writes image documents whose payload is a
	// local image path. Temp images are removed afterwards.
	UpsertMulti(ctx context.Context, docs []models.Document, spaceKey string) ([]string, error)

	// Query runs a similarity search with an embedded query vector.
	Query(ctx context.Context, vec []float32, topk int, filter models.Metadata, spaceKey string) ([]models.Document, error)

	// SkipUpdate reports whether source is already known and update
	// checking is off, letting loaders skip re-reads entirely.
	SkipUpdate(source string) bool

	// Close releases the backend.
	Close() error
}
