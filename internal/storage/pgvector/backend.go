// Package pgvector implements the Postgres vector store backend over
// pgx and the pgvector extension. Collections map to rows in a
// collections table; embeddings live in one shared table keyed by
// (collection, id), with cosine distance served by the <=> operator.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/interfaces"
	"github.com/ternarybob/ragserver/internal/models"
)

// Backend owns the connection pool shared by all spaces.
type Backend struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, cfg *common.PGConfig, logger arbor.ILogger) (*Backend, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password), cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	b := &Backend{pool: pool, logger: logger}
	if err := b.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("database", cfg.Database).Msg("PGVector started")
	return b, nil
}

// ensureSchema creates the extension and tables when missing. The
// embedding column stays untyped so one table serves models of any
// dimension; queries scan exactly, which the per-space load limit keeps
// affordable.
func (b *Backend) ensureSchema(ctx context.Context) error {
	const statements = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS ragserver_collections (
	uuid UUID PRIMARY KEY,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS ragserver_embeddings (
	id TEXT NOT NULL,
	collection_id UUID NOT NULL REFERENCES ragserver_collections(uuid) ON DELETE CASCADE,
	embedding vector NOT NULL,
	payload TEXT NOT NULL,
	metadata JSONB,
	PRIMARY KEY (collection_id, id)
);

CREATE INDEX IF NOT EXISTS ragserver_embeddings_collection_idx
	ON ragserver_embeddings (collection_id);
`
	if _, err := b.pool.Exec(ctx, statements); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Name identifies the backend.
func (b *Backend) Name() string {
	return common.StorePgVector
}

// Open creates or attaches the collection row for spaceKey.
func (b *Backend) Open(ctx context.Context, spaceKey string) (interfaces.VectorSpace, error) {
	var id string
	err := b.pool.QueryRow(ctx,
		`INSERT INTO ragserver_collections (uuid, name) VALUES ($1::uuid, $2)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING uuid::text`,
		uuid.NewString(), spaceKey).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", spaceKey, err)
	}

	return &space{pool: b.pool, collectionID: id, key: spaceKey}, nil
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

// space is one collection in the shared embeddings table.
type space struct {
	pool         *pgxpool.Pool
	collectionID string
	key          string
}

// Get returns up to limit metadata records, ordered by id for stable
// fingerprint cache loads.
func (s *space) Get(ctx context.Context, limit int) ([]models.Metadata, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT metadata FROM ragserver_embeddings
		 WHERE collection_id = $1::uuid
		 ORDER BY id
		 LIMIT $2`,
		s.collectionID, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to select metadata: %w", err)
	}
	defer rows.Close()

	var metas []models.Metadata
	for rows.Next() {
		var meta models.Metadata
		if err := rows.Scan(&meta); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metadata: %w", err)
	}
	return metas, nil
}

// Delete removes the given ids. Unknown ids are ignored.
func (s *space) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM ragserver_embeddings WHERE collection_id = $1::uuid AND id = ANY($2)`,
		s.collectionID, ids)
	if err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// AddEmbeddings writes one row per id inside a transaction, replacing
// existing rows.
func (s *space) AddEmbeddings(ctx context.Context, payloads []string, vecs [][]float32, metas []models.Metadata, ids []string) error {
	if len(payloads) != len(vecs) || len(payloads) != len(metas) || len(payloads) != len(ids) {
		return fmt.Errorf("mismatched batch: %d payloads, %d vectors, %d metadatas, %d ids",
			len(payloads), len(vecs), len(metas), len(ids))
	}
	if len(payloads) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, id := range ids {
		metadata, err := json.Marshal(metas[i])
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", id, err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO ragserver_embeddings (id, collection_id, embedding, payload, metadata)
			 VALUES ($1, $2::uuid, $3, $4, $5::jsonb)
			 ON CONFLICT (collection_id, id) DO UPDATE
			 SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload, metadata = EXCLUDED.metadata`,
			id, s.collectionID, pgvector.NewVector(vecs[i]), payloads[i], string(metadata)); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query returns the k nearest documents by cosine distance, optionally
// narrowed by metadata containment.
func (s *space) Query(ctx context.Context, vec []float32, k int, filter models.Metadata) ([]models.Document, error) {
	const baseQuery = `
SELECT payload, metadata FROM ragserver_embeddings
WHERE collection_id = $1::uuid
ORDER BY embedding <=> $2
LIMIT $3`
	const filteredQuery = `
SELECT payload, metadata FROM ragserver_embeddings
WHERE collection_id = $1::uuid AND metadata @> $4::jsonb
ORDER BY embedding <=> $2
LIMIT $3`

	query := baseQuery
	args := []any{s.collectionID, pgvector.NewVector(vec), k}
	if len(filter) > 0 {
		f, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
		query = filteredQuery
		args = append(args, string(f))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0, k)
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.PageContent, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if doc.Metadata == nil {
			doc.Metadata = models.Metadata{}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}
