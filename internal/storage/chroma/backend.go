// Package chroma implements the chroma vector store backend in three
// connection modes: embedded on local disk, remote server, and cloud.
// The embedded mode persists through badgerhold and answers similarity
// queries with an exact cosine scan; server and cloud speak the chroma
// REST API.
package chroma

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/httpclient"
	"github.com/ternarybob/ragserver/internal/interfaces"
)

const (
	// DefaultServerPort is used when server mode has no port configured.
	DefaultServerPort = 8000

	// CloudBaseURL is the chroma cloud API endpoint.
	CloudBaseURL = "https://api.trychroma.com"

	// Single-node servers keep collections under the default tenant.
	DefaultTenant   = "default_tenant"
	DefaultDatabase = "default_database"
)

// Backend opens chroma collections. Exactly one of store or rest is set,
// depending on the configured connection mode.
type Backend struct {
	logger arbor.ILogger

	store *badgerhold.Store
	rest  *restClient
}

// New selects the connection mode from config: a persist directory wins,
// then a server host, then cloud credentials.
func New(cfg *common.ChromaConfig, logger arbor.ILogger) (*Backend, error) {
	switch {
	case cfg.PersistDir != "":
		if err := os.MkdirAll(cfg.PersistDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}

		options := badgerhold.DefaultOptions
		options.Dir = cfg.PersistDir
		options.ValueDir = cfg.PersistDir
		options.Logger = nil // Disable default badger logger to use arbor

		store, err := badgerhold.Open(options)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedded store: %w", err)
		}

		logger.Info().Str("dir", cfg.PersistDir).Msg("Chroma started: embedded mode")
		return &Backend{logger: logger, store: store}, nil

	case cfg.Host != "":
		port := cfg.Port
		if port <= 0 {
			port = DefaultServerPort
		}
		base := fmt.Sprintf("http://%s:%d", cfg.Host, port)

		logger.Info().Str("host", cfg.Host).Int("port", port).Msg("Chroma started: server mode")
		return &Backend{logger: logger, rest: newRESTClient(base, "", DefaultTenant, DefaultDatabase, logger)}, nil

	case cfg.APIKey != "" && cfg.Tenant != "" && cfg.Database != "":
		logger.Info().Str("tenant", cfg.Tenant).Str("database", cfg.Database).Msg("Chroma started: cloud mode")
		return &Backend{logger: logger, rest: newRESTClient(CloudBaseURL, cfg.APIKey, cfg.Tenant, cfg.Database, logger)}, nil

	default:
		return nil, fmt.Errorf("%w: chroma requires a persist_dir, a host, or cloud credentials", common.ErrConfig)
	}
}

// Name identifies the backend.
func (b *Backend) Name() string {
	return common.StoreChroma
}

// Open creates or attaches the collection for spaceKey.
func (b *Backend) Open(ctx context.Context, spaceKey string) (interfaces.VectorSpace, error) {
	if b.store != nil {
		return &embeddedSpace{store: b.store, key: spaceKey, logger: b.logger}, nil
	}
	return b.rest.openCollection(ctx, spaceKey)
}

// Close releases the embedded database. Remote modes hold no
// connections worth closing.
func (b *Backend) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

// restHTTPClient builds the client REST spaces send through. Store
// calls are coarse batch operations, so the pacing only guards against
// runaway loops.
func restHTTPClient(logger arbor.ILogger) *httpclient.Client {
	return httpclient.NewClient(
		httpclient.WithLogger(logger),
		httpclient.WithRateLimit(100),
	)
}
