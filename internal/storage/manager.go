// Package storage tracks open vector spaces, keeps the per-source
// fingerprint cache and runs delete-then-add upserts over a pluggable
// backend. Backends live in subpackages; the manager owns everything a
// backend does not need to know about.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/interfaces"
	"github.com/ternarybob/ragserver/internal/models"
)

// DefaultTopK bounds query results when the caller passes no limit.
const DefaultTopK = 10

// boundSpace pairs an open space with the embedder that fills it. The
// mutex serialises upserts into one space; queries read through without
// holding it.
type boundSpace struct {
	key      string
	space    interfaces.VectorSpace
	embedder interfaces.TextEmbedder
	mu       sync.Mutex
}

// Manager implements interfaces.VectorStoreManager over a VectorBackend.
type Manager struct {
	backend     interfaces.VectorBackend
	loadLimit   int
	checkUpdate bool
	logger      arbor.ILogger

	mu        sync.Mutex
	activeKey string
	spaces    map[string]*boundSpace

	// fpCache maps a source to its stored fingerprint. A nil entry means
	// the source was looked up and not found in any loaded space, which
	// keeps SkipUpdate and the upsert filter treating it as new.
	fpCache map[string]*models.Fingerprint
}

// NewManager wraps a backend with space bookkeeping.
func NewManager(backend interfaces.VectorBackend, cfg *common.StoreConfig, logger arbor.ILogger) *Manager {
	return &Manager{
		backend:     backend,
		loadLimit:   cfg.LoadLimit,
		checkUpdate: cfg.CheckUpdate,
		logger:      logger,
		spaces:      make(map[string]*boundSpace),
		fpCache:     make(map[string]*models.Fingerprint),
	}
}

// Name identifies the backend in use.
func (m *Manager) Name() string {
	return m.backend.Name()
}

// LoadSpace opens the collection for spaceKey once, binds the embedder
// to it and primes the fingerprint cache from stored metadata. A key
// that is already loaded is only activated.
func (m *Manager) LoadSpace(ctx context.Context, spaceKey string, embedder interfaces.TextEmbedder) error {
	m.mu.Lock()
	if _, ok := m.spaces[spaceKey]; ok {
		m.activeKey = spaceKey
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	space, err := m.backend.Open(ctx, spaceKey)
	if err != nil {
		return fmt.Errorf("%w: failed to open space %s: %v", common.ErrStore, spaceKey, err)
	}

	m.mu.Lock()
	if _, ok := m.spaces[spaceKey]; !ok {
		m.spaces[spaceKey] = &boundSpace{key: spaceKey, space: space, embedder: embedder}
	}
	m.activeKey = spaceKey
	m.mu.Unlock()

	if err := m.loadFingerprintCache(ctx, space); err != nil {
		return fmt.Errorf("%w: failed to load fingerprint cache: %v", common.ErrStore, err)
	}

	m.mu.Lock()
	cached := len(m.fpCache)
	m.mu.Unlock()
	m.logger.Info().Str("space", spaceKey).Int("sources", cached).Msg("Space loaded, fingerprint cache primed")

	return nil
}

// loadFingerprintCache registers the stored fingerprint of every source
// in the space, bounded by the configured load limit. Sources already
// cached with a real fingerprint are left alone.
func (m *Manager) loadFingerprintCache(ctx context.Context, space interfaces.VectorSpace) error {
	metas, err := space.Get(ctx, m.loadLimit)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meta := range metas {
		source := meta.Source()
		if source == "" {
			continue
		}
		if fp, ok := m.fpCache[source]; ok && fp != nil {
			continue
		}
		fp := models.ExtractFingerprint(meta)
		m.fpCache[source] = &fp
	}
	return nil
}

// ActivateSpace switches the active space. An unloaded key is logged
// and leaves the active space unchanged.
func (m *Manager) ActivateSpace(spaceKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activateLocked(spaceKey)
}

func (m *Manager) activateLocked(spaceKey string) {
	if m.activeKey == spaceKey {
		return
	}
	if _, ok := m.spaces[spaceKey]; !ok {
		m.logger.Error().Str("space", spaceKey).Msg("Space is not loaded")
		return
	}
	m.activeKey = spaceKey
}

// Active returns the currently active space.
func (m *Manager) Active() (interfaces.VectorSpace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bound, ok := m.spaces[m.activeKey]
	if !ok {
		return nil, fmt.Errorf("%w: no active space", common.ErrStore)
	}
	return bound.space, nil
}

// resolve activates spaceKey when given and returns the active bound
// space. Mirroring activation, an unknown key falls back to whatever is
// currently active.
func (m *Manager) resolve(spaceKey string) (*boundSpace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if spaceKey != "" {
		m.activateLocked(spaceKey)
	}
	bound, ok := m.spaces[m.activeKey]
	if !ok {
		return nil, fmt.Errorf("%w: no active space", common.ErrStore)
	}
	return bound, nil
}

// SkipUpdate reports whether source already has a stored fingerprint
// and update checking is disabled. Loaders use it to avoid re-reading
// unchanged sources entirely.
func (m *Manager) SkipUpdate(source string) bool {
	if m.checkUpdate {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fpCache[source] != nil
}

// filterByFingerprint drops documents whose source carries the same
// fingerprint as the stored one. Sources without a cached fingerprint
// always pass, as do fingerprint-less sources such as URLs.
func (m *Manager) filterByFingerprint(docs []models.Document) []models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	filtered := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		source := doc.Metadata.Source()
		if source == "" {
			filtered = append(filtered, doc)
			continue
		}
		stored, ok := m.fpCache[source]
		if !ok || stored == nil {
			filtered = append(filtered, doc)
			continue
		}
		current := models.ExtractFingerprint(doc.Metadata)
		if stored.Equals(current) {
			m.logger.Info().Str("source", source).Msg("Skip document: identical fingerprint")
			continue
		}
		filtered = append(filtered, doc)
	}
	return filtered
}

// Upsert embeds text documents with the space's embedder and writes
// them, replacing any rows under the same ids. The fingerprint filter
// runs first, so unchanged files cost nothing, and written sources are
// re-read from the store to extend the fingerprint cache. An embedding
// batch that comes back short is logged and skipped rather than
// failing ingest.
func (m *Manager) Upsert(ctx context.Context, docs []models.Document, spaceKey string) ([]string, error) {
	if len(docs) == 0 {
		m.logger.Info().Msg("Upsert called with no documents")
		return nil, nil
	}

	bound, err := m.resolve(spaceKey)
	if err != nil {
		return nil, err
	}

	bound.mu.Lock()
	defer bound.mu.Unlock()

	docs = m.filterByFingerprint(docs)
	if len(docs) == 0 {
		m.logger.Info().Msg("Skip upsert: all documents already stored")
		return nil, nil
	}

	payloads := make([]string, len(docs))
	metas := make([]models.Metadata, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		payloads[i] = doc.PageContent
		metas[i] = doc.Metadata
		ids[i] = doc.Metadata.ID()
	}

	vecs, err := bound.embedder.EmbedDocuments(ctx, payloads)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(docs) {
		m.logger.Warn().Int("docs", len(docs)).Int("vecs", len(vecs)).Msg("Skip upsert: embedding batch failed")
		return nil, nil
	}

	if err := bound.space.Delete(ctx, ids); err != nil {
		return nil, fmt.Errorf("%w: failed to delete existing documents: %v", common.ErrStore, err)
	}
	if err := bound.space.AddEmbeddings(ctx, payloads, vecs, metas, ids); err != nil {
		return nil, fmt.Errorf("%w: failed to add documents: %v", common.ErrStore, err)
	}

	m.registerFingerprints(ctx, docs)

	return ids, nil
}

// UpsertMulti embeds image documents, whose payload is a local image
// path, and writes them like Upsert. Temp images produced by loaders
// are removed afterwards whatever the outcome, and written sources are
// re-read from the store to extend the fingerprint cache.
func (m *Manager) UpsertMulti(ctx context.Context, docs []models.Document, spaceKey string) ([]string, error) {
	if len(docs) == 0 {
		m.logger.Info().Msg("UpsertMulti called with no documents")
		return nil, nil
	}

	bound, err := m.resolve(spaceKey)
	if err != nil {
		return nil, err
	}

	embedder, ok := bound.embedder.(interfaces.MultimodalEmbedder)
	if !ok {
		return nil, fmt.Errorf("%w: embedder %s does not support images", common.ErrEmbed, bound.embedder.Name())
	}

	bound.mu.Lock()
	defer bound.mu.Unlock()

	docs = m.filterByFingerprint(docs)
	if len(docs) == 0 {
		m.logger.Info().Msg("Skip upsert: all documents already stored")
		return nil, nil
	}

	uris := make([]string, len(docs))
	metas := make([]models.Metadata, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		uris[i] = doc.PageContent
		metas[i] = doc.Metadata
		ids[i] = doc.Metadata.ID()
	}
	defer m.removeTempImages(uris)

	vecs, err := embedder.EmbedImage(ctx, uris)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(docs) {
		m.logger.Warn().Int("docs", len(docs)).Int("vecs", len(vecs)).Msg("Skip upsert: image embedding batch failed")
		return nil, nil
	}

	if err := bound.space.Delete(ctx, ids); err != nil {
		return nil, fmt.Errorf("%w: failed to delete existing documents: %v", common.ErrStore, err)
	}
	if err := bound.space.AddEmbeddings(ctx, uris, vecs, metas, ids); err != nil {
		return nil, fmt.Errorf("%w: failed to add documents: %v", common.ErrStore, err)
	}

	m.registerFingerprints(ctx, docs)

	return ids, nil
}

// removeTempImages unlinks loader-produced temp files among uris.
// Anything not named with the temp prefix is left in place.
func (m *Manager) removeTempImages(uris []string) {
	for _, uri := range uris {
		if !strings.HasPrefix(filepath.Base(uri), common.TempFilePrefix) {
			continue
		}
		st, err := os.Stat(uri)
		if err != nil || st.IsDir() {
			continue
		}
		if err := os.Remove(uri); err != nil {
			m.logger.Warn().Err(err).Str("path", uri).Msg("Failed to remove temp image")
		}
	}
}

// registerFingerprints extends the cache with the authoritative stored
// fingerprint of each new source. Failures here must not undo a
// successful upsert, so lookups only log.
func (m *Manager) registerFingerprints(ctx context.Context, docs []models.Document) {
	for _, doc := range docs {
		source := doc.Metadata.Source()
		if source == "" {
			continue
		}

		m.mu.Lock()
		_, seen := m.fpCache[source]
		m.mu.Unlock()
		if seen {
			continue
		}

		fp := m.lookupFingerprint(ctx, source)
		m.mu.Lock()
		m.fpCache[source] = fp
		m.mu.Unlock()
	}
}

// lookupFingerprint reads the stored fingerprint of source from the
// first loaded space that holds it, or nil when no space does. Chunks
// of one file share a fingerprint, so any hit is representative.
func (m *Manager) lookupFingerprint(ctx context.Context, source string) *models.Fingerprint {
	m.mu.Lock()
	bounds := make([]*boundSpace, 0, len(m.spaces))
	for _, b := range m.spaces {
		bounds = append(bounds, b)
	}
	m.mu.Unlock()

	for _, b := range bounds {
		metas, err := b.space.Get(ctx, m.loadLimit)
		if err != nil {
			m.logger.Warn().Err(err).Str("space", b.key).Msg("Failed to read space during fingerprint lookup")
			continue
		}
		for _, meta := range metas {
			if meta.Source() == source {
				fp := models.ExtractFingerprint(meta)
				return &fp
			}
		}
	}
	return nil
}

// Query runs a similarity search against the active space. An empty
// vector, produced by an embedder whose backend failed, returns no
// results rather than an error so callers degrade gracefully.
func (m *Manager) Query(ctx context.Context, vec []float32, topk int, filter models.Metadata, spaceKey string) ([]models.Document, error) {
	bound, err := m.resolve(spaceKey)
	if err != nil {
		return nil, err
	}

	if len(vec) == 0 {
		m.logger.Warn().Msg("Query called with an empty vector")
		return []models.Document{}, nil
	}
	if topk <= 0 {
		topk = DefaultTopK
	}

	docs, err := bound.space.Query(ctx, vec, topk, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: query failed: %v", common.ErrStore, err)
	}
	return docs, nil
}

// Close releases the backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}
