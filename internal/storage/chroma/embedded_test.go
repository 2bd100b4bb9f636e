package chroma

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/interfaces"
	"github.com/ternarybob/ragserver/internal/models"
)

func newEmbeddedBackend(t *testing.T) *Backend {
	t.Helper()

	cfg := &common.ChromaConfig{PersistDir: t.TempDir()}
	backend, err := New(cfg, arbor.NewLogger())
	if err != nil {
		t.Fatalf("failed to open embedded backend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend
}

func addRecord(t *testing.T, space interfaces.VectorSpace, id, payload string, vec []float32, meta models.Metadata) {
	t.Helper()

	if meta == nil {
		meta = models.Metadata{}
	}
	meta[models.MetaID] = id
	err := space.AddEmbeddings(context.Background(), []string{payload}, [][]float32{vec}, []models.Metadata{meta}, []string{id})
	assert.NoError(t, err)
}

func TestEmbeddedAddGetDelete(t *testing.T) {
	backend := newEmbeddedBackend(t)
	ctx := context.Background()

	space, err := backend.Open(ctx, "local__clip__text")
	assert.NoError(t, err)

	addRecord(t, space, "id-1", "hello", []float32{1, 0}, models.Metadata{models.MetaSource: "/tmp/a.txt"})
	addRecord(t, space, "id-2", "world", []float32{0, 1}, models.Metadata{models.MetaSource: "/tmp/b.txt"})

	metas, err := space.Get(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, metas, 2)

	sources := map[string]bool{}
	for _, meta := range metas {
		sources[meta.Source()] = true
	}
	assert.True(t, sources["/tmp/a.txt"])
	assert.True(t, sources["/tmp/b.txt"])

	// Unknown ids are ignored.
	assert.NoError(t, space.Delete(ctx, []string{"id-1", "missing"}))

	metas, err = space.Get(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, metas, 1)
	assert.Equal(t, "/tmp/b.txt", metas[0].Source())
}

func TestEmbeddedGetHonoursLimit(t *testing.T) {
	backend := newEmbeddedBackend(t)
	ctx := context.Background()

	space, err := backend.Open(ctx, "space")
	assert.NoError(t, err)

	for _, id := range []string{"id-1", "id-2", "id-3"} {
		addRecord(t, space, id, "text", []float32{1, 0}, nil)
	}

	metas, err := space.Get(ctx, 2)
	assert.NoError(t, err)
	assert.Len(t, metas, 2)
}

func TestEmbeddedQueryRanksByCosine(t *testing.T) {
	backend := newEmbeddedBackend(t)
	ctx := context.Background()

	space, err := backend.Open(ctx, "space")
	assert.NoError(t, err)

	addRecord(t, space, "id-east", "east", []float32{1, 0}, nil)
	addRecord(t, space, "id-north", "north", []float32{0, 1}, nil)
	addRecord(t, space, "id-diag", "diagonal", []float32{0.7071, 0.7071}, nil)

	docs, err := space.Query(ctx, []float32{1, 0}, 2, nil)
	assert.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, "east", docs[0].PageContent)
	assert.Equal(t, "diagonal", docs[1].PageContent)
}

func TestEmbeddedQueryFilter(t *testing.T) {
	backend := newEmbeddedBackend(t)
	ctx := context.Background()

	space, err := backend.Open(ctx, "space")
	assert.NoError(t, err)

	addRecord(t, space, "id-1", "text doc", []float32{1, 0}, models.Metadata{models.MetaEmbedType: "text"})
	addRecord(t, space, "id-2", "image doc", []float32{1, 0}, models.Metadata{models.MetaEmbedType: "image"})

	docs, err := space.Query(ctx, []float32{1, 0}, 10, models.Metadata{models.MetaEmbedType: "image"})
	assert.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, "image doc", docs[0].PageContent)
}

func TestEmbeddedSpacesShareIDsWithoutClashes(t *testing.T) {
	backend := newEmbeddedBackend(t)
	ctx := context.Background()

	textSpace, err := backend.Open(ctx, "model__text")
	assert.NoError(t, err)
	imageSpace, err := backend.Open(ctx, "model__image")
	assert.NoError(t, err)

	addRecord(t, textSpace, "id-1", "text payload", []float32{1, 0}, nil)
	addRecord(t, imageSpace, "id-1", "/tmp/img.png", []float32{0, 1}, nil)

	// Deleting in one space leaves the twin id in the other alone.
	assert.NoError(t, textSpace.Delete(ctx, []string{"id-1"}))

	metas, err := imageSpace.Get(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, metas, 1)
}

func TestEmbeddedPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	logger := arbor.NewLogger()

	backend, err := New(&common.ChromaConfig{PersistDir: dir}, logger)
	assert.NoError(t, err)

	space, err := backend.Open(ctx, "space")
	assert.NoError(t, err)
	addRecord(t, space, "id-1", "persisted", []float32{1, 0}, models.Metadata{models.MetaSource: "/tmp/a.txt"})
	assert.NoError(t, backend.Close())

	reopened, err := New(&common.ChromaConfig{PersistDir: dir}, logger)
	assert.NoError(t, err)
	defer reopened.Close()

	space, err = reopened.Open(ctx, "space")
	assert.NoError(t, err)
	metas, err := space.Get(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, metas, 1)
	assert.Equal(t, "/tmp/a.txt", metas[0].Source())
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{1, 0}, want: 0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: 2},
		{name: "mismatched dims", a: []float32{1, 0}, b: []float32{1}, want: 2},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineDistance(tt.a, tt.b), 1e-9)
		})
	}
}

func TestMatchesFilter(t *testing.T) {
	meta := models.Metadata{
		models.MetaSource: "/tmp/a.txt",
		models.MetaPage:   int64(3),
	}

	assert.True(t, matchesFilter(meta, nil))
	assert.True(t, matchesFilter(meta, models.Metadata{models.MetaSource: "/tmp/a.txt"}))
	assert.False(t, matchesFilter(meta, models.Metadata{models.MetaSource: "/tmp/b.txt"}))
	assert.False(t, matchesFilter(meta, models.Metadata{"missing": "x"}))

	// Numeric forms compare by value, matching how JSON round-trips
	// widen integers.
	assert.True(t, matchesFilter(meta, models.Metadata{models.MetaPage: float64(3)}))
	assert.True(t, matchesFilter(meta, models.Metadata{models.MetaPage: 3}))
}

func TestBackendModeSelection(t *testing.T) {
	logger := arbor.NewLogger()

	t.Run("missing options", func(t *testing.T) {
		_, err := New(&common.ChromaConfig{}, logger)
		assert.ErrorIs(t, err, common.ErrConfig)
	})

	t.Run("server mode", func(t *testing.T) {
		backend, err := New(&common.ChromaConfig{Host: "localhost", Port: 9000}, logger)
		assert.NoError(t, err)
		defer backend.Close()
		assert.Nil(t, backend.store)
		assert.NotNil(t, backend.rest)
	})

	t.Run("cloud mode", func(t *testing.T) {
		backend, err := New(&common.ChromaConfig{APIKey: "key", Tenant: "team", Database: "db"}, logger)
		assert.NoError(t, err)
		defer backend.Close()
		assert.NotNil(t, backend.rest)
		assert.Equal(t, CloudBaseURL, backend.rest.baseURL)
	})

	t.Run("persist dir wins", func(t *testing.T) {
		backend, err := New(&common.ChromaConfig{PersistDir: t.TempDir(), Host: "localhost"}, logger)
		assert.NoError(t, err)
		defer backend.Close()
		assert.NotNil(t, backend.store)
		assert.Nil(t, backend.rest)
	})
}
