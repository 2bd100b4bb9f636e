package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/interfaces"
	"github.com/ternarybob/ragserver/internal/models"
)

type fakeStore struct {
	loadedSpaces []string
	loadErr      map[string]error
	upsertErr    error
	ops          []string
}

func (f *fakeStore) Name() string { return "fake" }

func (f *fakeStore) LoadSpace(_ context.Context, spaceKey string, _ interfaces.TextEmbedder) error {
	if err := f.loadErr[spaceKey]; err != nil {
		return err
	}
	f.loadedSpaces = append(f.loadedSpaces, spaceKey)
	return nil
}

func (f *fakeStore) ActivateSpace(string) {}

func (f *fakeStore) Active() (interfaces.VectorSpace, error) { return nil, nil }

func (f *fakeStore) Upsert(_ context.Context, docs []models.Document, spaceKey string) ([]string, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.ops = append(f.ops, "text:"+spaceKey)
	return make([]string, len(docs)), nil
}

func (f *fakeStore) UpsertMulti(_ context.Context, docs []models.Document, spaceKey string) ([]string, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.ops = append(f.ops, "multi:"+spaceKey)
	return make([]string, len(docs)), nil
}

func (f *fakeStore) Query(context.Context, []float32, int, models.Metadata, string) ([]models.Document, error) {
	return nil, nil
}

func (f *fakeStore) SkipUpdate(string) bool { return false }

func (f *fakeStore) Close() error { return nil }

type fakeTextEmbedder struct{}

func (fakeTextEmbedder) Name() string { return "fake" }

func (fakeTextEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, nil
}

func (fakeTextEmbedder) EmbedQuery(context.Context, string) ([]float32, error) { return nil, nil }

func (fakeTextEmbedder) SpaceKeyText() string { return "fake__model__text" }

type fakeMultiEmbedder struct{ fakeTextEmbedder }

func (fakeMultiEmbedder) EmbedImage(context.Context, []string) ([][]float32, error) {
	return nil, nil
}

func (fakeMultiEmbedder) EmbedTextForImageQuery(context.Context, string) ([]float32, error) {
	return nil, nil
}

func (fakeMultiEmbedder) SpaceKeyMulti() string { return "fake__model__image" }

type fakeFileLoader struct {
	textDocs  []models.Document
	imageDocs []models.Document
	err       error

	gotRoot     string
	gotSpaceKey string
	gotMultiKey string
}

func (f *fakeFileLoader) LoadFromPath(_ context.Context, root, spaceKey, spaceKeyMulti string) ([]models.Document, []models.Document, error) {
	f.gotRoot, f.gotSpaceKey, f.gotMultiKey = root, spaceKey, spaceKeyMulti
	return f.textDocs, f.imageDocs, f.err
}

func (f *fakeFileLoader) LoadFromPathList(_ context.Context, listPath, spaceKey, spaceKeyMulti string) ([]models.Document, []models.Document, error) {
	f.gotRoot, f.gotSpaceKey, f.gotMultiKey = listPath, spaceKey, spaceKeyMulti
	return f.textDocs, f.imageDocs, f.err
}

type fakeHTMLLoader struct {
	textDocs []models.Document
	err      error

	gotURL      string
	gotSpaceKey string
	gotMultiKey string
}

func (f *fakeHTMLLoader) LoadFromURL(_ context.Context, url, spaceKey, spaceKeyMulti string) ([]models.Document, []models.Document, error) {
	f.gotURL, f.gotSpaceKey, f.gotMultiKey = url, spaceKey, spaceKeyMulti
	return f.textDocs, nil, f.err
}

func (f *fakeHTMLLoader) LoadFromURLList(_ context.Context, listPath, spaceKey, spaceKeyMulti string) ([]models.Document, []models.Document, error) {
	f.gotURL, f.gotSpaceKey, f.gotMultiKey = listPath, spaceKey, spaceKeyMulti
	return f.textDocs, nil, f.err
}

func docs(n int) []models.Document {
	out := make([]models.Document, n)
	for i := range out {
		out[i] = models.Document{PageContent: "doc", Metadata: models.Metadata{}}
	}
	return out
}

func TestFromPathTextOnly(t *testing.T) {
	store := &fakeStore{}
	files := &fakeFileLoader{textDocs: docs(2)}
	s := New(store, fakeTextEmbedder{}, files, nil, arbor.NewLogger())

	err := s.FromPath(context.Background(), "/data")

	assert.NoError(t, err)
	assert.Equal(t, []string{"fake__model__text"}, store.loadedSpaces)
	assert.Equal(t, "/data", files.gotRoot)
	assert.Equal(t, "fake__model__text", files.gotSpaceKey)
	assert.Equal(t, "", files.gotMultiKey, "text-only embedders never request image documents")
	assert.Equal(t, []string{"text:fake__model__text"}, store.ops)
}

func TestFromPathMultimodalUpsertsImagesFirst(t *testing.T) {
	store := &fakeStore{}
	files := &fakeFileLoader{textDocs: docs(2), imageDocs: docs(1)}
	s := New(store, fakeMultiEmbedder{}, files, nil, arbor.NewLogger())

	err := s.FromPath(context.Background(), "/data")

	assert.NoError(t, err)
	assert.Equal(t, []string{"fake__model__text", "fake__model__image"}, store.loadedSpaces)
	assert.Equal(t, "fake__model__image", files.gotMultiKey)
	assert.Equal(t, []string{"multi:fake__model__image", "text:fake__model__text"}, store.ops)
}

func TestFromPathNoDocuments(t *testing.T) {
	store := &fakeStore{}
	s := New(store, fakeTextEmbedder{}, &fakeFileLoader{}, nil, arbor.NewLogger())

	err := s.FromPath(context.Background(), "/data")

	assert.NoError(t, err)
	assert.Empty(t, store.ops)
}

func TestFromPathLoadSpaceFailure(t *testing.T) {
	store := &fakeStore{loadErr: map[string]error{"fake__model__text": errors.New("boom")}}
	files := &fakeFileLoader{textDocs: docs(1)}
	s := New(store, fakeTextEmbedder{}, files, nil, arbor.NewLogger())

	err := s.FromPath(context.Background(), "/data")

	assert.ErrorIs(t, err, common.ErrIngest)
	assert.Empty(t, files.gotRoot, "loader must not run when the space fails to open")
}

func TestFromPathMultiSpaceFailure(t *testing.T) {
	store := &fakeStore{loadErr: map[string]error{"fake__model__image": errors.New("boom")}}
	s := New(store, fakeMultiEmbedder{}, &fakeFileLoader{}, nil, arbor.NewLogger())

	err := s.FromPath(context.Background(), "/data")

	assert.ErrorIs(t, err, common.ErrIngest)
}

func TestFromPathUpsertFailure(t *testing.T) {
	store := &fakeStore{upsertErr: errors.New("backend down")}
	s := New(store, fakeTextEmbedder{}, &fakeFileLoader{textDocs: docs(1)}, nil, arbor.NewLogger())

	err := s.FromPath(context.Background(), "/data")

	assert.ErrorIs(t, err, common.ErrIngest)
}

func TestFromPathLoaderErrorPropagates(t *testing.T) {
	loadErr := errors.New("walk failed")
	s := New(&fakeStore{}, fakeTextEmbedder{}, &fakeFileLoader{err: loadErr}, nil, arbor.NewLogger())

	err := s.FromPath(context.Background(), "/data")

	assert.ErrorIs(t, err, loadErr)
}

func TestFromPathList(t *testing.T) {
	store := &fakeStore{}
	files := &fakeFileLoader{textDocs: docs(1)}
	s := New(store, fakeTextEmbedder{}, files, nil, arbor.NewLogger())

	err := s.FromPathList(context.Background(), "/data/list.txt")

	assert.NoError(t, err)
	assert.Equal(t, "/data/list.txt", files.gotRoot)
	assert.Equal(t, []string{"text:fake__model__text"}, store.ops)
}

func TestFromURL(t *testing.T) {
	store := &fakeStore{}
	web := &fakeHTMLLoader{textDocs: docs(1)}
	s := New(store, fakeTextEmbedder{}, nil, web, arbor.NewLogger())

	err := s.FromURL(context.Background(), "https://example.com/")

	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/", web.gotURL)
	assert.Equal(t, "fake__model__text", web.gotSpaceKey)
	assert.Equal(t, []string{"text:fake__model__text"}, store.ops)
}

func TestFromURLList(t *testing.T) {
	store := &fakeStore{}
	web := &fakeHTMLLoader{textDocs: docs(1)}
	s := New(store, fakeTextEmbedder{}, nil, web, arbor.NewLogger())

	err := s.FromURLList(context.Background(), "/data/urls.txt")

	assert.NoError(t, err)
	assert.Equal(t, "/data/urls.txt", web.gotURL)
	assert.Equal(t, []string{"text:fake__model__text"}, store.ops)
}
