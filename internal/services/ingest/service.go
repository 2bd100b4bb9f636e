package ingest

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/interfaces"
	"github.com/ternarybob/ragserver/internal/models"
)

// Service wires loaders to the vector store: it opens the spaces the
// embedder serves, collects documents and upserts them. Image documents
// are only collected when the embedder is multimodal.
type Service struct {
	store  interfaces.VectorStoreManager
	embed  interfaces.TextEmbedder
	files  interfaces.FileLoader
	web    interfaces.HTMLLoader
	logger arbor.ILogger
}

// New builds an ingest service over the current store and embedder.
// Loaders the operation does not use may be nil.
func New(store interfaces.VectorStoreManager, embed interfaces.TextEmbedder, files interfaces.FileLoader, web interfaces.HTMLLoader, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		embed:  embed,
		files:  files,
		web:    web,
		logger: logger,
	}
}

// FromPath ingests a file, or a directory tree when path is a directory.
func (s *Service) FromPath(ctx context.Context, path string) error {
	spaceKey, spaceKeyMulti, err := s.loadSpaces(ctx)
	if err != nil {
		return err
	}

	textDocs, imageDocs, err := s.files.LoadFromPath(ctx, path, spaceKey, spaceKeyMulti)
	if err != nil {
		return err
	}
	return s.upsert(ctx, textDocs, imageDocs, spaceKey, spaceKeyMulti)
}

// FromPathList ingests every path listed in the file at listPath.
func (s *Service) FromPathList(ctx context.Context, listPath string) error {
	spaceKey, spaceKeyMulti, err := s.loadSpaces(ctx)
	if err != nil {
		return err
	}

	textDocs, imageDocs, err := s.files.LoadFromPathList(ctx, listPath, spaceKey, spaceKeyMulti)
	if err != nil {
		return err
	}
	return s.upsert(ctx, textDocs, imageDocs, spaceKey, spaceKeyMulti)
}

// FromURL ingests one page, or a whole sitemap when the URL ends in .xml.
func (s *Service) FromURL(ctx context.Context, url string) error {
	spaceKey, spaceKeyMulti, err := s.loadSpaces(ctx)
	if err != nil {
		return err
	}

	textDocs, imageDocs, err := s.web.LoadFromURL(ctx, url, spaceKey, spaceKeyMulti)
	if err != nil {
		return err
	}
	return s.upsert(ctx, textDocs, imageDocs, spaceKey, spaceKeyMulti)
}

// FromURLList ingests every URL listed in the file at listPath.
func (s *Service) FromURLList(ctx context.Context, listPath string) error {
	spaceKey, spaceKeyMulti, err := s.loadSpaces(ctx)
	if err != nil {
		return err
	}

	textDocs, imageDocs, err := s.web.LoadFromURLList(ctx, listPath, spaceKey, spaceKeyMulti)
	if err != nil {
		return err
	}
	return s.upsert(ctx, textDocs, imageDocs, spaceKey, spaceKeyMulti)
}

// loadSpaces opens the text space and, for multimodal embedders, the
// image space. spaceKeyMulti comes back "" for text-only embedders so
// loaders know not to produce image documents.
func (s *Service) loadSpaces(ctx context.Context) (spaceKey, spaceKeyMulti string, err error) {
	spaceKey = s.embed.SpaceKeyText()
	if err := s.store.LoadSpace(ctx, spaceKey, s.embed); err != nil {
		return "", "", fmt.Errorf("%w: load text space: %v", common.ErrIngest, err)
	}

	multi, ok := s.embed.(interfaces.MultimodalEmbedder)
	if !ok {
		return spaceKey, "", nil
	}
	spaceKeyMulti = multi.SpaceKeyMulti()
	if err := s.store.LoadSpace(ctx, spaceKeyMulti, s.embed); err != nil {
		return "", "", fmt.Errorf("%w: load multimodal space: %v", common.ErrIngest, err)
	}
	return spaceKey, spaceKeyMulti, nil
}

// upsert writes collected documents, images before text so a failure in
// the larger text batch never strands image temp files.
func (s *Service) upsert(ctx context.Context, textDocs, imageDocs []models.Document, spaceKey, spaceKeyMulti string) error {
	if len(imageDocs) > 0 {
		if _, err := s.store.UpsertMulti(ctx, imageDocs, spaceKeyMulti); err != nil {
			return fmt.Errorf("%w: upsert multimodal documents: %v", common.ErrIngest, err)
		}
	}
	if len(textDocs) > 0 {
		if _, err := s.store.Upsert(ctx, textDocs, spaceKey); err != nil {
			return fmt.Errorf("%w: upsert text documents: %v", common.ErrIngest, err)
		}
	}

	s.logger.Info().
		Int("text_docs", len(textDocs)).
		Int("image_docs", len(imageDocs)).
		Str("store", s.store.Name()).
		Msg("Ingest complete")
	return nil
}
