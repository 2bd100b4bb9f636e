package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/identity"
	"github.com/ternarybob/ragserver/internal/interfaces"
	"github.com/ternarybob/ragserver/internal/models"
)

// FileLoader turns local files into embedding-ready documents. The
// store, when given, short-circuits sources that are already ingested.
type FileLoader struct {
	splitter *Splitter
	markdown *markdownConverter
	pdf      *pdfExtractor
	store    interfaces.VectorStoreManager
	logger   arbor.ILogger
}

var _ interfaces.FileLoader = (*FileLoader)(nil)

// NewFileLoader builds a loader for local files. A nil store disables
// the skip-update fast path.
func NewFileLoader(cfg *common.IngestConfig, store interfaces.VectorStoreManager, logger arbor.ILogger) *FileLoader {
	return &FileLoader{
		splitter: NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		markdown: newMarkdownConverter(logger),
		pdf:      newPDFExtractor(logger),
		store:    store,
		logger:   logger,
	}
}

// skipSource reports whether source is already stored and re-reading it
// can be skipped entirely.
func (l *FileLoader) skipSource(source string) bool {
	if l.store == nil || !l.store.SkipUpdate(source) {
		return false
	}
	l.logger.Info().Str("source", source).Msg("Skip loading: source exists")
	return true
}

// LoadTextFile reads a plain text file and splits it into chunk
// documents keyed by the file's fingerprint. An empty source defaults
// to the path.
func (l *FileLoader) LoadTextFile(ctx context.Context, path, spaceKey, source, baseSource string) ([]models.Document, error) {
	if !hasExt(path, textExts) {
		l.logger.Warn().Str("path", path).Msgf("Required %s file", extList(textExts))
		return nil, nil
	}
	if source == "" {
		source = path
	}
	if l.skipSource(source) {
		return nil, nil
	}

	fp, err := models.FileFingerprint(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIngest, err)
	}
	content, err := readTextFile(path)
	if err != nil {
		return nil, err
	}

	docs, err := l.buildTextDocs(content, source, spaceKey, baseSource, fp)
	if err != nil {
		return nil, err
	}

	l.logger.Info().Int("docs", len(docs)).Str("source", source).Msg("Loaded text file")
	return docs, nil
}

// LoadMarkdownFile reads a markdown file, strips it down to its text
// and splits it like LoadTextFile.
func (l *FileLoader) LoadMarkdownFile(ctx context.Context, path, spaceKey, source, baseSource string) ([]models.Document, error) {
	if !hasExt(path, markdownExts) {
		l.logger.Warn().Str("path", path).Msgf("Required %s file", extList(markdownExts))
		return nil, nil
	}
	if source == "" {
		source = path
	}
	if l.skipSource(source) {
		return nil, nil
	}

	fp, err := models.FileFingerprint(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIngest, err)
	}
	raw, err := readTextFile(path)
	if err != nil {
		return nil, err
	}

	docs, err := l.buildTextDocs(l.markdown.ToText(raw), source, spaceKey, baseSource, fp)
	if err != nil {
		return nil, err
	}

	l.logger.Info().Int("docs", len(docs)).Str("source", source).Msg("Loaded markdown file")
	return docs, nil
}

// LoadImageFile wraps an image file into a single multimodal document.
// The payload is the image path; embedding reads the pixels later.
func (l *FileLoader) LoadImageFile(ctx context.Context, path, spaceKey, source, baseSource string) ([]models.Document, error) {
	if !hasExt(path, imageExts) {
		l.logger.Warn().Str("path", path).Msgf("Required %s file", extList(imageExts))
		return nil, nil
	}
	if source == "" {
		source = path
	}
	if baseSource == "" {
		baseSource = source
	}
	if l.skipSource(source) {
		return nil, nil
	}

	fp, err := models.FileFingerprint(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIngest, err)
	}

	meta := models.Metadata{
		models.MetaSource:     source,
		models.MetaBaseSource: baseSource,
		models.MetaSpaceKey:   spaceKey,
		models.MetaEmbedType:  models.EmbedTypeImage,
	}
	fp.ApplyTo(meta)
	meta[models.MetaID] = identity.ImageFileDocID(source, fp.SHA256Head)

	if err := models.AssertRequiredKeys(meta, models.ImageFileSchema); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIngest, err)
	}

	l.logger.Info().Str("source", source).Msg("Loaded image file")
	return []models.Document{{PageContent: path, Metadata: meta}}, nil
}

// LoadPDFFile extracts text documents from every page of a PDF, and
// image documents too when spaceKeyMulti names a multimodal space.
func (l *FileLoader) LoadPDFFile(ctx context.Context, path, spaceKey, spaceKeyMulti, source, baseSource string) ([]models.Document, []models.Document, error) {
	if source == "" {
		source = path
	}
	if l.skipSource(source) {
		return nil, nil, nil
	}

	textDocs, err := l.loadPDFText(ctx, path, spaceKey, source, baseSource)
	if err != nil {
		return nil, nil, err
	}

	var imageDocs []models.Document
	if spaceKeyMulti != "" {
		imageDocs, err = l.loadPDFImages(ctx, path, spaceKeyMulti, source, baseSource)
		if err != nil {
			return nil, nil, err
		}
	}

	l.logger.Info().
		Int("text_docs", len(textDocs)).
		Int("image_docs", len(imageDocs)).
		Str("source", source).
		Msg("Loaded pdf file")
	return textDocs, imageDocs, nil
}

// buildTextDocs splits content and attaches the shared chunk metadata,
// deriving each chunk's id from its position.
func (l *FileLoader) buildTextDocs(content, source, spaceKey, baseSource string, fp models.Fingerprint) ([]models.Document, error) {
	if baseSource == "" {
		baseSource = source
	}

	meta := models.Metadata{
		models.MetaSource:     source,
		models.MetaBaseSource: baseSource,
		models.MetaSpaceKey:   spaceKey,
		models.MetaEmbedType:  models.EmbedTypeText,
	}
	fp.ApplyTo(meta)

	base := models.Document{PageContent: content, Metadata: meta}
	docs := l.splitter.SplitDocuments([]models.Document{base})

	for i := range docs {
		docs[i].Metadata[models.MetaChunkNo] = i
		docs[i].Metadata[models.MetaID] = identity.TextChunkDocID(source, fp.SHA256Head, i)
		if err := models.AssertRequiredKeys(docs[i].Metadata, models.TextFileSchema); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrIngest, err)
		}
	}
	return docs, nil
}

// LoadFromPath walks root, a directory or a single file, and loads
// every supported file in it. Image files are only picked up when
// spaceKeyMulti names a multimodal space.
func (l *FileLoader) LoadFromPath(ctx context.Context, root, spaceKey, spaceKeyMulti string) ([]models.Document, []models.Document, error) {
	return l.loadFromPath(ctx, root, spaceKey, spaceKeyMulti, map[string]bool{})
}

// loadFromPath dispatches each file under root by extension. seen is
// shared across roots by LoadFromPathList so overlapping entries do not
// load a file twice. Files that fail to load are logged, left out of
// seen and do not stop the walk.
func (l *FileLoader) loadFromPath(ctx context.Context, root, spaceKey, spaceKeyMulti string, seen map[string]bool) ([]models.Document, []models.Document, error) {
	paths, err := listFiles(root)
	if err != nil {
		return nil, nil, err
	}

	var textDocs, imageDocs []models.Document
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if seen[path] {
			continue
		}

		var bufText, bufImage []models.Document
		var loadErr error
		switch {
		case hasExt(path, textExts):
			bufText, loadErr = l.LoadTextFile(ctx, path, spaceKey, "", "")
		case hasExt(path, markdownExts):
			bufText, loadErr = l.LoadMarkdownFile(ctx, path, spaceKey, "", "")
		case hasExt(path, imageExts) && spaceKeyMulti != "":
			bufImage, loadErr = l.LoadImageFile(ctx, path, spaceKeyMulti, "", "")
		case hasExt(path, pdfExts):
			bufText, bufImage, loadErr = l.LoadPDFFile(ctx, path, spaceKey, spaceKeyMulti, "", "")
		default:
			l.logger.Warn().Str("path", path).Msgf("'%s' is not supported, supported extensions: %s", extOf(path), extList(supportedExts))
			seen[path] = true
			continue
		}
		if loadErr != nil {
			l.logger.Warn().Err(loadErr).Str("path", path).Msg("Failed to load file")
			continue
		}

		textDocs = append(textDocs, bufText...)
		imageDocs = append(imageDocs, bufImage...)
		seen[path] = true
	}
	return textDocs, imageDocs, nil
}

// LoadFromPathList loads every path named in a list file, one path per
// line, sharing the seen set so overlapping roots load once. Blank
// lines and lines starting with # are skipped.
func (l *FileLoader) LoadFromPathList(ctx context.Context, listPath, spaceKey, spaceKeyMulti string) ([]models.Document, []models.Document, error) {
	roots, err := readSourcesFromFile(listPath)
	if err != nil {
		return nil, nil, err
	}

	seen := map[string]bool{}
	var textDocs, imageDocs []models.Document
	for _, root := range roots {
		bufText, bufImage, err := l.loadFromPath(ctx, root, spaceKey, spaceKeyMulti, seen)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, err
			}
			l.logger.Warn().Err(err).Str("path", root).Msg("Failed to load path")
			continue
		}
		textDocs = append(textDocs, bufText...)
		imageDocs = append(imageDocs, bufImage...)
	}
	return textDocs, imageDocs, nil
}

// readTextFile reads path as UTF-8 text, dropping invalid byte
// sequences rather than failing on them.
func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read text file %s: %v", common.ErrIngest, path, err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// listFiles returns root itself when it is a file, otherwise every file
// under it in walk order. Paths come back absolute.
func listFiles(root string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve path %s: %v", common.ErrIngest, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat path %s: %v", common.ErrIngest, root, err)
	}
	if !info.IsDir() {
		return []string{abs}, nil
	}

	var paths []string
	err = filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to walk %s: %v", common.ErrIngest, root, err)
	}
	return paths, nil
}
