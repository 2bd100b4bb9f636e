package interfaces

import (
	"context"

	"github.com/ternarybob/ragserver/internal/models"
)

// FileLoader reads filesystem content into documents. Image documents
// are only produced when spaceKeyMulti is non-empty.
type FileLoader interface {
	// LoadFromPath ingests a file, or walks a directory tree.
	LoadFromPath(ctx context.Context, root, spaceKey, spaceKeyMulti string) (textDocs, imageDocs []models.Document, err error)

	// LoadFromPathList ingests every path listed in the file at
	// listPath. Blank lines and #-comments are skipped.
	LoadFromPathList(ctx context.Context, listPath, spaceKey, spaceKeyMulti string) (textDocs, imageDocs []models.Document, err error)
}

// HTMLLoader reads web content into documents, following sitemaps and
// direct-linked files.
type HTMLLoader interface {
	// LoadFromURL ingests one page, or every <loc> of a sitemap when
	// the URL path ends in .xml.
	LoadFromURL(ctx context.Context, url, spaceKey, spaceKeyMulti string) (textDocs, imageDocs []models.Document, err error)

	// LoadFromURLList ingests every URL listed in the file at listPath.
	LoadFromURLList(ctx context.Context, listPath, spaceKey, spaceKeyMulti string) (textDocs, imageDocs []models.Document, err error)
}
