// Package identity derives the stable identifiers ragserver keys its
// vectors by: UUIDv5 document ids and sanitized space keys.
package identity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ternarybob/ragserver/internal/models"
)

// namespace roots every ragserver UUID. It is itself a UUIDv5 of a fixed
// URL, so ids are reproducible across processes and machines.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://ragserver/namespace"))

// StableID returns the UUIDv5 of key inside the project namespace. The
// same key always yields the same id, which is what makes delete-then-add
// an upsert.
func StableID(key string) string {
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

// The *DocID helpers fix the key grammar per document kind. Changing a
// grammar orphans every previously stored vector of that kind.

// TextChunkDocID identifies one chunk of a text or markdown file.
func TextChunkDocID(source, sha string, chunkNo int) string {
	return StableID(fmt.Sprintf("%s::%s::%s::%d", models.EmbedTypeText, source, sha, chunkNo))
}

// PDFTextDocID identifies one chunk of one PDF page.
func PDFTextDocID(source, sha string, page, chunkNo int) string {
	return StableID(fmt.Sprintf("%s::%s::%s::%d::%d", models.EmbedTypeText, source, sha, page, chunkNo))
}

// PDFImageDocID identifies one embedded image of one PDF page.
func PDFImageDocID(source, sha string, page, imageNo int) string {
	return StableID(fmt.Sprintf("%s::%s::%s::%d::%d", models.EmbedTypeImage, source, sha, page, imageNo))
}

// ImageFileDocID identifies a whole image file.
func ImageFileDocID(source, sha string) string {
	return StableID(fmt.Sprintf("%s::%s::%s", models.EmbedTypeImage, source, sha))
}

// WebTextDocID identifies one chunk of a fetched web page. Pages carry
// no fingerprint, so the chunk number is the only discriminator.
func WebTextDocID(source string, chunkNo int) string {
	return StableID(fmt.Sprintf("%s::%s::%d", models.EmbedTypeText, source, chunkNo))
}
