package interfaces

import "context"

// TextEmbedder turns text into vectors for one provider/model pair.
// Implementations L2-normalise their outputs when configured to and pace
// backend calls with a cooldown.
type TextEmbedder interface {
	// Name identifies the provider ("local", "openai", "cohere").
	Name() string

	// EmbedDocuments embeds indexing-side texts, one vector per input.
	// An empty input returns an empty matrix without a backend call.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a retrieval-side query string.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// SpaceKeyText is the collection key for document vectors produced
	// by this embedder.
	SpaceKeyText() string
}

// MultimodalEmbedder additionally embeds images into a vector space
// shared with text queries.
type MultimodalEmbedder interface {
	TextEmbedder

	// EmbedImage embeds the images at the given local paths.
	EmbedImage(ctx context.Context, paths []string) ([][]float32, error)

	// EmbedTextForImageQuery embeds a query string for searching the
	// image space.
	EmbedTextForImageQuery(ctx context.Context, query string) ([]float32, error)

	// SpaceKeyMulti is the collection key for image vectors.
	SpaceKeyMulti() string
}
