// Package embeddings provides the embedding providers that turn text and
// images into vectors: an OpenAI-compatible text embedder, a Cohere
// multimodal embedder, and a local CLIP-style multimodal embedder.
package embeddings

import (
	"encoding/base64"
	"fmt"
	"math"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const normEps = 1e-12

// MaxImageBytes caps the size of images converted to data URIs.
const MaxImageBytes = 10 * 1024 * 1024

// L2Normalize scales each row to unit length. Rows whose magnitude is
// below normEps (zero vectors) pass through unchanged.
func L2Normalize(vecs [][]float32) [][]float32 {
	out := make([][]float32, 0, len(vecs))
	for _, row := range vecs {
		if len(row) == 0 {
			out = append(out, row)
			continue
		}

		var sum float64
		for _, x := range row {
			sum += float64(x) * float64(x)
		}
		n := math.Sqrt(sum)
		if n < normEps {
			out = append(out, row)
			continue
		}

		inv := 1.0 / n
		scaled := make([]float32, len(row))
		for i, x := range row {
			scaled[i] = float32(float64(x) * inv)
		}
		out = append(out, scaled)
	}

	return out
}

// ImageToDataURI reads the image at path and encodes it as a
// data:<mime>;base64,<...> string. Files over maxBytes and files whose
// extension does not map to an image/* MIME type are rejected.
func ImageToDataURI(path string, maxBytes int64) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat image: %w", err)
	}
	if st.Size() > maxBytes {
		return "", fmt.Errorf("file too large: %s (%d bytes)", path, st.Size())
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = "image/png"
	}
	// Parameters like charset never appear on image types, but keep the
	// URI clean regardless.
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("non-image MIME type: %s", mimeType)
	}

	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
