package models

// Embedding purposes. Changing these literals changes every space key
// derived from them, which strands previously ingested collections.
const (
	EmbedTypeText  = "text"
	EmbedTypeImage = "image"
)

// Metadata keys shared across document kinds.
const (
	MetaID         = "id"
	MetaSource     = "source"
	MetaBaseSource = "base_source"
	MetaSpaceKey   = "space_key"
	MetaEmbedType  = "embed_type"
	MetaFPSize     = "fingerprint_size"
	MetaFPMTime    = "fingerprint_mtime"
	MetaFPSHA      = "fingerprint_sha256_head"
	MetaPage       = "page"
	MetaChunkNo    = "chunk_no"
	MetaImageNo    = "image_no"
	MetaCaption    = "caption"
	MetaTitle      = "title"
)

// Sentinel values marking metadata fields that have not been assigned yet.
const (
	IntDefault   = -1
	FloatDefault = -1.0
	StrDefault   = ""
)

// Metadata holds the per-document key/value pairs persisted next to a
// vector. Values are restricted to strings, integers and floats so every
// store backend can hold them natively.
type Metadata map[string]any

// Document is the unit of ingest, storage and retrieval. PageContent
// carries chunk text for text documents and a local image path for
// multimodal documents.
type Document struct {
	PageContent string   `json:"page_content"`
	Metadata    Metadata `json:"metadata"`
}

// Str returns the string stored under key.
func (m Metadata) Str(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int returns the integer stored under key. JSON decoding widens numbers
// to float64, so both integer and float forms are accepted.
func (m Metadata) Int(key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Float returns the float stored under key, accepting integer forms.
func (m Metadata) Float(key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Source returns the document source, or an empty string when unset.
func (m Metadata) Source() string {
	s, _ := m.Str(MetaSource)
	return s
}

// ID returns the document id, or an empty string when unset.
func (m Metadata) ID() string {
	s, _ := m.Str(MetaID)
	return s
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
