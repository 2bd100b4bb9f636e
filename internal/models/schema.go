package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidMetadata is returned when a document's metadata is missing a
// required key or still carries a sentinel default.
var ErrInvalidMetadata = errors.New("invalid metadata")

// Schema lists the metadata keys a document kind must carry with real
// (non-sentinel) values before it may be upserted.
type Schema []string

var basicKeys = Schema{MetaID, MetaSource, MetaBaseSource, MetaSpaceKey, MetaEmbedType}

var fingerprintKeys = Schema{MetaFPSize, MetaFPMTime, MetaFPSHA}

// Required metadata per document kind.
var (
	TextFileSchema  = join(basicKeys, fingerprintKeys, Schema{MetaChunkNo})
	ImageFileSchema = join(basicKeys, fingerprintKeys)
	PDFTextSchema   = join(basicKeys, fingerprintKeys, Schema{MetaPage, MetaChunkNo})
	PDFImageSchema  = join(basicKeys, fingerprintKeys, Schema{MetaPage, MetaImageNo})
	WebTextSchema   = join(basicKeys, Schema{MetaChunkNo})
	WebImageSchema  = join(basicKeys, Schema{MetaImageNo})
)

func join(schemas ...Schema) Schema {
	var out Schema
	for _, s := range schemas {
		out = append(out, s...)
	}
	return out
}

// AssertRequiredKeys verifies that meta contains every key in schema and
// that none of them is still at its sentinel default.
func AssertRequiredKeys(meta Metadata, schema Schema) error {
	var missing []string
	for _, key := range schema {
		if _, ok := meta[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing required metadata keys: %s", ErrInvalidMetadata, strings.Join(missing, ", "))
	}

	var notSet []string
	for _, key := range schema {
		def, err := stillDefault(meta[key])
		if err != nil {
			return fmt.Errorf("%w: invalid metadata type for %s", ErrInvalidMetadata, key)
		}
		if def {
			notSet = append(notSet, key)
		}
	}
	if len(notSet) > 0 {
		sort.Strings(notSet)
		return fmt.Errorf("%w: metadata keys not set: %s", ErrInvalidMetadata, strings.Join(notSet, ", "))
	}

	return nil
}

func stillDefault(v any) (bool, error) {
	switch n := v.(type) {
	case int:
		return n == IntDefault, nil
	case int64:
		return n == int64(IntDefault), nil
	case float64:
		return n == FloatDefault, nil
	case string:
		return n == StrDefault, nil
	default:
		return false, fmt.Errorf("unsupported type %T", v)
	}
}
