package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// FingerprintHeadBytes is how much of a file's head is hashed into its
// fingerprint. Hashing only the head keeps ingest cheap on large files.
const FingerprintHeadBytes = 65536

// Fingerprint identifies file content cheaply: byte size, modification
// time as epoch seconds, and a hash of the first FingerprintHeadBytes.
type Fingerprint struct {
	Size       int64
	MTime      float64
	SHA256Head string
}

// DummyFingerprint is the sentinel recorded for sources with no file
// behind them, such as URLs. It marks the source as known without
// asserting anything about its content, so it never matches a stored
// fingerprint and URL sources are re-embedded on every checked ingest.
func DummyFingerprint() Fingerprint {
	return Fingerprint{Size: IntDefault, MTime: FloatDefault, SHA256Head: StrDefault}
}

// FileFingerprint stats path and hashes its head.
func FileFingerprint(path string) (Fingerprint, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to stat file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to read file head: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, io.LimitReader(f, FingerprintHeadBytes)); err != nil {
		return Fingerprint{}, fmt.Errorf("failed to read file head: %w", err)
	}

	return Fingerprint{
		Size:       st.Size(),
		MTime:      float64(st.ModTime().UnixNano()) / 1e9,
		SHA256Head: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// ApplyTo writes the fingerprint fields into meta.
func (fp Fingerprint) ApplyTo(meta Metadata) {
	meta[MetaFPSize] = fp.Size
	meta[MetaFPMTime] = fp.MTime
	meta[MetaFPSHA] = fp.SHA256Head
}

// IsDummy reports whether fp is the sentinel for fingerprint-less
// sources.
func (fp Fingerprint) IsDummy() bool {
	return fp == DummyFingerprint()
}

// Equals compares two fingerprints field by field. The dummy sentinel
// never equals anything, itself included: a source without a real
// fingerprint can be marked known but never deduplicated by content.
func (fp Fingerprint) Equals(other Fingerprint) bool {
	if fp.IsDummy() || other.IsDummy() {
		return false
	}
	return fp == other
}

// ExtractFingerprint reads the fingerprint fields from meta. When any
// field is absent the dummy fingerprint is returned, so the source still
// registers as known.
func ExtractFingerprint(meta Metadata) Fingerprint {
	size, ok := meta.Int(MetaFPSize)
	if !ok {
		return DummyFingerprint()
	}
	mtime, ok := meta.Float(MetaFPMTime)
	if !ok {
		return DummyFingerprint()
	}
	sha, ok := meta.Str(MetaFPSHA)
	if !ok {
		return DummyFingerprint()
	}
	return Fingerprint{Size: size, MTime: mtime, SHA256Head: sha}
}
