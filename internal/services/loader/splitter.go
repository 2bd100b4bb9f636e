package loader

import (
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/ragserver/internal/models"
)

// defaultSeparators orders the split preference: paragraph breaks, then
// line breaks, then words, then single characters.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into chunks of at most chunkSize characters,
// carrying chunkOverlap characters of context between neighbours. It
// prefers splitting at the coarsest separator that still fits.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// SplitDocuments splits each document's content, cloning its metadata
// onto every chunk.
func (s *Splitter) SplitDocuments(docs []models.Document) []models.Document {
	var out []models.Document
	for _, doc := range docs {
		for _, chunk := range s.Split(doc.PageContent) {
			out = append(out, models.Document{
				PageContent: chunk,
				Metadata:    doc.Metadata.Clone(),
			})
		}
	}
	return out
}

// Split cuts text into chunks. Sizes count characters, not bytes, so
// multibyte text is never cut mid-rune.
func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	splits := splitKeepSeparator(text, separator)

	var chunks []string
	var fitting []string
	for _, piece := range splits {
		if runeLen(piece) < s.chunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			chunks = append(chunks, s.mergeSplits(fitting)...)
			fitting = nil
		}
		if len(next) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, next)...)
		}
	}
	if len(fitting) > 0 {
		chunks = append(chunks, s.mergeSplits(fitting)...)
	}
	return chunks
}

// splitKeepSeparator splits text on sep, keeping each separator at the
// start of the piece that follows it. An empty sep splits into runes.
func splitKeepSeparator(text, sep string) []string {
	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	for i, part := range parts {
		if i > 0 {
			part = sep + part
		}
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}

// mergeSplits packs consecutive pieces into chunks of at most chunkSize
// characters, re-seeding each new chunk with up to chunkOverlap trailing
// characters of the previous one.
func (s *Splitter) mergeSplits(splits []string) []string {
	var chunks []string
	var current []string
	total := 0

	flush := func() {
		if joined := strings.TrimSpace(strings.Join(current, "")); joined != "" {
			chunks = append(chunks, joined)
		}
	}

	for _, piece := range splits {
		length := runeLen(piece)
		if total+length > s.chunkSize && len(current) > 0 {
			flush()
			for total > s.chunkOverlap || (total+length > s.chunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += length
	}
	flush()

	return chunks
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
