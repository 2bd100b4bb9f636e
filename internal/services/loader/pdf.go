package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/identity"
	"github.com/ternarybob/ragserver/internal/models"
)

// pdfcpu names extracted content files after the source file, so only
// the page marker is a reliable anchor.
var contentPageRe = regexp.MustCompile(`Content_page_(\d+)`)

// pdfExtractor pulls text and images out of PDF files with pdfcpu,
// working through scratch directories it removes afterwards.
type pdfExtractor struct {
	conf   *model.Configuration
	logger arbor.ILogger
}

func newPDFExtractor(logger arbor.ILogger) *pdfExtractor {
	return &pdfExtractor{
		conf:   model.NewDefaultConfiguration(),
		logger: logger,
	}
}

// pageCount reads the document and returns its page count.
func (e *pdfExtractor) pageCount(path string) (int, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read pdf %s: %v", common.ErrIngest, path, err)
	}
	return pdfCtx.PageCount, nil
}

// pageTexts extracts the text of every page, keyed by zero-based page
// number. Pages without decodable text are absent from the map.
func (e *pdfExtractor) pageTexts(path string) (map[int]string, error) {
	outDir, err := os.MkdirTemp("", common.TempFilePrefix+"pdftext-")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create scratch dir: %v", common.ErrIngest, err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(path, outDir, nil, e.conf); err != nil {
		return nil, fmt.Errorf("%w: failed to extract pdf content from %s: %v", common.ErrIngest, path, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read scratch dir: %v", common.ErrIngest, err)
	}

	texts := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := contentPageRe.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		pageNr, err := strconv.Atoi(match[1])
		if err != nil || pageNr < 1 {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			e.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read extracted page content")
			continue
		}
		if text := strings.TrimSpace(decodeContentText(raw)); text != "" {
			texts[pageNr-1] = text
		}
	}
	return texts, nil
}

// pageImages extracts the images of one zero-based page into temp files
// carrying the project prefix, in a stable order. The temp files keep
// their native extension so MIME detection works on them later.
func (e *pdfExtractor) pageImages(path string, page int) ([]string, error) {
	outDir, err := os.MkdirTemp("", common.TempFilePrefix+"pdfimg-")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create scratch dir: %v", common.ErrIngest, err)
	}
	defer os.RemoveAll(outDir)

	selected := []string{strconv.Itoa(page + 1)}
	if err := api.ExtractImagesFile(path, outDir, selected, e.conf); err != nil {
		return nil, fmt.Errorf("%w: failed to extract pdf images from %s: %v", common.ErrIngest, path, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read scratch dir: %v", common.ErrIngest, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var paths []string
	for _, name := range names {
		tempPath, err := copyToTemp(filepath.Join(outDir, name))
		if err != nil {
			e.logger.Warn().Err(err).Str("file", name).Msg("Failed to stage extracted image")
			continue
		}
		paths = append(paths, tempPath)
	}
	return paths, nil
}

// copyToTemp copies src into the system temp dir under the project
// prefix, keeping the extension.
func copyToTemp(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp("", common.TempFilePrefix+"*"+filepath.Ext(src))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// loadPDFText builds chunked text documents from every page that shows
// text. Blank pages are skipped, page numbers are zero-based and chunk
// numbering restarts per page.
func (l *FileLoader) loadPDFText(ctx context.Context, path, spaceKey, source, baseSource string) ([]models.Document, error) {
	if !hasExt(path, pdfExts) {
		l.logger.Warn().Str("path", path).Msgf("Required %s file", extList(pdfExts))
		return nil, nil
	}
	if source == "" {
		source = path
	}
	if baseSource == "" {
		baseSource = source
	}

	count, err := l.pdf.pageCount(path)
	if err != nil {
		return nil, err
	}
	fp, err := models.FileFingerprint(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIngest, err)
	}
	texts, err := l.pdf.pageTexts(path)
	if err != nil {
		return nil, err
	}

	var docs []models.Document
	for page := 0; page < count; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, ok := texts[page]
		if !ok {
			continue
		}

		meta := models.Metadata{
			models.MetaSource:     source,
			models.MetaBaseSource: baseSource,
			models.MetaSpaceKey:   spaceKey,
			models.MetaEmbedType:  models.EmbedTypeText,
			models.MetaPage:       page,
		}
		fp.ApplyTo(meta)

		base := models.Document{PageContent: content, Metadata: meta}
		for i, chunk := range l.splitter.SplitDocuments([]models.Document{base}) {
			chunk.Metadata[models.MetaChunkNo] = i
			chunk.Metadata[models.MetaID] = identity.PDFTextDocID(source, fp.SHA256Head, page, i)
			if err := models.AssertRequiredKeys(chunk.Metadata, models.PDFTextSchema); err != nil {
				return nil, fmt.Errorf("%w: %v", common.ErrIngest, err)
			}
			docs = append(docs, chunk)
		}
	}

	l.logger.Info().Int("docs", len(docs)).Str("source", source).Msg("Loaded pdf text")
	return docs, nil
}

// loadPDFImages builds one multimodal document per extracted image,
// its payload pointing at a temp copy that UpsertMulti removes after
// embedding. A page that fails image extraction is logged and skipped.
func (l *FileLoader) loadPDFImages(ctx context.Context, path, spaceKey, source, baseSource string) ([]models.Document, error) {
	if !hasExt(path, pdfExts) {
		l.logger.Warn().Str("path", path).Msgf("Required %s file", extList(pdfExts))
		return nil, nil
	}
	if source == "" {
		source = path
	}
	if baseSource == "" {
		baseSource = source
	}

	count, err := l.pdf.pageCount(path)
	if err != nil {
		return nil, err
	}
	fp, err := models.FileFingerprint(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIngest, err)
	}

	var docs []models.Document
	for page := 0; page < count; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		images, err := l.pdf.pageImages(path, page)
		if err != nil {
			l.logger.Warn().Err(err).Int("page", page).Str("path", path).Msg("Failed to extract page images")
			continue
		}

		for imageNo, imagePath := range images {
			meta := models.Metadata{
				models.MetaSource:     source,
				models.MetaBaseSource: baseSource,
				models.MetaSpaceKey:   spaceKey,
				models.MetaEmbedType:  models.EmbedTypeImage,
				models.MetaPage:       page,
				models.MetaImageNo:    imageNo,
			}
			fp.ApplyTo(meta)
			meta[models.MetaID] = identity.PDFImageDocID(source, fp.SHA256Head, page, imageNo)

			if err := models.AssertRequiredKeys(meta, models.PDFImageSchema); err != nil {
				return nil, fmt.Errorf("%w: %v", common.ErrIngest, err)
			}
			docs = append(docs, models.Document{PageContent: imagePath, Metadata: meta})
		}
	}

	l.logger.Info().Int("docs", len(docs)).Str("source", source).Msg("Loaded pdf images")
	return docs, nil
}

// decodeContentText pulls the shown text out of a raw PDF content
// stream. It understands literal and hex strings and the Tj, TJ, ' and
// " show operators; Td, TD, T* and ET break lines. Everything else is
// graphics state and gets ignored.
func decodeContentText(content []byte) string {
	var sb strings.Builder
	var pending []string

	flush := func() {
		for _, s := range pending {
			sb.WriteString(decodeTextString(s))
		}
		pending = pending[:0]
	}
	newline := func() {
		if s := sb.String(); s != "" && s[len(s)-1] != '\n' {
			sb.WriteByte('\n')
		}
	}

	for i := 0; i < len(content); {
		c := content[i]
		switch {
		case c == '(':
			s, next := parseLiteralString(content, i)
			pending = append(pending, s)
			i = next
		case c == '<':
			if i+1 < len(content) && content[i+1] == '<' {
				i += 2
				continue
			}
			s, next := parseHexString(content, i)
			pending = append(pending, s)
			i = next
		case c == '%':
			for i < len(content) && content[i] != '\n' && content[i] != '\r' {
				i++
			}
		case isPDFSpace(c) || c == '[' || c == ']' || c == '{' || c == '}' || c == '>' || c == ')':
			i++
		case c == '/':
			i++
			for i < len(content) && !isPDFSpace(content[i]) && !isPDFDelim(content[i]) {
				i++
			}
		default:
			start := i
			for i < len(content) && !isPDFSpace(content[i]) && !isPDFDelim(content[i]) {
				i++
			}
			switch tok := string(content[start:i]); tok {
			case "Tj", "TJ":
				flush()
			case "'", "\"":
				newline()
				flush()
			case "Td", "TD", "T*", "ET":
				newline()
				pending = pending[:0]
			default:
				if !isNumericToken(tok) {
					pending = pending[:0]
				}
			}
		}
	}

	return printableText(sb.String())
}

// parseLiteralString decodes a ( ) string starting at the opening paren
// and returns the text with the index just past the closing paren.
// Parens nest, and the \ escapes of the PDF spec apply, octal included.
func parseLiteralString(content []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 1
	i := start + 1
	for i < len(content) {
		c := content[i]
		switch c {
		case '\\':
			i++
			if i >= len(content) {
				return sb.String(), i
			}
			switch e := content[i]; e {
			case 'n':
				sb.WriteByte('\n')
				i++
			case 'r':
				sb.WriteByte('\r')
				i++
			case 't':
				sb.WriteByte('\t')
				i++
			case 'b', 'f':
				i++
			case '(', ')', '\\':
				sb.WriteByte(e)
				i++
			case '\r':
				i++
				if i < len(content) && content[i] == '\n' {
					i++
				}
			case '\n':
				i++
			default:
				if e >= '0' && e <= '7' {
					v := 0
					for n := 0; n < 3 && i < len(content) && content[i] >= '0' && content[i] <= '7'; n++ {
						v = v*8 + int(content[i]-'0')
						i++
					}
					sb.WriteByte(byte(v))
				} else {
					sb.WriteByte(e)
					i++
				}
			}
		case '(':
			depth++
			sb.WriteByte(c)
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return sb.String(), i
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}

// parseHexString decodes a < > string starting at the opening bracket.
// An odd final digit is padded with zero per the PDF spec.
func parseHexString(content []byte, start int) (string, int) {
	var digits []byte
	i := start + 1
	for i < len(content) && content[i] != '>' {
		if isHexDigit(content[i]) {
			digits = append(digits, content[i])
		}
		i++
	}
	if i < len(content) {
		i++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}

	var sb strings.Builder
	for j := 0; j+1 < len(digits); j += 2 {
		sb.WriteByte(hexVal(digits[j])<<4 | hexVal(digits[j+1]))
	}
	return sb.String(), i
}

// decodeTextString maps one raw PDF string to UTF-8. Strings opening
// with the UTF-16BE byte order mark are converted; everything else
// passes through and is filtered for printability later.
func decodeTextString(raw string) string {
	if strings.HasPrefix(raw, "\xfe\xff") {
		return decodeUTF16BE([]byte(raw[2:]))
	}
	return raw
}

func decodeUTF16BE(b []byte) string {
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return string(utf16.Decode(u))
}

// printableText drops the control bytes and broken sequences raw
// content streams carry, keeping line structure intact.
func printableText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case r < 0x20 || r == 0x7f || r == utf8.RuneError:
			return -1
		default:
			return r
		}
	}, s)
}

func isPDFSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// isNumericToken reports whether tok is a number operand, which must
// not clear strings pending for a show operator.
func isNumericToken(tok string) bool {
	if tok == "" {
		return false
	}
	_, err := strconv.ParseFloat(tok, 64)
	return err == nil
}
