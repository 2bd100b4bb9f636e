package loader

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/models"
)

// writeTestPNG writes a small opaque PNG for embedding into fixtures.
func writeTestPNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	path := filepath.Join(dir, "fixture.png")
	f, err := os.Create(path)
	assert.NoError(t, err)
	assert.NoError(t, png.Encode(f, img))
	assert.NoError(t, f.Close())
	return path
}

// writeTestPDF builds a two page fixture: page one carries text and an
// embedded image, page two is blank.
func writeTestPDF(t *testing.T, dir string) string {
	t.Helper()
	imgPath := writeTestPNG(t, dir)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 10, "alpha bravo charlie delta")
	pdf.ImageOptions(imgPath, 10, 30, 20, 20, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	pdf.AddPage()

	path := filepath.Join(dir, "fixture.pdf")
	assert.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func TestLoadPDFFileTextOnly(t *testing.T) {
	path := writeTestPDF(t, t.TempDir())
	l := newTestFileLoader(1000, 0, nil)

	textDocs, imageDocs, err := l.LoadPDFFile(context.Background(), path, "demo", "", "", "")

	assert.NoError(t, err)
	assert.Empty(t, imageDocs)
	assert.NotEmpty(t, textDocs)

	var all strings.Builder
	for _, doc := range textDocs {
		all.WriteString(doc.PageContent)
		page, ok := doc.Metadata.Int(models.MetaPage)
		assert.True(t, ok)
		assert.Equal(t, int64(0), page)
		assert.Equal(t, path, doc.Metadata.Source())
		assert.NoError(t, models.AssertRequiredKeys(doc.Metadata, models.PDFTextSchema))
	}
	assert.Contains(t, all.String(), "bravo")
}

func TestLoadPDFFileMultimodal(t *testing.T) {
	path := writeTestPDF(t, t.TempDir())
	l := newTestFileLoader(1000, 0, nil)

	textDocs, imageDocs, err := l.LoadPDFFile(context.Background(), path, "demo", "demo-multi", "", "")

	assert.NoError(t, err)
	assert.NotEmpty(t, textDocs)
	assert.NotEmpty(t, imageDocs)

	for _, doc := range imageDocs {
		assert.True(t, strings.HasPrefix(filepath.Base(doc.PageContent), common.TempFilePrefix))
		_, statErr := os.Stat(doc.PageContent)
		assert.NoError(t, statErr)
		assert.Equal(t, "demo-multi", mustStr(t, doc.Metadata, models.MetaSpaceKey))
		assert.Equal(t, models.EmbedTypeImage, mustStr(t, doc.Metadata, models.MetaEmbedType))
		assert.NoError(t, models.AssertRequiredKeys(doc.Metadata, models.PDFImageSchema))
		os.Remove(doc.PageContent)
	}
}

func TestLoadPDFFileWrongExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "plain")
	l := newTestFileLoader(1000, 0, nil)

	textDocs, imageDocs, err := l.LoadPDFFile(context.Background(), path, "demo", "", "", "")

	assert.NoError(t, err)
	assert.Empty(t, textDocs)
	assert.Empty(t, imageDocs)
}

func TestLoadPDFFileSkipsKnownSource(t *testing.T) {
	path := writeTestPDF(t, t.TempDir())
	l := newTestFileLoader(1000, 0, skipStore{})

	textDocs, imageDocs, err := l.LoadPDFFile(context.Background(), path, "demo", "demo-multi", "", "")

	assert.NoError(t, err)
	assert.Empty(t, textDocs)
	assert.Empty(t, imageDocs)
}

func TestDecodeContentText(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "show operators and line breaks",
			content:  "BT /F1 12 Tf 72 720 Td (Hello) Tj ET BT 72 700 Td [(Wor) -10 (ld)] TJ ET BT (Second line) ' ET",
			expected: "Hello\nWorld\nSecond line\n",
		},
		{
			name:     "escapes and octal",
			content:  `BT (Paren \(x\) \134 end) Tj ET`,
			expected: "Paren (x) \\ end\n",
		},
		{
			name:     "hex string",
			content:  "BT <48656C6C6F> Tj ET",
			expected: "Hello\n",
		},
		{
			name:     "utf16 hex string",
			content:  "BT <FEFF00480069> Tj ET",
			expected: "Hi\n",
		},
		{
			name:     "strings bound to other operators are dropped",
			content:  "(name) Tf BT (shown) Tj ET",
			expected: "shown\n",
		},
		{
			name:     "no text operators",
			content:  "2 J 0.57 w 10 10 50 50 re S",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, decodeContentText([]byte(tt.content)))
		})
	}
}

func TestParseLiteralStringNested(t *testing.T) {
	s, next := parseLiteralString([]byte("(a (b) c) Tj"), 0)

	assert.Equal(t, "a (b) c", s)
	assert.Equal(t, 9, next)
}
