package loader

import (
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// markdownConverter flattens markdown into plain text for embedding.
// Formatting carries little retrieval signal, so only the visible text
// survives, one block per paragraph.
type markdownConverter struct {
	md     goldmark.Markdown
	logger arbor.ILogger
}

func newMarkdownConverter(logger arbor.ILogger) *markdownConverter {
	return &markdownConverter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
		logger: logger,
	}
}

// ToText extracts the block-level text from markdown source. When
// nothing survives extraction the raw source is returned, so odd files
// still get indexed.
func (c *markdownConverter) ToText(markdown string) string {
	source := []byte(markdown)
	doc := c.md.Parser().Parse(text.NewReader(source))

	var blocks []string
	appendBlock := func(block string) {
		if block = strings.TrimSpace(block); block != "" {
			blocks = append(blocks, block)
		}
	}

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading, ast.KindParagraph, ast.KindTextBlock:
			appendBlock(string(n.Text(source)))
			return ast.WalkSkipChildren, nil
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			appendBlock(linesText(n, source))
			return ast.WalkSkipChildren, nil
		case extast.KindTableHeader, extast.KindTableRow:
			var cells []string
			for cell := n.FirstChild(); cell != nil; cell = cell.NextSibling() {
				if txt := strings.TrimSpace(string(cell.Text(source))); txt != "" {
					cells = append(cells, txt)
				}
			}
			appendBlock(strings.Join(cells, " | "))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil || len(blocks) == 0 {
		c.logger.Warn().Err(err).Msg("Markdown extraction came up empty, falling back to raw text")
		return markdown
	}

	return strings.Join(blocks, "\n\n")
}

// linesText joins the raw source lines a block node spans.
func linesText(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		sb.Write(line.Value(source))
	}
	return sb.String()
}
