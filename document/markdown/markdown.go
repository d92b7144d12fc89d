// Package markdown provides a document.Parser that renders markdown to plain text.
package markdown

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/zoobzio/embedstore/document"
)

// Parser renders markdown documents to plain text.
// Markup is dropped; block elements are separated by newlines, list items
// keep a bullet or number prefix and raw HTML is skipped.
type Parser struct {
	md goldmark.Markdown
}

// New creates a markdown parser.
func New() *Parser {
	return &Parser{md: goldmark.New()}
}

// Parse renders data to plain text with document_type set to MARKDOWN.
func (p *Parser) Parse(data []byte) (document.Document, error) {
	root := p.md.Parser().Parse(text.NewReader(data))

	var out bytes.Buffer
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.NextSibling() != nil {
				out.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			out.Write(node.Segment.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				out.WriteByte('\n')
			}
		case *ast.String:
			out.Write(node.Value)
		case *ast.AutoLink:
			out.Write(node.Label(data))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			var code bytes.Buffer
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				code.Write(seg.Value(data))
			}
			out.Write(bytes.TrimRight(code.Bytes(), "\n"))
		case *ast.ListItem:
			out.WriteString(itemPrefix(node))
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return document.Document{}, err
	}

	return document.Document{
		Text:     strings.TrimSpace(out.String()),
		Metadata: map[string]string{document.MetaDocumentType: string(document.TypeMarkdown)},
	}, nil
}

func itemPrefix(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return "- "
	}
	n := list.Start
	for c := list.FirstChild(); c != nil && c != ast.Node(item); c = c.NextSibling() {
		n++
	}
	return strconv.Itoa(n) + ". "
}

var _ document.Parser = (*Parser)(nil)
