// Package speech turns markdown replies into text suitable for synthesis.
package speech

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// PlainText strips markdown formatting from s. Code blocks and raw HTML are
// dropped, link and image text is kept, and every heading, paragraph and
// list item ends as a sentence.
func PlainText(s string) string {
	src := []byte(s)
	doc := md.Parser().Parse(text.NewReader(src))

	var out []byte
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := node.(type) {
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil

		case *ast.Text:
			if entering {
				out = append(out, n.Segment.Value(src)...)
				if n.SoftLineBreak() || n.HardLineBreak() {
					out = append(out, ' ')
				}
			}

		case *ast.String:
			if entering {
				out = append(out, n.Value...)
			}

		case *ast.CodeSpan:
			if entering {
				for c := n.FirstChild(); c != nil; c = c.NextSibling() {
					if t, ok := c.(*ast.Text); ok {
						out = append(out, t.Segment.Value(src)...)
					}
				}
			}
			return ast.WalkSkipChildren, nil

		case *ast.Heading, *ast.Paragraph, *ast.ListItem:
			if !entering {
				out = endSentence(out)
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(string(out)), " ")
}

func endSentence(b []byte) []byte {
	b = bytes.TrimRight(b, " \t\n")
	if len(b) == 0 {
		return b
	}
	if !bytes.ContainsAny(b[len(b)-1:], ".!?:;") {
		b = append(b, '.')
	}
	return append(b, ' ')
}
