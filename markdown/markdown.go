// Package markdown renders post bodies to HTML as templ components.
package markdown

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

const linkClass = "underline decoration-2 underline-offset-4"

// Raw HTML in posts is dropped and unsafe link schemes are blanked.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Typographer,
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
		parser.WithASTTransformers(
			util.Prioritized(attrTransformer{}, 100),
		),
	),
	goldmark.WithRendererOptions(
		html.WithXHTML(),
	),
)

// attrTransformer styles links, opens external ones in a new tab and
// lazy-loads every image after the first.
type attrTransformer struct{}

func (attrTransformer) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	images := 0
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			node.SetAttributeString("class", []byte(linkClass))
			if isExternal(string(node.Destination)) {
				node.SetAttributeString("target", []byte("_blank"))
				node.SetAttributeString("rel", []byte("noopener noreferrer"))
			}
		case *ast.Image:
			images++
			node.SetAttributeString("decoding", []byte("async"))
			if images > 1 {
				node.SetAttributeString("loading", []byte("lazy"))
			}
		}
		return ast.WalkContinue, nil
	})
}

func isExternal(dest string) bool {
	return strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://") || strings.HasPrefix(dest, "//")
}

// Render writes the HTML for content to w.
func Render(w io.Writer, content string) error {
	if err := md.Convert([]byte(content), w); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	return nil
}

// RenderHTML returns the HTML for content.
func RenderHTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, content); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Markdown returns a templ.Component that renders content as HTML.
func Markdown(content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return Render(w, content)
	})
}
