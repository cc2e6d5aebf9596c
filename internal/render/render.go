// Package render converts note markdown to HTML for previews and the public
// note endpoint.
package render

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"

	md "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

var (
	timestampPattern = regexp.MustCompile(`\[(\d{1,3}):([0-5]\d)\]`)
	taskPattern      = regexp.MustCompile(`^\[([ xX])\]\s+`)
)

// HTML renders markdown. [MM:SS] markers in text become seek buttons and
// list items starting with [ ] or [x] become checkboxes.
func HTML(markdown string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(markdown))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags:          html.CommonFlags | html.HrefTargetBlank,
		RenderNodeHook: renderText,
	})
	return string(md.Render(doc, renderer))
}

// Seconds converts an [MM:SS] marker to an offset in seconds.
func Seconds(marker string) (int, bool) {
	m := timestampPattern.FindStringSubmatch(marker)
	if m == nil {
		return 0, false
	}
	minutes, _ := strconv.Atoi(m[1])
	seconds, _ := strconv.Atoi(m[2])
	return minutes*60 + seconds, true
}

func renderText(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
	text, ok := node.(*ast.Text)
	if !ok || !entering {
		return ast.GoToNext, false
	}
	literal := text.Literal

	if isFirstInListItem(text) {
		if m := taskPattern.FindSubmatch(literal); m != nil {
			if m[1][0] == ' ' {
				io.WriteString(w, `<input type="checkbox" disabled> `)
			} else {
				io.WriteString(w, `<input type="checkbox" checked disabled> `)
			}
			literal = literal[len(m[0]):]
		}
	}

	if !timestampPattern.Match(literal) && len(literal) == len(text.Literal) {
		return ast.GoToNext, false
	}

	last := 0
	for _, loc := range timestampPattern.FindAllIndex(literal, -1) {
		html.EscapeHTML(w, literal[last:loc[0]])
		marker := literal[loc[0]:loc[1]]
		secs, _ := Seconds(string(marker))
		fmt.Fprintf(w, `<button class="timestamp" data-seconds="%d">`, secs)
		html.EscapeHTML(w, marker)
		io.WriteString(w, "</button>")
		last = loc[1]
	}
	html.EscapeHTML(w, literal[last:])
	return ast.GoToNext, true
}

func isFirstInListItem(text *ast.Text) bool {
	para, ok := text.Parent.(*ast.Paragraph)
	if !ok || len(para.Children) == 0 || para.Children[0] != ast.Node(text) {
		return false
	}
	item, ok := para.Parent.(*ast.ListItem)
	if !ok || len(item.Children) == 0 {
		return false
	}
	return item.Children[0] == ast.Node(para)
}

// Plain strips markup for contexts that show text only.
func Plain(markdown string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(markdown))
	var buf bytes.Buffer
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			if _, ok := node.(*ast.Paragraph); ok {
				buf.WriteString("\n")
			}
			return ast.GoToNext
		}
		switch n := node.(type) {
		case *ast.Text:
			buf.Write(n.Literal)
		case *ast.Code:
			buf.Write(n.Literal)
		}
		return ast.GoToNext
	})
	return string(bytes.TrimSpace(buf.Bytes()))
}
