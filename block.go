package wiki2html

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/arran4/wiki2html/ast"
)

// ---- Paragraphs ----

// closeParagraph flushes pending emphasis and, in paragraph context, ends
// the current paragraph so a block element can follow.
func (s *state) closeParagraph() string {
	tags := s.queue.drain()
	if !s.paragraph {
		return tags
	}
	return tags + s.suspendEmphasis() + "\n</p>"
}

// openParagraph starts the paragraph that follows a block element.
func (s *state) openParagraph() string {
	if !s.paragraph {
		return ""
	}
	return "\n<p>" + s.resumeEmphasis()
}

func (s *state) paragraphBreak() string {
	tags := s.queue.drain()
	if !s.paragraph {
		return tags
	}
	return tags + s.suspendEmphasis() + "</p><p>" + s.resumeEmphasis()
}

// suspendEmphasis closes the tags enclosing template calls left open,
// innermost first.
func (s *state) suspendEmphasis() string {
	var sb strings.Builder
	for i := len(s.outer) - 1; i >= 0; i-- {
		sb.WriteString(closing(s.outer[i]).String())
	}
	return sb.String()
}

// resumeEmphasis reopens the tags suspendEmphasis closed.
func (s *state) resumeEmphasis() string {
	return tagsHTML(s.outer)
}

// ---- Blocks ----

func (s *state) renderHeading(h *ast.Heading) (string, error) {
	level := min(max(h.Level, 1), 6)
	closing := s.closeParagraph()
	content, err := s.renderInline(h.Nodes)
	if err != nil {
		return "", err
	}
	tag := "h" + strconv.Itoa(level)
	return closing + "<" + tag + ">" + content + "</" + tag + ">" + s.openParagraph(), nil
}

func (s *state) renderList(tag string, items []ast.ListItem) (string, error) {
	closing := s.closeParagraph()
	parts := make([]string, 0, len(items))
	for _, item := range items {
		content, err := s.renderInline(item.Nodes)
		if err != nil {
			return "", err
		}
		itemTag := "li"
		switch item.Type {
		case ast.ListItemTerm:
			itemTag = "dt"
		case ast.ListItemDetails:
			itemTag = "dd"
		}
		parts = append(parts, "<"+itemTag+">"+content+"</"+itemTag+">")
	}
	return closing + "<" + tag + ">" + strings.Join(parts, "\n") + "</" + tag + ">" + s.openParagraph(), nil
}

func (s *state) renderPreformatted(pre *ast.Preformatted) (string, error) {
	closing := s.closeParagraph()
	content, err := s.renderInline(pre.Nodes)
	if err != nil {
		return "", err
	}
	return closing + "<pre>" + content + "\n</pre>" + s.openParagraph(), nil
}

// highlightFormatter writes class-based markup so pages share one
// stylesheet.
var highlightFormatter = chromahtml.New(chromahtml.WithClasses(true))

func (s *state) renderHighlight(h *ast.SyntaxHighlight) (string, error) {
	closing := s.closeParagraph()
	html, err := highlight(h.Language, h.Code)
	if err != nil {
		s.r.logger.WarnContext(s.ctx, "syntax highlighting failed", "language", h.Language, "error", err)
		html = "<pre>" + escapeText(h.Code) + "\n</pre>"
	}
	return closing + html + s.openParagraph(), nil
}

// highlight renders code with the lexer for language, falling back to
// plain text for unknown languages.
func highlight(language, code string) (string, error) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)
	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := highlightFormatter.Format(&buf, styles.Fallback, it); err != nil {
		return "", err
	}
	return buf.String(), nil
}
