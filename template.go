package wiki2html

import (
	"slices"
	"strconv"
	"strings"

	"github.com/arran4/wiki2html/ast"
	"github.com/arran4/wiki2html/parser"
	"github.com/arran4/wiki2html/store"
)

// templateFrame holds the arguments of one transclusion. Argument values
// are rendered lazily, in the frame of the caller that supplied them.
type templateFrame struct {
	args   map[string][]ast.Node
	parent *templateFrame
}

func newTemplateFrame(params []ast.Parameter, parent *templateFrame) *templateFrame {
	f := &templateFrame{args: make(map[string][]ast.Node), parent: parent}
	position := 0
	for _, p := range params {
		if p.Name == nil {
			position++
			f.args[strconv.Itoa(position)] = p.Value
			continue
		}
		f.args[strings.TrimSpace(ast.PlainText(p.Name))] = p.Value
	}
	return f
}

// renderTemplate transcludes the article named by t. Missing templates
// render as {title}; loops and runaway nesting render an error marker.
func (s *state) renderTemplate(t *ast.Template) (string, error) {
	title := strings.TrimSpace(ast.PlainText(t.Name))
	full := s.r.opts.TemplateNamespace + title
	if slices.Contains(s.transclusions, full) {
		return `<span class="error">Template loop detected: ` + escapeText(title) + `</span>`, nil
	}
	if len(s.transclusions) >= s.r.opts.MaxTemplateDepth {
		return `<span class="error">Template depth limit exceeded: ` + escapeText(title) + `</span>`, nil
	}
	article, err := s.findArticle(full)
	if err != nil {
		s.logLookupError("template", full, err)
		return errorMarker, nil
	}
	if article == nil {
		return "{" + escapeText(title) + "}", nil
	}

	s.transclusions = append(s.transclusions, full)
	defer func() { s.transclusions = s.transclusions[:len(s.transclusions)-1] }()

	// Emphasis the caller has open encloses the whole expansion.
	savedOuter := s.outer
	s.outer = append(slices.Clip(s.outer), s.open...)
	defer func() { s.outer = savedOuter }()

	if article.Model == store.ModelMarkdown {
		html, err := renderMarkdown(article.Wikitext)
		if err != nil {
			s.r.logger.WarnContext(s.ctx, "markdown template failed", "title", full, "error", err)
			return errorMarker, nil
		}
		if s.paragraph {
			return s.suspendEmphasis() + "\n</p>" + html + "\n<p>" + s.resumeEmphasis(), nil
		}
		return html, nil
	}

	saved := s.frame
	s.frame = newTemplateFrame(t.Parameters, saved)
	defer func() { s.frame = saved }()
	return s.renderNodes(parser.Parse(article.Wikitext).Nodes)
}

// renderArgument substitutes a {{{name|default}}} reference.
func (s *state) renderArgument(a *ast.Argument) (string, error) {
	if f := s.frame; f != nil {
		if value, ok := f.args[a.Name]; ok {
			s.frame = f.parent
			defer func() { s.frame = f }()
			return s.renderInline(value)
		}
	}
	if a.Default != nil {
		return s.renderInline(a.Default)
	}
	return "{{{" + escapeText(a.Name) + "}}}", nil
}
