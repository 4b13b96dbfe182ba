// Package wiki2html renders parsed wikitext to HTML.
//
// A Renderer walks an ast.Document once, turning the flat bold/italic
// toggles of wikitext into balanced tags, inferring paragraphs from blank
// lines and block elements, resolving internal links against an
// ArticleFinder and transcluding templates. Everything a page references
// (internal links, categories, a redirect target) is collected into the
// Result alongside the HTML.
package wiki2html

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark/util"

	"github.com/arran4/wiki2html/ast"
	"github.com/arran4/wiki2html/parser"
	"github.com/arran4/wiki2html/store"
)

// ErrMalformedEmphasis is returned when the emphasis state machine reaches a
// state no sequence of toggles can produce.
var ErrMalformedEmphasis = errors.New("wiki2html: malformed emphasis state")

// errorMarker is rendered in place of a node whose lookup failed.
const errorMarker = `<span class="error">Error</span>`

// ArticleFinder looks up articles by title. A missing article is reported
// as (nil, nil); a non-nil error means the lookup itself failed.
type ArticleFinder interface {
	FindArticle(ctx context.Context, title string) (*store.Article, error)
}

// Options configure a Renderer. Zero values select the defaults noted on
// each field.
type Options struct {
	// ReadBaseURL prefixes links to existing articles. Default "/wiki/".
	ReadBaseURL string
	// EditBaseURL prefixes links to missing articles. Default "/edit/".
	EditBaseURL string
	// TemplateNamespace is prepended to template names before lookup,
	// for example "Template:". Default empty.
	TemplateNamespace string
	// MaxTemplateDepth bounds nested transclusion. Default 40.
	MaxTemplateDepth int
	Logger           *slog.Logger
}

// Renderer converts documents to HTML. It holds no per-render state and is
// safe for concurrent use.
type Renderer struct {
	articles ArticleFinder
	opts     Options
	logger   *slog.Logger
}

// New returns a Renderer that resolves links and templates through
// articles. A nil finder treats every article as missing.
func New(articles ArticleFinder, opts Options) *Renderer {
	if opts.ReadBaseURL == "" {
		opts.ReadBaseURL = "/wiki/"
	}
	if opts.EditBaseURL == "" {
		opts.EditBaseURL = "/edit/"
	}
	if opts.MaxTemplateDepth <= 0 {
		opts.MaxTemplateDepth = 40
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Renderer{articles: articles, opts: opts, logger: logger}
}

// CategoryLink is a category assignment found on a page.
type CategoryLink struct {
	Target  string `json:"target"`
	Ordinal string `json:"ordinal"`
}

// Result is the output of a render.
type Result struct {
	HTML string `json:"html"`
	// InternalLinks lists link targets in document order, including
	// links to missing articles and duplicates.
	InternalLinks []string       `json:"internal_links,omitempty"`
	Categories    []CategoryLink `json:"categories,omitempty"`
	// Redirect is the target of a #REDIRECT line, if the page has one.
	Redirect string `json:"redirect,omitempty"`
}

// Render renders doc. The only error it returns is ErrMalformedEmphasis;
// failed lookups are rendered as error markers and logged.
func (r *Renderer) Render(ctx context.Context, doc *ast.Document) (*Result, error) {
	s := newState(ctx, r)
	s.paragraph = true
	body, err := s.renderNodes(doc.Nodes)
	if err != nil {
		return nil, fmt.Errorf("wiki2html: render: %w", err)
	}
	return &Result{
		HTML:          wrapParagraphs(body),
		InternalLinks: s.internalLinks,
		Categories:    s.categories,
		Redirect:      s.redirect,
	}, nil
}

// RenderWikitext parses and renders wikitext.
func (r *Renderer) RenderWikitext(ctx context.Context, wikitext string) (*Result, error) {
	return r.Render(ctx, parser.Parse(wikitext))
}

// RenderArticle renders an article according to its content model.
func (r *Renderer) RenderArticle(ctx context.Context, article *store.Article) (*Result, error) {
	if article.Model == store.ModelMarkdown {
		html, err := renderMarkdown(article.Wikitext)
		if err != nil {
			return nil, fmt.Errorf("wiki2html: render %q: %w", article.Title, err)
		}
		return &Result{HTML: html}, nil
	}
	return r.RenderWikitext(ctx, article.Wikitext)
}

// wrapParagraphs wraps the top-level output in a paragraph and removes the
// empty paragraphs left behind by block elements at either end.
func wrapParagraphs(body string) string {
	html := "<p>" + body + "</p>"
	html = strings.TrimSuffix(html, "\n<p></p>")
	html = strings.ReplaceAll(html, "<p></p>", "")
	return strings.ReplaceAll(html, "<p>\n</p>", "")
}

// state is the mutable context of a single Render call.
type state struct {
	ctx context.Context
	r   *Renderer

	// queue holds the pending emphasis tags of the current inline run.
	queue *emphasisQueue
	// open is the stack of emphasis tags the current run has written and
	// not yet closed.
	open []emphasisTag
	// outer holds the emphasis tags left open by the template calls
	// enclosing the current one. Paragraph boundaries inside a template
	// close and reopen them.
	outer []emphasisTag
	// paragraph is set when block elements must close and reopen the
	// enclosing paragraph.
	paragraph bool

	autoNumber    int
	internalLinks []string
	categories    []CategoryLink
	redirect      string

	// transclusions is the stack of template titles being expanded.
	transclusions []string
	frame         *templateFrame
}

func newState(ctx context.Context, r *Renderer) *state {
	return &state{ctx: ctx, r: r, queue: &emphasisQueue{}}
}

// renderNodes renders a sibling list. The list is split into inline runs at
// block nodes; each run reconciles its emphasis toggles on its own queue,
// and every tag it opened is closed before the next block or the end of the
// list. A toggle that would close a tag the boundary already closed writes
// nothing.
func (s *state) renderNodes(nodes []ast.Node) (string, error) {
	savedQueue, savedOpen := s.queue, s.open
	defer func() { s.queue, s.open = savedQueue, savedOpen }()

	var (
		sb    strings.Builder
		early closedEarly
	)
	for start := 0; start <= len(nodes); {
		end := start
		for end < len(nodes) && !ast.IsBlock(nodes[end]) {
			end++
		}
		run := nodes[start:end]
		s.queue, s.open = &emphasisQueue{}, nil
		var err error
		if early, err = reconcileEmphasis(run, s.queue, early); err != nil {
			return "", err
		}
		toggle := 0
		for _, n := range run {
			if isToggle(n) {
				tags := s.queue.drainIndex(toggle)
				s.open = trackOpen(s.open, tags)
				sb.WriteString(tagsHTML(tags))
				toggle++
				continue
			}
			out, err := s.renderNode(n)
			if err != nil {
				return "", err
			}
			sb.WriteString(out)
		}
		s.open = nil
		if end == len(nodes) {
			sb.WriteString(s.queue.drain())
			break
		}
		out, err := s.renderNode(nodes[end])
		if err != nil {
			return "", err
		}
		sb.WriteString(s.queue.drain())
		sb.WriteString(out)
		start = end + 1
	}
	return sb.String(), nil
}

// renderInline renders nodes outside paragraph context, as used for the
// contents of headings, list items, links and table cells.
func (s *state) renderInline(nodes []ast.Node) (string, error) {
	return s.withParagraph(false, nodes)
}

func (s *state) withParagraph(paragraph bool, nodes []ast.Node) (string, error) {
	saved, savedOuter := s.paragraph, s.outer
	s.paragraph, s.outer = paragraph, nil
	defer func() { s.paragraph, s.outer = saved, savedOuter }()
	return s.renderNodes(nodes)
}

func (s *state) renderNode(n ast.Node) (string, error) {
	switch n := n.(type) {
	case *ast.Text:
		return n.Value, nil
	case *ast.CharacterEntity:
		return escapeText(string(n.Character)), nil
	case *ast.Link:
		return s.renderInternalLink(n)
	case *ast.ExternalLink:
		return s.renderExternalLink(n)
	case *ast.Category:
		return s.renderCategory(n)
	case *ast.HorizontalDivider:
		return s.closeParagraph() + "<hr>" + s.openParagraph(), nil
	case *ast.ParagraphBreak:
		return s.paragraphBreak(), nil
	case *ast.UnorderedList:
		return s.renderList("ul", n.Items)
	case *ast.OrderedList:
		return s.renderList("ol", n.Items)
	case *ast.DefinitionList:
		return s.renderList("dl", n.Items)
	case *ast.Preformatted:
		return s.renderPreformatted(n)
	case *ast.Heading:
		return s.renderHeading(n)
	case *ast.Table:
		return s.renderTable(n)
	case *ast.Template:
		return s.renderTemplate(n)
	case *ast.Argument:
		return s.renderArgument(n)
	case *ast.Redirect:
		return s.renderRedirect(n)
	case *ast.SyntaxHighlight:
		return s.renderHighlight(n)
	case *ast.Tag:
		if n.Name == "br" {
			return "<br>", nil
		}
		return "", nil
	case *ast.Comment, *ast.Bold, *ast.Italic, *ast.BoldItalic:
		return "", nil
	}
	return "", nil
}

// escapeText escapes s for use in element content or a quoted attribute.
func escapeText(s string) string {
	return string(util.EscapeHTML([]byte(s)))
}

func (s *state) logLookupError(kind, title string, err error) {
	s.r.logger.WarnContext(s.ctx, "article lookup failed",
		slog.String("kind", kind),
		slog.String("title", title),
		slog.Any("error", err))
}

func (s *state) findArticle(title string) (*store.Article, error) {
	if s.r.articles == nil {
		return nil, nil
	}
	return s.r.articles.FindArticle(s.ctx, title)
}
