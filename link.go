package wiki2html

import (
	"strconv"
	"strings"

	"github.com/arran4/wiki2html/ast"
)

// percentEncode escapes every byte of s that is not an ASCII letter or
// digit.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0xF])
	}
	return sb.String()
}

// renderInternalLink links to the read view of an existing article and to
// the edit view of a missing one. The target is recorded either way.
func (s *state) renderInternalLink(link *ast.Link) (string, error) {
	text, err := s.renderInline(link.Text)
	if err != nil {
		return "", err
	}
	return s.articleLink(link.Target, text), nil
}

func (s *state) articleLink(target, text string) string {
	s.internalLinks = append(s.internalLinks, target)
	article, err := s.findArticle(target)
	if err != nil {
		s.logLookupError("link", target, err)
		return errorMarker
	}
	if article == nil {
		return `<a class="new" href="` + s.r.opts.EditBaseURL + percentEncode(target) + `">` + text + `</a>`
	}
	return `<a href="` + s.r.opts.ReadBaseURL + percentEncode(target) + `">` + text + `</a>`
}

// renderExternalLink renders [url label]. The first node must be text that
// starts with the URL; a link without a label is numbered.
func (s *state) renderExternalLink(link *ast.ExternalLink) (string, error) {
	if len(link.Nodes) == 0 {
		return `<code class="error">External link does not start with text</code>`, nil
	}
	first, ok := link.Nodes[0].(*ast.Text)
	if !ok {
		return `<code class="error">External link does not start with text</code>`, nil
	}
	url, label, _ := strings.Cut(first.Value, " ")
	if len(link.Nodes) > 1 {
		more, err := s.renderInline(link.Nodes[1:])
		if err != nil {
			return "", err
		}
		label += more
	}
	class := "external text"
	if label == "" {
		s.autoNumber++
		class = "external autonumber"
		label = "[" + strconv.Itoa(s.autoNumber) + "]"
	}
	return `<a target="_blank" rel="nofollow noreferrer noopener" class="` + class + `" href="` + escapeText(url) + `">` + label + `</a>`, nil
}

// renderCategory records a category assignment. Categories produce no
// output of their own.
func (s *state) renderCategory(c *ast.Category) (string, error) {
	ordinal, err := s.renderInline(c.Ordinal)
	if err != nil {
		return "", err
	}
	s.categories = append(s.categories, CategoryLink{Target: c.Target, Ordinal: ordinal})
	return "", nil
}

func (s *state) renderRedirect(r *ast.Redirect) (string, error) {
	s.redirect = r.Target
	closing := s.closeParagraph()
	link := s.articleLink(r.Target, escapeText(r.Target))
	return closing + `<div class="redirect">` + link + `</div>` + s.openParagraph(), nil
}
