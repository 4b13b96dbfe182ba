// Package parser turns wikitext into the syntax tree defined by package ast.
//
// The grammar is the practical subset of MediaWiki markup that articles
// actually use: headings, lists, tables, preformatted blocks, emphasis,
// links, templates and a handful of tags. Parse never fails; markup it
// does not understand is kept as text.
package parser

import (
	"regexp"
	"strings"

	"github.com/arran4/wiki2html/ast"
)

var (
	headingPattern  = regexp.MustCompile(`^(={1,6})(.+?)(={1,6})[ \t]*$`)
	dividerPattern  = regexp.MustCompile(`^-{4,}(.*)$`)
	redirectPattern = regexp.MustCompile(`(?i)^#redirect\s*:?\s*\[\[([^\]|]+)(?:\|[^\]]*)?\]\](.*)$`)
	highlightBlock  = regexp.MustCompile(`(?is)^<(syntaxhighlight|source)(\s[^>]*)?>(.*?)</(?:syntaxhighlight|source)\s*>(.*)$`)
	preBlock        = regexp.MustCompile(`(?is)^<pre(\s[^>]*)?>(.*?)</pre\s*>(.*)$`)
	langAttribute   = regexp.MustCompile(`(?i)\blang\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`)
)

// Parse parses a complete page.
func Parse(wikitext string) *ast.Document {
	text := strings.ReplaceAll(wikitext, "\r\n", "\n")
	p := &blockParser{lines: logicalLines(text)}
	if len(p.lines) > 0 {
		if m := redirectPattern.FindStringSubmatch(p.lines[0]); m != nil {
			p.nodes = append(p.nodes, &ast.Redirect{Target: strings.TrimSpace(m[1])})
			p.lines[0] = strings.TrimSpace(m[2])
		}
	}
	return &ast.Document{Nodes: p.parse()}
}

// parseBlocks parses a fragment such as the content of a table cell.
func parseBlocks(text string) []ast.Node {
	p := &blockParser{lines: logicalLines(text)}
	return p.parse()
}

type blockParser struct {
	lines []string
	pos   int
	nodes []ast.Node
	// text collects the lines of the paragraph being read.
	text []string
	// inline is set when the last node produced was inline content, so a
	// blank line after it separates two paragraphs.
	inline       bool
	pendingBreak bool
}

func (p *blockParser) parse() []ast.Node {
	for p.pos < len(p.lines) {
		line := p.lines[p.pos]
		switch {
		case strings.TrimSpace(line) == "":
			p.flushText()
			if p.inline {
				p.pendingBreak = true
			}
			p.pos++
		case strings.HasPrefix(strings.TrimLeft(line, " \t"), "{|"):
			p.block(p.parseTable())
		case headingPattern.MatchString(line) && p.heading(line):
		case dividerPattern.MatchString(line):
			rest := dividerPattern.FindStringSubmatch(line)[1]
			p.block(&ast.HorizontalDivider{})
			p.pos++
			if strings.TrimSpace(rest) != "" {
				p.text = append(p.text, strings.TrimLeft(rest, " \t"))
			}
		case strings.ContainsRune("*#:;", rune(line[0])):
			p.block(p.parseList())
		case line[0] == ' ':
			p.block(p.parsePreformatted())
		case p.rawBlock(line):
		default:
			p.text = append(p.text, line)
			p.pos++
		}
	}
	p.flushText()
	return p.nodes
}

// block appends a block node. It consumes no input itself.
func (p *blockParser) block(n ast.Node) {
	p.flushText()
	p.pendingBreak = false
	p.nodes = append(p.nodes, n)
	p.inline = false
}

func (p *blockParser) flushText() {
	if len(p.text) == 0 {
		return
	}
	nodes := parseInline(strings.Join(p.text, "\n"))
	p.text = p.text[:0]
	if len(nodes) == 0 {
		return
	}
	if p.pendingBreak {
		p.nodes = append(p.nodes, &ast.ParagraphBreak{})
		p.pendingBreak = false
	}
	p.nodes = append(p.nodes, nodes...)
	p.inline = true
}

// heading parses a heading line. Marker runs of different lengths resolve to
// the shorter one; the excess markers stay in the content.
func (p *blockParser) heading(line string) bool {
	m := headingPattern.FindStringSubmatch(line)
	open, body, closing := m[1], m[2], m[3]
	level := min(len(open), len(closing))
	content := open[level:] + body + closing[level:]
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	p.block(&ast.Heading{Level: level, Nodes: parseInline(content)})
	p.pos++
	return true
}

func (p *blockParser) parsePreformatted() ast.Node {
	var lines []string
	for p.pos < len(p.lines) {
		line := p.lines[p.pos]
		if line == "" || line[0] != ' ' || strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line[1:])
		p.pos++
	}
	return &ast.Preformatted{Nodes: parseInline(strings.Join(lines, "\n"))}
}

// rawBlock handles <pre> and <syntaxhighlight>/<source> blocks that start a
// line. Text after the closing tag continues as an ordinary paragraph line.
func (p *blockParser) rawBlock(line string) bool {
	if line[0] != '<' {
		return false
	}
	if m := highlightBlock.FindStringSubmatch(line); m != nil {
		p.block(&ast.SyntaxHighlight{
			Language: attributeLanguage(m[2]),
			Code:     trimNewlines(m[3]),
		})
		p.rest(m[4])
		return true
	}
	if m := preBlock.FindStringSubmatch(line); m != nil {
		p.block(&ast.Preformatted{Nodes: literal(trimNewlines(m[2]))})
		p.rest(m[3])
		return true
	}
	return false
}

func (p *blockParser) rest(s string) {
	p.pos++
	if strings.TrimSpace(s) != "" {
		p.text = append(p.text, s)
	}
}

func attributeLanguage(attrs string) string {
	m := langAttribute.FindStringSubmatch(attrs)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1] + m[2] + m[3])
}

func trimNewlines(s string) string {
	s = strings.TrimPrefix(s, "\n")
	return strings.TrimSuffix(s, "\n")
}
