package parser

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/arran4/wiki2html/ast"
)

var (
	entityPattern   = regexp.MustCompile(`^&(#[0-9]{1,7}|#[xX][0-9a-fA-F]{1,6}|[A-Za-z][A-Za-z0-9]{1,31});`)
	tagPattern      = regexp.MustCompile(`^<(/?)([A-Za-z][A-Za-z0-9]*)(?:\s[^<>]*)?/?>`)
	nowikiPattern   = regexp.MustCompile(`(?is)^<nowiki\s*>(.*?)</nowiki\s*>`)
	nowikiEmpty     = regexp.MustCompile(`(?i)^<nowiki\s*/>`)
	externalPattern = regexp.MustCompile(`^\[((?:https?|ftp|mailto|irc|news):[^\s\]<>"\[]+|//[^\s\]<>"\[]+)`)
)

const categoryPrefix = "category:"

type inlineParser struct {
	src   string
	pos   int
	nodes []ast.Node
	text  strings.Builder
}

// parseInline parses text that contains no block structure.
func parseInline(s string) []ast.Node {
	p := &inlineParser{src: s}
	p.parse()
	return p.nodes
}

func (p *inlineParser) parse() {
	for p.pos < len(p.src) {
		rest := p.src[p.pos:]
		switch {
		case strings.HasPrefix(rest, "''"):
			p.apostrophes()
		case strings.HasPrefix(rest, "<!--"):
			p.comment()
		case rest[0] == '<':
			p.tag()
		case rest[0] == '>':
			p.emit(&ast.CharacterEntity{Character: '>'})
			p.pos++
		case rest[0] == '&':
			p.entity()
		case strings.HasPrefix(rest, "[["):
			if !p.link() {
				p.literal("[[")
			}
		case rest[0] == '[':
			if !p.externalLink() {
				p.literal("[")
			}
		case strings.HasPrefix(rest, "{{{"):
			if !p.argument() && !p.template() {
				p.literal("{")
			}
		case strings.HasPrefix(rest, "{{"):
			if !p.template() {
				p.literal("{{")
			}
		default:
			p.text.WriteByte(rest[0])
			p.pos++
		}
	}
	p.flush()
}

func (p *inlineParser) flush() {
	if p.text.Len() == 0 {
		return
	}
	p.nodes = append(p.nodes, &ast.Text{Value: p.text.String()})
	p.text.Reset()
}

func (p *inlineParser) emit(n ast.Node) {
	p.flush()
	p.nodes = append(p.nodes, n)
}

func (p *inlineParser) literal(s string) {
	p.text.WriteString(s)
	p.pos += len(s)
}

// apostrophes handles a run of two or more apostrophes. Runs of four keep
// one apostrophe as text; runs longer than five keep the excess.
func (p *inlineParser) apostrophes() {
	n := 0
	for p.pos+n < len(p.src) && p.src[p.pos+n] == '\'' {
		n++
	}
	p.pos += n
	switch {
	case n == 2:
		p.emit(&ast.Italic{})
	case n == 3:
		p.emit(&ast.Bold{})
	case n == 4:
		p.text.WriteByte('\'')
		p.emit(&ast.Bold{})
	default:
		p.text.WriteString(strings.Repeat("'", n-5))
		p.emit(&ast.BoldItalic{})
	}
}

func (p *inlineParser) comment() {
	body := p.src[p.pos+4:]
	end := strings.Index(body, "-->")
	if end < 0 {
		p.emit(&ast.Comment{Text: body})
		p.pos = len(p.src)
		return
	}
	p.emit(&ast.Comment{Text: body[:end]})
	p.pos += 4 + end + 3
}

func (p *inlineParser) tag() {
	rest := p.src[p.pos:]
	if m := nowikiPattern.FindStringSubmatch(rest); m != nil {
		p.flush()
		p.nodes = append(p.nodes, literal(m[1])...)
		p.pos += len(m[0])
		return
	}
	if m := nowikiEmpty.FindString(rest); m != "" {
		p.pos += len(m)
		return
	}
	if m := tagPattern.FindStringSubmatch(rest); m != nil {
		p.emit(&ast.Tag{Name: strings.ToLower(m[2]), Closing: m[1] == "/"})
		p.pos += len(m[0])
		return
	}
	p.emit(&ast.CharacterEntity{Character: '<'})
	p.pos++
}

// entity decodes a named or numeric character reference. An ampersand that
// does not start one is itself emitted as an entity.
func (p *inlineParser) entity() {
	m := entityPattern.FindString(p.src[p.pos:])
	if m != "" {
		if decoded := html.UnescapeString(m); decoded != m {
			p.flush()
			for _, r := range decoded {
				p.nodes = append(p.nodes, &ast.CharacterEntity{Character: r})
			}
			p.pos += len(m)
			return
		}
	}
	p.emit(&ast.CharacterEntity{Character: '&'})
	p.pos++
}

// link parses [[Target|Text]] and [[Category:Target|Ordinal]].
func (p *inlineParser) link() bool {
	end, ok := scanBalanced(p.src, p.pos)
	if !ok {
		return false
	}
	inner := p.src[p.pos+2 : end-2]
	if strings.Contains(inner, "\n") {
		return false
	}
	target, display, piped := inner, "", false
	if i := indexTopLevel(inner, "|"); i >= 0 {
		target, display, piped = inner[:i], inner[i+1:], true
	}
	target = strings.TrimSpace(target)
	if !validTarget(target) {
		return false
	}
	p.pos = end

	if len(target) > len(categoryPrefix) && strings.EqualFold(target[:len(categoryPrefix)], categoryPrefix) {
		c := &ast.Category{Target: strings.TrimSpace(target[len(categoryPrefix):])}
		if piped {
			c.Ordinal = parseInline(display)
		}
		p.emit(c)
		return true
	}
	target = strings.TrimSpace(strings.TrimPrefix(target, ":"))
	if !piped || strings.TrimSpace(display) == "" {
		display = target
	}
	p.emit(&ast.Link{Target: target, Text: parseInline(display)})
	return true
}

func validTarget(target string) bool {
	return target != "" && target != ":" && !strings.ContainsAny(target, "<>[]{}|\n")
}

// externalLink parses [url label]. The URL and label share the first Text
// node, separated by a single space.
func (p *inlineParser) externalLink() bool {
	rest := p.src[p.pos:]
	m := externalPattern.FindStringSubmatch(rest)
	if m == nil {
		return false
	}
	url := m[1]
	after := rest[len(m[0]):]
	end := strings.IndexByte(after, ']')
	if end < 0 || strings.Contains(after[:end], "\n") {
		return false
	}
	label := after[:end]
	p.pos += len(m[0]) + end + 1

	if label == "" || strings.TrimSpace(label) == "" {
		p.emit(&ast.ExternalLink{Nodes: []ast.Node{&ast.Text{Value: url}}})
		return true
	}
	label = strings.TrimPrefix(label, " ")
	nodes := parseInline(label)
	if len(nodes) == 0 {
		nodes = []ast.Node{&ast.Text{Value: url}}
	} else if t, ok := nodes[0].(*ast.Text); ok {
		nodes[0] = &ast.Text{Value: url + " " + t.Value}
	} else {
		nodes = append([]ast.Node{&ast.Text{Value: url + " "}}, nodes...)
	}
	p.emit(&ast.ExternalLink{Nodes: nodes})
	return true
}

// argument parses {{{name|default}}}.
func (p *inlineParser) argument() bool {
	end, ok := scanBalanced(p.src, p.pos)
	if !ok || !strings.HasSuffix(p.src[:end], "}}}") || strings.HasPrefix(p.src[p.pos:], "{{{{") {
		return false
	}
	inner := p.src[p.pos+3 : end-3]
	a := &ast.Argument{Name: strings.TrimSpace(inner)}
	if i := indexTopLevel(inner, "|"); i >= 0 {
		a.Name = strings.TrimSpace(inner[:i])
		a.Default = parseInline(inner[i+1:])
		if a.Default == nil {
			a.Default = []ast.Node{}
		}
	}
	p.emit(a)
	p.pos = end
	return true
}

// template parses {{name|positional|key=value}}.
func (p *inlineParser) template() bool {
	end, ok := scanBalanced(p.src, p.pos)
	if !ok {
		return false
	}
	inner := p.src[p.pos+2 : end-2]
	parts := splitTopLevel(inner, '|')
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return false
	}
	t := &ast.Template{Name: parseInline(name)}
	for _, part := range parts[1:] {
		if i := indexTopLevel(part, "="); i >= 0 {
			t.Parameters = append(t.Parameters, ast.Parameter{
				Name:  parseInline(strings.TrimSpace(part[:i])),
				Value: parseInline(strings.TrimSpace(part[i+1:])),
			})
			continue
		}
		t.Parameters = append(t.Parameters, ast.Parameter{Value: parseInline(part)})
	}
	p.emit(t)
	p.pos = end
	return true
}

// literal returns s as text, with the characters that are significant in
// HTML emitted as character entities.
func literal(s string) []ast.Node {
	var nodes []ast.Node
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == '<' || r == '>' || r == '&' {
			if start < i {
				nodes = append(nodes, &ast.Text{Value: s[start:i]})
			}
			nodes = append(nodes, &ast.CharacterEntity{Character: r})
			start = i + size
		}
		i += size
	}
	if start < len(s) {
		nodes = append(nodes, &ast.Text{Value: s[start:]})
	}
	return nodes
}
