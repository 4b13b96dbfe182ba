package parser

import (
	"strings"

	"github.com/arran4/wiki2html/ast"
)

type listLine struct {
	prefix string
	text   string
}

// parseList consumes consecutive list lines and returns the outermost list.
// Lines whose first marker starts a different kind of list end it.
func (p *blockParser) parseList() ast.Node {
	var lines []listLine
	kind := listKind(p.lines[p.pos][0])
	for p.pos < len(p.lines) {
		line := p.lines[p.pos]
		if line == "" || listKind(line[0]) != kind {
			break
		}
		n := strings.IndexFunc(line, func(r rune) bool { return !strings.ContainsRune("*#:;", r) })
		if n < 0 {
			n = len(line)
		}
		lines = append(lines, listLine{prefix: line[:n], text: strings.TrimSpace(line[n:])})
		p.pos++
	}
	return buildList(lines)
}

func listKind(c byte) byte {
	switch c {
	case '*', '#':
		return c
	case ':', ';':
		return ';'
	}
	return 0
}

// buildList builds one list from lines that all share the kind of their
// first marker. Lines with longer prefixes become nested lists inside the
// preceding item.
func buildList(lines []listLine) ast.Node {
	var items []ast.ListItem
	for i := 0; i < len(lines); {
		line := lines[i]
		if len(line.prefix) == 1 {
			items = append(items, listItems(line)...)
			i++
			continue
		}
		var nested []listLine
		for i < len(lines) && len(lines[i].prefix) > 1 {
			nested = append(nested, listLine{prefix: lines[i].prefix[1:], text: lines[i].text})
			i++
		}
		if len(items) == 0 {
			items = append(items, ast.ListItem{Type: itemType(line.prefix[0])})
		}
		last := &items[len(items)-1]
		for _, group := range groupByKind(nested) {
			last.Nodes = append(last.Nodes, buildList(group))
		}
	}
	switch lines[0].prefix[0] {
	case '*':
		return &ast.UnorderedList{Items: items}
	case '#':
		return &ast.OrderedList{Items: items}
	default:
		return &ast.DefinitionList{Items: items}
	}
}

func groupByKind(lines []listLine) [][]listLine {
	var groups [][]listLine
	for i, line := range lines {
		if i == 0 || listKind(line.prefix[0]) != listKind(lines[i-1].prefix[0]) {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], line)
	}
	return groups
}

func itemType(marker byte) ast.ListItemType {
	switch marker {
	case ';':
		return ast.ListItemTerm
	case ':':
		return ast.ListItemDetails
	}
	return ast.ListItemOrdinary
}

// listItems returns the items for a single-marker line. A ";term : details"
// line yields both a term and a details item.
func listItems(line listLine) []ast.ListItem {
	typ := itemType(line.prefix[0])
	if typ == ast.ListItemTerm {
		if i := indexTopLevel(line.text, ":"); i >= 0 && !isURLColon(line.text, i) {
			return []ast.ListItem{
				{Type: ast.ListItemTerm, Nodes: parseInline(strings.TrimSpace(line.text[:i]))},
				{Type: ast.ListItemDetails, Nodes: parseInline(strings.TrimSpace(line.text[i+1:]))},
			}
		}
	}
	return []ast.ListItem{{Type: typ, Nodes: parseInline(line.text)}}
}

// isURLColon reports whether the colon at s[i] belongs to a URL scheme.
func isURLColon(s string, i int) bool {
	return strings.HasPrefix(s[i:], "://")
}
