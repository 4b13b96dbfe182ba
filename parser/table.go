package parser

import (
	"regexp"
	"strings"

	"github.com/arran4/wiki2html/ast"
)

var attributePattern = regexp.MustCompile(`([A-Za-z_:][-A-Za-z0-9_:.]*)(?:\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'=<>` + "`" + `]+)))?`)

// parseAttributes reads name="value" pairs. Names are lower-cased; values
// are kept verbatim and escaped on output.
func parseAttributes(s string) []ast.Attribute {
	var attrs []ast.Attribute
	for _, m := range attributePattern.FindAllStringSubmatch(s, -1) {
		attrs = append(attrs, ast.Attribute{
			Name:  strings.ToLower(m[1]),
			Value: m[2] + m[3] + m[4],
		})
	}
	return attrs
}

// cellBuilder accumulates the lines of a cell or caption until the next
// cell marker.
type cellBuilder struct {
	caption bool
	typ     ast.TableCellType
	attrs   []ast.Attribute
	lines   []string
}

type tableBuilder struct {
	table *ast.Table
	row   *ast.TableRow
	cell  *cellBuilder
}

// parseTable consumes lines from "{|" to the matching "|}". Nested tables
// stay inside the content of the cell that holds them.
func (p *blockParser) parseTable() ast.Node {
	first := strings.TrimLeft(p.lines[p.pos], " \t")
	b := &tableBuilder{table: &ast.Table{Attributes: parseAttributes(first[2:])}}
	p.pos++
	depth := 0
	for p.pos < len(p.lines) {
		raw := p.lines[p.pos]
		line := strings.TrimLeft(raw, " \t")
		p.pos++
		if depth > 0 || (b.cell != nil && strings.HasPrefix(line, "{|")) {
			switch {
			case strings.HasPrefix(line, "{|"):
				depth++
			case strings.HasPrefix(line, "|}"):
				depth--
			}
			b.cell.lines = append(b.cell.lines, line)
			continue
		}
		switch {
		case strings.HasPrefix(line, "|}"):
			b.finishCell()
			b.finishRow()
			return b.table
		case strings.HasPrefix(line, "|+"):
			b.finishCell()
			attrs, content := splitCell(line[2:])
			b.cell = &cellBuilder{caption: true, attrs: attrs, lines: []string{content}}
		case strings.HasPrefix(line, "|-"):
			b.finishCell()
			b.finishRow()
			b.row = &ast.TableRow{Attributes: parseAttributes(strings.TrimLeft(line[2:], "-"))}
		case strings.HasPrefix(line, "!"):
			b.cells(ast.TableCellHeading, splitCells(line[1:], true))
		case strings.HasPrefix(line, "|"):
			b.cells(ast.TableCellOrdinary, splitCells(line[1:], false))
		case b.cell != nil:
			b.cell.lines = append(b.cell.lines, raw)
		}
	}
	b.finishCell()
	b.finishRow()
	return b.table
}

func (b *tableBuilder) cells(typ ast.TableCellType, raw []string) {
	for _, cell := range raw {
		b.finishCell()
		attrs, content := splitCell(cell)
		b.cell = &cellBuilder{typ: typ, attrs: attrs, lines: []string{content}}
	}
}

func (b *tableBuilder) finishCell() {
	c := b.cell
	if c == nil {
		return
	}
	b.cell = nil
	content := strings.TrimSpace(strings.Join(c.lines, "\n"))
	if c.caption {
		b.table.Captions = append(b.table.Captions, ast.TableCaption{
			Attributes: c.attrs,
			Content:    parseInline(content),
		})
		return
	}
	if b.row == nil {
		b.row = &ast.TableRow{}
	}
	b.row.Cells = append(b.row.Cells, ast.TableCell{
		Type:       c.typ,
		Attributes: c.attrs,
		Content:    parseBlocks(content),
	})
}

// finishRow appends the current row. Rows without cells are dropped.
func (b *tableBuilder) finishRow() {
	if b.row != nil && len(b.row.Cells) > 0 {
		b.table.Rows = append(b.table.Rows, *b.row)
	}
	b.row = nil
}

// splitCells splits the cells of a single line on "||", and on "!!" for
// heading lines.
func splitCells(s string, heading bool) []string {
	var cells []string
	for {
		i := indexTopLevel(s, "||")
		if heading {
			if j := indexTopLevel(s, "!!"); j >= 0 && (i < 0 || j < i) {
				i = j
			}
		}
		if i < 0 {
			return append(cells, s)
		}
		cells = append(cells, s[:i])
		s = s[i+2:]
	}
}

// splitCell separates "attrs | content". A cell without a top-level single
// pipe has no attributes.
func splitCell(s string) ([]ast.Attribute, string) {
	i := indexTopLevel(s, "|")
	if i < 0 || strings.HasPrefix(s[i:], "||") {
		return nil, s
	}
	return parseAttributes(s[:i]), s[i+1:]
}
