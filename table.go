package wiki2html

import (
	"strings"

	"github.com/arran4/wiki2html/ast"
)

// allowedAttributes lists the attributes table markup may carry. Anything
// else, event handlers included, is dropped.
var allowedAttributes = map[string]bool{
	"abbr": true, "align": true, "bgcolor": true, "border": true,
	"cellpadding": true, "cellspacing": true, "class": true, "colspan": true,
	"dir": true, "headers": true, "height": true, "id": true, "lang": true,
	"rowspan": true, "scope": true, "style": true, "summary": true,
	"title": true, "valign": true, "width": true,
}

// unsafeStyle matches CSS that can run script or load resources.
var unsafeStyle = []string{"expression", "url(", "javascript:", "\\", "/*", "@import", "behavior"}

// renderAttributes renders the allowed attributes of attrs, each preceded by
// a space. Values are escaped.
func renderAttributes(attrs []ast.Attribute) string {
	var sb strings.Builder
	for _, a := range attrs {
		name := strings.ToLower(a.Name)
		if !allowedAttributes[name] {
			continue
		}
		lower := strings.ToLower(a.Value)
		if strings.Contains(lower, "javascript:") || strings.Contains(lower, "vbscript:") {
			continue
		}
		if name == "style" && containsAny(lower, unsafeStyle) {
			continue
		}
		sb.WriteString(" ")
		sb.WriteString(name)
		sb.WriteString(`="`)
		sb.WriteString(escapeText(a.Value))
		sb.WriteString(`"`)
	}
	return sb.String()
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (s *state) renderTable(t *ast.Table) (string, error) {
	var sb strings.Builder
	sb.WriteString(s.closeParagraph())
	sb.WriteString("<table" + renderAttributes(t.Attributes) + ">\n")
	for _, c := range t.Captions {
		content, err := s.renderInline(c.Content)
		if err != nil {
			return "", err
		}
		sb.WriteString("<caption" + renderAttributes(c.Attributes) + ">" + content + "\n</caption>\n")
	}
	rows := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			html, err := s.renderCell(cell)
			if err != nil {
				return "", err
			}
			cells = append(cells, html)
		}
		rows = append(rows, "<tr"+renderAttributes(row.Attributes)+">\n"+strings.Join(cells, "\n")+"</tr>")
	}
	sb.WriteString("<tbody>" + strings.Join(rows, "\n") + "</tbody></table>")
	sb.WriteString(s.openParagraph())
	return sb.String(), nil
}

// renderCell renders one cell. Content up to the first paragraph break is
// inline; the rest is wrapped in a paragraph.
func (s *state) renderCell(cell ast.TableCell) (string, error) {
	tag := "td"
	if cell.Type == ast.TableCellHeading {
		tag = "th"
	}
	split := -1
	for i, n := range cell.Content {
		if _, ok := n.(*ast.ParagraphBreak); ok {
			split = i
			break
		}
	}
	var content string
	if split < 0 {
		html, err := s.renderInline(cell.Content)
		if err != nil {
			return "", err
		}
		content = html
	} else {
		before, err := s.renderInline(cell.Content[:split])
		if err != nil {
			return "", err
		}
		after, err := s.withParagraph(true, cell.Content[split+1:])
		if err != nil {
			return "", err
		}
		content = before + "<p>" + after + "</p>"
	}
	return "<" + tag + renderAttributes(cell.Attributes) + ">" + content + "\n</" + tag + ">", nil
}
