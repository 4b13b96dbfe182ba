package wiki2html

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/arran4/wiki2html/ast"
)

// PreviewOptions configure Preview. Zero values select the defaults noted
// on each field.
type PreviewOptions struct {
	// Width of the image in pixels. Default 1024.
	Width int
	// Margin around the content in pixels. Default 48.
	Margin int
	// FontSize is the body text size in points. Default 16.
	FontSize float64
	// Theme defaults to LightTheme.
	Theme Theme
	// Fonts missing from the set are taken from the bundled Go fonts.
	Fonts Fonts
	// LinkFootnotes lists external link targets under the article.
	// Default true.
	LinkFootnotes *bool
	// MaxHeight bounds the drawing; content below it is cut. Default 8192.
	MaxHeight int
	// ThumbnailWidth, when positive, scales the finished image down to
	// that width.
	ThumbnailWidth int
}

const (
	listMarkerWidth = 28
	listMarkerGap   = 8
)

// Preview draws doc as a raster image: a plain reading view of the article
// with headings, emphasis, lists, tables and code blocks. Templates are not
// expanded; they appear as placeholders.
func Preview(doc *ast.Document, opts PreviewOptions) (*image.RGBA, error) {
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Margin <= 0 {
		opts.Margin = 48
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 16
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = 8192
	}
	if opts.Theme == (Theme{}) {
		opts.Theme = LightTheme
	}
	if !opts.Fonts.complete() {
		bundled, err := LoadFonts(FontConfig{Size: opts.FontSize})
		if err != nil {
			return nil, err
		}
		opts.Fonts.fill(bundled)
	}
	if !opts.Fonts.complete() {
		return nil, errIncompleteFonts
	}
	footnotes := true
	if opts.LinkFootnotes != nil {
		footnotes = *opts.LinkFootnotes
	}

	c := newCanvas(opts.Width, opts.MaxHeight, opts.Margin, opts.Theme, opts.Fonts, opts.FontSize)
	p := &previewer{c: c, size: opts.FontSize, footnotes: footnotes}
	p.blocks(doc.Nodes, opts.Margin, opts.Width-opts.Margin)
	p.drawFootnotes()

	img := c.crop(max(c.y+opts.Margin, opts.Margin+50))
	return scaleToWidth(img, opts.ThumbnailWidth), nil
}

type previewer struct {
	c         *canvas
	size      float64
	footnotes bool
	noteIndex map[string]int
	notes     []string
}

// style is the text style in effect while collecting spans.
type style struct {
	bold, italic bool
	size         float64
	color        color.Color
	underline    bool
}

func (p *previewer) body() style {
	return style{size: p.size, color: p.c.theme.Text}
}

func (p *previewer) emit(out *[]span, text string, st style) {
	if text == "" {
		return
	}
	*out = append(*out, span{
		text:      text,
		face:      p.c.fonts.styled(st.bold, st.italic),
		size:      st.size,
		color:     st.color,
		underline: st.underline,
	})
}

// note returns the footnote number for url, adding it on first use.
func (p *previewer) note(url string) int {
	if p.noteIndex == nil {
		p.noteIndex = make(map[string]int)
	}
	if n, ok := p.noteIndex[url]; ok {
		return n
	}
	p.notes = append(p.notes, url)
	p.noteIndex[url] = len(p.notes)
	return len(p.notes)
}

// spans collects the inline content of nodes. Emphasis toggles apply to the
// rest of the sibling list.
func (p *previewer) spans(nodes []ast.Node, st style, out *[]span) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *ast.Text:
			p.emit(out, strings.ReplaceAll(n.Value, "\n", " "), st)
		case *ast.CharacterEntity:
			p.emit(out, string(n.Character), st)
		case *ast.Bold:
			st.bold = !st.bold
		case *ast.Italic:
			st.italic = !st.italic
		case *ast.BoldItalic:
			st.bold, st.italic = !st.bold, !st.italic
		case *ast.Link:
			link := st
			link.color, link.underline = p.c.theme.Link, true
			p.spans(n.Text, link, out)
		case *ast.ExternalLink:
			p.externalLink(n, st, out)
		case *ast.Template:
			warn := st
			warn.color = p.c.theme.Warning
			p.emit(out, "{{"+strings.TrimSpace(ast.PlainText(n.Name))+"}}", warn)
		case *ast.Argument:
			warn := st
			warn.color = p.c.theme.Warning
			p.emit(out, "{{{"+n.Name+"}}}", warn)
		case *ast.Tag:
			if n.Name == "br" {
				*out = append(*out, span{newline: true})
			}
		case *ast.ParagraphBreak:
			*out = append(*out, span{newline: true})
		default:
			if ast.IsBlock(n) {
				warn := st
				warn.color, warn.size = p.c.theme.Warning, st.size*0.9
				*out = append(*out, span{newline: true})
				p.emit(out, "⚠ Nested "+blockName(n), warn)
				*out = append(*out, span{newline: true})
			}
		}
	}
}

func (p *previewer) externalLink(link *ast.ExternalLink, st style, out *[]span) {
	if len(link.Nodes) == 0 {
		return
	}
	first, ok := link.Nodes[0].(*ast.Text)
	if !ok {
		p.spans(link.Nodes, st, out)
		return
	}
	url, label, _ := strings.Cut(first.Value, " ")
	st.color, st.underline = p.c.theme.Link, true
	n := 0
	if p.footnotes {
		n = p.note(url)
	}
	if label == "" && len(link.Nodes) == 1 {
		if n > 0 {
			p.emit(out, fmt.Sprintf("[%d]", n), st)
		} else {
			p.emit(out, url, st)
		}
		return
	}
	p.emit(out, label, st)
	p.spans(link.Nodes[1:], st, out)
	if n > 0 {
		p.emit(out, fmt.Sprintf("[%d]", n), style{size: st.size * 0.75, color: p.c.theme.Text})
	}
}

// blocks draws a sibling list, gathering inline runs into paragraphs.
func (p *previewer) blocks(nodes []ast.Node, left, right int) {
	var run []ast.Node
	flush := func() {
		if len(run) == 0 {
			return
		}
		var out []span
		p.spans(run, p.body(), &out)
		run = nil
		if len(out) == 0 {
			return
		}
		p.c.flow(out, left, right)
		p.c.space(int(p.size * 0.9))
	}
	for _, n := range nodes {
		if !ast.IsBlock(n) {
			run = append(run, n)
			continue
		}
		flush()
		p.block(n, left, right)
	}
	flush()
}

var headingScale = [...]float64{1.9, 1.6, 1.4, 1.25, 1.15, 1.05}

func (p *previewer) block(n ast.Node, left, right int) {
	switch n := n.(type) {
	case *ast.Heading:
		st := p.body()
		st.bold = true
		st.size = p.size * headingScale[min(max(n.Level, 1), 6)-1]
		var out []span
		p.spans(n.Nodes, st, &out)
		p.c.space(int(p.size * 0.75))
		p.c.flow(out, left, right)
		if n.Level <= 2 {
			p.c.fill(image.Rect(left, p.c.y, right, p.c.y+1), p.c.theme.Rule)
		}
		p.c.space(int(p.size * 0.5))
	case *ast.HorizontalDivider:
		p.c.rule(left, right)
	case *ast.UnorderedList:
		p.list(n.Items, false, left, right)
	case *ast.OrderedList:
		p.list(n.Items, true, left, right)
	case *ast.DefinitionList:
		p.list(n.Items, false, left, right)
	case *ast.Preformatted:
		p.c.space(4)
		p.c.codeBlock(flatten(n.Nodes), left, right, p.size*0.95)
	case *ast.SyntaxHighlight:
		p.c.space(4)
		p.c.codeBlock(n.Code, left, right, p.size*0.95)
	case *ast.Table:
		p.table(n, left, right)
	case *ast.Redirect:
		st := p.body()
		var out []span
		p.emit(&out, "↪ ", st)
		st.color, st.underline = p.c.theme.Link, true
		p.emit(&out, n.Target, st)
		p.c.flow(out, left, right)
		p.c.space(int(p.size * 0.9))
	}
}

func (p *previewer) list(items []ast.ListItem, ordered bool, left, right int) {
	markerRight := left + listMarkerWidth
	contentLeft := markerRight + listMarkerGap
	number := 0
	for i, item := range items {
		st := p.body()
		marker := "•"
		itemLeft := contentLeft
		switch {
		case item.Type == ast.ListItemTerm:
			marker, itemLeft, st.bold = "", left, true
		case item.Type == ast.ListItemDetails:
			marker = ""
		case ordered:
			number++
			marker = fmt.Sprintf("%d.", number)
		}
		p.listItem(item, marker, st, left, markerRight, itemLeft, right)
		if i < len(items)-1 {
			p.c.space(int(p.size * 0.6))
		}
	}
	p.c.space(int(p.size * 0.7))
}

// listItem draws one item. The marker sits on the baseline of the item's
// first line, or at the top when the item starts with a nested block.
func (p *previewer) listItem(item ast.ListItem, marker string, st style, markerLeft, markerRight, contentLeft, right int) {
	top := p.c.y
	drawn := marker == ""
	mark := func(baseline int) {
		if drawn {
			return
		}
		p.c.marker(marker, baseline, markerLeft, markerRight, p.size)
		drawn = true
	}
	var run []ast.Node
	flush := func() {
		if len(run) == 0 {
			return
		}
		var out []span
		p.spans(run, st, &out)
		run = nil
		if baselines := p.c.flow(out, contentLeft, right); len(baselines) > 0 {
			mark(baselines[0])
		}
	}
	for _, n := range item.Nodes {
		if !ast.IsBlock(n) {
			run = append(run, n)
			continue
		}
		flush()
		mark(top + int(p.size))
		p.c.space(int(p.size * 0.3))
		p.block(n, contentLeft, right)
	}
	flush()
	mark(top + int(p.size))
}

// table draws a grid of equal-width columns.
func (p *previewer) table(t *ast.Table, left, right int) {
	for _, caption := range t.Captions {
		st := p.body()
		st.italic = true
		var out []span
		p.spans(caption.Content, st, &out)
		p.c.flow(out, left, right)
	}
	cols := 0
	for _, row := range t.Rows {
		cols = max(cols, len(row.Cells))
	}
	if cols == 0 {
		return
	}

	const border = 1
	pad := max(int(p.size*0.6), 8)
	colWidth := max((right-left-border*(cols+1))/cols, 60)
	tableRight := min(left+cols*colWidth+border*(cols+1), right)
	minHeight := int(p.size * 1.1)

	p.c.space(int(p.size * 0.3))
	top := p.c.y
	p.c.fill(image.Rect(left, top, tableRight, top+border), p.c.theme.Rule)
	y := top + border
	for _, row := range t.Rows {
		tallest := minHeight
		for col, cell := range row.Cells {
			x := left + border + col*(colWidth+border)
			st := p.body()
			st.bold = cell.Type == ast.TableCellHeading
			var out []span
			p.spans(cell.Content, st, &out)
			p.c.y = y + pad
			p.c.flow(out, x+pad, x+colWidth-pad)
			tallest = max(tallest, p.c.y-(y+pad))
		}
		y += tallest + 2*pad
		p.c.fill(image.Rect(left, y, tableRight, y+border), p.c.theme.Rule)
		y += border
	}
	for col := 0; col <= cols; col++ {
		x := min(left+col*(colWidth+border), tableRight-border)
		p.c.fill(image.Rect(x, top, x+border, y), p.c.theme.Rule)
	}
	p.c.y = y + int(p.size*0.7)
}

func (p *previewer) drawFootnotes() {
	if len(p.notes) == 0 {
		return
	}
	p.c.space(int(p.size * 0.4))
	p.c.rule(p.c.margin, p.c.width/3)
	st := p.body()
	st.size = p.size * 0.85
	for i, url := range p.notes {
		var out []span
		p.emit(&out, fmt.Sprintf("[%d] %s", i+1, url), st)
		p.c.flow(out, p.c.margin, p.c.width-p.c.margin)
	}
}

// flatten returns the text of nodes with all markup dropped.
func flatten(nodes []ast.Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		switch n := n.(type) {
		case *ast.Text:
			sb.WriteString(n.Value)
		case *ast.CharacterEntity:
			sb.WriteRune(n.Character)
		case *ast.Link:
			sb.WriteString(flatten(n.Text))
		case *ast.ExternalLink:
			sb.WriteString(flatten(n.Nodes))
		}
	}
	return sb.String()
}

func blockName(n ast.Node) string {
	switch n.(type) {
	case *ast.Heading:
		return "heading"
	case *ast.UnorderedList, *ast.OrderedList, *ast.DefinitionList:
		return "list"
	case *ast.Table:
		return "table"
	case *ast.Preformatted, *ast.SyntaxHighlight:
		return "code block"
	case *ast.HorizontalDivider:
		return "divider"
	case *ast.Redirect:
		return "redirect"
	}
	return "block"
}
