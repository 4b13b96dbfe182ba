// Package ast defines the wikitext syntax tree consumed by the wiki2html
// renderer.
//
// Node is a closed union: every variant is declared in this file and
// implements the unexported node method, so code outside the package can
// switch over the concrete types but cannot add new ones.
package ast

import "strings"

// Node is a single element of a parsed wikitext document.
type Node interface {
	node()
}

// Document is the root of a parsed wikitext page.
type Document struct {
	Nodes []Node
}

// Text is literal text. The parser never places markup characters that
// would need escaping inside a Text value; those are emitted as
// CharacterEntity nodes instead.
type Text struct {
	Value string
}

// CharacterEntity is a single character that was written as an HTML
// entity, or a character that must be escaped on output.
type CharacterEntity struct {
	Character rune
}

// Bold, Italic and BoldItalic are toggles: each marks the position of a
// ''' / '' / ''''' run, not a span.
type (
	Bold       struct{}
	Italic     struct{}
	BoldItalic struct{}
)

// Link is an internal [[Target|Text]] link. Text holds the target itself
// when the link has no pipe.
type Link struct {
	Target string
	Text   []Node
}

// ExternalLink is a [url text] link. The first node is a Text whose value
// starts with the URL, followed by a space and the start of the label when
// a label is present.
type ExternalLink struct {
	Nodes []Node
}

// Category is a [[Category:Target|Ordinal]] assignment.
type Category struct {
	Target  string
	Ordinal []Node
}

// HorizontalDivider is a ---- line.
type HorizontalDivider struct{}

// ParagraphBreak is a blank line between two runs of inline content.
type ParagraphBreak struct{}

// ListItemType distinguishes definition list terms and details from
// ordinary list items.
type ListItemType int

const (
	ListItemOrdinary ListItemType = iota
	ListItemTerm
	ListItemDetails
)

// ListItem is one entry of a list. Nested lists appear as nodes inside it.
type ListItem struct {
	Type  ListItemType
	Nodes []Node
}

type (
	OrderedList    struct{ Items []ListItem }
	UnorderedList  struct{ Items []ListItem }
	DefinitionList struct{ Items []ListItem }
)

// Preformatted is a run of lines that started with a space, or a <pre>
// element.
type Preformatted struct {
	Nodes []Node
}

// Heading is a section heading of level 1 to 6.
type Heading struct {
	Level int
	Nodes []Node
}

// Attribute is a single name="value" pair taken from table markup.
type Attribute struct {
	Name  string
	Value string
}

type TableCellType int

const (
	TableCellOrdinary TableCellType = iota
	TableCellHeading
)

type TableCell struct {
	Type       TableCellType
	Attributes []Attribute
	Content    []Node
}

type TableRow struct {
	Attributes []Attribute
	Cells      []TableCell
}

type TableCaption struct {
	Attributes []Attribute
	Content    []Node
}

// Table is a {| ... |} block.
type Table struct {
	Attributes []Attribute
	Captions   []TableCaption
	Rows       []TableRow
}

// Parameter is one argument of a template call. Name is nil for
// positional arguments.
type Parameter struct {
	Name  []Node
	Value []Node
}

// Template is a {{Name|...}} transclusion.
type Template struct {
	Name       []Node
	Parameters []Parameter
}

// Argument is a {{{Name|Default}}} reference to a parameter of the
// template being transcluded. Default is nil when no default was given.
type Argument struct {
	Name    string
	Default []Node
}

// Comment is an <!-- ... --> comment.
type Comment struct {
	Text string
}

// Tag is a raw HTML-like tag the parser recognised but does not model.
type Tag struct {
	Name    string
	Closing bool
}

// Redirect is a #REDIRECT [[Target]] line at the start of a page.
type Redirect struct {
	Target string
}

// SyntaxHighlight is a <syntaxhighlight lang="..."> or <source> block.
type SyntaxHighlight struct {
	Language string
	Code     string
}

func (*Text) node() {}
func (*CharacterEntity) node() {}
func (*Bold) node() {}
func (*Italic) node() {}
func (*BoldItalic) node() {}
func (*Link) node() {}
func (*ExternalLink) node() {}
func (*Category) node() {}
func (*HorizontalDivider) node() {}
func (*ParagraphBreak) node() {}
func (*OrderedList) node() {}
func (*UnorderedList) node() {}
func (*DefinitionList) node() {}
func (*Preformatted) node() {}
func (*Heading) node() {}
func (*Table) node() {}
func (*Template) node() {}
func (*Argument) node() {}
func (*Comment) node() {}
func (*Tag) node() {}
func (*Redirect) node() {}
func (*SyntaxHighlight) node() {}

// IsBlock reports whether n is a block-level node: one that ends the
// current run of inline content.
func IsBlock(n Node) bool {
	switch n.(type) {
	case *Heading, *HorizontalDivider, *OrderedList, *UnorderedList,
		*DefinitionList, *Preformatted, *Table, *Redirect, *SyntaxHighlight,
		*ParagraphBreak:
		return true
	}
	return false
}

// PlainText concatenates the values of the Text nodes in nodes, ignoring
// everything else.
func PlainText(nodes []Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		if t, ok := n.(*Text); ok {
			sb.WriteString(t.Value)
		}
	}
	return sb.String()
}
