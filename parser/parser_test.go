package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arran4/wiki2html/ast"
)

func text(s string) *ast.Text { return &ast.Text{Value: s} }

var parseTests = []struct {
	name  string
	input string
	want  []ast.Node
}{
	{name: "empty", input: "", want: nil},
	{
		name:  "paragraph break between inline runs",
		input: "a'''b\n\nc",
		want:  []ast.Node{text("a"), &ast.Bold{}, text("b"), &ast.ParagraphBreak{}, text("c")},
	},
	{
		name:  "blank lines before any content",
		input: "\n\nx",
		want:  []ast.Node{text("x")},
	},
	{
		name:  "CRLF line endings",
		input: "a\r\nb",
		want:  []ast.Node{text("a\nb")},
	},
	{
		name:  "heading",
		input: "== a ==",
		want:  []ast.Node{&ast.Heading{Level: 2, Nodes: []ast.Node{text("a")}}},
	},
	{
		name:  "asymmetric heading keeps excess markers",
		input: "===ab==",
		want:  []ast.Node{&ast.Heading{Level: 2, Nodes: []ast.Node{text("=ab")}}},
	},
	{
		name:  "divider after text",
		input: "aa\n----",
		want:  []ast.Node{text("aa"), &ast.HorizontalDivider{}},
	},
	{
		name:  "divider with trailing text",
		input: "---- x",
		want:  []ast.Node{&ast.HorizontalDivider{}, text("x")},
	},
	{
		name:  "nested unordered list",
		input: "* a\n** b\n* c",
		want: []ast.Node{&ast.UnorderedList{Items: []ast.ListItem{
			{Nodes: []ast.Node{text("a"), &ast.UnorderedList{Items: []ast.ListItem{
				{Nodes: []ast.Node{text("b")}},
			}}}},
			{Nodes: []ast.Node{text("c")}},
		}}},
	},
	{
		name:  "ordered list",
		input: "# one\n# two",
		want: []ast.Node{&ast.OrderedList{Items: []ast.ListItem{
			{Nodes: []ast.Node{text("one")}},
			{Nodes: []ast.Node{text("two")}},
		}}},
	},
	{
		name:  "definition list on one line",
		input: ";term:def",
		want: []ast.Node{&ast.DefinitionList{Items: []ast.ListItem{
			{Type: ast.ListItemTerm, Nodes: []ast.Node{text("term")}},
			{Type: ast.ListItemDetails, Nodes: []ast.Node{text("def")}},
		}}},
	},
	{
		name:  "preformatted lines",
		input: " a\n b",
		want:  []ast.Node{&ast.Preformatted{Nodes: []ast.Node{text("a\nb")}}},
	},
	{
		name:  "pre element is literal",
		input: "<pre>a<b>\n</pre>",
		want: []ast.Node{&ast.Preformatted{Nodes: []ast.Node{
			text("a"), &ast.CharacterEntity{Character: '<'}, text("b"), &ast.CharacterEntity{Character: '>'},
		}}},
	},
	{
		name:  "internal links and categories",
		input: "[[Foo|bar]] [[Baz]] [[Category:Cat|key]]",
		want: []ast.Node{
			&ast.Link{Target: "Foo", Text: []ast.Node{text("bar")}},
			text(" "),
			&ast.Link{Target: "Baz", Text: []ast.Node{text("Baz")}},
			text(" "),
			&ast.Category{Target: "Cat", Ordinal: []ast.Node{text("key")}},
		},
	},
	{
		name:  "colon link is not a category",
		input: "[[:Category:Cat]]",
		want:  []ast.Node{&ast.Link{Target: "Category:Cat", Text: []ast.Node{text("Category:Cat")}}},
	},
	{
		name:  "unclosed link is text",
		input: "[[a",
		want:  []ast.Node{text("[[a")},
	},
	{
		name:  "external link with label",
		input: "[http://x.com some text]",
		want:  []ast.Node{&ast.ExternalLink{Nodes: []ast.Node{text("http://x.com some text")}}},
	},
	{
		name:  "external link without label",
		input: "[http://x.com]",
		want:  []ast.Node{&ast.ExternalLink{Nodes: []ast.Node{text("http://x.com")}}},
	},
	{
		name:  "template with parameters",
		input: "{{foo|a|k=v}}",
		want: []ast.Node{&ast.Template{
			Name: []ast.Node{text("foo")},
			Parameters: []ast.Parameter{
				{Value: []ast.Node{text("a")}},
				{Name: []ast.Node{text("k")}, Value: []ast.Node{text("v")}},
			},
		}},
	},
	{
		name:  "template spanning lines",
		input: "{{foo\n|a}}",
		want: []ast.Node{&ast.Template{
			Name:       []ast.Node{text("foo")},
			Parameters: []ast.Parameter{{Value: []ast.Node{text("a")}}},
		}},
	},
	{
		name:  "template parameter containing a piped link",
		input: "{{foo|[[a|b]]}}",
		want: []ast.Node{&ast.Template{
			Name: []ast.Node{text("foo")},
			Parameters: []ast.Parameter{{Value: []ast.Node{
				&ast.Link{Target: "a", Text: []ast.Node{text("b")}},
			}}},
		}},
	},
	{
		name:  "argument with default",
		input: "{{{1|def}}}",
		want:  []ast.Node{&ast.Argument{Name: "1", Default: []ast.Node{text("def")}}},
	},
	{
		name:  "argument without default",
		input: "{{{name}}}",
		want:  []ast.Node{&ast.Argument{Name: "name"}},
	},
	{
		name:  "entities and stray markup characters",
		input: "a &amp; b < c",
		want: []ast.Node{
			text("a "), &ast.CharacterEntity{Character: '&'}, text(" b "),
			&ast.CharacterEntity{Character: '<'}, text(" c"),
		},
	},
	{
		name:  "nowiki",
		input: "<nowiki>''x''</nowiki>",
		want:  []ast.Node{text("''x''")},
	},
	{
		name:  "comment",
		input: "a<!-- x -->b",
		want:  []ast.Node{text("a"), &ast.Comment{Text: " x "}, text("b")},
	},
	{
		name:  "tag",
		input: "a<br/>b",
		want:  []ast.Node{text("a"), &ast.Tag{Name: "br"}, text("b")},
	},
	{
		name:  "four apostrophes",
		input: "''''x",
		want:  []ast.Node{text("'"), &ast.Bold{}, text("x")},
	},
	{
		name:  "five apostrophes",
		input: "'''''x'''''",
		want:  []ast.Node{&ast.BoldItalic{}, text("x"), &ast.BoldItalic{}},
	},
	{
		name:  "redirect",
		input: "#REDIRECT [[Target page]]",
		want:  []ast.Node{&ast.Redirect{Target: "Target page"}},
	},
	{
		name:  "syntax highlight block",
		input: "<syntaxhighlight lang=\"go\">\nfunc x() {}\n</syntaxhighlight>",
		want:  []ast.Node{&ast.SyntaxHighlight{Language: "go", Code: "func x() {}"}},
	},
	{
		name:  "table",
		input: "{|class=\"t\"\n|+ Cap\n|-\n! H1 !! H2\n|-\n| style=\"x\" | a || b\n|}",
		want: []ast.Node{&ast.Table{
			Attributes: []ast.Attribute{{Name: "class", Value: "t"}},
			Captions:   []ast.TableCaption{{Content: []ast.Node{text("Cap")}}},
			Rows: []ast.TableRow{
				{Cells: []ast.TableCell{
					{Type: ast.TableCellHeading, Content: []ast.Node{text("H1")}},
					{Type: ast.TableCellHeading, Content: []ast.Node{text("H2")}},
				}},
				{Cells: []ast.TableCell{
					{Attributes: []ast.Attribute{{Name: "style", Value: "x"}}, Content: []ast.Node{text("a")}},
					{Content: []ast.Node{text("b")}},
				}},
			},
		}},
	},
	{
		name:  "table without row markers",
		input: "{|\n|A\n|B\n|}",
		want: []ast.Node{&ast.Table{Rows: []ast.TableRow{{Cells: []ast.TableCell{
			{Content: []ast.Node{text("A")}},
			{Content: []ast.Node{text("B")}},
		}}}}},
	},
	{
		name:  "table cell with paragraphs",
		input: "{|\n|a\n\nb\n|}",
		want: []ast.Node{&ast.Table{Rows: []ast.TableRow{{Cells: []ast.TableCell{
			{Content: []ast.Node{text("a"), &ast.ParagraphBreak{}, text("b")}},
		}}}}},
	},
}

func TestParse(t *testing.T) {
	for _, test := range parseTests {
		t.Run(test.name, func(t *testing.T) {
			got := Parse(test.input).Nodes
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("Parse(%q) (-want +got):\n%s", test.input, diff)
			}
		})
	}
}

func TestParseAttributes(t *testing.T) {
	got := parseAttributes(`class="a b" ID=x onclick='alert(1)' hidden`)
	want := []ast.Attribute{
		{Name: "class", Value: "a b"},
		{Name: "id", Value: "x"},
		{Name: "onclick", Value: "alert(1)"},
		{Name: "hidden"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseAttributes (-want +got):\n%s", diff)
	}
}

func TestLogicalLines(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a\nb", []string{"a", "b"}},
		{"{{a\n|b}}\nc", []string{"{{a\n|b}}", "c"}},
		{"<!--\nx\n-->\ny", []string{"<!--\nx\n-->", "y"}},
		{"{{open\nrest", []string{"{{open", "rest"}},
	}
	for _, test := range tests {
		if diff := cmp.Diff(test.want, logicalLines(test.input)); diff != "" {
			t.Errorf("logicalLines(%q) (-want +got):\n%s", test.input, diff)
		}
	}
}
