package wiki2html

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arran4/wiki2html/ast"
	"github.com/arran4/wiki2html/store"
)

func renderHTML(t *testing.T, r *Renderer, wikitext string) string {
	t.Helper()
	res, err := r.RenderWikitext(context.Background(), wikitext)
	if err != nil {
		t.Fatalf("render %q: %v", wikitext, err)
	}
	return res.HTML
}

func saveArticle(t *testing.T, s store.Store, title, text string, model store.ContentModel) {
	t.Helper()
	if _, err := s.Save(context.Background(), store.Edit{Title: title, Wikitext: text, Model: model}); err != nil {
		t.Fatalf("save %q: %v", title, err)
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		wikitext string
		want     string
	}{
		{"empty", "", ""},
		{"only blank lines", "\n\n\n", ""},
		{"text", "text", "<p>text</p>"},
		{"escaped entities", "&lt;h3&lt;", "<p>&lt;h3&lt;</p>"},
		{"stray markup characters", "a < b & c", "<p>a &lt; b &amp; c</p>"},
		{"paragraphs", "asdf\n\naaa", "<p>asdf</p><p>aaa</p>"},
		{"bold closed at paragraph break", "a'''b\n\nc", "<p>a<b>b</b></p><p>c</p>"},
		{"bold italic", "'''''aaa'''''", "<p><i><b>aaa</b></i></p>"},
		{"bold italic closing italic first", "'''''asdf''bb'''", "<p><b><i>asdf</i>bb</b></p>"},
		{"bold italic closing bold first", "'''''asdf'''bb''", "<p><i><b>asdf</b>bb</i></p>"},
		{"bold italic to end of line", "'''''x", "<p><i><b>x</b></i></p>"},
		{"cross nesting", "'''a''b'''c''", "<p><b>a<i>b</i></b><i>c</i></p>"},
		{"unclosed italic", "''a", "<p><i>a</i></p>"},
		{"bold closer after paragraph break", "'''a\n\nb'''", "<p><b>a</b></p><p>b</p>"},
		{"bold closer after heading", "'''a\n==h==\nb'''", "<p><b>a</b>\n</p><h2>h</h2>\n<p>b</p>"},
		{"italic closer after paragraph break", "''a\n\nb'''''c'''", "<p><i>a</i></p><p>b<b>c</b></p>"},
		{"line break tag", "a<br>b", "<p>a<br>b</p>"},
		{"comment", "a<!-- hidden -->b", "<p>ab</p>"},
		{"nowiki", "<nowiki>'''x'''</nowiki>", "<p>'''x'''</p>"},
		{"heading", "==x==", "<h2>x</h2>"},
		{"heading with spaces", "== a == ", "<h2>a</h2>"},
		{"heading with excess marker", "==a===", "<h2>a=</h2>"},
		{"heading with excess opening marker", "===asdf==", "<h2>=asdf</h2>"},
		{"heading between text", "x\n===ab===\na", "<p>x\n</p><h3>ab</h3>\n<p>a</p>"},
		{"adjacent headings", "===a===\n====b====", "<h3>a</h3>\n<h4>b</h4>"},
		{"divider", "----", "<hr>"},
		{"divider after text", "aa\n----\n", "<p>aa\n</p><hr>"},
		{
			"lists",
			"*a\n*b\n#c\n*d\n",
			"<ul><li>a</li>\n<li>b</li></ul>\n<ol><li>c</li></ol>\n<ul><li>d</li></ul>",
		},
		{"nested list", "*a\n**b", "<ul><li>a<ul><li>b</li></ul></li></ul>"},
		{"definition list", ";term:def", "<dl><dt>term</dt>\n<dd>def</dd></dl>"},
		{
			"preformatted",
			" Start each line with a space.\n Text is '''preformatted''' and\n ''markups'' '''''can''''' be done.",
			"<pre>Start each line with a space.\nText is <b>preformatted</b> and\n<i>markups</i> <i><b>can</b></i> be done.\n</pre>",
		},
		{"pre tag", "<pre>a < b\n'''x'''</pre>", "<pre>a &lt; b\n'''x'''\n</pre>"},
		{
			"table",
			"{|\n|A\n|B\n|}",
			"<table>\n<tbody><tr>\n<td>A\n</td>\n<td>B\n</td></tr></tbody></table>",
		},
		{
			"table with heading row",
			"{|\n!A\n!B\n|-\n|C\n|D\n|}",
			"<table>\n<tbody><tr>\n<th>A\n</th>\n<th>B\n</th></tr>\n<tr>\n<td>C\n</td>\n<td>D\n</td></tr></tbody></table>",
		},
		{
			"table attributes",
			"{| class=\"wikitable\"\n|- style=\"color: red\"\n| colspan=\"2\" | A\n|}",
			"<table class=\"wikitable\">\n<tbody><tr style=\"color: red\">\n<td colspan=\"2\">A\n</td></tr></tbody></table>",
		},
		{
			"table caption",
			"{|\n|+ Caption\n|A\n|}",
			"<table>\n<caption>Caption\n</caption>\n<tbody><tr>\n<td>A\n</td></tr></tbody></table>",
		},
		{
			"table cell paragraphs",
			"{|\n|a\n\nb\n|}",
			"<table>\n<tbody><tr>\n<td>a<p>b</p>\n</td></tr></tbody></table>",
		},
		{
			"inline cells",
			"{|\n|A||B\n|}",
			"<table>\n<tbody><tr>\n<td>A\n</td>\n<td>B\n</td></tr></tbody></table>",
		},
		{
			"external link",
			"[http://www.google.com]",
			`<p><a target="_blank" rel="nofollow noreferrer noopener" class="external autonumber" href="http://www.google.com">[1]</a></p>`,
		},
		{
			"external link with label",
			"[http://www.google.com a'''aa''']",
			`<p><a target="_blank" rel="nofollow noreferrer noopener" class="external text" href="http://www.google.com">a<b>aa</b></a></p>`,
		},
		{
			"external links numbered in order",
			"[http://www.google.com][http://www.google.com]",
			`<p><a target="_blank" rel="nofollow noreferrer noopener" class="external autonumber" href="http://www.google.com">[1]</a>` +
				`<a target="_blank" rel="nofollow noreferrer noopener" class="external autonumber" href="http://www.google.com">[2]</a></p>`,
		},
		{"category", "[[category:asdf]]", ""},
		{"category with ordinal", "[[Category:asdf|asfd]]", ""},
		{"argument outside template", "{{{x}}}", "<p>{{{x}}}</p>"},
		{"argument default outside template", "{{{x|fallback}}}", "<p>fallback</p>"},
	}
	r := New(nil, Options{})
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if diff := cmp.Diff(test.want, renderHTML(t, r, test.wikitext)); diff != "" {
				t.Errorf("render %q (-want +got):\n%s", test.wikitext, diff)
			}
		})
	}
}

func TestRenderHeadingLevels(t *testing.T) {
	r := New(nil, Options{})
	for level := 1; level <= 6; level++ {
		marker := strings.Repeat("=", level)
		tag := "h" + string(rune('0'+level))
		want := "<" + tag + ">x</" + tag + ">"
		if got := renderHTML(t, r, marker+"x"+marker); got != want {
			t.Errorf("level %d: got %q, want %q", level, got, want)
		}
	}
}

func TestEmphasisIsBalanced(t *testing.T) {
	inputs := []string{
		"'''a\n\nb'''",
		"'''a''b'''c''",
		"''a'''b''c'''",
		"'''''a''b'''c",
		"''''a''",
		"'''a\n\n''b",
		"* '''a\n* ''b'''",
		"{|\n|'''a\n|''b\n|}",
		"==''a''' b==",
		"[[x|'''y]] z''",
		"'''''''x''''''",
	}
	r := New(nil, Options{})
	for _, in := range inputs {
		html := renderHTML(t, r, in)
		for _, pair := range [][2]string{{"<b>", "</b>"}, {"<i>", "</i>"}} {
			if open, closing := strings.Count(html, pair[0]), strings.Count(html, pair[1]); open != closing {
				t.Errorf("render %q = %q: %d %s but %d %s", in, html, open, pair[0], closing, pair[1])
			}
		}
	}
}

func TestMalformedEmphasisState(t *testing.T) {
	q := &emphasisQueue{}
	if _, err := step(emphasisState{last: emphasisItalic}, emphasisBold, 0, q); !errors.Is(err, ErrMalformedEmphasis) {
		t.Errorf("step from a state with only an inner tag: got %v, want ErrMalformedEmphasis", err)
	}
	if err := closeAll(emphasisState{last: emphasisBold}, 0, q); !errors.Is(err, ErrMalformedEmphasis) {
		t.Errorf("closeAll: got %v, want ErrMalformedEmphasis", err)
	}
	if len(q.tags) != 0 {
		t.Errorf("malformed transitions queued %v", q.tags)
	}
}

func TestInternalLinks(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := New(s, Options{})

	tests := []struct {
		wikitext, want string
	}{
		{"[[aa]]", `<p><a class="new" href="/edit/aa">aa</a></p>`},
		{"[[aa|bb]]", `<p><a class="new" href="/edit/aa">bb</a></p>`},
		{"[[aa|'''bb''']]", `<p><a class="new" href="/edit/aa"><b>bb</b></a></p>`},
		{"[[Main Page]]", `<p><a class="new" href="/edit/Main%20Page">Main Page</a></p>`},
	}
	for _, test := range tests {
		if diff := cmp.Diff(test.want, renderHTML(t, r, test.wikitext)); diff != "" {
			t.Errorf("render %q (-want +got):\n%s", test.wikitext, diff)
		}
	}

	saveArticle(t, s, "aa", "exists", store.ModelWikitext)
	if diff := cmp.Diff(`<p><a href="/wiki/aa">aa</a></p>`, renderHTML(t, r, "[[aa]]")); diff != "" {
		t.Errorf("link to existing article (-want +got):\n%s", diff)
	}

	custom := New(s, Options{ReadBaseURL: "/read/", EditBaseURL: "/write/"})
	res, err := custom.RenderWikitext(ctx, "[[aa]] [[bb]] [[aa]]")
	if err != nil {
		t.Fatal(err)
	}
	want := `<p><a href="/read/aa">aa</a> <a class="new" href="/write/bb">bb</a> <a href="/read/aa">aa</a></p>`
	if diff := cmp.Diff(want, res.HTML); diff != "" {
		t.Errorf("custom base URLs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"aa", "bb", "aa"}, res.InternalLinks); diff != "" {
		t.Errorf("InternalLinks (-want +got):\n%s", diff)
	}
}

type failingFinder struct{}

func (failingFinder) FindArticle(context.Context, string) (*store.Article, error) {
	return nil, errors.New("database is locked")
}

func TestLookupFailureRendersErrorMarker(t *testing.T) {
	r := New(failingFinder{}, Options{})
	tests := []struct {
		wikitext, want string
	}{
		{"a [[x]] b", `<p>a <span class="error">Error</span> b</p>`},
		{"a {{x}} b", `<p>a <span class="error">Error</span> b</p>`},
	}
	for _, test := range tests {
		if diff := cmp.Diff(test.want, renderHTML(t, r, test.wikitext)); diff != "" {
			t.Errorf("render %q (-want +got):\n%s", test.wikitext, diff)
		}
	}
}

func TestExternalLinkNumberingResetsPerRender(t *testing.T) {
	r := New(nil, Options{})
	for range 2 {
		if html := renderHTML(t, r, "[http://a.example]"); !strings.Contains(html, ">[1]</a>") {
			t.Errorf("got %q, want the link numbered [1]", html)
		}
	}
}

func TestExternalLinkWithoutText(t *testing.T) {
	s := newState(context.Background(), New(nil, Options{}))
	html, err := s.renderNode(&ast.ExternalLink{Nodes: []ast.Node{&ast.Italic{}}})
	if err != nil {
		t.Fatal(err)
	}
	if want := `<code class="error">External link does not start with text</code>`; html != want {
		t.Errorf("got %q, want %q", html, want)
	}
}

func TestCategories(t *testing.T) {
	r := New(nil, Options{})
	res, err := r.RenderWikitext(context.Background(), "[[category:foo|bar]][[Category:Baz]]")
	if err != nil {
		t.Fatal(err)
	}
	if res.HTML != "" {
		t.Errorf("HTML = %q, want empty", res.HTML)
	}
	want := []CategoryLink{{Target: "foo", Ordinal: "bar"}, {Target: "Baz"}}
	if diff := cmp.Diff(want, res.Categories); diff != "" {
		t.Errorf("Categories (-want +got):\n%s", diff)
	}
}

func TestRedirect(t *testing.T) {
	r := New(nil, Options{})
	res, err := r.RenderWikitext(context.Background(), "#REDIRECT [[Target Page]]")
	if err != nil {
		t.Fatal(err)
	}
	want := `<div class="redirect"><a class="new" href="/edit/Target%20Page">Target Page</a></div>`
	if diff := cmp.Diff(want, res.HTML); diff != "" {
		t.Errorf("HTML (-want +got):\n%s", diff)
	}
	if res.Redirect != "Target Page" {
		t.Errorf("Redirect = %q", res.Redirect)
	}
}

func TestTableAttributeInjection(t *testing.T) {
	r := New(nil, Options{})
	tests := []struct {
		wikitext string
		banned   string
	}{
		{"{| onclick=\"alert('xss')\"\n| a\n|}", "onclick"},
		{"{|\n| onmouseover=\"x()\" | a\n|}", "onmouseover"},
		{"{| style=\"background: url(javascript:x)\"\n| a\n|}", "url("},
		{"{| title=\"javascript:alert(1)\"\n| a\n|}", "javascript:"},
		{"{| class='a\" onclick=\"x'\n| a\n|}", `" onclick`},
	}
	for _, test := range tests {
		html := renderHTML(t, r, test.wikitext)
		if strings.Contains(html, test.banned) {
			t.Errorf("render %q = %q contains %q", test.wikitext, html, test.banned)
		}
		if !strings.HasPrefix(html, "<table") {
			t.Errorf("render %q = %q, want a table", test.wikitext, html)
		}
	}
}

func TestSyntaxHighlight(t *testing.T) {
	r := New(nil, Options{})
	html := renderHTML(t, r, "before\n<syntaxhighlight lang=\"go\">\npackage main\n</syntaxhighlight>\nafter")
	if !strings.Contains(html, `class="chroma"`) {
		t.Errorf("missing highlighted block in %q", html)
	}
	if !strings.HasPrefix(html, "<p>before\n</p>") || !strings.HasSuffix(html, "\n<p>after</p>") {
		t.Errorf("highlighted block does not split the paragraph: %q", html)
	}
}

func TestRenderArticleMarkdown(t *testing.T) {
	r := New(nil, Options{})
	res, err := r.RenderArticle(context.Background(), &store.Article{
		Title:    "Readme",
		Model:    store.ModelMarkdown,
		Wikitext: "# Title\n\nSome *text*.",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "<h1 id=\"title\">Title</h1>\n<p>Some <em>text</em>.</p>\n"
	if diff := cmp.Diff(want, res.HTML); diff != "" {
		t.Errorf("HTML (-want +got):\n%s", diff)
	}
}
