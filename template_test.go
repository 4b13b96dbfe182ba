package wiki2html

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arran4/wiki2html/store"
)

func TestTemplates(t *testing.T) {
	s := store.NewMemory()
	saveArticle(t, s, "t", "content", store.ModelWikitext)
	saveArticle(t, s, "greet", "Hello {{{1}}} and {{{name|nobody}}}", store.ModelWikitext)
	saveArticle(t, s, "loop", "x{{loop}}", store.ModelWikitext)
	saveArticle(t, s, "outer", "[{{greet|{{{1}}}}}]", store.ModelWikitext)
	saveArticle(t, s, "bold", "'''{{{1}}}'''", store.ModelWikitext)
	saveArticle(t, s, "box", "{|\n|{{{1}}}\n|}", store.ModelWikitext)
	saveArticle(t, s, "md", "# Title", store.ModelMarkdown)
	saveArticle(t, s, "h", "==H==", store.ModelWikitext)
	saveArticle(t, s, "para", "x\n\ny", store.ModelWikitext)

	tests := []struct {
		name, wikitext, want string
	}{
		{"transclusion", "a{{t}}b", "<p>acontentb</p>"},
		{"missing template", "{{t2}}", "<p>{t2}</p>"},
		{"positional argument", "{{greet|World}}", "<p>Hello World and nobody</p>"},
		{"named argument", "{{greet|World|name = Bob}}", "<p>Hello World and Bob</p>"},
		{"argument from caller frame", "{{outer|Ann}}", "<p>[Hello Ann and nobody]</p>"},
		{"emphasis balanced inside template", "{{bold|x}} y", "<p><b>x</b> y</p>"},
		{"loop", "{{loop}}", `<p>x<span class="error">Template loop detected: loop</span></p>`},
		{"block template", "a{{box|c}}b", "<p>a\n</p><table>\n<tbody><tr>\n<td>c\n</td></tr></tbody></table>\n<p>b</p>"},
		{"markdown template", "{{md}}", "<h1 id=\"title\">Title</h1>\n"},
		{
			"bold around block template",
			"'''a{{box|c}}b'''",
			"<p><b>a</b>\n</p><table>\n<tbody><tr>\n<td>c\n</td></tr></tbody></table>\n<p><b>b</b></p>",
		},
		{"italic around markdown template", "''a{{md}}b''", "<p><i>a</i>\n</p><h1 id=\"title\">Title</h1>\n\n<p><i>b</i></p>"},
		{"bold around heading template", "'''a{{h}}b'''", "<p><b>a</b>\n</p><h2>H</h2>\n<p><b>b</b></p>"},
		{"bold across template paragraph break", "'''a{{para}}b'''", "<p><b>ax</b></p><p><b>yb</b></p>"},
	}
	r := New(s, Options{})
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if diff := cmp.Diff(test.want, renderHTML(t, r, test.wikitext)); diff != "" {
				t.Errorf("render %q (-want +got):\n%s", test.wikitext, diff)
			}
		})
	}
}

func TestTemplateNamespace(t *testing.T) {
	s := store.NewMemory()
	saveArticle(t, s, "Template:Stub", "stub", store.ModelWikitext)
	r := New(s, Options{TemplateNamespace: "Template:"})
	if diff := cmp.Diff("<p>stub</p>", renderHTML(t, r, "{{ Stub }}")); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestTemplateDepthLimit(t *testing.T) {
	s := store.NewMemory()
	saveArticle(t, s, "a", "{{b}}", store.ModelWikitext)
	saveArticle(t, s, "b", "{{c}}", store.ModelWikitext)
	saveArticle(t, s, "c", "deep", store.ModelWikitext)

	want := `<p><span class="error">Template depth limit exceeded: c</span></p>`
	if diff := cmp.Diff(want, renderHTML(t, New(s, Options{MaxTemplateDepth: 2}), "{{a}}")); diff != "" {
		t.Errorf("depth 2 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("<p>deep</p>", renderHTML(t, New(s, Options{MaxTemplateDepth: 3}), "{{a}}")); diff != "" {
		t.Errorf("depth 3 (-want +got):\n%s", diff)
	}
}
