package wiki2html

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arran4/wiki2html/store"
)

// countingFinder counts lookups so tests can tell a cache hit from a
// fresh render.
type countingFinder struct {
	store.Store
	lookups int
}

func (f *countingFinder) FindArticle(ctx context.Context, title string) (*store.Article, error) {
	f.lookups++
	return f.Store.FindArticle(ctx, title)
}

func TestCachedRenderer(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	finder := &countingFinder{Store: s}
	c := NewCached(New(finder, Options{}), s)

	first, err := c.RenderWikitext(ctx, "[[aa]] [[category:x|y]]")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.RenderWikitext(ctx, "[[aa]] [[category:x|y]]")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached result differs (-first +second):\n%s", diff)
	}
	if finder.lookups != 1 {
		t.Errorf("lookups = %d after a repeated render, want 1", finder.lookups)
	}

	saveArticle(t, s, "aa", "now exists", store.ModelWikitext)
	third, err := c.RenderWikitext(ctx, "[[aa]] [[category:x|y]]")
	if err != nil {
		t.Fatal(err)
	}
	if finder.lookups != 2 {
		t.Errorf("lookups = %d after a save, want 2", finder.lookups)
	}
	if want := `<p><a href="/wiki/aa">aa</a> </p>`; third.HTML != want {
		t.Errorf("HTML after save = %q, want %q", third.HTML, want)
	}
}

func TestCacheKeyDependsOnOptions(t *testing.T) {
	a := NewCached(New(nil, Options{}), store.NewMemory())
	b := NewCached(New(nil, Options{ReadBaseURL: "/read/"}), store.NewMemory())
	if cmp.Equal(a.key(1, store.ModelWikitext, "x"), b.key(1, store.ModelWikitext, "x")) {
		t.Error("different base URLs share a cache key")
	}
	if cmp.Equal(a.key(1, store.ModelWikitext, "x"), a.key(2, store.ModelWikitext, "x")) {
		t.Error("different generations share a cache key")
	}
	if cmp.Equal(a.key(1, store.ModelWikitext, "x"), a.key(1, store.ModelMarkdown, "x")) {
		t.Error("different content models share a cache key")
	}
}
