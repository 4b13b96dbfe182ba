package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// backends opens every Store implementation on fresh storage.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	sqlite, err := OpenSQLite(ctx, SQLiteConfig{Path: filepath.Join(dir, "wiki.db"), PoolSize: 2, Compression: CompressionZstd})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	bolt, err := OpenBolt(BoltConfig{Path: filepath.Join(dir, "wiki.bolt"), Compression: CompressionLZ4})
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	stores := map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
		"bolt":   bolt,
	}
	t.Cleanup(func() {
		for name, s := range stores {
			if err := s.Close(); err != nil {
				t.Errorf("closing %s store: %v", name, err)
			}
		}
	})
	return stores
}

func save(t *testing.T, s Store, title, text string) *Revision {
	t.Helper()
	rev, err := s.Save(context.Background(), Edit{Title: title, Wikitext: text, Actor: "tester"})
	if err != nil {
		t.Fatalf("Save(%q): %v", title, err)
	}
	return rev
}

func TestFindArticle(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, err := s.FindArticle(ctx, "Missing")
			if err != nil || a != nil {
				t.Fatalf("FindArticle(missing) = %v, %v; want nil, nil", a, err)
			}

			long := strings.Repeat("'''bold''' and [[links]] ", 200)
			save(t, s, "Main_Page", "first")
			rev := save(t, s, "Main Page", long)

			a, err = s.FindArticle(ctx, "Main Page")
			if err != nil {
				t.Fatalf("FindArticle: %v", err)
			}
			if a == nil {
				t.Fatal("FindArticle returned nil for a saved article")
			}
			if a.Wikitext != long {
				t.Errorf("Wikitext has %d bytes, want the latest revision's %d", len(a.Wikitext), len(long))
			}
			if a.Title != "Main Page" || a.Model != ModelWikitext || a.Revision != rev.ID {
				t.Errorf("got %q %q revision %d, want %q %q revision %d",
					a.Title, a.Model, a.Revision, "Main Page", ModelWikitext, rev.ID)
			}
		})
	}
}

func TestSaveRejectsEmptyTitle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Save(context.Background(), Edit{Title: " _ ", Wikitext: "x"}); err == nil {
				t.Error("Save with an empty title succeeded")
			}
		})
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.History(ctx, "Nothing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("History(missing) error = %v, want ErrNotFound", err)
			}
			first := save(t, s, "Page", "one")
			second := save(t, s, "Page", "two")
			save(t, s, "Other", "one")

			history, err := s.History(ctx, "Page")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			var ids []int64
			for _, r := range history {
				ids = append(ids, r.ID)
			}
			if diff := cmp.Diff([]int64{second.ID, first.ID}, ids); diff != "" {
				t.Errorf("History IDs (-want +got):\n%s", diff)
			}
			if history[1].Hash != HashContent([]byte("one")) || history[1].Size != 3 {
				t.Errorf("oldest revision hash %s size %d", history[1].Hash, history[1].Size)
			}
		})
	}
}

func TestLinksAndCategories(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			must := func(err error) {
				t.Helper()
				if err != nil {
					t.Fatal(err)
				}
			}
			must(s.SetLinks(ctx, "B", []string{"Target", "Target", "Other"}, []CategoryLink{{Category: "Fruit", Ordinal: "zz"}}))
			must(s.SetLinks(ctx, "A", []string{"Target"}, []CategoryLink{{Category: "Fruit"}}))
			must(s.SetLinks(ctx, "C", []string{"Other"}, []CategoryLink{{Category: "Fruit", Ordinal: "b"}}))

			backlinks, err := s.Backlinks(ctx, "Target")
			must(err)
			if diff := cmp.Diff([]string{"A", "B"}, backlinks); diff != "" {
				t.Errorf("Backlinks (-want +got):\n%s", diff)
			}

			members, err := s.CategoryMembers(ctx, "Fruit")
			must(err)
			if diff := cmp.Diff([]string{"A", "C", "B"}, members); diff != "" {
				t.Errorf("CategoryMembers (-want +got):\n%s", diff)
			}

			// Replacing links drops the old ones.
			must(s.SetLinks(ctx, "B", nil, nil))
			backlinks, err = s.Backlinks(ctx, "Target")
			must(err)
			if diff := cmp.Diff([]string{"A"}, backlinks); diff != "" {
				t.Errorf("Backlinks after replace (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCategoryOrdinalsSortAsText(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for title, ordinal := range map[string]string{"P": "<b>z</b>", "Q": "m", "R": "&#97;a"} {
				if err := s.SetLinks(ctx, title, nil, []CategoryLink{{Category: "Fruit", Ordinal: ordinal}}); err != nil {
					t.Fatal(err)
				}
			}
			members, err := s.CategoryMembers(ctx, "Fruit")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"R", "Q", "P"}, members); diff != "" {
				t.Errorf("CategoryMembers (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlainOrdinal(t *testing.T) {
	for in, want := range map[string]string{
		"":                 "",
		"plain":            "plain",
		"<b>bold</b> text": "bold text",
		"a &amp; b":        "a & b",
		"<i><b>x</b></i>y": "xy",
	} {
		if got := plainOrdinal(in); got != want {
			t.Errorf("plainOrdinal(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerationAndRenderCache(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			before, err := s.Generation(ctx)
			if err != nil {
				t.Fatal(err)
			}
			save(t, s, "Page", "x")
			after, err := s.Generation(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if after <= before {
				t.Errorf("generation did not advance on save: %d -> %d", before, after)
			}

			if _, ok, err := s.LoadRender(ctx, []byte("k")); err != nil || ok {
				t.Fatalf("LoadRender(empty cache) = _, %v, %v", ok, err)
			}
			if err := s.StoreRender(ctx, []byte("k"), []byte("v")); err != nil {
				t.Fatal(err)
			}
			v, ok, err := s.LoadRender(ctx, []byte("k"))
			if err != nil || !ok || string(v) != "v" {
				t.Errorf("LoadRender = %q, %v, %v; want \"v\", true, nil", v, ok, err)
			}
		})
	}
}

func TestSQLiteDeduplicatesContent(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, SQLiteConfig{Path: filepath.Join(t.TempDir(), "wiki.db"), PoolSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	save(t, s, "A", "same text")
	save(t, s, "B", "same text")
	save(t, s, "A", "same text")

	conn, err := s.pool.take(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer s.pool.put(conn)
	var n int64
	err = sqlitex.Execute(conn, `SELECT count(*) FROM contents`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("contents rows = %d, want 1", n)
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Main_Page", "Main Page"},
		{"  spaced   out ", "spaced out"},
		{"é", "é"},
		{"", ""},
	}
	for _, test := range tests {
		if got := NormalizeTitle(test.in); got != test.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}
