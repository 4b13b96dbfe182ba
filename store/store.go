// Package store keeps revisioned wiki articles.
//
// Three backends share one contract: Memory for tests and one-off renders,
// SQLite for a pooled on-disk database and Bolt for a single-file
// embedded store. Revision contents are addressed by their BLAKE3 hash, so
// identical revisions are stored once, and are compressed at rest.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// ErrNotFound is returned by operations that require an existing article.
// FindArticle reports a missing article as (nil, nil) instead.
var ErrNotFound = errors.New("store: article not found")

// ContentModel names the markup an article is written in.
type ContentModel string

const (
	ModelWikitext ContentModel = "wikitext"
	ModelMarkdown ContentModel = "markdown"
)

// ParseContentModel accepts "wikitext", "markdown" or the empty string,
// which selects wikitext.
func ParseContentModel(name string) (ContentModel, error) {
	switch ContentModel(strings.ToLower(name)) {
	case "", ModelWikitext:
		return ModelWikitext, nil
	case ModelMarkdown:
		return ModelMarkdown, nil
	}
	return "", fmt.Errorf("store: unknown content model %q", name)
}

// Article is the latest revision of a page.
type Article struct {
	Title    string
	Model    ContentModel
	Wikitext string
	// Revision is the ID of the revision Wikitext was read from.
	Revision  int64
	UpdatedAt time.Time
}

// Revision describes one saved version of an article.
type Revision struct {
	ID        int64
	Title     string
	Actor     string
	Comment   string
	Hash      Hash
	Size      int
	CreatedAt time.Time
}

// Edit is a new revision to be saved.
type Edit struct {
	Title    string
	Model    ContentModel
	Wikitext string
	Actor    string
	Comment  string
}

// CategoryLink is a category assignment recorded for a page.
type CategoryLink struct {
	Category string
	Ordinal  string
}

// RenderCache stores rendered pages. Entries are only valid for the
// generation they were rendered at; the generation advances on every save.
type RenderCache interface {
	Generation(ctx context.Context) (uint64, error)
	LoadRender(ctx context.Context, key []byte) ([]byte, bool, error)
	StoreRender(ctx context.Context, key, value []byte) error
}

// Store is the contract shared by every backend.
type Store interface {
	FindArticle(ctx context.Context, title string) (*Article, error)
	Save(ctx context.Context, edit Edit) (*Revision, error)
	// History lists the revisions of an article, newest first.
	History(ctx context.Context, title string) ([]Revision, error)
	// SetLinks replaces the outgoing links and categories of a page.
	SetLinks(ctx context.Context, title string, links []string, categories []CategoryLink) error
	// Backlinks lists the pages linking to title, sorted.
	Backlinks(ctx context.Context, title string) ([]string, error)
	// CategoryMembers lists the pages in a category, ordered by sort key.
	CategoryMembers(ctx context.Context, category string) ([]string, error)
	RenderCache
	Close() error
}

// NormalizeTitle puts a title in canonical form: NFC, underscores read as
// spaces, runs of spaces collapsed and the ends trimmed.
func NormalizeTitle(title string) string {
	title = norm.NFC.String(title)
	title = strings.ReplaceAll(title, "_", " ")
	return strings.Join(strings.Fields(title), " ")
}

// prepareEdit normalises an edit and checks it can be saved.
func prepareEdit(edit Edit) (Edit, error) {
	edit.Title = NormalizeTitle(edit.Title)
	if edit.Title == "" {
		return edit, errors.New("store: empty title")
	}
	model, err := ParseContentModel(string(edit.Model))
	if err != nil {
		return edit, err
	}
	edit.Model = model
	return edit, nil
}

func normalizeAll(titles []string) []string {
	seen := make(map[string]bool, len(titles))
	var out []string
	for _, t := range titles {
		t = NormalizeTitle(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func normalizeCategories(categories []CategoryLink) []CategoryLink {
	seen := make(map[string]bool, len(categories))
	var out []CategoryLink
	for _, c := range categories {
		c.Category = NormalizeTitle(c.Category)
		if c.Category == "" || seen[c.Category] {
			continue
		}
		seen[c.Category] = true
		c.Ordinal = plainOrdinal(c.Ordinal)
		out = append(out, c)
	}
	return out
}

// plainOrdinal reduces a rendered sort key to its text, so markup in the
// ordinal does not change where a page sorts.
func plainOrdinal(ordinal string) string {
	if !strings.ContainsAny(ordinal, "<&") {
		return ordinal
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(ordinal))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}

// sortKey is the key a page sorts under within a category.
func sortKey(source, ordinal string) string {
	if ordinal != "" {
		return ordinal
	}
	return source
}
