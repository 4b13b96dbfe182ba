package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Store. The zero value is not usable; call
// NewMemory.
type Memory struct {
	mu         sync.RWMutex
	articles   map[string]*memoryArticle
	revisions  []Revision
	contents   map[Hash][]byte
	links      map[string][]string
	categories map[string][]CategoryLink
	cache      map[string][]byte
	generation uint64
	now        func() time.Time
}

type memoryArticle struct {
	model ContentModel
	// revisions holds indexes into Memory.revisions, oldest first.
	revisions []int
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		articles:   make(map[string]*memoryArticle),
		contents:   make(map[Hash][]byte),
		links:      make(map[string][]string),
		categories: make(map[string][]CategoryLink),
		cache:      make(map[string][]byte),
		now:        time.Now,
	}
}

func (m *Memory) FindArticle(ctx context.Context, title string) (*Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	title = NormalizeTitle(title)
	a, ok := m.articles[title]
	if !ok {
		return nil, nil
	}
	rev := m.revisions[a.revisions[len(a.revisions)-1]]
	return &Article{
		Title:     title,
		Model:     a.model,
		Wikitext:  string(m.contents[rev.Hash]),
		Revision:  rev.ID,
		UpdatedAt: rev.CreatedAt,
	}, nil
}

func (m *Memory) Save(ctx context.Context, edit Edit) (*Revision, error) {
	edit, err := prepareEdit(edit)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data := []byte(edit.Wikitext)
	hash := HashContent(data)
	if _, ok := m.contents[hash]; !ok {
		m.contents[hash] = data
	}
	rev := Revision{
		ID:        int64(len(m.revisions) + 1),
		Title:     edit.Title,
		Actor:     edit.Actor,
		Comment:   edit.Comment,
		Hash:      hash,
		Size:      len(data),
		CreatedAt: m.now().UTC(),
	}
	m.revisions = append(m.revisions, rev)
	a, ok := m.articles[edit.Title]
	if !ok {
		a = &memoryArticle{}
		m.articles[edit.Title] = a
	}
	a.model = edit.Model
	a.revisions = append(a.revisions, len(m.revisions)-1)
	m.generation++
	return &rev, nil
}

func (m *Memory) History(ctx context.Context, title string) ([]Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.articles[NormalizeTitle(title)]
	if !ok {
		return nil, ErrNotFound
	}
	history := make([]Revision, 0, len(a.revisions))
	for i := len(a.revisions) - 1; i >= 0; i-- {
		history = append(history, m.revisions[a.revisions[i]])
	}
	return history, nil
}

func (m *Memory) SetLinks(ctx context.Context, title string, links []string, categories []CategoryLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	title = NormalizeTitle(title)
	m.links[title] = normalizeAll(links)
	m.categories[title] = normalizeCategories(categories)
	return nil
}

func (m *Memory) Backlinks(ctx context.Context, title string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	title = NormalizeTitle(title)
	var sources []string
	for source, targets := range m.links {
		if slices.Contains(targets, title) {
			sources = append(sources, source)
		}
	}
	slices.Sort(sources)
	return sources, nil
}

func (m *Memory) CategoryMembers(ctx context.Context, category string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	category = NormalizeTitle(category)
	type member struct{ source, key string }
	var members []member
	for source, cats := range m.categories {
		for _, c := range cats {
			if c.Category == category {
				members = append(members, member{source, sortKey(source, c.Ordinal)})
			}
		}
	}
	slices.SortFunc(members, func(a, b member) int {
		if c := strings.Compare(a.key, b.key); c != 0 {
			return c
		}
		return strings.Compare(a.source, b.source)
	})
	sources := make([]string, len(members))
	for i, mem := range members {
		sources[i] = mem.source
	}
	return sources, nil
}

func (m *Memory) Generation(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation, nil
}

func (m *Memory) LoadRender(ctx context.Context, key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.cache[string(key)]
	return v, ok, nil
}

func (m *Memory) StoreRender(ctx context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[string(key)] = slices.Clone(value)
	return nil
}

func (m *Memory) Close() error { return nil }
