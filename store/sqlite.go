package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contents (
	hash        BLOB PRIMARY KEY,
	compression INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	data        BLOB
);

CREATE TABLE IF NOT EXISTS articles (
	id                 INTEGER PRIMARY KEY,
	title              TEXT NOT NULL UNIQUE,
	model              TEXT NOT NULL,
	latest_revision_id INTEGER,
	created_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS revisions (
	id           INTEGER PRIMARY KEY,
	article_id   INTEGER NOT NULL REFERENCES articles(id),
	actor        TEXT NOT NULL,
	comment      TEXT NOT NULL,
	content_hash BLOB NOT NULL REFERENCES contents(hash),
	size         INTEGER NOT NULL,
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_revisions_article ON revisions(article_id, id);

CREATE TABLE IF NOT EXISTS links (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	PRIMARY KEY (source, target)
);

CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);

CREATE TABLE IF NOT EXISTS categories (
	source   TEXT NOT NULL,
	category TEXT NOT NULL,
	ordinal  TEXT NOT NULL,
	PRIMARY KEY (source, category)
);

CREATE INDEX IF NOT EXISTS idx_categories_category ON categories(category);

CREATE TABLE IF NOT EXISTS render_cache (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);

INSERT OR IGNORE INTO meta (key, value) VALUES ('generation', 0);
`

// SQLiteConfig configures OpenSQLite.
type SQLiteConfig struct {
	Path        string
	PoolSize    int
	Compression Compression
	Logger      *slog.Logger
}

// SQLite is a Store backed by a pooled SQLite database.
type SQLite struct {
	pool        *pool
	compression Compression
	now         func() time.Time
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at cfg.Path and applies the
// schema.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLite, error) {
	p, err := openPool(poolConfig{Path: cfg.Path, PoolSize: cfg.PoolSize, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	conn, err := p.take(ctx)
	if err != nil {
		p.close()
		return nil, err
	}
	err = sqlitex.ExecuteScript(conn, sqliteSchema, nil)
	p.put(conn)
	if err != nil {
		p.close()
		return nil, fmt.Errorf("sqlite store: applying schema: %w", err)
	}
	return &SQLite{pool: p, compression: cfg.Compression, now: time.Now}, nil
}

func (s *SQLite) Close() error {
	return s.pool.close()
}

func (s *SQLite) FindArticle(ctx context.Context, title string) (*Article, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(conn)

	var (
		article *Article
		decErr  error
	)
	err = sqlitex.Execute(conn, `
		SELECT a.title, a.model, r.id, r.created_at, c.compression, c.size, c.data
		FROM articles a
		JOIN revisions r ON r.id = a.latest_revision_id
		JOIN contents c ON c.hash = r.content_hash
		WHERE a.title = ?`,
		&sqlitex.ExecOptions{
			Args: []any{NormalizeTitle(title)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				data := columnBlob(stmt, 6)
				text, err := decompress(data, Compression(stmt.ColumnInt64(4)), int(stmt.ColumnInt64(5)))
				if err != nil {
					decErr = err
					return nil
				}
				article = &Article{
					Title:     stmt.ColumnText(0),
					Model:     ContentModel(stmt.ColumnText(1)),
					Wikitext:  string(text),
					Revision:  stmt.ColumnInt64(2),
					UpdatedAt: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: find %q: %w", title, err)
	}
	if decErr != nil {
		return nil, fmt.Errorf("sqlite store: find %q: %w", title, decErr)
	}
	return article, nil
}

func (s *SQLite) Save(ctx context.Context, edit Edit) (_ *Revision, err error) {
	edit, err = prepareEdit(edit)
	if err != nil {
		return nil, err
	}
	data := []byte(edit.Wikitext)
	hash := HashContent(data)
	tag, stored, err := compress(data, s.compression)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer endFn(&err)

	now := s.now().UTC()
	err = sqlitex.Execute(conn,
		`INSERT OR IGNORE INTO contents (hash, compression, size, data) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{hash[:], int64(tag), int64(len(data)), stored}})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: saving content: %w", err)
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO articles (title, model, created_at) VALUES (?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET model = excluded.model`,
		&sqlitex.ExecOptions{Args: []any{edit.Title, string(edit.Model), now.UnixNano()}})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: saving article: %w", err)
	}
	var articleID int64
	err = sqlitex.Execute(conn, `SELECT id FROM articles WHERE title = ?`, &sqlitex.ExecOptions{
		Args: []any{edit.Title},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			articleID = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: saving article: %w", err)
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO revisions (article_id, actor, comment, content_hash, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{articleID, edit.Actor, edit.Comment, hash[:], int64(len(data)), now.UnixNano()}})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: saving revision: %w", err)
	}
	revisionID := conn.LastInsertRowID()
	err = sqlitex.Execute(conn, `UPDATE articles SET latest_revision_id = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{revisionID, articleID}})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: saving article: %w", err)
	}
	err = sqlitex.Execute(conn, `UPDATE meta SET value = value + 1 WHERE key = 'generation'`, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: bumping generation: %w", err)
	}
	return &Revision{
		ID:        revisionID,
		Title:     edit.Title,
		Actor:     edit.Actor,
		Comment:   edit.Comment,
		Hash:      hash,
		Size:      len(data),
		CreatedAt: now,
	}, nil
}

func (s *SQLite) History(ctx context.Context, title string) ([]Revision, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(conn)

	var history []Revision
	err = sqlitex.Execute(conn, `
		SELECT r.id, a.title, r.actor, r.comment, r.content_hash, r.size, r.created_at
		FROM revisions r
		JOIN articles a ON a.id = r.article_id
		WHERE a.title = ?
		ORDER BY r.id DESC`,
		&sqlitex.ExecOptions{
			Args: []any{NormalizeTitle(title)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				history = append(history, Revision{
					ID:        stmt.ColumnInt64(0),
					Title:     stmt.ColumnText(1),
					Actor:     stmt.ColumnText(2),
					Comment:   stmt.ColumnText(3),
					Hash:      hashFromBytes(columnBlob(stmt, 4)),
					Size:      int(stmt.ColumnInt64(5)),
					CreatedAt: time.Unix(0, stmt.ColumnInt64(6)).UTC(),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: history %q: %w", title, err)
	}
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	return history, nil
}

func (s *SQLite) SetLinks(ctx context.Context, title string, links []string, categories []CategoryLink) (err error) {
	title = NormalizeTitle(title)
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer endFn(&err)

	for _, query := range []string{`DELETE FROM links WHERE source = ?`, `DELETE FROM categories WHERE source = ?`} {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{title}}); err != nil {
			return fmt.Errorf("sqlite store: clearing links of %q: %w", title, err)
		}
	}
	for _, target := range normalizeAll(links) {
		err := sqlitex.Execute(conn, `INSERT INTO links (source, target) VALUES (?, ?)`,
			&sqlitex.ExecOptions{Args: []any{title, target}})
		if err != nil {
			return fmt.Errorf("sqlite store: saving link %q -> %q: %w", title, target, err)
		}
	}
	for _, c := range normalizeCategories(categories) {
		err := sqlitex.Execute(conn, `INSERT INTO categories (source, category, ordinal) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{title, c.Category, c.Ordinal}})
		if err != nil {
			return fmt.Errorf("sqlite store: saving category %q of %q: %w", c.Category, title, err)
		}
	}
	return nil
}

func (s *SQLite) Backlinks(ctx context.Context, title string) ([]string, error) {
	return s.titles(ctx, `SELECT source FROM links WHERE target = ? ORDER BY source`, NormalizeTitle(title))
}

func (s *SQLite) CategoryMembers(ctx context.Context, category string) ([]string, error) {
	return s.titles(ctx, `
		SELECT source FROM categories WHERE category = ?
		ORDER BY CASE WHEN ordinal = '' THEN source ELSE ordinal END, source`,
		NormalizeTitle(category))
}

func (s *SQLite) titles(ctx context.Context, query string, arg string) ([]string, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(conn)

	var titles []string
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{arg},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			titles = append(titles, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	return titles, nil
}

func (s *SQLite) Generation(ctx context.Context) (uint64, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.put(conn)

	var generation uint64
	err = sqlitex.Execute(conn, `SELECT value FROM meta WHERE key = 'generation'`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			generation = uint64(stmt.ColumnInt64(0))
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite store: generation: %w", err)
	}
	return generation, nil
}

func (s *SQLite) LoadRender(ctx context.Context, key []byte) ([]byte, bool, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, false, err
	}
	defer s.pool.put(conn)

	var (
		value []byte
		found bool
	)
	err = sqlitex.Execute(conn, `SELECT value FROM render_cache WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = columnBlob(stmt, 0)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("sqlite store: loading render: %w", err)
	}
	return value, found, nil
}

func (s *SQLite) StoreRender(ctx context.Context, key, value []byte) error {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	err = sqlitex.Execute(conn, `INSERT OR REPLACE INTO render_cache (key, value) VALUES (?, ?)`,
		&sqlitex.ExecOptions{Args: []any{key, value}})
	if err != nil {
		return fmt.Errorf("sqlite store: storing render: %w", err)
	}
	return nil
}

// columnBlob copies a BLOB column out of the statement.
func columnBlob(stmt *sqlite.Stmt, col int) []byte {
	n := stmt.ColumnLen(col)
	if n == 0 {
		return []byte{}
	}
	buf := make([]byte, n)
	stmt.ColumnBytes(col, buf)
	return buf
}
