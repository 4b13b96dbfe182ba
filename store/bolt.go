package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketArticles   = "articles"
	bucketRevisions  = "revisions"
	bucketContents   = "contents"
	bucketLinks      = "links"
	bucketCategories = "categories"
	bucketCache      = "render_cache"
	bucketMeta       = "meta"
)

var generationKey = []byte("generation")

type articleRecord struct {
	Model     string  `cbor:"model"`
	Revisions []int64 `cbor:"revisions"`
	CreatedAt int64   `cbor:"created_at"`
}

type revisionRecord struct {
	Title     string `cbor:"title"`
	Actor     string `cbor:"actor"`
	Comment   string `cbor:"comment"`
	Hash      []byte `cbor:"hash"`
	Size      int    `cbor:"size"`
	CreatedAt int64  `cbor:"created_at"`
}

type contentRecord struct {
	Compression uint8  `cbor:"compression"`
	Size        int    `cbor:"size"`
	Data        []byte `cbor:"data"`
}

type categoryRecord struct {
	Category string `cbor:"category"`
	Ordinal  string `cbor:"ordinal"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// BoltConfig configures OpenBolt.
type BoltConfig struct {
	Path        string
	Compression Compression
}

// Bolt is a Store kept in a single bbolt file. Every record is CBOR.
type Bolt struct {
	db          *bolt.DB
	compression Compression
	now         func() time.Time
}

var _ Store = (*Bolt)(nil)

// OpenBolt opens or creates the database at cfg.Path.
func OpenBolt(cfg BoltConfig) (*Bolt, error) {
	db, err := bolt.Open(cfg.Path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt store: opening %s: %w", cfg.Path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketArticles, bucketRevisions, bucketContents, bucketLinks, bucketCategories, bucketCache, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt store: initializing %s: %w", cfg.Path, err)
	}
	return &Bolt{db: db, compression: cfg.Compression, now: time.Now}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func marshalSeq(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return buf[:]
}

func get[T any](bucket *bolt.Bucket, key []byte) (*T, error) {
	data := bucket.Get(key)
	if data == nil {
		return nil, nil
	}
	var v T
	if err := decMode.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func put(bucket *bolt.Bucket, key []byte, v any) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return err
	}
	return bucket.Put(key, data)
}

func (b *Bolt) FindArticle(ctx context.Context, title string) (*Article, error) {
	title = NormalizeTitle(title)
	var article *Article
	err := b.db.View(func(tx *bolt.Tx) error {
		a, err := get[articleRecord](tx.Bucket([]byte(bucketArticles)), []byte(title))
		if err != nil || a == nil {
			return err
		}
		id := a.Revisions[len(a.Revisions)-1]
		rev, err := get[revisionRecord](tx.Bucket([]byte(bucketRevisions)), marshalSeq(uint64(id)))
		if err != nil {
			return err
		}
		if rev == nil {
			return fmt.Errorf("missing revision %d", id)
		}
		content, err := get[contentRecord](tx.Bucket([]byte(bucketContents)), rev.Hash)
		if err != nil {
			return err
		}
		if content == nil {
			return fmt.Errorf("missing content %x", rev.Hash)
		}
		text, err := decompress(content.Data, Compression(content.Compression), content.Size)
		if err != nil {
			return err
		}
		article = &Article{
			Title:     title,
			Model:     ContentModel(a.Model),
			Wikitext:  string(text),
			Revision:  id,
			UpdatedAt: time.Unix(0, rev.CreatedAt).UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt store: find %q: %w", title, err)
	}
	return article, nil
}

func (b *Bolt) Save(ctx context.Context, edit Edit) (*Revision, error) {
	edit, err := prepareEdit(edit)
	if err != nil {
		return nil, err
	}
	data := []byte(edit.Wikitext)
	hash := HashContent(data)
	tag, stored, err := compress(data, b.compression)
	if err != nil {
		return nil, err
	}
	now := b.now().UTC()
	var id int64
	err = b.db.Update(func(tx *bolt.Tx) error {
		contents := tx.Bucket([]byte(bucketContents))
		if contents.Get(hash[:]) == nil {
			record := contentRecord{Compression: uint8(tag), Size: len(data), Data: stored}
			if err := put(contents, hash[:], record); err != nil {
				return err
			}
		}

		revisions := tx.Bucket([]byte(bucketRevisions))
		seq, err := revisions.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		rev := revisionRecord{
			Title:     edit.Title,
			Actor:     edit.Actor,
			Comment:   edit.Comment,
			Hash:      hash[:],
			Size:      len(data),
			CreatedAt: now.UnixNano(),
		}
		if err := put(revisions, marshalSeq(seq), rev); err != nil {
			return err
		}

		articles := tx.Bucket([]byte(bucketArticles))
		a, err := get[articleRecord](articles, []byte(edit.Title))
		if err != nil {
			return err
		}
		if a == nil {
			a = &articleRecord{CreatedAt: now.UnixNano()}
		}
		a.Model = string(edit.Model)
		a.Revisions = append(a.Revisions, id)
		if err := put(articles, []byte(edit.Title), a); err != nil {
			return err
		}
		return bumpGeneration(tx)
	})
	if err != nil {
		return nil, fmt.Errorf("bolt store: save %q: %w", edit.Title, err)
	}
	return &Revision{
		ID:        id,
		Title:     edit.Title,
		Actor:     edit.Actor,
		Comment:   edit.Comment,
		Hash:      hash,
		Size:      len(data),
		CreatedAt: now,
	}, nil
}

func bumpGeneration(tx *bolt.Tx) error {
	meta := tx.Bucket([]byte(bucketMeta))
	var generation uint64
	if v := meta.Get(generationKey); v != nil {
		generation = binary.BigEndian.Uint64(v)
	}
	return meta.Put(generationKey, marshalSeq(generation+1))
}

func (b *Bolt) History(ctx context.Context, title string) ([]Revision, error) {
	title = NormalizeTitle(title)
	var history []Revision
	err := b.db.View(func(tx *bolt.Tx) error {
		a, err := get[articleRecord](tx.Bucket([]byte(bucketArticles)), []byte(title))
		if err != nil {
			return err
		}
		if a == nil {
			return ErrNotFound
		}
		revisions := tx.Bucket([]byte(bucketRevisions))
		for i := len(a.Revisions) - 1; i >= 0; i-- {
			id := a.Revisions[i]
			rev, err := get[revisionRecord](revisions, marshalSeq(uint64(id)))
			if err != nil {
				return err
			}
			if rev == nil {
				continue
			}
			history = append(history, Revision{
				ID:        id,
				Title:     rev.Title,
				Actor:     rev.Actor,
				Comment:   rev.Comment,
				Hash:      hashFromBytes(rev.Hash),
				Size:      rev.Size,
				CreatedAt: time.Unix(0, rev.CreatedAt).UTC(),
			})
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("bolt store: history %q: %w", title, err)
	}
	return history, nil
}

func (b *Bolt) SetLinks(ctx context.Context, title string, links []string, categories []CategoryLink) error {
	title = NormalizeTitle(title)
	var records []categoryRecord
	for _, c := range normalizeCategories(categories) {
		records = append(records, categoryRecord{Category: c.Category, Ordinal: c.Ordinal})
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := put(tx.Bucket([]byte(bucketLinks)), []byte(title), normalizeAll(links)); err != nil {
			return err
		}
		return put(tx.Bucket([]byte(bucketCategories)), []byte(title), records)
	})
	if err != nil {
		return fmt.Errorf("bolt store: set links of %q: %w", title, err)
	}
	return nil
}

// Backlinks scans every page's links. The bolt backend targets small
// wikis; the SQLite backend keeps an index instead.
func (b *Bolt) Backlinks(ctx context.Context, title string) ([]string, error) {
	title = NormalizeTitle(title)
	var sources []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketLinks)).ForEach(func(k, v []byte) error {
			var targets []string
			if err := decMode.Unmarshal(v, &targets); err != nil {
				return err
			}
			if slices.Contains(targets, title) {
				sources = append(sources, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt store: backlinks of %q: %w", title, err)
	}
	return sources, nil
}

func (b *Bolt) CategoryMembers(ctx context.Context, category string) ([]string, error) {
	category = NormalizeTitle(category)
	type member struct{ source, key string }
	var members []member
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketCategories)).ForEach(func(k, v []byte) error {
			var records []categoryRecord
			if err := decMode.Unmarshal(v, &records); err != nil {
				return err
			}
			for _, r := range records {
				if r.Category == category {
					members = append(members, member{string(k), sortKey(string(k), r.Ordinal)})
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt store: members of %q: %w", category, err)
	}
	slices.SortFunc(members, func(a, b member) int {
		if c := strings.Compare(a.key, b.key); c != 0 {
			return c
		}
		return strings.Compare(a.source, b.source)
	})
	sources := make([]string, len(members))
	for i, m := range members {
		sources[i] = m.source
	}
	return sources, nil
}

func (b *Bolt) Generation(ctx context.Context) (uint64, error) {
	var generation uint64
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketMeta)).Get(generationKey); v != nil {
			generation = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return generation, err
}

func (b *Bolt) LoadRender(ctx context.Context, key []byte) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketCache)).Get(key); v != nil {
			value = slices.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("bolt store: loading render: %w", err)
	}
	return value, value != nil, nil
}

func (b *Bolt) StoreRender(ctx context.Context, key, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketCache)).Put(key, value)
	})
	if err != nil {
		return fmt.Errorf("bolt store: storing render: %w", err)
	}
	return nil
}
