package wiki2html

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash"
	"log/slog"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/arran4/wiki2html/store"
)

// renderKeyDomain keys the cache key hash.
var renderKeyDomain = [32]byte{
	'w', 'i', 'k', 'i', '2', 'h', 't', 'm', 'l', '.', 'r', 'e', 'n', 'd', 'e', 'r',
}

var resultEncoding cbor.EncMode

func init() {
	var err error
	resultEncoding, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wiki2html: CBOR encoder initialization failed: " + err.Error())
	}
}

// CachedRenderer serves renders from a store.RenderCache. A cached result
// is reused only while the store generation it was rendered at is current,
// so any save invalidates every entry that could have observed it.
type CachedRenderer struct {
	renderer *Renderer
	cache    store.RenderCache
}

// NewCached returns a CachedRenderer serving renderer's output from cache.
func NewCached(renderer *Renderer, cache store.RenderCache) *CachedRenderer {
	return &CachedRenderer{renderer: renderer, cache: cache}
}

// RenderWikitext is Renderer.RenderWikitext with caching.
func (c *CachedRenderer) RenderWikitext(ctx context.Context, wikitext string) (*Result, error) {
	return c.render(ctx, store.ModelWikitext, wikitext, func() (*Result, error) {
		return c.renderer.RenderWikitext(ctx, wikitext)
	})
}

// RenderArticle is Renderer.RenderArticle with caching.
func (c *CachedRenderer) RenderArticle(ctx context.Context, article *store.Article) (*Result, error) {
	return c.render(ctx, article.Model, article.Wikitext, func() (*Result, error) {
		return c.renderer.RenderArticle(ctx, article)
	})
}

func (c *CachedRenderer) render(ctx context.Context, model store.ContentModel, text string, fn func() (*Result, error)) (*Result, error) {
	logger := c.renderer.logger
	generation, err := c.cache.Generation(ctx)
	if err != nil {
		return nil, fmt.Errorf("wiki2html: render cache generation: %w", err)
	}
	key := c.key(generation, model, text)

	data, ok, err := c.cache.LoadRender(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "render cache load failed", slog.Any("error", err))
	} else if ok {
		var res Result
		err := cbor.Unmarshal(data, &res)
		if err == nil {
			logger.DebugContext(ctx, "render cache hit", slog.Uint64("generation", generation))
			return &res, nil
		}
		logger.WarnContext(ctx, "render cache entry unreadable", slog.Any("error", err))
	}

	res, err := fn()
	if err != nil {
		return nil, err
	}
	if data, err := resultEncoding.Marshal(res); err != nil {
		logger.WarnContext(ctx, "render cache encode failed", slog.Any("error", err))
	} else if err := c.cache.StoreRender(ctx, key, data); err != nil {
		logger.WarnContext(ctx, "render cache store failed", slog.Any("error", err))
	}
	return res, nil
}

// key hashes everything a render depends on besides the articles it looks
// up, which the generation stands in for.
func (c *CachedRenderer) key(generation uint64, model store.ContentModel, text string) []byte {
	h, err := blake3.NewKeyed(renderKeyDomain[:])
	if err != nil {
		panic("wiki2html: blake3 keyed hasher: " + err.Error())
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], generation)
	h.Write(buf[:])
	opts := c.renderer.opts
	for _, field := range []string{opts.ReadBaseURL, opts.EditBaseURL, opts.TemplateNamespace, string(model), text} {
		writeField(h, field)
	}
	binary.BigEndian.PutUint64(buf[:], uint64(opts.MaxTemplateDepth))
	h.Write(buf[:])
	return h.Sum(nil)
}

// writeField writes a length-prefixed string so adjacent fields cannot run
// together.
func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
