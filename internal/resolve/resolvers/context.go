package resolvers

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"docket/internal/document/models"
	"docket/internal/resolve"
	"docket/internal/resolve/cache"
	"docket/internal/resolve/metrics"
	dErrors "docket/pkg/domain-errors"
)

// loadTimeout bounds a shared load once its first caller has gone away.
const loadTimeout = 30 * time.Second

// Loader fetches a context value on a cache miss. found=false with a nil
// error means the key has no value anywhere.
type Loader interface {
	Load(ctx context.Context, key string) (value string, found bool, err error)
}

type LoaderFunc func(ctx context.Context, key string) (string, bool, error)

func (f LoaderFunc) Load(ctx context.Context, key string) (string, bool, error) {
	return f(ctx, key)
}

// StaticLoader serves configured values.
type StaticLoader map[string]string

func (s StaticLoader) Load(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

// MetadataLoader serves metadata[key] from the most recently modified
// active document of one type.
type MetadataLoader struct {
	catalog Catalog
	docType string
}

func NewMetadataLoader(catalog Catalog, docType string) *MetadataLoader {
	return &MetadataLoader{catalog: catalog, docType: docType}
}

func (m *MetadataLoader) Load(ctx context.Context, key string) (string, bool, error) {
	page, err := m.catalog.Query(ctx, models.Filter{
		Types:  []string{m.docType},
		States: []models.State{models.StateActive},
		Limit:  models.MaxQueryLimit,
	})
	if err != nil {
		return "", false, err
	}
	docs := page.Documents
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].ModifiedAt.After(docs[j].ModifiedAt) })
	for _, doc := range docs {
		if v, ok := doc.Metadata[key]; ok && v != nil {
			return models.FormatValue(v), true, nil
		}
	}
	return "", false, nil
}

// ChainLoader asks each loader in turn and returns the first hit.
type ChainLoader []Loader

func (c ChainLoader) Load(ctx context.Context, key string) (string, bool, error) {
	for _, l := range c {
		v, found, err := l.Load(ctx, key)
		if err != nil {
			return "", false, err
		}
		if found {
			return v, true, nil
		}
	}
	return "", false, nil
}

// Context resolves @context:<key> through a long-lived cache, loading on a
// miss. Concurrent misses for one key share a single load.
type Context struct {
	cache   cache.Cache
	loader  Loader
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ resolve.Resolver = (*Context)(nil)

type ContextOption func(*Context)

func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *Context) {
		c.logger = logger
	}
}

func WithContextMetrics(m *metrics.Metrics) ContextOption {
	return func(c *Context) {
		c.metrics = m
	}
}

func NewContext(store cache.Cache, loader Loader, opts ...ContextOption) *Context {
	c := &Context{
		cache:  store,
		loader: loader,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) Resolve(ctx context.Context, value string, _ *resolve.Context) (string, error) {
	key := strings.TrimSpace(value)
	if key == "" {
		return "", dErrors.New(dErrors.CodeValidation, "@context: needs a key")
	}

	v, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		// A failing cache degrades to loading every time.
		c.count("cache_error")
		c.logger.WarnContext(ctx, "context cache read failed", "key", key, "error", err)
	case ok:
		c.count("hit")
		return v, nil
	default:
		c.count("miss")
	}

	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return c.load(loadCtx, key)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Context) load(ctx context.Context, key string) (string, error) {
	v, found, err := c.loader.Load(ctx, key)
	if err != nil {
		c.count("load_error")
		return "", err
	}
	if !found {
		return "", dErrors.Newf(dErrors.CodeNotFound, "no context value for %q", key)
	}
	if err := c.cache.Set(ctx, key, v); err != nil {
		c.count("cache_error")
		c.logger.WarnContext(ctx, "context cache write failed", "key", key, "error", err)
	}
	return v, nil
}

// Invalidate drops key so the next lookup reloads it.
func (c *Context) Invalidate(ctx context.Context, key string) error {
	return c.cache.Delete(ctx, key)
}

func (c *Context) count(result string) {
	if c.metrics != nil {
		c.metrics.IncrementContextCache(result)
	}
}
