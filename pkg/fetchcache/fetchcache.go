package fetchcache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"awardgraph/pkg/logger"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultSize   = 1024
	DefaultTTL    = 15 * time.Minute
	DefaultNegTTL = 2 * time.Minute
)

// Cache is a bounded LRU response cache for external fetches. Entries
// expire after TTL; empty results and fetch failures are cached for the
// shorter NegTTL, so a just-published award shows up quickly and a failing
// endpoint is not hammered by every caller. Concurrent fetches for the
// same signature are collapsed into one.
type Cache[T any] struct {
	entries *lru.Cache[string, *entry[T]]
	ttl     time.Duration
	negTTL  time.Duration

	mu       sync.Mutex
	inflight map[string]*call[T]

	now func() time.Time
}

type entry[T any] struct {
	value   T
	err     error
	empty   bool
	expires time.Time
}

type call[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// NewCacheParams configures a Cache. Zero values fall back to the package
// defaults.
type NewCacheParams struct {
	Size   int
	TTL    time.Duration
	NegTTL time.Duration
}

func NewCache[T any](params NewCacheParams) (*Cache[T], error) {
	if params.Size <= 0 {
		params.Size = DefaultSize
	}
	if params.TTL <= 0 {
		params.TTL = DefaultTTL
	}
	if params.NegTTL <= 0 {
		params.NegTTL = DefaultNegTTL
	}

	entries, err := lru.New[string, *entry[T]](params.Size)
	if err != nil {
		return nil, err
	}

	return &Cache[T]{
		entries:  entries,
		ttl:      params.TTL,
		negTTL:   params.NegTTL,
		inflight: make(map[string]*call[T]),
		now:      time.Now,
	}, nil
}

// Signature derives the canonical cache key for a fetch parameter set.
// Parameter order never affects the key.
func Signature(kind string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(kind)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// GetOrFetch returns the cached outcome for sig, or runs fetch to fill it.
// isEmpty decides whether a fresh result gets the negative TTL. Failures
// are memoized under the negative TTL as well, so callers see the cached
// error instead of re-hitting a down endpoint; context errors are the
// caller's own and never cached. Only one fetch per signature runs at a
// time; latecomers wait for its result.
func (c *Cache[T]) GetOrFetch(ctx context.Context, sig string, isEmpty func(T) bool, fetch func(ctx context.Context) (T, error)) (T, error) {
	if e, ok := c.lookup(sig); ok {
		return e.value, e.err
	}

	c.mu.Lock()
	if inflight, ok := c.inflight[sig]; ok {
		c.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.value, inflight.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
	current := &call[T]{done: make(chan struct{})}
	c.inflight[sig] = current
	c.mu.Unlock()

	current.value, current.err = fetch(ctx)
	switch {
	case current.err == nil:
		c.put(sig, &entry[T]{value: current.value, empty: isEmpty != nil && isEmpty(current.value)})
	case !errors.Is(current.err, context.Canceled) && !errors.Is(current.err, context.DeadlineExceeded):
		c.put(sig, &entry[T]{err: current.err})
	}

	c.mu.Lock()
	delete(c.inflight, sig)
	c.mu.Unlock()
	close(current.done)

	return current.value, current.err
}

// Get returns the cached value for sig if present, unexpired and not a
// memoized failure.
func (c *Cache[T]) Get(sig string) (T, bool) {
	if e, ok := c.lookup(sig); ok && e.err == nil {
		return e.value, true
	}
	var zero T
	return zero, false
}

func (c *Cache[T]) lookup(sig string) (*entry[T], bool) {
	if e, ok := c.entries.Get(sig); ok {
		if c.now().Before(e.expires) {
			return e, true
		}
		c.entries.Remove(sig)
	}
	return nil, false
}

func (c *Cache[T]) put(sig string, e *entry[T]) {
	ttl := c.ttl
	if e.empty || e.err != nil {
		ttl = c.negTTL
	}
	e.expires = c.now().Add(ttl)
	if evicted := c.entries.Add(sig, e); evicted {
		logger.Debug("[FetchCache] Evicted least recently used entry", "signature", sig)
	}
}

// Len reports the number of live entries, expired or not.
func (c *Cache[T]) Len() int {
	return c.entries.Len()
}
