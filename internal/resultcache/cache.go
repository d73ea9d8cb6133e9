// Package resultcache keeps recently generated images keyed by the inputs that
// produced them, so identical generation requests are answered without another
// call to the hosted model.
package resultcache

import (
	"container/list"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults match the web client's cache settings.
const (
	DefaultMaxSize = 50
	DefaultMaxAge  = time.Hour
)

// Metadata describes how a cached result was produced.
type Metadata struct {
	Model  string         `json:"model,omitempty"`
	Prompt string         `json:"prompt,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Entry is a cached generation result.
type Entry struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	InsertedAt time.Time `json:"insertedAt"`
	LastAccess time.Time `json:"lastAccess"`
	Meta       Metadata  `json:"meta"`
}

// Stats summarises cache occupancy.
type Stats struct {
	Size    int       `json:"size"`
	MaxSize int       `json:"maxSize"`
	Oldest  time.Time `json:"oldest,omitempty"`
	Newest  time.Time `json:"newest,omitempty"`
}

// Cache is a size- and age-bounded LRU cache. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	ll      *list.List // front = most recently used
	items   map[string]*list.Element
	maxSize int
	maxAge  time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxSize bounds the number of entries (minimum 1).
func WithMaxSize(n int) Option {
	return func(c *Cache) {
		c.maxSize = max(n, 1)
	}
}

// WithMaxAge sets how long an entry stays readable after insertion.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) {
		c.maxAge = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		ll:      list.New(),
		items:   make(map[string]*list.Element),
		maxSize: DefaultMaxSize,
		maxAge:  DefaultMaxAge,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key. Entries older than the max age read as
// a miss but stay in place until evicted or overwritten.
func (c *Cache) Get(key string) (string, bool) {
	e, ok := c.Lookup(key)
	return e.Value, ok
}

// Lookup is Get returning the full entry.
func (c *Cache) Lookup(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		log.Debug().Str("key", key).Msg("Result cache miss")
		return Entry{}, false
	}
	e := el.Value.(*Entry)
	now := c.now()
	if now.Sub(e.InsertedAt) > c.maxAge {
		log.Debug().Str("key", key).Time("insertedAt", e.InsertedAt).Msg("Result cache entry expired")
		return Entry{}, false
	}

	e.LastAccess = now
	c.ll.MoveToFront(el)
	log.Debug().Str("key", key).Msg("Result cache hit")
	return *e, true
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *Cache) Set(key, value string, meta Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*Entry)
		e.Value, e.Meta = value, meta
		e.InsertedAt, e.LastAccess = now, now
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.maxSize {
		c.evictOldest()
	}
	e := &Entry{Key: key, Value: value, InsertedAt: now, LastAccess: now, Meta: meta}
	c.items[key] = c.ll.PushFront(e)
}

// HasRecentRequest reports whether key was stored less than threshold ago.
// It does not count as an access.
func (c *Cache) HasRecentRequest(key string, threshold time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	return c.now().Sub(el.Value.(*Entry).InsertedAt) < threshold
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.items)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats reports the size and the insertion time range of stored entries.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Size: c.ll.Len(), MaxSize: c.maxSize}
	for el := c.ll.Front(); el != nil; el = el.Next() {
		t := el.Value.(*Entry).InsertedAt
		if s.Oldest.IsZero() || t.Before(s.Oldest) {
			s.Oldest = t
		}
		if t.After(s.Newest) {
			s.Newest = t
		}
	}
	return s
}

func (c *Cache) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	e := c.ll.Remove(el).(*Entry)
	delete(c.items, e.Key)
	log.Debug().Str("key", e.Key).Msg("Result cache evicted least recently used entry")
}
