// Package cache keeps constituent search answers on disk so repeated
// searches for the same concept do not hit the provider again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conceptlab/conceptci/internal/concepts"
)

// DefaultTTL is how long an answer stays fresh when Config.TTL is zero.
const DefaultTTL = 24 * time.Hour

// entry is the on-disk form of a cached answer.
type entry struct {
	Concept  string           `json:"concept"`
	Scope    string           `json:"scope"`
	StoredAt time.Time        `json:"storedAt"`
	Stocks   []concepts.Stock `json:"stocks"`
}

// Cache stores search answers as one JSON file per key.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
	mu  sync.Mutex
}

// New creates a cache in dir. An empty dir disables caching.
func New(dir string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{dir: dir, ttl: ttl, now: time.Now}
}

// Key derives the cache key for a concept name searched under scope.
// Scope should capture everything that changes the answer, such as the
// model and sampling settings.
func Key(scope, concept string) (string, error) {
	h := sha256.New()
	if err := writeString(h, scope); err != nil {
		return "", err
	}
	if err := writeString(h, concept); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the cached stocks for key if present and not expired.
func (c *Cache) Get(key string) ([]concepts.Stock, bool) {
	if c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.cachePath(key))
	if err != nil {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Invalid cache entry, treat as miss
		return nil, false
	}
	if c.now().Sub(e.StoredAt) > c.ttl {
		return nil, false
	}
	return e.Stocks, true
}

// Put stores stocks under key.
func (c *Cache) Put(key, scope, concept string, stocks []concepts.Stock) error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.MarshalIndent(entry{
		Concept:  concept,
		Scope:    scope,
		StoredAt: c.now().UTC(),
		Stocks:   stocks,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	if err := os.WriteFile(c.cachePath(key), data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}

// Clear removes the cache directory. It refuses to touch a directory that
// holds anything other than cache files.
func (c *Cache) Clear() error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			return fmt.Errorf("cache directory %s contains subdirectories - refusing to delete", c.dir)
		}
		if filepath.Ext(e.Name()) != ".json" {
			return fmt.Errorf("cache directory %s contains non-cache file %s - refusing to delete", c.dir, e.Name())
		}
	}
	return os.RemoveAll(c.dir)
}

func (c *Cache) cachePath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// StockSearcher is the search the cache sits in front of.
type StockSearcher interface {
	Search(ctx context.Context, name string) ([]concepts.Stock, error)
}

// Searcher answers from the cache when it can and records fresh answers.
// Failed searches are never cached.
type Searcher struct {
	next   StockSearcher
	cache  *Cache
	scope  string
	logger *slog.Logger
}

// NewSearcher wraps next with c. A nil logger uses slog.Default.
func NewSearcher(next StockSearcher, c *Cache, scope string, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{next: next, cache: c, scope: scope, logger: logger}
}

// Search implements StockSearcher.
func (s *Searcher) Search(ctx context.Context, name string) ([]concepts.Stock, error) {
	name = strings.TrimSpace(name)
	key, err := Key(s.scope, name)
	if err != nil {
		return nil, err
	}
	if stocks, ok := s.cache.Get(key); ok {
		s.logger.Debug("search cache hit", "concept", name, "stocks", len(stocks))
		return stocks, nil
	}

	return s.search(ctx, key, name)
}

// Refresh searches without reading the cache and stores the new answer.
func (s *Searcher) Refresh(ctx context.Context, name string) ([]concepts.Stock, error) {
	name = strings.TrimSpace(name)
	key, err := Key(s.scope, name)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, key, name)
}

func (s *Searcher) search(ctx context.Context, key, name string) ([]concepts.Stock, error) {
	stocks, err := s.next.Search(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(key, s.scope, name, stocks); err != nil {
		s.logger.Warn("failed to cache search answer", "concept", name, "error", err)
	}
	return stocks, nil
}

func writeString(w io.Writer, s string) error {
	// Null byte delimiter keeps ("ab","c") and ("a","bc") apart.
	_, err := w.Write([]byte(s + "\x00"))
	return err
}
