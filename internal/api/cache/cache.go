// Package cache memoises extractor parameter calculations. Results are
// stored as JSON under a hash of the calculator inputs, and concurrent
// requests for the same inputs share one computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/cryptomite-go/cryptomite/internal/extractor"
	"github.com/cryptomite-go/cryptomite/pkg/metrics"
	pkgredis "github.com/cryptomite-go/cryptomite/pkg/redis"
)

const keyPrefix = "params:"

// ErrMiss is returned by Store.Get for an absent key.
var ErrMiss = errors.New("cache: miss")

// Store is a string key-value store with expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Request is the input of a parameter calculation.
type Request struct {
	Extractor string            `json:"extractor"`
	Sources   extractor.Sources `json:"sources"`
	Detailed  bool              `json:"detailed,omitempty"`
}

// ParamCache caches extractor.Calculate results.
type ParamCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a ParamCache. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *ParamCache {
	return &ParamCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "param-cache"),
	}
}

// Calculate returns the parameters for req, computing and storing them on
// a miss. The boolean reports whether the result came from the store.
// Calculation errors are not cached.
func (c *ParamCache) Calculate(ctx context.Context, req Request) (extractor.Params, bool, error) {
	key := buildKey(req)
	if p, ok := c.lookup(ctx, key); ok {
		c.hit()
		return p, true, nil
	}
	c.miss()
	val, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent caller may have stored the result since our lookup.
		if p, ok := c.lookup(ctx, key); ok {
			return p, nil
		}
		p, err := extractor.Calculate(req.Extractor, req.Sources, req.Detailed)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, p)
		return p, nil
	})
	if err != nil {
		return extractor.Params{}, false, err
	}
	return val.(extractor.Params), false, nil
}

// lookup reads key from the store. An entry that no longer decodes is
// deleted so the next calculation replaces it.
func (c *ParamCache) lookup(ctx context.Context, key string) (extractor.Params, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return extractor.Params{}, false
	}
	var p extractor.Params
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		c.logger.Error("cache unmarshal failed, dropping entry", "key", key, "error", err)
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Error("cache delete failed", "key", key, "error", err)
		}
		return extractor.Params{}, false
	}
	return p, true
}

func (c *ParamCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ParamCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *ParamCache) set(ctx context.Context, key string, p extractor.Params) {
	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every cached calculation.
func (c *ParamCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counts since creation.
func (c *ParamCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(req Request) string {
	s := req.Sources
	raw := fmt.Sprintf("%s|%d|%s|%d|%s|%s|%t|%t",
		extractor.Normalize(req.Extractor),
		s.N1, strconv.FormatFloat(s.K1, 'g', -1, 64),
		s.N2, strconv.FormatFloat(s.K2, 'g', -1, 64),
		strconv.FormatFloat(s.Log2Error, 'g', -1, 64),
		s.QuantumProof, req.Detailed)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// RedisStore adapts the redis client to Store.
type RedisStore struct {
	Client *pkgredis.Client
}

func (s RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.Client.Get(ctx, key)
	if pkgredis.IsNilError(err) {
		return "", ErrMiss
	}
	return v, err
}

func (s RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl)
}

func (s RedisStore) Delete(ctx context.Context, key string) error {
	return s.Client.Del(ctx, key)
}

func (s RedisStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	return s.Client.FlushByPattern(ctx, pattern)
}

// DefaultMemoryStoreSize bounds a MemoryStore created with a non-positive
// size.
const DefaultMemoryStoreSize = 4096

// MemoryStore is an in-process Store used when redis is disabled. It keeps
// at most size entries, evicting the least recently used first, and every
// entry expires ttl after it was written. The ttl given to Set is ignored.
type MemoryStore struct {
	lru *expirable.LRU[string, string]
}

// NewMemoryStore creates a MemoryStore. A ttl <= 0 keeps entries until they
// are evicted.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMemoryStoreSize
	}
	return &MemoryStore{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.lru.Get(key)
	if !ok {
		return "", ErrMiss
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	switch x := value.(type) {
	case string:
		s.lru.Add(key, x)
	case []byte:
		s.lru.Add(key, string(x))
	default:
		return fmt.Errorf("memory store: unsupported value type %T", value)
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

// FlushByPattern supports only prefix patterns ending in "*".
func (s *MemoryStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	prefix, ok := strings.CutSuffix(pattern, "*")
	if !ok || strings.Contains(prefix, "*") {
		return 0, fmt.Errorf("memory store: unsupported pattern %q", pattern)
	}
	var n int64
	for _, k := range s.lru.Keys() {
		if strings.HasPrefix(k, prefix) && s.lru.Remove(k) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
