package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

const (
	megabyte         = 1024 * 1024
	DefaultSize      = 50 * megabyte
	DefaultTTL       = 30 * time.Minute
	minFreecacheSize = 512 * 1024
)

type entry struct {
	StoredAt time.Time       `json:"storedAt"`
	Value    json.RawMessage `json:"value"`
}

// PredictionCache keeps JSON encoded prediction results. Entries older than
// the TTL are treated as missing and dropped on read.
type PredictionCache struct {
	store *freecache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewPredictionCache(size int, ttl time.Duration) *PredictionCache {
	if size < minFreecacheSize {
		size = minFreecacheSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PredictionCache{
		store: freecache.NewCache(size),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock replaces the clock used for the TTL check. Meant for tests.
func (c *PredictionCache) WithClock(now func() time.Time) *PredictionCache {
	c.now = now
	return c
}

// Get decodes the cached value for key into v and reports whether it was found.
func (c *PredictionCache) Get(key string, v any) bool {
	raw, err := c.store.Get([]byte(key))
	if err != nil {
		return false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		log.Errorf("prediction cache: unmarshal entry %s: %s", key, err)
		c.store.Del([]byte(key))
		return false
	}
	if c.now().Sub(e.StoredAt) > c.ttl {
		c.store.Del([]byte(key))
		return false
	}
	if err := json.Unmarshal(e.Value, v); err != nil {
		log.Errorf("prediction cache: unmarshal value %s: %s", key, err)
		return false
	}
	return true
}

func (c *PredictionCache) Set(key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	raw, err := json.Marshal(entry{StoredAt: c.now(), Value: value})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	// freecache expiry only reclaims memory, the TTL is enforced on read
	if err := c.store.Set([]byte(key), raw, int(c.ttl.Seconds())); err != nil {
		return fmt.Errorf("set cache entry %s: %w", key, err)
	}
	return nil
}

func (c *PredictionCache) Clear() {
	c.store.Clear()
}

func (c *PredictionCache) EntryCount() int64 {
	return c.store.EntryCount()
}
