// Package cache implements a bounded, TTL-expiring response cache with
// an in-memory index backed by one file per entry on disk. Disk is a
// read-through tier: a memory miss falls back to the entry's file and
// repopulates memory when the copy is still fresh. Disk failures are
// never surfaced; reads degrade to a miss and writes are best-effort.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMaxEntries is the default entry cap.
	DefaultMaxEntries = 50

	// DefaultTTL is the default entry time-to-live.
	DefaultTTL = 5 * time.Minute
)

// entry is a single cached payload. Entries are kept in insertion
// order; the oldest insertion is evicted first.
type entry struct {
	Key       string
	Payload   string
	CreatedAt time.Time
	TTL       time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// diskEntry is the JSON layout of an on-disk cache file.
type diskEntry struct {
	Key        string `json:"key"`
	Payload    string `json:"payload"`
	CreatedAt  int64  `json:"created_at"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// Cache is a two-tier key/value store for raw response payloads.
type Cache struct {
	dir        string
	maxEntries int
	defaultTTL time.Duration

	mu      sync.Mutex
	order   []*entry          // insertion order, oldest first
	index   map[string]*entry // key -> entry
	loading singleflight.Group

	log *logrus.Entry

	// now is swapped out by tests to simulate the passage of time.
	now func() time.Time
}

// New creates a Cache persisting under dir, creating the directory if
// needed. Non-positive maxEntries or defaultTTL fall back to the
// package defaults.
func New(dir string, maxEntries int, defaultTTL time.Duration, logger *logrus.Logger) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if logger == nil {
		logger = logrus.New()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &Cache{
		dir:        dir,
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		index:      make(map[string]*entry, maxEntries),
		log:        logger.WithField("component", "cache"),
		now:        time.Now,
	}, nil
}

// Get returns the payload for key, checking memory first and falling
// back to the entry's disk file. Expired entries are treated as absent;
// a stale disk file is left in place for the next Set to overwrite.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	if e, ok := c.index[key]; ok {
		if !e.expired(c.now()) {
			payload := e.Payload
			c.mu.Unlock()
			return payload, true
		}
	}
	c.mu.Unlock()

	// Memory miss: read through to disk. Concurrent misses for the same
	// key collapse into a single file read.
	v, err, _ := c.loading.Do(key, func() (interface{}, error) {
		return c.loadFromDisk(key)
	})
	if err != nil {
		return "", false
	}

	// loadFromDisk signals a miss with a nil *entry; the interface
	// wrapper itself is never nil, so check the pointer, not v.
	e, ok := v.(*entry)
	if !ok || e == nil {
		return "", false
	}

	c.mu.Lock()
	c.insertLocked(e)
	c.mu.Unlock()

	return e.Payload, true
}

// Set stores payload under key with the default TTL.
func (c *Cache) Set(key, payload string) {
	c.SetWithTTL(key, payload, c.defaultTTL)
}

// SetWithTTL stores payload under key. An existing entry is refreshed
// in place without changing its eviction slot; a new entry goes to the
// back of the eviction order, evicting the oldest entry when the cap is
// exceeded. The entry is always persisted to its disk file.
func (c *Cache) SetWithTTL(key, payload string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := c.now()

	c.mu.Lock()
	if e, ok := c.index[key]; ok {
		e.Payload = payload
		e.CreatedAt = now
		e.TTL = ttl
	} else {
		c.insertLocked(&entry{Key: key, Payload: payload, CreatedAt: now, TTL: ttl})
	}
	c.mu.Unlock()

	c.persist(&diskEntry{
		Key:        key,
		Payload:    payload,
		CreatedAt:  now.Unix(),
		TTLSeconds: int64(ttl / time.Second),
	})
}

// Clear empties the memory index and removes every cache file. The
// directory itself survives and the cache stays usable.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.order = nil
	c.index = make(map[string]*entry, c.maxEntries)
	c.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		c.log.WithError(err).Warn("failed to list cache files")
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			c.log.WithError(err).WithField("file", path).Warn("failed to remove cache file")
		}
	}
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// insertLocked appends e and evicts the single oldest entry when the
// cap is exceeded. Eviction is memory-only: the evicted entry's file
// stays on disk and may be served again by read-through while fresh.
func (c *Cache) insertLocked(e *entry) {
	if old, ok := c.index[e.Key]; ok {
		// Keep the existing eviction slot.
		*old = *e
		return
	}

	c.order = append(c.order, e)
	c.index[e.Key] = e

	if len(c.order) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.index, oldest.Key)
		c.log.WithField("key", oldest.Key).Debug("evicted oldest cache entry")
	}
}

// filePath derives the deterministic disk location for key.
func (c *Cache) filePath(key string) string {
	sum := md5.Sum([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

// loadFromDisk reads key's file and returns a fresh entry, or nil on
// any miss condition (absent file, unreadable file, expired copy).
func (c *Cache) loadFromDisk(key string) (*entry, error) {
	path := c.filePath(key)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.WithError(err).WithField("file", path).Warn("failed to read cache file")
		}
		return nil, nil
	}

	var de diskEntry
	if err := json.Unmarshal(data, &de); err != nil {
		c.log.WithError(err).WithField("file", path).Warn("corrupt cache file")
		return nil, nil
	}
	if de.Key != key {
		// Hash collision or foreign file; treat as miss.
		return nil, nil
	}

	e := &entry{
		Key:       de.Key,
		Payload:   de.Payload,
		CreatedAt: time.Unix(de.CreatedAt, 0),
		TTL:       time.Duration(de.TTLSeconds) * time.Second,
	}
	if e.expired(c.now()) {
		return nil, nil
	}
	return e, nil
}

func (c *Cache) persist(de *diskEntry) {
	data, err := json.Marshal(de)
	if err != nil {
		c.log.WithError(err).WithField("key", de.Key).Warn("failed to encode cache entry")
		return
	}
	path := c.filePath(de.Key)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.log.WithError(err).WithField("file", path).Warn("failed to write cache file")
	}
}
