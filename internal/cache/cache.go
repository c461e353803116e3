// Package cache stores successful AI generation results keyed by a content
// signature so identical submissions skip the provider.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL        = 15 * time.Minute
	DefaultMaxEntries = 2000
)

// Store is implemented by the in-memory and Redis backends.
type Store interface {
	Get(ctx context.Context, signature string) (Entry, bool, error)
	Set(ctx context.Context, signature string, entry Entry) error
}

type Entry struct {
	Value     json.RawMessage `json:"value"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
	Clock      func() time.Time
}

// BuildSignature hashes the normalized parts into a stable key.
func BuildSignature(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		normalized = append(normalized, strings.TrimSpace(part))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "||")))
	return hex.EncodeToString(sum[:])
}

// MemoryStore is a bounded TTL map. When full, the oldest entry is evicted.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	ttl        time.Duration
	maxEntries int
	clock      func() time.Time
}

func NewMemoryStore(config Config) *MemoryStore {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &MemoryStore{
		entries:    make(map[string]Entry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		clock:      config.Clock,
	}
}

func (c *MemoryStore) Get(_ context.Context, signature string) (Entry, bool, error) {
	c.mu.RLock()
	entry, exists := c.entries[signature]
	c.mu.RUnlock()

	if !exists {
		return Entry{}, false, nil
	}
	if c.clock().After(entry.ExpiresAt) {
		c.deleteIfExpired(signature)
		return Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

// deleteIfExpired re-reads the entry under the write lock; a Set that landed
// after the read lock was dropped keeps its fresh entry.
func (c *MemoryStore) deleteIfExpired(signature string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, exists := c.entries[signature]; exists && c.clock().After(entry.ExpiresAt) {
		delete(c.entries, signature)
	}
}

func (c *MemoryStore) Set(_ context.Context, signature string, entry Entry) error {
	now := c.clock().UTC()
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(c.ttl)
	entry = cloneEntry(entry)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, replacing := c.entries[signature]; !replacing && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[signature] = entry
	return nil
}

func (c *MemoryStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryStore) evictOldestLocked() {
	if len(c.entries) == 0 {
		return
	}
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].CreatedAt.Before(c.entries[keys[j]].CreatedAt)
	})
	delete(c.entries, keys[0])
}

func cloneEntry(entry Entry) Entry {
	clone := entry
	clone.Value = append(json.RawMessage(nil), entry.Value...)
	return clone
}
