// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package recurrence

import (
	"fmt"
	"sync"
	"time"

	"github.com/veliq/timegrid/internal/models"
)

// Cache defaults.
const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 500
)

// Cache memoizes expansion results keyed by template identity, template
// freshness, rule, and window. Entries expire after a TTL; once the cache is
// full the oldest insertion is evicted first.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	clock    func() time.Time
	entries  map[string]cacheEntry
	order    []string
}

type cacheEntry struct {
	value     []*models.CalendarEvent
	expiresAt time.Time
}

// NewCache builds a cache. Zero ttl or capacity fall back to the defaults;
// a nil clock uses time.Now.
func NewCache(ttl time.Duration, capacity int, clock func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		clock:    clock,
		entries:  make(map[string]cacheEntry),
	}
}

// CacheKey derives the lookup key for one template/window pair. The template's
// update stamp is part of the key so edits naturally invalidate stale entries.
func CacheKey(tmpl *models.CalendarEvent, win Window) string {
	stamp := tmpl.UpdatedAt
	if stamp.IsZero() {
		stamp = tmpl.StartsAt
	}
	rule := ""
	if tmpl.Recurrence != nil {
		rule = tmpl.Recurrence.Rule
	}
	return fmt.Sprintf("%s|%d|%s|%d|%d",
		tmpl.ID, stamp.UnixMilli(), rule,
		win.Start.UnixMilli(), win.End.UnixMilli())
}

// Get returns the cached value for key, if present and not expired.
func (c *Cache) Get(key string) ([]*models.CalendarEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Put stores a value under key, evicting the oldest entries once capacity is
// exceeded.
func (c *Cache) Put(key string, value []*models.CalendarEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{value: value, expiresAt: c.clock().Add(c.ttl)}

	for len(c.entries) > c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; ok {
			delete(c.entries, oldest)
		}
	}
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Expand returns the cached occurrences for the template and window,
// computing and storing them on a miss. Results are identical to calling
// Expand directly.
func (c *Cache) Expand(tmpl *models.CalendarEvent, win Window) []*models.CalendarEvent {
	key := CacheKey(tmpl, win)
	if cached, ok := c.Get(key); ok {
		return cached
	}
	value := Expand(tmpl, win)
	c.Put(key, value)
	return value
}
