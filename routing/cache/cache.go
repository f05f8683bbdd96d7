// SPDX-License-Identifier: jobmesh License 1.0

package cache

import (
	"container/list"
	"sync"
	stdlibtime "time"
)

func NewLRU(maxSize int, ttl stdlibtime.Duration, updateAgeOnGet bool) Cache {
	if maxSize <= 0 {
		maxSize = 1
	}

	return &lruCache{
		mx:             new(sync.Mutex),
		entries:        make(map[string]*list.Element, maxSize),
		order:          list.New(),
		maxSize:        maxSize,
		ttl:            ttl,
		updateAgeOnGet: updateAgeOnGet,
	}
}

func (c *lruCache) Get(key string) (string, bool) {
	c.mx.Lock()
	defer c.mx.Unlock()
	element, found := c.entries[key]
	if !found {
		c.misses++

		return "", false
	}
	entry := element.Value.(*lruEntry) //nolint:forcetypeassert // The list holds nothing else.
	if c.expired(entry, stdlibtime.Now()) {
		c.remove(element)
		c.misses++

		return "", false
	}
	if c.updateAgeOnGet {
		entry.accessedAt = stdlibtime.Now()
	}
	c.order.MoveToFront(element)
	c.hits++

	return entry.value, true
}

func (c *lruCache) Set(key, value string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	now := stdlibtime.Now()
	if element, found := c.entries[key]; found {
		entry := element.Value.(*lruEntry) //nolint:forcetypeassert // The list holds nothing else.
		entry.value = value
		entry.insertedAt = now
		entry.accessedAt = now
		c.order.MoveToFront(element)

		return
	}
	if c.order.Len() >= c.maxSize {
		c.evictOldest(now)
	}
	c.entries[key] = c.order.PushFront(&lruEntry{key: key, value: value, insertedAt: now, accessedAt: now})
}

// evictOldest prefers entries that are already expired, the least recently used one otherwise.
func (c *lruCache) evictOldest(now stdlibtime.Time) {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	if !c.expired(oldest.Value.(*lruEntry), now) { //nolint:forcetypeassert // The list holds nothing else.
		c.evictions++
	}
	c.remove(oldest)
}

func (c *lruCache) expired(entry *lruEntry, now stdlibtime.Time) bool {
	if c.ttl <= 0 {
		return false
	}
	age := entry.insertedAt
	if c.updateAgeOnGet {
		age = entry.accessedAt
	}

	return now.Sub(age) > c.ttl
}

func (c *lruCache) remove(element *list.Element) {
	delete(c.entries, element.Value.(*lruEntry).key) //nolint:forcetypeassert // The list holds nothing else.
	c.order.Remove(element)
}

func (c *lruCache) Len() int {
	c.mx.Lock()
	defer c.mx.Unlock()

	return c.order.Len()
}

func (c *lruCache) Clear() {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.entries = make(map[string]*list.Element, c.maxSize)
	c.order.Init()
}

func (c *lruCache) Stats() Stats {
	c.mx.Lock()
	defer c.mx.Unlock()

	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Size: c.order.Len()}
}

func (c *lruCache) Close() error {
	c.Clear()

	return nil
}
