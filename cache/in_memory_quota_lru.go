package cache

import (
	"container/list"
	"context"
	"sync"
)

// lruEntry links the request key and the snapshot to the list element.
type lruEntry struct {
	key   string
	size  int64
	value *Snapshot
}

// InMemoryQuotaLRU implements Cache with an optional memory limit and LRU policy.
type InMemoryQuotaLRU struct {
	mutex sync.RWMutex
	// Doubly linked list for LRU order, most recent at the front
	lru   *list.List
	cache map[string]*list.Element
	// Memory limit in bytes, zero means unlimited
	maxBytes int64
	// Current total size of all stored snapshots
	currentBytes int64
}

// NewInMemoryQuotaLRU creates a new InMemoryQuotaLRU generation.
// maxMB is the memory limit in megabytes; zero or less disables eviction.
func NewInMemoryQuotaLRU(maxMB int) *InMemoryQuotaLRU {
	var maxBytes int64
	if maxMB > 0 {
		maxBytes = int64(maxMB) * 1024 * 1024
	}
	return &InMemoryQuotaLRU{
		lru:      list.New(),
		cache:    make(map[string]*list.Element),
		maxBytes: maxBytes,
	}
}

// Match retrieves a snapshot and moves it to the front of the list (MRU).
func (lru *InMemoryQuotaLRU) Match(ctx context.Context, key string) (*Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	element, ok := lru.cache[key]
	if !ok {
		return nil, false, nil
	}
	lru.lru.MoveToFront(element)
	return element.Value.(*lruEntry).value, true, nil
}

// Put adds or replaces a snapshot, evicting from the back when over quota.
func (lru *InMemoryQuotaLRU) Put(ctx context.Context, key string, entry *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	itemSize := entry.Size()

	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	if element, ok := lru.cache[key]; ok {
		old := element.Value.(*lruEntry)
		lru.currentBytes -= old.size
		old.size = itemSize
		old.value = entry
		lru.currentBytes += itemSize
		lru.lru.MoveToFront(element)
	} else {
		element := lru.lru.PushFront(&lruEntry{key: key, size: itemSize, value: entry})
		lru.cache[key] = element
		lru.currentBytes += itemSize
	}

	if lru.maxBytes <= 0 {
		return nil
	}
	// never evict the entry that was just written
	for lru.currentBytes > lru.maxBytes && lru.lru.Len() > 1 {
		evicted := lru.lru.Remove(lru.lru.Back()).(*lruEntry)
		delete(lru.cache, evicted.key)
		lru.currentBytes -= evicted.size
	}
	return nil
}

// Delete removes a snapshot from the generation.
func (lru *InMemoryQuotaLRU) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	element, ok := lru.cache[key]
	if !ok {
		return false, nil
	}
	evicted := lru.lru.Remove(element).(*lruEntry)
	delete(lru.cache, evicted.key)
	lru.currentBytes -= evicted.size
	return true, nil
}

// Keys lists keys from least to most recently used.
func (lru *InMemoryQuotaLRU) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lru.mutex.RLock()
	defer lru.mutex.RUnlock()

	keys := make([]string, 0, lru.lru.Len())
	for element := lru.lru.Back(); element != nil; element = element.Prev() {
		keys = append(keys, element.Value.(*lruEntry).key)
	}
	return keys, nil
}

// Bytes reports the estimated size of all stored snapshots.
func (lru *InMemoryQuotaLRU) Bytes() int64 {
	lru.mutex.RLock()
	defer lru.mutex.RUnlock()
	return lru.currentBytes
}
