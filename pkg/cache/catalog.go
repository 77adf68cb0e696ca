// The catalog is the key-to-location index that is also the recency queue.
// It combines a hash index (key to node) with an intrusive doubly linked list
// ordered from least to most recently used, so a recency bump, an insertion
// and an oldest-first eviction are all O(1). The evictor drives the ordering
// through MoveToBack and oldest-first scans; it never touches the list nodes
// directly.

package cache

import "iter"

// catalogNode is one entry in the recency list.
type catalogNode[L any] struct {
	next, prev *catalogNode[L]
	key        Key
	location   L
	size       int64
}

// Catalog is an ordered mapping from Key to a backend-specific location: the
// resident chunk for the memory backend, a file path for the disk backend.
// A key exists in the catalog iff its backing data exists. Catalog is not
// thread-safe; backends guard it with their mutex.
type Catalog[L any] struct {
	index      map[Key]*catalogNode[L]
	head, tail *catalogNode[L] // head = least recently used, tail = most recently used.
	totalBytes int64
}

// NewCatalog is the constructor for Catalog.
func NewCatalog[L any]() *Catalog[L] {
	return &Catalog[L]{index: make(map[Key]*catalogNode[L])}
}

// Len returns the number of catalog entries.
func (c *Catalog[L]) Len() int {
	return len(c.index)
}

// TotalBytes returns the sum of entry sizes, used for byte-budget accounting.
func (c *Catalog[L]) TotalBytes() int64 {
	return c.totalBytes
}

// Lookup returns the location stored for the key without touching recency.
func (c *Catalog[L]) Lookup(key Key) (L, bool /*found*/) {
	if node, exists := c.index[key]; exists {
		return node.location, true
	}
	var zero L
	return zero, false
}

// SizeOf returns the size recorded for the key's entry.
func (c *Catalog[L]) SizeOf(key Key) (int64, bool /*found*/) {
	if node, exists := c.index[key]; exists {
		return node.size, true
	}
	return 0, false
}

// Contains reports whether the key has a catalog entry.
func (c *Catalog[L]) Contains(key Key) bool {
	_, exists := c.index[key]
	return exists
}

// Insert adds the key at the most-recently-used end. If the key already
// exists, its location and size are replaced and it is bumped to most recent.
func (c *Catalog[L]) Insert(key Key, location L, size int64) {
	if node, exists := c.index[key]; exists {
		c.totalBytes += size - node.size
		node.location = location
		node.size = size
		c.moveToBack(node)
		return
	}
	node := &catalogNode[L]{key: key, location: location, size: size}
	c.pushBack(node)
	c.index[key] = node
	c.totalBytes += size
}

// MoveToBack bumps the key to the most-recently-used end. Absent keys are a
// no-op, so recency updates are safe to race with removals.
func (c *Catalog[L]) MoveToBack(key Key) {
	if node, exists := c.index[key]; exists {
		c.moveToBack(node)
	}
}

// Remove erases the key's entry and returns its location.
func (c *Catalog[L]) Remove(key Key) (L, bool /*found*/) {
	node, exists := c.index[key]
	if !exists {
		var zero L
		return zero, false
	}
	c.unlink(node)
	delete(c.index, key)
	c.totalBytes -= node.size
	return node.location, true
}

// PopOldest removes and returns the least-recently-used entry.
func (c *Catalog[L]) PopOldest() (Key, L, bool /*found*/) {
	if c.head == nil {
		var zero L
		return Key{}, zero, false
	}
	node := c.head
	c.unlink(node)
	delete(c.index, node.key)
	c.totalBytes -= node.size
	return node.key, node.location, true
}

// OldestFirst yields (key, size) pairs from least to most recently used.
// The catalog must not be mutated while iterating.
func (c *Catalog[L]) OldestFirst() iter.Seq2[Key, int64] {
	return func(yield func(Key, int64) bool) {
		for node := c.head; node != nil; node = node.next {
			if !yield(node.key, node.size) {
				return
			}
		}
	}
}

// Keys returns all keys ordered from least to most recently used.
func (c *Catalog[L]) Keys() []Key {
	keys := make([]Key, 0, len(c.index))
	for node := c.head; node != nil; node = node.next {
		keys = append(keys, node.key)
	}
	return keys
}

func (c *Catalog[L]) pushBack(node *catalogNode[L]) {
	node.prev = c.tail
	node.next = nil
	if c.tail != nil {
		c.tail.next = node
	} else { // List was empty.
		c.head = node
	}
	c.tail = node
}

func (c *Catalog[L]) unlink(node *catalogNode[L]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else { // Node is the head.
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else { // Node is the tail.
		c.tail = node.prev
	}
	node.next, node.prev = nil, nil
}

func (c *Catalog[L]) moveToBack(node *catalogNode[L]) {
	if c.tail == node {
		return // Already most recent.
	}
	c.unlink(node)
	c.pushBack(node)
}
