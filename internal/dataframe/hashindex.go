package dataframe

import (
	xxhash "github.com/cespare/xxhash/v2"
)

const (
	hashIndexLoadFactor     = 0.75       // load factor before the bucket array grows
	hashIndexGrowthFactor   = 2          // growth factor on resize
	hashIndexCapacityFactor = 1.3        // head room applied to the estimated size
	hashSignBitMask         = 0x7FFFFFFF // mask to remove sign bit from hash for positive modulo
)

// HashIndex maps string keys to the row positions holding them.
// Keys are bucketed by xxhash and remembered in first-insertion order.
type HashIndex struct {
	buckets    [][]hashEntry
	capacity   int
	loadFactor float64
	keys       []string
}

type hashEntry struct {
	key  string
	rows []int
}

// NewHashIndex creates an index sized for roughly estimatedSize distinct keys
func NewHashIndex(estimatedSize int) *HashIndex {
	capacity := nextPowerOfTwo(int(float64(estimatedSize) * hashIndexCapacityFactor))
	return &HashIndex{
		buckets:    make([][]hashEntry, capacity),
		capacity:   capacity,
		loadFactor: hashIndexLoadFactor,
	}
}

// Put records that row holds key
func (h *HashIndex) Put(key string, row int) {
	idx := h.bucketFor(key, h.capacity)

	for i := range h.buckets[idx] {
		if h.buckets[idx][i].key == key {
			h.buckets[idx][i].rows = append(h.buckets[idx][i].rows, row)
			return
		}
	}

	h.buckets[idx] = append(h.buckets[idx], hashEntry{key: key, rows: []int{row}})
	h.keys = append(h.keys, key)

	if float64(len(h.keys)) > float64(h.capacity)*h.loadFactor {
		h.resize()
	}
}

// Get returns the rows recorded for key
func (h *HashIndex) Get(key string) ([]int, bool) {
	for _, entry := range h.buckets[h.bucketFor(key, h.capacity)] {
		if entry.key == key {
			return entry.rows, true
		}
	}
	return nil, false
}

// Keys returns the distinct keys in the order they were first inserted
func (h *HashIndex) Keys() []string {
	return append([]string(nil), h.keys...)
}

// Len returns the number of distinct keys
func (h *HashIndex) Len() int {
	return len(h.keys)
}

// Duplicates returns the keys recorded for more than one row, in first-insertion order
func (h *HashIndex) Duplicates() []string {
	var dups []string
	for _, key := range h.keys {
		if rows, _ := h.Get(key); len(rows) > 1 {
			dups = append(dups, key)
		}
	}
	return dups
}

func (h *HashIndex) bucketFor(key string, capacity int) int {
	hash := xxhash.Sum64String(key)
	//nolint:gosec // capacity is always a positive power of two
	return int((hash & hashSignBitMask) % uint64(capacity))
}

// resize grows the bucket array and rehashes all entries
func (h *HashIndex) resize() {
	newCapacity := h.capacity * hashIndexGrowthFactor
	newBuckets := make([][]hashEntry, newCapacity)

	for _, bucket := range h.buckets {
		for _, entry := range bucket {
			idx := h.bucketFor(entry.key, newCapacity)
			newBuckets[idx] = append(newBuckets[idx], entry)
		}
	}

	h.buckets = newBuckets
	h.capacity = newCapacity
}

// nextPowerOfTwo returns the next power of two >= n.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
