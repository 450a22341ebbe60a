package session

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is the in-process session store: an approximately-LRU cache with
// a hard capacity bound and an optional TTL. Synchronization is delegated
// to the backing cache.
type Memory struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemory creates a memory store. Capacity must be positive; a zero TTL
// disables expiry.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	return &Memory{
		lru: expirable.NewLRU[string, []byte](capacity, nil, ttl),
	}
}

// Get returns the state cached under id, or ErrCacheMiss.
func (m *Memory) Get(_ context.Context, id string) ([]byte, error) {
	state, ok := m.lru.Get(id)
	if !ok {
		return nil, ErrCacheMiss
	}
	return state, nil
}

// Put upserts the state under id. The oldest entry is evicted when the
// capacity bound is hit.
func (m *Memory) Put(_ context.Context, id string, state []byte) error {
	m.lru.Add(id, state)
	return nil
}

// Len reports the number of cached sessions.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)
