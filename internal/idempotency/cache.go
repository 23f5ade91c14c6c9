// SPDX-License-Identifier: Apache-2.0

// Package idempotency provides the in-process request-deduplication cache.
//
// The cache is advisory and non-durable: a restart loses every entry and
// silently re-enables duplicate processing for in-flight retries. Callers
// that cannot tolerate at-least-once delivery must supply an idempotency
// key; requests without one get no protection at all.
package idempotency

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL       = 60 * time.Second
	DefaultHighWater = 1000
)

type entry struct {
	response  []byte
	createdAt time.Time
}

// Cache maps an idempotency key to the response produced by the first
// successful handling of that key. Entries expire after the TTL, measured
// from insertion. Check and Record are individually safe under concurrency;
// Do makes the whole check-then-record sequence atomic per key.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]entry
	ttl       time.Duration
	highWater int

	group singleflight.Group
	now   func() time.Time
}

func New(ttl time.Duration, highWater int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if highWater <= 0 {
		highWater = DefaultHighWater
	}
	return &Cache{
		entries:   make(map[string]entry, 64),
		ttl:       ttl,
		highWater: highWater,
		now:       time.Now,
	}
}

// Check returns the stored response for key if one exists within the TTL.
// Expired entries are evicted on the spot.
func (c *Cache) Check(key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.createdAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.response, true
}

// Record stores the response for key with the current timestamp. It must be
// called only after all side-effecting work for the key has succeeded. When
// the entry count exceeds the high-water mark, expired entries are swept
// before inserting.
func (c *Cache) Record(key string, response []byte) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.highWater {
		c.sweepLocked()
	}
	c.entries[key] = entry{response: response, createdAt: c.now()}
}

// Do runs fn at most once per key: a cache hit replays the stored response
// without invoking fn, and concurrent calls on the same key share a single
// fn invocation. The response is recorded only when fn succeeds, so a failed
// attempt leaves the key unclaimed for the next retry. An empty key runs fn
// unconditionally.
//
// replayed reports whether the caller received a previously computed
// response rather than the result of its own fn invocation.
func (c *Cache) Do(ctx context.Context, key string, fn func(context.Context) ([]byte, error)) (response []byte, replayed bool, err error) {
	if key == "" {
		response, err = fn(ctx)
		return response, false, err
	}

	if cached, ok := c.Check(key); ok {
		return cached, true, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// A retry can land here just after the first flight recorded and
		// left the group; the inner check closes that window.
		if cached, ok := c.Check(key); ok {
			return cached, nil
		}
		resp, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Record(key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), shared, nil
}

// Len reports the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) sweepLocked() {
	cutoff := c.now().Add(-c.ttl)
	for key, e := range c.entries {
		if e.createdAt.Before(cutoff) {
			delete(c.entries, key)
		}
	}
}
