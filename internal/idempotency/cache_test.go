// SPDX-License-Identifier: Apache-2.0

package idempotency

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCheckMissThenHit(t *testing.T) {
	c := New(time.Minute, 10)

	if _, ok := c.Check("k1"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Record("k1", []byte(`{"status":"ok"}`))

	resp, ok := c.Check("k1")
	if !ok {
		t.Fatal("expected hit after record")
	}
	if !bytes.Equal(resp, []byte(`{"status":"ok"}`)) {
		t.Fatalf("expected stored response replayed verbatim, got %s", resp)
	}
}

func TestCheckEvictsExpiredEntry(t *testing.T) {
	c := New(time.Minute, 10)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Record("k1", []byte("one"))

	// Jump past the TTL.
	c.now = func() time.Time { return now.Add(61 * time.Second) }

	if _, ok := c.Check("k1"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry evicted, len=%d", c.Len())
	}
}

func TestEmptyKeyGetsNoProtection(t *testing.T) {
	c := New(time.Minute, 10)

	c.Record("", []byte("nope"))
	if c.Len() != 0 {
		t.Fatal("expected empty key to be ignored by Record")
	}

	var calls int
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte("fresh"), nil
	}

	for i := 0; i < 2; i++ {
		resp, replayed, err := c.Do(context.Background(), "", fn)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		if replayed {
			t.Fatal("empty key must never replay")
		}
		if string(resp) != "fresh" {
			t.Fatalf("unexpected response %s", resp)
		}
	}
	if calls != 2 {
		t.Fatalf("expected fn invoked per call without a key, got %d", calls)
	}
}

func TestDoReplaysWithinTTL(t *testing.T) {
	c := New(time.Minute, 10)

	var calls int
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte(fmt.Sprintf("result-%d", calls)), nil
	}

	first, replayed, err := c.Do(context.Background(), "k1", fn)
	if err != nil {
		t.Fatalf("first do: %v", err)
	}
	if replayed {
		t.Fatal("first call must not replay")
	}

	second, replayed, err := c.Do(context.Background(), "k1", fn)
	if err != nil {
		t.Fatalf("second do: %v", err)
	}
	if !replayed {
		t.Fatal("second call within TTL must replay")
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected byte-identical replay, got %s vs %s", first, second)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one fn invocation, got %d", calls)
	}
}

func TestDoTreatsExpiredKeyAsUnseen(t *testing.T) {
	c := New(time.Minute, 10)
	now := time.Now()
	c.now = func() time.Time { return now }

	var calls int
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte("r"), nil
	}

	if _, _, err := c.Do(context.Background(), "k1", fn); err != nil {
		t.Fatalf("do: %v", err)
	}

	c.now = func() time.Time { return now.Add(2 * time.Minute) }

	_, replayed, err := c.Do(context.Background(), "k1", fn)
	if err != nil {
		t.Fatalf("do after ttl: %v", err)
	}
	if replayed {
		t.Fatal("expired key must be treated as unseen")
	}
	if calls != 2 {
		t.Fatalf("expected two fn invocations across the TTL boundary, got %d", calls)
	}
}

func TestDoDoesNotCacheFailures(t *testing.T) {
	c := New(time.Minute, 10)

	boom := errors.New("store down")
	if _, _, err := c.Do(context.Background(), "k1", func(context.Context) ([]byte, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected store error surfaced, got %v", err)
	}

	resp, replayed, err := c.Do(context.Background(), "k1", func(context.Context) ([]byte, error) {
		return []byte("recovered"), nil
	})
	if err != nil {
		t.Fatalf("retry do: %v", err)
	}
	if replayed {
		t.Fatal("failed attempt must not have been recorded")
	}
	if string(resp) != "recovered" {
		t.Fatalf("unexpected response %s", resp)
	}
}

func TestDoCollapsesConcurrentRetries(t *testing.T) {
	c := New(time.Minute, 10)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("once"), nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([][]byte, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, _, err := c.Do(context.Background(), "same-key", fn)
			if err != nil {
				t.Errorf("do: %v", err)
				return
			}
			results[i] = resp
		}(i)
	}

	// Give every goroutine a chance to reach the flight group, then let the
	// single invocation finish.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one side-effecting invocation, got %d", got)
	}
	for i, resp := range results {
		if !bytes.Equal(resp, []byte("once")) {
			t.Fatalf("worker %d got %s", i, resp)
		}
	}
}

func TestRecordSweepsPastHighWater(t *testing.T) {
	c := New(time.Minute, 5)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		c.Record(fmt.Sprintf("old-%d", i), []byte("x"))
	}
	if c.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", c.Len())
	}

	// Everything above is now stale; the next Record crosses the high-water
	// mark and sweeps before inserting.
	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	c.Record("fresh", []byte("y"))

	if c.Len() != 1 {
		t.Fatalf("expected sweep to leave only the fresh entry, got %d", c.Len())
	}
	if _, ok := c.Check("fresh"); !ok {
		t.Fatal("expected fresh entry to survive the sweep")
	}
}

func TestRecordOverwrites(t *testing.T) {
	c := New(time.Minute, 10)

	c.Record("k1", []byte("first"))
	c.Record("k1", []byte("second"))

	resp, ok := c.Check("k1")
	if !ok || string(resp) != "second" {
		t.Fatalf("expected overwrite to win, got %q ok=%v", resp, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("expected single entry, got %d", c.Len())
	}
}
