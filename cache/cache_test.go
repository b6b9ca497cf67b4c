package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetSetFreshness(t *testing.T) {
	now := time.Now()
	c := New[string](10 * time.Second)
	c.now = func() time.Time { return now }

	if _, ok := c.Get("k"); ok {
		t.Error("empty cache should miss")
	}

	c.Set("k", "v")
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Errorf("Get = %q, %v; want v, true", v, ok)
	}

	// Just under the max age: still fresh
	now = now.Add(10*time.Second - time.Millisecond)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry should be fresh just under max age")
	}

	// At the max age: stale
	now = now.Add(time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("entry at max age should miss")
	}
}

func TestGetStale(t *testing.T) {
	now := time.Now()
	c := New[int](time.Second)
	c.now = func() time.Time { return now }

	if _, _, ok := c.GetStale("k"); ok {
		t.Error("missing key has no stale value")
	}

	c.Set("k", 7)
	now = now.Add(time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should miss Get")
	}
	v, age, ok := c.GetStale("k")
	if !ok || v != 7 {
		t.Errorf("GetStale = %v, %v; want 7, true", v, ok)
	}
	if age != time.Minute {
		t.Errorf("age = %v, want 1m", age)
	}
}

func TestInvalidate(t *testing.T) {
	c := New[string](time.Minute)
	c.Set("k", "v")
	c.Invalidate("k")
	if _, _, ok := c.GetStale("k"); ok {
		t.Error("invalidated entry should be gone entirely")
	}
}

func TestFetchCachesResult(t *testing.T) {
	c := New[string](time.Minute)
	calls := 0
	fn := func(ctx context.Context) (string, error) {
		calls++
		return "fetched", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Fetch(context.Background(), "k", fn)
		if err != nil {
			t.Fatalf("Fetch error: %v", err)
		}
		if v != "fetched" {
			t.Errorf("Fetch = %q", v)
		}
	}
	if calls != 1 {
		t.Errorf("fetch fn ran %d times, want 1", calls)
	}
}

func TestFetchErrorNotCached(t *testing.T) {
	c := New[string](time.Minute)
	boom := errors.New("boom")
	calls := 0

	_, err := c.Fetch(context.Background(), "k", func(ctx context.Context) (string, error) {
		calls++
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Fetch error = %v, want boom", err)
	}
	if _, _, ok := c.GetStale("k"); ok {
		t.Error("failed fetch must not store anything")
	}

	// Next Fetch retries
	_, _ = c.Fetch(context.Background(), "k", func(ctx context.Context) (string, error) {
		calls++
		return "", boom
	})
	if calls != 2 {
		t.Errorf("fetch fn ran %d times, want 2", calls)
	}
}

func TestFetchCoalescesConcurrentCalls(t *testing.T) {
	c := New[string](time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Fetch(context.Background(), "k", fn)
			if err != nil {
				t.Errorf("Fetch error: %v", err)
			}
			results[i] = v
		}(i)
	}

	// Let the goroutines pile up on the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fetch fn ran %d times under concurrency, want 1", got)
	}
	for i, v := range results {
		if v != "shared" {
			t.Errorf("results[%d] = %q, want shared", i, v)
		}
	}
}

func TestFetchKeysAreIndependent(t *testing.T) {
	c := New[int](time.Minute)
	a, _ := c.Fetch(context.Background(), "a", func(context.Context) (int, error) { return 1, nil })
	b, _ := c.Fetch(context.Background(), "b", func(context.Context) (int, error) { return 2, nil })
	if a != 1 || b != 2 {
		t.Errorf("got %d, %d; want 1, 2", a, b)
	}
}
