package ids

import (
	"sync"
	"testing"
)

func TestNewIsSortable(t *testing.T) {
	a := New()
	b := New()
	if len(a) != 26 {
		t.Fatalf("unexpected ulid length: %d", len(a))
	}
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}
}

func TestCounterConcurrentUnique(t *testing.T) {
	var c Counter
	const n = 200

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := c.Next()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(seen))
	}
	for i := int64(1); i <= n; i++ {
		if _, ok := seen[i]; !ok {
			t.Fatalf("missing id %d", i)
		}
	}
}
