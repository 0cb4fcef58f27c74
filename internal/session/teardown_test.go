package session

import (
	"sync"
	"testing"
)

func TestTeardownRunsInReverseOrder(t *testing.T) {
	tc := NewTeardownCoordinator(nil)

	var mu sync.Mutex
	var order []string
	add := func(name string) ReleaseFunc {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	tc.Register("first", add("first"))
	tc.Register("second", add("second"))
	tc.Register("third", add("third"))
	if tc.Len() != 3 {
		t.Fatalf("len = %d, want 3", tc.Len())
	}

	tc.RunAll()

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestTeardownIsExactlyOnce(t *testing.T) {
	tc := NewTeardownCoordinator(nil)

	calls := 0
	tc.Register("resource", func() { calls++ })

	tc.RunAll()
	tc.RunAll()
	tc.RunAll()

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if tc.Len() != 0 {
		t.Fatalf("len after run = %d, want 0", tc.Len())
	}
}

func TestTeardownConcurrentRunsReleaseOnce(t *testing.T) {
	tc := NewTeardownCoordinator(nil)

	var mu sync.Mutex
	calls := 0
	tc.Register("resource", func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tc.RunAll()
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestTeardownSurvivesPanickingAction(t *testing.T) {
	tc := NewTeardownCoordinator(nil)

	released := false
	tc.Register("healthy", func() { released = true })
	tc.Register("broken", func() { panic("release exploded") })

	tc.RunAll()

	if !released {
		t.Fatal("healthy action did not run after the panicking one")
	}
}

func TestTeardownIgnoresNilRelease(t *testing.T) {
	tc := NewTeardownCoordinator(nil)
	tc.Register("nothing", nil)
	if tc.Len() != 0 {
		t.Fatalf("len = %d, want 0", tc.Len())
	}
	tc.RunAll()
}
