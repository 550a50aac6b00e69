package taskqueue

import (
	"sync"
	"testing"
)

func TestDepth(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.Push()
	}
	q.Done()
	q.Done()
	if got := q.Depth(); got != 3 {
		t.Fatalf("Depth = %d, want 3", got)
	}
	if q.Submitted() != 5 || q.Resolved() != 2 {
		t.Errorf("counters = %d/%d, want 5/2", q.Submitted(), q.Resolved())
	}
}

func TestDepthNeverNegative(t *testing.T) {
	q := New()
	q.Done()
	if got := q.Depth(); got != 0 {
		t.Fatalf("Depth = %d, want 0", got)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push()
				q.Done()
			}
		}()
	}
	wg.Wait()
	if got := q.Depth(); got != 0 {
		t.Fatalf("Depth = %d, want 0", got)
	}
	if got := q.Submitted(); got != 5000 {
		t.Fatalf("Submitted = %d, want 5000", got)
	}
}
