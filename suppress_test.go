package dirshare

import (
	"fmt"
	"sync"
	"testing"
)

func TestSuppressorBasics(t *testing.T) {
	s := NewSuppressor()

	if s.IsSuppressed("a.txt") {
		t.Error("fresh suppressor has a.txt suppressed")
	}
	s.Suppress("a.txt")
	if !s.IsSuppressed("a.txt") {
		t.Error("a.txt not suppressed after Suppress")
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Count())
	}

	// idempotent
	s.Suppress("a.txt")
	if s.Count() != 1 {
		t.Errorf("Count after duplicate Suppress = %d, want 1", s.Count())
	}

	s.Resume("a.txt")
	if s.IsSuppressed("a.txt") {
		t.Error("a.txt still suppressed after Resume")
	}
	s.Resume("a.txt") // no-op
	s.Resume("never-suppressed")
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}
}

func TestSuppressorClear(t *testing.T) {
	s := NewSuppressor()
	for i := 0; i < 10; i++ {
		s.Suppress(fmt.Sprintf("f%d", i))
	}
	s.Clear()
	if s.Count() != 0 {
		t.Errorf("Count after Clear = %d, want 0", s.Count())
	}
}

func TestSuppressorConcurrent(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 100

	s := NewSuppressor()
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				s.Suppress(fmt.Sprintf("g%d-f%d", g, i))
			}
		}(g)
	}
	wg.Wait()

	if s.Count() != goroutines*perGoroutine {
		t.Errorf("Count = %d, want %d", s.Count(), goroutines*perGoroutine)
	}

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				s.Resume(fmt.Sprintf("g%d-f%d", g, i))
			}
		}(g)
	}
	wg.Wait()

	if s.Count() != 0 {
		t.Errorf("Count after concurrent Resume = %d, want 0", s.Count())
	}
}
