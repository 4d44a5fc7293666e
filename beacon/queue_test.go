package beacon

import (
	"fmt"
	"sync"
	"testing"
)

// TestSightingQueue_DrainReturnsAndClears tests the atomic drain contract
func TestSightingQueue_DrainReturnsAndClears(t *testing.T) {
	q := &sightingQueue{}
	q.Append(nativeSighting("a", -40))
	q.Append(nativeSighting("b", -50))

	batch := q.Drain()
	if len(batch) != 2 {
		t.Fatalf("Expected 2 sightings, got %d", len(batch))
	}
	if q.Len() != 0 {
		t.Errorf("Queue should be empty after drain, has %d", q.Len())
	}
	if again := q.Drain(); len(again) != 0 {
		t.Errorf("Second drain should be empty, got %d", len(again))
	}

	t.Logf("✅ Drain returns the batch and leaves the queue empty")
}

// TestSightingQueue_ConcurrentAppendAndDrain tests that no sighting is
// lost or duplicated when producers race the draining goroutine
func TestSightingQueue_ConcurrentAppendAndDrain(t *testing.T) {
	q := &sightingQueue{}

	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Append(nativeSighting(fmt.Sprintf("p%d-%d", p, i), -40))
			}
		}(p)
	}

	seen := map[string]bool{}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	collect := func() {
		for _, s := range q.Drain() {
			addr := s.Device.Address()
			if seen[addr] {
				t.Errorf("Sighting %s drained twice", addr)
			}
			seen[addr] = true
		}
	}

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			collect()
		}
	}
	collect()

	if len(seen) != producers*perProducer {
		t.Errorf("Expected %d unique sightings, got %d", producers*perProducer, len(seen))
	}

	t.Logf("✅ %d sightings drained across concurrent appends, none lost or duplicated", len(seen))
}
