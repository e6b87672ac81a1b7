package testfixtures

import (
	"sync"
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2026, time.March, 14, 9, 26, 0, 0, time.UTC)
	clock := NewClock(start)

	updated := clock.Advance(90 * time.Minute)
	if !updated.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}

	clock.Set(start.Add(7 * 24 * time.Hour))
	if got := clock.NowFunc()(); !got.Equal(start.Add(7 * 24 * time.Hour)) {
		t.Fatalf("expected a week later, got %v", got)
	}
}

func TestClockConcurrentAdvance(t *testing.T) {
	clock := NewClock(time.Time{})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	if got := clock.Now(); !got.Equal(ReferenceTime().Add(100 * time.Second)) {
		t.Fatalf("expected 100 seconds elapsed, got %v", got.Sub(ReferenceTime()))
	}
}
