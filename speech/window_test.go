package speech

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 5; i++ {
		w.Push(float64(i), float64(i)/10)
	}
	amps, times := w.Snapshot()
	if !slices.Equal(amps, []float64{3, 4, 5}) {
		t.Errorf("amps = %v", amps)
	}
	if !slices.Equal(times, []float64{0.3, 0.4, 0.5}) {
		t.Errorf("times = %v", times)
	}
	if w.Len() != 3 || w.Cap() != 3 {
		t.Errorf("Len/Cap = %d/%d", w.Len(), w.Cap())
	}
}

func TestWindowPartialFill(t *testing.T) {
	w := NewWindow(8)
	w.PushBlock([]float64{1, 2}, 0.1)
	amps, times := w.Snapshot()
	if !slices.Equal(amps, []float64{1, 2}) || !slices.Equal(times, []float64{0.1, 0.1}) {
		t.Fatalf("snapshot = %v %v", amps, times)
	}
}

func TestWindowTimesNonDecreasing(t *testing.T) {
	w := NewWindow(4)
	w.Push(1, 0.5)
	w.Push(2, 0.2)
	_, times := w.Snapshot()
	if times[1] < times[0] {
		t.Fatalf("times went backwards: %v", times)
	}
	if w.Elapsed() != 0.5 {
		t.Errorf("Elapsed = %g", w.Elapsed())
	}
}

func TestWindowConcurrentSnapshot(t *testing.T) {
	w := NewWindow(1000)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		block := make([]float64, 64)
		for i := 0; i < 500; i++ {
			w.PushBlock(block, float64(i))
		}
	}()
	for i := 0; i < 200; i++ {
		amps, times := w.Snapshot()
		if len(amps) != len(times) {
			t.Fatalf("torn snapshot: %d amps, %d times", len(amps), len(times))
		}
		for j := 1; j < len(times); j++ {
			if times[j] < times[j-1] {
				t.Fatalf("times not sorted at %d", j)
			}
		}
	}
	wg.Wait()
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestSamplerStopsAtDuration(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	w := NewWindow(100)
	s := NewSampler(w, 10, time.Second)
	s.now = clk.now

	block := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	if err := s.Feed(block); err != nil {
		t.Fatalf("first block: %v", err)
	}
	clk.t = clk.t.Add(500 * time.Millisecond)
	if err := s.Feed(block); err != nil {
		t.Fatalf("second block: %v", err)
	}
	clk.t = clk.t.Add(500 * time.Millisecond)
	if err := s.Feed(block); !errors.Is(err, ErrStopRequested) {
		t.Fatalf("expected ErrStopRequested, got %v", err)
	}
	if err := s.Feed(block); !errors.Is(err, ErrStopRequested) {
		t.Fatalf("expected ErrStopRequested after stop, got %v", err)
	}
	if w.Len() != 15 {
		t.Errorf("window has %d samples, want 15 (block after stop dropped)", w.Len())
	}
	if w.Elapsed() != 1 {
		t.Errorf("Elapsed = %g, want 1", w.Elapsed())
	}
}

func TestSamplerContinuous(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	s := NewSampler(NewWindow(10), 10, 0)
	s.now = clk.now
	for i := 0; i < 50; i++ {
		if err := s.Feed([]float64{0, 0}); err != nil {
			t.Fatalf("block %d: %v", i, err)
		}
		clk.t = clk.t.Add(200 * time.Millisecond)
	}
	if s.Dropouts() != 0 {
		t.Errorf("Dropouts = %d, want 0", s.Dropouts())
	}
	if s.Blocks() != 50 {
		t.Errorf("Blocks = %d", s.Blocks())
	}
}

func TestSamplerCountsDropouts(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	s := NewSampler(NewWindow(10), 10, 0)
	s.now = clk.now
	s.Feed([]float64{0})
	clk.t = clk.t.Add(time.Second) // one sample should take 100ms
	s.Feed([]float64{0})
	if s.Dropouts() != 1 {
		t.Errorf("Dropouts = %d, want 1", s.Dropouts())
	}
}
