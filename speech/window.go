package speech

import "sync"

// Window is a fixed-capacity sliding window of samples and the elapsed time
// at which each sample was captured. It is safe for one producer (the audio
// callback) and one consumer (the analysis tick) to use concurrently.
type Window struct {
	mu    sync.Mutex
	amps  []float64
	times []float64
	head  int // index of the oldest sample once full
	n     int
	last  float64
}

// NewWindow returns a window holding at most capacity samples.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		amps:  make([]float64, capacity),
		times: make([]float64, capacity),
	}
}

func (w *Window) Cap() int { return len(w.amps) }

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Elapsed returns the timestamp of the most recently pushed sample.
func (w *Window) Elapsed() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Push appends one sample, evicting the oldest when the window is full.
func (w *Window) Push(amp, elapsed float64) {
	w.mu.Lock()
	w.pushLocked(amp, elapsed)
	w.mu.Unlock()
}

// PushBlock appends a contiguous block of samples that share one timestamp.
func (w *Window) PushBlock(block []float64, elapsed float64) {
	w.mu.Lock()
	for _, a := range block {
		w.pushLocked(a, elapsed)
	}
	w.mu.Unlock()
}

func (w *Window) pushLocked(amp, elapsed float64) {
	// Timestamps never go backwards, even if the caller's clock does.
	if elapsed < w.last {
		elapsed = w.last
	}
	c := len(w.amps)
	if w.n < c {
		idx := (w.head + w.n) % c
		w.amps[idx] = amp
		w.times[idx] = elapsed
		w.n++
	} else {
		w.amps[w.head] = amp
		w.times[w.head] = elapsed
		w.head = (w.head + 1) % c
	}
	w.last = elapsed
}

// Snapshot copies the window contents, oldest first.
func (w *Window) Snapshot() (amps, times []float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	amps = make([]float64, w.n)
	times = make([]float64, w.n)
	c := len(w.amps)
	first := min(w.n, c-w.head)
	copy(amps, w.amps[w.head:w.head+first])
	copy(times, w.times[w.head:w.head+first])
	copy(amps[first:], w.amps[:w.n-first])
	copy(times[first:], w.times[:w.n-first])
	return amps, times
}
