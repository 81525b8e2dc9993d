package speech

import (
	"errors"
	"sync"
	"time"

	"kiosk/log"
)

// ErrStopRequested is returned by [Sampler.Feed] once the configured capture
// duration has elapsed. The capture callback should stop the device.
var ErrStopRequested = errors.New("speech: capture duration reached")

// Sampler stamps incoming audio blocks with the elapsed time since the first
// block and pushes them into a [Window].
type Sampler struct {
	win        *Window
	duration   time.Duration // zero records continuously
	sampleRate int
	now        func() time.Time

	mu      sync.Mutex
	start   time.Time
	lastAt  time.Time
	lastLen int
	stopped bool
	blocks  int
	gaps    int
}

func NewSampler(win *Window, sampleRate int, duration time.Duration) *Sampler {
	return &Sampler{win: win, sampleRate: sampleRate, duration: duration, now: time.Now}
}

// Feed pushes one block. It returns ErrStopRequested on the block that
// reaches the duration and on every block after it; those later blocks are
// dropped.
func (s *Sampler) Feed(block []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopRequested
	}

	now := s.now()
	if s.start.IsZero() {
		s.start = now
	} else if s.lastLen > 0 && s.sampleRate > 0 {
		expected := time.Duration(float64(s.lastLen) / float64(s.sampleRate) * float64(time.Second))
		if gap := now.Sub(s.lastAt); gap > 2*expected {
			s.gaps++
			log.Warnf("audio dropout: %s between blocks, expected %s", gap.Round(time.Millisecond), expected.Round(time.Millisecond))
		}
	}
	s.lastAt, s.lastLen = now, len(block)
	s.blocks++

	elapsed := now.Sub(s.start)
	s.win.PushBlock(block, elapsed.Seconds())

	if s.duration > 0 && elapsed >= s.duration {
		s.stopped = true
		return ErrStopRequested
	}
	return nil
}

// Dropouts returns the number of blocks that arrived late.
func (s *Sampler) Dropouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gaps
}

func (s *Sampler) Blocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks
}
