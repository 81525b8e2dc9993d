// Package beep plays short chimes when a visitor arrives, leaves, or the
// pipeline fails. Playback is fire and forget; failures are silent.
package beep

import (
	"math"
	"sync"
	"sync/atomic"
)

const sampleRate = 44100

var (
	disabled    atomic.Bool
	backendOnce sync.Once
)

func Disable() { disabled.Store(true) }

// Init opens the playback backend ahead of the first chime.
func Init() { backendOnce.Do(initBackend) }

// tone is a decaying sine, repeated with a gap between repeats.
type tone struct {
	freq     float64
	length   float64 // seconds per repeat
	gap      float64 // seconds of silence between repeats
	volume   float64
	decay    float64
	repeats  int
	once     sync.Once
	rendered []int16
}

var (
	arrive = &tone{freq: 1200, length: 0.2, volume: 0.5, decay: 60, repeats: 1} // high, short
	depart = &tone{freq: 900, length: 0.2, volume: 0.5, decay: 40, repeats: 1}
	failed = &tone{freq: 350, length: 0.08, gap: 0.05, volume: 0.6, decay: 30, repeats: 2} // low double beep
)

// pcm renders the tone as mono S16 at sampleRate, once.
func (t *tone) pcm() []int16 {
	t.once.Do(func() { t.rendered = t.render(sampleRate) })
	return t.rendered
}

func (t *tone) render(rate int) []int16 {
	n := int(float64(rate) * t.length)
	gap := int(float64(rate) * t.gap)
	out := make([]int16, 0, t.repeats*n+(t.repeats-1)*gap)
	for r := 0; r < t.repeats; r++ {
		if r > 0 {
			out = append(out, make([]int16, gap)...)
		}
		for i := 0; i < n; i++ {
			s := float64(i) / float64(rate)
			out = append(out, int16(math.Sin(2*math.Pi*t.freq*s)*32767*t.volume*math.Exp(-s*t.decay)))
		}
	}
	return out
}

func play(t *tone) {
	if disabled.Load() {
		return
	}
	backendOnce.Do(initBackend)
	output(t.pcm())
}

func PlayArrive() { play(arrive) }
func PlayDepart() { play(depart) }
func PlayError()  { play(failed) }

// Chimes plays the package chimes on presence transitions.
type Chimes struct{}

func (Chimes) Arrive() { PlayArrive() }
func (Chimes) Depart() { PlayDepart() }
func (Chimes) Error()  { PlayError() }
