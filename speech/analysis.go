// Package speech turns a stream of audio amplitudes into speech segments,
// phrases, and a words-per-second estimate.
//
// Analysis is stateless between ticks: every call to [Analyze] recomputes
// everything from the current [Window] snapshot.
package speech

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

const (
	DefaultThreshold      = 0.01
	DefaultMinBreak       = 700 * time.Millisecond
	DefaultSecondsPerWord = 0.5
	DefaultChunk          = 100 * time.Millisecond
)

type Config struct {
	SampleRate     int
	Threshold      float64       // amplitude above which a sample is speech
	MinBreak       time.Duration // silence that separates two phrases
	SecondsPerWord float64
	// MinSamples is the smallest window worth analysing; smaller ticks are
	// skipped.
	MinSamples int
}

func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:     sampleRate,
		Threshold:      DefaultThreshold,
		MinBreak:       DefaultMinBreak,
		SecondsPerWord: DefaultSecondsPerWord,
		MinSamples:     int(DefaultChunk.Seconds() * float64(sampleRate)),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", c.SampleRate))
	}
	if c.Threshold < 0 {
		errs = append(errs, fmt.Errorf("threshold must not be negative, got %g", c.Threshold))
	}
	if c.MinBreak < 0 {
		errs = append(errs, fmt.Errorf("min break must not be negative, got %s", c.MinBreak))
	}
	if c.SecondsPerWord <= 0 {
		errs = append(errs, fmt.Errorf("seconds per word must be positive, got %g", c.SecondsPerWord))
	}
	if c.MinSamples < 0 {
		errs = append(errs, fmt.Errorf("min samples must not be negative, got %d", c.MinSamples))
	}
	return errors.Join(errs...)
}

// MinBreakSamples is MinBreak expressed in samples, truncated to a whole
// sample. Integer arithmetic keeps 0.7 s at 44.1 kHz at exactly 30870.
func (c Config) MinBreakSamples() int {
	return int(int64(c.MinBreak) * int64(c.SampleRate) / int64(time.Second))
}

// Stats is the full output of one analysis tick.
type Stats struct {
	Segments     []Segment
	Phrases      []Phrase
	TotalWords   int
	SpeakingTime float64 // seconds
	SilenceTime  float64 // seconds
	SpeechRate   float64 // words per second of elapsed time
	Elapsed      float64 // seconds since capture started
}

// Analyze segments amps and aggregates the result. amps and times are
// truncated to their common length first, so a torn snapshot is harmless.
func Analyze(amps, times []float64, elapsed float64, cfg Config) Stats {
	n := min(len(amps), len(times))
	amps = amps[:n]

	segs := Segments(amps, cfg.Threshold)
	phrases := GroupPhrases(segs, cfg.MinBreakSamples())

	st := Stats{Segments: segs, Phrases: phrases, Elapsed: elapsed}
	for i := range phrases {
		phrases[i].Words = EstimateWords(phrases[i], cfg.SampleRate, cfg.SecondsPerWord)
		st.TotalWords += phrases[i].Words
	}
	var speaking int
	for _, s := range segs {
		speaking += s.Len()
	}
	st.SpeakingTime = float64(speaking) / float64(cfg.SampleRate)
	st.SilenceTime = elapsed - st.SpeakingTime
	if elapsed > 0 {
		st.SpeechRate = float64(st.TotalWords) / elapsed
	}
	return st
}

// Tick is one published analysis result together with the samples it was
// computed from.
type Tick struct {
	Stats
	Amps  []float64
	Times []float64
}

// Analyzer runs [Analyze] over a [Window] and publishes the latest result for
// readers on other goroutines.
type Analyzer struct {
	win    *Window
	cfg    Config
	latest atomic.Pointer[Tick]
}

func NewAnalyzer(win *Window, cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("speech config: %w", err)
	}
	return &Analyzer{win: win, cfg: cfg}, nil
}

func (a *Analyzer) Config() Config { return a.cfg }

// Tick analyses the current window. When fewer than MinSamples samples are
// buffered it keeps the previous result and reports false.
func (a *Analyzer) Tick() (*Tick, bool) {
	amps, times := a.win.Snapshot()
	n := min(len(amps), len(times))
	if n == 0 || n < a.cfg.MinSamples {
		return a.latest.Load(), false
	}
	t := &Tick{
		Stats: Analyze(amps[:n], times[:n], times[n-1], a.cfg),
		Amps:  amps[:n],
		Times: times[:n],
	}
	a.latest.Store(t)
	return t, true
}

// Latest returns the most recently published result, or nil before the
// first successful tick.
func (a *Analyzer) Latest() *Tick { return a.latest.Load() }
