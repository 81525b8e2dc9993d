package speech

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"
)

func exampleAmps() []float64 {
	return []float64{0, 0, 0.02, 0.03, 0, 0, 0.05, 0, 0, 0, 0, 0, 0, 0, 0, 0.04}
}

func TestSegmentsExample(t *testing.T) {
	got := Segments(exampleAmps(), 0.01)
	want := []Segment{{2, 4}, {6, 7}, {15, 16}}
	if !slices.Equal(got, want) {
		t.Fatalf("Segments = %v, want %v", got, want)
	}
}

func TestGroupPhrasesExample(t *testing.T) {
	got := GroupPhrases(Segments(exampleAmps(), 0.01), 7)
	want := []Phrase{{Start: 2, End: 7}, {Start: 15, End: 16}}
	if !slices.Equal(got, want) {
		t.Fatalf("GroupPhrases = %v, want %v", got, want)
	}
}

func TestSegmentsThresholdIsExclusive(t *testing.T) {
	got := Segments([]float64{0.01, -0.01, 0.0100001, -0.5}, 0.01)
	want := []Segment{{2, 4}}
	if !slices.Equal(got, want) {
		t.Fatalf("Segments = %v, want %v", got, want)
	}
}

func TestSegmentsEmpty(t *testing.T) {
	if got := Segments(nil, 0.01); len(got) != 0 {
		t.Fatalf("expected no segments, got %v", got)
	}
	if got := GroupPhrases(nil, 7); len(got) != 0 {
		t.Fatalf("expected no phrases, got %v", got)
	}
}

func TestSegmentsSingleSampleRuns(t *testing.T) {
	got := Segments([]float64{0.5, 0, 0.5, 0, 0.5}, 0.01)
	want := []Segment{{0, 1}, {2, 3}, {4, 5}}
	if !slices.Equal(got, want) {
		t.Fatalf("Segments = %v, want %v", got, want)
	}
}

func randomAmps(r *rand.Rand, n int) []float64 {
	amps := make([]float64, n)
	for i := range amps {
		switch r.IntN(4) {
		case 0:
			amps[i] = 0.01
		case 1:
			amps[i] = r.Float64()*2 - 1
		default:
			amps[i] = (r.Float64()*2 - 1) * 0.01
		}
	}
	return amps
}

func TestSegmentsCoverExactlyTheLoudSamples(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for iter := 0; iter < 200; iter++ {
		amps := randomAmps(r, r.IntN(300))
		segs := Segments(amps, 0.01)

		covered := make([]bool, len(amps))
		prevEnd := -1
		for _, s := range segs {
			if s.End <= s.Start {
				t.Fatalf("empty segment %v", s)
			}
			if s.Start < prevEnd {
				t.Fatalf("segments overlap or are unsorted: %v", segs)
			}
			prevEnd = s.End
			for i := s.Start; i < s.End; i++ {
				covered[i] = true
			}
		}
		for i, a := range amps {
			if covered[i] != (math.Abs(a) > 0.01) {
				t.Fatalf("index %d (amp %g): covered=%v", i, a, covered[i])
			}
		}
	}
}

func TestGroupPhrasesIdempotent(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for iter := 0; iter < 200; iter++ {
		amps := randomAmps(r, r.IntN(400))
		phrases := GroupPhrases(Segments(amps, 0.01), r.IntN(20))

		asSegs := make([]Segment, len(phrases))
		for i, p := range phrases {
			asSegs[i] = Segment{Start: p.Start, End: p.End}
		}
		again := GroupPhrases(asSegs, 0)
		if !slices.Equal(again, phrases) {
			t.Fatalf("regrouping changed phrases: %v -> %v", phrases, again)
		}
	}
}

func TestGroupPhrasesBoundary(t *testing.T) {
	segs := []Segment{{0, 2}, {9, 10}}
	// gap is exactly 7: a break
	if got := GroupPhrases(segs, 7); len(got) != 2 {
		t.Fatalf("gap == minBreak should split, got %v", got)
	}
	// gap 7 < 8: merged
	if got := GroupPhrases(segs, 8); !slices.Equal(got, []Phrase{{Start: 0, End: 10}}) {
		t.Fatalf("gap < minBreak should merge, got %v", got)
	}
}

func TestEstimateWords(t *testing.T) {
	tests := []struct {
		samples int
		want    int
	}{
		{1, 1},    // 0.1s
		{5, 1},    // 0.5s
		{12, 2},   // 1.2s -> 2.4
		{25, 5},   // 2.5s -> 5
		{125, 25}, // 12.5s
		{7, 1},    // 0.7s -> 1.4
		{13, 3},   // 1.3s -> 2.6
	}
	for _, tt := range tests {
		got := EstimateWords(Phrase{Start: 0, End: tt.samples}, 10, 0.5)
		if got != tt.want {
			t.Errorf("EstimateWords(%d samples) = %d, want %d", tt.samples, got, tt.want)
		}
	}
}

func TestAnalyzeExample(t *testing.T) {
	cfg := Config{SampleRate: 10, Threshold: 0.01, MinBreak: 700 * time.Millisecond, SecondsPerWord: 0.5}
	amps := exampleAmps()
	times := make([]float64, len(amps))
	for i := range times {
		times[i] = float64(i) / 10
	}
	st := Analyze(amps, times, 1.6, cfg)

	if len(st.Phrases) != 2 {
		t.Fatalf("phrases = %v", st.Phrases)
	}
	if st.TotalWords != 2 {
		t.Errorf("TotalWords = %d, want 2", st.TotalWords)
	}
	if math.Abs(st.SpeakingTime-0.4) > 1e-9 {
		t.Errorf("SpeakingTime = %g, want 0.4", st.SpeakingTime)
	}
	if math.Abs(st.SilenceTime-1.2) > 1e-9 {
		t.Errorf("SilenceTime = %g, want 1.2", st.SilenceTime)
	}
	if math.Abs(st.SpeechRate-2/1.6) > 1e-9 {
		t.Errorf("SpeechRate = %g, want %g", st.SpeechRate, 2/1.6)
	}
}

func TestAnalyzeZeroElapsed(t *testing.T) {
	cfg := DefaultConfig(10)
	st := Analyze([]float64{0.5, 0.5}, []float64{0, 0}, 0, cfg)
	if st.SpeechRate != 0 {
		t.Errorf("SpeechRate = %g, want 0", st.SpeechRate)
	}
	if st.TotalWords < len(st.Phrases) {
		t.Errorf("TotalWords %d < phrases %d", st.TotalWords, len(st.Phrases))
	}
}

func TestAnalyzeTruncatesMismatchedSnapshot(t *testing.T) {
	cfg := DefaultConfig(10)
	st := Analyze([]float64{0, 0.5, 0.5, 0.5}, []float64{0, 0.1}, 0.4, cfg)
	if want := []Segment{{1, 2}}; !slices.Equal(st.Segments, want) {
		t.Fatalf("Segments = %v, want %v", st.Segments, want)
	}
}

func TestWordsAtLeastPhrases(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	cfg := DefaultConfig(100)
	for iter := 0; iter < 100; iter++ {
		amps := randomAmps(r, r.IntN(1000))
		st := Analyze(amps, make([]float64, len(amps)), 10, cfg)
		if st.TotalWords < len(st.Phrases) {
			t.Fatalf("TotalWords %d < phrases %d", st.TotalWords, len(st.Phrases))
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig(44100).Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig(44100)
	bad.Threshold = -0.1
	bad.SampleRate = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for negative threshold and zero sample rate")
	}
	if _, err := NewAnalyzer(NewWindow(10), bad); err == nil {
		t.Fatal("NewAnalyzer accepted an invalid config")
	}
}

func TestMinBreakSamples(t *testing.T) {
	tests := []struct {
		rate int
		want int
	}{
		{44100, 30870},
		{11025, 7717}, // 7717.5 truncates
		{16000, 11200},
	}
	for _, tt := range tests {
		if got := DefaultConfig(tt.rate).MinBreakSamples(); got != tt.want {
			t.Errorf("MinBreakSamples at %d Hz = %d, want %d", tt.rate, got, tt.want)
		}
	}
}

func TestAnalyzerSkipsShortWindow(t *testing.T) {
	win := NewWindow(100)
	cfg := DefaultConfig(10)
	cfg.MinSamples = 5
	a, err := NewAnalyzer(win, cfg)
	if err != nil {
		t.Fatal(err)
	}
	win.PushBlock([]float64{0.5, 0.5}, 0.2)
	if tick, ok := a.Tick(); ok || tick != nil {
		t.Fatalf("expected skipped tick, got %v %v", tick, ok)
	}
	win.PushBlock([]float64{0, 0, 0.5}, 0.5)
	tick, ok := a.Tick()
	if !ok {
		t.Fatal("expected a tick with five samples")
	}
	if tick.Elapsed != 0.5 {
		t.Errorf("Elapsed = %g, want 0.5", tick.Elapsed)
	}
	if a.Latest() != tick {
		t.Error("Latest did not return the published tick")
	}
	if len(tick.Segments) != 2 {
		t.Errorf("Segments = %v", tick.Segments)
	}
}
