package speech

import "math"

// Phrase is a run of speech segments separated by gaps shorter than the
// minimum break. Words is the estimated word count, always at least one.
type Phrase struct {
	Start int
	End   int
	Words int
}

func (p Phrase) Len() int { return p.End - p.Start }

// GroupPhrases merges consecutive segments whose gap, in samples, is less
// than minBreak. A gap of minBreak or more closes the current phrase.
func GroupPhrases(segs []Segment, minBreak int) []Phrase {
	if len(segs) == 0 {
		return nil
	}
	var phrases []Phrase
	start := segs[0].Start
	for i, s := range segs {
		if i+1 == len(segs) {
			phrases = append(phrases, Phrase{Start: start, End: s.End})
			break
		}
		next := segs[i+1]
		if next.Start-s.End >= minBreak {
			phrases = append(phrases, Phrase{Start: start, End: s.End})
			start = next.Start
		}
	}
	return phrases
}

// EstimateWords returns max(1, round(duration / secondsPerWord)).
// Halves round to even.
func EstimateWords(p Phrase, sampleRate int, secondsPerWord float64) int {
	dur := float64(p.Len()) / float64(sampleRate)
	return max(1, int(math.RoundToEven(dur/secondsPerWord)))
}
