package speech

import "math"

// Segment is a half-open index interval [Start, End) of samples whose
// absolute amplitude is above the speech threshold.
type Segment struct {
	Start int
	End   int
}

func (s Segment) Len() int { return s.End - s.Start }

// Seconds converts the segment length to seconds at sampleRate.
func (s Segment) Seconds(sampleRate int) float64 {
	return float64(s.Len()) / float64(sampleRate)
}

// Segments scans amps once and returns every maximal run of samples with
// |amp| > threshold. A sample exactly at the threshold is silence.
func Segments(amps []float64, threshold float64) []Segment {
	var segs []Segment
	i := 0
	for i < len(amps) {
		if math.Abs(amps[i]) <= threshold {
			i++
			continue
		}
		start := i
		for i < len(amps) && math.Abs(amps[i]) > threshold {
			i++
		}
		segs = append(segs, Segment{Start: start, End: i})
	}
	return segs
}

// IsSpeech returns the per-sample speech mask used for rendering.
func IsSpeech(amps []float64, threshold float64) []bool {
	mask := make([]bool, len(amps))
	for i, a := range amps {
		mask[i] = math.Abs(a) > threshold
	}
	return mask
}
