package presence

import (
	"encoding/json"
	"fmt"
)

type BBox struct {
	X1, Y1, X2, Y2 float64
}

// UnmarshalJSON accepts the detector's [x1, y1, x2, y2] array form.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("bbox has %d values, want 4", len(v))
	}
	b.X1, b.Y1, b.X2, b.Y2 = v[0], v[1], v[2], v[3]
	return nil
}

func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

type Detection struct {
	Label      string  `json:"label"`
	Box        BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Frame is one processed camera frame as emitted by the detector, one JSON
// object per line.
type Frame struct {
	Index      int         `json:"frame"`
	Detections []Detection `json:"detections"`
}

// Detector decides whether a frame counts as present.
type Detector struct {
	Label         string
	MinConfidence float64
}

func (d Detector) Present(f Frame) bool {
	for _, det := range f.Detections {
		if det.Label == d.Label && det.Confidence >= d.MinConfidence {
			return true
		}
	}
	return false
}

// ParseFrame decodes one JSONL line.
func ParseFrame(line []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	return f, nil
}
