package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
)

// Scaler standardises features as (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *Scaler) validate() error {
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("scaler has %d means and %d scales", len(s.Mean), len(s.Scale))
	}
	return nil
}

func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for i := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (x[i] - s.Mean[i]) / scale
	}
	return out, nil
}

// Model is a linear classifier. A single coefficient row is a binary
// logistic model; several rows are one-vs-rest scores with softmax
// probabilities.
type Model struct {
	Classes   []string    `json:"classes"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
	// Probability reports whether PredictProba is meaningful.
	Probability bool `json:"probability"`
}

func (m *Model) validate() error {
	if len(m.Coef) == 0 {
		return errors.New("model has no coefficients")
	}
	if len(m.Intercept) != len(m.Coef) {
		return fmt.Errorf("model has %d coefficient rows and %d intercepts", len(m.Coef), len(m.Intercept))
	}
	n := len(m.Coef[0])
	for i, row := range m.Coef {
		if len(row) != n {
			return fmt.Errorf("coefficient row %d has %d values, want %d", i, len(row), n)
		}
	}
	want := len(m.Coef)
	if want == 1 {
		want = 2
	}
	if len(m.Classes) != 0 && len(m.Classes) != want {
		return fmt.Errorf("model has %d classes, coefficients imply %d", len(m.Classes), want)
	}
	return nil
}

func (m *Model) scores(x []float64) ([]float64, error) {
	if len(x) != len(m.Coef[0]) {
		return nil, fmt.Errorf("model expects %d features, got %d", len(m.Coef[0]), len(x))
	}
	out := make([]float64, len(m.Coef))
	for i, row := range m.Coef {
		s := m.Intercept[i]
		for j, w := range row {
			s += w * x[j]
		}
		out[i] = s
	}
	return out, nil
}

// PredictProba returns one probability per class.
func (m *Model) PredictProba(x []float64) ([]float64, error) {
	s, err := m.scores(x)
	if err != nil {
		return nil, err
	}
	if len(s) == 1 {
		p := 1 / (1 + math.Exp(-s[0]))
		return []float64{1 - p, p}, nil
	}
	hi := s[0]
	for _, v := range s[1:] {
		hi = max(hi, v)
	}
	var sum float64
	probs := make([]float64, len(s))
	for i, v := range s {
		probs[i] = math.Exp(v - hi)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// Predict returns the index of the most likely class.
func (m *Model) Predict(x []float64) (int, error) {
	s, err := m.scores(x)
	if err != nil {
		return 0, err
	}
	if len(s) == 1 {
		if s[0] > 0 {
			return 1, nil
		}
		return 0, nil
	}
	best := 0
	for i, v := range s {
		if v > s[best] {
			best = i
		}
	}
	return best, nil
}

// ClassName is the label of class i, or its index when the model carries no
// class names.
func (m *Model) ClassName(i int) string {
	if i < len(m.Classes) {
		return m.Classes[i]
	}
	return strconv.Itoa(i)
}

// ProbabilityKey is the JSON key for class i in a probabilities map.
func (m *Model) ProbabilityKey(i int) string {
	if i < len(m.Classes) {
		return m.Classes[i]
	}
	return "Class_" + strconv.Itoa(i)
}

func LoadScaler(path string) (*Scaler, error) {
	var s Scaler
	if err := loadJSON(path, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scaler %s: %w", path, err)
	}
	return &s, nil
}

func LoadModel(path string) (*Model, error) {
	var m Model
	if err := loadJSON(path, &m); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &m, nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
