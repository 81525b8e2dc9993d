// Package classify serves the audio classification endpoint: an uploaded
// recording goes through openSMILE feature extraction, a fitted standard
// scaler and a linear classifier.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kiosk/log"
	"kiosk/observe"
)

// ErrNotLoaded means the model or scaler is missing.
var ErrNotLoaded = errors.New("model or scaler not loaded")

var allowedExtensions = map[string]bool{"wav": true, "mp3": true, "ogg": true, "m4a": true}

type Service struct {
	Extractor   Extractor
	Model       *Model  // nil when not loaded
	Scaler      *Scaler // nil when not loaded
	Metrics     *observe.Metrics
	UploadLimit int64
}

// Result is a successful classification.
type Result struct {
	Prediction    string             `json:"prediction"`
	Probabilities map[string]float64 `json:"probabilities"`
	Features      int                `json:"features_extracted"`
	Status        string             `json:"status"`
}

type failure struct {
	Error         string             `json:"error"`
	Prediction    string             `json:"prediction"`
	Probabilities map[string]float64 `json:"probabilities"`
}

type badRequest struct {
	Error string `json:"error"`
}

type health struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	ScalerLoaded bool   `json:"scaler_loaded"`
}

func (s *Service) Loaded() bool { return s.Model != nil && s.Scaler != nil }

// Classify scales features and runs the model.
func (s *Service) Classify(features []float64) (*Result, error) {
	if !s.Loaded() {
		return nil, ErrNotLoaded
	}
	x, err := s.Scaler.Transform(features)
	if err != nil {
		return nil, err
	}
	class, err := s.Model.Predict(x)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Prediction: s.Model.ClassName(class),
		Features:   len(FeatureColumns),
		Status:     "success",
	}
	if s.Model.Probability {
		probs, err := s.Model.PredictProba(x)
		if err != nil {
			return nil, err
		}
		res.Probabilities = make(map[string]float64, len(probs))
		for i, p := range probs {
			res.Probabilities[s.Model.ProbabilityKey(i)] = p
		}
	}
	return res, nil
}

// Handler routes /analyze, /health and, when metrics is non-nil, /metrics.
func (s *Service) Handler(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", s.analyze)
	mux.HandleFunc("GET /health", s.health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return cors(observe.Middleware(s.Metrics)(mux))
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, health{
		Status:       "ok",
		ModelLoaded:  s.Model != nil,
		ScalerLoaded: s.Scaler != nil,
	})
}

func (s *Service) analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if s.UploadLimit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.UploadLimit)
	}

	file, hdr, err := r.FormFile("audio")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			s.reject(w, r, http.StatusRequestEntityTooLarge, "File too large")
		case errors.Is(err, http.ErrMissingFile) && r.MultipartForm != nil && len(r.MultipartForm.Value["audio"]) > 0:
			// a part named audio without a filename
			s.reject(w, r, http.StatusBadRequest, "No file selected")
		default:
			s.reject(w, r, http.StatusBadRequest, "No audio file provided")
		}
		return
	}
	defer file.Close()

	if hdr.Filename == "" {
		s.reject(w, r, http.StatusBadRequest, "No file selected")
		return
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(hdr.Filename), "."))
	if !allowedExtensions[ext] {
		s.reject(w, r, http.StatusBadRequest, "Invalid file type")
		return
	}
	if !s.Loaded() {
		s.Metrics.RecordClassification(r.Context(), "unavailable", time.Since(start))
		writeJSON(w, http.StatusServiceUnavailable, failure{
			Error:      "Model or scaler not loaded",
			Prediction: "Model not available",
		})
		return
	}

	res, err := s.classifyUpload(r, file, ext)
	if err != nil {
		log.Errorf("classify %s: %v", hdr.Filename, err)
		s.Metrics.RecordClassification(r.Context(), "error", time.Since(start))
		writeJSON(w, http.StatusInternalServerError, failure{Error: err.Error(), Prediction: "Error"})
		return
	}
	took := time.Since(start)
	s.Metrics.RecordClassification(r.Context(), "success", took)
	log.Classification(hdr.Filename, res.Prediction, took)
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) classifyUpload(r *http.Request, file io.Reader, ext string) (*Result, error) {
	tmp, err := os.CreateTemp("", "kiosk-upload-*."+ext)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("save upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	features, err := s.Extractor.Extract(r.Context(), tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("error extracting features: %w", err)
	}
	return s.Classify(features)
}

func (s *Service) reject(w http.ResponseWriter, r *http.Request, code int, msg string) {
	s.Metrics.RecordClassification(r.Context(), "rejected", 0)
	writeJSON(w, code, badRequest{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("write response: %v", err)
	}
}

// Load reads the model and scaler. A missing or unreadable file is logged and
// leaves that half nil so the server can still start.
func (s *Service) Load(modelPath, scalerPath string) {
	if m, err := LoadModel(modelPath); err != nil {
		log.Warnf("model not loaded: %v", err)
	} else {
		s.Model = m
	}
	if sc, err := LoadScaler(scalerPath); err != nil {
		log.Warnf("scaler not loaded: %v", err)
	} else {
		s.Scaler = sc
	}
}
