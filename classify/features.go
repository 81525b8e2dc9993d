package classify

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// FeatureColumns are the eGeMAPSv02 functionals the classifier was trained
// on, in model input order.
var FeatureColumns = []string{
	// pitch variability
	"F0semitoneFrom27.5Hz_sma3nz_amean",
	"F0semitoneFrom27.5Hz_sma3nz_stddevNorm",
	// loudness dynamics
	"loudness_sma3_amean",
	"loudness_sma3_stddevNorm",
	// voice stability
	"HNRdBACF_sma3nz_amean",
	// pause and rhythm
	"VoicedSegmentsPerSec",
	"MeanUnvoicedSegmentLength",
	// spectral envelope
	"mfcc1_sma3_amean",
	"mfcc2_sma3_amean",
}

// Extractor turns an audio file into one value per FeatureColumns entry.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]float64, error)
}

// SmileExtractor runs openSMILE's SMILExtract on the file. Inputs that are
// not WAV are first converted with ffmpeg.
type SmileExtractor struct {
	Command string // SMILExtract
	Config  string // eGeMAPSv02.conf
	FFmpeg  string // ffmpeg, used for non-WAV input
}

func (e SmileExtractor) Extract(ctx context.Context, path string) ([]float64, error) {
	dir, err := os.MkdirTemp("", "kiosk-smile-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	input := path
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		input = filepath.Join(dir, "input.wav")
		if err := run(ctx, e.FFmpeg, "-nostdin", "-loglevel", "error", "-y", "-i", path, "-ac", "1", input); err != nil {
			return nil, fmt.Errorf("convert to wav: %w", err)
		}
	}

	out := filepath.Join(dir, "features.csv")
	if err := run(ctx, e.Command, "-C", e.Config, "-I", input, "-csvoutput", out); err != nil {
		return nil, err
	}
	f, err := os.Open(out)
	if err != nil {
		return nil, fmt.Errorf("read openSMILE output: %w", err)
	}
	defer f.Close()
	return ParseFeatureCSV(f, FeatureColumns)
}

func run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// ParseFeatureCSV reads a semicolon-separated openSMILE functionals file and
// returns the first row's values for columns, in order. Missing columns are
// reported together.
func ParseFeatureCSV(r io.Reader, columns []string) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read feature header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.Trim(strings.TrimSpace(h), "'")] = i
	}
	var missing []string
	for _, c := range columns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns in openSMILE output: %s", strings.Join(missing, ", "))
	}

	row, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("openSMILE output has no feature rows")
	}
	if err != nil {
		return nil, fmt.Errorf("read feature row: %w", err)
	}
	values := make([]float64, len(columns))
	for i, c := range columns {
		j := index[c]
		if j >= len(row) {
			return nil, fmt.Errorf("feature row is missing %s", c)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", c, err)
		}
		values[i] = v
	}
	return values, nil
}
