package encoder

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mewkiz/flac"
)

func sine(n, rate int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
	}
	return out
}

func TestFlacEncoderRoundTrip(t *testing.T) {
	amps := sine(10000, 44100)
	enc, err := NewFlac(44100)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.EncodeFloats(amps); err != nil {
		t.Fatalf("EncodeFloats: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if enc.TotalFrames() != uint64(len(amps)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(amps))
	}

	data := enc.Bytes()
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}

	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stream.Info.SampleRate != 44100 {
		t.Errorf("decoded sample rate = %d", stream.Info.SampleRate)
	}
	var decoded []int32
	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ParseNext: %v", err)
		}
		decoded = append(decoded, f.Subframes[0].Samples...)
	}
	if len(decoded) != len(amps) {
		t.Fatalf("decoded %d samples, want %d", len(decoded), len(amps))
	}
	for i, a := range amps {
		if int32(quantize(a)) != decoded[i] {
			t.Fatalf("sample %d = %d, want %d", i, decoded[i], quantize(a))
		}
	}
}

func TestFlacEncoderEmpty(t *testing.T) {
	enc, err := NewFlac(16000)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
	if len(enc.Bytes()) == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestFlacEncoderPartialBlock(t *testing.T) {
	enc, err := NewFlac(16000)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	partial := make([]int16, BlockSize/4)
	for i := range partial {
		partial[i] = int16(i % 1000)
	}

	if err := enc.EncodeBlock(partial); err != nil {
		t.Fatalf("EncodeBlock partial: %v", err)
	}
	if err := enc.EncodeBlock(make([]int16, BlockSize+1)); err == nil {
		t.Error("oversized block accepted")
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if enc.TotalFrames() != uint64(len(partial)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(partial))
	}
}

func TestQuantizeClamps(t *testing.T) {
	tests := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2, 32767},
		{-3, -32768},
		{0.5, 16384},
	}
	for _, tt := range tests {
		if got := quantize(tt.in); got != tt.want {
			t.Errorf("quantize(%g) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSaveFloats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.flac")
	if err := SaveFloats(path, sine(500, 8000), 8000); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[:4]) != "fLaC" {
		t.Error("saved file is not FLAC")
	}
	if err := SaveFloats(path, nil, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestNewFlacRejectsBadRate(t *testing.T) {
	if _, err := NewFlac(-1); err == nil {
		t.Fatal("expected error")
	}
}
