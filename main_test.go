package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"kiosk/config"
	"kiosk/speech"
	"kiosk/supervise"
)

func TestRunUnknownCommand(t *testing.T) {
	if code := run("bogus", nil); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestPipelineSpecs(t *testing.T) {
	specs := pipelineSpecs(config.Default().Pipeline.Steps)
	if len(specs) != 3 {
		t.Fatalf("got %d specs", len(specs))
	}
	if specs[0].Command != "pnpm" || specs[0].WarmUp != 3*time.Second {
		t.Errorf("dev-server spec = %+v", specs[0])
	}
	if specs[1].Command != "" || specs[1].Action == nil {
		t.Errorf("browser step should be an action: %+v", specs[1])
	}
	if specs[2].Command != supervise.SelfCommand {
		t.Errorf("analysis step command = %q", specs[2].Command)
	}
}

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	n, err := crlfWriter{&buf}.Write([]byte("a\nb\n"))
	if err != nil || n != 4 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if buf.String() != "a\r\nb\r\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestFormatReport(t *testing.T) {
	got := formatReport(speech.Stats{Elapsed: 4.26, SpeakingTime: 1.5, TotalWords: 3, SpeechRate: 0.704})
	want := "Duration: 4.3s | Speaking: 1.5s | Words: 3 | Rate: 0.70 words/sec"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReportLoopReadsLatest(t *testing.T) {
	win := speech.NewWindow(100)
	cfg := speech.DefaultConfig(10)
	cfg.MinSamples = 1
	a, err := speech.NewAnalyzer(win, cfg)
	if err != nil {
		t.Fatal(err)
	}
	win.PushBlock([]float64{0.5, 0.5, 0, 0}, 0.4)
	a.Tick()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	var buf bytes.Buffer
	reportLoop(ctx, &buf, a, 10*time.Millisecond)
	if !strings.Contains(buf.String(), "Duration: 0.4s") {
		t.Errorf("report output = %q", buf.String())
	}
}

func TestWaveColumns(t *testing.T) {
	amps := make([]float64, 100)
	for i := 50; i < 60; i++ {
		amps[i] = 0.8
	}
	// 10 Hz: the 5 s view holds 50 samples, so only the last half is shown.
	cols := waveColumns(amps, 0.01, 10, 10)
	if len(cols) != 10 {
		t.Fatalf("got %d columns", len(cols))
	}
	if !cols[0].speech || !cols[1].speech || cols[0].peak != 0.8 {
		t.Errorf("first columns = %+v %+v", cols[0], cols[1])
	}
	for _, c := range cols[2:] {
		if c.speech || c.peak != 0 {
			t.Errorf("silent column = %+v", c)
		}
	}
	if waveColumns(nil, 0.01, 10, 10) != nil {
		t.Error("expected no columns for an empty window")
	}
}

func TestRenderWave(t *testing.T) {
	out := renderWave([]column{{peak: 1, speech: true}, {peak: 0}}, 5)
	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d rows", len(lines))
	}
	if !strings.Contains(lines[0], "█") {
		t.Errorf("full-scale column should reach the top row: %q", lines[0])
	}
	if !strings.Contains(lines[2], "─") {
		t.Errorf("baseline missing: %q", lines[2])
	}
}
