//go:build integration

package test_test

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("KIOSK_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "KIOSK_TEST_BIN not set; build with: go build -o kiosk . && KIOSK_TEST_BIN=$PWD/kiosk go test -tags integration ./test")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// writeToneWAV writes alternating bursts of a 220 Hz tone and silence.
func writeToneWAV(t *testing.T, sampleRate int, seconds float64) string {
	t.Helper()
	const headerSize = 44
	numSamples := int(float64(sampleRate) * seconds)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i := 0; i < numSamples; i++ {
		var v float64
		if (i/(sampleRate/2))%2 == 0 {
			v = 0.3 * math.Sin(2*math.Pi*220*float64(i)/float64(sampleRate))
		}
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(int16(v*32767)))
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runKiosk(t *testing.T, dir string, args ...string) (logDir, output string) {
	t.Helper()
	logDir = t.TempDir()
	cmdArgs := append(args, "-logpath", logDir)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("kiosk exited with error: %v\noutput: %s", err, out)
	}
	return logDir, string(out)
}

func readLog(t *testing.T, logDir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, "kiosk_log.txt"))
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	return string(data)
}

func TestVersion(t *testing.T) {
	_, out := runKiosk(t, t.TempDir(), "version")
	if !strings.HasPrefix(out, "kiosk ") {
		t.Errorf("version output = %q", out)
	}
}

func TestAnalyzeWAV(t *testing.T) {
	wav := writeToneWAV(t, 16000, 3)
	dir := t.TempDir()
	out := filepath.Join(dir, "out.flac")
	logDir, output := runKiosk(t, dir, "analyze", "-wav", wav, "-duration", "2s", "-tui=false", "-save", out)

	if !strings.Contains(output, "Final statistics") {
		t.Errorf("missing final statistics:\n%s", output)
	}
	if !strings.Contains(output, "Duration: ") {
		t.Errorf("reporter printed nothing:\n%s", output)
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		t.Errorf("flac not written: %v", err)
	}
	if diag := readLog(t, logDir); !strings.Contains(diag, "analysis") {
		t.Errorf("log missing analysis event:\n%s", diag)
	}
}

func TestWatchReplayLifecycle(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not in PATH")
	}
	dir := t.TempDir()

	var frames strings.Builder
	person := `{"frame":%d,"detections":[{"label":"person","bbox":[0,0,10,10],"confidence":0.9}]}` + "\n"
	empty := `{"frame":%d,"detections":[]}` + "\n"
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&frames, person, i)
	}
	for i := 8; i < 30; i++ {
		fmt.Fprintf(&frames, empty, i)
	}
	replay := filepath.Join(dir, "frames.jsonl")
	if err := os.WriteFile(replay, []byte(frames.String()), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := `presence:
  chimes: false
detector:
  replay: frames.jsonl
  frame_interval: 20ms
pipeline:
  terminate_timeout: 1s
  close_browser: false
  steps:
    - name: sleeper
      command: sleep
      args: ["30"]
`
	if err := os.WriteFile(filepath.Join(dir, "kiosk.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	logDir, _ := runKiosk(t, dir, "watch")
	diag := readLog(t, logDir)
	for _, want := range []string{"process_started", "process_stopped", "proc=sleeper", "event=enter", "event=exit"} {
		if !strings.Contains(diag, want) {
			t.Errorf("log missing %q:\n%s", want, diag)
		}
	}
}
