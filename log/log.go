package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const FileName = "kiosk_log.txt"

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

// Options controls Init. A nil Console logs to the file only, which is what
// the TUI needs since it owns the terminal.
type Options struct {
	Level   string
	Console io.Writer
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: KIOSK_LOG_PATH environment variable
	if envPath := os.Getenv("KIOSK_LOG_PATH"); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init(opts Options) error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = l
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, FileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	var out io.Writer = zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	if opts.Console != nil {
		out = zerolog.MultiLevelWriter(out, zerolog.ConsoleWriter{
			Out:        opts.Console,
			TimeFormat: time.TimeOnly,
		})
	}
	diagLog = zerolog.New(out).Level(level).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func ProcessStarted(name string, pid int, command string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("proc", name).
		Int("child_pid", pid).
		Str("command", command).
		Msg("process_started")
}

// ProcessStopped records how a managed process went away. how is one of
// "exited", "terminated" or "killed".
func ProcessStopped(name string, pid int, how string, took time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("proc", name).
		Int("child_pid", pid).
		Str("how", how).
		Float64("took_ms", float64(took.Microseconds())/1000).
		Msg("process_stopped")
}

func PresenceEvent(event string, frame int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("event", event).
		Int("frame", frame).
		Msg("presence")
}

type AnalysisData struct {
	ElapsedS  float64
	SpeakingS float64
	SilenceS  float64
	Words     int
	Phrases   int
	Rate      float64
	Dropouts  int
}

func AnalysisStats(m AnalysisData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Float64("elapsed_s", m.ElapsedS).
		Float64("speaking_s", m.SpeakingS).
		Float64("silence_s", m.SilenceS).
		Int("words", m.Words).
		Int("phrases", m.Phrases).
		Float64("rate", m.Rate).
		Int("dropouts", m.Dropouts).
		Msg("analysis")
}

func Classification(filename, prediction string, took time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("file", filename).
		Str("prediction", prediction).
		Float64("total_ms", float64(took.Microseconds())/1000).
		Msg("classification")
}

// Lines returns a writer that logs every complete line written to it, tagged
// with the process name and stream. Close flushes a trailing partial line.
func Lines(name, stream string) io.WriteCloser {
	return &lineWriter{name: name, stream: stream}
}

type lineWriter struct {
	name   string
	stream string
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := w.buf.Next(i + 1)
		w.emit(bytes.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.Bytes())
		w.buf.Reset()
	}
	return nil
}

func (w *lineWriter) emit(line []byte) {
	if !logReady || len(line) == 0 {
		return
	}
	diagLog.Info().Str("proc", w.name).Str("stream", w.stream).Msg(string(line))
}
