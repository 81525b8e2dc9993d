// Package config holds every tunable of the kiosk pipeline and loads
// overrides from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no -config flag is given. A missing default file
// is not an error.
const DefaultPath = "kiosk.yaml"

type Config struct {
	LogPath     string `yaml:"log_path"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	Presence Presence `yaml:"presence"`
	Detector Detector `yaml:"detector"`
	Pipeline Pipeline `yaml:"pipeline"`
	Analysis Analysis `yaml:"analysis"`
	Server   Server   `yaml:"server"`
}

type Presence struct {
	EnterFrames   int     `yaml:"enter_frames"`
	ExitFrames    int     `yaml:"exit_frames"`
	Label         string  `yaml:"label"`
	MinConfidence float64 `yaml:"min_confidence"`
	Chimes        bool    `yaml:"chimes"`
}

// Detector is the sidecar that emits one JSON line per frame. When Replay is
// set, frames are read from that JSONL file instead.
type Detector struct {
	Command       string        `yaml:"command"`
	Args          []string      `yaml:"args"`
	Dir           string        `yaml:"dir"`
	Replay        string        `yaml:"replay"`
	FrameInterval time.Duration `yaml:"frame_interval"`
}

type Pipeline struct {
	TerminateTimeout time.Duration `yaml:"terminate_timeout"`
	Steps            []Step        `yaml:"steps"`
	// CloseBrowser closes the opened tab on teardown where the platform
	// allows it.
	CloseBrowser bool `yaml:"close_browser"`
}

// Step is one pipeline entry: either a process (Command) or a side effect
// (OpenURL).
type Step struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Dir     string            `yaml:"dir"`
	Env     map[string]string `yaml:"env"`
	WarmUp  time.Duration     `yaml:"warmup"`
	OpenURL string            `yaml:"open_url"`
}

type Analysis struct {
	SampleRate     int           `yaml:"sample_rate"`
	Duration       time.Duration `yaml:"duration"`
	Threshold      float64       `yaml:"threshold"`
	MinBreak       time.Duration `yaml:"min_break"`
	SecondsPerWord float64       `yaml:"seconds_per_word"`
	Tick           time.Duration `yaml:"tick"`
	Report         time.Duration `yaml:"report"`
	Chunk          time.Duration `yaml:"chunk"`
	Device         string        `yaml:"device"`
}

type Server struct {
	Addr        string `yaml:"addr"`
	ModelPath   string `yaml:"model_path"`
	ScalerPath  string `yaml:"scaler_path"`
	SmileCmd    string `yaml:"smile_cmd"`
	SmileConfig string `yaml:"smile_config"`
	FFmpegCmd   string `yaml:"ffmpeg_cmd"` // converts non-WAV uploads
	UploadLimit int64  `yaml:"upload_limit"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Presence: Presence{
			EnterFrames:   5,
			ExitFrames:    15,
			Label:         "person",
			MinConfidence: 0.5,
			Chimes:        true,
		},
		Detector: Detector{
			Command: "python3",
			Args:    []string{"detect.py", "--jsonl"},
		},
		Pipeline: Pipeline{
			TerminateTimeout: 3 * time.Second,
			Steps: []Step{
				{Name: "dev-server", Command: "pnpm", Args: []string{"start"}, WarmUp: 3 * time.Second},
				{Name: "browser", OpenURL: "http://localhost:3000"},
				{Name: "audio-analysis", Command: "self", Args: []string{"analyze"}},
			},
			CloseBrowser: true,
		},
		Analysis: Analysis{
			SampleRate:     44100,
			Duration:       10 * time.Second,
			Threshold:      0.01,
			MinBreak:       700 * time.Millisecond,
			SecondsPerWord: 0.5,
			Tick:           50 * time.Millisecond,
			Report:         2 * time.Second,
			Chunk:          100 * time.Millisecond,
		},
		Server: Server{
			Addr:        ":5001",
			ModelPath:   "model.json",
			ScalerPath:  "scaler.json",
			SmileCmd:    "SMILExtract",
			SmileConfig: "config/egemaps/v02/eGeMAPSv02.conf",
			FFmpegCmd:   "ffmpeg",
			UploadLimit: 32 << 20,
		},
	}
}

// Load overlays the YAML file at path onto the defaults, applies environment
// overrides and validates. An empty path means [DefaultPath], and only then
// is a missing file tolerated.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	cfg := Default()
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes r over the defaults without touching the
// environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv applies MODEL_PATH, SCALER_PATH and PORT.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("MODEL_PATH"); v != "" {
		cfg.Server.ModelPath = v
	}
	if v := os.Getenv("SCALER_PATH"); v != "" {
		cfg.Server.ScalerPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("config: PORT %q is not a valid port", v)
		}
		cfg.Server.Addr = ":" + v
	}
	return nil
}

// Validate returns a joined error listing every invalid value.
func (c *Config) Validate() error {
	var errs []error

	switch c.LogLevel {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: trace, debug, info, warn, error", c.LogLevel))
	}

	p := c.Presence
	if p.EnterFrames < 1 {
		errs = append(errs, fmt.Errorf("presence.enter_frames must be at least 1, got %d", p.EnterFrames))
	}
	if p.ExitFrames < 1 {
		errs = append(errs, fmt.Errorf("presence.exit_frames must be at least 1, got %d", p.ExitFrames))
	}
	if p.Label == "" {
		errs = append(errs, errors.New("presence.label is required"))
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("presence.min_confidence %.2f is out of range [0, 1]", p.MinConfidence))
	}

	if c.Detector.Command == "" && c.Detector.Replay == "" {
		errs = append(errs, errors.New("detector.command or detector.replay is required"))
	}
	if c.Detector.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("detector.frame_interval must not be negative, got %s", c.Detector.FrameInterval))
	}

	if c.Pipeline.TerminateTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.terminate_timeout must be positive, got %s", c.Pipeline.TerminateTimeout))
	}
	seen := make(map[string]int, len(c.Pipeline.Steps))
	for i, s := range c.Pipeline.Steps {
		prefix := fmt.Sprintf("pipeline.steps[%d]", i)
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[s.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of pipeline.steps[%d]", prefix, s.Name, prev))
			}
			seen[s.Name] = i
		}
		if (s.Command == "") == (s.OpenURL == "") {
			errs = append(errs, fmt.Errorf("%s needs exactly one of command or open_url", prefix))
		}
		if s.WarmUp < 0 {
			errs = append(errs, fmt.Errorf("%s.warmup must not be negative, got %s", prefix, s.WarmUp))
		}
	}

	a := c.Analysis
	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("analysis.sample_rate must be positive, got %d", a.SampleRate))
	}
	if a.Duration < 0 {
		errs = append(errs, fmt.Errorf("analysis.duration must not be negative, got %s", a.Duration))
	}
	if a.Threshold < 0 {
		errs = append(errs, fmt.Errorf("analysis.threshold must not be negative, got %g", a.Threshold))
	}
	if a.MinBreak < 0 {
		errs = append(errs, fmt.Errorf("analysis.min_break must not be negative, got %s", a.MinBreak))
	}
	if a.SecondsPerWord <= 0 {
		errs = append(errs, fmt.Errorf("analysis.seconds_per_word must be positive, got %g", a.SecondsPerWord))
	}
	if a.Tick <= 0 {
		errs = append(errs, fmt.Errorf("analysis.tick must be positive, got %s", a.Tick))
	}
	if a.Report <= 0 {
		errs = append(errs, fmt.Errorf("analysis.report must be positive, got %s", a.Report))
	}
	if a.Chunk < 0 {
		errs = append(errs, fmt.Errorf("analysis.chunk must not be negative, got %s", a.Chunk))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.UploadLimit <= 0 {
		errs = append(errs, fmt.Errorf("server.upload_limit must be positive, got %d", c.Server.UploadLimit))
	}

	return errors.Join(errs...)
}

// WindowDuration is how much audio the analysis window holds: the capture
// duration, or ten seconds when recording continuously.
func (a Analysis) WindowDuration() time.Duration {
	if a.Duration > 0 {
		return a.Duration
	}
	return 10 * time.Second
}
