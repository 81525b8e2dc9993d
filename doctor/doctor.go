// Package doctor checks that the machine can run the kiosk pipeline:
// external commands, model files, the clipboard and the microphone.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kiosk/audio"
	"kiosk/classify"
	"kiosk/config"
	"kiosk/shutdown"
	"kiosk/speech"
	"kiosk/supervise"
)

type status int

const (
	pass status = iota
	warn
	fail
)

func (s status) String() string {
	switch s {
	case pass:
		return "PASS"
	case warn:
		return "WARN"
	default:
		return "FAIL"
	}
}

type result struct {
	status status
	detail string
}

type check struct {
	name string
	run  func(ctx context.Context) result
}

// Run executes every check and returns an exit code (0 = nothing failed).
// With interactive set it also records from the microphone.
func Run(cfg *config.Config, interactive bool) int {
	resetTerminal()
	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			os.Exit(1)
		case <-done:
		}
	}()

	fmt.Println("kiosk doctor - system diagnostics")
	fmt.Println("=================================")

	checks := staticChecks(cfg)
	results := runChecks(ctx, checks)
	failed := report(os.Stdout, checks, results)

	if interactive {
		fmt.Println()
		fmt.Println("Microphone")
		r := checkMicrophone(cfg.Analysis)
		fmt.Printf("  %s: %s\n", r.status, r.detail)
		if r.status == fail {
			failed = true
		}
	}

	fmt.Println()
	if failed {
		fmt.Println("Some checks failed. See details above.")
		return 1
	}
	fmt.Println("All checks passed!")
	return 0
}

func staticChecks(cfg *config.Config) []check {
	var checks []check
	if cfg.Detector.Replay != "" {
		checks = append(checks, fileCheck("detector replay", cfg.Detector.Replay, fail))
	} else {
		checks = append(checks, commandCheck("detector", cfg.Detector.Command, fail))
	}
	for _, s := range cfg.Pipeline.Steps {
		if s.Command == "" || s.Command == supervise.SelfCommand {
			continue
		}
		checks = append(checks, commandCheck(s.Name, s.Command, fail))
	}
	checks = append(checks,
		commandCheck("browser opener", browserOpener(), warn),
		commandCheck("openSMILE", cfg.Server.SmileCmd, warn),
		commandCheck("ffmpeg", cfg.Server.FFmpegCmd, warn),
		check{name: "model", run: func(context.Context) result {
			if _, err := classify.LoadModel(cfg.Server.ModelPath); err != nil {
				return result{warn, err.Error()}
			}
			return result{pass, cfg.Server.ModelPath}
		}},
		check{name: "scaler", run: func(context.Context) result {
			if _, err := classify.LoadScaler(cfg.Server.ScalerPath); err != nil {
				return result{warn, err.Error()}
			}
			return result{pass, cfg.Server.ScalerPath}
		}},
		check{name: "clipboard", run: func(context.Context) result { return checkClipboard() }},
	)
	return checks
}

func browserOpener() string {
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "windows":
		return "rundll32"
	default:
		return "xdg-open"
	}
}

func commandCheck(name, command string, missing status) check {
	return check{name: name, run: func(context.Context) result {
		if command == "" {
			return result{missing, "no command configured"}
		}
		path, err := exec.LookPath(command)
		if err != nil {
			return result{missing, fmt.Sprintf("%s not found in PATH", command)}
		}
		return result{pass, path}
	}}
}

func fileCheck(name, path string, missing status) check {
	return check{name: name, run: func(context.Context) result {
		if _, err := os.Stat(path); err != nil {
			return result{missing, err.Error()}
		}
		return result{pass, path}
	}}
}

// runChecks runs checks concurrently; results keep the checks' order.
func runChecks(ctx context.Context, checks []check) []result {
	results := make([]result, len(checks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range checks {
		g.Go(func() error {
			results[i] = c.run(ctx)
			return nil
		})
	}
	g.Wait()
	return results
}

func report(w io.Writer, checks []check, results []result) (failed bool) {
	for i, c := range checks {
		r := results[i]
		fmt.Fprintf(w, "  %s  %-16s %s\n", r.status, c.name, r.detail)
		if r.status == fail {
			failed = true
		}
	}
	return failed
}

func checkMicrophone(cfg config.Analysis) result {
	ctx, err := audio.NewContext()
	if err != nil {
		return result{fail, fmt.Sprintf("cannot connect to audio: %v", err)}
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		return result{fail, fmt.Sprintf("cannot list devices: %v", err)}
	}
	if len(devices) == 0 {
		return result{fail, "no capture devices found"}
	}
	device, err := audio.FindDevice(ctx, cfg.Device)
	if err != nil {
		return result{fail, err.Error()}
	}

	fmt.Print("  Press Enter and speak for 3 seconds...")
	bufio.NewReader(os.Stdin).ReadString('\n')

	stop := make(chan struct{})
	time.AfterFunc(3*time.Second, func() { close(stop) })
	amps, err := recordAudio(ctx, device, cfg.SampleRate, stop)
	if err != nil {
		return result{fail, fmt.Sprintf("recording error: %v", err)}
	}
	if len(amps) == 0 {
		return result{fail, "no audio captured"}
	}

	var peak float64
	for _, a := range amps {
		peak = max(peak, math.Abs(a))
	}
	segs := speech.Segments(amps, cfg.Threshold)
	var voiced int
	for _, s := range segs {
		voiced += s.Len()
	}
	detail := fmt.Sprintf("%d samples, peak %.3f, %.0f%% above threshold %.3f",
		len(amps), peak, 100*float64(voiced)/float64(len(amps)), cfg.Threshold)
	if voiced == 0 {
		return result{fail, detail + "; nothing crossed the speech threshold"}
	}
	return result{pass, detail}
}

func recordAudio(ctx audio.Context, device *audio.DeviceInfo, sampleRate int, stop <-chan struct{}) ([]float64, error) {
	var amps []float64
	var mu sync.Mutex
	var stopped bool
	done := make(chan struct{})

	captureDevice, err := ctx.NewCapture(device, audio.CaptureConfig{
		SampleRate: uint32(sampleRate),
		Channels:   1,
	})
	if err != nil {
		return nil, err
	}

	captureDevice.SetCallback(func(data []byte, frameCount uint32) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		amps = append(amps, audio.PCM16ToFloat(data, nil)...)
	})

	if err := captureDevice.Start(); err != nil {
		captureDevice.Close()
		return nil, err
	}

	fmt.Print("  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	<-stop
	close(done)

	captureDevice.Stop()
	fmt.Println(" done")
	captureDevice.Close()

	mu.Lock()
	stopped = true
	out := amps
	mu.Unlock()
	return out, nil
}
