package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"kiosk/audio"
	"kiosk/config"
	"kiosk/encoder"
	"kiosk/log"
	"kiosk/shutdown"
	"kiosk/speech"
)

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	c := commonFlags(fs)
	wavFile := fs.String("wav", "", "analyse a WAV file (paced in real time) instead of the microphone")
	deviceFlag := fs.String("device", "", "use named microphone device")
	setupFlag := fs.Bool("setup", false, "select microphone device interactively")
	durationFlag := fs.Duration("duration", -1, "capture length, 0 records until quit (default from config)")
	tuiFlag := fs.Bool("tui", term.IsTerminal(int(os.Stdout.Fd())), "show the live waveform view")
	saveFlag := fs.String("save", "", "write the final window to a FLAC file")
	copyFlag := fs.Bool("copy", false, "copy the final statistics to the clipboard")
	fs.Parse(args)

	var console io.Writer = os.Stderr
	if *tuiFlag {
		console = nil
	}
	cfg, err := c.setup(console)
	if err != nil {
		return fail(err)
	}
	defer log.Close()

	a := cfg.Analysis
	if *durationFlag >= 0 {
		a.Duration = *durationFlag
	}
	if *deviceFlag != "" {
		a.Device = *deviceFlag
	}

	var actx audio.Context
	var device *audio.DeviceInfo
	if *wavFile != "" {
		fake, err := audio.NewFakeContext(*wavFile, true)
		if err != nil {
			return fail(err)
		}
		a.SampleRate = fake.SampleRate()
		actx = fake
	} else {
		actx, err = audio.NewContext()
		if err != nil {
			return fail(fmt.Errorf("audio: %w", err))
		}
		if *setupFlag {
			device, err = audio.SelectDevice(actx)
		} else {
			device, err = audio.FindDevice(actx, a.Device)
		}
		if errors.Is(err, audio.ErrSelectCancelled) {
			actx.Close()
			return 0
		}
		if err != nil {
			actx.Close()
			return fail(err)
		}
	}
	defer actx.Close()

	st, err := analyze(context.Background(), actx, device, a, *tuiFlag)
	if err != nil {
		return fail(err)
	}
	if st == nil {
		fmt.Println("No audio captured.")
		return 0
	}

	summary := formatFinal(st.Stats)
	fmt.Print(summary)
	log.AnalysisStats(log.AnalysisData{
		ElapsedS:  st.Elapsed,
		SpeakingS: st.SpeakingTime,
		SilenceS:  st.SilenceTime,
		Words:     st.TotalWords,
		Phrases:   len(st.Phrases),
		Rate:      st.SpeechRate,
		Dropouts:  st.dropouts,
	})

	if *saveFlag != "" {
		if err := encoder.SaveFloats(*saveFlag, st.Amps, a.SampleRate); err != nil {
			return fail(fmt.Errorf("save: %w", err))
		}
		fmt.Printf("Saved %s\n", *saveFlag)
	}
	if *copyFlag {
		if err := clipboard.WriteAll(summary); err != nil {
			log.Warnf("clipboard: %v", err)
		} else {
			fmt.Println("Copied to clipboard.")
		}
	}
	return 0
}

type finalTick struct {
	*speech.Tick
	dropouts int
}

// analyze captures until the duration is reached, the view quits or the
// process is interrupted, and returns the last analysis of the window.
func analyze(parent context.Context, actx audio.Context, device *audio.DeviceInfo, a config.Analysis, tui bool) (*finalTick, error) {
	rate := a.SampleRate
	scfg := speech.Config{
		SampleRate:     rate,
		Threshold:      a.Threshold,
		MinBreak:       a.MinBreak,
		SecondsPerWord: a.SecondsPerWord,
		MinSamples:     int(a.Chunk.Seconds() * float64(rate)),
	}
	win := speech.NewWindow(int(a.WindowDuration().Seconds() * float64(rate)))
	analyzer, err := speech.NewAnalyzer(win, scfg)
	if err != nil {
		return nil, err
	}
	sampler := speech.NewSampler(win, rate, a.Duration)

	capture, err := actx.NewCapture(device, audio.CaptureConfig{SampleRate: uint32(rate), Channels: 1})
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer capture.Close()

	ctx, stop := shutdown.Context(parent)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var block []float64
	capture.SetCallback(func(data []byte, _ uint32) {
		block = audio.PCM16ToFloat(data, block)
		if err := sampler.Feed(block); errors.Is(err, speech.ErrStopRequested) {
			cancel()
		}
	})
	if err := capture.Start(); err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}
	log.Infof("capturing from %s at %d Hz", capture.DeviceName(), rate)

	g, gctx := errgroup.WithContext(ctx)
	if tui {
		g.Go(func() error { return runTUI(gctx, analyzer, a.Tick) })
	} else {
		g.Go(func() error { return tickLoop(gctx, analyzer, a.Tick) })
		g.Go(func() error { return reportLoop(gctx, os.Stdout, analyzer, a.Report) })
	}
	err = g.Wait()
	capture.Stop()
	capture.ClearCallback()
	if err != nil {
		return nil, err
	}

	if dropouts := sampler.Dropouts(); dropouts > 0 {
		log.Warnf("%d audio dropouts in %d blocks", dropouts, sampler.Blocks())
	}
	t, _ := analyzer.Tick()
	if t == nil {
		return nil, nil
	}
	return &finalTick{Tick: t, dropouts: sampler.Dropouts()}, nil
}

func tickLoop(ctx context.Context, a *speech.Analyzer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.Tick()
		}
	}
}

// reportLoop prints the latest published result. It never touches the
// window itself.
func reportLoop(ctx context.Context, w io.Writer, a *speech.Analyzer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if t := a.Latest(); t != nil {
				fmt.Fprintln(w, formatReport(t.Stats))
			}
		}
	}
}

func formatReport(st speech.Stats) string {
	return fmt.Sprintf("Duration: %.1fs | Speaking: %.1fs | Words: %d | Rate: %.2f words/sec",
		st.Elapsed, st.SpeakingTime, st.TotalWords, st.SpeechRate)
}

func formatFinal(st speech.Stats) string {
	var b strings.Builder
	b.WriteString("\nFinal statistics\n")
	fmt.Fprintf(&b, "  Duration:      %.1fs\n", st.Elapsed)
	fmt.Fprintf(&b, "  Speaking time: %.1fs\n", st.SpeakingTime)
	fmt.Fprintf(&b, "  Silence time:  %.1fs\n", st.SilenceTime)
	fmt.Fprintf(&b, "  Phrases:       %d\n", len(st.Phrases))
	fmt.Fprintf(&b, "  Words:         %d\n", st.TotalWords)
	fmt.Fprintf(&b, "  Speech rate:   %.2f words/sec\n", st.SpeechRate)
	return b.String()
}
