package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"kiosk/beep"
	"kiosk/config"
	"kiosk/log"
	"kiosk/observe"
	"kiosk/presence"
	"kiosk/shutdown"
	"kiosk/supervise"
)

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	c := commonFlags(fs)
	replay := fs.String("replay", "", "read frames from a JSONL recording instead of the detector")
	metricsAddr := fs.String("metrics", "", "serve /metrics on this address (e.g. :9464)")
	quiet := fs.Bool("quiet", false, "disable chimes")
	fs.Parse(args)

	ctx, quit, stop := shutdown.WithQuit(context.Background())
	defer stop()

	console := io.Writer(os.Stderr)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		if restore, err := watchQuitKey(quit); err == nil {
			defer restore()
			console = crlfWriter{os.Stderr}
		}
	}

	cfg, err := c.setup(console)
	if err != nil {
		return fail(err)
	}
	defer log.Close()
	if *replay != "" {
		cfg.Detector.Replay = *replay
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	var metrics *observe.Metrics
	if cfg.MetricsAddr != "" {
		p, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			return fail(fmt.Errorf("metrics: %w", err))
		}
		defer p.Shutdown(context.Background())
		srv := newServer(cfg.MetricsAddr, observe.Middleware(p.Metrics)(p.Handler()))
		errCh := listen(srv)
		defer func() {
			closeServer(srv)
			<-errCh
		}()
		log.Infof("metrics on http://%s/metrics", cfg.MetricsAddr)
		metrics = p.Metrics
	}

	if *quiet || !cfg.Presence.Chimes {
		beep.Disable()
	} else {
		beep.Init()
	}

	sup := supervise.New(cfg.Pipeline.TerminateTimeout, metrics)
	if cfg.Pipeline.CloseBrowser {
		for _, s := range cfg.Pipeline.Steps {
			if s.OpenURL == "" {
				continue
			}
			url := s.OpenURL
			sup.OnTeardown(func() {
				if err := supervise.CloseBrowserTabs(url); err != nil {
					log.Warnf("close browser tabs: %v", err)
				}
			})
		}
	}

	src, err := openSource(cfg.Detector, cfg.Pipeline.TerminateTimeout)
	if err != nil {
		return fail(err)
	}
	defer src.Close()

	ctl := &presence.Controller{
		Source:    src,
		Debouncer: presence.NewDebouncer(cfg.Presence.EnterFrames, cfg.Presence.ExitFrames),
		Detector:  presence.Detector{Label: cfg.Presence.Label, MinConfidence: cfg.Presence.MinConfidence},
		Launcher:  sup,
		Pipeline:  pipelineSpecs(cfg.Pipeline.Steps),
		Chimes:    beep.Chimes{},
		Metrics:   metrics,
	}
	log.Infof("watching for %q (enter %d, exit %d frames); press q to quit",
		cfg.Presence.Label, cfg.Presence.EnterFrames, cfg.Presence.ExitFrames)
	if err := ctl.Run(ctx); err != nil {
		return fail(err)
	}
	log.Info("watch finished")
	return 0
}

func openSource(cfg config.Detector, terminate time.Duration) (presence.Source, error) {
	if cfg.Replay != "" {
		return presence.OpenReplay(cfg.Replay, cfg.FrameInterval)
	}
	return presence.StartCommand(supervise.ProcessSpec{
		Name:    "detector",
		Command: cfg.Command,
		Args:    cfg.Args,
		Dir:     cfg.Dir,
	}, terminate)
}

func pipelineSpecs(steps []config.Step) []supervise.ProcessSpec {
	specs := make([]supervise.ProcessSpec, 0, len(steps))
	for _, s := range steps {
		spec := supervise.ProcessSpec{
			Name:    s.Name,
			Command: s.Command,
			Args:    s.Args,
			Dir:     s.Dir,
			Env:     s.Env,
			WarmUp:  s.WarmUp,
		}
		if s.OpenURL != "" {
			spec.Command = ""
			spec.Action = supervise.OpenURL(s.OpenURL)
		}
		specs = append(specs, spec)
	}
	return specs
}
