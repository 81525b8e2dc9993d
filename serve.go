package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"kiosk/classify"
	"kiosk/log"
	"kiosk/observe"
	"kiosk/shutdown"
)

const shutdownGrace = 5 * time.Second

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	c := commonFlags(fs)
	addr := fs.String("addr", "", "listen address, overrides server.addr and PORT")
	fs.Parse(args)

	cfg, err := c.setup(os.Stderr)
	if err != nil {
		return fail(err)
	}
	defer log.Close()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	p, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fail(fmt.Errorf("metrics: %w", err))
	}
	defer p.Shutdown(context.Background())

	svc := &classify.Service{
		Extractor: classify.SmileExtractor{
			Command: cfg.Server.SmileCmd,
			Config:  cfg.Server.SmileConfig,
			FFmpeg:  cfg.Server.FFmpegCmd,
		},
		Metrics:     p.Metrics,
		UploadLimit: cfg.Server.UploadLimit,
	}
	svc.Load(cfg.Server.ModelPath, cfg.Server.ScalerPath)

	srv := newServer(cfg.Server.Addr, svc.Handler(p.Handler()))
	errCh := listen(srv)
	log.Infof("classification server on %s (model loaded: %v)", cfg.Server.Addr, svc.Loaded())

	select {
	case err := <-errCh:
		return fail(fmt.Errorf("serve: %w", err))
	case <-ctx.Done():
	}
	log.Info("shutting down")
	closeServer(srv)
	if err := <-errCh; err != nil {
		return fail(err)
	}
	return 0
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// listen serves srv in the background. The channel yields nil after a
// graceful shutdown and the listen error otherwise.
func listen(srv *http.Server) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	return errCh
}

func closeServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("server shutdown: %v", err)
	}
}
