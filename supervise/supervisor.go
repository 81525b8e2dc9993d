// Package supervise starts a fixed sequence of external processes and side
// effects, and tears them down with a terminate, wait, kill protocol.
package supervise

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kiosk/log"
	"kiosk/observe"
)

// ErrRunning is returned by StartAll while a previous start is still live.
var ErrRunning = errors.New("supervise: processes already running")

const DefaultTerminateTimeout = 3 * time.Second

type Supervisor struct {
	timeout time.Duration
	metrics *observe.Metrics

	// swapped in tests
	start func(ProcessSpec) (*Process, error)
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	procs   []*Process
	hooks   []func()
	started bool
}

// New returns a supervisor. metrics may be nil.
func New(terminateTimeout time.Duration, metrics *observe.Metrics) *Supervisor {
	if terminateTimeout <= 0 {
		terminateTimeout = DefaultTerminateTimeout
	}
	return &Supervisor{
		timeout: terminateTimeout,
		metrics: metrics,
		start:   Start,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnTeardown registers fn to run after every StopAll that had something to
// stop. Hooks are best-effort and run in registration order.
func (s *Supervisor) OnTeardown(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// StartAll runs specs in order. Action failures are logged and skipped. A
// spawn failure stops everything already started and is returned.
// Cancellation during a warm-up also tears down and returns ctx.Err().
func (s *Supervisor) StartAll(ctx context.Context, specs []ProcessSpec) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrRunning
	}
	s.started = true
	s.mu.Unlock()

	for _, spec := range specs {
		if spec.Action != nil {
			if err := spec.Action(ctx); err != nil {
				log.Warnf("%s: %v", spec.Name, err)
			}
			continue
		}

		p, err := s.start(spec)
		if err != nil {
			s.metrics.RecordSpawnFailure(ctx, spec.Name)
			log.Errorf("pipeline aborted: %v", err)
			s.StopAll()
			return err
		}
		s.metrics.RecordProcessStart(ctx, spec.Name)
		s.mu.Lock()
		s.procs = append(s.procs, p)
		s.mu.Unlock()

		if spec.WarmUp > 0 {
			log.Debugf("%s: warming up for %s", spec.Name, spec.WarmUp)
			if err := s.sleep(ctx, spec.WarmUp); err != nil {
				s.StopAll()
				return fmt.Errorf("%s warm-up: %w", spec.Name, err)
			}
		}
	}
	return nil
}

// Running returns the live handles in start order.
func (s *Supervisor) Running() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Process, len(s.procs))
	copy(out, s.procs)
	return out
}

// StopAll stops every handle in start order and clears them. With no handles
// it does nothing at all. Safe to call repeatedly.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	procs := s.procs
	hooks := s.hooks
	s.procs = nil
	s.started = false
	s.mu.Unlock()

	if len(procs) == 0 {
		return
	}
	for _, p := range procs {
		s.stopOne(p)
	}
	for _, fn := range hooks {
		runHook(fn)
	}
}

func (s *Supervisor) stopOne(p *Process) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s: stop panicked: %v", p.Name, r)
		}
	}()
	how := p.Stop(s.timeout)
	s.metrics.RecordProcessStop(context.Background(), p.Name, how)
}

func runHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("teardown hook panicked: %v", r)
		}
	}()
	fn()
}
