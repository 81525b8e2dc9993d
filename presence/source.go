package presence

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"kiosk/log"
	"kiosk/supervise"
)

// Source yields frames in order. Next returns io.EOF when a finite source is
// exhausted; any other error is an acquisition failure.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// ErrDetectorExited is returned by CommandSource.Next once the sidecar's
// output ends.
var ErrDetectorExited = errors.New("detector exited")

const maxLine = 1 << 20

// scanFrames reads JSONL frames from r until it ends. Malformed lines yield
// an empty frame so they count as absent.
func scanFrames(r io.Reader, emit func(Frame) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		f, err := ParseFrame(b)
		if err != nil {
			log.Warnf("line %d: %v", line, err)
			f = Frame{Index: -1}
		}
		if !emit(f) {
			return nil
		}
	}
	return sc.Err()
}

type result struct {
	frame Frame
	err   error
}

// CommandSource runs the detector sidecar and reads frames from its stdout.
type CommandSource struct {
	proc    *supervise.Process
	pr      *io.PipeReader
	frames  chan result
	stop    chan struct{}
	timeout time.Duration
	once    sync.Once
}

// StartCommand spawns spec and starts reading its stdout. spec.Stdout is
// replaced. terminate bounds the graceful stop in Close.
func StartCommand(spec supervise.ProcessSpec, terminate time.Duration) (*CommandSource, error) {
	pr, pw := io.Pipe()
	spec.Stdout = pw
	proc, err := supervise.Start(spec)
	if err != nil {
		pw.Close()
		return nil, err
	}

	s := &CommandSource{
		proc:    proc,
		pr:      pr,
		frames:  make(chan result),
		stop:    make(chan struct{}),
		timeout: terminate,
	}
	go func() {
		<-proc.Done()
		pw.Close()
	}()
	go s.read()
	return s, nil
}

func (s *CommandSource) read() {
	send := func(r result) bool {
		select {
		case s.frames <- r:
			return true
		case <-s.stop:
			return false
		}
	}
	err := scanFrames(s.pr, func(f Frame) bool { return send(result{frame: f}) })
	if err == nil {
		<-s.proc.Done()
		err = ErrDetectorExited
		if exitErr := s.proc.Err(); exitErr != nil {
			err = fmt.Errorf("%w: %v", ErrDetectorExited, exitErr)
		}
	}
	send(result{err: err})
}

func (s *CommandSource) Next(ctx context.Context) (Frame, error) {
	select {
	case <-s.stop:
		return Frame{}, ErrDetectorExited
	default:
	}
	select {
	case r := <-s.frames:
		return r.frame, r.err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-s.stop:
		return Frame{}, ErrDetectorExited
	}
}

// Close stops the sidecar with the supervisor's terminate, wait, kill
// protocol. Safe to call more than once.
func (s *CommandSource) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.pr.Close()
		s.proc.Stop(s.timeout)
	})
	return nil
}

// ReplaySource reads frames from a JSONL recording, optionally paced at a
// fixed interval.
type ReplaySource struct {
	f        *os.File
	interval time.Duration
	frames   chan Frame
	done     chan struct{}
	err      error
	last     time.Time
	once     sync.Once
}

func OpenReplay(path string, interval time.Duration) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	s := &ReplaySource{
		f:        f,
		interval: interval,
		frames:   make(chan Frame),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(s.frames)
		s.err = scanFrames(f, func(fr Frame) bool {
			select {
			case s.frames <- fr:
				return true
			case <-s.done:
				return false
			}
		})
	}()
	return s, nil
}

func (s *ReplaySource) Next(ctx context.Context) (Frame, error) {
	if s.interval > 0 && !s.last.IsZero() {
		if wait := s.interval - time.Since(s.last); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return Frame{}, ctx.Err()
			}
		}
	}
	select {
	case f, ok := <-s.frames:
		if !ok {
			if s.err != nil {
				return Frame{}, fmt.Errorf("read replay: %w", s.err)
			}
			return Frame{}, io.EOF
		}
		s.last = time.Now()
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (s *ReplaySource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.f.Close()
	})
	return err
}
