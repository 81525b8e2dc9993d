package presence

import (
	"context"
	"errors"
	"io"
	"testing"

	"kiosk/supervise"
)

// sliceSource replays observations, then returns end.
type sliceSource struct {
	frames []Frame
	end    error
}

func (s *sliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if len(s.frames) == 0 {
		return Frame{}, s.end
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

func framesOf(pattern ...bool) []Frame {
	out := make([]Frame, len(pattern))
	for i, p := range pattern {
		out[i].Index = i
		if p {
			out[i].Detections = []Detection{{Label: "person", Confidence: 0.9}}
		}
	}
	return out
}

type fakeLauncher struct {
	starts   int
	stops    int
	startErr []error
	running  bool
}

func (l *fakeLauncher) StartAll(ctx context.Context, specs []supervise.ProcessSpec) error {
	l.starts++
	if len(l.startErr) > 0 {
		err := l.startErr[0]
		l.startErr = l.startErr[1:]
		if err != nil {
			return err
		}
	}
	l.running = true
	return nil
}

func (l *fakeLauncher) StopAll() {
	l.stops++
	l.running = false
}

type countingChimes struct{ arrive, depart, errs int }

func (c *countingChimes) Arrive() { c.arrive++ }
func (c *countingChimes) Depart() { c.depart++ }
func (c *countingChimes) Error()  { c.errs++ }

func newController(src Source, l Launcher, ch Chimes) *Controller {
	return &Controller{
		Source:    src,
		Debouncer: NewDebouncer(5, 15),
		Detector:  Detector{Label: "person", MinConfidence: 0.5},
		Launcher:  l,
		Chimes:    ch,
	}
}

func TestControllerFullCycle(t *testing.T) {
	pattern := append(repeat(true, 8), repeat(false, 15)...)
	pattern = append(pattern, repeat(true, 10)...) // never read
	src := &sliceSource{frames: framesOf(pattern...), end: io.EOF}
	l := &fakeLauncher{}
	ch := &countingChimes{}

	if err := newController(src, l, ch).Run(context.Background()); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if l.starts != 1 || l.stops != 1 {
		t.Errorf("starts/stops = %d/%d, want 1/1", l.starts, l.stops)
	}
	if ch.arrive != 1 || ch.depart != 1 || ch.errs != 0 {
		t.Errorf("chimes = %+v", ch)
	}
	if len(src.frames) != 10 {
		t.Errorf("controller kept reading after exit: %d frames left", len(src.frames))
	}
}

func TestControllerAcquisitionFailure(t *testing.T) {
	boom := errors.New("camera unplugged")
	src := &sliceSource{frames: framesOf(repeat(true, 6)...), end: boom}
	l := &fakeLauncher{}
	ch := &countingChimes{}

	err := newController(src, l, ch).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want wrapped %v", err, boom)
	}
	if l.stops != 1 || l.running {
		t.Errorf("pipeline not torn down: stops=%d running=%v", l.stops, l.running)
	}
	if ch.errs != 1 {
		t.Errorf("error chime played %d times", ch.errs)
	}
}

func TestControllerSpawnFailureRetries(t *testing.T) {
	src := &sliceSource{frames: framesOf(repeat(true, 7)...), end: io.EOF}
	l := &fakeLauncher{startErr: []error{errors.New("pnpm: not found"), nil}}

	if err := newController(src, l, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if l.starts != 2 {
		t.Fatalf("starts = %d, want a retry on the frame after the failure", l.starts)
	}
	if l.stops != 1 {
		t.Errorf("stops = %d, want 1", l.stops)
	}
}

func TestControllerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := &fakeLauncher{}
	if err := newController(&sliceSource{end: io.EOF}, l, nil).Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil on cancellation", err)
	}
	if l.stops != 1 {
		t.Errorf("stops = %d, want 1", l.stops)
	}
}

func TestControllerMalformedFramesCountAsAbsent(t *testing.T) {
	frames := framesOf(repeat(true, 5)...)
	for i := 0; i < 15; i++ {
		frames = append(frames, Frame{Index: -1})
	}
	l := &fakeLauncher{}
	ch := &countingChimes{}
	src := &sliceSource{frames: frames, end: errors.New("should not be reached")}
	if err := newController(src, l, ch).Run(context.Background()); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if ch.depart != 1 {
		t.Errorf("depart chimes = %d, want 1", ch.depart)
	}
}
