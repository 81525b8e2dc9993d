// Package presence turns detector frames into a debounced arrive/leave
// signal and drives the pipeline supervisor from it.
package presence

import (
	"context"
	"errors"
	"fmt"
	"io"

	"kiosk/log"
	"kiosk/observe"
	"kiosk/supervise"
)

// Launcher is the part of [supervise.Supervisor] the controller needs.
type Launcher interface {
	StartAll(ctx context.Context, specs []supervise.ProcessSpec) error
	StopAll()
}

// Chimes are played on transitions. Implementations must not block for long.
type Chimes interface {
	Arrive()
	Depart()
	Error()
}

type Controller struct {
	Source    Source
	Debouncer *Debouncer
	Detector  Detector
	Launcher  Launcher
	Pipeline  []supervise.ProcessSpec
	Chimes    Chimes           // optional
	Metrics   *observe.Metrics // optional
}

// Run reads frames until the person leaves, the source fails, or ctx is
// cancelled. Every exit path stops the pipeline exactly once. Only a source
// failure is returned as an error.
func (c *Controller) Run(ctx context.Context) error {
	defer c.Launcher.StopAll()

	for {
		f, err := c.Source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("watch interrupted, stopping pipeline")
				return nil
			}
			if errors.Is(err, io.EOF) {
				log.Info("frame source exhausted")
				return nil
			}
			c.chime(Chimes.Error)
			return fmt.Errorf("frame acquisition: %w", err)
		}

		present := c.Detector.Present(f)
		c.Metrics.RecordFrame(ctx, present)

		switch ev := c.Debouncer.Observe(present); ev {
		case Enter:
			log.PresenceEvent(ev.String(), f.Index)
			c.Metrics.RecordPresenceEvent(ctx, ev.String())
			c.chime(Chimes.Arrive)
			if err := c.Launcher.StartAll(ctx, c.Pipeline); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Errorf("pipeline start failed, will retry on next presence: %v", err)
				c.chime(Chimes.Error)
				c.Debouncer.Disarm()
			}
		case Exit:
			log.PresenceEvent(ev.String(), f.Index)
			c.Metrics.RecordPresenceEvent(ctx, ev.String())
			c.chime(Chimes.Depart)
			return nil
		default:
			if n := c.Debouncer.Remaining(); n > 0 {
				log.Debugf("frame %d: person left, exiting in %d frames", f.Index, n)
			}
		}
	}
}

func (c *Controller) chime(fn func(Chimes)) {
	if c.Chimes != nil {
		fn(c.Chimes)
	}
}
