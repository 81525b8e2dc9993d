package presence

// Event is what one observation produced.
type Event int

const (
	None Event = iota
	Enter
	Exit
)

func (e Event) String() string {
	switch e {
	case Enter:
		return "enter"
	case Exit:
		return "exit"
	default:
		return "none"
	}
}

const (
	DefaultEnterFrames = 5
	DefaultExitFrames  = 15
)

// Debouncer turns a noisy per-frame presence signal into a single Enter after
// enter consecutive present frames and a single Exit after exit consecutive
// absent frames. Once armed it never re-arms on its own; Exit is emitted at
// most once.
type Debouncer struct {
	enter, exit int
	present     int
	absent      int
	armed       bool
	exited      bool
}

func NewDebouncer(enter, exit int) *Debouncer {
	if enter < 1 {
		enter = 1
	}
	if exit < 1 {
		exit = 1
	}
	return &Debouncer{enter: enter, exit: exit}
}

func (d *Debouncer) Observe(present bool) Event {
	if d.exited {
		return None
	}
	if present {
		d.present++
		d.absent = 0
		if !d.armed && d.present >= d.enter {
			d.armed = true
			return Enter
		}
		return None
	}

	d.present = 0
	if !d.armed {
		return None
	}
	d.absent++
	if d.absent >= d.exit {
		d.exited = true
		return Exit
	}
	return None
}

// Disarm drops back to idle after a failed start so that the next present
// frame retries. The present run is kept.
func (d *Debouncer) Disarm() {
	d.armed = false
	d.absent = 0
}

func (d *Debouncer) Armed() bool { return d.armed }

// Remaining is the number of absent frames left before Exit, or -1 when not
// counting down.
func (d *Debouncer) Remaining() int {
	if !d.armed || d.exited || d.absent == 0 {
		return -1
	}
	return d.exit - d.absent
}
