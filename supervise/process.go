package supervise

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"kiosk/log"
)

// SelfCommand in ProcessSpec.Command runs the current kiosk executable.
const SelfCommand = "self"

// ProcessSpec describes one pipeline entry. Exactly one of Command and Action
// is set: a Command is spawned and tracked, an Action runs once as a side
// effect.
type ProcessSpec struct {
	Name    string
	Command string
	Args    []string
	Dir     string
	Env     map[string]string
	// WarmUp is slept after a successful spawn. There is no readiness check.
	WarmUp time.Duration
	Action func(ctx context.Context) error
	// Stdout receives the child's stdout. Nil forwards it to the log.
	Stdout io.Writer
}

// Stop outcomes.
const (
	Exited     = "exited"
	Terminated = "terminated"
	Killed     = "killed"
)

// Process is the handle of a running child.
type Process struct {
	Name      string
	PID       int
	StartedAt time.Time

	cmd     *exec.Cmd
	done    chan struct{}
	err     error
	closers []io.Closer
}

// Start spawns spec.Command in its own process group. A goroutine owns
// cmd.Wait; Done is closed once it returns.
func Start(spec ProcessSpec) (*Process, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("%s: no command", spec.Name)
	}
	path, err := resolve(spec.Command)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for _, k := range slices.Sorted(maps.Keys(spec.Env)) {
			cmd.Env = append(cmd.Env, k+"="+spec.Env[k])
		}
	}
	configure(cmd)
	// Grandchildren that inherit the pipes must not hold Wait forever.
	cmd.WaitDelay = time.Second

	p := &Process{Name: spec.Name, cmd: cmd, done: make(chan struct{})}
	stderr := log.Lines(spec.Name, "stderr")
	p.closers = append(p.closers, stderr)
	cmd.Stderr = stderr
	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	} else {
		stdout := log.Lines(spec.Name, "stdout")
		p.closers = append(p.closers, stdout)
		cmd.Stdout = stdout
	}

	if err := cmd.Start(); err != nil {
		p.closeOutputs()
		return nil, fmt.Errorf("%s: start %s: %w", spec.Name, spec.Command, err)
	}
	p.PID = cmd.Process.Pid
	p.StartedAt = time.Now()
	log.ProcessStarted(spec.Name, p.PID, strings.Join(append([]string{spec.Command}, spec.Args...), " "))

	go func() {
		p.err = cmd.Wait()
		p.closeOutputs()
		close(p.done)
	}()
	return p, nil
}

func resolve(command string) (string, error) {
	if command == SelfCommand {
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("resolve own executable: %w", err)
		}
		return exe, nil
	}
	return exec.LookPath(command)
}

func (p *Process) closeOutputs() {
	for _, c := range p.closers {
		c.Close()
	}
}

// Done is closed when the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err is the wait error. Only valid after Done is closed.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Stop terminates the process group, waits up to timeout, then kills and
// waits unconditionally. It returns how the process went away.
func (p *Process) Stop(timeout time.Duration) string {
	select {
	case <-p.done:
		return Exited
	default:
	}

	begin := time.Now()
	if err := terminate(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Warnf("%s: terminate pid %d: %v", p.Name, p.PID, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	how := Terminated
	select {
	case <-p.done:
	case <-timer.C:
		how = Killed
		if err := kill(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.Warnf("%s: kill pid %d: %v", p.Name, p.PID, err)
		}
		<-p.done
	}
	log.ProcessStopped(p.Name, p.PID, how, time.Since(begin))
	return how
}
