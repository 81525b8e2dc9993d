//go:build windows

package supervise

import (
	"os"
	"os/exec"
)

func configure(cmd *exec.Cmd) {}

// Windows has no SIGTERM; terminate is a hard kill.
func terminate(p *os.Process) error { return p.Kill() }

func kill(p *os.Process) error { return p.Kill() }
