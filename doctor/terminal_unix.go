//go:build !windows

package doctor

import "os/exec"

// resetTerminal undoes a raw mode left behind by the device picker or a
// killed watch session.
func resetTerminal() {
	exec.Command("stty", "sane").Run()
}
