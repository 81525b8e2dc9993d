//go:build !darwin

package login

func Enabled() bool { return false }

func Enable(Agent) error { return ErrUnsupported }

func Disable() error { return nil }
