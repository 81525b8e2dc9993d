package supervise

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// OpenURL returns an action that opens url in the default browser.
func OpenURL(url string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.CommandContext(ctx, "open", url)
		case "windows":
			cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
		default:
			cmd = exec.CommandContext(ctx, "xdg-open", url)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("open %s: %w", url, err)
		}
		go cmd.Wait()
		return nil
	}
}

// CloseBrowserTabs closes tabs whose URL contains match in the browsers
// that can be scripted. Only macOS exposes a way to do this; elsewhere it
// does nothing. Browsers that are not running are ignored.
func CloseBrowserTabs(match string) error {
	if runtime.GOOS != "darwin" {
		return nil
	}
	scripts := []string{
		fmt.Sprintf(`tell application "Safari" to close (every tab of every window whose URL contains %q)`, match),
		fmt.Sprintf(`tell application "Google Chrome" to close (every tab of every window whose URL contains %q)`, match),
		fmt.Sprintf(`tell application "Microsoft Edge" to close (every tab of every window whose URL contains %q)`, match),
	}
	var errs []error
	for _, script := range scripts {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput()
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out))))
		}
	}
	return errors.Join(errs...)
}
