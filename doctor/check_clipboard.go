package doctor

import (
	"fmt"

	"github.com/atotto/clipboard"
)

// checkClipboard round-trips a sentinel and restores the previous contents.
func checkClipboard() result {
	if clipboard.Unsupported {
		return result{warn, "no clipboard utility available"}
	}
	prev, _ := clipboard.ReadAll()
	defer clipboard.WriteAll(prev)

	const sentinel = "kiosk-doctor-test"
	if err := clipboard.WriteAll(sentinel); err != nil {
		return result{warn, fmt.Sprintf("copy failed: %v", err)}
	}
	got, err := clipboard.ReadAll()
	if err != nil {
		return result{warn, fmt.Sprintf("read failed: %v", err)}
	}
	if got != sentinel {
		return result{warn, fmt.Sprintf("read back %q, want %q", got, sentinel)}
	}
	return result{pass, "copy and read back"}
}
