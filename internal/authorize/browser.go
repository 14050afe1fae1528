package authorize

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// BrowserLauncher opens a URL in the user's browser. Open returns the
// launcher's diagnostic output alongside any error so a failed launch
// can be reported to the user.
type BrowserLauncher interface {
	Open(url string) (diagnostic string, err error)
}

// SystemBrowser launches the platform's default browser. It supports
// Linux, macOS, and Windows.
type SystemBrowser struct{}

var _ BrowserLauncher = SystemBrowser{}

func (SystemBrowser) Open(url string) (string, error) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	out, err := cmd.CombinedOutput()
	diagnostic := strings.TrimSpace(string(out))
	if err != nil {
		return diagnostic, fmt.Errorf("failed to open browser: %w", err)
	}
	return diagnostic, nil
}
