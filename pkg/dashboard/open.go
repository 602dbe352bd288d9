package dashboard

import (
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/monstack/monstack/pkg/errors"
)

// FileURL converts a dashboard file path into a file:// URL.
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.NewIOError("failed to resolve dashboard path", err).WithContext("path", path)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// Open launches the platform browser on the given URL. The command is
// started and not waited on; callers treat failures as non-fatal.
func Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return errors.NewIOError("failed to open browser", err).WithContext("url", url)
	}
	go cmd.Wait()
	return nil
}
