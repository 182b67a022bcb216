// Package pidfile guards against double-running the gateway.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// Create writes the current PID to path, refusing if a live process already
// holds it.
func Create(path string) error {
	if path == "" {
		return errors.New("pidfile: path is empty")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("pidfile: create dir: %w", err)
		}
	}

	if b, err := os.ReadFile(path); err == nil {
		if s := strings.TrimSpace(string(b)); s != "" {
			oldPID, convErr := strconv.Atoi(s)
			if convErr == nil && oldPID > 0 {
				exists, probeErr := processExists(oldPID)
				if probeErr != nil {
					return fmt.Errorf("pidfile: probe pid %d: %w", oldPID, probeErr)
				}
				if exists {
					return fmt.Errorf("pidfile: already running (pid=%d)", oldPID)
				}
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("pidfile: read: %w", err)
	}

	pid := os.Getpid()
	tmp := fmt.Sprintf("%s.tmp.%d", path, pid)
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("pidfile: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("pidfile: rename: %w", err)
	}
	return nil
}

// Remove deletes the pidfile, ignoring errors.
func Remove(path string) {
	_ = os.Remove(path)
}

func processExists(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	if runtime.GOOS == "windows" {
		return true, nil
	}
	err := syscall.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, syscall.ESRCH):
		return false, nil
	case errors.Is(err, syscall.EPERM):
		return true, nil
	default:
		return false, err
	}
}
