// Package pid guards against two daemons driving the same hardware.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/speedctl/internal/errors"
)

const FileName = "speedctl.pid"

// Path returns the PID file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Write records the current process ID in dir. It fails with
// ErrAlreadyRunning when the recorded process is still alive. A stale or
// unreadable file is replaced.
func Write(dir string) error {
	errFactory := errors.New()
	path := Path(dir)

	if running, err := recordedProcessAlive(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	} else if running {
		return errFactory.WithData(errors.ErrAlreadyRunning, path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func recordedProcessAlive(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	// A restart can reuse the PID recorded by a crashed instance.
	if err != nil || pid <= 0 || pid == os.Getpid() {
		return false, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}

	return process.Signal(syscall.Signal(0)) == nil, nil
}

// Remove deletes the PID file in dir if present.
func Remove(dir string) error {
	if err := os.Remove(Path(dir)); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
