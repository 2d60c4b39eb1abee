package worker

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const logFilePerm = 0644

// RedirectOutput points this process's stdout and stderr at the host log
// files so everything the worker and its descendants print lands where the
// host collects it. Descriptors 1 and 2 are replaced in place; os.Stdout and
// os.Stderr keep working unchanged.
func RedirectOutput(stdoutPath, stderrPath string) error {
	if err := redirectFd(int(os.Stdout.Fd()), stdoutPath); err != nil {
		return err
	}
	return redirectFd(int(os.Stderr.Fd()), stderrPath)
}

func redirectFd(fd int, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, logFilePerm)
	if err != nil {
		return fmt.Errorf("worker: open log %s: %w", path, err)
	}
	defer f.Close()
	if err := unix.Dup2(int(f.Fd()), fd); err != nil {
		return fmt.Errorf("worker: redirect fd %d to %s: %w", fd, path, err)
	}
	return nil
}
