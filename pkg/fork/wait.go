package fork

import (
	"golang.org/x/sys/unix"
)

// Wait blocks until pid terminates, retrying on EINTR.
func Wait(pid int) (unix.WaitStatus, error) {
	var ws unix.WaitStatus
	_, err := unix.Wait4(pid, &ws, 0, nil)
	for err == unix.EINTR {
		_, err = unix.Wait4(pid, &ws, 0, nil)
	}
	return ws, err
}
