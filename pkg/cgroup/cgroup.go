// Package cgroup provides helpers to join pre-created cgroups by writing the
// process id into their membership file. The cgroup trees themselves are
// created and owned by the host side; this package never creates or removes
// cgroup directories.
package cgroup

import (
	"fmt"
	"os"
	"path"
	"strconv"

	"golang.org/x/sys/unix"
)

const (
	// Procs is the membership file of a cgroup directory
	Procs = "cgroup.procs"

	filePerm = 0644
)

// JoinFD writes pid into an already opened cgroup.procs descriptor. The
// descriptor stays open; the caller owns closing it. Writes are retried on
// EINTR since cgroup files are a slow device.
func JoinFD(fd int, pid int) error {
	b := []byte(strconv.Itoa(pid))
	_, err := unix.Write(fd, b)
	for err == unix.EINTR {
		_, err = unix.Write(fd, b)
	}
	if err != nil {
		return fmt.Errorf("cgroup: failed to join via fd %d: %w", fd, err)
	}
	return nil
}

// JoinPath writes pid into the cgroup.procs file under dir
func JoinPath(dir string, pid int) error {
	f, err := os.OpenFile(path.Join(dir, Procs), os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("cgroup: %w", err)
	}
	defer f.Close()
	return JoinFD(int(f.Fd()), pid)
}

// JoinInherited joins count pre-opened cgroup.procs descriptors passed by the
// parent process. os/exec guarantees extra files start at fd 3, so the
// descriptors occupy [3, 3+count). Each is written with pid and then closed;
// the first failure aborts the remaining joins.
func JoinInherited(count int, pid int) error {
	const inheritedFdStart = 3
	for i := 0; i < count; i++ {
		fd := inheritedFdStart + i
		err := JoinFD(fd, pid)
		unix.Close(fd)
		if err != nil {
			return err
		}
	}
	return nil
}
