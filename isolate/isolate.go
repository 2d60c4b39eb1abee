// Package isolate wraps the OS isolation primitives the sandbox depends on:
// namespace unshare and the seccomp syscall filter. Both are exposed as
// plain error-returning calls; the caller decides which failures are fatal.
package isolate

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// UnshareFlags detaches the worker from the mount, IPC, UTS and pid
// namespaces. Pid namespace unshare only applies to later children, which is
// what the double fork relies on: the orphaned grandchild becomes pid 1 of
// the new namespace while the caller itself stays in a half-isolated state
// and exits immediately.
const UnshareFlags = unix.CLONE_NEWNS | unix.CLONE_NEWIPC | unix.CLONE_NEWUTS | unix.CLONE_NEWPID

// Unshare detaches the calling process from the shared namespaces and makes
// mount propagation private so sandbox mounts cannot leak back to the host.
// Namespace isolation is a hard security precondition; callers must not
// continue into user code when this fails.
func Unshare() error {
	if err := unix.Unshare(UnshareFlags); err != nil {
		return fmt.Errorf("isolate: unshare: %w", err)
	}
	if err := unix.Mount("none", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("isolate: remount private: %w", err)
	}
	return nil
}
