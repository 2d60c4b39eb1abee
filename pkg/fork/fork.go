package fork

import (
	"syscall"
	_ "unsafe" // required for go:linkname.
)

//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()

// Outcome classifies the two sides of a fork with named fields. InChild set
// means this process is the newly created child; Pid is the child pid as
// seen from the parent and is zero in the child. Whether a child re-enters
// the cache loop or escapes to serve is decided by the consumed control
// message, never by overloading these fields.
type Outcome struct {
	InChild bool
	Pid     int
}

// Fork forks the current process and continues Go execution on both sides.
// Reference to src/syscall/exec_linux.go for the runtime bracketing.
//
//go:norace
func Fork() (Outcome, error) {
	// Acquire the fork lock so that no other threads
	// create new fds that are not yet close-on-exec
	// before we fork.
	syscall.ForkLock.Lock()

	// About to call fork.
	// No more allocation or calls of non-assembly functions.
	beforeFork()

	r1, _, err1 := syscall.RawSyscall6(syscall.SYS_CLONE, uintptr(syscall.SIGCHLD), 0, 0, 0, 0, 0)
	if err1 != 0 {
		afterFork()
		syscall.ForkLock.Unlock()
		return Outcome{}, err1
	}

	if r1 == 0 {
		// In child process: only this thread survived the fork.
		// beforeFork parked the goroutine's stack guard on the fork
		// sentinel and afterForkInChild does not restore it; afterFork
		// must also run here or the first stack growth in the child is
		// a runtime fatal error.
		afterForkInChild()
		afterFork()
		syscall.ForkLock.Unlock()
		return Outcome{InChild: true}, nil
	}

	afterFork()
	syscall.ForkLock.Unlock()
	return Outcome{Pid: int(r1)}, nil
}
