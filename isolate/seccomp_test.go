package isolate

import "testing"

// the container flow itself runs after the filter is installed, so none of
// its syscalls may appear in the deny list
func TestFlowSyscallsNotDenied(t *testing.T) {
	needed := []string{
		"clone",
		"chroot",
		"fchdir",
		"unshare",
		"mount",
		"wait4",
		"write",
	}
	denied := make(map[string]bool, len(deniedSyscalls))
	for _, name := range deniedSyscalls {
		denied[name] = true
	}
	for _, name := range needed {
		if denied[name] {
			t.Errorf("flow syscall %s is denied by the filter", name)
		}
	}
}
