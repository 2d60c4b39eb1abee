package isolate

import (
	"fmt"

	seccomp "github.com/elastic/go-seccomp-bpf"
)

// deniedSyscalls are rejected with EPERM for the whole process tree. The
// sandbox flow itself still needs fork, chroot, unshare and the private
// remount after the filter is installed, so only syscalls with no legitimate
// use inside a worker are listed.
var deniedSyscalls = []string{
	"acct",
	"adjtimex",
	"bpf",
	"clock_adjtime",
	"clock_settime",
	"delete_module",
	"finit_module",
	"init_module",
	"ioperm",
	"iopl",
	"kexec_file_load",
	"kexec_load",
	"move_mount",
	"open_by_handle_at",
	"perf_event_open",
	"pivot_root",
	"process_vm_readv",
	"process_vm_writev",
	"ptrace",
	"reboot",
	"setns",
	"settimeofday",
	"swapoff",
	"swapon",
	"umount2",
	"userfaultfd",
	"vhangup",
}

// EnableFilter installs the sandbox execution filter on the calling process
// and, through TSYNC, on every thread. It must run before the first fork so
// all descendants inherit it.
func EnableFilter() error {
	if !seccomp.Supported() {
		return fmt.Errorf("isolate: seccomp filter is not supported by this kernel")
	}
	filter := seccomp.Filter{
		NoNewPrivs: true,
		Flag:       seccomp.FilterFlagTSync,
		Policy: seccomp.Policy{
			DefaultAction: seccomp.ActionAllow,
			Syscalls: []seccomp.SyscallGroup{
				{
					Action: seccomp.ActionErrno,
					Names:  deniedSyscalls,
				},
			},
		},
	}
	if err := seccomp.LoadFilter(filter); err != nil {
		return fmt.Errorf("isolate: load seccomp filter: %w", err)
	}
	return nil
}
