// Package fork provides the bare process-forking primitive for the sandbox
// lifecycle. Unlike os/exec there is no execve: both sides of the fork keep
// running the current program image, which is what lets a warmed worker
// process be duplicated cheaply.
//
// The result of a fork is classified into a tagged Outcome instead of a raw
// numeric return value, so call sites never branch on pid arithmetic.
//
// After a fork only the calling thread exists in the child. The child side
// must restrict itself to the sandbox entry path (chroot / cgroup join /
// socket rebinding and then either exit or single-process serving); it must
// never depend on goroutines or locks created before the fork.
package fork
