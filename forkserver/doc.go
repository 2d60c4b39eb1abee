// Package forkserver implements the spawn side of the guest: a long-lived
// server on the control socket that turns each request into a freshly
// sandboxed worker process.
//
// One request is one connection. The host connects, sends a single message
// carrying exactly two file descriptors as unix rights: an open directory fd
// of the new container root, then an open cgroup.procs fd of the target
// cgroup. The server forks; the child re-roots onto the directory fd, joins
// the cgroup and runs the container start flow, which binds the worker's
// listening socket and only then forks the final serving process, orphaning
// it by exiting in between. The serving pid travels back over a pipe and is
// answered to the host as 4 little-endian bytes.
//
// The reply doubles as a readiness barrier. Because the intermediate child
// exits only after the new listening socket is bound, and the server waits
// for that exit before replying, the host may connect to the worker the
// moment it reads the pid.
package forkserver
