package forkserver

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/olsock/sockd/pkg/cgroup"
	"github.com/olsock/sockd/pkg/fork"
	"github.com/olsock/sockd/pkg/pipe"
	"github.com/olsock/sockd/pkg/unixsocket"
)

// child stderr kept for the failure diagnostic
const maxChildStderr = 4 << 10

// Server answers spawn requests on the control socket. Each successful
// request produces one sandboxed worker and one pid reply.
type Server struct {
	// Listener accepts control connections
	Listener *net.UnixListener

	// StartSandbox runs the container start flow in the forked child after
	// it has been re-rooted and moved into the request's cgroup. It must
	// bind the worker's listening socket, write the serving pid to report
	// and terminate the calling process on both sides of its own fork; it
	// never returns.
	StartSandbox func(report *os.File)

	// Spawn overrides the default fork flow when set; tests inject a fake
	Spawn func(req *SandboxRequest) (int, error)

	Logger *zap.Logger
}

// Run accepts and answers spawn requests until the listener fails. A bad
// request only loses its own connection.
func (s *Server) Run() error {
	for {
		conn, err := unixsocket.Accept(s.Listener)
		if err != nil {
			return fmt.Errorf("forkserver: accept: %w", err)
		}
		if err := s.handle(conn); err != nil {
			s.Logger.Warn("spawn request failed", zap.Error(err))
		}
		conn.Close()
	}
}

func (s *Server) handle(conn *unixsocket.Socket) error {
	req, err := recvRequest(conn)
	if err != nil {
		return err
	}
	defer req.Close()

	spawn := s.Spawn
	if spawn == nil {
		spawn = s.spawnSandbox
	}
	pid, err := spawn(req)
	if err != nil {
		return err
	}

	// spawn returns only after the intermediate child exited, and that
	// child exits only after the worker socket is bound, so the host may
	// connect as soon as it reads this reply
	if _, err := conn.Write(EncodePid(pid)); err != nil {
		return fmt.Errorf("forkserver: reply: %w", err)
	}
	s.Logger.Info("spawned sandbox", zap.Int("pid", pid))
	return nil
}

// spawnSandbox forks an intermediate child that re-roots onto the request's
// directory fd, joins its cgroup and hands over to StartSandbox. The
// intermediate reports the serving grandchild's pid over a pipe and exits;
// waiting on it doubles as the readiness barrier.
func (s *Server) spawnSandbox(req *SandboxRequest) (int, error) {
	reportR, reportW, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("forkserver: report pipe: %w", err)
	}

	// whatever the child prints before the worker redirects its own output
	// is the only diagnostic a failed start leaves behind
	stderrBuf, err := pipe.NewBuffer(maxChildStderr)
	if err != nil {
		reportR.Close()
		reportW.Close()
		return 0, fmt.Errorf("forkserver: stderr pipe: %w", err)
	}

	out, err := fork.Fork()
	if err != nil {
		reportR.Close()
		reportW.Close()
		stderrBuf.W.Close()
		return 0, fmt.Errorf("forkserver: fork: %w", err)
	}

	if out.InChild {
		// the sandbox must not hold the server's control socket
		releaseListener(s.Listener)
		reportR.Close()
		unix.Dup2(int(stderrBuf.W.Fd()), int(os.Stderr.Fd()))
		stderrBuf.W.Close()
		if err := reroot(req.RootFD); err != nil {
			s.Logger.Error("sandbox reroot failed", zap.Error(err))
			os.Exit(1)
		}
		if err := cgroup.JoinFD(req.CgroupProcsFD, os.Getpid()); err != nil {
			s.Logger.Error("sandbox cgroup join failed", zap.Error(err))
			os.Exit(1)
		}
		req.Close()
		s.StartSandbox(reportW)
		panic("forkserver: StartSandbox returned")
	}

	// parent drops its copies right away; the child owns them now
	req.Close()
	reportW.Close()
	stderrBuf.W.Close()
	defer reportR.Close()

	status, err := fork.Wait(out.Pid)
	if err != nil {
		return 0, fmt.Errorf("forkserver: wait %d: %w", out.Pid, err)
	}
	if !status.Exited() || status.ExitStatus() != 0 {
		// a partially started worker may still hold the pipe open, so
		// the collector is only given a grace period to drain
		select {
		case <-stderrBuf.Done:
		case <-time.After(100 * time.Millisecond):
		}
		return 0, fmt.Errorf("forkserver: sandbox start failed: wait status %d, stderr: %q",
			status, stderrBuf.Buffer.String())
	}

	b := make([]byte, replySize)
	if _, err := io.ReadFull(reportR, b); err != nil {
		return 0, fmt.Errorf("forkserver: read sandbox pid: %w", err)
	}
	return DecodePid(b)
}

// releaseListener closes a duplicated listener descriptor. Closing a unix
// listener normally unlinks its socket file; the path is still served by the
// process that forked us, so the unlink must be suppressed.
func releaseListener(l *net.UnixListener) {
	l.SetUnlinkOnClose(false)
	l.Close()
}

// reroot makes the directory behind fd the filesystem root of this process
func reroot(fd int) error {
	if err := unix.Fchdir(fd); err != nil {
		return fmt.Errorf("fchdir root fd: %w", err)
	}
	if err := unix.Chroot("."); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	return nil
}
