// Package worker turns an already re-rooted process into a serving sandbox:
// it detaches the remaining namespaces, binds the socket its entry will serve
// on, and double-forks so the final worker runs orphaned as pid 1 of the new
// pid namespace while its pid is reported back before the intermediate exits.
package worker

import (
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/olsock/sockd/config"
	"github.com/olsock/sockd/forkserver"
	"github.com/olsock/sockd/isolate"
	"github.com/olsock/sockd/pkg/fork"
	"github.com/olsock/sockd/pkg/unixsocket"
)

// EntryFunc is a wired bootstrap entry. It receives the pre-bound listening
// socket and the preload module names and runs until the worker is done.
type EntryFunc func(l *net.UnixListener, preload []string) error

// Container starts sandboxed workers. Entries maps bootstrap entry words to
// their implementations; the mapping is wired at process start so this
// package stays ignorant of what serving actually means.
type Container struct {
	Config  config.Config
	Entries map[string]EntryFunc
	Logger  *zap.Logger
}

// Start runs the container start flow and never returns. The caller has
// already re-rooted this process and moved it into the target cgroup.
//
// The listening socket is bound before the fork and the serving pid is
// written to report before this process exits, so whoever waits on this
// process may treat its exit as the worker being connectable.
func (c *Container) Start(report *os.File) {
	// namespace isolation is a precondition for running user code
	if err := isolate.Unshare(); err != nil {
		c.Logger.Error("isolation failed", zap.Error(err))
		os.Exit(1)
	}

	boot, raw, err := LoadBootstrap(c.Config.Bootstrap)
	if err != nil {
		// the full content is the one diagnostic the host side can act on
		c.Logger.Error("bootstrap rejected", zap.Error(err), zap.ByteString("bootstrap", raw))
		os.Exit(1)
	}
	entry, ok := c.Entries[boot.Entry]
	if !ok {
		c.Logger.Error("bootstrap entry not wired", zap.String("entry", boot.Entry), zap.ByteString("bootstrap", raw))
		os.Exit(1)
	}

	sockPath := c.Config.FSSockPath()
	if boot.Entry == EntryServe {
		sockPath = c.Config.ServSockPath()
	}
	l, err := unixsocket.Listen(sockPath)
	if err != nil {
		c.Logger.Error("bind worker socket failed", zap.String("path", sockPath), zap.Error(err))
		os.Exit(1)
	}

	out, err := fork.Fork()
	if err != nil {
		c.Logger.Error("worker fork failed", zap.Error(err))
		os.Exit(1)
	}

	if !out.InChild {
		// report the worker pid as seen from the host pid namespace,
		// then orphan it. The listener must not be closed here: closing
		// a unix listener unlinks the socket file the worker serves on,
		// so the duplicate descriptor is left to die with this process.
		if _, err := report.Write(forkserver.EncodePid(out.Pid)); err != nil {
			c.Logger.Error("report worker pid failed", zap.Error(err))
			os.Exit(1)
		}
		report.Close()
		os.Exit(0)
	}

	// worker side, pid 1 of the new pid namespace
	report.Close()
	if err := RedirectOutput(c.Config.StdoutPath(), c.Config.StderrPath()); err != nil {
		c.Logger.Warn("output redirect failed", zap.Error(err))
	}
	c.Logger.Info("worker starting", zap.String("entry", boot.Entry), zap.Strings("preload", boot.Preload))
	if err := entry(l, boot.Preload); err != nil {
		c.Logger.Error("worker entry failed", zap.String("entry", boot.Entry), zap.Error(err))
		os.Exit(1)
	}
	os.Exit(0)
}
