package zygote

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/olsock/sockd/pkg/fork"
)

// Decision tells the caller what this process must do after Run returns
type Decision int

const (
	// DecisionServe means this process escaped the loop and must become
	// the request server
	DecisionServe Decision = iota + 1
	// DecisionHandOff means a forked child took over as the active
	// listener and this process must terminate
	DecisionHandOff
)

func (d Decision) String() string {
	switch d {
	case DecisionServe:
		return "serve"
	case DecisionHandOff:
		return "handoff"
	}
	return "unknown"
}

// Forker forks the current process and classifies the result
type Forker interface {
	Fork() (fork.Outcome, error)
}

// ForkFunc adapts a plain function to Forker
type ForkFunc func() (fork.Outcome, error)

// Fork calls f
func (f ForkFunc) Fork() (fork.Outcome, error) { return f() }

// Loop is the cache loop state machine. All collaborators are explicit so a
// forked child rebuilds nothing from shared globals.
type Loop struct {
	// Listener accepts cache-request connections on the cache socket
	Listener net.Listener

	// Forker performs the per-iteration fork
	Forker Forker

	// Loader resolves the requested module names
	Loader Loader

	// Redirect points stdout/stderr at the host log paths; applied at
	// most once, in the first child iteration of this process
	Redirect func() error

	Logger *zap.Logger

	redirectOnce sync.Once
}

// Run drives LISTEN -> FORK -> IMPORT iterations until this process either
// escapes to serve or must terminate because a child replaced it. The parent
// side never loads modules and never serves; it only spawns and keeps
// listening. Run blocks forever in a pure parent whose children all serve.
func (l *Loop) Run() (Decision, error) {
	resetRequested := false
	for {
		if resetRequested {
			// reused cached child re-entering the loop
			l.Logger.Info("reset")
			l.Loader.Reset()
			resetRequested = false
		}

		l.Logger.Info("listening")
		conn, err := l.Listener.Accept()
		if err != nil {
			return 0, fmt.Errorf("zygote: accept: %w", err)
		}
		req, err := readRequest(conn)
		conn.Close()
		if err != nil {
			// malformed control message is recoverable, drop it
			l.Logger.Warn("dropping malformed cache request", zap.Error(err))
			continue
		}

		out, err := l.Forker.Fork()
		if err != nil {
			l.Logger.Error("fork failed", zap.Error(err))
			continue
		}

		if !out.InChild {
			if !req.Serve() {
				// the cache child replaces this process as the
				// single active listener
				l.Logger.Info("handing listener over to cached child", zap.Int("pid", out.Pid))
				return DecisionHandOff, nil
			}
			// serving child escaped on its own; keep listening.
			// Known constraint: the child shares the runtime's
			// poller descriptor duplicated by the fork, so while
			// both processes block on network waits an event can be
			// drained by the wrong side. Deployments that need a
			// fully independent serving process use the fork-server
			// spawn path, where the forking side exits.
			l.Logger.Info("spawned serving child", zap.Int("pid", out.Pid))
			continue
		}

		// child side
		l.redirectOnce.Do(func() {
			if l.Redirect == nil {
				return
			}
			if err := l.Redirect(); err != nil {
				l.Logger.Warn("output redirect failed", zap.Error(err))
			}
		})
		l.loadModules(req.Modules)

		if req.Serve() {
			l.Logger.Info("serving handlers", zap.String("signal", req.Signal))
			return DecisionServe, nil
		}
		resetRequested = true
	}
}

// loadModules imports the requested modules in order. A failed module is
// logged and skipped; code that needed it fails at the point of use instead.
func (l *Loop) loadModules(modules []string) {
	for _, name := range modules {
		l.Logger.Info("importing", zap.String("module", name))
		if err := l.Loader.Load(name); err != nil {
			l.Logger.Warn("failed to import", zap.String("module", name), zap.Error(err))
		}
	}
}

func readRequest(conn net.Conn) (CacheRequest, error) {
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && err != io.EOF {
		return CacheRequest{}, fmt.Errorf("zygote: read cache request: %w", err)
	}
	return ParseCacheRequest(line)
}
