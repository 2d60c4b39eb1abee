// Command sockd is the guest-side process manager of a sandboxed
// function-execution host. Depending on its mode and bootstrap file it runs
// as the spawn server, the zygote cache loop or a directly serving worker.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olsock/sockd/config"
	"github.com/olsock/sockd/forkserver"
	"github.com/olsock/sockd/isolate"
	"github.com/olsock/sockd/pkg/cgroup"
	"github.com/olsock/sockd/pkg/fork"
	"github.com/olsock/sockd/pkg/pipe"
	"github.com/olsock/sockd/pkg/unixsocket"
	"github.com/olsock/sockd/web"
	"github.com/olsock/sockd/worker"
	"github.com/olsock/sockd/zygote"
)

// Exported symbols a handler module may provide: a function handler, or a
// whole application that takes over dispatch
const (
	HandlerSymbol = "Handler"
	AppSymbol     = "App"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		flagCfg = config.Default()
	)
	cmd := &cobra.Command{
		Use:           "sockd",
		Short:         "guest-side manager for sandboxed function workers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := flagCfg
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				cfg = loaded
				// explicit flags win over the config file
				applyChangedFlags(cmd, &cfg, flagCfg)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return run(cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "yaml config file")
	f.StringVar(&flagCfg.Mode, "mode", flagCfg.Mode, "deployment mode (sandbox|container)")
	f.StringVar(&flagCfg.HostDir, "host-dir", flagCfg.HostDir, "directory shared with the host")
	f.StringVar(&flagCfg.PackagesDir, "packages-dir", flagCfg.PackagesDir, "directory of loadable modules")
	f.StringVar(&flagCfg.Bootstrap, "bootstrap", flagCfg.Bootstrap, "bootstrap file path")
	f.IntVar(&flagCfg.CgroupCount, "cgroup-count", flagCfg.CgroupCount, "number of inherited cgroup.procs fds to join")
	f.BoolVar(&flagCfg.EnableSeccomp, "enable-seccomp", flagCfg.EnableSeccomp, "install the syscall filter at entry")
	f.BoolVar(&flagCfg.Cache, "cache", flagCfg.Cache, "run the cache loop in container mode")
	return cmd
}

func applyChangedFlags(cmd *cobra.Command, cfg *config.Config, flagCfg config.Config) {
	f := cmd.Flags()
	if f.Changed("mode") {
		cfg.Mode = flagCfg.Mode
	}
	if f.Changed("host-dir") {
		cfg.HostDir = flagCfg.HostDir
	}
	if f.Changed("packages-dir") {
		cfg.PackagesDir = flagCfg.PackagesDir
	}
	if f.Changed("bootstrap") {
		cfg.Bootstrap = flagCfg.Bootstrap
	}
	if f.Changed("cgroup-count") {
		cfg.CgroupCount = flagCfg.CgroupCount
	}
	if f.Changed("enable-seccomp") {
		cfg.EnableSeccomp = flagCfg.EnableSeccomp
	}
	if f.Changed("cache") {
		cfg.Cache = flagCfg.Cache
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	switch cfg.Mode {
	case config.ModeSandbox:
		return runSandbox(cfg, logger)
	case config.ModeContainer:
		return runContainer(cfg, logger)
	}
	return fmt.Errorf("unknown mode %q", cfg.Mode)
}

// runSandbox is the full isolation entry: join the inherited cgroups, arm
// the syscall filter and run the container start flow. The spawned worker
// pid is reported on stdout so the launcher can read it before this process
// exits.
func runSandbox(cfg config.Config, logger *zap.Logger) error {
	if err := cgroup.JoinInherited(cfg.CgroupCount, os.Getpid()); err != nil {
		return err
	}
	if cfg.EnableSeccomp {
		if err := isolate.EnableFilter(); err != nil {
			return err
		}
	}
	container := &worker.Container{
		Config:  cfg,
		Entries: wireEntries(cfg, logger),
		Logger:  logger,
	}
	container.Start(os.Stdout)
	panic("container start returned")
}

// runContainer assumes an externally provisioned container: point output at
// the host log files and serve, either through the cache loop or directly.
func runContainer(cfg config.Config, logger *zap.Logger) error {
	if err := worker.RedirectOutput(cfg.StdoutPath(), cfg.StderrPath()); err != nil {
		logger.Warn("output redirect failed", zap.Error(err))
	}
	entries := wireEntries(cfg, logger)
	entry, sockPath := worker.EntryServe, cfg.ServSockPath()
	if cfg.Cache {
		entry, sockPath = worker.EntryCache, cfg.FSSockPath()
	}
	l, err := unixsocket.Listen(sockPath)
	if err != nil {
		return err
	}
	return entries[entry](l, nil)
}

// wireEntries binds the bootstrap entry words to their implementations. The
// container references the entries and the fork-server entry references the
// container, so the map is built around that cycle.
func wireEntries(cfg config.Config, logger *zap.Logger) map[string]worker.EntryFunc {
	entries := make(map[string]worker.EntryFunc)
	container := &worker.Container{Config: cfg, Entries: entries, Logger: logger}

	entries[worker.EntryServe] = func(l *net.UnixListener, preload []string) error {
		reg := zygote.NewRegistry(cfg.PackagesDir)
		loadAll(reg, preload, logger)
		return newWebServer(cfg, reg, preload, logger).Serve(l)
	}

	entries[worker.EntryCache] = func(l *net.UnixListener, preload []string) error {
		reg := zygote.NewRegistry(cfg.PackagesDir)
		loadAll(reg, preload, logger)
		loop := &zygote.Loop{
			Listener: l,
			Forker:   zygote.ForkFunc(fork.Fork),
			Loader:   reg,
			Redirect: func() error {
				return worker.RedirectOutput(cfg.StdoutPath(), cfg.StderrPath())
			},
			Logger: logger,
		}
		decision, err := loop.Run()
		if err != nil {
			return err
		}
		if decision == zygote.DecisionHandOff {
			// a cached child replaced this process as the listener
			return nil
		}
		serveSock, err := unixsocket.Listen(cfg.ServSockPath())
		if err != nil {
			return err
		}
		return newWebServer(cfg, reg, reg.Loaded(), logger).Serve(serveSock)
	}

	entries[worker.EntryForkServer] = func(l *net.UnixListener, _ []string) error {
		s := &forkserver.Server{
			Listener:     l,
			StartSandbox: container.Start,
			Logger:       logger,
		}
		return s.Run()
	}
	return entries
}

// newWebServer builds the request server for the serve path. The readiness
// pipe is a container-mode contract only: in sandbox mode the caller relies
// on the structural socket-before-reply guarantee and never opens the pipe,
// and an unread fifo open would block the worker before its accept loop.
func newWebServer(cfg config.Config, reg *zygote.Registry, modules []string, logger *zap.Logger) *web.Server {
	s := &web.Server{
		Handler: resolveHandler(reg, modules, logger),
		App:     resolveApp(reg, modules),
		Logger:  logger,
	}
	if cfg.Mode == config.ModeContainer {
		s.Ready = &pipe.Notifier{Path: cfg.ServerPipePath()}
	}
	return s
}

func loadAll(reg *zygote.Registry, names []string, logger *zap.Logger) {
	for _, name := range names {
		if err := reg.Load(name); err != nil {
			logger.Warn("failed to preload module", zap.String("module", name), zap.Error(err))
		}
	}
}

// resolveApp takes the mounted application exported by the last loaded
// module that has one; a module exporting a whole application wins over the
// function handler.
func resolveApp(reg *zygote.Registry, modules []string) http.Handler {
	for i := len(modules) - 1; i >= 0; i-- {
		sym, err := reg.Lookup(modules[i], AppSymbol)
		if err != nil {
			continue
		}
		if app, ok := sym.(http.Handler); ok {
			return app
		}
		if app, ok := sym.(*http.Handler); ok {
			return *app
		}
	}
	return nil
}

// resolveHandler takes the handler exported by the last loaded module that
// has one. Without any, requests are answered by echoing the event, which
// keeps a bare worker probeable.
func resolveHandler(reg *zygote.Registry, modules []string, logger *zap.Logger) web.Handler {
	for i := len(modules) - 1; i >= 0; i-- {
		sym, err := reg.Lookup(modules[i], HandlerSymbol)
		if err != nil {
			continue
		}
		h, ok := sym.(web.Handler)
		if !ok {
			if hp, ok := sym.(*web.Handler); ok {
				return *hp
			}
			logger.Warn("module exports a non-handler symbol", zap.String("module", modules[i]))
			continue
		}
		return h
	}
	logger.Info("no handler module loaded, echoing events")
	return web.HandlerFunc(func(_ context.Context, evt web.Event) (any, error) {
		return evt, nil
	})
}
