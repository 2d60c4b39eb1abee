// Package config holds the process entry configuration for the guest. There
// is no implicit global state: every component receives the Config it needs,
// and forked processes rebuild their view from the control messages they
// consume rather than from shared mutable variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Deployment modes
const (
	// ModeSandbox runs the full isolation flow: join cgroups, install the
	// seccomp filter and start the chroot/unshare container sequence driven
	// by the bootstrap file.
	ModeSandbox = "sandbox"
	// ModeContainer assumes an externally provisioned container: redirect
	// output to the host paths and run either the cache loop or the request
	// server directly.
	ModeContainer = "container"
)

// Well-known file names under the host directory
const (
	fsSockName     = "fs.sock"
	servSockName   = "ol.sock"
	stdoutName     = "stdout"
	stderrName     = "stderr"
	serverPipeName = "server_pipe"
)

// Config is the explicit entry configuration
type Config struct {
	// Mode selects the deployment mode (ModeSandbox / ModeContainer)
	Mode string `yaml:"mode"`

	// HostDir is the directory shared with the host that carries the
	// control sockets, log files and the readiness pipe
	HostDir string `yaml:"host_dir"`

	// PackagesDir holds loadable module objects keyed by name
	PackagesDir string `yaml:"packages_dir"`

	// Bootstrap is the path of the caller-supplied bootstrap file;
	// required in sandbox mode
	Bootstrap string `yaml:"bootstrap"`

	// CgroupCount is the number of pre-opened cgroup.procs descriptors
	// (starting at fd 3) to join at startup
	CgroupCount int `yaml:"cgroup_count"`

	// EnableSeccomp installs the sandbox execution filter at entry
	EnableSeccomp bool `yaml:"enable_seccomp"`

	// Cache begins container mode as a cache loop entry instead of a
	// directly serving worker
	Cache bool `yaml:"cache"`
}

// Default returns the configuration matching a standard guest image layout
func Default() Config {
	return Config{
		Mode:          ModeSandbox,
		HostDir:       "/host",
		PackagesDir:   "/packages",
		EnableSeccomp: true,
	}
}

// Load reads a yaml config file over the defaults
func Load(path string) (Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}

// Validate checks mode-dependent requirements
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSandbox:
		if c.Bootstrap == "" {
			return fmt.Errorf("config: bootstrap path is required in %s mode", ModeSandbox)
		}
	case ModeContainer:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.HostDir == "" {
		return fmt.Errorf("config: host dir must be set")
	}
	if c.CgroupCount < 0 {
		return fmt.Errorf("config: cgroup count must not be negative")
	}
	return nil
}

// FSSockPath is the cache-loop control socket
func (c *Config) FSSockPath() string { return filepath.Join(c.HostDir, fsSockName) }

// ServSockPath is the worker's per-container listening socket
func (c *Config) ServSockPath() string { return filepath.Join(c.HostDir, servSockName) }

// StdoutPath is the host-provided stdout log file
func (c *Config) StdoutPath() string { return filepath.Join(c.HostDir, stdoutName) }

// StderrPath is the host-provided stderr log file
func (c *Config) StderrPath() string { return filepath.Join(c.HostDir, stderrName) }

// ServerPipePath is the readiness pipe
func (c *Config) ServerPipePath() string { return filepath.Join(c.HostDir, serverPipeName) }
