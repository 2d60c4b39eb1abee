package worker

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Entry words a bootstrap file may select
const (
	// EntryServe runs the request server directly
	EntryServe = "serve"
	// EntryCache runs the zygote cache loop
	EntryCache = "cache"
	// EntryForkServer runs the spawn server
	EntryForkServer = "forkserver"
)

// Bootstrap is the parsed caller-supplied start instruction: which entry the
// new worker runs and which modules it preloads first.
type Bootstrap struct {
	Entry   string
	Preload []string
}

// ParseBootstrap parses a bootstrap file: '#' starts a comment, blank lines
// are skipped, and the remaining tokens are the entry word followed by the
// preload module names.
func ParseBootstrap(b []byte) (*Bootstrap, error) {
	var tokens []string
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("worker: bootstrap selects no entry")
	}
	entry := tokens[0]
	switch entry {
	case EntryServe, EntryCache, EntryForkServer:
	default:
		return nil, fmt.Errorf("worker: unknown bootstrap entry %q", entry)
	}
	return &Bootstrap{Entry: entry, Preload: tokens[1:]}, nil
}

// LoadBootstrap reads and parses the bootstrap file at path. The raw content
// is returned even when parsing fails so the caller can log exactly what the
// host handed over.
func LoadBootstrap(path string) (*Bootstrap, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("worker: read bootstrap: %w", err)
	}
	boot, err := ParseBootstrap(raw)
	if err != nil {
		return nil, raw, err
	}
	return boot, raw, nil
}
