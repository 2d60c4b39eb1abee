package zygote

import (
	"fmt"
	"path/filepath"
	"plugin"
	"sort"
	"sync"
)

// Loader loads named modules into the current process. Implementations keep
// the set of loaded names so a reused cache child can be reset.
type Loader interface {
	// Load makes the named module available, returning an error that the
	// loop logs without aborting the remaining batch
	Load(name string) error
	// Reset empties the loaded set for a reused cache child
	Reset()
	// Loaded returns the currently loaded module names
	Loaded() []string
}

// Registry resolves module names to compile-time registered initializers or
// shared objects under Dir, replacing import-by-string with an explicit
// lookup that returns a typed result.
type Registry struct {
	// Dir holds loadable <name>.so objects
	Dir string

	mu       sync.Mutex
	builtins map[string]func() error
	loaded   map[string]struct{}
	plugins  map[string]*plugin.Plugin
}

// NewRegistry creates an empty registry over the given packages directory
func NewRegistry(dir string) *Registry {
	return &Registry{
		Dir:      dir,
		builtins: make(map[string]func() error),
		loaded:   make(map[string]struct{}),
		plugins:  make(map[string]*plugin.Plugin),
	}
}

// Register installs a compile-time module initializer under name. Builtins
// take precedence over shared objects of the same name.
func (r *Registry) Register(name string, init func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[name] = init
}

// Load resolves name to a builtin or a shared object and marks it loaded.
// Loading is idempotent per name; the loaded set grows until Reset.
func (r *Registry) Load(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loaded[name]; ok {
		return nil
	}
	if init, ok := r.builtins[name]; ok {
		if err := init(); err != nil {
			return fmt.Errorf("zygote: module %s init: %w", name, err)
		}
		r.loaded[name] = struct{}{}
		return nil
	}
	p, err := plugin.Open(filepath.Join(r.Dir, name+".so"))
	if err != nil {
		return fmt.Errorf("zygote: module %s: %w", name, err)
	}
	r.plugins[name] = p
	r.loaded[name] = struct{}{}
	return nil
}

// Lookup resolves an exported symbol of a previously loaded shared-object
// module. Builtin modules have no symbols to look up.
func (r *Registry) Lookup(name, symbol string) (plugin.Symbol, error) {
	r.mu.Lock()
	p, ok := r.plugins[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("zygote: module %s has no loaded shared object", name)
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("zygote: module %s: %w", name, err)
	}
	return sym, nil
}

// Reset empties the loaded set. Already opened shared objects stay mapped in
// the process image (dlopen cannot be undone); what resets is the set a
// later request observes and re-initializes against.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = make(map[string]struct{})
}

// Loaded returns the loaded module names in sorted order
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
