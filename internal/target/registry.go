// Package target holds the registry mapping a target-triple string to the
// BackendTarget that compiles an IR module for it. Targets
// register themselves from an init function in their own package; the CLI
// only ever talks to this registry.
package target

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/cminor-lang/cc64/internal/ir"
)

// BackendTarget is one compilation target: it runs the full backend pipeline
// over an IR module and writes assembly text to out.
type BackendTarget interface {
	RunPipeline(m *ir.Module, out io.Writer) error
}

var (
	mu        sync.Mutex
	factories = make(map[string]func() BackendTarget)
	instances = make(map[string]BackendTarget)
)

// Register installs a factory under the given triple key. Later
// registrations under the same key win, matching the original registry's
// map-assignment semantics.
func Register(name string, factory func() BackendTarget) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Get returns the BackendTarget instance for triple, instantiating it on
// first use. An unknown triple is a recoverable CLI-level error,
// not a panic.
func Get(triple string) (BackendTarget, error) {
	mu.Lock()
	defer mu.Unlock()
	if t, ok := instances[triple]; ok {
		return t, nil
	}
	factory, ok := factories[triple]
	if !ok {
		return nil, fmt.Errorf("unknown target %q (known: %v)", triple, listLocked())
	}
	t := factory()
	instances[triple] = t
	return t, nil
}

// List returns every registered triple key, sorted.
func List() []string {
	mu.Lock()
	defer mu.Unlock()
	return listLocked()
}

func listLocked() []string {
	keys := make([]string, 0, len(factories))
	for k := range factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
