package printer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrPrinterNotFound is returned when no printer is registered under a name.
var ErrPrinterNotFound = errors.New("printer not found")

// Registry holds the printers the service can fulfill with.
type Registry struct {
	printers map[string]Printer
	mu       sync.RWMutex
}

// NewRegistry creates an empty printer registry.
func NewRegistry() *Registry {
	return &Registry{
		printers: make(map[string]Printer),
	}
}

// Register adds a printer, replacing any printer of the same name.
func (r *Registry) Register(p Printer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printers[p.Name()] = p
}

// Get returns a printer by name.
func (r *Registry) Get(name string) (Printer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.printers[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPrinterNotFound, name)
}

// Names returns the registered printer names in ascending order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.printers))
	for name := range r.printers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
