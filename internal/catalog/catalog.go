// Package catalog registers the operations the daemon can run and supplies
// their delivery metadata.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

// ErrDuplicate is returned when an operation name is registered twice.
var ErrDuplicate = errors.New("operation already registered")

// Catalog maps "manager.method" names to operations. It implements
// jobs.MetadataLookup.
type Catalog struct {
	mu        sync.RWMutex
	ops       map[string]jobs.Operation
	overrides map[string]jobs.Metadata
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		ops:       make(map[string]jobs.Operation),
		overrides: make(map[string]jobs.Metadata),
	}
}

// Register adds ops to the catalog.
func (c *Catalog) Register(ops ...jobs.Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, op := range ops {
		name := op.Descriptor().Name()
		if _, exists := c.ops[name]; exists {
			return fmt.Errorf("%s: %w", name, ErrDuplicate)
		}
		c.ops[name] = op
	}
	return nil
}

// Override replaces the delivery metadata of the named operation, as
// configured under ui.operations.
func (c *Catalog) Override(name string, meta jobs.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[name] = meta
}

// Get returns the named operation.
func (c *Catalog) Get(name string) (jobs.Operation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.ops[name]
	if !ok {
		return nil, fmt.Errorf("operation %q: %w", name, jobs.ErrUnknownJob)
	}
	return op, nil
}

// Names lists the registered operation names in order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.ops))
	for name := range c.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the descriptors of every registered operation, by name.
func (c *Catalog) Descriptors() []jobs.Descriptor {
	names := c.Names()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]jobs.Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, c.ops[name].Descriptor())
	}
	return out
}

// Lookup implements jobs.MetadataLookup: overrides first, then the
// descriptor's own metadata.
func (c *Catalog) Lookup(manager, method string) (jobs.Metadata, bool) {
	name := jobs.Descriptor{Manager: manager, Method: method}.Name()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if meta, ok := c.overrides[name]; ok {
		return meta, true
	}
	op, ok := c.ops[name]
	if !ok {
		return jobs.Metadata{}, false
	}
	meta := op.Descriptor().Meta
	return meta, meta.HasThreshold() || meta.Message != ""
}
