// Package instance holds the Registry that maps an integer instanceNum to
// its own Coordinator, so a process can drive several independent mtcore
// engines (e.g. several logged-in accounts) without any code duplicated
// per key (§9 DESIGN NOTES "ownership-holding container keyed by integer;
// never duplicate code per key"). The shape mirrors am's single-instance
// global-with-mutex pattern, generalized from one fixed global to a
// lazily-populated map keyed by instanceNum.
package instance

import (
	"sync"

	"github.com/teranos/mtcore/engine"
)

// Factory builds a fresh Coordinator for a newly seen instanceNum. The
// caller supplies it so the registry stays decoupled from how a
// Coordinator's Delegate/datacenters get wired up.
type Factory func(instanceNum int32) *engine.Coordinator

// Registry lazily creates and holds one Coordinator per instanceNum.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	byNum   map[int32]*engine.Coordinator
}

// New returns a Registry that uses factory to build a Coordinator the
// first time a given instanceNum is requested.
func New(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		byNum:   make(map[int32]*engine.Coordinator),
	}
}

// Get returns the Coordinator for instanceNum, creating it via the
// registry's Factory on first access.
func (r *Registry) Get(instanceNum int32) *engine.Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byNum[instanceNum]; ok {
		return c
	}
	c := r.factory(instanceNum)
	r.byNum[instanceNum] = c
	return c
}

// Remove drops instanceNum's Coordinator from the registry, for an
// instance that has been logged out or torn down. It does not stop the
// Coordinator's loop; the caller is expected to have already done so.
func (r *Registry) Remove(instanceNum int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byNum, instanceNum)
}

// Instances returns every instanceNum currently known to the registry.
func (r *Registry) Instances() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int32, 0, len(r.byNum))
	for n := range r.byNum {
		out = append(out, n)
	}
	return out
}

// Len reports how many instances are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byNum)
}
