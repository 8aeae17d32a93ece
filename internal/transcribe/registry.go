package transcribe

import "sync"

// Registry memoizes expensive one-time provider initialization such as
// backend availability probes. Results live for the process lifetime and
// are read-mostly after first use. Concurrent first access is safe: the
// probe for a given name runs exactly once.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	once sync.Once
	ok   bool
}

// NewRegistry creates an empty Registry. One instance should be created
// at process bootstrap and shared by all pipeline runs.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Once runs probe at most once per name and returns its cached result on
// every subsequent call.
func (r *Registry) Once(name string, probe func() bool) bool {
	r.mu.Lock()
	e, found := r.entries[name]
	if !found {
		e = &registryEntry{}
		r.entries[name] = e
	}
	r.mu.Unlock()

	e.once.Do(func() { e.ok = probe() })
	return e.ok
}
