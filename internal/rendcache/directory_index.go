package rendcache

import (
	"sync"
	"time"

	"github.com/ocx/rendcache/internal/descriptor"
)

// directoryIndex is the Directory Index of rendcache.spec.md §3/§4.D: a
// mapping from the raw 20-byte descriptor-id digest to an entry.
type directoryIndex struct {
	mu      sync.RWMutex
	entries map[[descriptor.DescIDLen]byte]*entry
}

func newDirectoryIndex() *directoryIndex {
	return &directoryIndex{entries: make(map[[descriptor.DescIDLen]byte]*entry)}
}

// lookupByDescID implements rendcache.spec.md §4.D. On a hit it touches
// last_served — the sole write performed by a read path, which is what
// makes the sweeper's escalating served_cutoff meaningful.
func (di *directoryIndex) lookupByDescID(descIDBase32 string, now time.Time) (LookupResult, []byte) {
	id, err := descriptor.DecodeDescID(descIDBase32)
	if err != nil {
		return LookupMalformed, nil
	}

	di.mu.Lock()
	defer di.mu.Unlock()
	e, ok := di.entries[id]
	if !ok {
		return LookupNotFound, nil
	}
	e.touch(now)
	return LookupFound, e.encoded
}

func (di *directoryIndex) get(id [descriptor.DescIDLen]byte) (*entry, bool) {
	di.mu.RLock()
	defer di.mu.RUnlock()
	e, ok := di.entries[id]
	return e, ok
}

func (di *directoryIndex) set(id [descriptor.DescIDLen]byte, e *entry) {
	di.mu.Lock()
	defer di.mu.Unlock()
	di.entries[id] = e
}

func (di *directoryIndex) delete(id [descriptor.DescIDLen]byte) {
	di.mu.Lock()
	defer di.mu.Unlock()
	delete(di.entries, id)
}

func (di *directoryIndex) snapshot() map[[descriptor.DescIDLen]byte]*entry {
	di.mu.RLock()
	defer di.mu.RUnlock()
	out := make(map[[descriptor.DescIDLen]byte]*entry, len(di.entries))
	for k, v := range di.entries {
		out[k] = v
	}
	return out
}

func (di *directoryIndex) len() int {
	di.mu.RLock()
	defer di.mu.RUnlock()
	return len(di.entries)
}

func (di *directoryIndex) reset() map[[descriptor.DescIDLen]byte]*entry {
	di.mu.Lock()
	defer di.mu.Unlock()
	old := di.entries
	di.entries = make(map[[descriptor.DescIDLen]byte]*entry)
	return old
}
