package rendcache

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/ocx/rendcache/internal/descriptor"
)

// clientIndex is the Client Index of rendcache.spec.md §3/§4.C: a
// case-insensitive mapping from "<version><service_id>" to an entry.
type clientIndex struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
}

func newClientIndex(logger *slog.Logger) *clientIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &clientIndex{entries: make(map[string]*entry), logger: logger}
}

// lookup implements rendcache.spec.md §4.C. Version 0 is deprecated: it
// logs and returns NotFound without ever probing the map.
func (ci *clientIndex) lookup(query string, version int) (LookupResult, *entry) {
	if !descriptor.ValidServiceID(query) {
		return LookupInvalidQuery, nil
	}
	if version == 0 {
		ci.logger.Warn("rendcache: client lookup using deprecated version 0", "query", query)
		return LookupNotFound, nil
	}

	key := descriptor.NormalizeServiceKey(version, query)
	ci.mu.RLock()
	e, ok := ci.entries[key]
	ci.mu.RUnlock()
	if !ok {
		return LookupNotFound, nil
	}
	return LookupFound, e
}

func (ci *clientIndex) get(key string) (*entry, bool) {
	key = strings.ToLower(key)
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	e, ok := ci.entries[key]
	return e, ok
}

func (ci *clientIndex) set(key string, e *entry) {
	key = strings.ToLower(key)
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.entries[key] = e
}

func (ci *clientIndex) delete(key string) {
	key = strings.ToLower(key)
	ci.mu.Lock()
	defer ci.mu.Unlock()
	delete(ci.entries, key)
}

// snapshot returns the current (key, entry) pairs for sweeping. Deleting
// the current element mid-range is safe in Go; this copy exists so the
// sweeper's removal decisions don't need to interleave with map iteration
// invalidation rules across the accountant debit.
func (ci *clientIndex) snapshot() map[string]*entry {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	out := make(map[string]*entry, len(ci.entries))
	for k, v := range ci.entries {
		out[k] = v
	}
	return out
}

func (ci *clientIndex) len() int {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return len(ci.entries)
}

// reset replaces the index with an empty one and returns the entries it
// held, for the caller (purge) to debit from the accountant.
func (ci *clientIndex) reset() map[string]*entry {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	old := ci.entries
	ci.entries = make(map[string]*entry)
	return old
}
