// Package ring implements the distributed-hash-ring predicates
// rendcache.spec.md §6 lists as external collaborators: "am I currently a
// directory?" and "am I responsible for this descriptor id?". It is backed
// by rendezvous (highest random weight) hashing so that ring membership
// changes remap the minimum possible set of descriptor ids.
package ring

import (
	"encoding/hex"
	"sync"
	"sync/atomic"

	"github.com/dgryski/go-rendezvous"
)

// Ring is the hash-ring view this process holds of itself and its peers.
type Ring struct {
	mu   sync.RWMutex
	rdv  *rendezvous.Rendezvous
	self string

	isDirectory atomic.Bool
}

// New builds a ring containing self plus any known peers. The hash
// function mirrors groupcache/consistent-hash style FNV-ish mixing; any
// stable 64-bit hash works for rendezvous hashing.
func New(self string, peers []string, isDirectory bool) *Ring {
	nodes := append([]string{self}, peers...)
	r := &Ring{
		self: self,
		rdv:  rendezvous.New(nodes, hashNode),
	}
	r.isDirectory.Store(isDirectory)
	return r
}

// IsDirectory reports whether this node currently acts as a directory for
// the hidden-service descriptor system.
func (r *Ring) IsDirectory() bool {
	return r.isDirectory.Load()
}

// SetDirectory flips this node's directory-role flag, e.g. on a consensus
// change that adds or removes the Directory flag for this relay.
func (r *Ring) SetDirectory(v bool) {
	r.isDirectory.Store(v)
}

// IsResponsibleFor reports whether this node is the rendezvous-hash owner
// of descID among the current ring membership.
func (r *Ring) IsResponsibleFor(descID [20]byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rdv.Lookup(hex.EncodeToString(descID[:])) == r.self
}

// AddPeer and RemovePeer update ring membership as the consensus view of
// the network changes.
func (r *Ring) AddPeer(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rdv.Add(node)
}

func (r *Ring) RemovePeer(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rdv.Remove(node)
}

func hashNode(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	var h uint64 = offset64
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
