package rendcache

import (
	"time"
	"unsafe"

	"github.com/ocx/rendcache/internal/descriptor"
)

// uploadDamp is UPLOAD_DAMP from rendcache.spec.md §6: a freshly admitted
// entry's last_served is back-dated by this much to damp upload-flooding
// attacks against a just-published service.
const uploadDamp = 1 * time.Hour

// servedCutoffStep is SERVED_CUTOFF_STEP from rendcache.spec.md §6.
const servedCutoffStep = 30 * time.Minute

// entry is the Cache Entry of rendcache.spec.md §3: the encoded wire bytes,
// the parsed structure, and the served-time used for upload-damping and
// the escalating directory sweep. An entry is owned by exactly one index
// slot at a time.
type entry struct {
	encoded    []byte
	parsed     *descriptor.Descriptor
	lastServed time.Time
}

func newEntry(encoded []byte, parsed *descriptor.Descriptor, now time.Time) *entry {
	return &entry{
		encoded:    encoded,
		parsed:     parsed,
		lastServed: now.Add(-uploadDamp),
	}
}

func (e *entry) length() int { return len(e.encoded) }

// charge is the accountant's per-entry debit/credit: sizeof(Entry) +
// len(encoded) + sizeof(parsed). Using unsafe.Sizeof on the struct shells
// (rather than walking the introduction-node slice or key strings) is what
// makes this the coarse, documented-skew approximation rendcache.spec.md
// §3/§9 calls for — slice and string headers are counted, their backing
// storage is not.
func (e *entry) charge() uint64 {
	const entryShell = uint64(unsafe.Sizeof(entry{}))
	const parsedShell = uint64(unsafe.Sizeof(descriptor.Descriptor{}))
	return entryShell + uint64(e.length()) + parsedShell
}

func (e *entry) touch(now time.Time) { e.lastServed = now }
