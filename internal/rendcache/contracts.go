package rendcache

import (
	"time"

	"github.com/ocx/rendcache/internal/descriptor"
)

// Clock is the wall-clock collaborator of rendcache.spec.md §6. Tests
// supply a fixed or steppable clock; production wires time.Now.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RingView is the distributed-hash-ring collaborator of rendcache.spec.md
// §6: "am I a directory?" and "am I responsible for this descriptor id?".
type RingView interface {
	IsDirectory() bool
	IsResponsibleFor(descID [20]byte) bool
}

// StatsSink is the statistics collaborator of rendcache.spec.md §6.
type StatsSink interface {
	NoteStoredMaybeNew(publicKeyFingerprint string)
}

// Parser is the wire-format collaborator of rendcache.spec.md §6.
type Parser interface {
	Parse(buf []byte) (*descriptor.ParseResult, error)
	ParseIntroPoints(d *descriptor.Descriptor, blob []byte) (int, error)
}

// Crypto is the cryptographic collaborator of rendcache.spec.md §6.
type Crypto interface {
	DeriveServiceID(publicKeyPEM string) (string, error)
	DecryptIntroPoints(cookie [16]byte, blob []byte) ([]byte, error)
}
