// Package rendcache implements the hidden-service descriptor cache:
// two role-specific indexes (client and directory) over a shared entry
// shape, a saturating byte accountant, an admission/replacement engine,
// and a periodic sweeper. See rendcache.spec.md for the full contract.
package rendcache

import (
	"log/slog"
	"time"

	"github.com/ocx/rendcache/internal/config"
	"github.com/ocx/rendcache/internal/descriptor"
)

// Entry is the caller-visible view of a cached descriptor. The cache
// itself keeps its own unexported entry type so replace-in-place writes
// (accountant debit, payload swap, accountant credit) stay internal;
// Entry is a read-only snapshot handed out on lookups and admissions.
type Entry struct {
	Encoded    []byte
	Parsed     *descriptor.Descriptor
	LastServed time.Time
}

func (e *entry) export() *Entry {
	if e == nil {
		return nil
	}
	return &Entry{Encoded: e.encoded, Parsed: e.parsed, LastServed: e.lastServed}
}

// Cache is the Lifecycle component of rendcache.spec.md §4.G plus the
// top-level facade over every other component: it is the single type a
// caller outside this package constructs and drives.
type Cache struct {
	clientIdx *clientIndex
	dirIdx    *directoryIndex
	acct      *accountant

	ring   RingView
	stats  StatsSink
	parser Parser
	crypto Crypto
	clock  Clock
	cfg    config.CacheConfig
	logger *slog.Logger

	engine  *engine
	sweeper *sweeper
}

// Dependencies bundles the external collaborators rendcache.spec.md §6
// lists as out of this module's scope, so New's signature states the
// contract explicitly instead of threading six separate parameters.
type Dependencies struct {
	Ring   RingView
	Stats  StatsSink
	Parser Parser
	Crypto Crypto
	Clock  Clock
	Logger *slog.Logger
}

// New performs the init lifecycle operation of rendcache.spec.md §4.G:
// both indexes start empty and the accountant starts at zero.
func New(cfg config.CacheConfig, deps Dependencies) *Cache {
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Stats == nil {
		deps.Stats = noOpStats{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	c := &Cache{
		clientIdx: newClientIndex(deps.Logger),
		dirIdx:    newDirectoryIndex(),
		acct:      newAccountant(deps.Logger),
		ring:      deps.Ring,
		stats:     deps.Stats,
		parser:    deps.Parser,
		crypto:    deps.Crypto,
		clock:     deps.Clock,
		cfg:       cfg,
		logger:    deps.Logger,
	}
	c.engine = &engine{
		clientIdx: c.clientIdx, dirIdx: c.dirIdx, acct: c.acct,
		ring: c.ring, stats: c.stats, parser: c.parser, crypto: c.crypto,
		clock: c.clock, cfg: cfg, logger: deps.Logger,
	}
	c.sweeper = &sweeper{
		clientIdx: c.clientIdx, dirIdx: c.dirIdx, acct: c.acct,
		ring: c.ring, cfg: cfg, logger: deps.Logger,
	}
	return c
}

type noOpStats struct{}

func (noOpStats) NoteStoredMaybeNew(string) {}

// Lookup implements rendcache.spec.md §4.C.
func (c *Cache) Lookup(query string, version int) (LookupResult, *Entry) {
	res, e := c.clientIdx.lookup(query, version)
	return res, e.export()
}

// LookupByDescID implements rendcache.spec.md §4.D.
func (c *Cache) LookupByDescID(descIDBase32 string) (LookupResult, []byte) {
	return c.dirIdx.lookupByDescID(descIDBase32, c.clock.Now())
}

// StoreAsDirectory implements rendcache.spec.md §4.E.1.
func (c *Cache) StoreAsDirectory(blob []byte) Status {
	return c.engine.storeAsDirectory(blob)
}

// StoreAsClient implements rendcache.spec.md §4.E.2.
func (c *Cache) StoreAsClient(blob []byte, expectedDescIDBase32 string, query descriptor.ServiceQuery) (Status, *Entry) {
	status, e := c.engine.storeAsClient(blob, expectedDescIDBase32, query)
	return status, e.export()
}

// Clean implements the age-only sweep of rendcache.spec.md §4.F.
func (c *Cache) Clean(now time.Time) (clientRemoved, directoryRemoved int) {
	return c.sweeper.clean(now)
}

// CleanDirectory implements the escalating, quota-driven sweep of
// rendcache.spec.md §4.F.
func (c *Cache) CleanDirectory(now time.Time, forceRemoveBytes uint64) (bytesRemoved uint64, entriesRemoved int) {
	return c.sweeper.cleanDirectory(now, forceRemoveBytes)
}

// Purge implements rendcache.spec.md §4.G: only the client index is
// dropped. The directory role preserves replication-received descriptors
// across operator-triggered client cache clears.
func (c *Cache) Purge() {
	old := c.clientIdx.reset()
	for _, e := range old {
		c.acct.sub(e.charge())
	}
}

// FreeAll implements rendcache.spec.md §4.G: both indexes are dropped and
// the accountant is zeroed.
func (c *Cache) FreeAll() {
	c.clientIdx.reset()
	c.dirIdx.reset()
	c.acct.reset()
}

// TotalBytes exposes the accountant's current charge.
func (c *Cache) TotalBytes() uint64 {
	return c.acct.get()
}

// ClientEntryCount and DirectoryEntryCount are operational introspection
// helpers for the ops API and tests; they are not part of
// rendcache.spec.md's exposed contract surface but reveal nothing the
// contract already doesn't (index sizes, not contents).
func (c *Cache) ClientEntryCount() int    { return c.clientIdx.len() }
func (c *Cache) DirectoryEntryCount() int { return c.dirIdx.len() }
