package rendcache

import (
	"log/slog"
	"time"

	"github.com/ocx/rendcache/internal/config"
	"github.com/ocx/rendcache/internal/descriptor"
)

// sweeper is the periodic cleanup component of rendcache.spec.md §4.F.
type sweeper struct {
	clientIdx *clientIndex
	dirIdx    *directoryIndex
	acct      *accountant
	ring      RingView
	cfg       config.CacheConfig
	logger    *slog.Logger
}

// clean performs the age-only sweep from rendcache.spec.md §4.F, applied
// to both indexes (see DESIGN.md for the resolved open question: the spec
// text describes this as applicable to both roles even though the
// upstream C implementation only ever calls it on the client index).
func (s *sweeper) clean(now time.Time) (clientRemoved, directoryRemoved int) {
	cutoff := now.Add(-(s.cfg.MaxAge() + s.cfg.MaxSkew()))

	for key, e := range s.clientIdx.snapshot() {
		if e.parsed.Timestamp.Before(cutoff) {
			s.clientIdx.delete(key)
			s.acct.sub(e.charge())
			clientRemoved++
		}
	}
	for id, e := range s.dirIdx.snapshot() {
		if e.parsed.Timestamp.Before(cutoff) {
			s.dirIdx.delete(id)
			s.acct.sub(e.charge())
			directoryRemoved++
		}
	}
	return clientRemoved, directoryRemoved
}

// cleanDirectory performs the escalating, quota-driven sweep of
// rendcache.spec.md §4.F. It evicts stale, over-served, or
// no-longer-our-responsibility entries from the directory index,
// advancing served_cutoff by SERVED_CUTOFF_STEP each pass until either
// forceRemoveBytes has been met or served_cutoff would exceed now (which
// would start evicting entries that have simply never been served).
func (s *sweeper) cleanDirectory(now time.Time, forceRemoveBytes uint64) (bytesRemoved uint64, entriesRemoved int) {
	cutoff := now.Add(-(s.cfg.MaxAge() + s.cfg.MaxSkew()))
	servedCutoff := cutoff

	for {
		passBytes, passCount := s.sweepDirectoryPass(cutoff, servedCutoff)
		bytesRemoved += passBytes
		entriesRemoved += passCount

		if bytesRemoved >= forceRemoveBytes {
			break
		}
		servedCutoff = servedCutoff.Add(servedCutoffStep)
		if servedCutoff.After(now) {
			break
		}
	}
	return bytesRemoved, entriesRemoved
}

func (s *sweeper) sweepDirectoryPass(cutoff, servedCutoff time.Time) (bytesRemoved uint64, entriesRemoved int) {
	for id, e := range s.dirIdx.snapshot() {
		stale := e.parsed.Timestamp.Before(cutoff)
		overServed := e.lastServed.Before(servedCutoff)
		notOurs := !s.ring.IsResponsibleFor(id)

		if stale || overServed || notOurs {
			charge := e.charge()
			s.dirIdx.delete(id)
			s.acct.sub(charge)
			bytesRemoved += charge
			entriesRemoved++
			s.logger.Debug("rendcache: directory sweep evicted entry",
				"desc_id", descriptor.EncodeDescID(id), "stale", stale, "over_served", overServed, "not_responsible", notOurs)
		}
	}
	return bytesRemoved, entriesRemoved
}
