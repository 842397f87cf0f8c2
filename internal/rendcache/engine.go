package rendcache

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/ocx/rendcache/internal/config"
	"github.com/ocx/rendcache/internal/descriptor"
)

// engine is the Admission & Replacement Engine of rendcache.spec.md §4.E:
// the two deliberately-separate entry points for the directory and client
// roles, sharing the allocate-or-replace discipline but enforcing
// different contracts around them.
type engine struct {
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
}

// storeAsDirectory implements rendcache.spec.md §4.E.1. blob may contain
// one or more concatenated descriptors; per-descriptor failures are
// logged and the batch continues. Only an empty batch is BAD_DESCRIPTOR.
func (e *engine) storeAsDirectory(blob []byte) Status {
	if !e.ring.IsDirectory() {
		return NotADirectory
	}

	now := e.clock.Now()
	cursor := blob
	count := 0

	for len(cursor) > 0 {
		res, err := e.parser.Parse(cursor)
		if err != nil {
			if count == 0 {
				return BadDescriptor
			}
			e.logger.Warn("rendcache: directory batch descriptor failed to parse, stopping batch", "error", err)
			break
		}
		count++
		encoded := cursor[:res.EncodedSize]
		e.admitDirectory(res, encoded, now)

		if !bytes.HasPrefix(res.Next, []byte(descriptor.DescriptorKeyword)) {
			break
		}
		cursor = res.Next
	}

	if count == 0 {
		return BadDescriptor
	}
	return OK
}

func (e *engine) admitDirectory(res *descriptor.ParseResult, encoded []byte, now time.Time) {
	parsed := res.Parsed
	descID := res.DescID
	// The encrypted introduction-point blob is discarded: a directory
	// neither decrypts nor validates it (rendcache.spec.md §4.E.1 step 3).

	if !e.ring.IsResponsibleFor(descID) {
		e.logger.Debug("rendcache: directory store skipped, not responsible", "desc_id", descriptor.EncodeDescID(descID))
		return
	}

	maxAge, maxSkew := e.cfg.MaxAge(), e.cfg.MaxSkew()
	if !parsed.Timestamp.After(now.Add(-(maxAge + maxSkew))) {
		e.logger.Debug("rendcache: directory store skipped, stale", "desc_id", descriptor.EncodeDescID(descID))
		return
	}
	if parsed.Timestamp.After(now.Add(maxSkew)) {
		e.logger.Debug("rendcache: directory store skipped, future skew", "desc_id", descriptor.EncodeDescID(descID))
		return
	}

	existing, exists := e.dirIdx.get(descID)
	if exists {
		if existing.parsed.Timestamp.After(parsed.Timestamp) {
			e.logger.Debug("rendcache: directory store skipped, dominated by incumbent", "desc_id", descriptor.EncodeDescID(descID))
			return
		}
		if existing.parsed.Timestamp.Equal(parsed.Timestamp) && bytes.Equal(existing.encoded, encoded) {
			e.logger.Debug("rendcache: directory store skipped, identical duplicate", "desc_id", descriptor.EncodeDescID(descID))
			return
		}
		e.acct.sub(existing.charge())
		existing.parsed = parsed
		existing.encoded = append([]byte(nil), encoded...)
		e.acct.add(existing.charge())
	} else {
		ne := newEntry(append([]byte(nil), encoded...), parsed, now)
		e.dirIdx.set(descID, ne)
		e.acct.add(ne.charge())
	}

	if e.stats != nil {
		e.stats.NoteStoredMaybeNew(e.fingerprint(parsed))
	}
}

func (e *engine) fingerprint(d *descriptor.Descriptor) string {
	if id, err := e.crypto.DeriveServiceID(d.PublicKeyPEM); err == nil {
		return id
	}
	return d.PublicKeyPEM
}

// storeAsClient implements rendcache.spec.md §4.E.2: exactly one expected
// descriptor, surfaced failures, idempotent "already have something at
// least as good" handling.
func (e *engine) storeAsClient(blob []byte, expectedDescIDB32 string, query descriptor.ServiceQuery) (Status, *entry) {
	expectedID, err := descriptor.DecodeDescID(expectedDescIDB32)
	if err != nil {
		return BadDescriptor, nil
	}

	res, err := e.parser.Parse(blob)
	if err != nil {
		return BadDescriptor, nil
	}

	serviceID, err := e.crypto.DeriveServiceID(res.Parsed.PublicKeyPEM)
	if err != nil {
		return BadDescriptor, nil
	}

	if query.OnionAddress != "" && !equalFoldASCII(query.OnionAddress, serviceID) {
		return BadDescriptor, nil
	}
	if res.DescID != expectedID {
		return BadDescriptor, nil
	}

	if status := e.resolveIntroPoints(res, query); status != OK {
		return status, nil
	}

	maxAge, maxSkew := e.cfg.MaxAge(), e.cfg.MaxSkew()
	now := e.clock.Now()
	if !res.Parsed.Timestamp.After(now.Add(-(maxAge + maxSkew))) {
		return BadDescriptor, nil
	}
	if res.Parsed.Timestamp.After(now.Add(maxSkew)) {
		return BadDescriptor, nil
	}

	key := descriptor.NormalizeServiceKey(2, serviceID)
	encoded := append([]byte(nil), blob[:res.EncodedSize]...)

	existing, ok := e.clientIdx.get(key)
	if ok && !existing.parsed.Timestamp.Before(res.Parsed.Timestamp) {
		// Incumbent is at least as fresh: idempotent OK, no replacement.
		return OK, existing
	}
	if ok {
		e.acct.sub(existing.charge())
		existing.parsed = res.Parsed
		existing.encoded = encoded
		e.acct.add(existing.charge())
		return OK, existing
	}

	ne := newEntry(encoded, res.Parsed, now)
	e.clientIdx.set(key, ne)
	e.acct.add(ne.charge())
	return OK, ne
}

func (e *engine) resolveIntroPoints(res *descriptor.ParseResult, query descriptor.ServiceQuery) Status {
	blob := res.IntroEncrypted
	wasEmpty := len(blob) == 0

	plain := blob
	if !wasEmpty && query.AuthType != descriptor.AuthTypeNone && query.HasCookie && query.DescriptorCookie != ([16]byte{}) {
		decrypted, err := e.crypto.DecryptIntroPoints(query.DescriptorCookie, blob)
		if err != nil {
			e.logger.Warn("rendcache: intro point decryption failed, proceeding with encrypted blob", "error", err)
		} else {
			plain = decrypted
		}
	}

	count, err := e.parser.ParseIntroPoints(res.Parsed, plain)
	if err != nil {
		return BadDescriptor
	}
	if !wasEmpty && count <= 0 {
		return BadDescriptor
	}
	if count > e.cfg.MaxIntroPoints {
		return BadDescriptor
	}
	return OK
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
