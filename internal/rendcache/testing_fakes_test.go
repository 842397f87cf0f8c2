package rendcache

import (
	"time"

	"github.com/ocx/rendcache/internal/config"
	"github.com/ocx/rendcache/internal/descriptor"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type fakeRing struct {
	directory    bool
	notResp      map[[20]byte]bool
}

func newFakeRing(directory bool) *fakeRing {
	return &fakeRing{directory: directory, notResp: make(map[[20]byte]bool)}
}

func (r *fakeRing) IsDirectory() bool { return r.directory }
func (r *fakeRing) IsResponsibleFor(id [20]byte) bool {
	return !r.notResp[id]
}

type fakeStats struct{ calls []string }

func (s *fakeStats) NoteStoredMaybeNew(fp string) { s.calls = append(s.calls, fp) }

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		MaxAgeSec:           86400,
		MaxSkewSec:          172800,
		MaxIntroPoints:      10,
		SweepIntervalSec:    3600,
		ForceEvictWatermark: 0,
	}
}

func newTestCache(directory bool, now time.Time) (*Cache, *fakeClock, *fakeRing, *fakeStats) {
	clk := &fakeClock{now: now}
	ring := newFakeRing(directory)
	stats := &fakeStats{}
	c := New(testCacheConfig(), Dependencies{
		Ring:   ring,
		Stats:  stats,
		Parser: descriptor.NewTextParser(),
		Crypto: descriptor.NewDefaultCrypto(),
		Clock:  clk,
	})
	return c, clk, ring, stats
}

const fakePubKeyPEM = `-----BEGIN RSA PUBLIC KEY-----
MIGJAoGBAMZvfvsT/fPLjFo4gQkwXTwVjH5HTBIi4Dohzjr0mdw0a0HJwgsHfKEl
-----END RSA PUBLIC KEY-----
`

const fakeSigPEM = `-----BEGIN SIGNATURE-----
ZmFrZS1zaWduYXR1cmUtYnl0ZXM=
-----END SIGNATURE-----
`

func buildDescriptorBytes(descIDB32 string, ts time.Time) []byte {
	stamp := ts.UTC().Format("2006-01-02 15:04:05")
	return []byte(descriptor.DescriptorKeyword + descIDB32 + "\n" +
		"version 2\n" +
		"permanent-key\n" + fakePubKeyPEM +
		"publication-time " + stamp + "\n" +
		"signature\n" + fakeSigPEM)
}

func fixedDescID(b byte) string {
	var id [20]byte
	for i := range id {
		id[i] = b
	}
	return descriptor.EncodeDescID(id)
}

func derivedServiceID() string {
	c := descriptor.NewDefaultCrypto()
	id, err := c.DeriveServiceID(fakePubKeyPEM)
	if err != nil {
		panic(err)
	}
	return id
}
