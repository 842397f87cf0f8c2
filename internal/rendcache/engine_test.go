package rendcache

import (
	"encoding/pem"
	"testing"
	"time"

	"github.com/ocx/rendcache/internal/descriptor"
	"github.com/stretchr/testify/require"
)

func buildDescriptorWithIntro(descIDB32 string, ts time.Time, introPlain string) []byte {
	stamp := ts.UTC().Format("2006-01-02 15:04:05")
	introPEM := string(pem.EncodeToMemory(&pem.Block{Type: "INTRODUCTION POINTS", Bytes: []byte(introPlain)}))
	return []byte(descriptor.DescriptorKeyword + descIDB32 + "\n" +
		"version 2\n" +
		"permanent-key\n" + fakePubKeyPEM +
		"publication-time " + stamp + "\n" +
		"introduction-points\n" + introPEM +
		"signature\n" + fakeSigPEM)
}

const oneIntroPoint = "introduction-point AAAAAAAAAAAAAAAAAAAA\nip-address 10.0.0.1\nonion-port 9001\n"

func twoIntroPoints() string {
	out := ""
	for i := 0; i < 2; i++ {
		out += "introduction-point AAAAAAAAAAAAAAAAAAA" + string(rune('1'+i)) + "\nip-address 10.0.0.1\nonion-port 9001\n"
	}
	return out
}

func TestEngine_StoreAsClient_WithIntroPointsAdmits(t *testing.T) {
	c, _, _, _ := newTestCache(false, baseTime)
	id := fixedDescID(60)
	blob := buildDescriptorWithIntro(id, baseTime, oneIntroPoint)

	status, e := c.StoreAsClient(blob, id, descriptor.ServiceQuery{})
	require.Equal(t, OK, status)
	require.Len(t, e.Parsed.IntroNodes, 1)
}

func TestEngine_StoreAsClient_DeclaredButUnparseableIntroPointsRejected(t *testing.T) {
	c, _, _, _ := newTestCache(false, baseTime)
	id := fixedDescID(61)
	// A non-empty encrypted blob that, left undecrypted (no auth/cookie
	// supplied), is handed straight to ParseIntroPoints: it does parse
	// (the format tolerates garbage lines) but yields zero nodes, which
	// rendcache.spec.md §4.E.2 step 6 treats as fatal because the blob
	// was declared non-empty.
	blob := buildDescriptorWithIntro(id, baseTime, "garbage-no-keyword-lines-here\n")

	status, e := c.StoreAsClient(blob, id, descriptor.ServiceQuery{})
	require.Equal(t, BadDescriptor, status)
	require.Nil(t, e)
}

func TestEngine_StoreAsClient_EmptyIntroBlobIsNotFatal(t *testing.T) {
	c, _, _, _ := newTestCache(false, baseTime)
	id := fixedDescID(62)
	blob := buildDescriptorBytes(id, baseTime) // no introduction-points section at all

	status, e := c.StoreAsClient(blob, id, descriptor.ServiceQuery{})
	require.Equal(t, OK, status)
	require.NotNil(t, e.Parsed.IntroNodes)
	require.Len(t, e.Parsed.IntroNodes, 0)
}

func TestEngine_StoreAsClient_TooManyIntroPointsRejected(t *testing.T) {
	c, _, _, _ := newTestCache(false, baseTime)
	id := fixedDescID(63)
	cfg := testCacheConfig()
	cfg.MaxIntroPoints = 1
	c2 := New(cfg, Dependencies{
		Ring:   newFakeRing(false),
		Parser: descriptor.NewTextParser(),
		Crypto: descriptor.NewDefaultCrypto(),
		Clock:  &fakeClock{now: baseTime},
	})
	blob := buildDescriptorWithIntro(id, baseTime, twoIntroPoints())

	status, e := c2.StoreAsClient(blob, id, descriptor.ServiceQuery{})
	require.Equal(t, BadDescriptor, status)
	require.Nil(t, e)
	_ = c
}

func TestEngine_StoreAsClient_IdempotentTieKeepsIncumbent(t *testing.T) {
	c, _, _, _ := newTestCache(false, baseTime)
	id := fixedDescID(64)
	blob := buildDescriptorBytes(id, baseTime)

	status1, e1 := c.StoreAsClient(blob, id, descriptor.ServiceQuery{})
	require.Equal(t, OK, status1)

	status2, e2 := c.StoreAsClient(blob, id, descriptor.ServiceQuery{})
	require.Equal(t, OK, status2)
	require.Equal(t, e1.Encoded, e2.Encoded)
}

func TestEngine_StoreAsDirectory_IdenticalDuplicateAtSameTimestampNoOp(t *testing.T) {
	c, _, _, stats := newTestCache(true, baseTime)
	id := fixedDescID(65)
	blob := buildDescriptorBytes(id, baseTime)

	require.Equal(t, OK, c.StoreAsDirectory(blob))
	firstCalls := len(stats.calls)

	require.Equal(t, OK, c.StoreAsDirectory(blob))
	require.Equal(t, firstCalls, len(stats.calls), "an identical duplicate must not re-notify the stats sink")
}

func TestEngine_StoreAsDirectory_SameTimestampDifferentBytesReplaces(t *testing.T) {
	c, _, _, _ := newTestCache(true, baseTime)
	id := fixedDescID(66)
	blobA := buildDescriptorWithIntro(id, baseTime, oneIntroPoint)
	blobB := buildDescriptorWithIntro(id, baseTime, twoIntroPoints())

	require.Equal(t, OK, c.StoreAsDirectory(blobA))
	require.Equal(t, OK, c.StoreAsDirectory(blobB))

	_, encoded := c.LookupByDescID(id)
	require.Equal(t, blobB, encoded, "same-timestamp, byte-different descriptors replace the incumbent")
}

func TestEngine_StoreAsClient_InvalidExpectedDescID(t *testing.T) {
	c, _, _, _ := newTestCache(false, baseTime)
	id := fixedDescID(67)
	blob := buildDescriptorBytes(id, baseTime)

	status, e := c.StoreAsClient(blob, "not-valid-base32-at-all!!", descriptor.ServiceQuery{})
	require.Equal(t, BadDescriptor, status)
	require.Nil(t, e)
}

func TestEngine_StoreAsClient_UnparseableBlobRejected(t *testing.T) {
	c, _, _, _ := newTestCache(false, baseTime)
	id := fixedDescID(68)
	status, e := c.StoreAsClient([]byte("garbage"), id, descriptor.ServiceQuery{})
	require.Equal(t, BadDescriptor, status)
	require.Nil(t, e)
}
