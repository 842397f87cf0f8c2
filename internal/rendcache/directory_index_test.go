package rendcache

import (
	"testing"
	"time"

	"github.com/ocx/rendcache/internal/descriptor"
	"github.com/stretchr/testify/require"
)

func TestDirectoryIndex_LookupTouchesLastServed(t *testing.T) {
	di := newDirectoryIndex()
	var id [20]byte
	for i := range id {
		id[i] = 7
	}
	past := time.Now().Add(-time.Hour)
	e := newEntry([]byte("encoded-bytes"), &descriptor.Descriptor{}, past)
	di.set(id, e)

	b32 := descriptor.EncodeDescID(id)
	now := time.Now()
	res, encoded := di.lookupByDescID(b32, now)
	require.Equal(t, LookupFound, res)
	require.Equal(t, []byte("encoded-bytes"), encoded)
	require.WithinDuration(t, now, e.lastServed, time.Second)
}

func TestDirectoryIndex_Malformed(t *testing.T) {
	di := newDirectoryIndex()
	res, encoded := di.lookupByDescID("not-valid-base32", time.Now())
	require.Equal(t, LookupMalformed, res)
	require.Nil(t, encoded)
}

func TestDirectoryIndex_WellFormedButMissing(t *testing.T) {
	di := newDirectoryIndex()
	var id [20]byte
	res, encoded := di.lookupByDescID(descriptor.EncodeDescID(id), time.Now())
	require.Equal(t, LookupNotFound, res)
	require.Nil(t, encoded)
}
