package descriptor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testPubKeyPEM = `-----BEGIN RSA PUBLIC KEY-----
MIGJAoGBAMZvfvsT/fPLjFo4gQkwXTwVjH5HTBIi4Dohzjr0mdw0a0HJwgsHfKEl
-----END RSA PUBLIC KEY-----
`

const testSigPEM = `-----BEGIN SIGNATURE-----
ZmFrZS1zaWduYXR1cmUtYnl0ZXM=
-----END SIGNATURE-----
`

func buildDescriptor(t *testing.T, descID, ts string) []byte {
	t.Helper()
	return []byte(DescriptorKeyword + descID + "\n" +
		"version 2\n" +
		"permanent-key\n" + testPubKeyPEM +
		"publication-time " + ts + "\n" +
		"signature\n" + testSigPEM)
}

func TestTextParser_ParseSingleDescriptor(t *testing.T) {
	descID := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	buf := buildDescriptor(t, descID, "2026-08-01 00:00:00")

	p := NewTextParser()
	res, err := p.Parse(buf)
	require.NoError(t, err)
	require.NotNil(t, res.Parsed)
	require.Equal(t, 2, res.Parsed.Version)
	require.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), res.Parsed.Timestamp)
	require.Empty(t, res.Next)
	require.Equal(t, len(buf), res.EncodedSize)
}

func TestTextParser_Parse_ConcatenatedBatch(t *testing.T) {
	id1 := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	id2 := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	buf := append(buildDescriptor(t, id1, "2026-08-01 00:00:00"), buildDescriptor(t, id2, "2026-08-01 00:00:00")...)

	p := NewTextParser()
	res, err := p.Parse(buf)
	require.NoError(t, err)
	require.NotEmpty(t, res.Next)
	require.True(t, len(res.Next) > 0)

	res2, err := p.Parse(res.Next)
	require.NoError(t, err)
	require.Equal(t, id2, EncodeDescID(res2.DescID))
}

func TestTextParser_Parse_MalformedRejected(t *testing.T) {
	p := NewTextParser()
	_, err := p.Parse([]byte("not-a-descriptor\n"))
	require.Error(t, err)
}

func TestTextParser_ParseIntroPoints(t *testing.T) {
	blob := []byte("introduction-point aaaabbbbccccdddd\n" +
		"ip-address 10.0.0.1\n" +
		"onion-port 9001\n" +
		"onion-key\n" + testPubKeyPEM +
		"service-key\n" + testPubKeyPEM)

	p := NewTextParser()
	var d Descriptor
	n, err := p.ParseIntroPoints(&d, blob)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, d.IntroNodes, 1)
	require.Equal(t, "10.0.0.1", d.IntroNodes[0].Address)
	require.Equal(t, uint16(9001), d.IntroNodes[0].Port)
}

func TestTextParser_ParseIntroPoints_Empty(t *testing.T) {
	p := NewTextParser()
	var d Descriptor
	n, err := p.ParseIntroPoints(&d, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.NotNil(t, d.IntroNodes)
	require.Len(t, d.IntroNodes, 0)
}
