package descriptor

import (
	"bufio"
	"bytes"
	"encoding/pem"
	"strconv"
	"strings"
	"time"
)

// DescriptorKeyword is the literal prefix rendcache.spec.md §4.E.1 step 7
// requires the engine to check before continuing a concatenated batch.
const DescriptorKeyword = "rendezvous-service-descriptor "

const sigEndMarker = "-----END SIGNATURE-----\n"

// ParseResult is what Parse yields for one descriptor out of a (possibly
// multi-descriptor) buffer — the shape rendcache.spec.md §6 calls
// "parse(buffer) → (parsed, desc_id, intro_encrypted, intro_size,
// encoded_size, next_cursor)".
type ParseResult struct {
	Parsed         *Descriptor
	DescID         [DescIDLen]byte
	IntroEncrypted []byte
	EncodedSize    int
	Next           []byte
}

// Parser is the wire-format collaborator rendcache.spec.md §1 and §6 treat
// as external to the cache.
type Parser interface {
	Parse(buf []byte) (*ParseResult, error)
	ParseIntroPoints(d *Descriptor, blob []byte) (int, error)
}

// TextParser implements the version-2 rendezvous descriptor text format:
// line-delimited keywords with embedded PEM blocks for keys, intro points,
// and the signature.
type TextParser struct{}

func NewTextParser() *TextParser { return &TextParser{} }

func (TextParser) Parse(buf []byte) (*ParseResult, error) {
	if !bytes.HasPrefix(buf, []byte(DescriptorKeyword)) {
		return nil, errMalformedHeader
	}
	end := bytes.Index(buf, []byte(sigEndMarker))
	if end < 0 {
		return nil, errMalformedHeader
	}
	end += len(sigEndMarker)
	current := buf[:end]
	next := buf[end:]

	sc := bufio.NewScanner(bytes.NewReader(current))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	desc := &Descriptor{}
	var descID [DescIDLen]byte
	var introPEM string
	sawHeader := false

	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, DescriptorKeyword):
			idStr := strings.TrimPrefix(line, DescriptorKeyword)
			id, err := DecodeDescID(idStr)
			if err != nil {
				return nil, err
			}
			descID = id
			sawHeader = true
		case strings.HasPrefix(line, "version "):
			v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "version ")))
			if err != nil {
				return nil, errMalformedHeader
			}
			desc.Version = v
		case strings.HasPrefix(line, "protocol-versions "):
			for _, p := range strings.Split(strings.TrimPrefix(line, "protocol-versions "), ",") {
				if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
					desc.ProtocolVers = append(desc.ProtocolVers, n)
				}
			}
		case strings.HasPrefix(line, "publication-time "):
			ts := strings.TrimPrefix(line, "publication-time ")
			t, err := time.Parse("2006-01-02 15:04:05", strings.TrimSpace(ts))
			if err != nil {
				return nil, errMalformedHeader
			}
			desc.Timestamp = t.UTC()
		case line == "permanent-key":
			block, err := readPEMBlock(sc)
			if err != nil {
				return nil, err
			}
			desc.PublicKeyPEM = block
		case line == "introduction-points":
			block, err := readPEMBlock(sc)
			if err != nil {
				return nil, err
			}
			introPEM = block
		case line == "signature":
			if _, err := readPEMBlock(sc); err != nil {
				return nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sawHeader || desc.PublicKeyPEM == "" {
		return nil, errMissingKey
	}
	if desc.Timestamp.IsZero() {
		return nil, errMissingTime
	}

	var introBlob []byte
	if introPEM != "" {
		block, _ := pem.Decode([]byte(introPEM))
		if block == nil {
			return nil, errMalformedHeader
		}
		introBlob = block.Bytes
	}

	return &ParseResult{
		Parsed:         desc,
		DescID:         descID,
		IntroEncrypted: introBlob,
		EncodedSize:    end,
		Next:           next,
	}, nil
}

// ParseIntroPoints parses a (decrypted or plaintext) introduction-point
// blob into individual entries on d.IntroNodes, returning the count. A
// non-positive return signals failure per rendcache.spec.md §4.E.2 step 6.
func (TextParser) ParseIntroPoints(d *Descriptor, blob []byte) (int, error) {
	if len(blob) == 0 {
		d.IntroNodes = []IntroNode{}
		return 0, nil
	}
	sc := bufio.NewScanner(bytes.NewReader(blob))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var nodes []IntroNode
	var cur *IntroNode
	flush := func() {
		if cur != nil {
			nodes = append(nodes, *cur)
			cur = nil
		}
	}
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "introduction-point "):
			flush()
			cur = &IntroNode{Identifier: strings.TrimPrefix(line, "introduction-point ")}
		case cur == nil:
			continue
		case strings.HasPrefix(line, "ip-address "):
			cur.Address = strings.TrimPrefix(line, "ip-address ")
		case strings.HasPrefix(line, "onion-port "):
			if p, err := strconv.Atoi(strings.TrimPrefix(line, "onion-port ")); err == nil {
				cur.Port = uint16(p)
			}
		case line == "onion-key":
			block, err := readPEMBlock(sc)
			if err != nil {
				return -1, err
			}
			cur.OnionKeyPEM = block
		case line == "service-key":
			block, err := readPEMBlock(sc)
			if err != nil {
				return -1, err
			}
			cur.ServiceKey = block
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return -1, err
	}
	d.IntroNodes = nodes
	return len(nodes), nil
}

func readPEMBlock(sc *bufio.Scanner) (string, error) {
	var sb strings.Builder
	for sc.Scan() {
		line := sc.Text()
		sb.WriteString(line)
		sb.WriteByte('\n')
		if strings.HasPrefix(line, "-----END") {
			return sb.String(), nil
		}
	}
	return "", errMalformedHeader
}
