package descriptor

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1" //nolint:gosec // matches the original digest scheme; not a security boundary here
	"encoding/base32"
	"encoding/pem"
	"errors"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Crypto is the cryptographic collaborator rendcache.spec.md §6 lists as
// external: deriving a service id from a public key, and decrypting an
// introduction-point blob given a client's descriptor cookie.
type Crypto interface {
	DeriveServiceID(publicKeyPEM string) (string, error)
	DecryptIntroPoints(cookie [16]byte, blob []byte) ([]byte, error)
}

// DefaultCrypto is a concrete, self-contained implementation good enough to
// exercise the cache end to end without a real Tor onion-key toolchain.
type DefaultCrypto struct{}

func NewDefaultCrypto() *DefaultCrypto { return &DefaultCrypto{} }

// DeriveServiceID hashes the DER payload embedded in the PEM public key and
// returns the first 80 bits, base32-encoded — the same construction Tor
// uses to turn an RSA onion key into a .onion address.
func (DefaultCrypto) DeriveServiceID(publicKeyPEM string) (string, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return "", errors.New("descriptor: public key is not valid PEM")
	}
	digest := sha1.Sum(block.Bytes) //nolint:gosec
	enc := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(digest[:10]))
	if len(enc) < ServiceIDLenBase32 {
		return "", errors.New("descriptor: derived service id too short")
	}
	return enc[:ServiceIDLenBase32], nil
}

// DecryptIntroPoints derives an AES-128-CBC key from the descriptor cookie
// via PBKDF2 and decrypts the leading IV-prefixed ciphertext block. Real
// Tor uses a simpler single-round key derivation; PBKDF2 is substituted
// here deliberately (see DESIGN.md) to give golang.org/x/crypto a home,
// while preserving the "cookie-keyed symmetric decrypt, best effort" shape
// rendcache.spec.md §4.E.2 describes.
func (DefaultCrypto) DecryptIntroPoints(cookie [16]byte, blob []byte) ([]byte, error) {
	if len(blob) < aes.BlockSize+1 {
		return nil, errors.New("descriptor: encrypted blob too short")
	}
	key := pbkdf2.Key(cookie[:], []byte("rend-cache-intro-cookie"), 1000, 16, sha1.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv := blob[:aes.BlockSize]
	ct := blob[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.New("descriptor: ciphertext not block-aligned")
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)
	return unpadPKCS7(pt)
}

func unpadPKCS7(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("descriptor: empty plaintext")
	}
	n := int(b[len(b)-1])
	if n <= 0 || n > len(b) {
		return nil, errors.New("descriptor: invalid padding")
	}
	return b[:len(b)-n], nil
}
