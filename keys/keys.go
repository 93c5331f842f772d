// Package keys derives the cookie and CSRF keys from the process secret.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/gorilla/securecookie"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

// SecretSize is the length of a generated process secret.
const SecretSize = 32

// Keys are the secrets handed to securecookie and gorilla/csrf.
type Keys struct {
	Hash  []byte // 64 bytes, HMAC-SHA256 cookie signing
	Block []byte // 32 bytes, AES-256 cookie encryption
	CSRF  []byte // 32 bytes
}

// Secret returns the configured hex secret, or a fresh random one when
// configured is empty.
func Secret(configured string) ([]byte, error) {
	if configured == "" {
		b := securecookie.GenerateRandomKey(SecretSize)
		if b == nil {
			return nil, errors.New("keys: random source failed")
		}
		return b, nil
	}
	b, err := hex.DecodeString(configured)
	if err != nil {
		return nil, errors.Wrap(err, "keys: secret is not hex")
	}
	if len(b) < 16 {
		return nil, errors.Errorf("keys: secret too short (%d bytes)", len(b))
	}
	return b, nil
}

// Derive expands secret into independent keys.
func Derive(secret []byte) (Keys, error) {
	var k Keys
	for _, d := range []struct {
		info string
		dst  *[]byte
		size int
	}{
		{"contactd cookie hash", &k.Hash, 64},
		{"contactd cookie block", &k.Block, 32},
		{"contactd csrf", &k.CSRF, 32},
	} {
		b := make([]byte, d.size)
		if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(d.info)), b); err != nil {
			return Keys{}, errors.Wrapf(err, "keys: deriving %s", d.info)
		}
		*d.dst = b
	}
	return k, nil
}
