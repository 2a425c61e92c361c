package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// NewSeededReader returns an endless reproducible byte stream for seed and
// label. The label separates streams derived from the same seed. Not suitable
// as a source of secret randomness unless the seed itself is secret.
func NewSeededReader(seed []byte, label string) io.Reader {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(label)), key); err != nil {
		panic(err)
	}
	stream := sha3.NewShake128()
	stream.Write(key)
	return stream
}
