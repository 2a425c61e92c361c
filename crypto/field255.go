package crypto

import (
	"crypto/subtle"
	"encoding/binary"
	"io"
	"math/big"

	"filippo.io/edwards25519/field"
)

// Field255EncodedSize is the length of the little-endian encoding of a Field255.
const Field255EncodedSize = 32

// Field255 is an element of GF(2^255 - 19), used for the leaf level of the IDPF tree.
// Arithmetic is delegated to the constant-time edwards25519 field implementation.
// The zero value is the additive identity.
type Field255 struct {
	e field.Element
}

func (x Field255) Add(y Field255) Field255 {
	var r Field255
	r.e.Add(&x.e, &y.e)
	return r
}

func (x Field255) Sub(y Field255) Field255 {
	var r Field255
	r.e.Subtract(&x.e, &y.e)
	return r
}

func (x Field255) Mul(y Field255) Field255 {
	var r Field255
	r.e.Multiply(&x.e, &y.e)
	return r
}

func (x Field255) Neg() Field255 {
	var r Field255
	r.e.Negate(&x.e)
	return r
}

func (x Field255) Equal(y Field255) int {
	return x.e.Equal(&y.e)
}

func (x Field255) IsZero() bool {
	var zero Field255
	return x.Equal(zero) == 1
}

func (Field255) Zero() Field255 { return Field255{} }

func (Field255) One() Field255 {
	var r Field255
	r.e.One()
	return r
}

func (Field255) FromUint64(v uint64) Field255 {
	var buf [Field255EncodedSize]byte
	binary.LittleEndian.PutUint64(buf[:8], v)
	var r Field255
	if _, err := r.e.SetBytes(buf[:]); err != nil {
		panic(err)
	}
	return r
}

func (Field255) EncodedSize() int { return Field255EncodedSize }

func (x Field255) AppendBytes(b []byte) []byte {
	return append(b, x.e.Bytes()...)
}

func (x Field255) Bytes() []byte {
	return x.e.Bytes()
}

// SetBytes decodes a canonical little-endian encoding. The underlying field
// implementation silently reduces values in [p, 2^256), so canonicity is checked
// by re-encoding.
func (Field255) SetBytes(b []byte) (Field255, error) {
	if len(b) != Field255EncodedSize {
		return Field255{}, ErrFieldOverflow
	}
	var r Field255
	if _, err := r.e.SetBytes(b); err != nil {
		return Field255{}, err
	}
	if subtle.ConstantTimeCompare(r.e.Bytes(), b) != 1 {
		return Field255{}, ErrFieldOverflow
	}
	return r, nil
}

// Sample reads 32 bytes at a time, clears the top bit (the next power of two
// above p is 2^255) and rejects values >= p.
func (Field255) Sample(r io.Reader) Field255 {
	var buf [Field255EncodedSize]byte
	for {
		mustRead(r, buf[:])
		buf[Field255EncodedSize-1] &= 0x7f
		x, err := Field255{}.SetBytes(buf[:])
		if err == nil {
			return x
		}
	}
}

// ToUint64 fails with ErrFieldOverflow if the element does not fit in 64 bits.
func (x Field255) ToUint64() (uint64, error) {
	b := x.e.Bytes()
	var high byte
	for _, c := range b[8:] {
		high |= c
	}
	if high != 0 {
		return 0, ErrFieldOverflow
	}
	return binary.LittleEndian.Uint64(b[:8]), nil
}

func (x Field255) String() string {
	b := x.e.Bytes()
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return new(big.Int).SetBytes(b).String()
}
