package crypto

import (
	"encoding/binary"
	"io"
	"math/bits"
	"strconv"
)

// Field64Modulus is the prime 2^64 - 2^32 + 1.
const Field64Modulus uint64 = 0xffffffff00000001

// Field64EncodedSize is the length of the little-endian encoding of a Field64.
const Field64EncodedSize = 8

// epsilon is 2^64 mod p.
const epsilon uint64 = 0xffffffff

// Field64 is an element of GF(2^64 - 2^32 + 1), used for the inner levels of the IDPF tree.
// The zero value is the additive identity.
type Field64 struct {
	v uint64
}

// NewField64 reduces x into the field.
func NewField64(x uint64) Field64 {
	return Field64{v: reduce64(x)}
}

// reduce64 maps x in [0, 2^64) into [0, p) without branching.
func reduce64(x uint64) uint64 {
	d, borrow := bits.Sub64(x, Field64Modulus, 0)
	mask := -borrow // all ones if x < p
	return (x & mask) | (d &^ mask)
}

// reduce128 computes (hi*2^64 + lo) mod p using 2^64 = 2^32 - 1 and 2^96 = -1.
func reduce128(hi, lo uint64) uint64 {
	hiHi := hi >> 32
	hiLo := hi & epsilon

	t0, borrow := bits.Sub64(lo, hiHi, 0)
	t0 -= epsilon & -borrow

	t1 := hiLo * epsilon
	t2, carry := bits.Add64(t0, t1, 0)
	t2 += epsilon & -carry

	return reduce64(t2)
}

func (x Field64) Add(y Field64) Field64 {
	s, carry := bits.Add64(x.v, y.v, 0)
	s += epsilon & -carry
	return Field64{v: reduce64(s)}
}

func (x Field64) Sub(y Field64) Field64 {
	d, borrow := bits.Sub64(x.v, y.v, 0)
	d += Field64Modulus & -borrow
	return Field64{v: d}
}

func (x Field64) Mul(y Field64) Field64 {
	hi, lo := bits.Mul64(x.v, y.v)
	return Field64{v: reduce128(hi, lo)}
}

func (x Field64) Neg() Field64 {
	return Field64{}.Sub(x)
}

func (x Field64) Equal(y Field64) int {
	d := x.v ^ y.v
	return int(1 ^ ((d | -d) >> 63))
}

func (x Field64) IsZero() bool {
	return x.Equal(Field64{}) == 1
}

func (Field64) Zero() Field64 { return Field64{} }

func (Field64) One() Field64 { return Field64{v: 1} }

func (Field64) FromUint64(v uint64) Field64 { return NewField64(v) }

func (Field64) EncodedSize() int { return Field64EncodedSize }

func (x Field64) AppendBytes(b []byte) []byte {
	return binary.LittleEndian.AppendUint64(b, x.v)
}

func (x Field64) Bytes() []byte {
	return x.AppendBytes(make([]byte, 0, Field64EncodedSize))
}

func (Field64) SetBytes(b []byte) (Field64, error) {
	if len(b) != Field64EncodedSize {
		return Field64{}, ErrFieldOverflow
	}
	v := binary.LittleEndian.Uint64(b)
	if v >= Field64Modulus {
		return Field64{}, ErrFieldOverflow
	}
	return Field64{v: v}, nil
}

// Sample reads 8 bytes at a time and rejects values >= p. The next power of two
// above p is 2^64, so no masking is needed.
func (Field64) Sample(r io.Reader) Field64 {
	var buf [Field64EncodedSize]byte
	for {
		mustRead(r, buf[:])
		v := binary.LittleEndian.Uint64(buf[:])
		if v < Field64Modulus {
			return Field64{v: v}
		}
	}
}

// ToUint64 is lossless for Field64.
func (x Field64) ToUint64() (uint64, error) {
	return x.v, nil
}

// Uint64 returns the canonical integer representative.
func (x Field64) Uint64() uint64 {
	return x.v
}

func (x Field64) String() string {
	return strconv.FormatUint(x.v, 10)
}

// mustRead fills buf from an XOF stream. XOF streams never run dry, so a short
// read indicates a programming error.
func mustRead(r io.Reader, buf []byte) {
	if _, err := io.ReadFull(r, buf); err != nil {
		panic("xof stream: " + err.Error())
	}
}
