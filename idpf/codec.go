package idpf

import (
	"errors"
	"fmt"

	"github.com/flashbots/poplar/crypto"
	"golang.org/x/crypto/cryptobyte"
)

// ErrInvalidEncoding is returned when a public share cannot be decoded.
var ErrInvalidEncoding = errors.New("idpf: invalid encoding")

// PublicShare holds the correction words shared verbatim with both aggregators.
type PublicShare struct {
	bits    int
	seedCW  [][KeySize]byte
	ctrlCW  [][2]bool
	innerCW [][2]crypto.Field64
	leafCW  [2]crypto.Field255
}

// Bits returns the depth of the tree the share was generated for.
func (ps *PublicShare) Bits() int {
	return ps.bits
}

// EncodedLen returns the length of the encoding:
// packed control bits || seed corrections || inner value corrections || leaf value correction.
func (ps *PublicShare) EncodedLen() int {
	return PublicShareEncodedLen(ps.bits)
}

// PublicShareEncodedLen returns the encoded length of a public share for a tree of the given depth.
func PublicShareEncodedLen(bits int) int {
	return (2*bits+7)/8 +
		bits*KeySize +
		(bits-1)*2*crypto.Field64EncodedSize +
		2*crypto.Field255EncodedSize
}

// AppendBinary appends the encoding of the public share. Control bits are packed
// two per level, least significant bit first, and the last byte is zero-padded.
func (ps *PublicShare) AppendBinary(b []byte) ([]byte, error) {
	packed := make([]byte, (2*ps.bits+7)/8)
	for level, ctrl := range ps.ctrlCW {
		for j, c := range ctrl {
			if c {
				i := 2*level + j
				packed[i/8] |= 1 << uint(i%8)
			}
		}
	}

	builder := cryptobyte.NewBuilder(b)
	builder.AddBytes(packed)
	for _, s := range ps.seedCW {
		builder.AddBytes(s[:])
	}
	for _, w := range ps.innerCW {
		builder.AddBytes(crypto.AppendVec(nil, w[:]))
	}
	builder.AddBytes(crypto.AppendVec(nil, ps.leafCW[:]))
	return builder.Bytes()
}

// MarshalBinary encodes the public share.
func (ps *PublicShare) MarshalBinary() ([]byte, error) {
	return ps.AppendBinary(make([]byte, 0, ps.EncodedLen()))
}

// DecodePublicShare decodes a public share for a tree of the given depth.
// Nonzero padding bits and trailing data are rejected.
func DecodePublicShare(bits int, data []byte) (*PublicShare, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("%w: bits must be positive", ErrInvalidInput)
	}

	s := cryptobyte.String(data)
	var packed []byte
	if !s.ReadBytes(&packed, (2*bits+7)/8) {
		return nil, fmt.Errorf("%w: short control bits", ErrInvalidEncoding)
	}
	if rem := (2 * bits) % 8; rem != 0 {
		if packed[len(packed)-1]>>uint(rem) != 0 {
			return nil, fmt.Errorf("%w: nonzero padding bits", ErrInvalidEncoding)
		}
	}

	ps := &PublicShare{
		bits:    bits,
		seedCW:  make([][KeySize]byte, bits),
		ctrlCW:  make([][2]bool, bits),
		innerCW: make([][2]crypto.Field64, bits-1),
	}
	for level := range ps.ctrlCW {
		for j := range ps.ctrlCW[level] {
			i := 2*level + j
			ps.ctrlCW[level][j] = (packed[i/8]>>uint(i%8))&1 == 1
		}
	}
	for level := range ps.seedCW {
		if !s.CopyBytes(ps.seedCW[level][:]) {
			return nil, fmt.Errorf("%w: short seed correction", ErrInvalidEncoding)
		}
	}
	for level := range ps.innerCW {
		var raw []byte
		if !s.ReadBytes(&raw, 2*crypto.Field64EncodedSize) {
			return nil, fmt.Errorf("%w: short inner correction", ErrInvalidEncoding)
		}
		w, err := crypto.DecodeVec[crypto.Field64](raw, 2)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
		}
		ps.innerCW[level] = [2]crypto.Field64{w[0], w[1]}
	}
	var raw []byte
	if !s.ReadBytes(&raw, 2*crypto.Field255EncodedSize) {
		return nil, fmt.Errorf("%w: short leaf correction", ErrInvalidEncoding)
	}
	w, err := crypto.DecodeVec[crypto.Field255](raw, 2)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	ps.leafCW = [2]crypto.Field255{w[0], w[1]}

	if !s.Empty() {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidEncoding, len(s))
	}
	return ps, nil
}

// Equal compares two public shares by their encodings.
func (ps *PublicShare) Equal(other *PublicShare) bool {
	if ps.bits != other.bits {
		return false
	}
	a, errA := ps.MarshalBinary()
	b, errB := other.MarshalBinary()
	if errA != nil || errB != nil {
		return false
	}
	return crypto.ConstantTimeEqual(a, b)
}
