package crypto

import (
	"errors"
	"fmt"
	"io"
)

// ErrFieldOverflow is returned when an encoded value is not a canonical field element
// or when a field element does not fit the requested integer type.
var ErrFieldOverflow = errors.New("field element out of range")

// FieldElement is implemented by the prime field types used by Poplar1.
// All methods operate on values and return fresh values; none mutate the receiver.
// Equal and IsZero run in constant time.
type FieldElement[F any] interface {
	Add(F) F
	Sub(F) F
	Mul(F) F
	Neg() F

	// Equal returns 1 if the elements are equal and 0 otherwise.
	Equal(F) int
	IsZero() bool

	Zero() F
	One() F
	FromUint64(uint64) F

	// EncodedSize is the fixed length of the little-endian encoding.
	EncodedSize() int
	AppendBytes([]byte) []byte
	Bytes() []byte
	// SetBytes decodes a canonical encoding of exactly EncodedSize bytes.
	SetBytes([]byte) (F, error)

	// Sample draws a uniformly random element from the stream by rejection sampling.
	Sample(io.Reader) F

	ToUint64() (uint64, error)
	String() string
}

// EncodedSizeOf returns the encoded length of a single element of F.
func EncodedSizeOf[F FieldElement[F]]() int {
	var zero F
	return zero.EncodedSize()
}

// ZeroVec allocates a vector of n zero elements.
func ZeroVec[F FieldElement[F]](n int) []F {
	res := make([]F, n)
	for i := range res {
		res[i] = res[i].Zero()
	}
	return res
}

// VecAddInplace performs element-wise modular addition in-place: l[i] = l[i] + r[i].
func VecAddInplace[F FieldElement[F]](l []F, r []F) error {
	if len(l) != len(r) {
		return fmt.Errorf("vector length mismatch: %d != %d", len(l), len(r))
	}
	for i := range l {
		l[i] = l[i].Add(r[i])
	}
	return nil
}

// VecSubInplace performs element-wise modular subtraction in-place: l[i] = l[i] - r[i].
func VecSubInplace[F FieldElement[F]](l []F, r []F) error {
	if len(l) != len(r) {
		return fmt.Errorf("vector length mismatch: %d != %d", len(l), len(r))
	}
	for i := range l {
		l[i] = l[i].Sub(r[i])
	}
	return nil
}

// VecEqual compares two vectors in constant time with respect to their contents.
// Vectors of different lengths are never equal; the length itself is not secret.
func VecEqual[F FieldElement[F]](a []F, b []F) int {
	if len(a) != len(b) {
		return 0
	}
	eq := 1
	for i := range a {
		eq &= a[i].Equal(b[i])
	}
	return eq
}

// AppendVec appends the concatenated encodings of all elements.
func AppendVec[F FieldElement[F]](b []byte, v []F) []byte {
	for _, x := range v {
		b = x.AppendBytes(b)
	}
	return b
}

// DecodeVec decodes exactly n elements from data.
func DecodeVec[F FieldElement[F]](data []byte, n int) ([]F, error) {
	size := EncodedSizeOf[F]()
	if len(data) != n*size {
		return nil, fmt.Errorf("decode vector: want %d bytes, got %d", n*size, len(data))
	}
	res := make([]F, n)
	for i := range res {
		x, err := res[i].SetBytes(data[i*size : (i+1)*size])
		if err != nil {
			return nil, err
		}
		res[i] = x
	}
	return res, nil
}
