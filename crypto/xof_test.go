package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestXofDeterminism(t *testing.T) {
	for _, alg := range []XofAlgorithm{XofShake128, XofFixedKeyAes128} {
		t.Run(alg.Name(), func(t *testing.T) {
			seed := bytes.Repeat([]byte{0x42}, alg.SeedSize())
			dst := DomainSeparationTag(0x1000, 1)

			x1, err := alg.New(seed, dst, []byte("binder"))
			require.NoError(t, err)
			x2, err := alg.New(seed, dst, []byte("binder"))
			require.NoError(t, err)

			// Reads of different granularity yield the same stream
			a := XofNext(x1, 100)
			b := append(XofNext(x2, 7), XofNext(x2, 93)...)
			require.Equal(t, a, b)

			x3, err := alg.New(seed, dst, []byte("other"))
			require.NoError(t, err)
			require.NotEqual(t, a, XofNext(x3, 100))

			x4, err := alg.New(seed, DomainSeparationTag(0x1000, 2), []byte("binder"))
			require.NoError(t, err)
			require.NotEqual(t, a, XofNext(x4, 100))
		})
	}
}

func TestXofRejectsBadSeed(t *testing.T) {
	_, err := XofShake128.New(make([]byte, 15), nil)
	require.Error(t, err)
	_, err = XofFixedKeyAes128.New(make([]byte, 17), nil)
	require.Error(t, err)
}

func TestXofByName(t *testing.T) {
	alg, err := XofByName("shake128")
	require.NoError(t, err)
	require.Equal(t, XofShake128, alg)

	alg, err = XofByName("fixedkeyaes128")
	require.NoError(t, err)
	require.Equal(t, XofFixedKeyAes128, alg)

	_, err = XofByName("md5")
	require.Error(t, err)
}

func TestDomainSeparationTag(t *testing.T) {
	require.Equal(t, []byte{VdafVersion, 0, 0, 0, 0x10, 0, 0, 4}, DomainSeparationTag(0x1000, 4))
}

func TestPrngContinuesAcrossFields(t *testing.T) {
	seed := make([]byte, 16)
	p1, err := NewPrngFromSeed[Field64](XofShake128, seed, []byte("dst"))
	require.NoError(t, err)
	p2, err := NewPrngFromSeed[Field64](XofShake128, seed, []byte("dst"))
	require.NoError(t, err)

	p1.Skip(3)
	for range 3 {
		p2.Next()
	}
	require.Equal(t, 1, p1.Next().Equal(p2.Next()))

	q1 := Continue[Field255](p1)
	q2 := Continue[Field255](p2)
	require.Equal(t, 1, q1.Next().Equal(q2.Next()))
}

func TestFieldConstants(t *testing.T) {
	require.True(t, Field64{}.Zero().IsZero())
	require.False(t, Field64{}.One().IsZero())
	require.Equal(t, uint64(1), Field64{}.One().Uint64())
	require.Equal(t, uint64(0), NewField64(Field64Modulus).Uint64())

	one := Field255{}.One()
	v, err := one.ToUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)
	require.Equal(t, "1", one.String())

	x := Field255{}.FromUint64(1 << 40)
	v, err = x.ToUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(1<<40), v)

	// p - 1 does not fit in a uint64
	_, err = one.Neg().ToUint64()
	require.ErrorIs(t, err, ErrFieldOverflow)

	// non-canonical encoding of 0 (p itself)
	pBytes := Field255{}.One().Neg().Bytes()
	pBytes[0]++
	_, err = Field255{}.SetBytes(pBytes)
	require.Error(t, err)
}

func TestVecHelpers(t *testing.T) {
	a := []Field64{NewField64(1), NewField64(2)}
	b := []Field64{NewField64(3), NewField64(Field64Modulus - 1)}
	require.NoError(t, VecAddInplace(a, b))
	require.Equal(t, []Field64{NewField64(4), NewField64(1)}, a)
	require.Error(t, VecAddInplace(a, b[:1]))

	require.NoError(t, VecSubInplace(a, b))
	require.Equal(t, 1, VecEqual(a, []Field64{NewField64(1), NewField64(2)}))
	require.Equal(t, 0, VecEqual(a, ZeroVec[Field64](2)))
	require.Equal(t, 0, VecEqual(a, ZeroVec[Field64](3)))

	enc := AppendVec(nil, a)
	require.Len(t, enc, 2*Field64EncodedSize)
	dec, err := DecodeVec[Field64](enc, 2)
	require.NoError(t, err)
	require.Equal(t, a, dec)
	_, err = DecodeVec[Field64](enc, 3)
	require.Error(t, err)
}

func TestSeededReader(t *testing.T) {
	read := func(seed, label string) []byte {
		buf := make([]byte, 100)
		_, err := NewSeededReader([]byte(seed), label).Read(buf)
		require.NoError(t, err)
		return buf
	}

	require.Equal(t, read("seed", "a"), read("seed", "a"))
	require.NotEqual(t, read("seed", "a"), read("seed", "b"))
	require.NotEqual(t, read("seed", "a"), read("other", "a"))
}
