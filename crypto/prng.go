package crypto

import "io"

// Prng turns an XOF stream into an endless sequence of field elements.
type Prng[F FieldElement[F]] struct {
	stream io.Reader
}

// NewPrng wraps an XOF stream.
func NewPrng[F FieldElement[F]](stream io.Reader) *Prng[F] {
	return &Prng[F]{stream: stream}
}

// NewPrngFromSeed instantiates the XOF and wraps its stream.
func NewPrngFromSeed[F FieldElement[F]](xof XofAlgorithm, seed []byte, dst []byte, binders ...[]byte) (*Prng[F], error) {
	stream, err := xof.New(seed, dst, binders...)
	if err != nil {
		return nil, err
	}
	return NewPrng[F](stream), nil
}

// Next draws the next element.
func (p *Prng[F]) Next() F {
	var zero F
	return zero.Sample(p.stream)
}

// Skip discards n elements.
func (p *Prng[F]) Skip(n int) {
	for range n {
		p.Next()
	}
}

// Stream exposes the underlying XOF so that sampling can continue in another field.
func (p *Prng[F]) Stream() io.Reader {
	return p.stream
}

// Continue returns a Prng over a different field that keeps reading from the same stream.
func Continue[G FieldElement[G], F FieldElement[F]](p *Prng[F]) *Prng[G] {
	return NewPrng[G](p.stream)
}
