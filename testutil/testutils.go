package testutil

import (
	"io"

	"github.com/flashbots/poplar/crypto"
	"github.com/flashbots/poplar/idpf"
)

// =====================================
// Randomness
// =====================================

// DeterministicReader returns an endless reproducible byte stream for the given
// seed and label.
func DeterministicReader(seed []byte, label string) io.Reader {
	return crypto.NewSeededReader(seed, label)
}

// =====================================
// Measurement Generators
// =====================================

// ByteMeasurements interprets each string as a measurement of 8*len(s) bits.
func ByteMeasurements(values ...string) []idpf.Input {
	res := make([]idpf.Input, len(values))
	for i, v := range values {
		res[i] = idpf.FromBytes([]byte(v))
	}
	return res
}

// KnownAnswerMeasurements is a small byte-sized data set in which "g", "i" and
// "j" occur at least twice and every other value once.
func KnownAnswerMeasurements() []idpf.Input {
	return ByteMeasurements("a", "b", "c", "d", "e", "f", "g", "g", "h", "i", "i", "i", "j", "j", "k", "l")
}

// RandomMeasurements draws n measurements of the given length from r.
func RandomMeasurements(r io.Reader, bits, n int) []idpf.Input {
	res := make([]idpf.Input, n)
	buf := make([]byte, (bits+7)/8)
	for i := range res {
		if _, err := io.ReadFull(r, buf); err != nil {
			panic(err)
		}
		res[i] = idpf.FromBools(idpf.FromBytes(buf).Bools()[:bits])
	}
	return res
}

// RepeatedMeasurements returns value repeated count times.
func RepeatedMeasurements(value idpf.Input, count int) []idpf.Input {
	res := make([]idpf.Input, count)
	for i := range res {
		res[i] = value
	}
	return res
}
