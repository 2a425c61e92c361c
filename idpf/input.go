package idpf

import (
	"strings"
)

// Input is an immutable bit string: either a full measurement or a prefix of one,
// identifying a node of the binary tree the IDPF is defined over.
type Input struct {
	bits []bool
}

// FromBytes interprets each byte most significant bit first.
func FromBytes(data []byte) Input {
	bits := make([]bool, 0, 8*len(data))
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>uint(i))&1 == 1)
		}
	}
	return Input{bits: bits}
}

// FromBools copies the given bits.
func FromBools(bits []bool) Input {
	return Input{bits: append([]bool(nil), bits...)}
}

// FromString parses a string of '0' and '1' characters.
func FromString(s string) (Input, bool) {
	bits := make([]bool, len(s))
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			bits[i] = true
		default:
			return Input{}, false
		}
	}
	return Input{bits: bits}, true
}

// Len returns the number of bits.
func (in Input) Len() int {
	return len(in.bits)
}

// Bit returns the i-th bit, counting from the root of the tree.
func (in Input) Bit(i int) bool {
	return in.bits[i]
}

// Bools returns a copy of the bits.
func (in Input) Bools() []bool {
	return append([]bool(nil), in.bits...)
}

// Prefix returns the first level+1 bits, i.e. the ancestor node at the given level.
func (in Input) Prefix(level int) Input {
	return Input{bits: in.bits[:level+1:level+1]}
}

// Append returns a new input extended by one bit.
func (in Input) Append(bit bool) Input {
	bits := make([]bool, len(in.bits)+1)
	copy(bits, in.bits)
	bits[len(in.bits)] = bit
	return Input{bits: bits}
}

// HasPrefix reports whether p is a prefix of in.
func (in Input) HasPrefix(p Input) bool {
	if p.Len() > in.Len() {
		return false
	}
	for i := range p.bits {
		if p.bits[i] != in.bits[i] {
			return false
		}
	}
	return true
}

// Compare orders inputs lexicographically, with false < true and a proper prefix
// ordered before its extensions.
func (in Input) Compare(other Input) int {
	n := min(in.Len(), other.Len())
	for i := range n {
		if in.bits[i] != other.bits[i] {
			if other.bits[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case in.Len() < other.Len():
		return -1
	case in.Len() > other.Len():
		return 1
	}
	return 0
}

// Equal reports whether both inputs hold the same bits.
func (in Input) Equal(other Input) bool {
	return in.Compare(other) == 0
}

// Bytes packs the bits most significant bit first, zero-padding the last byte.
func (in Input) Bytes() []byte {
	res := make([]byte, (in.Len()+7)/8)
	for i, b := range in.bits {
		if b {
			res[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return res
}

// String renders the bits as '0' and '1' characters.
func (in Input) String() string {
	var sb strings.Builder
	sb.Grow(in.Len())
	for _, b := range in.bits {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
