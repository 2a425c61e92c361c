package poplar1

import (
	"bytes"
	"slices"
	"testing"

	"github.com/flashbots/poplar/idpf"
)

func FuzzDecodeAggregationParam(f *testing.F) {
	// Add seed corpus
	f.Add([]byte{0, 0, 0, 0, 0, 1, 0})
	f.Add([]byte{0, 1, 0, 0, 0, 3, 0x39})
	f.Add([]byte{0, 0, 0, 0, 0, 1, 2})
	f.Add([]byte{0, 7, 0, 0, 0, 2, 0x12, 0x34})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		param, err := DecodeAggregationParam(data)
		if err != nil {
			return
		}

		// Invariant 1: Accepted encodings are canonical
		enc, err := param.MarshalBinary()
		if err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
		if !bytes.Equal(enc, data) {
			t.Errorf("re-encoding differs: %x != %x", enc, data)
		}

		// Invariant 2: Decoded prefixes satisfy the constructor's rules
		if _, err := NewAggregationParam(param.Prefixes()); err != nil {
			t.Errorf("decoded parameter fails validation: %v", err)
		}
	})
}

func FuzzAggregationParamRoundTrip(f *testing.F) {
	// Add seed corpus
	f.Add(uint8(0), []byte{0x00})
	f.Add(uint8(0), []byte{0x00, 0x80})
	f.Add(uint8(3), []byte{0x10, 0x20, 0x30, 0xf0})
	f.Add(uint8(12), []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02})

	f.Fuzz(func(t *testing.T, level uint8, raw []byte) {
		width := int(level)%16 + 1

		// Derive sorted, distinct prefixes of the given width from the raw bytes.
		all := idpf.FromBytes(raw).Bools()
		var prefixes []idpf.Input
		for i := 0; i+width <= len(all); i += width {
			prefixes = append(prefixes, idpf.FromBools(all[i:i+width]))
		}
		slices.SortFunc(prefixes, idpf.Input.Compare)
		prefixes = slices.CompactFunc(prefixes, idpf.Input.Equal)
		if len(prefixes) == 0 {
			return
		}

		param, err := NewAggregationParam(prefixes)
		if err != nil {
			t.Fatalf("valid prefixes rejected: %v", err)
		}

		// Invariant 1: EncodedLen matches the encoding
		enc, err := param.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		if len(enc) != param.EncodedLen() {
			t.Errorf("EncodedLen %d, encoded %d bytes", param.EncodedLen(), len(enc))
		}

		// Invariant 2: Decoding recovers the same prefixes in order
		decoded, err := DecodeAggregationParam(enc)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if !param.Equal(decoded) {
			t.Errorf("round trip changed the parameter")
		}
	})
}
