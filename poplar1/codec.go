package poplar1

import (
	"math"

	"github.com/flashbots/poplar/crypto"
	"github.com/flashbots/poplar/idpf"
	"golang.org/x/crypto/cryptobyte"
)

const (
	tagInner byte = 0
	tagLeaf  byte = 1
)

func readElems[F crypto.FieldElement[F]](s *cryptobyte.String, n int) ([]F, error) {
	size := crypto.EncodedSizeOf[F]()
	if uint64(n)*uint64(size) > uint64(len(*s)) {
		return nil, codecErrorf(CodecShortRead, "want %d field elements, have %d bytes", n, len(*s))
	}
	var raw []byte
	if !s.ReadBytes(&raw, n*size) {
		return nil, codecErrorf(CodecShortRead, "want %d field elements", n)
	}
	v, err := crypto.DecodeVec[F](raw, n)
	if err != nil {
		return nil, &CodecError{Kind: CodecOther, Err: err}
	}
	return v, nil
}

func readFieldVec(s *cryptobyte.String, leaf bool, n int) (*FieldVec, error) {
	if leaf {
		v, err := readElems[crypto.Field255](s, n)
		if err != nil {
			return nil, err
		}
		return NewLeafFieldVec(v), nil
	}
	v, err := readElems[crypto.Field64](s, n)
	if err != nil {
		return nil, err
	}
	return NewInnerFieldVec(v), nil
}

func finish(s cryptobyte.String) error {
	if !s.Empty() {
		return codecErrorf(CodecBytesLeftOver, "%d trailing bytes", len(s))
	}
	return nil
}

// InputShare: idpf key || corr seed || (A || B) per inner level || leaf (A || B).

func (s *InputShare) EncodedLen() int {
	return idpf.KeySize + len(s.corrSeed) +
		len(s.corrInner)*2*crypto.Field64EncodedSize +
		2*crypto.Field255EncodedSize
}

func (s *InputShare) AppendBinary(b []byte) ([]byte, error) {
	builder := cryptobyte.NewBuilder(b)
	builder.AddBytes(s.idpfKey[:])
	builder.AddBytes(s.corrSeed)
	for _, corr := range s.corrInner {
		builder.AddBytes(crypto.AppendVec(nil, corr[:]))
	}
	builder.AddBytes(crypto.AppendVec(nil, s.corrLeaf[:]))
	return builder.Bytes()
}

func (s *InputShare) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, s.EncodedLen()))
}

// DecodeInputShare decodes aggregator aggID's input share.
func DecodeInputShare(p *Poplar1, aggID int, data []byte) (*InputShare, error) {
	if aggID != 0 && aggID != 1 {
		return nil, codecErrorf(CodecUnexpectedValue, "invalid aggregator id %d", aggID)
	}
	s := cryptobyte.String(data)
	share := &InputShare{}
	var key, seed []byte
	if !s.ReadBytes(&key, idpf.KeySize) || !s.ReadBytes(&seed, p.SeedSize()) {
		return nil, codecErrorf(CodecShortRead, "input share seeds")
	}
	copy(share.idpfKey[:], key)
	share.corrSeed = append([]byte(nil), seed...)

	inner, err := readElems[crypto.Field64](&s, 2*(p.bits-1))
	if err != nil {
		return nil, err
	}
	share.corrInner = make([][2]crypto.Field64, p.bits-1)
	for i := range share.corrInner {
		share.corrInner[i] = [2]crypto.Field64{inner[2*i], inner[2*i+1]}
	}
	leaf, err := readElems[crypto.Field255](&s, 2)
	if err != nil {
		return nil, err
	}
	share.corrLeaf = [2]crypto.Field255{leaf[0], leaf[1]}

	if err := finish(s); err != nil {
		return nil, err
	}
	return share, nil
}

// DecodePublicShare decodes the IDPF public share for p's measurement length.
func DecodePublicShare(p *Poplar1, data []byte) (*PublicShare, error) {
	ps, err := idpf.DecodePublicShare(p.bits, data)
	if err != nil {
		return nil, &CodecError{Kind: CodecUnexpectedValue, Err: err}
	}
	return ps, nil
}

// FieldVec: flat elements; the length comes from context.

func (v *FieldVec) EncodedLen() int {
	if v.leaf {
		return len(v.leafElems) * crypto.Field255EncodedSize
	}
	return len(v.inner) * crypto.Field64EncodedSize
}

func (v *FieldVec) AppendBinary(b []byte) ([]byte, error) {
	if v.leaf {
		return crypto.AppendVec(b, v.leafElems), nil
	}
	return crypto.AppendVec(b, v.inner), nil
}

func (v *FieldVec) MarshalBinary() ([]byte, error) {
	return v.AppendBinary(make([]byte, 0, v.EncodedLen()))
}

// DecodeFieldVec decodes an output or aggregate share for aggParam.
func DecodeFieldVec(p *Poplar1, aggParam *AggregationParam, data []byte) (*FieldVec, error) {
	s := cryptobyte.String(data)
	v, err := readFieldVec(&s, p.isLeaf(aggParam), aggParam.Len())
	if err != nil {
		return nil, err
	}
	if err := finish(s); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodePrepareShare decodes the share broadcast by the peer of an aggregator in
// the given state: the sketch share in RoundOne, the verifier share in RoundTwo.
func DecodePrepareShare(state *PrepareState, data []byte) (*FieldVec, error) {
	n := 3
	if state.round == RoundTwo {
		n = 1
	}
	s := cryptobyte.String(data)
	v, err := readFieldVec(&s, state.leaf, n)
	if err != nil {
		return nil, err
	}
	if err := finish(s); err != nil {
		return nil, err
	}
	return v, nil
}

// PrepareState: field tag || round || [A || B in RoundOne] || u32 output length || output.
// The leader flag is not encoded; it follows from the aggregator id.

func (s *PrepareState) EncodedLen() int {
	n := 2 + 4 + s.output.EncodedLen()
	if s.round == RoundOne {
		n += s.corr.EncodedLen()
	}
	return n
}

func (s *PrepareState) AppendBinary(b []byte) ([]byte, error) {
	builder := cryptobyte.NewBuilder(b)
	if s.leaf {
		builder.AddUint8(tagLeaf)
	} else {
		builder.AddUint8(tagInner)
	}
	builder.AddUint8(uint8(s.round))
	if s.round == RoundOne {
		corr, err := s.corr.AppendBinary(nil)
		if err != nil {
			return nil, err
		}
		builder.AddBytes(corr)
	}
	builder.AddUint32(uint32(s.output.Len()))
	output, err := s.output.AppendBinary(nil)
	if err != nil {
		return nil, err
	}
	builder.AddBytes(output)
	return builder.Bytes()
}

func (s *PrepareState) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, s.EncodedLen()))
}

// DecodePrepareState decodes aggregator aggID's prepare state.
func DecodePrepareState(p *Poplar1, aggID int, data []byte) (*PrepareState, error) {
	if aggID != 0 && aggID != 1 {
		return nil, codecErrorf(CodecUnexpectedValue, "invalid aggregator id %d", aggID)
	}
	s := cryptobyte.String(data)
	var tag, round uint8
	if !s.ReadUint8(&tag) || !s.ReadUint8(&round) {
		return nil, codecErrorf(CodecShortRead, "prepare state header")
	}
	if tag != tagInner && tag != tagLeaf {
		return nil, codecErrorf(CodecUnexpectedValue, "prepare state field tag %d", tag)
	}
	if round != uint8(RoundOne) && round != uint8(RoundTwo) {
		return nil, codecErrorf(CodecUnexpectedValue, "sketch round %d", round)
	}

	state := &PrepareState{
		leaf:     tag == tagLeaf,
		round:    SketchRound(round),
		isLeader: aggID == 0,
	}
	if state.round == RoundOne {
		corr, err := readFieldVec(&s, state.leaf, 2)
		if err != nil {
			return nil, err
		}
		state.corr = corr
	}

	var n uint32
	if !s.ReadUint32(&n) {
		return nil, codecErrorf(CodecShortRead, "output share length")
	}
	output, err := readFieldVec(&s, state.leaf, int(n))
	if err != nil {
		return nil, err
	}
	state.output = output

	if err := finish(s); err != nil {
		return nil, err
	}
	return state, nil
}

// PrepareMessage: the three sketch elements, or nothing for Done.

func (m *PrepareMessage) EncodedLen() int {
	if m.sketch == nil {
		return 0
	}
	return m.sketch.EncodedLen()
}

func (m *PrepareMessage) AppendBinary(b []byte) ([]byte, error) {
	if m.sketch == nil {
		return b, nil
	}
	return m.sketch.AppendBinary(b)
}

func (m *PrepareMessage) MarshalBinary() ([]byte, error) {
	return m.AppendBinary(make([]byte, 0, m.EncodedLen()))
}

// DecodePrepareMessage decodes the message an aggregator in the given state
// expects: a sketch in RoundOne, Done in RoundTwo.
func DecodePrepareMessage(state *PrepareState, data []byte) (*PrepareMessage, error) {
	if state.round == RoundTwo {
		if len(data) != 0 {
			return nil, codecErrorf(CodecBytesLeftOver, "done message carries %d bytes", len(data))
		}
		return &PrepareMessage{}, nil
	}
	s := cryptobyte.String(data)
	sketch, err := readFieldVec(&s, state.leaf, 3)
	if err != nil {
		return nil, err
	}
	if err := finish(s); err != nil {
		return nil, err
	}
	return &PrepareMessage{sketch: sketch}, nil
}

// AggregationParam: u16 level || u32 prefix count || packed prefixes.
//
// The packed prefixes form one big-endian integer of count*(level+1) bits in
// which prefix i occupies bits [i*(level+1), (i+1)*(level+1)), its first bit the
// most significant. Unused high bits of the first byte are zero.

func packedLen(level uint16, count int) int {
	return int((uint64(count)*(uint64(level)+1) + 7) / 8)
}

func (a *AggregationParam) EncodedLen() int {
	return 2 + 4 + packedLen(a.level, len(a.prefixes))
}

func (a *AggregationParam) AppendBinary(b []byte) ([]byte, error) {
	width := int(a.level) + 1
	packed := make([]byte, packedLen(a.level, len(a.prefixes)))
	for i, prefix := range a.prefixes {
		for j := range width {
			if prefix.Bit(j) {
				pos := i*width + width - 1 - j
				packed[len(packed)-1-pos/8] |= 1 << uint(pos%8)
			}
		}
	}

	builder := cryptobyte.NewBuilder(b)
	builder.AddUint16(a.level)
	builder.AddUint32(uint32(len(a.prefixes)))
	builder.AddBytes(packed)
	return builder.Bytes()
}

func (a *AggregationParam) MarshalBinary() ([]byte, error) {
	return a.AppendBinary(make([]byte, 0, a.EncodedLen()))
}

// DecodeAggregationParam decodes and validates an aggregation parameter.
func DecodeAggregationParam(data []byte) (*AggregationParam, error) {
	s := cryptobyte.String(data)
	var level uint16
	var count uint32
	if !s.ReadUint16(&level) || !s.ReadUint32(&count) {
		return nil, codecErrorf(CodecShortRead, "aggregation parameter header")
	}

	width := uint64(level) + 1
	total := uint64(count) * width
	size := (total + 7) / 8
	if size > uint64(len(s)) || size > math.MaxInt {
		return nil, codecErrorf(CodecShortRead, "want %d bytes of packed prefixes, have %d", size, len(s))
	}
	var packed []byte
	if !s.ReadBytes(&packed, int(size)) {
		return nil, codecErrorf(CodecShortRead, "packed prefixes")
	}
	if err := finish(s); err != nil {
		return nil, err
	}

	if pad := size*8 - total; pad > 0 && packed[0]>>(8-pad) != 0 {
		return nil, codecErrorf(CodecUnexpectedValue, "nonzero padding bits")
	}

	bit := func(pos uint64) bool {
		return packed[uint64(len(packed))-1-pos/8]>>(pos%8)&1 == 1
	}
	prefixes := make([]idpf.Input, count)
	bits := make([]bool, width)
	for i := range prefixes {
		for j := range bits {
			bits[j] = bit(uint64(i)*width + width - 1 - uint64(j))
		}
		prefixes[i] = idpf.FromBools(bits)
	}

	param, err := NewAggregationParam(prefixes)
	if err != nil {
		return nil, &CodecError{Kind: CodecOther, Err: err}
	}
	return param, nil
}
