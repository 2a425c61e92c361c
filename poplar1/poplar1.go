package poplar1

import (
	"github.com/flashbots/poplar/crypto"
	"github.com/flashbots/poplar/idpf"
)

const (
	// AlgorithmID is the VDAF codepoint of Poplar1.
	AlgorithmID uint32 = 0x00001000

	// NonceSize is the length of report nonces.
	NonceSize = 16

	// NumAggregators is fixed at two.
	NumAggregators = 2

	// MaxBits bounds the measurement length; levels are encoded as u16.
	MaxBits = 1 << 16
)

// Domain separation usages. Each randomness stream gets its own tag so XOF
// output never crosses between streams.
const (
	DstShardRandomness  uint16 = 1
	DstCorrInner        uint16 = 2
	DstCorrLeaf         uint16 = 3
	DstVerifyRandomness uint16 = 4
)

// Nonce is the per-report nonce bound into every XOF.
type Nonce = [NonceSize]byte

// PublicShare is the IDPF public share sent to both aggregators.
type PublicShare = idpf.PublicShare

// Client splits measurements into shares.
type Client interface {
	Shard(measurement idpf.Input, nonce Nonce) (*PublicShare, [NumAggregators]*InputShare, error)
}

// Aggregator runs preparation for one report at a time and sums output shares.
type Aggregator interface {
	PrepareInit(verifyKey []byte, aggID int, aggParam *AggregationParam, nonce Nonce, publicShare *PublicShare, inputShare *InputShare) (*PrepareState, *FieldVec, error)
	PrepareSharesToPrepareMessage(aggParam *AggregationParam, shares []*FieldVec) (*PrepareMessage, error)
	PrepareNext(state *PrepareState, msg *PrepareMessage) (*PrepareTransition, error)
	Aggregate(aggParam *AggregationParam, outputShares []*FieldVec) (*FieldVec, error)
}

// Collector recovers the final counts from the aggregators' aggregate shares.
type Collector interface {
	Unshard(aggParam *AggregationParam, aggShares []*FieldVec, numMeasurements int) ([]uint64, error)
}

var (
	_ Client     = (*Poplar1)(nil)
	_ Aggregator = (*Poplar1)(nil)
	_ Collector  = (*Poplar1)(nil)
)

// Poplar1 is the VDAF configuration: the measurement length in bits and the XOF
// used for correlated and verification randomness. It holds no other state and
// is safe for concurrent use.
type Poplar1 struct {
	bits int
	xof  crypto.XofAlgorithm
}

// New configures Poplar1 for bits-long measurements with the given XOF.
func New(bits int, xof crypto.XofAlgorithm) (*Poplar1, error) {
	if bits < 1 || bits > MaxBits {
		return nil, uncategorized("bits must be in [1, %d], got %d", MaxBits, bits)
	}
	if xof == nil {
		return nil, uncategorized("xof is required")
	}
	return &Poplar1{bits: bits, xof: xof}, nil
}

// NewShake128 configures Poplar1 with the SHAKE128 XOF.
func NewShake128(bits int) (*Poplar1, error) {
	return New(bits, crypto.XofShake128)
}

// Bits returns the measurement length.
func (p *Poplar1) Bits() int {
	return p.bits
}

// Xof returns the configured XOF.
func (p *Poplar1) Xof() crypto.XofAlgorithm {
	return p.xof
}

// SeedSize is the length of correlation seeds and of the verify key.
func (p *Poplar1) SeedSize() int {
	return p.xof.SeedSize()
}

// VerifyKeySize is the length of the key shared by the two aggregators.
func (p *Poplar1) VerifyKeySize() int {
	return p.SeedSize()
}

// RandSize is the amount of randomness ShardWithRandom consumes:
// two IDPF keys followed by two correlation seeds and the shard seed.
func (p *Poplar1) RandSize() int {
	return idpf.RandSize + 3*p.SeedSize()
}

// isLeaf reports whether the aggregation parameter selects the leaf level.
func (p *Poplar1) isLeaf(aggParam *AggregationParam) bool {
	return int(aggParam.level) == p.bits-1
}

func (p *Poplar1) dst(usage uint16) []byte {
	return crypto.DomainSeparationTag(AlgorithmID, usage)
}
