package poplar1

import (
	"crypto/subtle"
	"math"

	"github.com/flashbots/poplar/crypto"
	"github.com/flashbots/poplar/idpf"
)

// FieldVec is a vector over Field64 (inner levels) or Field255 (the leaf level).
// It carries prepare shares, output shares and aggregate shares alike.
type FieldVec struct {
	leaf      bool
	inner     []crypto.Field64
	leafElems []crypto.Field255
}

// NewInnerFieldVec wraps Field64 elements.
func NewInnerFieldVec(v []crypto.Field64) *FieldVec {
	return &FieldVec{inner: v}
}

// NewLeafFieldVec wraps Field255 elements.
func NewLeafFieldVec(v []crypto.Field255) *FieldVec {
	return &FieldVec{leaf: true, leafElems: v}
}

func newFieldVec[F crypto.FieldElement[F]](v []F) *FieldVec {
	switch v := any(v).(type) {
	case []crypto.Field64:
		return NewInnerFieldVec(v)
	case []crypto.Field255:
		return NewLeafFieldVec(v)
	}
	panic("poplar1: unsupported field")
}

// elems returns the backing slice if the vector holds elements of F, nil otherwise.
func elems[F crypto.FieldElement[F]](v *FieldVec) []F {
	var res []F
	switch p := any(&res).(type) {
	case *[]crypto.Field64:
		if !v.leaf {
			*p = v.inner
		}
	case *[]crypto.Field255:
		if v.leaf {
			*p = v.leafElems
		}
	}
	return res
}

// IsLeaf reports whether the vector holds Field255 elements.
func (v *FieldVec) IsLeaf() bool {
	return v.leaf
}

func (v *FieldVec) Len() int {
	if v.leaf {
		return len(v.leafElems)
	}
	return len(v.inner)
}

// Inner returns a copy of the Field64 elements, or nil for a leaf vector.
func (v *FieldVec) Inner() []crypto.Field64 {
	if v.leaf {
		return nil
	}
	return append([]crypto.Field64(nil), v.inner...)
}

// Leaf returns a copy of the Field255 elements, or nil for an inner vector.
func (v *FieldVec) Leaf() []crypto.Field255 {
	if !v.leaf {
		return nil
	}
	return append([]crypto.Field255(nil), v.leafElems...)
}

// Clone returns a deep copy.
func (v *FieldVec) Clone() *FieldVec {
	return &FieldVec{
		leaf:      v.leaf,
		inner:     append([]crypto.Field64(nil), v.inner...),
		leafElems: append([]crypto.Field255(nil), v.leafElems...),
	}
}

// Merge adds other into v element-wise. Both vectors must hold the same field
// and have the same length.
func (v *FieldVec) Merge(other *FieldVec) error {
	if other == nil {
		return uncategorized("cannot merge a nil field vector")
	}
	if v.leaf != other.leaf {
		return uncategorized("cannot merge leaf and inner field vectors")
	}
	var err error
	if v.leaf {
		err = crypto.VecAddInplace(v.leafElems, other.leafElems)
	} else {
		err = crypto.VecAddInplace(v.inner, other.inner)
	}
	if err != nil {
		return uncategorized("merge: %v", err)
	}
	return nil
}

// Equal compares in constant time with respect to the elements.
func (v *FieldVec) Equal(other *FieldVec) bool {
	if v == nil || other == nil {
		return v == other
	}
	if v.leaf != other.leaf {
		return false
	}
	if v.leaf {
		return crypto.VecEqual(v.leafElems, other.leafElems) == 1
	}
	return crypto.VecEqual(v.inner, other.inner) == 1
}

// ToUint64 converts every element to an integer count.
func (v *FieldVec) ToUint64() ([]uint64, error) {
	if v.leaf {
		return toUint64(v.leafElems)
	}
	return toUint64(v.inner)
}

func toUint64[F crypto.FieldElement[F]](v []F) ([]uint64, error) {
	res := make([]uint64, len(v))
	for i, x := range v {
		n, err := x.ToUint64()
		if err != nil {
			return nil, uncategorized("element %d: %v", i, err)
		}
		res[i] = n
	}
	return res, nil
}

func (v *FieldVec) isZero() bool {
	if v.leaf {
		return crypto.VecEqual(v.leafElems, crypto.ZeroVec[crypto.Field255](len(v.leafElems))) == 1
	}
	return crypto.VecEqual(v.inner, crypto.ZeroVec[crypto.Field64](len(v.inner))) == 1
}

// InputShare is one aggregator's secret share of a report.
type InputShare struct {
	idpfKey   idpf.Key
	corrSeed  []byte
	corrInner [][2]crypto.Field64
	corrLeaf  [2]crypto.Field255
}

// Equal compares the encodings in constant time.
func (s *InputShare) Equal(other *InputShare) bool {
	if s == nil || other == nil {
		return s == other
	}
	a, errA := s.MarshalBinary()
	b, errB := other.MarshalBinary()
	if errA != nil || errB != nil {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// AggregationParam selects the tree level being evaluated and the candidate
// prefixes at that level. It is immutable once built.
type AggregationParam struct {
	level    uint16
	prefixes []idpf.Input
}

// NewAggregationParam validates the candidate prefixes: at least one and at most
// 2^32-1 of them, all of the same length in [1, 2^16], strictly increasing.
func NewAggregationParam(prefixes []idpf.Input) (*AggregationParam, error) {
	if len(prefixes) == 0 {
		return nil, uncategorized("at least one prefix is required")
	}
	if uint64(len(prefixes)) > math.MaxUint32 {
		return nil, uncategorized("too many prefixes: %d", len(prefixes))
	}

	n := prefixes[0].Len()
	if n == 0 {
		return nil, uncategorized("prefixes must not be empty")
	}
	if n > MaxBits {
		return nil, uncategorized("prefix length %d exceeds %d", n, MaxBits)
	}

	for i, prefix := range prefixes {
		if prefix.Len() != n {
			return nil, uncategorized("all prefixes must have the same length")
		}
		if i == 0 {
			continue
		}
		switch prefixes[i-1].Compare(prefix) {
		case 0:
			return nil, uncategorized("prefixes must be nonrepeating")
		case 1:
			return nil, uncategorized("prefixes must be in strict lexicographic order")
		}
	}

	return &AggregationParam{
		level:    uint16(n - 1),
		prefixes: append([]idpf.Input(nil), prefixes...),
	}, nil
}

// Level returns the tree level, i.e. the prefix length minus one.
func (a *AggregationParam) Level() int {
	return int(a.level)
}

// Prefixes returns a copy of the candidate prefixes.
func (a *AggregationParam) Prefixes() []idpf.Input {
	return append([]idpf.Input(nil), a.prefixes...)
}

// Len returns the number of candidate prefixes.
func (a *AggregationParam) Len() int {
	return len(a.prefixes)
}

func (a *AggregationParam) Equal(other *AggregationParam) bool {
	if a.level != other.level || len(a.prefixes) != len(other.prefixes) {
		return false
	}
	for i := range a.prefixes {
		if !a.prefixes[i].Equal(other.prefixes[i]) {
			return false
		}
	}
	return true
}

// SketchRound is the round a PrepareState is waiting in.
type SketchRound uint8

const (
	// RoundOne waits for the combined sketch.
	RoundOne SketchRound = iota
	// RoundTwo waits for the verification result.
	RoundTwo
)

// PrepareState is one aggregator's state for one report during preparation.
// In RoundOne it holds the aggregator's shares of the verification coefficients.
type PrepareState struct {
	leaf     bool
	round    SketchRound
	isLeader bool
	corr     *FieldVec // [A, B] shares, RoundOne only
	output   *FieldVec
}

// IsLeaf reports whether the state belongs to the leaf level.
func (s *PrepareState) IsLeaf() bool {
	return s.leaf
}

func (s *PrepareState) Round() SketchRound {
	return s.round
}

// Equal compares in constant time with respect to the secret shares.
func (s *PrepareState) Equal(other *PrepareState) bool {
	if s == nil || other == nil {
		return s == other
	}
	eq := subtle.ConstantTimeByteEq(boolByte(s.leaf), boolByte(other.leaf))
	eq &= subtle.ConstantTimeByteEq(byte(s.round), byte(other.round))
	eq &= crypto.ConstantTimeBoolEqual(s.isLeader, other.isLeader)
	eq &= boolInt(s.corr.Equal(other.corr))
	eq &= boolInt(s.output.Equal(other.output))
	return eq == 1
}

// PrepareMessage is the value both aggregators agree on after each round: the
// combined sketch after round one, or Done after a successful verification.
type PrepareMessage struct {
	sketch *FieldVec
}

// IsDone reports whether this is the terminal message.
func (m *PrepareMessage) IsDone() bool {
	return m.sketch == nil
}

// Sketch returns the combined sketch, or nil for Done.
func (m *PrepareMessage) Sketch() *FieldVec {
	if m.sketch == nil {
		return nil
	}
	return m.sketch.Clone()
}

func (m *PrepareMessage) Equal(other *PrepareMessage) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.sketch.Equal(other.sketch)
}

// PrepareTransition is the result of PrepareNext: either the next state and the
// share to broadcast, or the finished output share.
type PrepareTransition struct {
	State       *PrepareState
	Share       *FieldVec
	OutputShare *FieldVec
}

// Finished reports whether preparation produced an output share.
func (t *PrepareTransition) Finished() bool {
	return t.OutputShare != nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func boolInt(b bool) int {
	return int(boolByte(b))
}
