package idpf

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flashbots/poplar/crypto"
)

// KeySize is the length of IDPF keys and seed correction words.
const KeySize = 16

// RandSize is the amount of randomness consumed by GenWithRandom.
const RandSize = 2 * KeySize

const (
	usageExtend  uint16 = 0
	usageConvert uint16 = 1
)

var (
	// ErrInvalidInput is returned for malformed inputs or parameters.
	ErrInvalidInput = errors.New("idpf: invalid input")

	// ErrFieldMismatch is returned when an output is read with the wrong field type.
	ErrFieldMismatch = errors.New("idpf: output field does not match level")
)

var (
	dstExtend  = tag(usageExtend)
	dstConvert = tag(usageConvert)
)

// tag builds the IDPF domain separation tag: version || class (1) || id (0) || usage.
func tag(usage uint16) []byte {
	dst := crypto.DomainSeparationTag(0, usage)
	dst[1] = 1
	return dst
}

// Key is one aggregator's IDPF key.
type Key = [KeySize]byte

// NodeState is the evaluation state after a tree node: the seed and control bit
// that feed its children.
type NodeState struct {
	Seed [KeySize]byte
	Ctrl bool
}

// Output is an aggregator's additive share of the IDPF value at a node: a pair of
// Field64 elements on inner levels and a pair of Field255 elements on the leaf level.
type Output struct {
	leaf      bool
	inner     [2]crypto.Field64
	leafValue [2]crypto.Field255
}

// IsLeaf reports whether the output was taken at the leaf level.
func (o Output) IsLeaf() bool {
	return o.leaf
}

// Value extracts the output pair in the field F, which must match the level.
func Value[F crypto.FieldElement[F]](o Output) ([2]F, error) {
	var res [2]F
	switch p := any(&res).(type) {
	case *[2]crypto.Field64:
		if o.leaf {
			return res, ErrFieldMismatch
		}
		*p = o.inner
	case *[2]crypto.Field255:
		if !o.leaf {
			return res, ErrFieldMismatch
		}
		*p = o.leafValue
	default:
		return res, ErrFieldMismatch
	}
	return res, nil
}

// Gen programs the IDPF at alpha with randomness from crypto/rand.
func Gen(alpha Input, betaInner [][2]crypto.Field64, betaLeaf [2]crypto.Field255, binder []byte) (*PublicShare, [2]Key, error) {
	var random [RandSize]byte
	if _, err := rand.Read(random[:]); err != nil {
		return nil, [2]Key{}, err
	}
	return GenWithRandom(alpha, betaInner, betaLeaf, binder, random)
}

// GenWithRandom programs the IDPF so that the two keys evaluate to additive shares of
// betaInner[l] at alpha's prefix of length l+1, of betaLeaf at alpha itself, and of
// zero at every other node. The randomness holds the two keys.
func GenWithRandom(alpha Input, betaInner [][2]crypto.Field64, betaLeaf [2]crypto.Field255, binder []byte, random [RandSize]byte) (*PublicShare, [2]Key, error) {
	bits := alpha.Len()
	if bits == 0 {
		return nil, [2]Key{}, fmt.Errorf("%w: empty alpha", ErrInvalidInput)
	}
	if len(betaInner) != bits-1 {
		return nil, [2]Key{}, fmt.Errorf("%w: want %d inner values, got %d", ErrInvalidInput, bits-1, len(betaInner))
	}

	var keys [2]Key
	copy(keys[0][:], random[:KeySize])
	copy(keys[1][:], random[KeySize:])

	seed := keys
	ctrl := [2]bool{false, true}
	ps := &PublicShare{
		bits:    bits,
		seedCW:  make([][KeySize]byte, bits),
		ctrlCW:  make([][2]bool, bits),
		innerCW: make([][2]crypto.Field64, 0, bits-1),
	}

	for level := range bits {
		bit := alpha.Bit(level)
		keep, lose := bitIndex(bit), bitIndex(!bit)

		s0, t0, err := extend(seed[0], binder)
		if err != nil {
			return nil, [2]Key{}, err
		}
		s1, t1, err := extend(seed[1], binder)
		if err != nil {
			return nil, [2]Key{}, err
		}

		seedCW := s0[lose]
		crypto.XorInplace(seedCW[:], s1[lose][:])
		ctrlCW := [2]bool{
			t0[0] != t1[0] != !bit,
			t0[1] != t1[1] != bit,
		}

		x0, x1 := s0[keep], s1[keep]
		condXor(x0[:], seedCW[:], ctrl[0])
		condXor(x1[:], seedCW[:], ctrl[1])
		ctrl[0] = t0[keep] != (ctrl[0] && ctrlCW[keep])
		ctrl[1] = t1[keep] != (ctrl[1] && ctrlCW[keep])

		ps.seedCW[level] = seedCW
		ps.ctrlCW[level] = ctrlCW

		if level < bits-1 {
			next0, w0, err := convert[crypto.Field64](x0, binder)
			if err != nil {
				return nil, [2]Key{}, err
			}
			next1, w1, err := convert[crypto.Field64](x1, binder)
			if err != nil {
				return nil, [2]Key{}, err
			}
			seed[0], seed[1] = next0, next1
			ps.innerCW = append(ps.innerCW, valueCorrection(betaInner[level], w0, w1, ctrl[1]))
		} else {
			_, w0, err := convert[crypto.Field255](x0, binder)
			if err != nil {
				return nil, [2]Key{}, err
			}
			_, w1, err := convert[crypto.Field255](x1, binder)
			if err != nil {
				return nil, [2]Key{}, err
			}
			ps.leafCW = valueCorrection(betaLeaf, w0, w1, ctrl[1])
		}
	}

	return ps, keys, nil
}

// Eval computes aggregator aggID's share of the IDPF value at prefix. Node states
// along the path are read from and written to cache, so evaluating many prefixes
// that share ancestors does not repeat work. A cache must not be shared between
// keys, binders or public shares.
func Eval(aggID int, ps *PublicShare, key Key, prefix Input, binder []byte, cache EvalCache) (Output, error) {
	if aggID != 0 && aggID != 1 {
		return Output{}, fmt.Errorf("%w: aggregator id %d", ErrInvalidInput, aggID)
	}
	if prefix.Len() == 0 || prefix.Len() > ps.bits {
		return Output{}, fmt.Errorf("%w: prefix length %d outside [1, %d]", ErrInvalidInput, prefix.Len(), ps.bits)
	}
	if cache == nil {
		cache = NoCache{}
	}

	target := prefix.Len() - 1
	state := NodeState{Seed: key, Ctrl: aggID == 1}
	start := 0
	for level := target - 1; level >= 0; level-- {
		if cached, ok := cache.Get(prefix.Prefix(level)); ok {
			state = cached
			start = level + 1
			break
		}
	}

	for level := start; level <= target; level++ {
		bit := bitIndex(prefix.Bit(level))

		s, t, err := extend(state.Seed, binder)
		if err != nil {
			return Output{}, err
		}
		cw := ps.seedCW[level]
		condXor(s[0][:], cw[:], state.Ctrl)
		condXor(s[1][:], cw[:], state.Ctrl)
		t[0] = t[0] != (state.Ctrl && ps.ctrlCW[level][0])
		t[1] = t[1] != (state.Ctrl && ps.ctrlCW[level][1])
		ctrl := t[bit]

		if level < target {
			next, _, err := convert[crypto.Field64](s[bit], binder)
			if err != nil {
				return Output{}, err
			}
			state = NodeState{Seed: next, Ctrl: ctrl}
			cache.Insert(prefix.Prefix(level), state)
			continue
		}

		if level < ps.bits-1 {
			next, w, err := convert[crypto.Field64](s[bit], binder)
			if err != nil {
				return Output{}, err
			}
			cache.Insert(prefix.Prefix(level), NodeState{Seed: next, Ctrl: ctrl})
			return Output{inner: correctOutput(w, ps.innerCW[level], ctrl, aggID)}, nil
		}

		_, w, err := convert[crypto.Field255](s[bit], binder)
		if err != nil {
			return Output{}, err
		}
		return Output{leaf: true, leafValue: correctOutput(w, ps.leafCW, ctrl, aggID)}, nil
	}

	// unreachable: the loop always returns at target
	return Output{}, fmt.Errorf("%w: evaluation did not reach level %d", ErrInvalidInput, target)
}

// extend expands a seed into two child seeds and two control bits, taken from
// (and cleared in) the low bit of each child seed.
func extend(seed [KeySize]byte, binder []byte) ([2][KeySize]byte, [2]bool, error) {
	xof, err := crypto.XofFixedKeyAes128.New(seed[:], dstExtend, binder)
	if err != nil {
		return [2][KeySize]byte{}, [2]bool{}, err
	}
	var s [2][KeySize]byte
	var t [2]bool
	for i := range s {
		copy(s[i][:], crypto.XofNext(xof, KeySize))
		t[i] = s[i][0]&1 == 1
		s[i][0] &= 0xfe
	}
	return s, t, nil
}

// convert derives the next level's seed and a pair of field elements from a seed.
func convert[F crypto.FieldElement[F]](seed [KeySize]byte, binder []byte) ([KeySize]byte, [2]F, error) {
	xof, err := crypto.XofFixedKeyAes128.New(seed[:], dstConvert, binder)
	if err != nil {
		return [KeySize]byte{}, [2]F{}, err
	}
	var next [KeySize]byte
	copy(next[:], crypto.XofNext(xof, KeySize))
	prng := crypto.NewPrng[F](xof)
	return next, [2]F{prng.Next(), prng.Next()}, nil
}

// valueCorrection computes (beta - w0 + w1) * (1 - 2*ctrl1).
func valueCorrection[F crypto.FieldElement[F]](beta, w0, w1 [2]F, ctrl1 bool) [2]F {
	var zero F
	mask := zero.One().Sub(zero.FromUint64(2 * uint64(boolByte(ctrl1))))
	var res [2]F
	for i := range res {
		res[i] = beta[i].Sub(w0[i]).Add(w1[i]).Mul(mask)
	}
	return res
}

// correctOutput computes (w + ctrl*cw), negated for aggregator 1.
func correctOutput[F crypto.FieldElement[F]](w, cw [2]F, ctrl bool, aggID int) [2]F {
	var zero F
	c := zero.FromUint64(uint64(boolByte(ctrl)))
	var res [2]F
	for i := range res {
		res[i] = w[i].Add(cw[i].Mul(c))
		if aggID == 1 {
			res[i] = res[i].Neg()
		}
	}
	return res
}

// condXor sets dst ^= src when cond is set, without branching on cond.
func condXor(dst, src []byte, cond bool) {
	mask := -boolByte(cond)
	for i := range dst {
		dst[i] ^= src[i] & mask
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func bitIndex(b bool) int {
	return int(boolByte(b))
}
