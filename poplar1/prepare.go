package poplar1

import (
	"encoding/binary"

	"github.com/flashbots/poplar/crypto"
	"github.com/flashbots/poplar/idpf"
)

// PrepareInit evaluates the IDPF at every candidate prefix and returns the
// RoundOne state together with the sketch share to broadcast.
//
// Exactly one of the two aggregators must use aggID 0: the non-leader adds the
// term that makes the combined verifier vanish, so two aggregators claiming the
// same id break verification.
func (p *Poplar1) PrepareInit(verifyKey []byte, aggID int, aggParam *AggregationParam, nonce Nonce, publicShare *PublicShare, inputShare *InputShare) (*PrepareState, *FieldVec, error) {
	if aggID != 0 && aggID != 1 {
		return nil, nil, uncategorized("invalid aggregator id %d", aggID)
	}
	if len(verifyKey) != p.VerifyKeySize() {
		return nil, nil, uncategorized("verify key has %d bytes, want %d", len(verifyKey), p.VerifyKeySize())
	}
	if aggParam == nil || publicShare == nil || inputShare == nil {
		return nil, nil, uncategorized("missing aggregation parameter or report share")
	}
	if aggParam.Level() >= p.bits {
		return nil, nil, uncategorized("level %d out of range for %d bits", aggParam.Level(), p.bits)
	}
	if publicShare.Bits() != p.bits || len(inputShare.corrInner) != p.bits-1 {
		return nil, nil, uncategorized("report share does not match %d bits", p.bits)
	}

	if p.isLeaf(aggParam) {
		return prepareInit(p, verifyKey, aggID, aggParam, nonce, publicShare, inputShare, DstCorrLeaf, 0, inputShare.corrLeaf)
	}
	// The inner stream holds three draws per level; skip the levels before this one.
	level := aggParam.Level()
	return prepareInit(p, verifyKey, aggID, aggParam, nonce, publicShare, inputShare, DstCorrInner, 3*level, inputShare.corrInner[level])
}

func prepareInit[F crypto.FieldElement[F]](
	p *Poplar1,
	verifyKey []byte,
	aggID int,
	aggParam *AggregationParam,
	nonce Nonce,
	publicShare *PublicShare,
	inputShare *InputShare,
	usage uint16,
	skip int,
	corr [2]F,
) (*PrepareState, *FieldVec, error) {
	corrStream, err := corrPrng[F](p, inputShare.corrSeed, usage, aggID, nonce)
	if err != nil {
		return nil, nil, err
	}
	corrStream.Skip(skip)

	var levelBytes [2]byte
	binary.BigEndian.PutUint16(levelBytes[:], aggParam.level)
	verifyStream, err := crypto.NewPrngFromSeed[F](p.xof, verifyKey, p.dst(DstVerifyRandomness), nonce[:], levelBytes[:])
	if err != nil {
		return nil, nil, uncategorized("verify stream: %v", err)
	}

	// Start from this aggregator's shares of (a, b, c).
	sketch := []F{corrStream.Next(), corrStream.Next(), corrStream.Next()}
	output := make([]F, 0, len(aggParam.prefixes))
	cache := idpf.NewMapCache()
	for _, prefix := range aggParam.prefixes {
		out, err := idpf.Eval(aggID, publicShare, inputShare.idpfKey, prefix, nonce[:], cache)
		if err != nil {
			return nil, nil, uncategorized("idpf eval: %v", err)
		}
		share, err := idpf.Value[F](out)
		if err != nil {
			return nil, nil, uncategorized("idpf eval: %v", err)
		}

		r := verifyStream.Next()
		checked := share[0].Mul(r)
		sketch[0] = sketch[0].Add(checked)
		sketch[1] = sketch[1].Add(checked.Mul(r))
		sketch[2] = sketch[2].Add(share[1].Mul(r))
		output = append(output, share[0])
	}

	state := &PrepareState{
		leaf:     p.isLeaf(aggParam),
		round:    RoundOne,
		isLeader: aggID == 0,
		corr:     newFieldVec([]F{corr[0], corr[1]}),
		output:   newFieldVec(output),
	}
	return state, newFieldVec(sketch), nil
}

// PrepareSharesToPrepareMessage combines the two aggregators' prepare shares.
// Three-element shares yield the combined sketch; single-element shares are the
// verifier, which must sum to zero.
func (p *Poplar1) PrepareSharesToPrepareMessage(aggParam *AggregationParam, shares []*FieldVec) (*PrepareMessage, error) {
	if len(shares) != NumAggregators {
		return nil, uncategorized("received %d prepare shares, want %d", len(shares), NumAggregators)
	}
	if shares[0] == nil || shares[1] == nil {
		return nil, uncategorized("missing prepare share")
	}
	if shares[0].leaf != shares[1].leaf {
		return nil, uncategorized("received prep shares with mismatched field types")
	}

	merged := shares[0].Clone()
	if err := merged.Merge(shares[1]); err != nil {
		return nil, err
	}

	switch merged.Len() {
	case 1:
		if !merged.isZero() {
			return nil, ErrSketchVerification
		}
		return &PrepareMessage{}, nil
	case 3:
		return &PrepareMessage{sketch: merged}, nil
	}
	return nil, uncategorized("unexpected sketch length %d", merged.Len())
}

// PrepareNext advances the state with the combined message. A RoundOne state and
// a sketch yield the verifier share; a RoundTwo state and Done yield the output share.
func (p *Poplar1) PrepareNext(state *PrepareState, msg *PrepareMessage) (*PrepareTransition, error) {
	if state == nil || msg == nil {
		return nil, uncategorized("missing prepare state or message")
	}

	switch {
	case state.round == RoundOne && !msg.IsDone():
		if state.leaf != msg.sketch.leaf {
			return nil, uncategorized("prepare message field does not match state")
		}
		if msg.sketch.Len() != 3 {
			return nil, uncategorized("unexpected sketch length %d", msg.sketch.Len())
		}
		var share *FieldVec
		if state.leaf {
			share = verifierShare[crypto.Field255](state, msg.sketch)
		} else {
			share = verifierShare[crypto.Field64](state, msg.sketch)
		}
		next := &PrepareState{
			leaf:     state.leaf,
			round:    RoundTwo,
			isLeader: state.isLeader,
			output:   state.output,
		}
		return &PrepareTransition{State: next, Share: share}, nil

	case state.round == RoundTwo && msg.IsDone():
		return &PrepareTransition{OutputShare: state.output.Clone()}, nil
	}

	return nil, uncategorized("prepare message does not match state round %d", state.round)
}

// verifierShare computes A*s0 + B, plus s0^2 - s1 - s2 for the non-leader.
func verifierShare[F crypto.FieldElement[F]](state *PrepareState, sketch *FieldVec) *FieldVec {
	corr := elems[F](state.corr)
	s := elems[F](sketch)

	v := corr[0].Mul(s[0]).Add(corr[1])
	if !state.isLeader {
		v = v.Add(s[0].Mul(s[0]).Sub(s[1]).Sub(s[2]))
	}
	return newFieldVec([]F{v})
}
