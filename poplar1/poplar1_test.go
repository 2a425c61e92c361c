package poplar1

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/flashbots/poplar/crypto"
	"github.com/flashbots/poplar/idpf"
	"github.com/stretchr/testify/require"
)

type testReport struct {
	nonce       Nonce
	publicShare *PublicShare
	inputShares [NumAggregators]*InputShare
}

func randomInput(t *testing.T, bits int) idpf.Input {
	buf := make([]byte, (bits+7)/8)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return idpf.FromBools(idpf.FromBytes(buf).Bools()[:bits])
}

func randomVerifyKey(t *testing.T, p *Poplar1) []byte {
	key := make([]byte, p.VerifyKeySize())
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func shardReport(t *testing.T, p *Poplar1, measurement idpf.Input) testReport {
	var r testReport
	_, err := rand.Read(r.nonce[:])
	require.NoError(t, err)
	r.publicShare, r.inputShares, err = p.Shard(measurement, r.nonce)
	require.NoError(t, err)
	return r
}

// runPrepare takes both aggregators through both rounds and returns their output shares.
func runPrepare(p *Poplar1, verifyKey []byte, aggParam *AggregationParam, r testReport) ([NumAggregators]*FieldVec, error) {
	var out [NumAggregators]*FieldVec
	var states [NumAggregators]*PrepareState
	shares := make([]*FieldVec, NumAggregators)
	for j := range states {
		state, share, err := p.PrepareInit(verifyKey, j, aggParam, r.nonce, r.publicShare, r.inputShares[j])
		if err != nil {
			return out, err
		}
		states[j], shares[j] = state, share
	}

	for round := range 2 {
		msg, err := p.PrepareSharesToPrepareMessage(aggParam, shares)
		if err != nil {
			return out, err
		}
		for j := range states {
			transition, err := p.PrepareNext(states[j], msg)
			if err != nil {
				return out, err
			}
			if round == 1 {
				if !transition.Finished() {
					return out, fmt.Errorf("aggregator %d did not finish", j)
				}
				out[j] = transition.OutputShare
				continue
			}
			states[j], shares[j] = transition.State, transition.Share
		}
	}
	return out, nil
}

func countPrefixes(t *testing.T, p *Poplar1, verifyKey []byte, aggParam *AggregationParam, reports []testReport) []uint64 {
	var outputs [NumAggregators][]*FieldVec
	for _, r := range reports {
		out, err := runPrepare(p, verifyKey, aggParam, r)
		require.NoError(t, err)
		for j := range outputs {
			outputs[j] = append(outputs[j], out[j])
		}
	}

	aggShares := make([]*FieldVec, NumAggregators)
	for j := range outputs {
		agg, err := p.Aggregate(aggParam, outputs[j])
		require.NoError(t, err)
		aggShares[j] = agg
	}
	counts, err := p.Unshard(aggParam, aggShares, len(reports))
	require.NoError(t, err)
	return counts
}

func mustParam(t *testing.T, prefixes ...idpf.Input) *AggregationParam {
	param, err := NewAggregationParam(prefixes)
	require.NoError(t, err)
	return param
}

func mustInput(t *testing.T, s string) idpf.Input {
	in, ok := idpf.FromString(s)
	require.True(t, ok, s)
	return in
}

func TestPoplar1TruePathIsCounted(t *testing.T) {
	for _, xof := range []crypto.XofAlgorithm{crypto.XofShake128, crypto.XofFixedKeyAes128} {
		for _, bits := range []int{1, 2, 3, 8, 17, 63} {
			t.Run(fmt.Sprintf("%s/bits=%d", xof.Name(), bits), func(t *testing.T) {
				p, err := New(bits, xof)
				require.NoError(t, err)
				verifyKey := randomVerifyKey(t, p)

				measurement := randomInput(t, bits)
				r := shardReport(t, p, measurement)

				for level := range bits {
					param := mustParam(t, measurement.Prefix(level))
					counts := countPrefixes(t, p, verifyKey, param, []testReport{r})
					require.Equal(t, []uint64{1}, counts, "level %d", level)
				}
			})
		}
	}
}

func TestPoplar1NonMembership(t *testing.T) {
	p, err := NewShake128(6)
	require.NoError(t, err)
	verifyKey := randomVerifyKey(t, p)

	measurement := mustInput(t, "101100")
	reports := []testReport{shardReport(t, p, measurement), shardReport(t, p, measurement)}

	for level := range 6 {
		// All prefixes of this length: only the true one counts.
		var prefixes []idpf.Input
		for v := range 1 << (level + 1) {
			bits := make([]bool, level+1)
			for j := range bits {
				bits[j] = (v>>(level-j))&1 == 1
			}
			prefixes = append(prefixes, idpf.FromBools(bits))
		}

		counts := countPrefixes(t, p, verifyKey, mustParam(t, prefixes...), reports)
		for i, prefix := range prefixes {
			want := uint64(0)
			if measurement.HasPrefix(prefix) {
				want = 2
			}
			require.Equal(t, want, counts[i], "level %d prefix %s", level, prefix)
		}
	}
}

func TestPoplar1CorruptedCorrelationFailsVerification(t *testing.T) {
	p, err := NewShake128(4)
	require.NoError(t, err)
	verifyKey := randomVerifyKey(t, p)
	measurement := mustInput(t, "0110")
	one64 := crypto.Field64{}.One()
	one255 := crypto.Field255{}.One()

	for level := range 4 {
		for _, coord := range []int{0, 1} {
			for aggID := range NumAggregators {
				t.Run(fmt.Sprintf("level=%d/coord=%d/agg=%d", level, coord, aggID), func(t *testing.T) {
					r := shardReport(t, p, measurement)
					share := r.inputShares[aggID]
					if level == 3 {
						share.corrLeaf[coord] = share.corrLeaf[coord].Add(one255)
					} else {
						share.corrInner[level][coord] = share.corrInner[level][coord].Add(one64)
					}

					_, err := runPrepare(p, verifyKey, mustParam(t, measurement.Prefix(level)), r)
					require.ErrorIs(t, err, ErrSketchVerification)
					require.ErrorIs(t, err, ErrUncategorized)
				})
			}
		}
	}
}

func TestPoplar1CorruptedBytesFailVerification(t *testing.T) {
	p, err := NewShake128(3)
	require.NoError(t, err)
	verifyKey := randomVerifyKey(t, p)
	measurement := mustInput(t, "011")
	r := shardReport(t, p, measurement)

	// Flip a low bit of the first inner correction word; the result stays canonical.
	enc, err := r.inputShares[1].MarshalBinary()
	require.NoError(t, err)
	enc[idpf.KeySize+p.SeedSize()+crypto.Field64EncodedSize] ^= 1
	r.inputShares[1], err = DecodeInputShare(p, 1, enc)
	require.NoError(t, err)

	_, err = runPrepare(p, verifyKey, mustParam(t, measurement.Prefix(0)), r)
	require.ErrorIs(t, err, ErrSketchVerification)

	// Other levels are unaffected.
	_, err = runPrepare(p, verifyKey, mustParam(t, measurement.Prefix(1)), r)
	require.NoError(t, err)
}

func TestPoplar1AggregateIsAdditive(t *testing.T) {
	p, err := NewShake128(4)
	require.NoError(t, err)
	verifyKey := randomVerifyKey(t, p)
	param := mustParam(t, mustInput(t, "00"), mustInput(t, "01"), mustInput(t, "11"))

	var outputs [][NumAggregators]*FieldVec
	for _, m := range []string{"0000", "0111", "0101", "1100", "1000"} {
		out, err := runPrepare(p, verifyKey, param, shardReport(t, p, mustInput(t, m)))
		require.NoError(t, err)
		outputs = append(outputs, out)
	}

	column := func(j int, from, to int) []*FieldVec {
		var res []*FieldVec
		for _, out := range outputs[from:to] {
			res = append(res, out[j])
		}
		return res
	}

	for j := range NumAggregators {
		all, err := p.Aggregate(param, column(j, 0, len(outputs)))
		require.NoError(t, err)
		left, err := p.Aggregate(param, column(j, 0, 2))
		require.NoError(t, err)
		right, err := p.Aggregate(param, column(j, 2, len(outputs)))
		require.NoError(t, err)

		require.NoError(t, left.Merge(right))
		require.True(t, all.Equal(left))
	}

	counts := countPrefixes(t, p, verifyKey, param, nil)
	require.Equal(t, []uint64{0, 0, 0}, counts)
}

func TestPoplar1KnownAnswerHeavyHitters(t *testing.T) {
	p, err := NewShake128(8)
	require.NoError(t, err)
	verifyKey := randomVerifyKey(t, p)

	var reports []testReport
	for _, m := range []string{"a", "b", "c", "d", "e", "f", "g", "g", "h", "i", "i", "i", "j", "j", "k", "l"} {
		reports = append(reports, shardReport(t, p, idpf.FromBytes([]byte(m))))
	}

	const threshold = 2
	candidates := []idpf.Input{mustInput(t, "0"), mustInput(t, "1")}
	var prev []*AggregationParam
	var hitters []idpf.Input
	for level := range p.Bits() {
		param := mustParam(t, candidates...)
		require.True(t, IsAggParamValid(param, prev))
		prev = append(prev, param)

		counts := countPrefixes(t, p, verifyKey, param, reports)
		var next []idpf.Input
		for i, prefix := range param.Prefixes() {
			if counts[i] < threshold {
				continue
			}
			if level == p.Bits()-1 {
				hitters = append(hitters, prefix)
				continue
			}
			next = append(next, prefix.Append(false), prefix.Append(true))
		}
		if len(next) == 0 {
			break
		}
		candidates = next
	}

	require.Equal(t, []idpf.Input{
		idpf.FromBytes([]byte("g")),
		idpf.FromBytes([]byte("i")),
		idpf.FromBytes([]byte("j")),
	}, hitters)
}

func TestPoplar1ShardIsDeterministic(t *testing.T) {
	p, err := New(5, crypto.XofFixedKeyAes128)
	require.NoError(t, err)
	random := make([]byte, p.RandSize())
	_, err = rand.Read(random)
	require.NoError(t, err)
	nonce := Nonce{1, 2, 3}
	measurement := mustInput(t, "10011")

	ps1, shares1, err := p.ShardWithRandom(measurement, nonce, random)
	require.NoError(t, err)
	ps2, shares2, err := p.ShardWithRandom(measurement, nonce, random)
	require.NoError(t, err)

	require.True(t, ps1.Equal(ps2))
	for j := range shares1 {
		require.True(t, shares1[j].Equal(shares2[j]))
	}
	require.False(t, shares1[0].Equal(shares1[1]))

	_, _, err = p.ShardWithRandom(measurement, nonce, random[1:])
	require.ErrorIs(t, err, ErrUncategorized)
}

func TestPoplar1InvalidArguments(t *testing.T) {
	_, err := NewShake128(0)
	require.ErrorIs(t, err, ErrUncategorized)
	_, err = NewShake128(MaxBits + 1)
	require.ErrorIs(t, err, ErrUncategorized)

	p, err := NewShake128(4)
	require.NoError(t, err)
	verifyKey := randomVerifyKey(t, p)

	_, _, err = p.Shard(mustInput(t, "010"), Nonce{})
	require.ErrorIs(t, err, ErrUncategorized)

	measurement := mustInput(t, "0101")
	r := shardReport(t, p, measurement)
	param := mustParam(t, measurement.Prefix(1))

	_, _, err = p.PrepareInit(verifyKey, 2, param, r.nonce, r.publicShare, r.inputShares[0])
	require.ErrorIs(t, err, ErrUncategorized)
	_, _, err = p.PrepareInit(verifyKey[1:], 0, param, r.nonce, r.publicShare, r.inputShares[0])
	require.ErrorIs(t, err, ErrUncategorized)
	_, _, err = p.PrepareInit(verifyKey, 0, mustParam(t, mustInput(t, "01010")), r.nonce, r.publicShare, r.inputShares[0])
	require.ErrorIs(t, err, ErrUncategorized)

	state0, share0, err := p.PrepareInit(verifyKey, 0, param, r.nonce, r.publicShare, r.inputShares[0])
	require.NoError(t, err)
	_, share1, err := p.PrepareInit(verifyKey, 1, param, r.nonce, r.publicShare, r.inputShares[1])
	require.NoError(t, err)

	// Wrong number of shares
	_, err = p.PrepareSharesToPrepareMessage(param, []*FieldVec{share0})
	require.ErrorIs(t, err, ErrUncategorized)

	// Mismatched fields
	leafShare := NewLeafFieldVec(crypto.ZeroVec[crypto.Field255](3))
	_, err = p.PrepareSharesToPrepareMessage(param, []*FieldVec{share0, leafShare})
	require.ErrorIs(t, err, ErrUncategorized)
	require.NotErrorIs(t, err, ErrSketchVerification)

	// Unexpected sketch length
	odd := NewInnerFieldVec(crypto.ZeroVec[crypto.Field64](2))
	_, err = p.PrepareSharesToPrepareMessage(param, []*FieldVec{odd, odd})
	require.ErrorIs(t, err, ErrUncategorized)

	// A RoundOne state cannot accept Done
	_, err = p.PrepareNext(state0, &PrepareMessage{})
	require.ErrorIs(t, err, ErrUncategorized)

	msg, err := p.PrepareSharesToPrepareMessage(param, []*FieldVec{share0, share1})
	require.NoError(t, err)
	require.False(t, msg.IsDone())
	transition, err := p.PrepareNext(state0, msg)
	require.NoError(t, err)
	require.False(t, transition.Finished())
	require.Equal(t, RoundTwo, transition.State.Round())

	// A RoundTwo state cannot accept another sketch
	_, err = p.PrepareNext(transition.State, msg)
	require.ErrorIs(t, err, ErrUncategorized)

	// A leaf sketch does not fit an inner state
	_, err = p.PrepareNext(state0, &PrepareMessage{sketch: leafShare})
	require.ErrorIs(t, err, ErrUncategorized)

	_, err = p.Unshard(param, []*FieldVec{share0}, 1)
	require.ErrorIs(t, err, ErrUncategorized)
}

func TestUnshardLeafOverflow(t *testing.T) {
	p, err := NewShake128(2)
	require.NoError(t, err)
	param := mustParam(t, mustInput(t, "01"))

	big := NewLeafFieldVec([]crypto.Field255{crypto.Field255{}.One().Neg()})
	zero := p.AggregateInit(param)
	require.True(t, zero.IsLeaf())

	_, err = p.Unshard(param, []*FieldVec{big, zero}, 1)
	require.ErrorIs(t, err, ErrUncategorized)
}

func TestAggregationParamValidation(t *testing.T) {
	_, err := NewAggregationParam(nil)
	require.ErrorIs(t, err, ErrUncategorized)

	_, err = NewAggregationParam([]idpf.Input{{}})
	require.ErrorIs(t, err, ErrUncategorized)

	_, err = NewAggregationParam([]idpf.Input{mustInput(t, "01"), mustInput(t, "011")})
	require.ErrorIs(t, err, ErrUncategorized)

	_, err = NewAggregationParam([]idpf.Input{mustInput(t, "01"), mustInput(t, "01")})
	require.ErrorContains(t, err, "nonrepeating")

	_, err = NewAggregationParam([]idpf.Input{mustInput(t, "10"), mustInput(t, "01")})
	require.ErrorContains(t, err, "lexicographic")

	param, err := NewAggregationParam([]idpf.Input{mustInput(t, "00"), mustInput(t, "01"), mustInput(t, "11")})
	require.NoError(t, err)
	require.Equal(t, 1, param.Level())
	require.Equal(t, 3, param.Len())
}

func TestIsAggParamValid(t *testing.T) {
	first := mustParam(t, mustInput(t, "0"), mustInput(t, "1"))
	second := mustParam(t, mustInput(t, "00"), mustInput(t, "11"))

	require.True(t, IsAggParamValid(first, nil))
	require.True(t, IsAggParamValid(second, []*AggregationParam{first}))

	// Level must strictly increase
	require.False(t, IsAggParamValid(first, []*AggregationParam{first}))
	require.False(t, IsAggParamValid(first, []*AggregationParam{first, second}))

	// Candidates must extend the last level's candidates
	third := mustParam(t, mustInput(t, "0000"), mustInput(t, "0100"))
	require.False(t, IsAggParamValid(third, []*AggregationParam{first, second}))
	fourth := mustParam(t, mustInput(t, "0001"), mustInput(t, "1101"))
	require.True(t, IsAggParamValid(fourth, []*AggregationParam{first, second}))
}
