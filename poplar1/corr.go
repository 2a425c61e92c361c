package poplar1

import (
	"github.com/flashbots/poplar/crypto"
)

// corrPrng derives aggregator aggID's correlation stream for one report. Both the
// client and the aggregator construct it from the same seed, so each draws the
// same (a, b, c) shares level after level.
func corrPrng[F crypto.FieldElement[F]](p *Poplar1, seed []byte, usage uint16, aggID int, nonce Nonce) (*crypto.Prng[F], error) {
	prng, err := crypto.NewPrngFromSeed[F](p.xof, seed, p.dst(usage), []byte{byte(aggID)}, nonce[:])
	if err != nil {
		return nil, uncategorized("correlation stream: %v", err)
	}
	return prng, nil
}

// nextCorrShares draws one level's offsets a, b and c from the two aggregators'
// streams and splits A = -2a + auth and B = a^2 + b - a*auth + c between them.
// Aggregator 1's shares are fresh randomness from the shard stream.
func nextCorrShares[F crypto.FieldElement[F]](shard *crypto.Prng[F], corr [2]*crypto.Prng[F], auth F) [2][2]F {
	a := corr[0].Next().Add(corr[1].Next())
	b := corr[0].Next().Add(corr[1].Next())
	c := corr[0].Next().Add(corr[1].Next())

	two := auth.FromUint64(2)
	bigA := two.Mul(a).Neg().Add(auth)
	bigB := a.Mul(a).Add(b).Sub(a.Mul(auth)).Add(c)

	share1 := [2]F{shard.Next(), shard.Next()}
	share0 := [2]F{bigA.Sub(share1[0]), bigB.Sub(share1[1])}
	return [2][2]F{share0, share1}
}

// correlate computes both aggregators' (A, B) shares for every level in auths,
// in order. The result is indexed by aggregator, then by level.
func correlate[F crypto.FieldElement[F]](p *Poplar1, shard *crypto.Prng[F], corrSeeds [2][]byte, usage uint16, nonce Nonce, auths []F) ([2][][2]F, error) {
	var streams [2]*crypto.Prng[F]
	for j := range streams {
		prng, err := corrPrng[F](p, corrSeeds[j], usage, j, nonce)
		if err != nil {
			return [2][][2]F{}, err
		}
		streams[j] = prng
	}

	res := [2][][2]F{make([][2]F, 0, len(auths)), make([][2]F, 0, len(auths))}
	for _, auth := range auths {
		shares := nextCorrShares(shard, streams, auth)
		res[0] = append(res[0], shares[0])
		res[1] = append(res[1], shares[1])
	}
	return res, nil
}
