package poplar1

import (
	"crypto/rand"

	"github.com/flashbots/poplar/crypto"
	"github.com/flashbots/poplar/idpf"
)

// Shard splits a measurement into a public share and one input share per
// aggregator, drawing fresh randomness from crypto/rand.
func (p *Poplar1) Shard(measurement idpf.Input, nonce Nonce) (*PublicShare, [NumAggregators]*InputShare, error) {
	random := make([]byte, p.RandSize())
	if _, err := rand.Read(random); err != nil {
		return nil, [NumAggregators]*InputShare{}, uncategorized("read randomness: %v", err)
	}
	return p.ShardWithRandom(measurement, nonce, random)
}

// ShardWithRandom is Shard with caller-supplied randomness of RandSize bytes:
// the two IDPF keys, the two correlation seeds and the shard seed, in that order.
func (p *Poplar1) ShardWithRandom(measurement idpf.Input, nonce Nonce, random []byte) (*PublicShare, [NumAggregators]*InputShare, error) {
	var shares [NumAggregators]*InputShare
	if measurement.Len() != p.bits {
		return nil, shares, uncategorized("measurement has %d bits, want %d", measurement.Len(), p.bits)
	}
	if len(random) != p.RandSize() {
		return nil, shares, uncategorized("want %d bytes of randomness, got %d", p.RandSize(), len(random))
	}

	seedSize := p.SeedSize()
	var idpfRandom [idpf.RandSize]byte
	copy(idpfRandom[:], random)
	rest := random[idpf.RandSize:]
	corrSeeds := [2][]byte{rest[:seedSize], rest[seedSize : 2*seedSize]}
	shardSeed := rest[2*seedSize:]

	// Authenticators: one Field64 per inner level, then one Field255 for the leaf.
	// The same stream later supplies aggregator 1's correlation shares.
	shardInner, err := crypto.NewPrngFromSeed[crypto.Field64](p.xof, shardSeed, p.dst(DstShardRandomness))
	if err != nil {
		return nil, shares, uncategorized("shard stream: %v", err)
	}
	authInner := make([]crypto.Field64, p.bits-1)
	for i := range authInner {
		authInner[i] = shardInner.Next()
	}
	shardLeaf := crypto.Continue[crypto.Field255](shardInner)
	authLeaf := shardLeaf.Next()

	one := crypto.Field64{}.One()
	betaInner := make([][2]crypto.Field64, len(authInner))
	for i, auth := range authInner {
		betaInner[i] = [2]crypto.Field64{one, auth}
	}
	betaLeaf := [2]crypto.Field255{crypto.Field255{}.One(), authLeaf}

	publicShare, keys, err := idpf.GenWithRandom(measurement, betaInner, betaLeaf, nonce[:], idpfRandom)
	if err != nil {
		return nil, shares, uncategorized("idpf: %v", err)
	}

	corrInner, err := correlate(p, crypto.Continue[crypto.Field64](shardLeaf), corrSeeds, DstCorrInner, nonce, authInner)
	if err != nil {
		return nil, shares, err
	}
	corrLeaf, err := correlate(p, crypto.Continue[crypto.Field255](shardLeaf), corrSeeds, DstCorrLeaf, nonce, []crypto.Field255{authLeaf})
	if err != nil {
		return nil, shares, err
	}

	for j := range shares {
		shares[j] = &InputShare{
			idpfKey:   keys[j],
			corrSeed:  append([]byte(nil), corrSeeds[j]...),
			corrInner: corrInner[j],
			corrLeaf:  corrLeaf[j][0],
		}
	}
	return publicShare, shares, nil
}
