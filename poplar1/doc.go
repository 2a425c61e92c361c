// Package poplar1 implements the Poplar1 verifiable distributed aggregation
// function for heavy-hitters counting over bit-string measurements.
//
// A client shards each measurement into a public share and two input shares
// (Shard). For a chosen tree level and set of candidate prefixes
// (AggregationParam), each of the two aggregators evaluates its share at every
// candidate and runs a two-round exchange that verifies, without revealing the
// measurement, that the client's shares encode a weight of 0 or 1 per prefix:
//
//	state, share := PrepareInit(...)                    // both aggregators
//	msg := PrepareSharesToPrepareMessage(share0, share1) // combined sketch
//	t := PrepareNext(state, msg)                         // verifier share
//	msg = PrepareSharesToPrepareMessage(v0, v1)          // Done, or ErrSketchVerification
//	t = PrepareNext(t.State, msg)                        // output share
//
// Output shares of accepted reports are summed (Aggregate) and the collector
// combines both aggregate shares into per-prefix counts (Unshard).
//
// Inner levels work over Field64, the leaf level over Field255. All operations
// are pure functions of their arguments and safe to call concurrently; secret
// shares are compared in constant time.
package poplar1
