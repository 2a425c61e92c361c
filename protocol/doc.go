// Package protocol runs the heavy-hitters protocol on top of Poplar1 with one
// client role, two aggregators and a collector, all exchanging encoded messages.
//
// # Roles
//
//  1. ClientService: shards each measurement into a Report holding the encoded
//     public share and one encoded input share per aggregator.
//
//  2. AggregatorService: stores its share of every report and prepares all of
//     them for one aggregation parameter (tree level plus candidate prefixes) at
//     a time. Aggregator 0 is the leader: it combines both aggregators' prepare
//     shares into the prepare messages that both then consume. Preparation of
//     individual reports runs on a bounded worker pool.
//
//  3. CollectorService: decodes both aggregate shares and recovers one count
//     per candidate prefix.
//
// # Level Flow
//
// For each level the aggregators go through AdvanceToLevel, two rounds of
// CombinePrepareShares and ProcessPrepareMessages, then AggregateShare:
//
//	leader.AdvanceToLevel / helper.AdvanceToLevel   -> sketch shares
//	leader.CombinePrepareShares                      -> combined sketches
//	ProcessPrepareMessages (both)                    -> verifier shares
//	leader.CombinePrepareShares                      -> Done, or rejection
//	ProcessPrepareMessages (both)                    -> output shares summed
//	AggregateShare (both) + collector.Unshard        -> counts
//
// NextPrefixes extends the candidates that reached the threshold by one bit.
// Deployment and RunHeavyHitters wire all roles in process and walk the tree
// from the root to the leaves.
//
// # Rejections
//
// A report whose sketch fails verification, or whose shares cannot be decoded,
// is rejected: it is logged, counted, excluded from the current aggregate and
// never prepared again. Rejecting one report does not affect the others. The
// leader drops rejected reports from its message batch, which tells the helper
// to reject them too.
//
// # Aggregation Parameters
//
// An aggregator only accepts parameters that extend its history: the level must
// increase and every candidate must extend a candidate of the previous level.
package protocol
