package poplar1

import (
	"github.com/flashbots/poplar/crypto"
)

// AggregateInit returns a zero aggregate share sized for the aggregation parameter.
func (p *Poplar1) AggregateInit(aggParam *AggregationParam) *FieldVec {
	if p.isLeaf(aggParam) {
		return NewLeafFieldVec(crypto.ZeroVec[crypto.Field255](aggParam.Len()))
	}
	return NewInnerFieldVec(crypto.ZeroVec[crypto.Field64](aggParam.Len()))
}

// Aggregate sums output shares into an aggregate share.
func (p *Poplar1) Aggregate(aggParam *AggregationParam, outputShares []*FieldVec) (*FieldVec, error) {
	agg := p.AggregateInit(aggParam)
	for _, share := range outputShares {
		if err := agg.Merge(share); err != nil {
			return nil, err
		}
	}
	return agg, nil
}

// Unshard combines the aggregators' aggregate shares into one count per
// candidate prefix, in the order of aggParam.Prefixes().
func (p *Poplar1) Unshard(aggParam *AggregationParam, aggShares []*FieldVec, _ int) ([]uint64, error) {
	if len(aggShares) != NumAggregators {
		return nil, uncategorized("received %d aggregate shares, want %d", len(aggShares), NumAggregators)
	}
	agg, err := p.Aggregate(aggParam, aggShares)
	if err != nil {
		return nil, err
	}
	return agg.ToUint64()
}

// IsAggParamValid reports whether a report that was already prepared with the
// parameters in prev may be prepared with cur: the level must increase and every
// candidate prefix must extend a candidate of the last level.
func IsAggParamValid(cur *AggregationParam, prev []*AggregationParam) bool {
	if len(prev) == 0 {
		return true
	}
	last := prev[len(prev)-1]
	if cur.level <= last.level {
		return false
	}

	known := make(map[string]struct{}, len(last.prefixes))
	for _, prefix := range last.prefixes {
		known[prefix.String()] = struct{}{}
	}
	for _, prefix := range cur.prefixes {
		if _, ok := known[prefix.Prefix(int(last.level)).String()]; !ok {
			return false
		}
	}
	return true
}
