package protocol

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/flashbots/poplar/idpf"
	"github.com/flashbots/poplar/poplar1"
)

// HeavyHitter is a full-length measurement that reached the threshold.
type HeavyHitter struct {
	Prefix idpf.Input
	Count  uint64
}

// HeavyHittersResult is the outcome of RunHeavyHitters.
type HeavyHittersResult struct {
	// HeavyHitters are sorted lexicographically.
	HeavyHitters []HeavyHitter

	// Levels is the number of tree levels evaluated.
	Levels int

	// Rejected lists reports excluded by either aggregator.
	Rejected []ReportID
}

// Deployment wires one client, both aggregators and the collector in process.
type Deployment struct {
	Config    *HeavyHittersConfig
	Client    *ClientService
	Leader    *AggregatorService
	Helper    *AggregatorService
	Collector *CollectorService
	vdaf      *poplar1.Poplar1
}

// NewDeployment creates all services with a fresh verify key.
func NewDeployment(cfg *HeavyHittersConfig) (*Deployment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	vdaf, err := cfg.Vdaf()
	if err != nil {
		return nil, err
	}

	r := cfg.Rand
	if r == nil {
		r = rand.Reader
	}
	verifyKey := make([]byte, vdaf.VerifyKeySize())
	if err := readFull(r, verifyKey); err != nil {
		return nil, err
	}

	d := &Deployment{Config: cfg, vdaf: vdaf}
	if d.Client, err = NewClientService(cfg); err != nil {
		return nil, err
	}
	if d.Leader, err = NewAggregatorService(cfg, 0, verifyKey); err != nil {
		return nil, err
	}
	if d.Helper, err = NewAggregatorService(cfg, 1, verifyKey); err != nil {
		return nil, err
	}
	if d.Collector, err = NewCollectorService(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

// Upload shards a measurement and delivers each share to its aggregator.
func (d *Deployment) Upload(measurement idpf.Input) (*Report, error) {
	report, err := d.Client.Upload(measurement)
	if err != nil {
		return nil, err
	}
	for j, agg := range []*AggregatorService{d.Leader, d.Helper} {
		share, err := report.ShareFor(j)
		if err != nil {
			return nil, err
		}
		if err := agg.AddReport(share); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// CountLevel prepares every stored report at aggParam and returns the counts.
func (d *Deployment) CountLevel(ctx context.Context, aggParam *poplar1.AggregationParam) ([]uint64, error) {
	leaderShares, err := d.Leader.AdvanceToLevel(ctx, aggParam)
	if err != nil {
		return nil, fmt.Errorf("leader: %w", err)
	}
	helperShares, err := d.Helper.AdvanceToLevel(ctx, aggParam)
	if err != nil {
		return nil, fmt.Errorf("helper: %w", err)
	}

	// Two exchanges: the combined sketch, then the verification result.
	for range 2 {
		msgs, err := d.Leader.CombinePrepareShares(leaderShares, helperShares)
		if err != nil {
			return nil, fmt.Errorf("leader: %w", err)
		}
		if leaderShares, err = d.Leader.ProcessPrepareMessages(ctx, msgs); err != nil {
			return nil, fmt.Errorf("leader: %w", err)
		}
		if helperShares, err = d.Helper.ProcessPrepareMessages(ctx, msgs); err != nil {
			return nil, fmt.Errorf("helper: %w", err)
		}
	}

	leaderAgg, n, err := d.Leader.AggregateShare()
	if err != nil {
		return nil, fmt.Errorf("leader: %w", err)
	}
	helperAgg, helperN, err := d.Helper.AggregateShare()
	if err != nil {
		return nil, fmt.Errorf("helper: %w", err)
	}
	if n != helperN {
		return nil, fmt.Errorf("aggregators disagree on report count: %d != %d", n, helperN)
	}
	return d.Collector.Unshard(aggParam, [][]byte{leaderAgg, helperAgg}, n)
}

// Run walks the tree level by level from the root, keeping the children of
// every prefix whose count reaches the threshold, and returns the leaves that do.
// Cancellation is checked between levels.
func (d *Deployment) Run(ctx context.Context) (*HeavyHittersResult, error) {
	log := d.Config.logger()
	res := &HeavyHittersResult{}
	candidates := []idpf.Input{idpf.FromBools([]bool{false}), idpf.FromBools([]bool{true})}

	for level := range d.vdaf.Bits() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		aggParam, err := poplar1.NewAggregationParam(candidates)
		if err != nil {
			return nil, err
		}
		counts, err := d.CountLevel(ctx, aggParam)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", level, err)
		}
		res.Levels++

		if level == d.vdaf.Bits()-1 {
			for i, prefix := range aggParam.Prefixes() {
				if counts[i] >= d.Config.Threshold {
					res.HeavyHitters = append(res.HeavyHitters, HeavyHitter{Prefix: prefix, Count: counts[i]})
				}
			}
			break
		}

		candidates, err = NextPrefixes(aggParam, counts, d.Config.Threshold, d.Config.MaxPrefixes)
		if err != nil {
			return nil, err
		}
		log.Info("level done", "level", level, "candidates", aggParam.Len(), "surviving", len(candidates)/2)
		if len(candidates) == 0 {
			break
		}
	}

	res.Rejected = mergeRejected(d.Leader.Rejected(), d.Helper.Rejected())
	log.Info("heavy hitters done", "levels", res.Levels, "heavy_hitters", len(res.HeavyHitters), "rejected", len(res.Rejected))
	return res, nil
}

// RunHeavyHitters uploads every measurement and runs the full traversal.
func RunHeavyHitters(ctx context.Context, cfg *HeavyHittersConfig, measurements []idpf.Input) (*HeavyHittersResult, error) {
	d, err := NewDeployment(cfg)
	if err != nil {
		return nil, err
	}
	for i, m := range measurements {
		if _, err := d.Upload(m); err != nil {
			return nil, fmt.Errorf("measurement %d: %w", i, err)
		}
	}
	return d.Run(ctx)
}

func mergeRejected(lists ...[]ReportID) []ReportID {
	seen := make(map[ReportID]struct{})
	var res []ReportID
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			res = append(res, id)
		}
	}
	return res
}
