package protocol

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/flashbots/poplar/idpf"
	"github.com/flashbots/poplar/poplar1"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// ErrNoLevel is returned when a preparation step runs before AdvanceToLevel.
var ErrNoLevel = errors.New("no level in progress")

// ClientService shards measurements into reports.
type ClientService struct {
	vdaf *poplar1.Poplar1

	randMutex sync.Mutex
	rand      io.Reader
}

// NewClientService creates a client service.
func NewClientService(config *HeavyHittersConfig) (*ClientService, error) {
	vdaf, err := config.Vdaf()
	if err != nil {
		return nil, err
	}
	r := config.Rand
	if r == nil {
		r = rand.Reader
	}
	return &ClientService{vdaf: vdaf, rand: r}, nil
}

// Upload shards a measurement into a report with a fresh id and nonce.
func (c *ClientService) Upload(measurement idpf.Input) (*Report, error) {
	report := &Report{}
	random := make([]byte, c.vdaf.RandSize())

	c.randMutex.Lock()
	err := errors.Join(
		readFull(c.rand, report.ID[:]),
		readFull(c.rand, report.Nonce[:]),
		readFull(c.rand, random),
	)
	c.randMutex.Unlock()
	if err != nil {
		return nil, err
	}

	publicShare, inputShares, err := c.vdaf.ShardWithRandom(measurement, report.Nonce, random)
	if err != nil {
		return nil, fmt.Errorf("shard report %s: %w", report.ID, err)
	}

	if report.PublicShare, err = publicShare.MarshalBinary(); err != nil {
		return nil, err
	}
	for j, share := range inputShares {
		if report.InputShares[j], err = share.MarshalBinary(); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// AggregatorStats summarizes an aggregator's activity.
type AggregatorStats struct {
	Reports  int
	Prepared uint64
	Rejected uint64
}

// AggregatorService runs one aggregator's side of preparation for every stored
// report, one level at a time.
type AggregatorService struct {
	config    *HeavyHittersConfig
	vdaf      *poplar1.Poplar1
	aggID     int
	verifyKey []byte
	log       *slog.Logger

	reportsMutex sync.Mutex
	reports      map[ReportID]*storedReport
	order        []ReportID

	levelMutex sync.Mutex
	history    []*poplar1.AggregationParam
	levelData  *AggregatorLevelData

	prepared atomic.Uint64
	rejected atomic.Uint64
}

type storedReport struct {
	nonce       poplar1.Nonce
	publicShare *poplar1.PublicShare
	inputShare  *poplar1.InputShare
	rejected    bool
}

// AggregatorLevelData holds the preparation sessions of the current level.
type AggregatorLevelData struct {
	AggParam  *poplar1.AggregationParam
	States    map[ReportID]*poplar1.PrepareState
	Aggregate *poplar1.FieldVec
	Finished  int
}

// NewAggregatorService creates the service for aggregator aggID. Both aggregators
// must use the same verify key, and exactly one of them aggID 0.
func NewAggregatorService(config *HeavyHittersConfig, aggID int, verifyKey []byte) (*AggregatorService, error) {
	vdaf, err := config.Vdaf()
	if err != nil {
		return nil, err
	}
	if aggID < 0 || aggID >= poplar1.NumAggregators {
		return nil, fmt.Errorf("invalid aggregator id %d", aggID)
	}
	if len(verifyKey) != vdaf.VerifyKeySize() {
		return nil, fmt.Errorf("verify key must be %d bytes, got %d", vdaf.VerifyKeySize(), len(verifyKey))
	}
	return &AggregatorService{
		config:    config,
		vdaf:      vdaf,
		aggID:     aggID,
		verifyKey: slices.Clone(verifyKey),
		log:       config.logger().With("agg_id", aggID),
		reports:   make(map[ReportID]*storedReport),
	}, nil
}

// AddReport decodes and stores this aggregator's share of a report.
func (a *AggregatorService) AddReport(share *ReportShare) error {
	publicShare, err := poplar1.DecodePublicShare(a.vdaf, share.PublicShare)
	if err != nil {
		return fmt.Errorf("report %s: public share: %w", share.ID, err)
	}
	inputShare, err := poplar1.DecodeInputShare(a.vdaf, a.aggID, share.InputShare)
	if err != nil {
		return fmt.Errorf("report %s: input share: %w", share.ID, err)
	}

	a.reportsMutex.Lock()
	defer a.reportsMutex.Unlock()

	if _, ok := a.reports[share.ID]; ok {
		return fmt.Errorf("duplicate report %s", share.ID)
	}
	a.reports[share.ID] = &storedReport{
		nonce:       share.Nonce,
		publicShare: publicShare,
		inputShare:  inputShare,
	}
	a.order = append(a.order, share.ID)
	return nil
}

// AdvanceToLevel starts preparing every non-rejected report with aggParam and
// returns this aggregator's sketch shares. The parameter must extend the ones
// used for earlier levels. A parameter that is refused leaves the stored reports
// and the level history untouched.
func (a *AggregatorService) AdvanceToLevel(ctx context.Context, aggParam *poplar1.AggregationParam) (Batch, error) {
	a.levelMutex.Lock()
	defer a.levelMutex.Unlock()

	if aggParam == nil {
		return nil, errors.New("missing aggregation parameter")
	}
	if aggParam.Level() >= a.vdaf.Bits() {
		return nil, fmt.Errorf("aggregation parameter level %d out of range for %d-bit measurements", aggParam.Level(), a.vdaf.Bits())
	}
	if limit := a.config.MaxPrefixes; limit > 0 && aggParam.Len() > limit {
		return nil, fmt.Errorf("%w: %d candidates at level %d, limit %d", ErrTooManyPrefixes, aggParam.Len(), aggParam.Level(), limit)
	}
	if !poplar1.IsAggParamValid(aggParam, a.history) {
		return nil, fmt.Errorf("aggregation parameter for level %d does not extend the previous level", aggParam.Level())
	}
	if a.levelData != nil && len(a.levelData.States) > 0 {
		a.log.Warn("abandoning unfinished level", "level", a.levelData.AggParam.Level(), "pending", len(a.levelData.States))
	}

	ids, reports := a.activeReports()
	states := make([]*poplar1.PrepareState, len(ids))
	shares := make([][]byte, len(ids))
	errs := make([]error, len(ids))
	err := a.forEach(ctx, len(ids), func(i int) {
		r := reports[i]
		state, share, err := a.vdaf.PrepareInit(a.verifyKey, a.aggID, aggParam, r.nonce, r.publicShare, r.inputShare)
		if err != nil {
			errs[i] = err
			return
		}
		states[i] = state
		shares[i], errs[i] = share.MarshalBinary()
	})
	if err != nil {
		return nil, err
	}

	a.history = append(a.history, aggParam)
	a.levelData = &AggregatorLevelData{
		AggParam:  aggParam,
		States:    make(map[ReportID]*poplar1.PrepareState, len(ids)),
		Aggregate: a.vdaf.AggregateInit(aggParam),
	}

	out := make(Batch, len(ids))
	for i, id := range ids {
		if errs[i] != nil {
			a.reject(id, errs[i])
			continue
		}
		a.levelData.States[id] = states[i]
		out[id] = shares[i]
	}

	a.log.Info("level started", "level", aggParam.Level(), "prefixes", aggParam.Len(), "reports", len(out))
	return out, nil
}

// CombinePrepareShares is run by the leader. It combines its own and the peer's
// prepare shares into the prepare messages for the current round. Reports whose
// shares are missing, malformed or fail verification are rejected and left out.
func (a *AggregatorService) CombinePrepareShares(own, peer Batch) (Batch, error) {
	a.levelMutex.Lock()
	defer a.levelMutex.Unlock()

	if a.levelData == nil {
		return nil, ErrNoLevel
	}

	msgs := make(Batch, len(a.levelData.States))
	for _, id := range a.pendingReports() {
		msg, err := a.combine(id, own[id], peer[id])
		if err != nil {
			a.reject(id, err)
			continue
		}
		msgs[id] = msg
	}
	return msgs, nil
}

func (a *AggregatorService) combine(id ReportID, ownEnc, peerEnc []byte) ([]byte, error) {
	if ownEnc == nil || peerEnc == nil {
		return nil, errors.New("missing prepare share")
	}
	state := a.levelData.States[id]
	ownShare, err := poplar1.DecodePrepareShare(state, ownEnc)
	if err != nil {
		return nil, fmt.Errorf("own prepare share: %w", err)
	}
	peerShare, err := poplar1.DecodePrepareShare(state, peerEnc)
	if err != nil {
		return nil, fmt.Errorf("peer prepare share: %w", err)
	}
	msg, err := a.vdaf.PrepareSharesToPrepareMessage(a.levelData.AggParam, []*poplar1.FieldVec{ownShare, peerShare})
	if err != nil {
		return nil, err
	}
	return msg.MarshalBinary()
}

// ProcessPrepareMessages advances every pending report with the leader's
// messages. Reports without a message are rejected. Reports that finish are
// added to the level's aggregate share; the others yield their next prepare share.
func (a *AggregatorService) ProcessPrepareMessages(ctx context.Context, msgs Batch) (Batch, error) {
	a.levelMutex.Lock()
	defer a.levelMutex.Unlock()

	if a.levelData == nil {
		return nil, ErrNoLevel
	}

	var ids []ReportID
	for _, id := range a.pendingReports() {
		if _, ok := msgs[id]; !ok {
			a.reject(id, errors.New("rejected by leader"))
			continue
		}
		ids = append(ids, id)
	}

	transitions := make([]*poplar1.PrepareTransition, len(ids))
	errs := make([]error, len(ids))
	err := a.forEach(ctx, len(ids), func(i int) {
		state := a.levelData.States[ids[i]]
		msg, err := poplar1.DecodePrepareMessage(state, msgs[ids[i]])
		if err != nil {
			errs[i] = err
			return
		}
		transitions[i], errs[i] = a.vdaf.PrepareNext(state, msg)
	})
	if err != nil {
		return nil, err
	}

	out := make(Batch)
	for i, id := range ids {
		if errs[i] != nil {
			a.reject(id, errs[i])
			continue
		}
		t := transitions[i]
		if t.Finished() {
			if err := a.levelData.Aggregate.Merge(t.OutputShare); err != nil {
				a.reject(id, err)
				continue
			}
			delete(a.levelData.States, id)
			a.levelData.Finished++
			a.prepared.Inc()
			continue
		}
		share, err := t.Share.MarshalBinary()
		if err != nil {
			a.reject(id, err)
			continue
		}
		a.levelData.States[id] = t.State
		out[id] = share
	}
	return out, nil
}

// AggregateShare returns the encoded aggregate share of the current level and
// the number of reports in it. Every report must have finished or been rejected.
func (a *AggregatorService) AggregateShare() ([]byte, int, error) {
	a.levelMutex.Lock()
	defer a.levelMutex.Unlock()

	if a.levelData == nil {
		return nil, 0, ErrNoLevel
	}
	if n := len(a.levelData.States); n > 0 {
		return nil, 0, fmt.Errorf("%d reports still preparing", n)
	}
	enc, err := a.levelData.Aggregate.MarshalBinary()
	if err != nil {
		return nil, 0, err
	}
	return enc, a.levelData.Finished, nil
}

// Rejected returns the ids of rejected reports in upload order.
func (a *AggregatorService) Rejected() []ReportID {
	a.reportsMutex.Lock()
	defer a.reportsMutex.Unlock()

	var res []ReportID
	for _, id := range a.order {
		if a.reports[id].rejected {
			res = append(res, id)
		}
	}
	return res
}

// Stats returns the aggregator's counters.
func (a *AggregatorService) Stats() AggregatorStats {
	a.reportsMutex.Lock()
	n := len(a.reports)
	a.reportsMutex.Unlock()

	return AggregatorStats{
		Reports:  n,
		Prepared: a.prepared.Load(),
		Rejected: a.rejected.Load(),
	}
}

func (a *AggregatorService) activeReports() ([]ReportID, []*storedReport) {
	a.reportsMutex.Lock()
	defer a.reportsMutex.Unlock()

	ids := make([]ReportID, 0, len(a.order))
	reports := make([]*storedReport, 0, len(a.order))
	for _, id := range a.order {
		if r := a.reports[id]; !r.rejected {
			ids = append(ids, id)
			reports = append(reports, r)
		}
	}
	return ids, reports
}

// pendingReports lists the reports of the current level still preparing. Requires levelMutex.
func (a *AggregatorService) pendingReports() []ReportID {
	ids := make([]ReportID, 0, len(a.levelData.States))
	for id := range a.levelData.States {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(x, y ReportID) int {
		return bytes.Compare(x[:], y[:])
	})
	return ids
}

// reject excludes a report from this and all later levels. Requires levelMutex.
func (a *AggregatorService) reject(id ReportID, reason error) {
	level := -1
	if a.levelData != nil {
		delete(a.levelData.States, id)
		level = a.levelData.AggParam.Level()
	}

	a.reportsMutex.Lock()
	if r, ok := a.reports[id]; ok {
		r.rejected = true
	}
	a.reportsMutex.Unlock()
	a.rejected.Inc()

	if errors.Is(reason, poplar1.ErrSketchVerification) {
		a.log.Warn("report failed sketch verification", "report", id.String(), "level", level)
		return
	}
	a.log.Warn("report rejected", "report", id.String(), "level", level, "err", reason)
}

func (a *AggregatorService) forEach(ctx context.Context, n int, fn func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.workers())
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	return g.Wait()
}

// CollectorService turns the aggregators' aggregate shares into counts.
type CollectorService struct {
	vdaf *poplar1.Poplar1
	log  *slog.Logger
}

// NewCollectorService creates a collector service.
func NewCollectorService(config *HeavyHittersConfig) (*CollectorService, error) {
	vdaf, err := config.Vdaf()
	if err != nil {
		return nil, err
	}
	return &CollectorService{vdaf: vdaf, log: config.logger()}, nil
}

// Unshard decodes both aggregate shares and returns one count per candidate prefix.
func (c *CollectorService) Unshard(aggParam *poplar1.AggregationParam, aggShares [][]byte, numMeasurements int) ([]uint64, error) {
	shares := make([]*poplar1.FieldVec, len(aggShares))
	for j, enc := range aggShares {
		share, err := poplar1.DecodeFieldVec(c.vdaf, aggParam, enc)
		if err != nil {
			return nil, fmt.Errorf("aggregate share %d: %w", j, err)
		}
		shares[j] = share
	}
	counts, err := c.vdaf.Unshard(aggParam, shares, numMeasurements)
	if err != nil {
		return nil, err
	}
	c.log.Info("level collected", "level", aggParam.Level(), "prefixes", aggParam.Len(), "measurements", numMeasurements)
	return counts, nil
}

// NextPrefixes extends every candidate whose count reaches threshold by one bit.
// The result is sorted. It fails with ErrTooManyPrefixes when it would exceed
// maxPrefixes, unless maxPrefixes is zero.
func NextPrefixes(aggParam *poplar1.AggregationParam, counts []uint64, threshold uint64, maxPrefixes int) ([]idpf.Input, error) {
	prefixes := aggParam.Prefixes()
	if len(counts) != len(prefixes) {
		return nil, fmt.Errorf("got %d counts for %d prefixes", len(counts), len(prefixes))
	}
	var next []idpf.Input
	for i, prefix := range prefixes {
		if counts[i] >= threshold {
			next = append(next, prefix.Append(false), prefix.Append(true))
		}
	}
	if maxPrefixes > 0 && len(next) > maxPrefixes {
		return nil, fmt.Errorf("%w: %d candidates at level %d, limit %d", ErrTooManyPrefixes, len(next), aggParam.Level()+1, maxPrefixes)
	}
	return next, nil
}
