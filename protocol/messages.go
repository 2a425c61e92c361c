package protocol

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/flashbots/poplar/poplar1"
)

// ReportID identifies an uploaded report.
type ReportID [16]byte

func (id ReportID) String() string {
	return hex.EncodeToString(id[:])
}

// Report is what a client uploads: the public share for both aggregators and
// one encoded input share per aggregator.
type Report struct {
	ID          ReportID
	Nonce       poplar1.Nonce
	PublicShare []byte
	InputShares [poplar1.NumAggregators][]byte
}

// Batch carries one encoded value per report between the aggregators: prepare
// shares in one direction, prepare messages in the other. A report missing from
// a message batch has been rejected by the leader.
type Batch map[ReportID][]byte

// ShareFor returns the report as seen by aggregator aggID.
func (r *Report) ShareFor(aggID int) (*ReportShare, error) {
	if aggID < 0 || aggID >= poplar1.NumAggregators {
		return nil, fmt.Errorf("invalid aggregator id %d", aggID)
	}
	return &ReportShare{
		ID:          r.ID,
		Nonce:       r.Nonce,
		PublicShare: r.PublicShare,
		InputShare:  r.InputShares[aggID],
	}, nil
}

// ReportShare is the part of a report delivered to one aggregator.
type ReportShare struct {
	ID          ReportID
	Nonce       poplar1.Nonce
	PublicShare []byte
	InputShare  []byte
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read randomness: %w", err)
	}
	return nil
}
