package positions

import (
	"math/rand"
	"sync"
	"time"

	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/types"
)

// Source reports the owner's current protocol positions. An empty result
// makes the monitoring cycle a no-op.
type Source interface {
	FetchPositions(owner ledger.PublicKey) ([]types.PositionSnapshot, error)
}

// protocolBook seeds the simulator with plausible lending positions.
var protocolBook = []types.PositionSnapshot{
	{Protocol: "solend", ValueCents: 1_250_000, CollateralRatioBps: 16500, LiquidationThresholdBps: 11000},
	{Protocol: "marginfi", ValueCents: 480_000, CollateralRatioBps: 13200, LiquidationThresholdBps: 12000},
	{Protocol: "kamino", ValueCents: 2_100_000, CollateralRatioBps: 19000, LiquidationThresholdBps: 10500},
}

// Simulator produces positions with a mild pseudo-random drift around the
// book values, standing in for a real protocol indexer.
type Simulator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	protocols map[string]struct{}
}

// NewSimulator creates a simulator limited to the given protocols. An empty
// list enables the whole book.
func NewSimulator(seed int64, protocols []string) *Simulator {
	s := &Simulator{
		rng:       rand.New(rand.NewSource(seed)),
		protocols: map[string]struct{}{},
	}
	for _, p := range protocols {
		s.protocols[p] = struct{}{}
	}
	return s
}

// SetProtocols replaces the enabled protocol set.
func (s *Simulator) SetProtocols(protocols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocols = map[string]struct{}{}
	for _, p := range protocols {
		s.protocols[p] = struct{}{}
	}
}

// FetchPositions implements positions.Source.
func (s *Simulator) FetchPositions(owner ledger.PublicKey) ([]types.PositionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots := make([]types.PositionSnapshot, 0, len(protocolBook))
	for _, base := range protocolBook {
		if len(s.protocols) > 0 {
			if _, ok := s.protocols[base.Protocol]; !ok {
				continue
			}
		}
		snap := base
		// drift value ±5% and collateral ratio ±800 bps per fetch
		snap.ValueCents = drift(s.rng, snap.ValueCents, snap.ValueCents/20)
		snap.CollateralRatioBps = drift(s.rng, snap.CollateralRatioBps, 800)
		snap.LastUpdated = time.Now()
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func drift(rng *rand.Rand, value, span uint64) uint64 {
	if span == 0 {
		return value
	}
	delta := uint64(rng.Int63n(int64(2*span + 1)))
	if value+span < delta {
		return 0
	}
	return value + delta - span
}
