package types

import (
	"hash/fnv"
	"time"

	"github.com/sentinelwatch/sentinel/ledger"
)

// EventTag is the 8-byte discriminator prefixing every event payload.
type EventTag [8]byte

// Event tags emitted by the sentinel program, sha256("event:<Name>")[:8].
var (
	TagPositionRegistered   = EventTag{128, 82, 15, 99, 22, 150, 238, 103}
	TagHealthCheckCompleted = EventTag{128, 134, 4, 255, 78, 88, 26, 87}
	TagRiskRevealed         = EventTag{213, 255, 86, 151, 199, 125, 212, 169}
	TagActionRequired       = EventTag{149, 55, 253, 113, 143, 63, 95, 88}
)

// Event is one decoded ledger event. The set of implementations is closed:
// every known tag has exactly one variant, and anything else decodes to
// UnrecognizedEvent.
type Event interface {
	// Tag returns the event's discriminator.
	Tag() EventTag
	// Name returns the event's program-side name.
	Name() string
	// String returns a log-friendly description.
	String() string
}

// PositionRegisteredEvent signals that a position account was created and
// its encrypted risk state initialized.
type PositionRegisteredEvent struct {
	Owner      ledger.PublicKey
	PositionID uint32
	Timestamp  int64
}

// HealthCheckCompletedEvent signals that the MPC network finished a health
// check and updated the encrypted risk state.
type HealthCheckCompletedEvent struct {
	Owner      ledger.PublicKey
	PositionID uint32
	Timestamp  int64
}

// RiskRevealedEvent carries the revealed boolean verdict. Only the verdict
// is public; the underlying position values never leave the network.
type RiskRevealedEvent struct {
	IsAtRisk  bool
	Timestamp int64
}

// ActionRequiredEvent carries a suggested mitigation label for an at-risk
// position.
type ActionRequiredEvent struct {
	Action    string
	Timestamp int64
}

// UnrecognizedEvent stands in for tags this agent version does not know.
// Callers skip it; retaining the variant keeps decoding exhaustive.
type UnrecognizedEvent struct {
	RawTag EventTag
}

// PositionSnapshot is one protocol position as reported by the position
// source. Monetary values are integer cents and basis points so they can be
// encrypted as plain integer tuples.
type PositionSnapshot struct {
	Protocol                string
	ValueCents              uint64
	CollateralRatioBps      uint64
	LiquidationThresholdBps uint64
	LastUpdated             time.Time
}

// MonitoredEntity is one position the scheduler currently tracks.
type MonitoredEntity struct {
	ID        uint32
	Owner     ledger.PublicKey
	Protocol  string
	LastCheck time.Time
}

// EntityIDForProtocol assigns a stable position id to a protocol label.
// Stability across restarts matters: the id seeds the position address
// derivation.
func EntityIDForProtocol(protocol string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(protocol))
	return h.Sum32()
}
