package agent

import (
	"context"
	"time"

	"github.com/sentinelwatch/sentinel/alert"
	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/positions"
)

// Agent monitors DeFi positions through privacy-preserving MPC health
// checks anchored to the ledger.
type Agent interface {
	// Start establishes the encryption session, initializes the circuit
	// definitions and launches the event and monitoring daemons. A key
	// negotiation failure is fatal.
	Start() error

	// Stop cooperatively shuts the daemons down. An in-progress cycle is
	// allowed to finish.
	Stop() error

	// SetWatchlist replaces the set of monitored protocols.
	SetWatchlist(protocols []string)
}

// RetryPolicy is a bounded retry with a fixed delay between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do runs op until it succeeds, attempts are exhausted, or ctx is done.
// The last error is returned unwrapped so callers can classify it.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return err
}

// Configuration carries everything an agent needs. It is constructed once
// at startup and never mutated afterwards.
type Configuration struct {
	// Transport is the ledger RPC layer.
	Transport ledger.Transport

	// Wallet signs transactions and anchors the encryption session.
	Wallet *ledger.Wallet

	// ClusterOffset selects the MPC node group handling computations.
	ClusterOffset uint32

	// CheckInterval is the sleep between monitoring cycles.
	CheckInterval time.Duration

	// RevealDelay is the settling time between submitting a health check
	// and requesting the reveal.
	RevealDelay time.Duration

	// KeyRetry bounds the fetch of the network's published key at startup.
	KeyRetry RetryPolicy

	// Positions reports the owner's current protocol positions.
	Positions positions.Source

	// Alerter delivers outbound notifications.
	Alerter *alert.Alerter

	// Watchlist is the initial set of monitored protocols.
	Watchlist []string
}
