package impl

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentinelwatch/sentinel/agent"
	"github.com/sentinelwatch/sentinel/agent/impl/orchestrator"
	"github.com/sentinelwatch/sentinel/agent/impl/session"
	"github.com/sentinelwatch/sentinel/alert"
	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/ledger/sim"
	"github.com/sentinelwatch/sentinel/storage"
	"github.com/sentinelwatch/sentinel/types"
)

// safeSink records notifications across daemon goroutines.
type safeSink struct {
	mu     sync.Mutex
	alerts []string
}

func (s *safeSink) Send(severity alert.Severity, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, string(severity)+": "+message)
	return nil
}

func (s *safeSink) find(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if strings.Contains(a, substr) {
			return true
		}
	}
	return false
}

// fixedSource reports the same snapshots every cycle.
type fixedSource struct {
	snaps []types.PositionSnapshot
}

func (s *fixedSource) FetchPositions(ledger.PublicKey) ([]types.PositionSnapshot, error) {
	return s.snaps, nil
}

func newTestConf(t *testing.T, network *sim.Ledger, source *fixedSource,
	sink *safeSink) agent.Configuration {

	t.Helper()

	wallet, err := ledger.GenerateWallet()
	require.NoError(t, err)

	return agent.Configuration{
		Transport:     network,
		Wallet:        wallet,
		CheckInterval: time.Hour,
		RevealDelay:   time.Millisecond,
		KeyRetry:      agent.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
		Positions:     source,
		Alerter:       alert.NewAlerter(sink, time.Nanosecond),
	}
}

// primeNode prepares a node for direct cycle runs without launching the
// daemons.
func primeNode(t *testing.T, conf agent.Configuration) *node {
	t.Helper()

	n := NewAgent(conf).(*node)
	sess, err := session.Negotiate(context.Background(), n.conf.Transport,
		n.conf.KeyRetry, n.conf.Wallet)
	require.NoError(t, err)
	n.sess = sess
	n.orch = orchestrator.NewOrchestrator(&n.conf, sess, n.registry)
	return n
}

func Test_Agent_Cycle_FailureIsolation(t *testing.T) {
	network := sim.NewLedger()
	sink := &safeSink{}
	source := &fixedSource{snaps: []types.PositionSnapshot{
		{Protocol: "alpha", ValueCents: 100, CollateralRatioBps: 12000, LiquidationThresholdBps: 8000},
		{Protocol: "beta", ValueCents: 200, CollateralRatioBps: 15000, LiquidationThresholdBps: 9000},
	}}

	n := primeNode(t, newTestConf(t, network, source, sink))

	// the first submission of the cycle, alpha's registration, is rejected
	network.FailNextSubmissions(1)
	n.runCycle()

	alphaState, ok := n.registry.Get(types.EntityIDForProtocol("alpha"))
	require.True(t, ok)
	require.Equal(t, storage.PhaseIdle, alphaState.Phase)

	betaState, ok := n.registry.Get(types.EntityIDForProtocol("beta"))
	require.True(t, ok)
	require.Equal(t, storage.PhaseAwaitingRevealResult, betaState.Phase)

	require.True(t, sink.find("1 of 2 entity checks failed"))

	// next cycle retries alpha and catches it up
	n.runCycle()
	alphaState, _ = n.registry.Get(types.EntityIDForProtocol("alpha"))
	require.Equal(t, storage.PhaseAwaitingRevealResult, alphaState.Phase)
}

func Test_Agent_Cycle_Watchlist(t *testing.T) {
	network := sim.NewLedger()
	sink := &safeSink{}
	source := &fixedSource{snaps: []types.PositionSnapshot{
		{Protocol: "alpha", ValueCents: 100, CollateralRatioBps: 12000, LiquidationThresholdBps: 8000},
		{Protocol: "beta", ValueCents: 200, CollateralRatioBps: 15000, LiquidationThresholdBps: 9000},
	}}

	n := primeNode(t, newTestConf(t, network, source, sink))
	n.SetWatchlist([]string{"beta"})
	n.runCycle()

	_, ok := n.registry.Get(types.EntityIDForProtocol("alpha"))
	require.False(t, ok)
	_, ok = n.registry.Get(types.EntityIDForProtocol("beta"))
	require.True(t, ok)

	// widening the watchlist picks alpha up on the next cycle
	n.SetWatchlist([]string{"alpha", "beta"})
	n.runCycle()
	_, ok = n.registry.Get(types.EntityIDForProtocol("alpha"))
	require.True(t, ok)
}

func Test_Agent_Cycle_DropsStaleEntities(t *testing.T) {
	network := sim.NewLedger()
	sink := &safeSink{}
	source := &fixedSource{snaps: []types.PositionSnapshot{
		{Protocol: "alpha", ValueCents: 100, CollateralRatioBps: 12000, LiquidationThresholdBps: 8000},
	}}

	n := primeNode(t, newTestConf(t, network, source, sink))
	n.runCycle()
	require.Equal(t, 1, n.registry.Len())

	source.snaps = nil
	n.runCycle()
	require.Equal(t, 0, n.registry.Len())
}

func Test_Agent_EndToEnd_AtRisk(t *testing.T) {
	network := sim.NewLedger()
	network.SetVerdict(func(uint32) bool { return true })
	network.SetCallbackDelay(50 * time.Millisecond)

	sink := &safeSink{}
	source := &fixedSource{snaps: []types.PositionSnapshot{
		{Protocol: "alpha", ValueCents: 100, CollateralRatioBps: 8100, LiquidationThresholdBps: 8000},
	}}

	a := NewAgent(newTestConf(t, network, source, sink))
	require.NoError(t, a.Start())
	defer a.Stop()

	require.Eventually(t, func() bool {
		return sink.find("AT RISK")
	}, 5*time.Second, 20*time.Millisecond)

	n := a.(*node)
	require.Eventually(t, func() bool {
		state, ok := n.registry.Get(types.EntityIDForProtocol("alpha"))
		return ok && state.Phase == storage.PhaseResolvedAtRisk
	}, time.Second, 20*time.Millisecond)

	require.NoError(t, a.Stop())
}

func Test_Agent_Stop_BeforeStart(t *testing.T) {
	network := sim.NewLedger()
	a := NewAgent(newTestConf(t, network, &fixedSource{}, &safeSink{}))
	require.Error(t, a.Stop())
}
