package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentinelwatch/sentinel/agent"
	"github.com/sentinelwatch/sentinel/agent/impl/session"
	"github.com/sentinelwatch/sentinel/alert"
	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/ledger/sim"
	"github.com/sentinelwatch/sentinel/storage"
	"github.com/sentinelwatch/sentinel/types"
)

// recordSink keeps every delivered notification.
type recordSink struct {
	alerts []string
}

func (s *recordSink) Send(severity alert.Severity, message string) error {
	s.alerts = append(s.alerts, string(severity)+": "+message)
	return nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *sim.Ledger, *recordSink,
	*storage.EntityRegistry, types.MonitoredEntity) {

	t.Helper()

	network := sim.NewLedger()
	wallet, err := ledger.GenerateWallet()
	require.NoError(t, err)

	sess, err := session.Negotiate(context.Background(), network,
		agent.RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond}, wallet)
	require.NoError(t, err)

	sink := &recordSink{}
	conf := agent.Configuration{
		Transport:     network,
		Wallet:        wallet,
		CheckInterval: time.Second,
		RevealDelay:   time.Millisecond,
		Alerter:       alert.NewAlerter(sink, time.Nanosecond),
	}

	registry := storage.NewEntityRegistry()
	entity := types.MonitoredEntity{ID: 1, Owner: wallet.PublicKey(), Protocol: "solend"}
	registry.Put(&storage.EntityState{Entity: entity})

	return NewOrchestrator(&conf, sess, registry), network, sink, registry, entity
}

func Test_Orchestrator_EnsureCompDefs_Idempotent(t *testing.T) {
	o, network, _, _, _ := newTestOrchestrator(t)

	err := o.EnsureCompDefs(context.Background())
	require.NoError(t, err)

	for _, circuit := range circuits {
		compDef, _, err := ledger.CompDefAddress(circuit)
		require.NoError(t, err)
		_, exists, err := network.GetAccountInfo(context.Background(), compDef)
		require.NoError(t, err)
		require.True(t, exists)
	}

	// everything already exists, so no submission may happen
	network.FailNextSubmissions(1)
	err = o.EnsureCompDefs(context.Background())
	require.NoError(t, err)
}

func Test_Orchestrator_CheckEntity_FullSequence(t *testing.T) {
	o, network, sink, registry, entity := newTestOrchestrator(t)

	err := o.CheckEntity(context.Background(), entity, types.PositionSnapshot{
		Protocol:                "solend",
		ValueCents:              500000,
		CollateralRatioBps:      12000,
		LiquidationThresholdBps: 8000,
	})
	require.NoError(t, err)

	// the position account was created on first contact
	posAddr, _, err := ledger.PositionAddress(entity.Owner, entity.ID)
	require.NoError(t, err)
	data, exists, err := network.GetAccountInfo(context.Background(), posAddr)
	require.NoError(t, err)
	require.True(t, exists)
	rec, ok := ledger.DecodePositionRecord(data)
	require.True(t, ok)
	require.Equal(t, entity.ID, rec.PositionID)
	require.True(t, rec.IsActive)

	state, ok := registry.Get(entity.ID)
	require.True(t, ok)
	require.Equal(t, storage.PhaseAwaitingRevealResult, state.Phase)

	// the verdict arrives as an event
	o.HandleEvent(types.RiskRevealedEvent{IsAtRisk: true, Timestamp: 99}, "sig-x")

	state, _ = registry.Get(entity.ID)
	require.Equal(t, storage.PhaseResolvedAtRisk, state.Phase)
	require.Len(t, sink.alerts, 1)
	require.Contains(t, sink.alerts[0], "CRITICAL")
	require.Contains(t, sink.alerts[0], "AT RISK")
}

func Test_Orchestrator_SafeVerdict(t *testing.T) {
	o, _, sink, registry, entity := newTestOrchestrator(t)

	err := o.CheckEntity(context.Background(), entity, types.PositionSnapshot{
		ValueCents: 100, CollateralRatioBps: 20000, LiquidationThresholdBps: 8000,
	})
	require.NoError(t, err)

	o.HandleEvent(types.RiskRevealedEvent{IsAtRisk: false, Timestamp: 99}, "sig-x")

	state, _ := registry.Get(entity.ID)
	require.Equal(t, storage.PhaseResolvedSafe, state.Phase)
	require.Empty(t, sink.alerts)
}

func Test_Orchestrator_SubmitFailureLeavesIdle(t *testing.T) {
	o, network, _, registry, entity := newTestOrchestrator(t)

	// first pass registers the position
	err := o.CheckEntity(context.Background(), entity, types.PositionSnapshot{
		ValueCents: 100, CollateralRatioBps: 10000, LiquidationThresholdBps: 8000,
	})
	require.NoError(t, err)
	o.HandleEvent(types.RiskRevealedEvent{IsAtRisk: false}, "sig-x")

	network.FailNextSubmissions(1)
	err = o.CheckEntity(context.Background(), entity, types.PositionSnapshot{
		ValueCents: 100, CollateralRatioBps: 10000, LiquidationThresholdBps: 8000,
	})
	require.Error(t, err)

	state, _ := registry.Get(entity.ID)
	require.Equal(t, storage.PhaseIdle, state.Phase)
}

func Test_Orchestrator_InactivePositionSkipped(t *testing.T) {
	o, network, _, registry, entity := newTestOrchestrator(t)

	posAddr, _, err := ledger.PositionAddress(entity.Owner, entity.ID)
	require.NoError(t, err)
	rec := ledger.PositionRecord{
		Bump: 255, PositionID: entity.ID, Owner: entity.Owner, IsActive: false,
	}
	network.SetAccount(posAddr, rec.Encode())

	network.FailNextSubmissions(1)
	err = o.CheckEntity(context.Background(), entity, types.PositionSnapshot{})
	require.NoError(t, err)

	state, _ := registry.Get(entity.ID)
	require.Equal(t, storage.PhaseIdle, state.Phase)
}

func Test_Orchestrator_VerdictBeforeSubmitReturns(t *testing.T) {
	o, _, sink, registry, entity := newTestOrchestrator(t)

	err := o.CheckEntity(context.Background(), entity, types.PositionSnapshot{
		ValueCents: 100, CollateralRatioBps: 8100, LiquidationThresholdBps: 8000,
	})
	require.NoError(t, err)

	// the verdict can land while the submit call is still in flight and
	// the phase has not advanced past submitting yet
	registry.SetPhase(entity.ID, storage.PhaseSubmittingReveal, 1, 100)
	o.HandleEvent(types.RiskRevealedEvent{IsAtRisk: true, Timestamp: 101}, "sig-x")

	require.NotEmpty(t, sink.alerts)
	require.Contains(t, sink.alerts[0], "CRITICAL")
	require.Contains(t, sink.alerts[0], "AT RISK")

	state, _ := registry.Get(entity.ID)
	require.Equal(t, storage.PhaseResolvedAtRisk, state.Phase)
}

func Test_Orchestrator_VerdictWithoutTrackedEntity(t *testing.T) {
	o, _, sink, registry, entity := newTestOrchestrator(t)
	registry.Del(entity.ID)

	o.HandleEvent(types.RiskRevealedEvent{IsAtRisk: true, Timestamp: 50}, "sig-x")

	require.Len(t, sink.alerts, 1)
	require.Contains(t, sink.alerts[0], "CRITICAL")
	require.Contains(t, sink.alerts[0], "AT RISK")

	// a safe verdict with nobody waiting stays quiet
	o.HandleEvent(types.RiskRevealedEvent{IsAtRisk: false, Timestamp: 51}, "sig-y")
	require.Len(t, sink.alerts, 1)
}

func Test_Orchestrator_ActionRequiredAlert(t *testing.T) {
	o, _, sink, _, _ := newTestOrchestrator(t)

	o.HandleEvent(types.ActionRequiredEvent{Action: "emergency_withdraw"}, "sig-x")

	require.Len(t, sink.alerts, 1)
	require.Contains(t, sink.alerts[0], "ACTION")
	require.Contains(t, sink.alerts[0], "emergency_withdraw")
}
