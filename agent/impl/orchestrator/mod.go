package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/sentinelwatch/sentinel/agent"
	"github.com/sentinelwatch/sentinel/agent/impl/session"
	"github.com/sentinelwatch/sentinel/alert"
	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/storage"
	"github.com/sentinelwatch/sentinel/types"
)

// circuits lists every computation definition the agent initializes at
// startup, in dependency order.
var circuits = []string{
	ledger.CircuitInitRiskState,
	ledger.CircuitCheckHealth,
	ledger.CircuitRevealRisk,
}

// Orchestrator drives the submit → await → reveal lifecycle of monitored
// entities. Its per-entity state lives in the registry and is only mutated
// from the single scheduler loop and the single event consumer.
type Orchestrator struct {
	conf     *agent.Configuration
	session  *session.Session
	registry *storage.EntityRegistry
}

func NewOrchestrator(conf *agent.Configuration, sess *session.Session,
	registry *storage.EntityRegistry) *Orchestrator {

	o := Orchestrator{
		conf:     conf,
		session:  sess,
		registry: registry,
	}
	return &o
}

/** Feature Functions **/

// EnsureCompDefs initializes the computation definition of every circuit.
// A definition whose derived address already holds data is skipped, so the
// call is safe to repeat across restarts.
func (o *Orchestrator) EnsureCompDefs(ctx context.Context) error {
	payer := o.conf.Wallet.PublicKey()

	for _, circuit := range circuits {
		compDef, _, err := ledger.CompDefAddress(circuit)
		if err != nil {
			return err
		}

		_, exists, err := o.conf.Transport.GetAccountInfo(ctx, compDef)
		if err != nil {
			return xerrors.Errorf("probe comp def %s: %v", circuit, err)
		}
		if exists {
			log.Debug().Msgf("comp def %s already initialized", circuit)
			continue
		}

		accs, err := ledger.DeriveComputationAccounts(0, o.conf.ClusterOffset)
		if err != nil {
			return err
		}
		ix := ledger.NewInitCompDefInstruction(payer, circuit, accs, compDef)
		sig, err := o.submit(ctx, ix)
		if err != nil {
			return xerrors.Errorf("init comp def %s: %v", circuit, err)
		}
		log.Info().Msgf("initialized comp def %s: %s", circuit, sig)
	}
	return nil
}

// CheckEntity runs one full check sequence for an entity: register if
// needed, encrypt the snapshot, submit the health check, wait the settling
// delay, then request the reveal. Submission failures leave the entity idle
// so the next cycle retries; they never abort the cycle.
func (o *Orchestrator) CheckEntity(ctx context.Context, entity types.MonitoredEntity,
	snapshot types.PositionSnapshot) error {

	if err := o.ensureRegistered(ctx, entity); err != nil {
		return err
	}

	// respect the on-chain active flag; the program rejects inactive
	// positions anyway
	posAddr, _, err := ledger.PositionAddress(entity.Owner, entity.ID)
	if err != nil {
		return err
	}
	if data, exists, err := o.conf.Transport.GetAccountInfo(ctx, posAddr); err == nil && exists {
		if rec, ok := ledger.DecodePositionRecord(data); ok && !rec.IsActive {
			log.Info().Msgf("position %d inactive, skipping check", entity.ID)
			return nil
		}
	}

	if err := o.submitCheck(ctx, entity, snapshot, posAddr); err != nil {
		return err
	}

	// give the network time to finalize the check before asking for the
	// verdict; result delivery is asynchronous either way
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.conf.RevealDelay):
	}

	return o.submitReveal(ctx, entity, posAddr)
}

// HandleEvent consumes decoded ledger events and advances entity state. At
// risk verdicts raise a CRITICAL alert; suggested mitigations raise ACTION.
// Duplicate deliveries are harmless: transitions are idempotent.
func (o *Orchestrator) HandleEvent(event types.Event, signature string) {
	switch e := event.(type) {
	case types.PositionRegisteredEvent:
		log.Info().Msgf("position %d registered on-chain (%s)", e.PositionID, signature)

	case types.HealthCheckCompletedEvent:
		if state, ok := o.registry.Get(e.PositionID); ok {
			log.Debug().Msgf("health check finalized for position %d (phase %s)",
				e.PositionID, state.Phase)
		}

	case types.RiskRevealedEvent:
		o.resolveReveal(e)

	case types.ActionRequiredEvent:
		o.conf.Alerter.Alert(alert.SeverityAction,
			"suggested mitigation: %s", e.Action)
	}
}

/** Private Helper Functions **/

// ensureRegistered creates the entity's position account when its derived
// address holds no data yet.
func (o *Orchestrator) ensureRegistered(ctx context.Context, entity types.MonitoredEntity) error {
	posAddr, _, err := ledger.PositionAddress(entity.Owner, entity.ID)
	if err != nil {
		return err
	}

	_, exists, err := o.conf.Transport.GetAccountInfo(ctx, posAddr)
	if err != nil {
		return xerrors.Errorf("probe position %d: %v", entity.ID, err)
	}
	if exists {
		return nil
	}

	offset := randomOffset()
	compDef, _, err := ledger.CompDefAddress(ledger.CircuitInitRiskState)
	if err != nil {
		return err
	}
	accs, err := ledger.DeriveComputationAccounts(offset, o.conf.ClusterOffset)
	if err != nil {
		return err
	}

	ix := ledger.NewRegisterPositionInstruction(o.conf.Wallet.PublicKey(), offset,
		entity.ID, ledger.RandomU128(), accs, compDef, posAddr)
	sig, err := o.submit(ctx, ix)
	if err != nil {
		return xerrors.Errorf("register position %d: %v", entity.ID, err)
	}
	log.Info().Msgf("registered position %d (%s): %s", entity.ID, entity.Protocol, sig)
	return nil
}

// submitCheck encrypts the snapshot triple and queues the health check.
func (o *Orchestrator) submitCheck(ctx context.Context, entity types.MonitoredEntity,
	snapshot types.PositionSnapshot, posAddr ledger.PublicKey) error {

	ciphertext, nonce, err := o.session.Encrypt([]uint64{
		snapshot.ValueCents,
		snapshot.CollateralRatioBps,
		snapshot.LiquidationThresholdBps,
	})
	if err != nil {
		return xerrors.Errorf("encrypt snapshot for %d: %v", entity.ID, err)
	}
	var blobs [3][32]byte
	copy(blobs[:], ciphertext)

	offset := randomOffset()
	compDef, _, err := ledger.CompDefAddress(ledger.CircuitCheckHealth)
	if err != nil {
		return err
	}
	accs, err := ledger.DeriveComputationAccounts(offset, o.conf.ClusterOffset)
	if err != nil {
		return err
	}

	o.registry.SetPhase(entity.ID, storage.PhaseSubmittingCheck, offset, time.Now().Unix())

	ix := ledger.NewCheckHealthInstruction(o.conf.Wallet.PublicKey(), offset, entity.ID,
		blobs, o.session.PublicKey(), nonce, accs, compDef, entity.Owner, posAddr)
	sig, err := o.submit(ctx, ix)
	if err != nil {
		o.registry.SetPhase(entity.ID, storage.PhaseIdle, 0, 0)
		return xerrors.Errorf("submit health check for %d: %v", entity.ID, err)
	}

	o.registry.SetPhase(entity.ID, storage.PhaseAwaitingCheckResult, offset, time.Now().Unix())
	log.Info().Msgf("health check submitted for position %d: %s", entity.ID, sig)
	return nil
}

// submitReveal queues the reveal computation with a fresh request id.
func (o *Orchestrator) submitReveal(ctx context.Context, entity types.MonitoredEntity,
	posAddr ledger.PublicKey) error {

	offset := randomOffset()
	compDef, _, err := ledger.CompDefAddress(ledger.CircuitRevealRisk)
	if err != nil {
		return err
	}
	accs, err := ledger.DeriveComputationAccounts(offset, o.conf.ClusterOffset)
	if err != nil {
		return err
	}

	o.registry.SetPhase(entity.ID, storage.PhaseSubmittingReveal, offset, time.Now().Unix())

	ix := ledger.NewRevealRiskInstruction(o.conf.Wallet.PublicKey(), offset, entity.ID,
		accs, compDef, posAddr)
	sig, err := o.submit(ctx, ix)
	if err != nil {
		o.registry.SetPhase(entity.ID, storage.PhaseIdle, 0, 0)
		return xerrors.Errorf("submit reveal for %d: %v", entity.ID, err)
	}

	o.registry.SetPhase(entity.ID, storage.PhaseAwaitingRevealResult, offset, time.Now().Unix())
	log.Info().Msgf("reveal submitted for position %d: %s", entity.ID, sig)
	return nil
}

// resolveReveal applies a revealed verdict. The event does not carry a
// request id, so it resolves the entities currently in a reveal phase. An
// at-risk verdict always alerts, even when no tracked entity matches: the
// verdict may land before the submit call returns and records the phase,
// or after a restart emptied the registry.
func (o *Orchestrator) resolveReveal(e types.RiskRevealedEvent) {
	resolved := storage.PhaseResolvedSafe
	if e.IsAtRisk {
		resolved = storage.PhaseResolvedAtRisk
	}

	matched := 0
	for _, state := range o.registry.All() {
		if state.Phase != storage.PhaseAwaitingRevealResult &&
			state.Phase != storage.PhaseSubmittingReveal {
			continue
		}
		matched++
		o.registry.SetPhase(state.Entity.ID, resolved, state.RequestID, e.Timestamp)
		if e.IsAtRisk {
			o.conf.Alerter.Alert(alert.SeverityCritical,
				"position %d (%s) is AT RISK of liquidation",
				state.Entity.ID, state.Entity.Protocol)
		} else {
			log.Info().Msgf("position %d (%s) verdict: healthy",
				state.Entity.ID, state.Entity.Protocol)
		}
	}

	if matched == 0 {
		if e.IsAtRisk {
			o.conf.Alerter.Alert(alert.SeverityCritical,
				"a monitored position is AT RISK of liquidation")
		} else {
			log.Info().Msgf("verdict: healthy, no entity awaiting reveal")
		}
	}
}

// submit wraps a single instruction into a transaction.
func (o *Orchestrator) submit(ctx context.Context, ix ledger.Instruction) (string, error) {
	tx := ledger.Transaction{
		Payer:        o.conf.Wallet.PublicKey(),
		Instructions: []ledger.Instruction{ix},
	}
	return o.conf.Transport.SubmitTransaction(ctx, tx)
}

// randomOffset draws a fresh 64-bit computation offset.
func randomOffset() uint64 {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic(err)
	}
	return binary.LittleEndian.Uint64(raw[:])
}
