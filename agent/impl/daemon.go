package impl

import (
	"context"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/sentinelwatch/sentinel/alert"
	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/storage"
	"github.com/sentinelwatch/sentinel/types"
)

// MonitorDaemon starts the monitoring loop: one sequential cycle over all
// entities, then a fixed sleep, regardless of cycle duration. Cycles never
// overlap.
func (n *node) MonitorDaemon(ctx context.Context) error {
	go func() {
	out:
		for {
			select {
			case <-ctx.Done():
				break out
			default:
			}

			n.runCycle()

			select {
			case <-ctx.Done():
				break out
			case <-time.After(n.conf.CheckInterval):
			}
		}
		log.Info().Msg("monitor daemon stopped")
	}()

	return nil
}

// SubscriptionWatchDaemon re-establishes the event subscription when the
// transport reports it dead. The dispatcher itself never resubscribes.
func (n *node) SubscriptionWatchDaemon(ctx context.Context) error {
	go func() {
	out:
		for {
			select {
			case <-ctx.Done():
				break out
			case err := <-n.events.Errs():
				n.conf.Alerter.Alert(alert.SeverityWarning,
					"event subscription lost: %v", err)
				n.events.Reset()
				if err := n.events.Subscribe(ctx, n.conf.Transport,
					ledger.SentinelProgramID); err != nil {
					log.Error().Msgf("resubscribe failed: %v", err)
					break out
				}
				log.Info().Msg("event subscription re-established")
			}
		}
	}()

	return nil
}

// runCycle fetches the current position set and checks each entity in turn.
// A failing entity is logged and skipped; the cycle always visits the rest.
// The cycle runs under a background context so that Stop never interrupts
// it mid-sequence.
func (n *node) runCycle() {
	cycleID := xid.New()
	ctx := context.Background()
	owner := n.conf.Wallet.PublicKey()

	snapshots, err := n.conf.Positions.FetchPositions(owner)
	if err != nil {
		n.conf.Alerter.Alert(alert.SeverityWarning,
			"cycle %s: position fetch failed: %v", cycleID, err)
		return
	}

	active := map[uint32]struct{}{}
	failures := 0
	for _, snapshot := range snapshots {
		if !n.watched(snapshot.Protocol) {
			continue
		}

		id := types.EntityIDForProtocol(snapshot.Protocol)
		active[id] = struct{}{}

		state, ok := n.registry.Get(id)
		if !ok {
			entity := types.MonitoredEntity{
				ID:       id,
				Owner:    owner,
				Protocol: snapshot.Protocol,
			}
			n.registry.Put(&storage.EntityState{Entity: entity})
			state, _ = n.registry.Get(id)
			log.Info().Msgf("discovered entity %d (%s)", id, snapshot.Protocol)
		}

		if err := n.orch.CheckEntity(ctx, state.Entity, snapshot); err != nil {
			failures++
			log.Error().Msgf("cycle %s: entity %d (%s) check failed: %v",
				cycleID, id, snapshot.Protocol, err)
			continue
		}

		entity := state.Entity
		entity.LastCheck = time.Now()
		n.registry.Touch(entity)
	}

	// entities the source no longer reports are dropped
	for _, state := range n.registry.All() {
		if _, ok := active[state.Entity.ID]; !ok {
			n.registry.Del(state.Entity.ID)
			log.Info().Msgf("dropped entity %d (%s)", state.Entity.ID, state.Entity.Protocol)
		}
	}

	if failures > 0 {
		n.conf.Alerter.Alert(alert.SeverityWarning,
			"cycle %s: %d of %d entity checks failed", cycleID, failures, len(active))
	}
	seen, dropped := n.events.Stats()
	log.Debug().Msgf("cycle %s done: %d entities, %d failures, events seen=%d dropped=%d",
		cycleID, len(active), failures, seen, dropped)
}
