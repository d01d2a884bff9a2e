package impl

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/sentinelwatch/sentinel/agent"
	"github.com/sentinelwatch/sentinel/agent/impl/dispatcher"
	"github.com/sentinelwatch/sentinel/agent/impl/orchestrator"
	"github.com/sentinelwatch/sentinel/agent/impl/session"
	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/storage"
	"github.com/sentinelwatch/sentinel/types"
)

// NewAgent creates a monitoring agent from the given configuration. Nothing
// touches the network until Start.
func NewAgent(conf agent.Configuration) agent.Agent {
	n := node{
		conf:      conf,
		registry:  storage.NewEntityRegistry(),
		events:    dispatcher.NewDispatcher(),
		watchlist: map[string]struct{}{},
	}
	for _, protocol := range conf.Watchlist {
		n.watchlist[protocol] = struct{}{}
	}
	return &n
}

// node implements the monitoring agent
//
// - implements agent.Agent
type node struct {
	conf agent.Configuration

	registry *storage.EntityRegistry
	events   *dispatcher.Dispatcher
	orch     *orchestrator.Orchestrator
	sess     *session.Session

	watchMu   sync.RWMutex
	watchlist map[string]struct{}

	stopSig context.CancelFunc
}

// Start implements agent.Agent.
func (n *node) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	n.stopSig = cancel

	sess, err := session.Negotiate(ctx, n.conf.Transport, n.conf.KeyRetry, n.conf.Wallet)
	if err != nil {
		cancel()
		return xerrors.Errorf("establish encryption session: %w", err)
	}
	n.sess = sess
	n.orch = orchestrator.NewOrchestrator(&n.conf, sess, n.registry)

	if err := n.orch.EnsureCompDefs(ctx); err != nil {
		cancel()
		return xerrors.Errorf("initialize computation definitions: %w", err)
	}

	for _, tag := range []types.EventTag{
		types.TagPositionRegistered,
		types.TagHealthCheckCompleted,
		types.TagRiskRevealed,
		types.TagActionRequired,
	} {
		n.events.Register(tag, n.orch.HandleEvent)
	}
	if err := n.events.Subscribe(ctx, n.conf.Transport, ledger.SentinelProgramID); err != nil {
		cancel()
		return err
	}
	go n.events.Serve(ctx)

	if err := n.SubscriptionWatchDaemon(ctx); err != nil {
		cancel()
		return err
	}
	if err := n.MonitorDaemon(ctx); err != nil {
		cancel()
		return err
	}

	log.Info().Msgf("agent started, owner %s, interval %s",
		n.conf.Wallet.PublicKey(), n.conf.CheckInterval)
	return nil
}

// Stop implements agent.Agent. The stop signal is observed between cycles;
// an in-progress cycle runs to completion.
func (n *node) Stop() error {
	if n.stopSig == nil {
		return xerrors.Errorf("agent not started")
	}
	n.stopSig()
	n.events.Unsubscribe()
	return nil
}

// SetWatchlist implements agent.Agent.
func (n *node) SetWatchlist(protocols []string) {
	n.watchMu.Lock()
	n.watchlist = map[string]struct{}{}
	for _, protocol := range protocols {
		n.watchlist[protocol] = struct{}{}
	}
	n.watchMu.Unlock()

	type protocolSetter interface {
		SetProtocols(protocols []string)
	}
	if setter, ok := n.conf.Positions.(protocolSetter); ok {
		setter.SetProtocols(protocols)
	}
	log.Info().Msgf("watchlist updated: %v", protocols)
}

// watched reports whether the protocol is currently monitored. An empty
// watchlist watches everything the position source reports.
func (n *node) watched(protocol string) bool {
	n.watchMu.RLock()
	defer n.watchMu.RUnlock()
	if len(n.watchlist) == 0 {
		return true
	}
	_, ok := n.watchlist[protocol]
	return ok
}

