package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/ledger/sim"
	"github.com/sentinelwatch/sentinel/types"
)

func Test_Dispatcher_Selectivity(t *testing.T) {
	network := sim.NewLedger()
	d := NewDispatcher()

	got := make(chan types.Event, 8)
	d.Register(types.TagRiskRevealed, func(event types.Event, signature string) {
		require.Equal(t, "sig-1", signature)
		got <- event
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := d.Subscribe(ctx, network, ledger.SentinelProgramID)
	require.NoError(t, err)
	go d.Serve(ctx)

	reveal := types.RiskRevealedEvent{IsAtRisk: true, Timestamp: 12}
	network.Emit(ledger.LogBatch{
		Signature: "sig-1",
		Logs: []string{
			"Program log: invoke",
			types.EncodeEventLog(reveal.Tag(), reveal.Encode()),
			types.EncodeEventLog(types.EventTag{1, 2, 3, 4, 5, 6, 7, 8}, []byte{0}),
			"Program data: not-base64!!",
		},
	})

	select {
	case event := <-got:
		require.Equal(t, reveal, event)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	// nothing else should come through
	select {
	case event := <-got:
		t.Fatalf("unexpected delivery: %v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func Test_Dispatcher_SkipsFailedBatch(t *testing.T) {
	network := sim.NewLedger()
	d := NewDispatcher()

	got := make(chan types.Event, 8)
	d.Register(types.TagRiskRevealed, func(event types.Event, _ string) {
		got <- event
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, d.Subscribe(ctx, network, ledger.SentinelProgramID))
	go d.Serve(ctx)

	reveal := types.RiskRevealedEvent{IsAtRisk: true}
	network.Emit(ledger.LogBatch{
		Signature: "sig-failed",
		Failed:    true,
		Logs:      []string{types.EncodeEventLog(reveal.Tag(), reveal.Encode())},
	})
	network.Emit(ledger.LogBatch{
		Signature: "sig-ok",
		Logs:      []string{types.EncodeEventLog(reveal.Tag(), reveal.Encode())},
	})

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
	select {
	case <-got:
		t.Fatal("event from failed transaction was delivered")
	case <-time.After(50 * time.Millisecond):
	}

	seen, dropped := d.Stats()
	require.Equal(t, uint64(1), seen)
	require.Equal(t, uint64(0), dropped)
}

func Test_Dispatcher_UnhandledTagDropped(t *testing.T) {
	network := sim.NewLedger()
	d := NewDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, d.Subscribe(ctx, network, ledger.SentinelProgramID))
	go d.Serve(ctx)

	reveal := types.RiskRevealedEvent{IsAtRisk: false}
	network.Emit(ledger.LogBatch{
		Signature: "sig-1",
		Logs:      []string{types.EncodeEventLog(reveal.Tag(), reveal.Encode())},
	})

	require.Eventually(t, func() bool {
		seen, dropped := d.Stats()
		return seen == 1 && dropped == 1
	}, time.Second, 10*time.Millisecond)
}

func Test_Dispatcher_SubscriptionFailure(t *testing.T) {
	network := sim.NewLedger()
	d := NewDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, d.Subscribe(ctx, network, ledger.SentinelProgramID))

	// double subscribe is rejected
	require.Error(t, d.Subscribe(ctx, network, ledger.SentinelProgramID))

	cause := xerrors.Errorf("stream closed by remote")
	network.KillSubscriptions(cause)

	select {
	case err := <-d.Errs():
		require.Equal(t, cause, err)
	case <-time.After(time.Second):
		t.Fatal("subscription failure was not surfaced")
	}

	// after a reset the dispatcher can attach again
	d.Reset()
	require.NoError(t, d.Subscribe(ctx, network, ledger.SentinelProgramID))
}

func Test_Dispatcher_ConcurrentStopAndReset(t *testing.T) {
	network := sim.NewLedger()
	d := NewDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, d.Subscribe(ctx, network, ledger.SentinelProgramID))

	// Unsubscribe on the caller's goroutine races the watch goroutine's
	// reset/resubscribe pair
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			d.Unsubscribe()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			d.Reset()
			_ = d.Subscribe(ctx, network, ledger.SentinelProgramID)
		}
	}()
	wg.Wait()

	d.Reset()
	require.NoError(t, d.Subscribe(ctx, network, ledger.SentinelProgramID))
}
