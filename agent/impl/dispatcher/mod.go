package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/types"
)

// Handler consumes one decoded event together with the signature of the
// transaction that emitted it. Delivery is at-least-once in log-stream
// order; handlers must tolerate duplicates.
type Handler func(event types.Event, signature string)

// Delivery is one decoded event in flight between the log-stream producer
// and the consumer loop.
type Delivery struct {
	Event     types.Event
	Signature string
}

// Dispatcher turns the transport's raw log stream into typed event
// deliveries. The producer goroutine only parses and forwards; handlers run
// on whichever single goroutine drains Serve, keeping consumer state
// transitions single-threaded.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[types.EventTag]Handler

	deliveries chan Delivery
	errs       chan error
	sub        ledger.Subscription
	seen       atomic.Uint64
	dropped    atomic.Uint64
}

func NewDispatcher() *Dispatcher {
	d := Dispatcher{
		handlers:   map[types.EventTag]Handler{},
		deliveries: make(chan Delivery, 64),
		errs:       make(chan error, 1),
	}
	return &d
}

// Register installs the handler for one event tag, replacing any previous
// one. Tags without a handler are parsed and dropped.
func (d *Dispatcher) Register(tag types.EventTag, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[tag] = handler
}

// Subscribe attaches the dispatcher to the program's log stream and starts
// the producer goroutine.
func (d *Dispatcher) Subscribe(ctx context.Context, transport ledger.Transport,
	program ledger.PublicKey) error {

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub != nil {
		return xerrors.Errorf("already subscribed")
	}

	batches := make(chan ledger.LogBatch, 16)
	sub, err := transport.SubscribeLogs(ctx, program, batches)
	if err != nil {
		return xerrors.Errorf("subscribe logs: %v", err)
	}
	d.sub = sub

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-sub.Err():
				if !ok {
					return
				}
				// the subscription is dead; the owner decides whether
				// to re-establish it
				select {
				case d.errs <- err:
				default:
				}
				return
			case batch, ok := <-batches:
				if !ok {
					return
				}
				d.consume(ctx, batch)
			}
		}
	}()

	return nil
}

// consume scans one log batch for recognizable events. Failed transactions
// and malformed lines are skipped without aborting the batch.
func (d *Dispatcher) consume(ctx context.Context, batch ledger.LogBatch) {
	if batch.Failed {
		return
	}
	for _, line := range batch.Logs {
		tag, payload, ok := types.ParseEventLog(line)
		if !ok {
			continue
		}
		event, ok := types.DecodeEvent(tag, payload)
		if !ok {
			log.Warn().Msgf("malformed payload for event tag %v, skipping", tag)
			continue
		}
		if _, unknown := event.(types.UnrecognizedEvent); unknown {
			continue
		}
		d.seen.Add(1)
		select {
		case d.deliveries <- Delivery{Event: event, Signature: batch.Signature}:
		case <-ctx.Done():
			return
		}
	}
}

// Serve drains deliveries and invokes the registered handlers until ctx is
// done. It is meant to run on exactly one goroutine.
func (d *Dispatcher) Serve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery := <-d.deliveries:
			d.tell(delivery)
		}
	}
}

// tell routes one delivery to its handler, if any.
func (d *Dispatcher) tell(delivery Delivery) {
	d.mu.RLock()
	handler, ok := d.handlers[delivery.Event.Tag()]
	d.mu.RUnlock()
	if !ok {
		d.dropped.Add(1)
		return
	}
	handler(delivery.Event, delivery.Signature)
}

// Stats reports how many recognized events were seen and how many had no
// handler registered.
func (d *Dispatcher) Stats() (seen, dropped uint64) {
	return d.seen.Load(), d.dropped.Load()
}

// Errs surfaces the transport-level subscription failure, if any.
func (d *Dispatcher) Errs() <-chan error {
	return d.errs
}

// Unsubscribe releases the log-stream listener. Safe to call repeatedly
// and concurrently with Reset.
func (d *Dispatcher) Unsubscribe() {
	d.mu.RLock()
	sub := d.sub
	d.mu.RUnlock()
	if sub == nil {
		return
	}
	sub.Unsubscribe()
}

// Reset clears a dead subscription so Subscribe can be called again.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}
