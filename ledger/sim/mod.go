package sim

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/xerrors"

	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/types"
)

// Ledger implements an in-memory ledger transport that executes the
// observable behavior of the sentinel program: account creation, state
// updates and event emission, with the MPC callback collapsed into the
// submitting transaction (optionally delayed).
//
// - implements ledger.Transport
type Ledger struct {
	mu       sync.Mutex
	accounts map[ledger.PublicKey][]byte
	subs     map[int]*subscription
	nextSub  int
	sigSeq   int

	failBudget    int
	callbackDelay time.Duration
	verdict       func(positionID uint32) bool

	networkKey [32]byte
}

// NewLedger creates a simulated ledger with the MXE account and its
// published encryption key already in place.
func NewLedger() *Ledger {
	l := Ledger{
		accounts: map[ledger.PublicKey][]byte{},
		subs:     map[int]*subscription{},
		verdict:  func(uint32) bool { return false },
	}

	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		panic(err)
	}
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		panic(err)
	}
	copy(l.networkKey[:], pub)

	mxeAddr, err := ledger.MXEAccountAddress()
	if err != nil {
		panic(err)
	}
	l.accounts[mxeAddr] = ledger.EncodeMXEAccount(l.networkKey)

	return &l
}

// SetVerdict installs the risk oracle consulted by reveal computations.
func (l *Ledger) SetVerdict(fn func(positionID uint32) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verdict = fn
}

// SetCallbackDelay delays event emission after a submission, imitating the
// network's own finalization timing.
func (l *Ledger) SetCallbackDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbackDelay = d
}

// FailNextSubmissions makes the next n submissions fail with a simulated
// transport rejection.
func (l *Ledger) FailNextSubmissions(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failBudget = n
}

// DropAccount removes an account, for tests that exercise absent-account
// paths.
func (l *Ledger) DropAccount(addr ledger.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, addr)
}

// SetAccount installs raw account data.
func (l *Ledger) SetAccount(addr ledger.PublicKey, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[addr] = data
}

// SubmitTransaction implements ledger.Transport.
func (l *Ledger) SubmitTransaction(ctx context.Context, tx ledger.Transaction) (string, error) {
	l.mu.Lock()

	if l.failBudget > 0 {
		l.failBudget--
		l.mu.Unlock()
		return "", xerrors.Errorf("transaction simulation failed")
	}

	l.sigSeq++
	sig := fmt.Sprintf("sim-%d", l.sigSeq)

	var batches []ledger.LogBatch
	for _, ix := range tx.Instructions {
		if !ix.ProgramID.Equal(ledger.SentinelProgramID) {
			continue
		}
		batch, err := l.execute(tx, ix, sig)
		if err != nil {
			l.mu.Unlock()
			return "", err
		}
		if len(batch.Logs) > 0 {
			batches = append(batches, batch)
		}
	}
	delay := l.callbackDelay
	l.mu.Unlock()

	for _, batch := range batches {
		if delay > 0 {
			go func(b ledger.LogBatch) {
				time.Sleep(delay)
				l.Emit(b)
			}(batch)
			continue
		}
		l.Emit(batch)
	}

	return sig, nil
}

// execute applies one instruction and returns the log batch its callback
// would emit. Caller holds the lock.
func (l *Ledger) execute(tx ledger.Transaction, ix ledger.Instruction, sig string) (ledger.LogBatch, error) {
	batch := ledger.LogBatch{Signature: sig}
	now := time.Now().Unix()

	switch ledger.ClassifyInstruction(ix.Data) {
	case ledger.KindRegisterPosition:
		args, ok := ledger.DecodeRegisterPositionArgs(ix.Data)
		if !ok {
			return batch, xerrors.Errorf("malformed register_position data")
		}
		posAddr := ix.Accounts[len(ix.Accounts)-1].Pubkey
		if _, exists := l.accounts[posAddr]; exists {
			return batch, xerrors.Errorf("position account %s already exists", posAddr)
		}
		rec := ledger.PositionRecord{
			Bump:       255,
			PositionID: args.PositionID,
			Owner:      tx.Payer,
			Nonce:      args.Nonce,
			IsActive:   true,
		}
		l.accounts[posAddr] = rec.Encode()
		event := types.PositionRegisteredEvent{
			Owner: tx.Payer, PositionID: args.PositionID, Timestamp: now,
		}
		batch.Logs = append(batch.Logs,
			types.EncodeEventLog(event.Tag(), event.Encode()))

	case ledger.KindCheckHealth:
		args, ok := ledger.DecodeCheckHealthArgs(ix.Data)
		if !ok {
			return batch, xerrors.Errorf("malformed check_health data")
		}
		posAddr := ix.Accounts[len(ix.Accounts)-1].Pubkey
		rec, ok := ledger.DecodePositionRecord(l.accounts[posAddr])
		if !ok {
			return batch, xerrors.Errorf("position account %s not found", posAddr)
		}
		if !rec.IsActive {
			return batch, xerrors.Errorf("position %d is not active", rec.PositionID)
		}
		rec.LastCheck = now
		rec.Nonce = args.Nonce
		l.accounts[posAddr] = rec.Encode()
		event := types.HealthCheckCompletedEvent{
			Owner: rec.Owner, PositionID: rec.PositionID, Timestamp: now,
		}
		batch.Logs = append(batch.Logs,
			types.EncodeEventLog(event.Tag(), event.Encode()))

	case ledger.KindRevealRisk:
		args, ok := ledger.DecodeRevealRiskArgs(ix.Data)
		if !ok {
			return batch, xerrors.Errorf("malformed reveal_risk data")
		}
		atRisk := l.verdict(args.PositionID)
		reveal := types.RiskRevealedEvent{IsAtRisk: atRisk, Timestamp: now}
		batch.Logs = append(batch.Logs,
			types.EncodeEventLog(reveal.Tag(), reveal.Encode()))
		if atRisk {
			action := types.ActionRequiredEvent{Action: "emergency_withdraw", Timestamp: now}
			batch.Logs = append(batch.Logs,
				types.EncodeEventLog(action.Tag(), action.Encode()))
		}

	case ledger.KindInitCompDef:
		compDef := ix.Accounts[2].Pubkey
		if _, exists := l.accounts[compDef]; !exists {
			l.accounts[compDef] = make([]byte, 8)
		}
	}

	return batch, nil
}

// GetAccountInfo implements ledger.Transport.
func (l *Ledger) GetAccountInfo(ctx context.Context, addr ledger.PublicKey) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, ok := l.accounts[addr]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

// GetProgramAccounts implements ledger.Transport.
func (l *Ledger) GetProgramAccounts(ctx context.Context, program ledger.PublicKey,
	filter ledger.AccountFilter) ([]ledger.KeyedAccount, error) {

	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ledger.KeyedAccount
	for addr, data := range l.accounts {
		if filter.DataSize > 0 && len(data) != filter.DataSize {
			continue
		}
		if filter.MemcmpBytes != nil {
			end := filter.MemcmpOffset + len(filter.MemcmpBytes)
			if end > len(data) || !bytes.Equal(data[filter.MemcmpOffset:end], filter.MemcmpBytes) {
				continue
			}
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		out = append(out, ledger.KeyedAccount{Pubkey: addr, Data: cp})
	}
	return out, nil
}

// SubscribeLogs implements ledger.Transport.
func (l *Ledger) SubscribeLogs(ctx context.Context, program ledger.PublicKey,
	ch chan<- ledger.LogBatch) (ledger.Subscription, error) {

	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSub++
	sub := subscription{
		id:    l.nextSub,
		owner: l,
		ch:    ch,
		errs:  make(chan error, 1),
	}
	l.subs[sub.id] = &sub
	return &sub, nil
}

// Emit pushes a raw log batch to every subscriber, preserving order. Tests
// use it directly to inject failed or malformed batches.
func (l *Ledger) Emit(batch ledger.LogBatch) {
	l.mu.Lock()
	subs := make([]*subscription, 0, len(l.subs))
	for _, sub := range l.subs {
		subs = append(subs, sub)
	}
	l.mu.Unlock()

	for _, sub := range subs {
		sub.ch <- batch
	}
}

// KillSubscriptions simulates a transport-level stream failure.
func (l *Ledger) KillSubscriptions(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, sub := range l.subs {
		select {
		case sub.errs <- err:
		default:
		}
		delete(l.subs, id)
	}
}

// subscription implements a live log-stream registration on the simulated
// ledger.
//
// - implements ledger.Subscription
type subscription struct {
	id    int
	owner *Ledger
	ch    chan<- ledger.LogBatch
	errs  chan error

	once sync.Once
}

// Unsubscribe implements ledger.Subscription.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.owner.mu.Lock()
		delete(s.owner.subs, s.id)
		s.owner.mu.Unlock()
	})
}

// Err implements ledger.Subscription.
func (s *subscription) Err() <-chan error {
	return s.errs
}
