package ledger

import "context"

// LogBatch is one transaction's worth of program log lines as delivered by
// the ledger's push stream.
type LogBatch struct {
	// Signature identifies the originating transaction.
	Signature string
	// Failed marks batches emitted by transactions that did not execute.
	Failed bool
	// Logs holds the raw log lines in emission order.
	Logs []string
}

// AccountFilter narrows a program-account scan.
type AccountFilter struct {
	// DataSize, when non-zero, keeps only accounts of exactly that size.
	DataSize int
	// MemcmpOffset / MemcmpBytes, when MemcmpBytes is non-nil, keep only
	// accounts whose data matches the bytes at the offset.
	MemcmpOffset int
	MemcmpBytes  []byte
}

// KeyedAccount pairs an address with its current account data.
type KeyedAccount struct {
	Pubkey PublicKey
	Data   []byte
}

// Subscription is a live log-stream registration.
type Subscription interface {
	// Unsubscribe releases the listener. Calling it twice is a no-op.
	Unsubscribe()
	// Err yields at most one transport-level failure, after which the
	// subscription is dead and must be re-established by the caller.
	Err() <-chan error
}

// Transport is the agent's view of the ledger RPC layer. Implementations
// must be safe for use from multiple goroutines.
type Transport interface {
	// SubmitTransaction signs and submits a transaction, returning its
	// signature once accepted.
	SubmitTransaction(ctx context.Context, tx Transaction) (string, error)

	// GetAccountInfo fetches the raw data of an account. The boolean is
	// false when the account does not exist.
	GetAccountInfo(ctx context.Context, addr PublicKey) ([]byte, bool, error)

	// SubscribeLogs streams log batches of the given program into ch.
	SubscribeLogs(ctx context.Context, program PublicKey, ch chan<- LogBatch) (Subscription, error)

	// GetProgramAccounts lists accounts owned by the program that pass
	// the filter.
	GetProgramAccounts(ctx context.Context, program PublicKey, filter AccountFilter) ([]KeyedAccount, error)
}
