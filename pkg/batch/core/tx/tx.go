// Package tx defines the transactional boundary a chunk is written under.
//
// A chunk step begins one Tx per chunk, hands it to the writer, and then either
// commits it (making the whole chunk visible) or rolls it back (making none of it visible).
// Sinks that own their resource, such as a flat file, usually implement
// TransactionManager themselves; database sinks use the manager of their connection.
package tx

import "context"

// Tx is an in-flight chunk transaction.
type Tx interface {
	// ID returns a unique identifier of the transaction, used in logs.
	ID() string
}

// TransactionManager begins and completes chunk transactions.
type TransactionManager interface {
	// Begin starts a new transaction.
	Begin(ctx context.Context) (Tx, error)
	// Commit makes everything staged in t durable and visible.
	Commit(ctx context.Context, t Tx) error
	// Rollback discards everything staged in t.
	Rollback(ctx context.Context, t Tx) error
}
