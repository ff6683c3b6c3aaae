package ports

import "context"

// TransactionListener receives transaction boundary notifications.
type TransactionListener interface {
	TransactionOpening(ctx context.Context)
	TransactionClosed(ctx context.Context, committed, lastInStack bool)
}

// Transaction is an open batching boundary. Exactly one of Commit or Cancel must be called.
type Transaction interface {
	Commit(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// TransactionCoordinator owns the nesting of transactions.
type TransactionCoordinator interface {
	SubscribeTransactions(l TransactionListener) (unsubscribe func())

	// InTransaction reports whether any transaction is open.
	InTransaction() bool

	// TransactionDescription describes the innermost open transaction.
	TransactionDescription() string

	// CreateTransaction opens a nested transaction.
	CreateTransaction(ctx context.Context, description string) (Transaction, error)
}
