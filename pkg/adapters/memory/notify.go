package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/ports"
)

type changeSubscription struct {
	id int
	l  ports.ChangeListener
}

type txSubscription struct {
	id int
	l  ports.TransactionListener
}

// Subscribe implements ports.ChangeNotifier.
func (g *Graph) Subscribe(l ports.ChangeListener) func() {
	g.nextID++
	id := g.nextID
	g.listeners = append(g.listeners, changeSubscription{id: id, l: l})
	return func() {
		g.listeners = slices.DeleteFunc(slices.Clone(g.listeners), func(s changeSubscription) bool { return s.id == id })
	}
}

// OnComponentChanging implements ports.ChangeNotifier.
func (g *Graph) OnComponentChanging(ctx context.Context, c domain.Component, m domain.Member) error {
	return g.notifyChanging(ctx, c, m)
}

// OnComponentChanged implements ports.ChangeNotifier.
func (g *Graph) OnComponentChanged(ctx context.Context, c domain.Component, m domain.Member, oldValue, newValue any) {
	g.notifyChanged(ctx, c, m, oldValue, newValue)
}

// The slices are cloned before dispatch: listeners may subscribe or unsubscribe while
// being notified.

func (g *Graph) notifyAdding(ctx context.Context, c domain.Component) error {
	if err := g.checkoutDocument(ctx); err != nil {
		return err
	}
	for _, s := range slices.Clone(g.listeners) {
		if err := s.l.ComponentAdding(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) notifyAdded(ctx context.Context, c domain.Component) {
	for _, s := range slices.Clone(g.listeners) {
		s.l.ComponentAdded(ctx, c)
	}
}

func (g *Graph) notifyChanging(ctx context.Context, c domain.Component, m domain.Member) error {
	if err := g.checkoutDocument(ctx); err != nil {
		return err
	}
	for _, s := range slices.Clone(g.listeners) {
		if err := s.l.ComponentChanging(ctx, c, m); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) notifyChanged(ctx context.Context, c domain.Component, m domain.Member, oldValue, newValue any) {
	for _, s := range slices.Clone(g.listeners) {
		s.l.ComponentChanged(ctx, c, m, oldValue, newValue)
	}
}

func (g *Graph) notifyRemoving(ctx context.Context, c domain.Component) error {
	if err := g.checkoutDocument(ctx); err != nil {
		return err
	}
	for _, s := range slices.Clone(g.listeners) {
		if err := s.l.ComponentRemoving(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) notifyRemoved(ctx context.Context, c domain.Component) {
	for _, s := range slices.Clone(g.listeners) {
		s.l.ComponentRemoved(ctx, c)
	}
}

func (g *Graph) notifyRename(ctx context.Context, c domain.Component, oldName, newName string) {
	for _, s := range slices.Clone(g.listeners) {
		s.l.ComponentRename(ctx, c, oldName, newName)
	}
}

// Transaction is a nestable batching boundary opened by CreateTransaction.
// Transactions must be closed innermost first.
type Transaction struct {
	graph       *Graph
	description string
	closed      bool
}

// Description returns the text the transaction was opened with.
func (t *Transaction) Description() string { return t.description }

// Commit implements ports.Transaction.
func (t *Transaction) Commit(ctx context.Context) error {
	return t.graph.closeTransaction(ctx, t, true)
}

// Cancel implements ports.Transaction.
// The graph does not roll anything back itself; listeners such as the undo engine do.
func (t *Transaction) Cancel(ctx context.Context) error {
	return t.graph.closeTransaction(ctx, t, false)
}

// SubscribeTransactions implements ports.TransactionCoordinator.
func (g *Graph) SubscribeTransactions(l ports.TransactionListener) func() {
	g.nextID++
	id := g.nextID
	g.txListeners = append(g.txListeners, txSubscription{id: id, l: l})
	return func() {
		g.txListeners = slices.DeleteFunc(slices.Clone(g.txListeners), func(s txSubscription) bool { return s.id == id })
	}
}

// InTransaction implements ports.TransactionCoordinator.
func (g *Graph) InTransaction() bool { return len(g.txs) > 0 }

// TransactionDescription implements ports.TransactionCoordinator.
func (g *Graph) TransactionDescription() string {
	if len(g.txs) == 0 {
		return ""
	}
	return g.txs[len(g.txs)-1].description
}

// CreateTransaction implements ports.TransactionCoordinator.
// The transaction is already innermost when listeners hear it opening.
func (g *Graph) CreateTransaction(ctx context.Context, description string) (ports.Transaction, error) {
	return g.Begin(ctx, description), nil
}

// Begin opens a nested transaction.
func (g *Graph) Begin(ctx context.Context, description string) *Transaction {
	tx := &Transaction{graph: g, description: description}
	g.txs = append(g.txs, tx)
	for _, s := range slices.Clone(g.txListeners) {
		s.l.TransactionOpening(ctx)
	}
	return tx
}

func (g *Graph) closeTransaction(ctx context.Context, tx *Transaction, committed bool) error {
	if tx.closed {
		return fmt.Errorf("%w: transaction %q already closed", domain.ErrUnbalancedTransaction, tx.description)
	}
	if len(g.txs) == 0 || g.txs[len(g.txs)-1] != tx {
		return fmt.Errorf("%w: transaction %q is not innermost", domain.ErrUnbalancedTransaction, tx.description)
	}
	g.txs = g.txs[:len(g.txs)-1]
	tx.closed = true
	last := len(g.txs) == 0
	for _, s := range slices.Clone(g.txListeners) {
		s.l.TransactionClosed(ctx, committed, last)
	}
	return nil
}
