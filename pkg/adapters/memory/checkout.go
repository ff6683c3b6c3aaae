package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/ports"
)

// Checkouts is an in-process lease table shared by several owners.
// Safe for concurrent use.
type Checkouts struct {
	mu      sync.Mutex
	holders map[string]string
}

// NewCheckouts creates an empty lease table.
func NewCheckouts() *Checkouts {
	return &Checkouts{holders: make(map[string]string)}
}

// For returns the CheckoutService acting on behalf of owner.
func (t *Checkouts) For(owner string) ports.CheckoutService {
	return &checkout{table: t, owner: owner}
}

// Holder returns the current owner of document, if any.
func (t *Checkouts) Holder(document string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	owner, ok := t.holders[document]
	return owner, ok
}

type checkout struct {
	table *Checkouts
	owner string
}

func (c *checkout) Checkout(ctx context.Context, document string) error {
	c.table.mu.Lock()
	defer c.table.mu.Unlock()

	if holder, ok := c.table.holders[document]; ok && holder != c.owner {
		return fmt.Errorf("%w: %s is held by %s", domain.ErrCheckoutDenied, document, holder)
	}
	c.table.holders[document] = c.owner
	return nil
}

func (c *checkout) Release(ctx context.Context, document string) error {
	c.table.mu.Lock()
	defer c.table.mu.Unlock()

	if c.table.holders[document] == c.owner {
		delete(c.table.holders, document)
	}
	return nil
}
