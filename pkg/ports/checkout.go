package ports

import "context"

// CheckoutService grants exclusive edit rights on a document.
// It allows hosts to refuse mutations (and replays) while someone else holds the document.
type CheckoutService interface {
	// Checkout acquires or refreshes the caller's lease on document.
	// Returns domain.ErrCheckoutDenied when another owner holds it.
	Checkout(ctx context.Context, document string) error

	// Release gives the lease back. Releasing a lease not held is a no-op.
	Release(ctx context.Context, document string) error
}
