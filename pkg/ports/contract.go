package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckoutContract runs a suite of tests to verify that a CheckoutService implementation
// adheres to the defined interface contract.
// owner and rival must be two services sharing one backend but acting for different owners.
func RunCheckoutContract(t *testing.T, owner, rival CheckoutService) {
	ctx := context.Background()
	document := "contract-doc-" + time.Now().Format("20060102150405.000000")

	t.Run("Checkout Is Reentrant", func(t *testing.T) {
		require.NoError(t, owner.Checkout(ctx, document))
		require.NoError(t, owner.Checkout(ctx, document), "refreshing an owned lease must succeed")
	})

	t.Run("Rival Is Denied", func(t *testing.T) {
		err := rival.Checkout(ctx, document)
		assert.ErrorIs(t, err, domain.ErrCheckoutDenied)
	})

	t.Run("Rival Release Does Not Steal", func(t *testing.T) {
		require.NoError(t, rival.Release(ctx, document))
		assert.ErrorIs(t, rival.Checkout(ctx, document), domain.ErrCheckoutDenied)
	})

	t.Run("Release Hands Over", func(t *testing.T) {
		require.NoError(t, owner.Release(ctx, document))
		require.NoError(t, rival.Checkout(ctx, document))
		assert.ErrorIs(t, owner.Checkout(ctx, document), domain.ErrCheckoutDenied)
		require.NoError(t, rival.Release(ctx, document))
	})

	t.Run("Release Without Lease", func(t *testing.T) {
		assert.NoError(t, owner.Release(ctx, document+"-never"))
	})
}
