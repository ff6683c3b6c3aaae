package ports

import (
	"context"

	"github.com/aretw0/rewind/pkg/domain"
)

// ChangeListener receives mutation notifications.
// Pre-notifications may return an error to veto the mutation.
type ChangeListener interface {
	ComponentAdding(ctx context.Context, c domain.Component) error
	ComponentAdded(ctx context.Context, c domain.Component)
	ComponentChanging(ctx context.Context, c domain.Component, m domain.Member) error
	ComponentChanged(ctx context.Context, c domain.Component, m domain.Member, oldValue, newValue any)
	ComponentRemoving(ctx context.Context, c domain.Component) error
	ComponentRemoved(ctx context.Context, c domain.Component)
	ComponentRename(ctx context.Context, c domain.Component, oldName, newName string)
}

// ChangeNotifier dispatches mutation notifications to subscribed listeners.
type ChangeNotifier interface {
	// Subscribe registers l and returns the function that removes it.
	Subscribe(l ChangeListener) (unsubscribe func())

	// OnComponentChanging announces that a member of c is about to change.
	// The returned error (e.g. domain.ErrCheckoutDenied) means the change must not happen.
	OnComponentChanging(ctx context.Context, c domain.Component, m domain.Member) error

	// OnComponentChanged announces that a member of c changed.
	OnComponentChanged(ctx context.Context, c domain.Component, m domain.Member, oldValue, newValue any)
}
