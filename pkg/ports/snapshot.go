package ports

import (
	"context"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/snapshot"
)

// SnapshotService captures and restores component state.
// A store may receive several Serialize calls before it is restored.
type SnapshotService interface {
	CreateStore() *snapshot.Store

	// Serialize records the whole state of c.
	Serialize(store *snapshot.Store, c domain.Component) error

	// SerializeMember records a single member of c.
	SerializeMember(store *snapshot.Store, c domain.Component, m domain.Member) error

	// Deserialize applies store to the named container, creating components that do not
	// exist and updating those that do (matched by name).
	Deserialize(ctx context.Context, store *snapshot.Store, container string) error
}
