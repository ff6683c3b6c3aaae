package ports

import (
	"context"

	"github.com/aretw0/rewind/pkg/domain"
)

// Host is the component directory of the object graph.
type Host interface {
	// Container returns the name of the root container components live in.
	Container() string

	// Lookup resolves a component by its unique name.
	Lookup(name string) (domain.Component, bool)

	// NameOf returns the stable name of c. Unnamed or foreign objects return false
	// and are not tracked by the engine.
	NameOf(c domain.Component) (string, bool)

	// Components enumerates every live component.
	Components() []domain.Component

	// Members lists the inspectable members of c.
	Members(c domain.Component) []domain.Member

	// MemberValue returns the current value of m on c.
	MemberValue(c domain.Component, m domain.Member) any

	// Rename assigns a new unique name to c and raises the rename notification.
	Rename(ctx context.Context, c domain.Component, name string) error

	// Destroy removes c from the graph, raising removing/removed notifications.
	Destroy(ctx context.Context, c domain.Component) error
}
