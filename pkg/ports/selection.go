package ports

import "github.com/aretw0/rewind/pkg/domain"

// SelectionService exposes the host's current selection. It is optional.
type SelectionService interface {
	Selected() []domain.Component
	SetSelected(components []domain.Component, mode domain.SelectionMode)
}
