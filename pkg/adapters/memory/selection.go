package memory

import (
	"slices"

	"github.com/aretw0/rewind/pkg/domain"
)

// Selected implements ports.SelectionService.
func (g *Graph) Selected() []domain.Component {
	out := make([]domain.Component, len(g.selected))
	for i, c := range g.selected {
		out[i] = c
	}
	return out
}

// SetSelected implements ports.SelectionService. Components not in the graph are ignored.
func (g *Graph) SetSelected(components []domain.Component, mode domain.SelectionMode) {
	if mode == domain.SelectionReplace {
		g.selected = nil
	}
	for _, c := range components {
		comp, err := g.resolve(c)
		if err != nil || slices.Contains(g.selected, comp) {
			continue
		}
		g.selected = append(g.selected, comp)
	}
}
