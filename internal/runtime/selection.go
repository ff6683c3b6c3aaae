package runtime

import "github.com/aretw0/rewind/pkg/domain"

// captureSelection remembers the current selection by name, so it survives the selected
// components being destroyed and recreated.
func (e *Engine) captureSelection() []domain.SelectionEntry {
	if e.selection == nil {
		return nil
	}
	var entries []domain.SelectionEntry
	for _, c := range e.selection.Selected() {
		name, ok := e.host.NameOf(c)
		if !ok {
			continue
		}
		entries = append(entries, domain.SelectionEntry{Name: name, Container: e.host.Container()})
	}
	return entries
}

// restoreSelection reselects whatever still resolves. Names that vanished are skipped.
func (e *Engine) restoreSelection(entries []domain.SelectionEntry) {
	if e.selection == nil {
		return
	}
	comps := make([]domain.Component, 0, len(entries))
	for _, entry := range entries {
		if entry.Container != e.host.Container() {
			continue
		}
		if c, ok := e.host.Lookup(entry.Name); ok {
			comps = append(comps, c)
		}
	}
	e.selection.SetSelected(comps, domain.SelectionReplace)
}
