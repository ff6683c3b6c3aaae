package domain

// SelectionMode controls how SetSelected combines with the current selection.
type SelectionMode int

const (
	// SelectionReplace discards the current selection.
	SelectionReplace SelectionMode = iota
	// SelectionAdd extends the current selection.
	SelectionAdd
)

// SelectionEntry remembers a selected component by name.
type SelectionEntry struct {
	Name      string `json:"name"`
	Container string `json:"container"`
}
