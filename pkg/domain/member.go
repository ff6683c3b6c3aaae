package domain

// Component is a live object tracked by a host.
// Components are compared with ==, so hosts should use pointer types.
type Component = any

// Member identifies a property of a component.
// The zero value refers to the whole component.
type Member struct {
	Name string `json:"name"`

	// Content marks collection-valued properties that serialize as nested elements
	// rather than as one atomic value.
	Content bool `json:"content,omitempty"`

	// rename is only set on NameMember, so no host property can compare equal to it.
	rename bool
}

// NameMember is the pseudo-member announced before a component is renamed.
// It never equals a host property, even one called "Name".
var NameMember = Member{Name: "Name", rename: true}

// IsRename reports whether m is NameMember.
func (m Member) IsRename() bool {
	return m.rename
}

// IsWhole reports whether m refers to the whole component.
func (m Member) IsWhole() bool {
	return m.Name == ""
}

// Covers reports whether a change recorded for m already covers a change to other.
// A whole-component change covers every member.
func (m Member) Covers(other Member) bool {
	return m.IsWhole() || (m.Name == other.Name && m.rename == other.rename)
}

func (m Member) String() string {
	if m.IsWhole() {
		return "*"
	}
	return m.Name
}
