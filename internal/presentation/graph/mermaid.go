package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/rewind/pkg/adapters/memory"
)

// Overlay contains state to highlight on the diagram.
type Overlay struct {
	Selected []string
}

// GenerateMermaid produces a Mermaid flowchart of the components in g.
// Styling:
// - Component with collections: [[Subroutine]]
// - Leaf component: [Rectangle]
// - Collection membership: solid arrow labelled with the property
// - Reference: dotted arrow labelled with the property
func GenerateMermaid(g *memory.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, dc := range g.Components() {
		c := dc.(*memory.Component)
		safeID := sanitizeMermaidID(c.Name())

		opener, closer := "[", "]"
		for _, prop := range c.Props() {
			if _, ok := c.Get(prop).([]*memory.Component); ok {
				opener, closer = "[[", "]]"
				break
			}
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(c.Name()), closer))

		for _, prop := range c.Props() {
			switch v := c.Get(prop).(type) {
			case []*memory.Component:
				for _, child := range v {
					sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", safeID, escapeLabel(prop), sanitizeMermaidID(child.Name())))
				}
			case *memory.Component:
				sb.WriteString(fmt.Sprintf("    %s -. \"%s\" .-> %s\n", safeID, escapeLabel(prop), sanitizeMermaidID(v.Name())))
			}
		}
	}

	if overlay != nil && len(overlay.Selected) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef selected fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, name := range overlay.Selected {
			safeID := sanitizeMermaidID(name)
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s selected;\n", safeID))
			}
		}
	}

	return sb.String()
}

// SelectionOverlay highlights the components currently selected in g.
func SelectionOverlay(g *memory.Graph) *Overlay {
	o := &Overlay{}
	for _, c := range g.Selected() {
		if name, ok := g.NameOf(c); ok {
			o.Selected = append(o.Selected, name)
		}
	}
	return o
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
