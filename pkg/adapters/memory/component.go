package memory

import (
	"fmt"
	"slices"
	"sort"
)

// Component is a named node of the in-memory graph.
//
// Property values are limited to what the graph can snapshot: nil, strings, numbers, bools,
// references to other components (*Component) and child collections ([]*Component).
// Collections are content members: they are owned by the component and removed with it.
type Component struct {
	name  string
	props map[string]any
}

// Name returns the component's current name.
func (c *Component) Name() string { return c.name }

// Get returns a property value, or nil.
func (c *Component) Get(prop string) any { return c.props[prop] }

// Children returns a copy of a collection property.
func (c *Component) Children(prop string) []*Component {
	children, _ := c.props[prop].([]*Component)
	return slices.Clone(children)
}

// Props lists the property names in sorted order.
func (c *Component) Props() []string {
	keys := make([]string, 0, len(c.props))
	for k := range c.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Component) String() string { return c.name }

// normalize maps v onto the supported value set. Integers become float64 so values compare
// equal to what a snapshot round trip produces.
func normalize(v any) (any, error) {
	switch v := v.(type) {
	case nil, string, bool, float64:
		return v, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case *Component:
		if v == nil {
			return nil, nil
		}
		return v, nil
	case []*Component:
		return slices.Clone(v), nil
	default:
		return nil, fmt.Errorf("unsupported property type %T", v)
	}
}

func isContent(v any) bool {
	_, ok := v.([]*Component)
	return ok
}

// equalValue compares references by identity.
func equalValue(a, b any) bool {
	switch a := a.(type) {
	case []*Component:
		b, ok := b.([]*Component)
		return ok && slices.Equal(a, b)
	case *Component:
		b, ok := b.(*Component)
		return ok && a == b
	default:
		if isContent(b) {
			return false
		}
		if _, ok := b.(*Component); ok {
			return false
		}
		return a == b
	}
}
