package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/snapshot"
)

// Payloads are JSON. References are written by name so a snapshot can be restored after the
// referenced component was destroyed and recreated:
//
//	{"label": "OK", "target": {"$ref": "b"}, "items": {"$refs": ["c", "d"]}}
const (
	refKey  = "$ref"
	refsKey = "$refs"
)

// CreateStore implements ports.SnapshotService.
func (g *Graph) CreateStore() *snapshot.Store {
	return snapshot.New()
}

// Serialize implements ports.SnapshotService.
func (g *Graph) Serialize(store *snapshot.Store, c domain.Component) error {
	comp, ok := c.(*Component)
	if !ok || comp == nil {
		return fmt.Errorf("%w: %v", domain.ErrComponentNotFound, c)
	}
	encoded := make(map[string]any, len(comp.props))
	for k, v := range comp.props {
		encoded[k] = encodeValue(v)
	}
	payload, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("encode %s: %w", comp.name, err)
	}
	store.Append(snapshot.Record{Kind: snapshot.KindComponent, Component: comp.name, Payload: payload})
	return nil
}

// SerializeMember implements ports.SnapshotService.
func (g *Graph) SerializeMember(store *snapshot.Store, c domain.Component, m domain.Member) error {
	comp, ok := c.(*Component)
	if !ok || comp == nil {
		return fmt.Errorf("%w: %v", domain.ErrComponentNotFound, c)
	}
	if m.IsWhole() {
		return g.Serialize(store, c)
	}
	payload, err := json.Marshal(encodeValue(comp.props[m.Name]))
	if err != nil {
		return fmt.Errorf("encode %s.%s: %w", comp.name, m.Name, err)
	}
	store.Append(snapshot.Record{Kind: snapshot.KindMember, Component: comp.name, Member: m.Name, Payload: payload})
	return nil
}

func encodeValue(v any) any {
	switch v := v.(type) {
	case *Component:
		return map[string]any{refKey: v.name}
	case []*Component:
		names := make([]string, len(v))
		for i, c := range v {
			names[i] = c.name
		}
		return map[string]any{refsKey: names}
	default:
		return v
	}
}

type decodedRecord struct {
	snapshot.Record
	props map[string]any // component records
	value any            // member records
}

// Deserialize implements ports.SnapshotService.
//
// Restoring runs in passes so records may reference each other in any order:
// components named in the store but missing from the graph are created first, together
// with empty placeholders for any other name a reference points at; then properties are
// applied; then the new components are announced as added. Member records for components
// that do not exist are skipped.
func (g *Graph) Deserialize(ctx context.Context, store *snapshot.Store, container string) error {
	if container != g.container {
		return fmt.Errorf("unknown container %q", container)
	}
	raw, err := store.Records()
	if err != nil {
		return err
	}

	records := make([]decodedRecord, 0, len(raw))
	referenced := make(map[string]bool)
	for _, r := range raw {
		d := decodedRecord{Record: r}
		switch r.Kind {
		case snapshot.KindComponent:
			if err := json.Unmarshal(r.Payload, &d.props); err != nil {
				return fmt.Errorf("decode %s: %w", r.Component, err)
			}
			for _, v := range d.props {
				collectRefs(v, referenced)
			}
		case snapshot.KindMember:
			if err := json.Unmarshal(r.Payload, &d.value); err != nil {
				return fmt.Errorf("decode %s.%s: %w", r.Component, r.Member, err)
			}
			collectRefs(d.value, referenced)
		}
		records = append(records, d)
	}

	var created []*Component
	create := func(name string) error {
		if _, exists := g.byName[name]; exists {
			return nil
		}
		c := &Component{name: name, props: make(map[string]any)}
		g.byName[name] = c
		if err := g.notifyAdding(ctx, c); err != nil {
			delete(g.byName, name)
			return err
		}
		created = append(created, c)
		return nil
	}
	for _, d := range records {
		if d.Kind == snapshot.KindComponent {
			if err := create(d.Component); err != nil {
				return err
			}
		}
	}
	names := make([]string, 0, len(referenced))
	for name := range referenced {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := create(name); err != nil {
			return err
		}
	}

	for _, d := range records {
		c, ok := g.byName[d.Component]
		if !ok {
			g.logger.DebugContext(ctx, "snapshot record skipped", "component", d.Component, "member", d.Member)
			continue
		}
		switch d.Kind {
		case snapshot.KindComponent:
			if err := g.applyProps(ctx, c, d.props, slices.Contains(created, c)); err != nil {
				return err
			}
		case snapshot.KindMember:
			if err := g.applyMember(ctx, c, d.Member, g.decodeValue(d.value)); err != nil {
				return err
			}
		}
	}

	for _, c := range created {
		g.notifyAdded(ctx, c)
	}
	return nil
}

// applyProps replaces the whole property set of c. New components are filled silently
// because their Added notification has not been raised yet.
func (g *Graph) applyProps(ctx context.Context, c *Component, encoded map[string]any, fresh bool) error {
	next := make(map[string]any, len(encoded))
	for k, v := range encoded {
		if dv := g.decodeValue(v); dv != nil {
			next[k] = dv
		}
	}
	if fresh {
		c.props = next
		return nil
	}

	keys := c.Props()
	for k := range next {
		if _, ok := c.props[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := g.applyMember(ctx, c, k, next[k]); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) applyMember(ctx context.Context, c *Component, prop string, v any) error {
	if equalValue(c.props[prop], v) {
		return nil
	}
	return g.set(ctx, c, prop, v)
}

func (g *Graph) decodeValue(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if name, ok := obj[refKey].(string); ok {
		if c, ok := g.byName[name]; ok {
			return c
		}
		return nil
	}
	if names, ok := obj[refsKey].([]any); ok {
		children := make([]*Component, 0, len(names))
		for _, n := range names {
			name, _ := n.(string)
			if c, ok := g.byName[name]; ok {
				children = append(children, c)
			}
		}
		return children
	}
	return nil
}

func collectRefs(v any, into map[string]bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return
	}
	if name, ok := obj[refKey].(string); ok {
		into[name] = true
	}
	if names, ok := obj[refsKey].([]any); ok {
		for _, n := range names {
			if name, ok := n.(string); ok {
				into[name] = true
			}
		}
	}
}

// Dump returns every component's properties in their JSON form, keyed by name.
func (g *Graph) Dump() map[string]map[string]any {
	out := make(map[string]map[string]any, len(g.byName))
	for name, c := range g.byName {
		props := make(map[string]any, len(c.props))
		for k, v := range c.props {
			props[k] = encodeValue(v)
		}
		out[name] = props
	}
	return out
}
