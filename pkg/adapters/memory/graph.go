package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/ports"
)

// DefaultContainer is the container name used when none is configured.
const DefaultContainer = "root"

var (
	_ ports.Host                   = (*Graph)(nil)
	_ ports.ChangeNotifier         = (*Graph)(nil)
	_ ports.TransactionCoordinator = (*Graph)(nil)
	_ ports.SnapshotService        = (*Graph)(nil)
	_ ports.SelectionService       = (*Graph)(nil)
)

// Graph is an in-memory component graph that raises designer-style notifications.
//
// It implements every port the undo engine needs. Graph is NOT safe for concurrent use:
// listeners run synchronously and routinely call back into the graph.
type Graph struct {
	container string
	byName    map[string]*Component

	listeners   []changeSubscription
	txListeners []txSubscription
	nextID      int
	txs         []*Transaction

	// removing holds components whose removal is in progress.
	removing map[*Component]bool
	selected []*Component

	checkout ports.CheckoutService
	document string
	logger   *slog.Logger
}

// Option configures the Graph.
type Option func(*Graph)

// WithContainer names the root container.
func WithContainer(name string) Option {
	return func(g *Graph) {
		g.container = name
	}
}

// WithCheckout guards every mutation with a checkout of document.
func WithCheckout(svc ports.CheckoutService, document string) Option {
	return func(g *Graph) {
		g.checkout = svc
		g.document = document
	}
}

// WithLogger sets the structured logger for the graph.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGraph creates an empty graph.
func NewGraph(opts ...Option) *Graph {
	g := &Graph{
		container: DefaultContainer,
		byName:    make(map[string]*Component),
		removing:  make(map[*Component]bool),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.document == "" {
		g.document = g.container
	}
	return g
}

// Container implements ports.Host.
func (g *Graph) Container() string { return g.container }

// Lookup implements ports.Host.
func (g *Graph) Lookup(name string) (domain.Component, bool) {
	c, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return c, true
}

// Get resolves a component by name.
func (g *Graph) Get(name string) (*Component, bool) {
	c, ok := g.byName[name]
	return c, ok
}

// NameOf implements ports.Host.
func (g *Graph) NameOf(c domain.Component) (string, bool) {
	comp, ok := c.(*Component)
	if !ok || comp == nil {
		return "", false
	}
	return comp.name, true
}

// Components implements ports.Host. Components are returned sorted by name.
func (g *Graph) Components() []domain.Component {
	out := make([]domain.Component, 0, len(g.byName))
	for _, c := range g.sorted() {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live components.
func (g *Graph) Len() int { return len(g.byName) }

func (g *Graph) sorted() []*Component {
	names := make([]string, 0, len(g.byName))
	for name := range g.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Component, len(names))
	for i, name := range names {
		out[i] = g.byName[name]
	}
	return out
}

// Members implements ports.Host.
func (g *Graph) Members(c domain.Component) []domain.Member {
	comp, ok := c.(*Component)
	if !ok || comp == nil {
		return nil
	}
	members := make([]domain.Member, 0, len(comp.props))
	for _, name := range comp.Props() {
		members = append(members, domain.Member{Name: name, Content: isContent(comp.props[name])})
	}
	return members
}

// MemberValue implements ports.Host.
func (g *Graph) MemberValue(c domain.Component, m domain.Member) any {
	comp, ok := c.(*Component)
	if !ok || comp == nil {
		return nil
	}
	if m.IsRename() {
		return comp.name
	}
	return comp.props[m.Name]
}

func (g *Graph) resolve(c domain.Component) (*Component, error) {
	comp, ok := c.(*Component)
	if !ok || comp == nil || g.byName[comp.name] != comp {
		return nil, fmt.Errorf("%w: %v", domain.ErrComponentNotFound, c)
	}
	return comp, nil
}

// Add creates a component inside its own transaction.
func (g *Graph) Add(ctx context.Context, name string, props map[string]any) (*Component, error) {
	tx := g.Begin(ctx, fmt.Sprintf("Add %s", name))
	c, err := g.add(ctx, name, props)
	if err != nil {
		return nil, cancel(ctx, tx, err)
	}
	return c, tx.Commit(ctx)
}

func (g *Graph) add(ctx context.Context, name string, props map[string]any) (*Component, error) {
	if name == "" {
		return nil, fmt.Errorf("component name is required")
	}
	if _, taken := g.byName[name]; taken {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateName, name)
	}
	normalized := make(map[string]any, len(props))
	for k, v := range props {
		nv, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("property %s.%s: %w", name, k, err)
		}
		normalized[k] = nv
	}

	c := &Component{name: name, props: make(map[string]any)}
	g.byName[name] = c
	if err := g.notifyAdding(ctx, c); err != nil {
		delete(g.byName, name)
		return nil, err
	}
	keys := make([]string, 0, len(normalized))
	for k := range normalized {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := g.set(ctx, c, k, normalized[k]); err != nil {
			delete(g.byName, name)
			return nil, err
		}
	}
	g.notifyAdded(ctx, c)
	g.logger.DebugContext(ctx, "component added", "component", name)
	return c, nil
}

// AppendChild adds a new component to a collection property of parent.
func (g *Graph) AppendChild(ctx context.Context, parent *Component, prop, name string, props map[string]any) (*Component, error) {
	if _, err := g.resolve(parent); err != nil {
		return nil, err
	}
	if v, ok := parent.props[prop]; ok && v != nil && !isContent(v) {
		return nil, fmt.Errorf("property %s.%s is not a collection", parent.name, prop)
	}
	tx := g.Begin(ctx, fmt.Sprintf("Add %s to %s.%s", name, parent.name, prop))

	m := domain.Member{Name: prop, Content: true}
	if err := g.notifyChanging(ctx, parent, m); err != nil {
		return nil, cancel(ctx, tx, err)
	}
	child, err := g.add(ctx, name, props)
	if err != nil {
		return nil, cancel(ctx, tx, err)
	}
	old := parent.Children(prop)
	parent.props[prop] = append(slices.Clone(old), child)
	g.notifyChanged(ctx, parent, m, old, parent.Children(prop))
	return child, tx.Commit(ctx)
}

// Set assigns one property and raises changing/changed notifications around it.
func (g *Graph) Set(ctx context.Context, c *Component, prop string, value any) error {
	if _, err := g.resolve(c); err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("property %s.%s: %w", c.name, prop, err)
	}
	if ref, ok := v.(*Component); ok {
		if _, err := g.resolve(ref); err != nil {
			return err
		}
	}
	return g.set(ctx, c, prop, v)
}

func (g *Graph) set(ctx context.Context, c *Component, prop string, v any) error {
	m := domain.Member{Name: prop, Content: isContent(v) || isContent(c.props[prop])}
	if err := g.notifyChanging(ctx, c, m); err != nil {
		return err
	}
	old := c.props[prop]
	if v == nil {
		delete(c.props, prop)
	} else {
		c.props[prop] = v
	}
	g.notifyChanged(ctx, c, m, old, v)
	return nil
}

// Rename implements ports.Host.
func (g *Graph) Rename(ctx context.Context, c domain.Component, name string) error {
	comp, err := g.resolve(c)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("component name is required")
	}
	if name == comp.name {
		return nil
	}
	if _, taken := g.byName[name]; taken {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateName, name)
	}
	if err := g.checkoutDocument(ctx); err != nil {
		return err
	}
	old := comp.name
	delete(g.byName, old)
	comp.name = name
	g.byName[name] = comp
	g.notifyRename(ctx, comp, old, name)
	return nil
}

// Destroy implements ports.Host.
func (g *Graph) Destroy(ctx context.Context, c domain.Component) error {
	comp, err := g.resolve(c)
	if err != nil {
		return err
	}
	return g.Remove(ctx, comp)
}

// Remove deletes c and every component in its collections inside one transaction.
// References other components hold to a removed component are cleared.
func (g *Graph) Remove(ctx context.Context, c *Component) error {
	if _, err := g.resolve(c); err != nil {
		return err
	}
	tx := g.Begin(ctx, fmt.Sprintf("Remove %s", c.name))
	if err := g.remove(ctx, c); err != nil {
		return cancel(ctx, tx, err)
	}
	return tx.Commit(ctx)
}

func (g *Graph) remove(ctx context.Context, c *Component) error {
	g.removing[c] = true
	defer delete(g.removing, c)

	// Parents surviving the removal announce that their collection is about to shrink.
	type owner struct {
		parent *Component
		member domain.Member
		old    []*Component
	}
	var owners []owner
	for _, p := range g.sorted() {
		if p == c || g.removing[p] {
			continue
		}
		for _, prop := range p.Props() {
			children, ok := p.props[prop].([]*Component)
			if !ok || !slices.Contains(children, c) {
				continue
			}
			m := domain.Member{Name: prop, Content: true}
			if err := g.notifyChanging(ctx, p, m); err != nil {
				return err
			}
			owners = append(owners, owner{parent: p, member: m, old: slices.Clone(children)})
		}
	}

	if err := g.notifyRemoving(ctx, c); err != nil {
		return err
	}
	for _, prop := range c.Props() {
		for _, child := range c.Children(prop) {
			if g.byName[child.name] != child {
				continue
			}
			if err := g.remove(ctx, child); err != nil {
				return err
			}
		}
	}

	delete(g.byName, c.name)
	g.clearReferences(c)
	g.selected = slices.DeleteFunc(g.selected, func(s *Component) bool { return s == c })
	g.notifyRemoved(ctx, c)
	g.logger.DebugContext(ctx, "component removed", "component", c.name)

	for _, o := range owners {
		g.notifyChanged(ctx, o.parent, o.member, o.old, o.parent.Children(o.member.Name))
	}
	return nil
}

// clearReferences drops every pointer to c without raising notifications.
// Listeners that care (the undo engine) announce those members themselves.
func (g *Graph) clearReferences(c *Component) {
	for _, other := range g.byName {
		for prop, v := range other.props {
			switch v := v.(type) {
			case *Component:
				if v == c {
					delete(other.props, prop)
				}
			case []*Component:
				if slices.Contains(v, c) {
					other.props[prop] = slices.DeleteFunc(slices.Clone(v), func(x *Component) bool { return x == c })
				}
			}
		}
	}
}

func (g *Graph) checkoutDocument(ctx context.Context) error {
	if g.checkout == nil {
		return nil
	}
	if err := g.checkout.Checkout(ctx, g.document); err != nil {
		return fmt.Errorf("checkout %s: %w", g.document, err)
	}
	return nil
}

func cancel(ctx context.Context, tx *Transaction, cause error) error {
	if err := tx.Cancel(ctx); err != nil {
		return fmt.Errorf("%w (cancel failed: %v)", cause, err)
	}
	return cause
}
