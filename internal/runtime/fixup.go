package runtime

import (
	"context"
	"reflect"

	"github.com/aretw0/rewind/pkg/domain"
)

// reference is a (component, member) pair whose value pointed at a removed component.
type reference struct {
	component domain.Component
	member    domain.Member
}

// captureReferences finds every sibling member currently pointing at target and raises a
// changing notification for it. A removed component's own snapshot does not know who
// referenced it, so these members have to be recorded separately.
func (e *Engine) captureReferences(ctx context.Context, target domain.Component) error {
	var refs []reference
	for _, c := range e.host.Components() {
		if sameComponent(c, target) {
			continue
		}
		for _, m := range e.host.Members(c) {
			if m.Content {
				continue
			}
			if !sameComponent(e.host.MemberValue(c, m), target) {
				continue
			}
			if err := e.notifier.OnComponentChanging(ctx, c, m); err != nil {
				return err
			}
			refs = append(refs, reference{component: c, member: m})
		}
	}
	if len(refs) > 0 {
		e.removedRefs[target] = refs
		e.logger.DebugContext(ctx, "captured references to removed component",
			"component", e.nameOf(target),
			"references", len(refs),
		)
	}
	return nil
}

// releaseReferences tells dependents of a removed component that their reference changed.
func (e *Engine) releaseReferences(ctx context.Context, target domain.Component) {
	refs, ok := e.removedRefs[target]
	if !ok {
		return
	}
	delete(e.removedRefs, target)
	for _, r := range refs {
		e.notifier.OnComponentChanged(ctx, r.component, r.member, nil, nil)
	}
}

// sameComponent compares without panicking on uncomparable dynamic types.
func sameComponent(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
