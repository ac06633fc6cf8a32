// Package journal canonicalizes operation journals: grouping by object
// reference and collapsing each group to at most one operation via the
// local and remote compression dialects (spec.md §4.3).
package journal

import (
	"sort"

	"github.com/samber/lo"

	"github.com/nodesync/go-merge-engine/pkg/op"
)

// Grouped is one object's ordered operation sequence, extracted from a
// journal ahead of a compression pass.
type Grouped struct {
	Ref op.ObjRef
	Ops []op.Op
}

// Group partitions ops by ObjRef, sorting each group by sequence number.
// Groups themselves are ordered by each ref's first appearance in ops, so
// compression output order is deterministic for a given input order.
func Group(ops []op.Op) []Grouped {
	byRef := lo.GroupBy(ops, func(o op.Op) op.ObjRef { return o.Ref })

	order := make([]op.ObjRef, 0, len(byRef))
	seen := make(map[op.ObjRef]bool, len(byRef))
	for _, o := range ops {
		if !seen[o.Ref] {
			seen[o.Ref] = true
			order = append(order, o.Ref)
		}
	}

	groups := make([]Grouped, 0, len(order))
	for _, ref := range order {
		g := append([]op.Op(nil), byRef[ref]...)
		sort.SliceStable(g, func(i, j int) bool { return g[i].Seq < g[j].Seq })
		groups = append(groups, Grouped{Ref: ref, Ops: g})
	}
	return groups
}
