package opt

import (
	"math"
	"sort"
)

// ksum is a Neumaier compensated running sum. It is a value type so a saved
// copy restores the exact previous state on backtrack.
type ksum struct{ sum, c float64 }

func (k ksum) add(x float64) ksum {
	t := k.sum + x
	if math.Abs(k.sum) >= math.Abs(x) {
		k.c += (k.sum - t) + x
	} else {
		k.c += (x - t) + k.sum
	}
	k.sum = t
	return k
}

func (k ksum) value() float64 { return k.sum + k.c }

// relaxationBound returns accrued plus, for every undecided order (index >=
// next), the best positive profit over centers that can still hold the
// order on their own. Contention between undecided orders is ignored.
func relaxationBound(in *Instance, next int, remaining []int, accrued ksum) float64 {
	b := accrued
	for o := next; o < len(in.orders); o++ {
		q := in.orders[o].Quantity
		for _, a := range in.byProfit[o] {
			if a.profit <= 0 {
				break
			}
			if remaining[a.center] >= q {
				b = b.add(a.profit)
				break
			}
		}
	}
	return b.value()
}

const unassigned = -1

// branch is one child of a node: the order left unassigned (center ==
// unassigned) or sent to a center, with the child's bound.
type branch struct {
	center int
	bound  float64
}

// rankBranches enumerates the children of deciding order o under the given
// state, best bound first. Equal bounds go by ascending center id with the
// unassigned child last.
func rankBranches(in *Instance, o int, remaining []int, accrued ksum) []branch {
	arcs := in.byCenter[o]
	q := in.orders[o].Quantity
	out := make([]branch, 0, len(arcs)+1)
	for _, a := range arcs {
		if remaining[a.center] < q {
			continue
		}
		remaining[a.center] -= q
		b := relaxationBound(in, o+1, remaining, accrued.add(a.profit))
		remaining[a.center] += q
		out = append(out, branch{center: a.center, bound: b})
	}
	out = append(out, branch{center: unassigned, bound: relaxationBound(in, o+1, remaining, accrued)})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].bound != out[j].bound {
			return out[i].bound > out[j].bound
		}
		if out[i].center == unassigned {
			return false
		}
		if out[j].center == unassigned {
			return true
		}
		return out[i].center < out[j].center
	})
	return out
}

// SearchNode is an immutable point in the search tree: orders before Decided()
// are fixed, the rest are open. Children never share mutable state with
// their parent.
type SearchNode struct {
	inst      *Instance
	next      int
	assign    []int
	remaining []int
	accrued   ksum
	bound     float64
}

// Root returns the node where no order is decided yet.
func Root(inst *Instance) *SearchNode {
	assign := make([]int, len(inst.orders))
	for i := range assign {
		assign[i] = unassigned
	}
	n := &SearchNode{inst: inst, assign: assign, remaining: inst.capacities()}
	n.bound = relaxationBound(inst, 0, n.remaining, n.accrued)
	return n
}

// Decided reports how many orders (in ascending id order) are fixed.
func (n *SearchNode) Decided() int { return n.next }

// Complete reports whether every order is decided.
func (n *SearchNode) Complete() bool { return n.next == len(n.inst.orders) }

// Bound is the relaxation upper bound on any completion of this node.
func (n *SearchNode) Bound() float64 { return n.bound }

// Accrued is the objective of the decided orders.
func (n *SearchNode) Accrued() float64 { return n.accrued.value() }

// Remaining returns the capacity a center has left under this node.
func (n *SearchNode) Remaining(centerID string) int {
	c, ok := n.inst.centerIdx[centerID]
	if !ok {
		return 0
	}
	return n.remaining[c]
}

// Assignment returns the decided part of the node as an Assignment.
func (n *SearchNode) Assignment() Assignment { return n.inst.toAssignment(n.assign) }

// Children branches on the next undecided order, in exploration order.
// A complete node has no children.
func (n *SearchNode) Children() []*SearchNode {
	if n.Complete() {
		return nil
	}
	o := n.next
	q := n.inst.orders[o].Quantity
	brs := rankBranches(n.inst, o, n.remaining, n.accrued)
	out := make([]*SearchNode, 0, len(brs))
	for _, br := range brs {
		ch := &SearchNode{
			inst:      n.inst,
			next:      o + 1,
			assign:    append([]int(nil), n.assign...),
			remaining: append([]int(nil), n.remaining...),
			accrued:   n.accrued,
			bound:     br.bound,
		}
		if br.center != unassigned {
			ch.assign[o] = br.center
			ch.remaining[br.center] -= q
			ch.accrued = ch.accrued.add(n.inst.profit(o, br.center))
		}
		out = append(out, ch)
	}
	return out
}
