package opt

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvariantViolation signals a solver bug: an assignment that breaks
// capacity or eligibility. It is never expected in correct operation.
var ErrInvariantViolation = errors.New("invariant violation")

// Assignment maps order ids to center ids. Orders absent from the map are
// unassigned.
type Assignment map[string]string

// OrderDecision is the per-order outcome handed to a result sink.
type OrderDecision struct {
	OrderID    string  `json:"orderId" yaml:"orderId"`
	CenterID   string  `json:"centerId,omitempty" yaml:"centerId,omitempty"`
	Assigned   bool    `json:"assigned" yaml:"assigned"`
	Quantity   int     `json:"quantity" yaml:"quantity"`
	Reward     float64 `json:"reward" yaml:"reward"`
	TravelTime float64 `json:"travelTime" yaml:"travelTime"`
}

func (in *Instance) toAssignment(assign []int) Assignment {
	out := Assignment{}
	for o, c := range assign {
		if c != unassigned {
			out[in.orders[o].ID] = in.centers[c].ID
		}
	}
	return out
}

// Extract turns an assignment into one decision per order of the instance,
// ascending by order id, after checking it is feasible.
func Extract(in *Instance, a Assignment) ([]OrderDecision, error) {
	if err := Validate(in, a); err != nil {
		return nil, err
	}
	out := make([]OrderDecision, 0, len(in.orders))
	for _, o := range in.orders {
		d := OrderDecision{OrderID: o.ID, Quantity: o.Quantity}
		if cid, ok := a[o.ID]; ok {
			e, _ := in.Edge(cid, o.ID)
			d.CenterID = cid
			d.Assigned = true
			d.Reward = e.Reward
			d.TravelTime = e.TravelTime
		}
		out = append(out, d)
	}
	return out, nil
}

// Validate checks that every mapped order and center exists, every pair is
// an eligible edge, and no center is loaded beyond its capacity.
func Validate(in *Instance, a Assignment) error {
	load := make([]int, len(in.centers))
	keys := make([]string, 0, len(a))
	for oid := range a {
		keys = append(keys, oid)
	}
	sort.Strings(keys)
	for _, oid := range keys {
		cid := a[oid]
		o, ok := in.orderIdx[oid]
		if !ok {
			return fmt.Errorf("%w: unknown order %s", ErrInvariantViolation, oid)
		}
		c, ok := in.centerIdx[cid]
		if !ok {
			return fmt.Errorf("%w: order %s mapped to unknown center %s", ErrInvariantViolation, oid, cid)
		}
		if _, ok := in.edgeAt[[2]int{o, c}]; !ok {
			return fmt.Errorf("%w: order %s mapped to ineligible center %s", ErrInvariantViolation, oid, cid)
		}
		load[c] += in.orders[o].Quantity
	}
	for c, l := range load {
		if l > in.centers[c].Capacity {
			return fmt.Errorf("%w: center %s loaded %d over capacity %d", ErrInvariantViolation, in.centers[c].ID, l, in.centers[c].Capacity)
		}
	}
	return nil
}

// Objective sums reward minus travel time over the assigned orders, in
// ascending order id. Pairs that are not edges are skipped.
func Objective(in *Instance, a Assignment) float64 {
	var s ksum
	for _, o := range in.orders {
		cid, ok := a[o.ID]
		if !ok {
			continue
		}
		if e, ok := in.Edge(cid, o.ID); ok {
			s = s.add(e.Profit())
		}
	}
	return s.value()
}
