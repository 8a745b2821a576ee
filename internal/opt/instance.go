package opt

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInvalidInstance is returned by Build when the input violates an
// instance invariant. Errors returned by Build wrap it.
var ErrInvalidInstance = errors.New("invalid instance")

// Center is a capacitated supply node (a distribution center stock).
type Center struct {
	ID       string
	Capacity int
	Location string // informational; used by sinks writing the origin back
}

// Order is a demand node. Material and DueDate are carried as metadata only.
type Order struct {
	ID       string
	Quantity int
	Material string
	DueDate  *time.Time
}

// Edge marks a (center, order) pair as eligible.
type Edge struct {
	CenterID   string
	OrderID    string
	Reward     float64
	TravelTime float64
}

// Profit is the objective contribution of taking this edge.
func (e Edge) Profit() float64 { return e.Reward - e.TravelTime }

// Input is the plain tabular form supplied by an instance source.
type Input struct {
	Centers []Center
	Orders  []Order
	Edges   []Edge
}

// arc is an edge in index space.
type arc struct {
	center int
	profit float64
	edge   int // index into Instance.edges
}

// Instance is the validated, immutable problem. Orders and centers are
// indexed in ascending id order.
type Instance struct {
	centers []Center
	orders  []Order
	edges   []Edge

	centerIdx map[string]int
	orderIdx  map[string]int

	// byCenter[o] lists arcs of order o in ascending center index.
	byCenter [][]arc
	// byProfit[o] lists arcs of order o by descending profit, ties by center index.
	byProfit [][]arc
	// centerEdges[c] lists edge indexes incident to center c, ascending order index.
	centerEdges [][]int
	// edgeAt maps (order, center) index pairs to an index into edges.
	edgeAt map[[2]int]int
}

// Build validates in and returns an immutable Instance.
func Build(in Input) (*Instance, error) {
	inst := &Instance{
		centerIdx: make(map[string]int, len(in.Centers)),
		orderIdx:  make(map[string]int, len(in.Orders)),
		edgeAt:    make(map[[2]int]int, len(in.Edges)),
	}

	inst.centers = append([]Center(nil), in.Centers...)
	sort.SliceStable(inst.centers, func(i, j int) bool { return inst.centers[i].ID < inst.centers[j].ID })
	for i, c := range inst.centers {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: center with empty id", ErrInvalidInstance)
		}
		if c.Capacity < 0 {
			return nil, fmt.Errorf("%w: center %s has negative capacity %d", ErrInvalidInstance, c.ID, c.Capacity)
		}
		if _, dup := inst.centerIdx[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate center id %s", ErrInvalidInstance, c.ID)
		}
		inst.centerIdx[c.ID] = i
	}

	inst.orders = append([]Order(nil), in.Orders...)
	sort.SliceStable(inst.orders, func(i, j int) bool { return inst.orders[i].ID < inst.orders[j].ID })
	for i, o := range inst.orders {
		if o.ID == "" {
			return nil, fmt.Errorf("%w: order with empty id", ErrInvalidInstance)
		}
		if o.Quantity <= 0 {
			return nil, fmt.Errorf("%w: order %s has non-positive quantity %d", ErrInvalidInstance, o.ID, o.Quantity)
		}
		if _, dup := inst.orderIdx[o.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate order id %s", ErrInvalidInstance, o.ID)
		}
		inst.orderIdx[o.ID] = i
	}

	inst.byCenter = make([][]arc, len(inst.orders))
	inst.centerEdges = make([][]int, len(inst.centers))
	inst.edges = make([]Edge, 0, len(in.Edges))
	for _, e := range in.Edges {
		c, ok := inst.centerIdx[e.CenterID]
		if !ok {
			return nil, fmt.Errorf("%w: edge references unknown center %s", ErrInvalidInstance, e.CenterID)
		}
		o, ok := inst.orderIdx[e.OrderID]
		if !ok {
			return nil, fmt.Errorf("%w: edge references unknown order %s", ErrInvalidInstance, e.OrderID)
		}
		if !finite(e.Reward) || !finite(e.TravelTime) {
			return nil, fmt.Errorf("%w: edge %s->%s has non-finite reward or travel time", ErrInvalidInstance, e.CenterID, e.OrderID)
		}
		if e.TravelTime < 0 {
			return nil, fmt.Errorf("%w: edge %s->%s has negative travel time", ErrInvalidInstance, e.CenterID, e.OrderID)
		}
		key := [2]int{o, c}
		if _, dup := inst.edgeAt[key]; dup {
			return nil, fmt.Errorf("%w: duplicate edge %s->%s", ErrInvalidInstance, e.CenterID, e.OrderID)
		}
		idx := len(inst.edges)
		inst.edges = append(inst.edges, e)
		inst.edgeAt[key] = idx
		inst.byCenter[o] = append(inst.byCenter[o], arc{center: c, profit: e.Profit(), edge: idx})
	}

	inst.byProfit = make([][]arc, len(inst.orders))
	for o := range inst.byCenter {
		arcs := inst.byCenter[o]
		sort.Slice(arcs, func(i, j int) bool { return arcs[i].center < arcs[j].center })
		bp := append([]arc(nil), arcs...)
		sort.SliceStable(bp, func(i, j int) bool {
			if bp[i].profit != bp[j].profit {
				return bp[i].profit > bp[j].profit
			}
			return bp[i].center < bp[j].center
		})
		inst.byProfit[o] = bp
		for _, a := range arcs {
			inst.centerEdges[a.center] = append(inst.centerEdges[a.center], a.edge)
		}
	}
	return inst, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Centers returns the centers in ascending id order.
func (in *Instance) Centers() []Center { return append([]Center(nil), in.centers...) }

// Orders returns the orders in ascending id order.
func (in *Instance) Orders() []Order { return append([]Order(nil), in.orders...) }

// NumOrders reports the number of orders.
func (in *Instance) NumOrders() int { return len(in.orders) }

// NumCenters reports the number of centers.
func (in *Instance) NumCenters() int { return len(in.centers) }

// EdgesForOrder returns the order's eligible edges in ascending center id.
// Unknown ids yield nil.
func (in *Instance) EdgesForOrder(orderID string) []Edge {
	o, ok := in.orderIdx[orderID]
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(in.byCenter[o]))
	for _, a := range in.byCenter[o] {
		out = append(out, in.edges[a.edge])
	}
	return out
}

// EdgesForCenter returns the center's eligible edges in ascending order id.
func (in *Instance) EdgesForCenter(centerID string) []Edge {
	c, ok := in.centerIdx[centerID]
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(in.centerEdges[c]))
	for _, e := range in.centerEdges[c] {
		out = append(out, in.edges[e])
	}
	return out
}

// Edge returns the edge between a center and an order, if eligible.
func (in *Instance) Edge(centerID, orderID string) (Edge, bool) {
	c, ok := in.centerIdx[centerID]
	if !ok {
		return Edge{}, false
	}
	o, ok := in.orderIdx[orderID]
	if !ok {
		return Edge{}, false
	}
	e, ok := in.edgeAt[[2]int{o, c}]
	if !ok {
		return Edge{}, false
	}
	return in.edges[e], true
}

// Capacity returns the capacity of a center.
func (in *Instance) Capacity(centerID string) (int, bool) {
	c, ok := in.centerIdx[centerID]
	if !ok {
		return 0, false
	}
	return in.centers[c].Capacity, true
}

// Quantity returns the quantity of an order.
func (in *Instance) Quantity(orderID string) (int, bool) {
	o, ok := in.orderIdx[orderID]
	if !ok {
		return 0, false
	}
	return in.orders[o].Quantity, true
}

func (in *Instance) capacities() []int {
	out := make([]int, len(in.centers))
	for i, c := range in.centers {
		out[i] = c.Capacity
	}
	return out
}

func (in *Instance) profit(o, c int) float64 {
	return in.edges[in.edgeAt[[2]int{o, c}]].Profit()
}
