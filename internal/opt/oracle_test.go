package opt

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// bruteForce enumerates every assignment and returns the best objective.
func bruteForce(t *testing.T, in *Instance) float64 {
	t.Helper()
	n := len(in.orders)
	assign := make([]int, n)
	remaining := in.capacities()
	best := 0.0
	var rec func(o int, acc ksum)
	rec = func(o int, acc ksum) {
		if o == n {
			if v := acc.value(); v > best {
				best = v
			}
			return
		}
		assign[o] = unassigned
		rec(o+1, acc)
		q := in.orders[o].Quantity
		for _, a := range in.byCenter[o] {
			if remaining[a.center] < q {
				continue
			}
			remaining[a.center] -= q
			assign[o] = a.center
			rec(o+1, acc.add(a.profit))
			remaining[a.center] += q
			assign[o] = unassigned
		}
	}
	rec(0, ksum{})
	return best
}

// randomInput builds a small instance with fractional travel times, some
// unprofitable edges and some orders without edges.
func randomInput(r *rand.Rand, maxOrders, maxCenters int) Input {
	var in Input
	nc := 1 + r.Intn(maxCenters)
	no := 1 + r.Intn(maxOrders)
	for c := 0; c < nc; c++ {
		in.Centers = append(in.Centers, Center{ID: fmt.Sprintf("DC%02d", c), Capacity: r.Intn(13)})
	}
	for o := 0; o < no; o++ {
		in.Orders = append(in.Orders, Order{ID: fmt.Sprintf("ORD%03d", o), Quantity: 1 + r.Intn(6)})
	}
	for _, o := range in.Orders {
		for _, c := range in.Centers {
			if r.Float64() < 0.3 {
				continue
			}
			reward := 100.0
			if r.Intn(2) == 0 {
				reward = 50 + r.Float64()*100
			}
			in.Edges = append(in.Edges, Edge{CenterID: c.ID, OrderID: o.ID, Reward: reward, TravelTime: r.Float64() * 120})
		}
	}
	return in
}

func mustBuild(t *testing.T, in Input) *Instance {
	t.Helper()
	inst, err := Build(in)
	require.NoError(t, err)
	return inst
}

// scenarioA is two centers (10, 5) and three orders (4, 6, 5), fully
// connected. The small center is everybody's cheapest choice.
func scenarioA() Input {
	return Input{
		Centers: []Center{{ID: "A", Capacity: 10}, {ID: "B", Capacity: 5}},
		Orders:  []Order{{ID: "o1", Quantity: 4}, {ID: "o2", Quantity: 6}, {ID: "o3", Quantity: 5}},
		Edges: []Edge{
			{CenterID: "A", OrderID: "o1", Reward: 100, TravelTime: 30},
			{CenterID: "A", OrderID: "o2", Reward: 100, TravelTime: 20},
			{CenterID: "A", OrderID: "o3", Reward: 100, TravelTime: 40},
			{CenterID: "B", OrderID: "o1", Reward: 100, TravelTime: 10},
			{CenterID: "B", OrderID: "o2", Reward: 100, TravelTime: 5},
			{CenterID: "B", OrderID: "o3", Reward: 100, TravelTime: 15},
		},
	}
}
