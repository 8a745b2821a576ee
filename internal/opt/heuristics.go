package opt

// greedySeed walks orders in ascending id and sends each to its most
// profitable center that still has room, skipping unprofitable ones.
func greedySeed(in *Instance) []int {
	assign := make([]int, len(in.orders))
	remaining := in.capacities()
	for o := range in.orders {
		assign[o] = unassigned
		q := in.orders[o].Quantity
		for _, a := range in.byProfit[o] {
			if a.profit <= 0 {
				break
			}
			if remaining[a.center] >= q {
				assign[o] = a.center
				remaining[a.center] -= q
				break
			}
		}
	}
	return assign
}

// improveRelocate moves single orders to a more profitable center with room
// (or onto one, if unassigned) until no such move exists.
func improveRelocate(in *Instance, assign []int) []int {
	out := append([]int(nil), assign...)
	remaining := in.capacities()
	for o, c := range out {
		if c != unassigned {
			remaining[c] -= in.orders[o].Quantity
		}
	}
	for iter := 0; iter < len(out)+1; iter++ {
		improved := false
		for o := range out {
			q := in.orders[o].Quantity
			cur := out[o]
			curProfit := 0.0
			if cur != unassigned {
				curProfit = in.profit(o, cur)
			}
			for _, a := range in.byProfit[o] {
				if a.profit <= curProfit+DefaultEpsilon {
					break
				}
				if a.center == cur || remaining[a.center] < q {
					continue
				}
				if cur != unassigned {
					remaining[cur] += q
				}
				remaining[a.center] -= q
				out[o] = a.center
				improved = true
				break
			}
		}
		if !improved {
			break
		}
	}
	return out
}

func objectiveOf(in *Instance, assign []int) float64 {
	var s ksum
	for o, c := range assign {
		if c != unassigned {
			s = s.add(in.profit(o, c))
		}
	}
	return s.value()
}
