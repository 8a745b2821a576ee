package sourcing

import (
	"sort"

	"dcsourcing/internal/model"
	"dcsourcing/internal/opt"
)

// CenterID names the stock of one material at one location.
func CenterID(location, material string) string { return location + "/" + material }

// BuildInput turns joined candidate rows into solver input. Every
// (location, material) stock becomes a center whose capacity is its
// inventory position, every order number becomes an order and every row an
// edge. Rows without a reward use defaultReward. When several rows describe
// the same edge the shortest travel time wins.
func BuildInput(rows []model.Candidate, defaultReward float64) opt.Input {
	centers := map[string]opt.Center{}
	orders := map[string]opt.Order{}
	edges := map[[2]string]opt.Edge{}

	for _, r := range rows {
		cid := CenterID(r.Origin, r.Material)
		if _, ok := centers[cid]; !ok {
			centers[cid] = opt.Center{ID: cid, Capacity: r.Position, Location: r.Origin}
		}
		if _, ok := orders[r.OrderNumber]; !ok {
			orders[r.OrderNumber] = opt.Order{ID: r.OrderNumber, Quantity: r.Quantity, Material: r.Material, DueDate: r.DueDate}
		}
		reward := defaultReward
		if r.Reward != nil {
			reward = *r.Reward
		}
		k := [2]string{cid, r.OrderNumber}
		if e, ok := edges[k]; ok && e.TravelTime <= r.TravelTime {
			continue
		}
		edges[k] = opt.Edge{CenterID: cid, OrderID: r.OrderNumber, Reward: reward, TravelTime: r.TravelTime}
	}

	var in opt.Input
	for _, c := range centers {
		in.Centers = append(in.Centers, c)
	}
	for _, o := range orders {
		in.Orders = append(in.Orders, o)
	}
	for _, e := range edges {
		in.Edges = append(in.Edges, e)
	}
	sort.Slice(in.Centers, func(i, j int) bool { return in.Centers[i].ID < in.Centers[j].ID })
	sort.Slice(in.Orders, func(i, j int) bool { return in.Orders[i].ID < in.Orders[j].ID })
	sort.Slice(in.Edges, func(i, j int) bool {
		if in.Edges[i].OrderID != in.Edges[j].OrderID {
			return in.Edges[i].OrderID < in.Edges[j].OrderID
		}
		return in.Edges[i].CenterID < in.Edges[j].CenterID
	})
	return in
}
