package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dcsourcing/internal/integrations"
	"dcsourcing/internal/integrations/csvdir"
	"dcsourcing/internal/opt"
	"dcsourcing/internal/sourcing"
	"dcsourcing/internal/store"
)

// instanceFile is the on-disk instance, in JSON or YAML.
type instanceFile struct {
	Centers []centerRow `json:"centers" yaml:"centers"`
	Orders  []orderRow  `json:"orders" yaml:"orders"`
	Edges   []edgeRow   `json:"edges" yaml:"edges"`
}

type centerRow struct {
	ID       string `json:"id" yaml:"id"`
	Capacity int    `json:"capacity" yaml:"capacity"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
}

type orderRow struct {
	ID       string     `json:"id" yaml:"id"`
	Quantity int        `json:"quantity" yaml:"quantity"`
	Material string     `json:"material,omitempty" yaml:"material,omitempty"`
	DueDate  *time.Time `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
}

type edgeRow struct {
	Center     string  `json:"center" yaml:"center"`
	Order      string  `json:"order" yaml:"order"`
	Reward     float64 `json:"reward" yaml:"reward"`
	TravelTime float64 `json:"travelTime" yaml:"travelTime"`
}

func (f instanceFile) input() opt.Input {
	var in opt.Input
	for _, c := range f.Centers {
		in.Centers = append(in.Centers, opt.Center{ID: c.ID, Capacity: c.Capacity, Location: c.Location})
	}
	for _, o := range f.Orders {
		in.Orders = append(in.Orders, opt.Order{ID: o.ID, Quantity: o.Quantity, Material: o.Material, DueDate: o.DueDate})
	}
	for _, e := range f.Edges {
		in.Edges = append(in.Edges, opt.Edge{CenterID: e.Center, OrderID: e.Order, Reward: e.Reward, TravelTime: e.TravelTime})
	}
	return in
}

func fromInput(in opt.Input) instanceFile {
	var f instanceFile
	for _, c := range in.Centers {
		f.Centers = append(f.Centers, centerRow{ID: c.ID, Capacity: c.Capacity, Location: c.Location})
	}
	for _, o := range in.Orders {
		f.Orders = append(f.Orders, orderRow{ID: o.ID, Quantity: o.Quantity, Material: o.Material, DueDate: o.DueDate})
	}
	for _, e := range in.Edges {
		f.Edges = append(f.Edges, edgeRow{Center: e.CenterID, Order: e.OrderID, Reward: e.Reward, TravelTime: e.TravelTime})
	}
	return f
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func readInstance(path string) (opt.Input, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return opt.Input{}, err
	}
	var f instanceFile
	if isYAML(path) {
		err = yaml.Unmarshal(b, &f)
	} else {
		err = json.Unmarshal(b, &f)
	}
	if err != nil {
		return opt.Input{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.input(), nil
}

// inputFromCSV joins the CSV tables the same way the service joins its
// stored tables, using an in-memory store.
func inputFromCSV(ctx context.Context, dir string, defaultReward float64) (opt.Input, error) {
	m := store.NewMemory()
	const tenant = "local"
	if _, err := integrations.Load(ctx, csvdir.Adapter{Dir: dir}, m, tenant); err != nil {
		return opt.Input{}, err
	}
	rows, err := m.FetchCandidates(ctx, tenant)
	if err != nil {
		return opt.Input{}, err
	}
	return sourcing.BuildInput(rows, defaultReward), nil
}

func marshal(v any, format string) ([]byte, error) {
	switch format {
	case "yaml", "yml":
		return yaml.Marshal(v)
	case "json", "":
		return json.MarshalIndent(v, "", "  ")
	}
	return nil, fmt.Errorf("unknown format %q (json|yaml)", format)
}
