package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"
)

const scenario = `{
  "centers": [{"id": "A", "capacity": 10}, {"id": "B", "capacity": 5}],
  "orders": [{"id": "o1", "quantity": 4}, {"id": "o2", "quantity": 6}, {"id": "o3", "quantity": 5}],
  "edges": [
    {"center": "A", "order": "o1", "reward": 100, "travelTime": 30},
    {"center": "A", "order": "o2", "reward": 100, "travelTime": 20},
    {"center": "A", "order": "o3", "reward": 100, "travelTime": 40},
    {"center": "B", "order": "o1", "reward": 100, "travelTime": 10},
    {"center": "B", "order": "o2", "reward": 100, "travelTime": 5},
    {"center": "B", "order": "o3", "reward": 100, "travelTime": 15}
  ]
}`

type decodedReport struct {
	Status    string  `json:"status" yaml:"status"`
	Objective float64 `json:"objective" yaml:"objective"`
	Decisions []struct {
		OrderID  string `json:"orderId" yaml:"orderId"`
		CenterID string `json:"centerId" yaml:"centerId"`
	} `json:"decisions" yaml:"decisions"`
	System map[string]any `json:"system" yaml:"system"`
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	cli.OsExiter = func(int) {}
	app := newApp(zerolog.Nop())
	app.ErrWriter = os.Stderr
	return app.Run(append([]string{"dcsolve"}, args...))
}

func TestSolveJSONInstance(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "inst.json")
	out := filepath.Join(dir, "out", "report.json")
	require.NoError(t, os.WriteFile(in, []byte(scenario), 0o644))

	require.NoError(t, run(t, "solve", "-i", in, "-o", out, "--workers", "2", "--system"))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var rep decodedReport
	require.NoError(t, json.Unmarshal(b, &rep))
	require.Equal(t, "optimal", rep.Status)
	require.InDelta(t, 235.0, rep.Objective, 1e-9)
	got := map[string]string{}
	for _, d := range rep.Decisions {
		got[d.OrderID] = d.CenterID
	}
	require.Equal(t, map[string]string{"o1": "A", "o2": "A", "o3": "B"}, got)
	require.NotEmpty(t, rep.System)
}

func TestSolveYAMLOutputWithBudget(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "inst.json")
	out := filepath.Join(dir, "report.yaml")
	require.NoError(t, os.WriteFile(in, []byte(scenario), 0o644))

	require.NoError(t, run(t, "solve", "-i", in, "-o", out, "-f", "yaml", "--node-budget", "1"))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var rep decodedReport
	require.NoError(t, yaml.Unmarshal(b, &rep))
	require.Equal(t, "bound_reached", rep.Status)
	require.Len(t, rep.Decisions, 3)
}

func TestConvertCSVThenSolveYAML(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"orders.csv":      "order_number,destination,material,quantity\no1,D1,M1,4\no2,D2,M1,6\no3,D3,M1,5\n",
		"inventories.csv": "location,material,position\nHAM,M1,10\nFRA,M1,5\n",
		"lanes.csv":       "origin,destination,expected_travel_time\nHAM,D1,30\nHAM,D2,20\nHAM,D3,40\nFRA,D1,10\nFRA,D2,5\nFRA,D3,15\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	inst := filepath.Join(dir, "inst.yaml")
	require.NoError(t, run(t, "convert", "--csv-dir", dir, "-o", inst))

	in, err := readInstance(inst)
	require.NoError(t, err)
	require.Len(t, in.Centers, 2)
	require.Equal(t, "FRA/M1", in.Centers[0].ID)
	require.Len(t, in.Edges, 6)

	out := filepath.Join(dir, "report.json")
	require.NoError(t, run(t, "solve", "-i", inst, "-o", out))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var rep decodedReport
	require.NoError(t, json.Unmarshal(b, &rep))
	require.InDelta(t, 235.0, rep.Objective, 1e-9)
}

func TestSolveRejectsInvalidInstance(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"centers":[{"id":"A","capacity":1}],"orders":[{"id":"o1","quantity":0}]}`), 0o644))
	err := run(t, "solve", "-i", in)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid instance")

	require.Error(t, run(t, "solve"))
}
