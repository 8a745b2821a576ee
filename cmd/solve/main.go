// Command dcsolve solves a sourcing instance offline and prints the
// assignment with its search statistics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli"

	"dcsourcing/internal/buildinfo"
	"dcsourcing/internal/opt"
)

type report struct {
	Status     opt.Status          `json:"status" yaml:"status"`
	Objective  float64             `json:"objective" yaml:"objective"`
	RootBound  float64             `json:"rootBound" yaml:"rootBound"`
	Nodes      int64               `json:"nodes" yaml:"nodes"`
	Pruned     int64               `json:"pruned" yaml:"pruned"`
	Incumbents int64               `json:"incumbents" yaml:"incumbents"`
	Workers    int                 `json:"workers" yaml:"workers"`
	ElapsedMs  int64               `json:"elapsedMs" yaml:"elapsedMs"`
	Decisions  []opt.OrderDecision `json:"decisions" yaml:"decisions"`
	System     *buildinfo.SysInfo  `json:"system,omitempty" yaml:"system,omitempty"`
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	if err := newApp(log).Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("dcsolve failed")
	}
}

func newApp(log zerolog.Logger) *cli.App {
	app := cli.NewApp()
	app.Name = "dcsolve"
	app.Usage = "assign orders to distribution centers by exact branch-and-bound"
	app.Version = buildinfo.Version
	app.Commands = []cli.Command{
		{
			Name:  "solve",
			Usage: "solve an instance file (JSON or YAML) or a directory of CSV tables",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "input, i", Usage: "instance file; .yaml/.yml is read as YAML, anything else as JSON"},
				cli.StringFlag{Name: "csv-dir", Usage: "directory with orders.csv, inventories.csv and lanes.csv"},
				cli.Float64Flag{Name: "default-reward", Value: 100, Usage: "reward for CSV orders without one"},
				cli.Int64Flag{Name: "node-budget", Usage: "maximum search nodes, 0 for unlimited"},
				cli.DurationFlag{Name: "time-budget", Usage: "maximum wall time, 0 for unlimited"},
				cli.IntFlag{Name: "workers, w", Value: 1, Usage: "parallel search workers"},
				cli.Float64Flag{Name: "epsilon", Value: opt.DefaultEpsilon, Usage: "bound comparison tolerance"},
				cli.BoolFlag{Name: "no-seed", Usage: "start from the empty assignment instead of the greedy seed"},
				cli.StringFlag{Name: "format, f", Value: "json", Usage: "output format: json|yaml"},
				cli.StringFlag{Name: "output, o", Usage: "write the report here instead of stdout"},
				cli.BoolFlag{Name: "system", Usage: "include host information in the report"},
			},
			Action: func(c *cli.Context) error { return solveAction(c, log) },
		},
		{
			Name:  "convert",
			Usage: "turn a directory of CSV tables into an instance file",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "csv-dir", Usage: "directory with orders.csv, inventories.csv and lanes.csv"},
				cli.Float64Flag{Name: "default-reward", Value: 100, Usage: "reward for orders without one"},
				cli.StringFlag{Name: "output, o", Usage: "instance file to write (.yaml/.yml for YAML)"},
			},
			Action: convertAction,
		},
	}
	return app
}

func loadInput(ctx context.Context, c *cli.Context) (opt.Input, error) {
	switch {
	case c.String("input") != "" && c.String("csv-dir") != "":
		return opt.Input{}, cli.NewExitError("use either --input or --csv-dir", 2)
	case c.String("input") != "":
		return readInstance(c.String("input"))
	case c.String("csv-dir") != "":
		return inputFromCSV(ctx, c.String("csv-dir"), c.Float64("default-reward"))
	}
	return opt.Input{}, cli.NewExitError("one of --input or --csv-dir is required", 2)
}

func solveAction(c *cli.Context, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	in, err := loadInput(ctx, c)
	if err != nil {
		return err
	}
	inst, err := opt.Build(in)
	if err != nil {
		return cli.NewExitError(err.Error(), 3)
	}
	log.Info().Int("centers", inst.NumCenters()).Int("orders", inst.NumOrders()).Msg("instance loaded")

	res := opt.Solve(ctx, inst, opt.Options{
		NodeBudget:  c.Int64("node-budget"),
		TimeBudget:  c.Duration("time-budget"),
		Workers:     c.Int("workers"),
		Epsilon:     c.Float64("epsilon"),
		DisableSeed: c.Bool("no-seed"),
	})
	decisions, err := opt.Extract(inst, res.Assignment)
	if err != nil {
		return err
	}
	log.Info().
		Str("status", res.Status.String()).
		Float64("objective", res.Objective).
		Float64("root_bound", res.Stats.RootBound).
		Int64("nodes", res.Stats.Nodes).
		Dur("elapsed", res.Stats.Elapsed).
		Msg("search finished")

	rep := report{
		Status:     res.Status,
		Objective:  res.Objective,
		RootBound:  res.Stats.RootBound,
		Nodes:      res.Stats.Nodes,
		Pruned:     res.Stats.Pruned,
		Incumbents: res.Stats.Incumbents,
		Workers:    res.Stats.Workers,
		ElapsedMs:  res.Stats.Elapsed.Milliseconds(),
		Decisions:  decisions,
	}
	if c.Bool("system") {
		si := buildinfo.System()
		rep.System = &si
	}
	out, err := marshal(rep, strings.ToLower(c.String("format")))
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	return emit(c.String("output"), out)
}

func convertAction(c *cli.Context) error {
	if c.String("csv-dir") == "" || c.String("output") == "" {
		return cli.NewExitError("--csv-dir and --output are required", 2)
	}
	in, err := inputFromCSV(context.Background(), c.String("csv-dir"), c.Float64("default-reward"))
	if err != nil {
		return err
	}
	format := "json"
	if isYAML(c.String("output")) {
		format = "yaml"
	}
	out, err := marshal(fromInput(in), format)
	if err != nil {
		return err
	}
	return emit(c.String("output"), out)
}

func emit(path string, b []byte) error {
	if path == "" {
		_, err := fmt.Fprintln(os.Stdout, string(b))
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}
