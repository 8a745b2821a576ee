package opt

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Status tells how a search ended.
type Status int32

const (
	// Optimal means the tree was exhausted; the incumbent is provably optimal.
	Optimal Status = iota
	// BoundReached means the node budget ran out; the incumbent is best-known.
	BoundReached
	// Timeout means the time budget ran out or the context was cancelled.
	Timeout
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case BoundReached:
		return "bound_reached"
	case Timeout:
		return "timeout"
	}
	return "unknown"
}

// MarshalText renders the status in its lowercase wire form.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DefaultEpsilon is the tolerance used when comparing bounds and objectives.
const DefaultEpsilon = 1e-6

// pollMask sets how often (in nodes) time and cancellation are checked.
const pollMask = 255

// Options control a Solve call. Zero values mean "no limit" for the
// budgets, one worker and DefaultEpsilon.
type Options struct {
	NodeBudget int64
	TimeBudget time.Duration
	Workers    int
	// Epsilon is the tolerance for objective comparisons. A branch is pruned
	// when its bound is within Epsilon of the incumbent, and a new incumbent
	// must beat the old one by more than Epsilon. Rounding noise in the
	// bound therefore never causes extra branching, at the price that the
	// returned objective may trail the true optimum by up to Epsilon. Keep it
	// well below the smallest meaningful difference between two assignments.
	Epsilon     float64
	DisableSeed bool
}

// Stats describe the work a search did.
type Stats struct {
	Nodes      int64         `json:"nodes"`
	Pruned     int64         `json:"pruned"`
	Incumbents int64         `json:"incumbents"`
	RootBound  float64       `json:"rootBound"`
	Elapsed    time.Duration `json:"elapsedNs"`
	Workers    int           `json:"workers"`
}

// Result is the outcome of Solve. Assignment is always feasible.
type Result struct {
	Assignment Assignment
	Objective  float64
	Status     Status
	Stats      Stats
}

// control holds the budgets shared by every worker of one search.
type control struct {
	ctx        context.Context
	deadline   time.Time
	nodeBudget int64
	nodes      atomic.Int64
	pruned     atomic.Int64
	halted     atomic.Int32 // 0 running, otherwise Status+1
}

func (c *control) halt(s Status) { c.halted.CompareAndSwap(0, int32(s)+1) }

func (c *control) stopped() bool { return c.halted.Load() != 0 }

// enter accounts for one visited node and reports whether the search may
// continue into it.
func (c *control) enter() bool {
	if c.stopped() {
		return false
	}
	if c.nodeBudget > 0 && c.nodes.Load() >= c.nodeBudget {
		c.halt(BoundReached)
		return false
	}
	n := c.nodes.Add(1)
	if (n-1)&pollMask == 0 {
		if c.ctx.Err() != nil {
			c.halt(Timeout)
			return false
		}
		if !c.deadline.IsZero() && time.Now().After(c.deadline) {
			c.halt(Timeout)
			return false
		}
	}
	return true
}

func (c *control) status() Status {
	if h := c.halted.Load(); h != 0 {
		return Status(h - 1)
	}
	return Optimal
}

// incumbent is the best complete assignment found so far. value is mirrored
// in bits so workers can read it without taking the lock.
type incumbent struct {
	mu      sync.Mutex
	bits    atomic.Uint64
	value   float64
	assign  []int
	updates atomic.Int64
}

func newIncumbent(n int) *incumbent {
	b := &incumbent{assign: make([]int, n)}
	for i := range b.assign {
		b.assign[i] = unassigned
	}
	b.bits.Store(math.Float64bits(0))
	return b
}

func (b *incumbent) load() float64 { return math.Float64frombits(b.bits.Load()) }

// offer replaces the incumbent when v beats it by more than eps.
func (b *incumbent) offer(assign []int, v, eps float64) bool {
	if v <= b.load()+eps {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if v <= b.value+eps {
		return false
	}
	b.value = v
	copy(b.assign, assign)
	b.bits.Store(math.Float64bits(v))
	b.updates.Add(1)
	return true
}

func (b *incumbent) snapshot() ([]int, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.assign...), b.value
}

// Solve searches for an assignment maximising total reward minus travel
// time. It never fails: budget exhaustion and cancellation are reported
// through Result.Status with the best incumbent found.
func Solve(ctx context.Context, inst *Instance, opts Options) Result {
	start := time.Now()
	eps := opts.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	ctl := &control{ctx: ctx, nodeBudget: opts.NodeBudget}
	if opts.TimeBudget > 0 {
		ctl.deadline = start.Add(opts.TimeBudget)
	}
	best := newIncumbent(len(inst.orders))
	if !opts.DisableSeed {
		seed := greedySeed(inst)
		seed = improveRelocate(inst, seed)
		best.offer(seed, objectiveOf(inst, seed), eps)
	}
	root := Root(inst)

	if workers == 1 {
		s := newSearcher(inst, ctl, best, eps, root)
		s.run()
	} else {
		solveParallel(inst, ctl, best, eps, root, workers)
	}

	assign, value := best.snapshot()
	return Result{
		Assignment: inst.toAssignment(assign),
		Objective:  value,
		Status:     ctl.status(),
		Stats: Stats{
			Nodes:      ctl.nodes.Load(),
			Pruned:     ctl.pruned.Load(),
			Incumbents: best.updates.Load(),
			RootBound:  root.Bound(),
			Elapsed:    time.Since(start),
			Workers:    workers,
		},
	}
}

// frame is one level of the explicit DFS stack.
type frame struct {
	order    int
	branches []branch
	pos      int
	applied  int
	saved    ksum
	hasApply bool
}

// searcher runs a depth-first search over one subtree with a single mutable
// state and strict undo on backtrack.
type searcher struct {
	inst      *Instance
	ctl       *control
	best      *incumbent
	eps       float64
	start     int
	assign    []int
	remaining []int
	accrued   ksum
	stack     []frame
}

func newSearcher(inst *Instance, ctl *control, best *incumbent, eps float64, from *SearchNode) *searcher {
	return &searcher{
		inst:      inst,
		ctl:       ctl,
		best:      best,
		eps:       eps,
		start:     from.next,
		assign:    append([]int(nil), from.assign...),
		remaining: append([]int(nil), from.remaining...),
		accrued:   from.accrued,
	}
}

func (s *searcher) apply(o, c int) ksum {
	saved := s.accrued
	s.assign[o] = c
	if c != unassigned {
		s.remaining[c] -= s.inst.orders[o].Quantity
		s.accrued = s.accrued.add(s.inst.profit(o, c))
	}
	return saved
}

func (s *searcher) undo(o, c int, saved ksum) {
	if c != unassigned {
		s.remaining[c] += s.inst.orders[o].Quantity
	}
	s.assign[o] = unassigned
	s.accrued = saved
}

func (s *searcher) leaf() {
	s.best.offer(s.assign, s.accrued.value(), s.eps)
}

func (s *searcher) push(o int) {
	s.stack = append(s.stack, frame{
		order:    o,
		branches: rankBranches(s.inst, o, s.remaining, s.accrued),
	})
}

// run explores the subtree rooted at the searcher's starting state.
func (s *searcher) run() {
	if !s.ctl.enter() {
		return
	}
	n := len(s.inst.orders)
	if s.start == n {
		s.leaf()
		return
	}
	s.push(s.start)
	for len(s.stack) > 0 {
		f := &s.stack[len(s.stack)-1]
		if f.hasApply {
			s.undo(f.order, f.applied, f.saved)
			f.hasApply = false
		}
		if s.ctl.stopped() || f.pos == len(f.branches) {
			s.stack = s.stack[:len(s.stack)-1]
			continue
		}
		br := f.branches[f.pos]
		f.pos++
		if br.bound <= s.best.load()+s.eps {
			// Branches are sorted by bound, so the rest cannot do better.
			s.ctl.pruned.Add(int64(len(f.branches) - f.pos + 1))
			f.pos = len(f.branches)
			continue
		}
		f.saved = s.apply(f.order, br.center)
		f.applied = br.center
		f.hasApply = true
		if !s.ctl.enter() {
			continue
		}
		if f.order+1 == n {
			s.leaf()
			continue
		}
		s.push(f.order + 1)
	}
}
