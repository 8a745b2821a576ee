package sourcing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dcsourcing/internal/metrics"
	"dcsourcing/internal/model"
	"dcsourcing/internal/opt"
	"dcsourcing/internal/store"
)

// ErrRunInProgress is returned when another run holds the tenant's lock.
var ErrRunInProgress = errors.New("sourcing run already in progress")

// ErrLockLost is returned when the tenant's lock passed to another holder
// before the run could persist. Nothing is saved.
var ErrLockLost = errors.New("sourcing run lost its lock")

// EventCompleted is the event type published after a run is persisted.
const EventCompleted = "sourcing.completed"

// Notifier receives every persisted run.
type Notifier interface {
	RunCompleted(ctx context.Context, run model.Run)
}

// Notifiers fans a run out to each notifier in order.
type Notifiers []Notifier

func (ns Notifiers) RunCompleted(ctx context.Context, run model.Run) {
	for _, n := range ns {
		n.RunCompleted(ctx, run)
	}
}

// RunOptions bound a single run. Zero fields take the service defaults.
type RunOptions struct {
	NodeBudget int64
	TimeBudget time.Duration
	Workers    int
}

// Service runs the sourcing job for a tenant: snapshot the open orders,
// solve, persist the decisions and notify listeners.
type Service struct {
	Store         store.Store
	Locker        Locker
	Notifier      Notifier
	Log           zerolog.Logger
	Defaults      RunOptions
	DefaultReward float64
	LockTTL       time.Duration
	Now           func() time.Time
}

func NewService(s store.Store, l Locker, log zerolog.Logger) *Service {
	return &Service{
		Store:         s,
		Locker:        l,
		Log:           log,
		DefaultReward: 100,
		LockTTL:       5 * time.Minute,
		Now:           time.Now,
	}
}

func (s *Service) options(o RunOptions) opt.Options {
	if o.NodeBudget == 0 {
		o.NodeBudget = s.Defaults.NodeBudget
	}
	if o.TimeBudget == 0 {
		o.TimeBudget = s.Defaults.TimeBudget
	}
	if o.Workers == 0 {
		o.Workers = s.Defaults.Workers
	}
	return opt.Options{NodeBudget: o.NodeBudget, TimeBudget: o.TimeBudget, Workers: o.Workers}
}

// Run executes one sourcing run for tenant and returns the persisted run
// with its decisions. Budget exhaustion and cancellation during the search
// still persist the best assignment found; the run status says which.
func (s *Service) Run(ctx context.Context, tenant string, o RunOptions) (model.Run, error) {
	log := s.Log.With().Str("tenant", tenant).Logger()
	lease, ok, err := s.Locker.TryLock(ctx, "sourcing:"+tenant, s.LockTTL)
	if err != nil {
		return model.Run{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return model.Run{}, ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	keeper := s.keepLease(lease, cancel, log)
	defer func() {
		keeper.stop()
		lease.Release()
	}()
	ctx = runCtx

	rows, err := s.Store.FetchCandidates(ctx, tenant)
	if err != nil && keeper.lost.Load() {
		metrics.SourcingErrors.WithLabelValues("lock").Inc()
		return model.Run{}, ErrLockLost
	}
	if err != nil {
		metrics.SourcingErrors.WithLabelValues("fetch").Inc()
		return model.Run{}, fmt.Errorf("fetch candidates: %w", err)
	}
	inst, err := opt.Build(BuildInput(rows, s.DefaultReward))
	if err != nil {
		metrics.SourcingErrors.WithLabelValues("build").Inc()
		log.Warn().Err(err).Int("rows", len(rows)).Msg("rejected sourcing instance")
		return model.Run{}, err
	}

	res := opt.Solve(ctx, inst, s.options(o))
	decided, err := opt.Extract(inst, res.Assignment)
	if err != nil {
		metrics.SourcingErrors.WithLabelValues("extract").Inc()
		log.Error().Err(err).Str("status", res.Status.String()).Msg("solver returned an infeasible assignment")
		return model.Run{}, err
	}

	run := model.Run{
		ID:          uuid.NewString(),
		TenantID:    tenant,
		Status:      res.Status.String(),
		Objective:   res.Objective,
		RootBound:   res.Stats.RootBound,
		Nodes:       res.Stats.Nodes,
		Pruned:      res.Stats.Pruned,
		Incumbents:  res.Stats.Incumbents,
		Workers:     res.Stats.Workers,
		ElapsedMs:   res.Stats.Elapsed.Milliseconds(),
		OrdersFound: inst.NumOrders(),
		Assigned:    len(res.Assignment),
		DecidedAt:   s.Now().UTC().Truncate(time.Second),
	}
	locations := map[string]string{}
	for _, c := range inst.Centers() {
		locations[c.ID] = c.Location
	}
	decisions := make([]model.Decision, 0, len(decided))
	for _, d := range decided {
		decisions = append(decisions, model.Decision{
			RunID:       run.ID,
			OrderNumber: d.OrderID,
			CenterID:    d.CenterID,
			Origin:      locations[d.CenterID],
			Assigned:    d.Assigned,
			Quantity:    d.Quantity,
			Reward:      d.Reward,
			TravelTime:  d.TravelTime,
		})
	}

	if keeper.lost.Load() {
		metrics.SourcingErrors.WithLabelValues("lock").Inc()
		log.Error().Str("status", res.Status.String()).Msg("sourcing lock lost before persisting; run discarded")
		return model.Run{}, ErrLockLost
	}

	// A cancelled request still records what the search found.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.Store.SaveRun(persistCtx, run, decisions); err != nil {
		metrics.SourcingErrors.WithLabelValues("save").Inc()
		return model.Run{}, fmt.Errorf("save run: %w", err)
	}
	run.Decisions = decisions

	opt.RecordMetrics(tenant, run.DecidedAt.Format("2006-01-02"), res)
	metrics.SourcingRuns.WithLabelValues(run.Status).Inc()
	metrics.SolveSeconds.Observe(res.Stats.Elapsed.Seconds())
	metrics.NodesExplored.Observe(float64(res.Stats.Nodes))
	metrics.Objective.WithLabelValues(tenant).Set(res.Objective)

	log.Info().
		Str("run_id", run.ID).
		Str("status", run.Status).
		Int64("nodes", run.Nodes).
		Float64("objective", run.Objective).
		Float64("root_bound", run.RootBound).
		Int("orders", run.OrdersFound).
		Int("assigned", run.Assigned).
		Msg(store.AuditDescription(run.OrdersFound, run.Assigned))

	if s.Notifier != nil {
		s.Notifier.RunCompleted(persistCtx, run)
	}
	return run, nil
}

// leaseKeeper extends a run's lease every third of the lock TTL until
// stopped. A lease that cannot be extended marks the run lost and cancels it.
type leaseKeeper struct {
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	lost atomic.Bool
}

func (s *Service) keepLease(lease *Lease, cancel context.CancelFunc, log zerolog.Logger) *leaseKeeper {
	k := &leaseKeeper{done: make(chan struct{})}
	interval := s.LockTTL / 3
	if interval <= 0 {
		interval = time.Second
	}
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-k.done:
				return
			case <-t.C:
				ctx, done := context.WithTimeout(context.Background(), interval)
				ok, err := lease.Extend(ctx, s.LockTTL)
				done()
				if err != nil {
					log.Warn().Err(err).Msg("extend sourcing lock")
					continue
				}
				if !ok {
					k.lost.Store(true)
					cancel()
					return
				}
			}
		}
	}()
	return k
}

func (k *leaseKeeper) stop() {
	k.once.Do(func() { close(k.done) })
	k.wg.Wait()
}
