package opt

import "sync"

type key struct {
	Tenant string
	Day    string
	Status string
}

// DayMetrics aggregates the searches of one tenant, day and status.
type DayMetrics struct {
	Runs          int     `json:"runs"`
	Nodes         int64   `json:"nodes"`
	Pruned        int64   `json:"pruned"`
	LastObjective float64 `json:"lastObjective"`
	LastRootBound float64 `json:"lastRootBound"`
}

var (
	mu    sync.Mutex
	store = map[key]DayMetrics{}
)

// RecordMetrics folds the stats of one search into the day's aggregate.
func RecordMetrics(tenant, day string, r Result) {
	mu.Lock()
	k := key{Tenant: tenant, Day: day, Status: r.Status.String()}
	m := store[k]
	m.Runs++
	m.Nodes += r.Stats.Nodes
	m.Pruned += r.Stats.Pruned
	m.LastObjective = r.Objective
	m.LastRootBound = r.Stats.RootBound
	store[k] = m
	mu.Unlock()
}

// GetMetrics returns the day's aggregates keyed by status.
func GetMetrics(tenant, day string) map[string]DayMetrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]DayMetrics{}
	for k, v := range store {
		if k.Tenant == tenant && k.Day == day {
			out[k.Status] = v
		}
	}
	return out
}
