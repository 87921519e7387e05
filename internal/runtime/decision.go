package runtime

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/nebulastream/streamcore/common/prque"
)

// DecisionManager periodically samples every registered plan's queue-size
// counter and ranks sub-plans by overload score so an operator (or a future
// scheduler) can see which plans are falling behind. It is advisory only,
// matching the spec's "load balancing (optional)" framing: it never moves
// tasks or pipelines itself.
type DecisionManager struct {
	engine   *Engine
	interval time.Duration

	mu       sync.Mutex
	lastSeen map[PlanId]int64
	coDeployed mapset.Set[PlanId]

	stop chan struct{}
	done chan struct{}
}

// NewDecisionManager builds a manager sampling at the given interval; it
// does nothing until Start is called.
func NewDecisionManager(e *Engine, interval time.Duration) *DecisionManager {
	return &DecisionManager{
		engine:     e,
		interval:   interval,
		lastSeen:   make(map[PlanId]int64),
		coDeployed: mapset.NewSet[PlanId](),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the sampling loop in its own goroutine until Stop is called.
func (d *DecisionManager) Start() {
	go d.run()
}

func (d *DecisionManager) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.sample()
		}
	}
}

// Stop signals the sampling goroutine to exit and waits for it.
func (d *DecisionManager) Stop() {
	close(d.stop)
	<-d.done
}

// sample builds a priority queue of plans ranked by queue-size growth since
// the last sample (highest growth first, i.e. lowest precedence value) and
// records every sampled plan as co-deployed for the interval.
func (d *DecisionManager) sample() *prque.Prque[int64, PlanId] {
	d.engine.mu.RLock()
	plans := make([]*ExecutableQueryPlan, 0, len(d.engine.runningQEPs))
	for _, qep := range d.engine.runningQEPs {
		plans = append(plans, qep)
	}
	d.engine.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	ranked := prque.New[int64, PlanId](nil)
	for _, qep := range plans {
		stats, ok := d.engine.stats.get(qep.Id)
		if !ok {
			continue
		}
		current := stats.QueueSizeSum.Count()
		delta := current - d.lastSeen[qep.Id]
		d.lastSeen[qep.Id] = current
		d.coDeployed.Add(qep.Id)
		// Negate so the plan with the largest backlog growth pops first
		// (prque is a min-heap on priority).
		ranked.Push(qep.Id, -delta)
	}
	return ranked
}

// CoDeployedPlans returns the set of plan ids observed in at least one
// sampling round, for callers wanting to reason about which plans share the
// worker pool concurrently.
func (d *DecisionManager) CoDeployedPlans() mapset.Set[PlanId] {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.coDeployed.Clone()
}
