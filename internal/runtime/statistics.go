package runtime

import (
	"sync"
	"time"

	"github.com/nebulastream/streamcore/metrics"
)

// QueryStatistics holds the monotonic counters the spec names: processed
// tasks/tuples/buffers, summed latency, and pool occupancy samples. Reads
// are lock-free (every field is backed by a metrics.Counter); there is a
// single writer per query sub-plan on the happy path.
type QueryStatistics struct {
	QueryId uint64
	PlanId  PlanId

	ProcessedTasks           metrics.Counter
	ProcessedTuples          metrics.Counter
	ProcessedBuffers         metrics.Counter
	LatencySum               metrics.Counter
	QueueSizeSum             metrics.Counter
	AvailableGlobalBufferSum metrics.Counter
	AvailableFixedBufferSum  metrics.Counter
	Latency                  metrics.Timer
}

func NewQueryStatistics(queryId uint64, planId PlanId) *QueryStatistics {
	return &QueryStatistics{
		QueryId:                  queryId,
		PlanId:                   planId,
		ProcessedTasks:           metrics.NewCounter(),
		ProcessedTuples:          metrics.NewCounter(),
		ProcessedBuffers:         metrics.NewCounter(),
		LatencySum:               metrics.NewCounter(),
		QueueSizeSum:             metrics.NewCounter(),
		AvailableGlobalBufferSum: metrics.NewCounter(),
		AvailableFixedBufferSum:  metrics.NewCounter(),
		Latency:                  metrics.NewTimer(),
	}
}

// Snapshot copies every counter and the timer into their immutable
// point-in-time forms, returned by value so a caller polling concurrently
// with worker increments never observes a struct whose fields are still
// being mutated mid-read.
func (s *QueryStatistics) Snapshot() QueryStatistics {
	return QueryStatistics{
		QueryId:                  s.QueryId,
		PlanId:                   s.PlanId,
		ProcessedTasks:           s.ProcessedTasks.Snapshot(),
		ProcessedTuples:          s.ProcessedTuples.Snapshot(),
		ProcessedBuffers:         s.ProcessedBuffers.Snapshot(),
		LatencySum:               s.LatencySum.Snapshot(),
		QueueSizeSum:             s.QueueSizeSum.Snapshot(),
		AvailableGlobalBufferSum: s.AvailableGlobalBufferSum.Snapshot(),
		AvailableFixedBufferSum:  s.AvailableFixedBufferSum.Snapshot(),
		Latency:                  s.Latency.Snapshot(),
	}
}

func (s *QueryStatistics) recordCompletedTask(numTuples uint64, creation time.Time, queueSize int, availableGlobal, availableFixed int64) {
	s.ProcessedTasks.Inc(1)
	s.ProcessedBuffers.Inc(1)
	s.ProcessedTuples.Inc(int64(numTuples))
	latency := time.Since(creation)
	s.LatencySum.Inc(latency.Milliseconds())
	s.Latency.Update(latency)
	if queueSize > 0 {
		s.QueueSizeSum.Inc(int64(queueSize))
	}
	s.AvailableGlobalBufferSum.Inc(availableGlobal)
	s.AvailableFixedBufferSum.Inc(availableFixed)
}

// statisticsTable is the engine's queryToStatisticsMap, guarded by its own
// mutex (the reference implementation's statisticsMutex) so stat reads never
// contend with query registration/teardown.
type statisticsTable struct {
	mu    sync.RWMutex
	byPlan map[PlanId]*QueryStatistics
}

func newStatisticsTable() *statisticsTable {
	return &statisticsTable{byPlan: make(map[PlanId]*QueryStatistics)}
}

func (t *statisticsTable) register(planId PlanId, stats *QueryStatistics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byPlan[planId] = stats
}

func (t *statisticsTable) get(planId PlanId) (*QueryStatistics, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byPlan[planId]
	return s, ok
}

func (t *statisticsTable) remove(planId PlanId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byPlan, planId)
}
