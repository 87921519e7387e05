package runtime

import "sync/atomic"

// ExecutableQueryPlan is the runnable physical graph bound to sources,
// sinks, shared state and lifecycle. Its status only ever moves forward
// along the transitions described in the runtime design: Created -> Running
// -> {Stopped, Finished, ErrorState}.
type ExecutableQueryPlan struct {
	Id       PlanId
	QueryId  uint64
	Pipelines []*ExecutablePipeline
	Sources  []Source
	Sinks    []Sink

	status             atomic.Int32
	terminationFuture  chan planResult
	remainingPipelines atomic.Int32
}

type planResult struct {
	ok  bool
	err error
}

// NewExecutableQueryPlan creates a plan in the Created state.
func NewExecutableQueryPlan(id PlanId, queryId uint64, pipelines []*ExecutablePipeline, sources []Source, sinks []Sink) *ExecutableQueryPlan {
	qep := &ExecutableQueryPlan{
		Id:        id,
		QueryId:   queryId,
		Pipelines: pipelines,
		Sources:   sources,
		Sinks:     sinks,
	}
	qep.status.Store(int32(Created))
	qep.terminationFuture = make(chan planResult, 1)
	qep.remainingPipelines.Store(int32(len(pipelines)))
	for _, p := range pipelines {
		p.plan = qep
	}
	return qep
}

func (q *ExecutableQueryPlan) Status() Status { return Status(q.status.Load()) }

func (q *ExecutableQueryPlan) setStatus(s Status) { q.status.Store(int32(s)) }

// compareAndSwapStatus performs the same idiom the reference implementation
// uses to drive the status machine: a compare-and-swap guards every
// transition so at most one caller observes success for a given edge.
func (q *ExecutableQueryPlan) compareAndSwapStatus(from, to Status) bool {
	return q.status.CompareAndSwap(int32(from), int32(to))
}

// finish reports the plan's terminal outcome on its termination future,
// satisfied exactly once.
func (q *ExecutableQueryPlan) finish(ok bool, err error) {
	select {
	case q.terminationFuture <- planResult{ok: ok, err: err}:
	default:
	}
}

// Reconfigure and PostReconfigurationCallback implement Reconfigurable for
// plan-targeted messages (currently only Destroy).
func (q *ExecutableQueryPlan) Reconfigure(*ReconfigurationMessage, *WorkerContext) {}

func (q *ExecutableQueryPlan) PostReconfigurationCallback(msg *ReconfigurationMessage) {
	switch msg.Type {
	case Destroy:
		// Removal from runningQEPs is the engine's job; the plan itself has
		// nothing further to release here.
	}
}

// Reconfigure applies a pipeline-targeted reconfiguration and does nothing
// itself. On soft or hard end-of-stream, PostReconfigurationCallback (run once
// every worker has observed the message) marks the pipeline as no longer
// running and counts it towards the plan's termination. Task execution does
// not consult this flag: data tasks already queued for the pipeline, and the
// successor tasks they dispatch, still run.
func (p *ExecutablePipeline) Reconfigure(*ReconfigurationMessage, *WorkerContext) {}

func (p *ExecutablePipeline) PostReconfigurationCallback(msg *ReconfigurationMessage) {
	switch msg.Type {
	case SoftEndOfStream, HardEndOfStream:
		if !p.running {
			return
		}
		p.running = false
		if p.plan != nil && p.plan.remainingPipelines.Add(-1) == 0 {
			p.plan.finish(true, nil)
		}
	}
}
