package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nebulastream/streamcore/common/mclock"
	"github.com/nebulastream/streamcore/event"
)

// startNetworkSourceWithRetry brings up a network-backed source with
// exponential backoff: unlike a data source, a network source's connect
// step can fail transiently (the peer isn't listening yet), so a single
// failed Start should not abort the whole plan.
func startNetworkSourceWithRetry(src Source) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(src.Start, policy)
}

// StatusChange is published on Engine.Statuses whenever a plan crosses a
// lifecycle transition, letting the decision manager or an operator console
// observe status without polling GetQepStatus.
type StatusChange struct {
	PlanId PlanId
	Status Status
}

// ErrStopTimeout is returned by StopQuery when a plan's termination future
// is not satisfied within the configured deadline. Per the runtime design
// this is treated as fatal: the reference implementation asserts rather than
// retrying or forcing a kill, and this port preserves that rather than
// inventing a forced-teardown path the spec never describes.
var ErrStopTimeout = errors.New("runtime: stop query timed out waiting for termination")

// Engine is the query manager: it owns the worker pool, the live plan
// registry, source-to-successor routing, and per-plan statistics.
type Engine struct {
	queue       *taskQueue
	numWorkers  int
	stopTimeout time.Duration
	clock       mclock.Clock

	mu                              sync.RWMutex
	runningQEPs                     map[PlanId]*ExecutableQueryPlan
	sourceIdToSuccessorMap          map[OperatorId][]Successor
	sourceIdToExecutableQueryPlanMap map[OperatorId]*ExecutableQueryPlan

	stats *statisticsTable

	// recentStatus survives a short while past Destroy so a racing
	// GetQepStatus call from a caller that just issued StopQuery still sees
	// a meaningful terminal status instead of Invalid.
	recentStatus *lru.Cache[PlanId, Status]

	// Statuses publishes Running when StartQuery succeeds and Finished or
	// ErrorState when StopQuery settles a plan.
	Statuses event.Feed

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewEngine constructs an engine with the given worker count and task queue
// capacity (0 means unbounded) and starts its worker pool.
func NewEngine(numWorkers, queueCapacity int, stopTimeout time.Duration) *Engine {
	return newEngineWithClock(numWorkers, queueCapacity, stopTimeout, mclock.System{})
}

// newEngineWithClock is NewEngine with an injectable clock, letting tests
// drive the stop-timeout deadline with mclock.Simulated instead of sleeping.
func newEngineWithClock(numWorkers, queueCapacity int, stopTimeout time.Duration, clock mclock.Clock) *Engine {
	cache, _ := lru.New[PlanId, Status](256)
	e := &Engine{
		queue:                            newTaskQueue(queueCapacity),
		numWorkers:                       numWorkers,
		stopTimeout:                      stopTimeout,
		clock:                            clock,
		runningQEPs:                      make(map[PlanId]*ExecutableQueryPlan),
		sourceIdToSuccessorMap:           make(map[OperatorId][]Successor),
		sourceIdToExecutableQueryPlanMap: make(map[OperatorId]*ExecutableQueryPlan),
		stats:                            newStatisticsTable(),
		recentStatus:                     cache,
	}
	e.startThreadPool()
	return e
}

func (e *Engine) startThreadPool() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	g, _ := errgroup.WithContext(ctx)
	e.group = g
	for i := 0; i < e.numWorkers; i++ {
		id := i
		g.Go(func() error { return e.runWorker(id) })
	}
}

// RegisterQuery records a plan's successor routing and statistics bucket
// before it is started. Mirrors registerQuery's sourceIdToSuccessorMap /
// sourceIdToExecutableQueryPlanMap bookkeeping.
func (e *Engine) RegisterQuery(qep *ExecutableQueryPlan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, src := range qep.Sources {
		e.sourceIdToExecutableQueryPlanMap[src.OperatorId()] = qep
		for _, p := range qep.Pipelines {
			e.sourceIdToSuccessorMap[src.OperatorId()] = append(e.sourceIdToSuccessorMap[src.OperatorId()], PipelineSuccessor(p))
		}
	}
	e.stats.register(qep.Id, NewQueryStatistics(qep.QueryId, qep.Id))
}

// StartQuery moves a registered plan from Created to Running: it marks every
// pipeline as running, then starts the network sources (retrying with
// backoff) and then the data sources. Sinks are not started: the Sink
// interface has no start step.
func (e *Engine) StartQuery(qep *ExecutableQueryPlan) error {
	if !qep.compareAndSwapStatus(Created, Running) {
		return fmt.Errorf("runtime: plan %s not in Created state", qep.Id)
	}

	for _, p := range qep.Pipelines {
		p.running = true
	}

	var networkSources, dataSources []Source
	for _, src := range qep.Sources {
		if src.IsNetwork() {
			networkSources = append(networkSources, src)
		} else {
			dataSources = append(dataSources, src)
		}
	}

	for _, src := range networkSources {
		if err := startNetworkSourceWithRetry(src); err != nil {
			return fmt.Errorf("runtime: starting network source: %w", err)
		}
	}
	for _, src := range dataSources {
		if err := src.Start(); err != nil {
			return fmt.Errorf("runtime: starting data source: %w", err)
		}
	}

	e.mu.Lock()
	e.runningQEPs[qep.Id] = qep
	e.mu.Unlock()
	e.recentStatus.Add(qep.Id, Running)
	e.Statuses.Send(StatusChange{PlanId: qep.Id, Status: Running})
	return nil
}

// StopQuery stops a plan's non-network sources gracefully, propagates
// end-of-stream to every pipeline, enqueues a blocking Destroy
// reconfiguration, and waits for the plan's termination future. A timeout
// here is fatal: the reference implementation asserts rather than forcing a
// kill, and no forced-teardown path is invented in this port.
func (e *Engine) StopQuery(qep *ExecutableQueryPlan, graceful bool) error {
	for _, src := range qep.Sources {
		if !src.IsNetwork() {
			if err := src.Stop(graceful); err != nil {
				return fmt.Errorf("runtime: stopping source: %w", err)
			}
		}
	}

	for _, src := range qep.Sources {
		e.AddEndOfStream(src.OperatorId(), graceful)
	}

	msg := NewReconfigurationMessage(qep.Id, Destroy, qep, e.numWorkers, true)
	e.enqueueReconfiguration(qep, msg)

	select {
	case res := <-qep.terminationFuture:
		e.finalizeStop(qep, res)
		if !res.ok {
			return res.err
		}
		return nil
	case <-e.clock.After(e.stopTimeout):
		err := fmt.Errorf("%w: plan %s", ErrStopTimeout, qep.Id)
		e.finalizeStop(qep, planResult{ok: false, err: err})
		return err
	}
}

func (e *Engine) finalizeStop(qep *ExecutableQueryPlan, res planResult) {
	e.mu.Lock()
	delete(e.runningQEPs, qep.Id)
	e.mu.Unlock()
	if res.ok {
		qep.setStatus(Finished)
		e.recentStatus.Add(qep.Id, Finished)
		e.Statuses.Send(StatusChange{PlanId: qep.Id, Status: Finished})
	} else {
		qep.setStatus(ErrorState)
		e.recentStatus.Add(qep.Id, ErrorState)
		e.Statuses.Send(StatusChange{PlanId: qep.Id, Status: ErrorState})
	}
}

// AddWork looks up the successors registered for sourceId and submits one
// task per successor, tail-enqueued.
func (e *Engine) AddWork(sourceId OperatorId, buf Buffer) {
	e.mu.RLock()
	successors := e.sourceIdToSuccessorMap[sourceId]
	e.mu.RUnlock()

	for _, s := range successors {
		if s.Pipeline != nil {
			e.queue.pushBack(Task{Pipeline: s.Pipeline, Buffer: buf})
		} else if s.Sink != nil {
			e.queue.pushBack(Task{Sink: s.Sink, Buffer: buf})
		}
	}
}

// AddEndOfStream implements soft/hard end-of-stream. Soft propagates via
// successor pipelines as an ordinary (tail-enqueued, non-blocking)
// reconfiguration; hard preempts any pending data tasks by front-inserting,
// while keeping reconfiguration tasks already queued ahead of it.
func (e *Engine) AddEndOfStream(sourceId OperatorId, graceful bool) {
	e.mu.RLock()
	qep := e.sourceIdToExecutableQueryPlanMap[sourceId]
	successors := e.sourceIdToSuccessorMap[sourceId]
	e.mu.RUnlock()
	if qep == nil {
		return
	}

	if graceful {
		e.propagateViaSuccessorPipelines(SoftEndOfStream, qep, successors, false)
		return
	}
	e.addHardEndOfStream(qep)
}

// propagateViaSuccessorPipelines builds one reconfiguration message per
// successor pipeline (or the plan itself, for a sink successor), enqueues it
// once per worker at the tail, and, if blocking, waits for every worker to
// observe it before building the next one.
func (e *Engine) propagateViaSuccessorPipelines(typ ReconfigType, qep *ExecutableQueryPlan, successors []Successor, blocking bool) {
	for _, s := range successors {
		var target Reconfigurable = qep
		if s.Pipeline != nil {
			target = s.Pipeline
		}
		msg := NewReconfigurationMessage(qep.Id, typ, target, e.numWorkers, blocking)
		e.enqueueReconfiguration(qep, msg)
		if blocking {
			msg.wait()
		}
	}
}

// addHardEndOfStream preempts the queue with one HardEndOfStream message per
// pipeline of qep: any reconfiguration tasks already sitting at the head stay
// ahead of the new hard-stop tasks, matching the reference implementation's
// drain-then-restore-in-front sequence.
func (e *Engine) addHardEndOfStream(qep *ExecutableQueryPlan) {
	leading := e.queue.drainLeadingReconfigurations()
	fresh := make([]Task, 0, len(qep.Pipelines)*e.numWorkers)
	for _, p := range qep.Pipelines {
		msg := NewReconfigurationMessage(qep.Id, HardEndOfStream, p, e.numWorkers, false)
		rp := reconfigurationPipeline(qep.Id, msg)
		for i := 0; i < e.numWorkers; i++ {
			fresh = append(fresh, Task{Pipeline: rp, Reconfig: msg})
		}
	}
	e.queue.pushFrontAll(fresh)
	e.queue.pushFrontAll(leading)
}

// AddReconfigurationMessage enqueues msg once per worker thread (tail) and,
// if msg.Blocking, waits for every worker to observe it before returning.
func (e *Engine) AddReconfigurationMessage(qep *ExecutableQueryPlan, msg *ReconfigurationMessage) {
	e.enqueueReconfiguration(qep, msg)
	if msg.Blocking {
		msg.wait()
	}
}

func (e *Engine) enqueueReconfiguration(qep *ExecutableQueryPlan, msg *ReconfigurationMessage) {
	p := reconfigurationPipeline(qep.Id, msg)
	for i := 0; i < e.numWorkers; i++ {
		e.queue.pushBack(Task{Pipeline: p, Reconfig: msg})
	}
}

// reconfigurationPipeline wraps a message in a throwaway pipeline purely so
// Task carries a PlanId through planId(); its Stage is never executed
// (executeTask special-cases Reconfig tasks before reaching Stage.Execute).
func reconfigurationPipeline(planId PlanId, msg *ReconfigurationMessage) *ExecutablePipeline {
	return &ExecutablePipeline{PlanId: planId, IsReconfiguration: true}
}

// poisonWorkers enqueues one sentinel task per worker whose execution
// always reports ResultAllFinished, then shuts the queue down so every
// worker's blockingRead unblocks once the sentinels (and anything queued
// ahead of them) have drained.
func (e *Engine) poisonWorkers() {
	stage := PipelineStageFunc(func(*Buffer, *PipelineExecutionContext, *WorkerContext) ExecutionResult {
		return ResultAllFinished
	})
	for i := 0; i < e.numWorkers; i++ {
		p := &ExecutablePipeline{Stage: stage}
		e.queue.pushBack(Task{Pipeline: p})
	}
	e.queue.shutdown()
}

// Destroy stops every running plan, poisons the worker pool, and waits for
// all worker goroutines to exit.
func (e *Engine) Destroy() error {
	e.mu.RLock()
	plans := make([]*ExecutableQueryPlan, 0, len(e.runningQEPs))
	for _, qep := range e.runningQEPs {
		plans = append(plans, qep)
	}
	e.mu.RUnlock()

	for _, qep := range plans {
		_ = e.StopQuery(qep, true)
	}

	e.poisonWorkers()
	err := e.group.Wait()
	e.cancel()
	return err
}

func (e *Engine) markPlanError(planId PlanId) {
	e.mu.RLock()
	qep, ok := e.runningQEPs[planId]
	e.mu.RUnlock()
	if !ok {
		return
	}
	qep.setStatus(ErrorState)
	qep.finish(false, fmt.Errorf("runtime: plan %s entered ErrorState", planId))
}

func (e *Engine) markPlanFinished(planId PlanId) {
	e.mu.RLock()
	qep, ok := e.runningQEPs[planId]
	e.mu.RUnlock()
	if !ok {
		return
	}
	qep.finish(true, nil)
}

// GetQepStatus returns the plan's current status, falling back to a short
// recent-status cache so a status check racing Destroy still observes a
// terminal state instead of Invalid.
func (e *Engine) GetQepStatus(planId PlanId) Status {
	e.mu.RLock()
	qep, ok := e.runningQEPs[planId]
	e.mu.RUnlock()
	if ok {
		return qep.Status()
	}
	if s, ok := e.recentStatus.Get(planId); ok {
		return s
	}
	return Invalid
}

// GetQueryStatistics returns an immutable snapshot of planId's statistics
// bucket, if any. The returned value is copied out under Snapshot so a
// caller polling it concurrently with worker increments never observes a
// torn read of the live counters.
func (e *Engine) GetQueryStatistics(planId PlanId) (QueryStatistics, bool) {
	stats, ok := e.stats.get(planId)
	if !ok {
		return QueryStatistics{}, false
	}
	return stats.Snapshot(), true
}
