package runtime

import "time"

// runWorker is the per-thread loop the engine's errgroup drives: pull a
// task, execute it, record completion, repeat until the queue reports
// shutdown. It mirrors the reference implementation's processNextTask /
// terminateLoop split: once running is false the loop drains the queue but
// only executes reconfiguration tasks, letting every in-flight barrier still
// reach zero instead of deadlocking a blocking submitter.
func (e *Engine) runWorker(id int) error {
	wc := &WorkerContext{Id: id}
	for {
		t, ok := e.queue.blockingRead()
		if !ok {
			e.terminateLoop(wc)
			return nil
		}
		e.executeTask(t, wc)
	}
}

// terminateLoop drains whatever remains in the queue after shutdown,
// executing only reconfiguration tasks so that pending barriers (Destroy,
// end-of-stream) still resolve for any blocked submitters.
func (e *Engine) terminateLoop(wc *WorkerContext) {
	for _, t := range e.queue.drainAll() {
		if t.isReconfiguration() {
			e.executeTask(t, wc)
		}
	}
}

func (e *Engine) executeTask(t Task, wc *WorkerContext) {
	if t.isReconfiguration() {
		if target := t.Reconfig.Target; target != nil {
			target.Reconfigure(t.Reconfig, wc)
		}
		t.Reconfig.observe()
		return
	}

	creation := t.Buffer.CreationTimestamp
	var result ExecutionResult
	var numTuples uint64
	switch {
	case t.Pipeline != nil:
		result = t.Pipeline.Stage.Execute(&t.Buffer, t.Pipeline.Context, wc)
		numTuples = t.Buffer.NumberOfTuples
		if result == ResultOk || result == ResultFinished {
			e.dispatchSuccessors(t.Pipeline, t.Buffer)
		}
	case t.Sink != nil:
		if err := t.Sink.Write(&t.Buffer); err != nil {
			result = ResultError
		} else {
			result = ResultOk
		}
		numTuples = t.Buffer.NumberOfTuples
	default:
		return
	}

	e.completedWork(t, result, numTuples, creation)
}

// dispatchSuccessors enqueues one task per successor of p, carrying buf (the
// possibly stage-produced output buffer) onward. A data task's result only
// describes the stage that just ran; forwarding is what actually advances the
// buffer through the rest of the pipeline DAG.
func (e *Engine) dispatchSuccessors(p *ExecutablePipeline, buf Buffer) {
	for _, s := range p.Successors {
		switch {
		case s.Pipeline != nil:
			e.queue.pushBack(Task{Pipeline: s.Pipeline, Buffer: buf})
		case s.Sink != nil:
			e.queue.pushBack(Task{Sink: s.Sink, Buffer: buf})
		}
	}
}

// completedWork records per-plan statistics for every pipeline task (sink
// writes and reconfigurations are not counted, so a buffer that passes
// through one pipeline into a sink counts once) and reacts to a pipeline
// signalling it is finished.
func (e *Engine) completedWork(t Task, result ExecutionResult, numTuples uint64, creation time.Time) {
	planId := t.planId()
	stats, ok := e.stats.get(planId)
	if ok && t.Pipeline != nil {
		qsize := e.queue.len()
		stats.recordCompletedTask(numTuples, creation, qsize, 0, 0)
	}

	if result == ResultError {
		e.markPlanError(planId)
		return
	}
	if result == ResultFinished || result == ResultAllFinished {
		e.markPlanFinished(planId)
	}
}
