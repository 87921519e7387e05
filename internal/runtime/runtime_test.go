package runtime

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// recordingSink counts the buffers written to it, standing in for a
// compiled data sink in tests.
type recordingSink struct {
	planId PlanId
	count  atomic.Int64
}

func newRecordingSink(planId PlanId) *recordingSink { return &recordingSink{planId: planId} }

func (s *recordingSink) Write(buf *Buffer) error {
	s.count.Add(1)
	return nil
}

func (s *recordingSink) ParentPlanId() PlanId { return s.planId }

// countingSource is a Source whose lifecycle is driven directly by test
// code; Start/Stop just flip a flag.
type countingSource struct {
	id      OperatorId
	network bool
	started atomic.Bool
}

func newCountingSource(id OperatorId) *countingSource { return &countingSource{id: id} }

func (s *countingSource) OperatorId() OperatorId { return s.id }
func (s *countingSource) Start() error            { s.started.Store(true); return nil }
func (s *countingSource) Stop(graceful bool) error { s.started.Store(false); return nil }
func (s *countingSource) IsNetwork() bool          { return s.network }

// passthroughStage returns ResultOk for every buffer without touching it, so
// the engine forwards the buffer to the pipeline's successors; it never
// finishes on its own.
func passthroughStage() PipelineStage {
	return PipelineStageFunc(func(buf *Buffer, ctx *PipelineExecutionContext, wc *WorkerContext) ExecutionResult {
		return ResultOk
	})
}

func newPlanId() PlanId { return uuid.New() }

func newBuffer(seq uint64, tuples uint64) Buffer {
	return Buffer{SequenceNumber: seq, NumberOfTuples: tuples, CreationTimestamp: time.Unix(0, 0)}
}
