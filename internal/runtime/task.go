package runtime

// PipelineStage is the compiled operator code a pipeline runs for each
// buffer it receives.
type PipelineStage interface {
	Execute(buf *Buffer, ctx *PipelineExecutionContext, wc *WorkerContext) ExecutionResult
}

// PipelineStageFunc adapts a plain function to PipelineStage.
type PipelineStageFunc func(buf *Buffer, ctx *PipelineExecutionContext, wc *WorkerContext) ExecutionResult

func (f PipelineStageFunc) Execute(buf *Buffer, ctx *PipelineExecutionContext, wc *WorkerContext) ExecutionResult {
	return f(buf, ctx, wc)
}

// Sink is a terminal consumer of buffers.
type Sink interface {
	Write(buf *Buffer) error
	ParentPlanId() PlanId
}

// Source produces buffers and is driven externally (via Engine.AddWork);
// Start/Stop bracket its lifecycle.
type Source interface {
	OperatorId() OperatorId
	Start() error
	Stop(graceful bool) error
	IsNetwork() bool
}

// Successor is either another pipeline or a terminal sink.
type Successor struct {
	Pipeline *ExecutablePipeline
	Sink     Sink
}

func PipelineSuccessor(p *ExecutablePipeline) Successor { return Successor{Pipeline: p} }
func SinkSuccessor(s Sink) Successor                    { return Successor{Sink: s} }

func (s Successor) isReconfigurationTarget() bool { return s.Pipeline != nil }

// PipelineExecutionContext is the per-pipeline handle a compiled stage uses
// to reach the owning engine and submit work to successors.
type PipelineExecutionContext struct {
	PlanId  PlanId
	Engine  *Engine
	Handlers []OperatorHandler
}

// OperatorHandler is arbitrary per-pipeline operator state (e.g. a
// ChainedHashMap for an aggregation); the runtime does not interpret it.
type OperatorHandler interface{}

// ExecutablePipeline is one node of the physical operator DAG.
type ExecutablePipeline struct {
	Id               uint64
	PlanId           PlanId
	Stage            PipelineStage
	Context          *PipelineExecutionContext
	Successors       []Successor
	IsReconfiguration bool
	running          bool
	plan             *ExecutableQueryPlan
}

func (p *ExecutablePipeline) IsRunning() bool { return p.running }

// Task is the unit of work a worker executes: a target (pipeline or sink)
// paired with the buffer to process. Reconfig is set only for
// reconfiguration tasks, carrying the message every worker must observe.
type Task struct {
	Pipeline *ExecutablePipeline
	Sink     Sink
	Buffer   Buffer
	Reconfig *ReconfigurationMessage
}

func (t Task) isReconfiguration() bool {
	return t.Reconfig != nil
}

func (t Task) planId() PlanId {
	if t.Pipeline != nil {
		return t.Pipeline.PlanId
	}
	if t.Sink != nil {
		return t.Sink.ParentPlanId()
	}
	return PlanId{}
}
