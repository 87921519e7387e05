// Command enginectl wires a config file onto a runtime.Engine and, in demo
// mode, runs a single in-process source/sink pipeline end to end the way
// go-ethereum's cmd/geth wires node.Config onto a node.Node.
package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/nebulastream/streamcore/config"
	"github.com/nebulastream/streamcore/internal/runtime"
	"github.com/nebulastream/streamcore/log"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to a YAML configuration file",
	}
	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "override numWorkerThreads from the config file",
		Value: 0,
	}
	buffersFlag = &cli.IntFlag{
		Name:  "buffers",
		Usage: "number of demo buffers to push through the pipeline",
		Value: 1000,
	}
)

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.New("component", "automaxprocs").Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.New().Warn("failed to set GOMAXPROCS", "err", err)
	}

	app := &cli.App{
		Name:  "enginectl",
		Usage: "run the streamcore query manager against a demo pipeline",
		Flags: []cli.Flag{configFlag, workersFlag, buffersFlag},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.New().Crit("enginectl exited with error", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := log.New("component", "enginectl")

	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return err
	}
	if w := c.Int(workersFlag.Name); w > 0 {
		cfg.NumWorkerThreads = w
	}

	logger.Info("starting engine", "numWorkerThreads", cfg.NumWorkerThreads, "taskQueueCapacity", cfg.TaskQueueCapacity)

	engine := runtime.NewEngine(cfg.NumWorkerThreads, cfg.TaskQueueCapacity, cfg.StopTimeout)
	decision := runtime.NewDecisionManager(engine, 5*time.Second)
	decision.Start()
	defer decision.Stop()

	planId := uuid.New()
	sink := &countingSink{logger: logger, planId: planId}
	source := &demoSource{id: 1}

	pipeline := &runtime.ExecutablePipeline{
		Id:     1,
		PlanId: planId,
		Stage:  runtime.PipelineStageFunc(passthrough),
	}
	pipeline.Successors = []runtime.Successor{runtime.SinkSuccessor(sink)}

	qep := runtime.NewExecutableQueryPlan(planId, 1, []*runtime.ExecutablePipeline{pipeline}, []runtime.Source{source}, []runtime.Sink{sink})
	engine.RegisterQuery(qep)
	if err := engine.StartQuery(qep); err != nil {
		return fmt.Errorf("starting demo query: %w", err)
	}

	n := c.Int(buffersFlag.Name)
	for i := 0; i < n; i++ {
		engine.AddWork(source.OperatorId(), runtime.Buffer{
			SequenceNumber:    uint64(i),
			NumberOfTuples:    1,
			CreationTimestamp: time.Now(),
		})
	}

	if err := engine.StopQuery(qep, true); err != nil {
		return fmt.Errorf("stopping demo query: %w", err)
	}

	logger.Info("demo pipeline finished", "processed", sink.count.Load())
	return engine.Destroy()
}

// passthrough is the demo's only pipeline stage: it does no transformation,
// so the engine's successor-dispatch path in executeTask is what actually
// delivers each buffer to the sink.
func passthrough(buf *runtime.Buffer, _ *runtime.PipelineExecutionContext, _ *runtime.WorkerContext) runtime.ExecutionResult {
	return runtime.ResultOk
}

type countingSink struct {
	logger log.Logger
	planId runtime.PlanId
	count  atomic.Int64
}

func (s *countingSink) Write(buf *runtime.Buffer) error {
	s.count.Add(1)
	return nil
}

func (s *countingSink) ParentPlanId() runtime.PlanId { return s.planId }

type demoSource struct {
	id      runtime.OperatorId
	started atomic.Bool
}

func (s *demoSource) OperatorId() runtime.OperatorId { return s.id }
func (s *demoSource) Start() error                    { s.started.Store(true); return nil }
func (s *demoSource) Stop(graceful bool) error         { s.started.Store(false); return nil }
func (s *demoSource) IsNetwork() bool                  { return false }
