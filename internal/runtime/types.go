// Package runtime implements the task-dispatching query manager: it runs
// compiled pipeline graphs on a fixed worker pool, propagates lifecycle
// (reconfiguration) messages through the graph, and tracks per-query
// progress statistics.
package runtime

import (
	"time"

	"github.com/google/uuid"
)

// PlanId identifies one executable query plan (a "query sub-plan" in the
// reference implementation).
type PlanId = uuid.UUID

// OperatorId identifies a source or sink operator within a logical query.
type OperatorId uint64

// Status is the lifecycle state of an ExecutableQueryPlan.
type Status int

const (
	Created Status = iota
	Running
	Stopped
	Finished
	ErrorState
	Invalid
)

func (s Status) String() string {
	switch s {
	case Created:
		return "Created"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Finished:
		return "Finished"
	case ErrorState:
		return "ErrorState"
	case Invalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// ExecutionResult is the outcome of running one task.
type ExecutionResult int

const (
	ResultOk ExecutionResult = iota
	ResultFinished
	ResultAllFinished
	ResultError
)

// Buffer is one unit of data flowing through the operator DAG.
type Buffer struct {
	Payload           []byte
	SequenceNumber    uint64
	OriginId          OperatorId
	NumberOfTuples    uint64
	CreationTimestamp time.Time
}
