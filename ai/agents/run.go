package agent

import (
	"github.com/lithammer/shortuuid/v4"
)

// RunState is the agent loop state.
type RunState string

const (
	// StatePlanning: the model decides the next action.
	StatePlanning RunState = "planning"

	// StateToolExecuting: a selected tool call is in flight.
	StateToolExecuting RunState = "tool_executing"

	// StateFinished: a final answer was produced.
	StateFinished RunState = "finished"

	// StateFailed: unrecoverable error or step limit exceeded.
	StateFailed RunState = "failed"
)

// Step is one iteration of the plan/act/observe loop. A step without a tool
// name is a direct answer.
type Step struct {
	// Thought is the model's content emitted alongside the action.
	Thought string

	// ToolName and ToolInput describe the selected action, if any.
	ToolName  string
	ToolInput string

	// Observation is the tool output (or error description) fed back.
	Observation string
}

// Run is one complete execution of the loop for a single user query. It
// lives only in memory and is discarded once the answer is returned. The
// Steps transcript is append-only; past entries are never mutated.
type Run struct {
	ID       string
	Question string
	Steps    []Step
	State    RunState

	// Answer holds the final natural-language answer when Finished, or the
	// fixed diagnostic when Failed.
	Answer string
}

// FailedDiagnostic is the only output a Failed run yields. Partial or
// garbled tool output never reaches the caller.
const FailedDiagnostic = "I was unable to complete this request. Please try rephrasing your question."

// NewRun creates a Run in the Planning state.
func NewRun(question string) *Run {
	return &Run{
		ID:       shortuuid.New(),
		Question: question,
		State:    StatePlanning,
	}
}
