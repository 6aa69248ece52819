package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/notesense/notesense/ai/core/llm"
	"github.com/notesense/notesense/ai/metrics"
	"github.com/notesense/notesense/ai/timeout"
)

// DefaultMaxSteps bounds a run regardless of model behavior. The ceiling is
// the hard timeout substitute: worst-case latency and cost stay bounded.
const DefaultMaxSteps = 15

const plannerSystemPrompt = `You are a helpful assistant that can use tools to answer the user's question. Call a tool when you need external information. When you have enough information, answer directly in natural language without calling a tool.`

// ToolProvider resolves tool lookups and descriptors for a run.
type ToolProvider interface {
	Get(name string) (ToolWithSchema, bool)
	Descriptors() ([]llm.ToolDescriptor, error)
}

/*
Runner - bounded plan/act/observe loop.

ALGORITHM:
 1. The model plans against the full transcript (ChatWithTools).
 2. No tool call in the response = final answer, run Finished.
 3. Otherwise execute the first named tool sequentially and feed its
    output (or error text) back as an observation, then plan again.

Tool-level faults stay local: they become observations the model can react
to. Only model-level faults, unknown tools, schema violations, a repeated
identical failure, and the step ceiling terminate the run as Failed.
*/
type Runner struct {
	llm      llm.Service
	tools    ToolProvider
	exporter *metrics.Exporter
	maxSteps int
}

// NewRunner creates a new Runner. exporter may be nil.
func NewRunner(service llm.Service, tools ToolProvider, exporter *metrics.Exporter, maxSteps int) (*Runner, error) {
	if service == nil {
		return nil, fmt.Errorf("llm service cannot be nil")
	}
	if tools == nil {
		return nil, fmt.Errorf("tool provider cannot be nil")
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Runner{
		llm:      service,
		tools:    tools,
		exporter: exporter,
		maxSteps: maxSteps,
	}, nil
}

// Run executes the loop for one question. The returned Run is always
// terminal: Finished with the model's answer, or Failed with the fixed
// diagnostic. The error reports why a run Failed; callers that only need
// user-facing output can ignore it and read run.Answer.
func (r *Runner) Run(ctx context.Context, question string) (*Run, error) {
	run := NewRun(question)
	startTime := time.Now()

	descriptors, err := r.tools.Descriptors()
	if err != nil {
		return r.fail(run, fmt.Errorf("build tool descriptors: %w", err))
	}

	// The transcript is rebuilt into messages every step: each planning
	// call is a fresh stateless request carrying the full ordered history.
	messages := []llm.Message{
		llm.SystemPrompt(plannerSystemPrompt),
		llm.UserMessage(question),
	}

	// Identical consecutive failing tool call escalates instead of looping.
	var lastFailedCall string

	for step := 0; step < r.maxSteps; step++ {
		select {
		case <-ctx.Done():
			return r.fail(run, ctx.Err())
		default:
		}

		run.State = StatePlanning
		slog.Debug("agent: planning",
			"run_id", run.ID,
			"step", step+1,
			"max_steps", r.maxSteps)

		response, _, err := r.llm.ChatWithTools(ctx, messages, descriptors)
		if err != nil {
			return r.fail(run, fmt.Errorf("planning call failed: %w", err))
		}

		// No tool call: the content is the final answer.
		if len(response.ToolCalls) == 0 {
			run.Steps = append(run.Steps, Step{Thought: response.Content})
			run.State = StateFinished
			run.Answer = response.Content
			r.exporter.ObserveAgentRun(string(StateFinished), len(run.Steps))
			slog.Info("agent: run finished",
				"run_id", run.ID,
				"steps", len(run.Steps),
				"duration_ms", time.Since(startTime).Milliseconds())
			return run, nil
		}

		// One tool call per step; surplus calls are ignored and the model
		// re-requests them next step if still needed.
		call := response.ToolCalls[0]
		toolName := call.Function.Name
		toolInput := call.Function.Arguments

		tool, ok := r.tools.Get(toolName)
		if !ok {
			return r.fail(run, fmt.Errorf("model selected unknown tool: %s", toolName))
		}
		if err := ValidateInput(tool.Parameters(), toolInput); err != nil {
			return r.fail(run, fmt.Errorf("tool %s input rejected: %w", toolName, err))
		}

		run.State = StateToolExecuting
		toolStart := time.Now()
		toolCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout.ToolExecution)
		observation, toolErr := tool.Run(toolCtx, toolInput)
		cancel()

		// Cancellation mid-call: the tool ran to completion (tools are not
		// preemptible) but its result is discarded, not fed back.
		if ctx.Err() != nil {
			return r.fail(run, ctx.Err())
		}

		status := "success"
		if toolErr != nil {
			status = "error"
			callKey := toolName + "\x00" + toolInput
			if callKey == lastFailedCall {
				r.exporter.IncToolCall(toolName, status)
				return r.fail(run, fmt.Errorf("tool %s failed twice in a row: %w", toolName, toolErr))
			}
			lastFailedCall = callKey
			observation = fmt.Sprintf("Error: %v", toolErr)
		} else {
			lastFailedCall = ""
		}
		r.exporter.IncToolCall(toolName, status)

		slog.Info("agent: tool executed",
			"run_id", run.ID,
			"tool", toolName,
			"status", status,
			"duration_ms", time.Since(toolStart).Milliseconds())

		run.Steps = append(run.Steps, Step{
			Thought:     response.Content,
			ToolName:    toolName,
			ToolInput:   toolInput,
			Observation: observation,
		})

		// Preserve transcript order verbatim: the model's thought first,
		// then the observation.
		if response.Content != "" {
			messages = append(messages, llm.AssistantMessage(response.Content))
		}
		messages = append(messages, llm.UserMessage(fmt.Sprintf("[Result from %s]: %s", toolName, observation)))
	}

	return r.fail(run, fmt.Errorf("max steps (%d) exceeded", r.maxSteps))
}

// fail marks the run terminal with the fixed diagnostic.
func (r *Runner) fail(run *Run, cause error) (*Run, error) {
	run.State = StateFailed
	run.Answer = FailedDiagnostic
	r.exporter.ObserveAgentRun(string(StateFailed), len(run.Steps))
	slog.Error("agent: run failed",
		"run_id", run.ID,
		"steps", len(run.Steps),
		"error", cause)
	return run, cause
}
