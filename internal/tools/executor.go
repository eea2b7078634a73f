package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/quartermasterhq/quartermaster/internal/llm"
	"github.com/quartermasterhq/quartermaster/internal/observability"
)

// Result is the outcome of one tool call, already serialized into the
// envelope the model receives. Failures are payloads, not errors; the
// model is expected to read them and react.
type Result struct {
	ToolCallID string
	ToolName   string
	Content    string
	IsError    bool
	Duration   time.Duration
}

// Message converts the result into a tool-role chat message.
func (r Result) Message() llm.ChatMessage {
	return llm.ChatMessage{
		Role:       llm.RoleTool,
		Content:    r.Content,
		ToolCallID: r.ToolCallID,
		ToolName:   r.ToolName,
	}
}

// errorEnvelope is the JSON body of a failed tool call.
type errorEnvelope struct {
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
	ToolName  string `json:"toolName"`
}

// Executor validates, authorizes, and runs tool calls with a per-call
// timeout. Panics inside a tool are contained and reported as execution
// failures.
type Executor struct {
	registry *Registry
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewExecutor creates an executor with the given per-call timeout.
func NewExecutor(registry *Registry, timeout time.Duration, metrics *observability.Metrics, logger *observability.Logger) *Executor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Executor{
		registry: registry,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
	}
}

// ExecuteAll runs the calls in parallel and returns results in input order.
func (e *Executor) ExecuteAll(ctx context.Context, userID string, calls []llm.ToolCall) []Result {
	if len(calls) == 0 {
		return nil
	}

	results := make([]Result, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc llm.ToolCall) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, userID, tc)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Execute runs one tool call end to end.
func (e *Executor) Execute(ctx context.Context, userID string, call llm.ToolCall) Result {
	start := time.Now()

	payload, err := e.run(ctx, userID, call)
	elapsed := time.Since(start)

	e.metrics.ToolExecutionDuration.WithLabelValues(call.Name).Observe(elapsed.Seconds())

	if err != nil {
		te := asToolError(call.Name, err)
		status := "error"
		if te.Type == ErrTypeTimeout {
			status = "timeout"
		}
		e.metrics.ToolExecutions.WithLabelValues(call.Name, status).Inc()
		if te.Type == ErrTypeValidation {
			e.metrics.ValidationErrors.WithLabelValues("tool_args").Inc()
		}
		e.logger.Warn(ctx, "tool execution failed",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"error_type", te.Type,
			"duration_ms", elapsed.Milliseconds(),
			"error", te.message(),
		)
		return Result{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    marshalEnvelope(errorEnvelope{Error: te.message(), ErrorType: te.Type, ToolName: call.Name}),
			IsError:    true,
			Duration:   elapsed,
		}
	}

	e.metrics.ToolExecutions.WithLabelValues(call.Name, "success").Inc()
	e.logger.Debug(ctx, "tool executed",
		"tool", call.Name,
		"tool_call_id", call.ID,
		"duration_ms", elapsed.Milliseconds(),
	)
	return Result{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    payload,
		Duration:   elapsed,
	}
}

func (e *Executor) run(ctx context.Context, userID string, call llm.ToolCall) (string, error) {
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		return "", &ToolError{
			Tool:    call.Name,
			Type:    ErrTypeExecution,
			Message: fmt.Sprintf("unknown tool %q", call.Name),
		}
	}
	if tool.RequiresAuth() && userID == "" {
		return "", &ToolError{
			Tool:    call.Name,
			Type:    ErrTypeUnauthorized,
			Message: "this action requires an authenticated user",
		}
	}

	out, err := e.runWithTimeout(ctx, tool, userID, call)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", &ToolError{Tool: call.Name, Type: ErrTypeExecution, Cause: err}
	}
	return string(data), nil
}

// runWithTimeout races the tool against the per-call deadline. The tool
// goroutine gets the deadline via its context; a tool that ignores it is
// abandoned, not killed.
func (e *Executor) runWithTimeout(ctx context.Context, tool Tool, userID string, call llm.ToolCall) (any, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type execResult struct {
		out any
		err error
	}
	resultCh := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- execResult{err: &ToolError{
					Tool:    call.Name,
					Type:    ErrTypeExecution,
					Message: fmt.Sprintf("panic: %v", r),
					Cause:   fmt.Errorf("panic: %v\n%s", r, debug.Stack()),
				}}
			}
		}()
		out, err := tool.Execute(execCtx, userID, call.Arguments)
		resultCh <- execResult{out: out, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.out, res.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, &ToolError{
				Tool:    call.Name,
				Type:    ErrTypeTimeout,
				Message: "request cancelled during tool execution",
				Cause:   ctx.Err(),
			}
		}
		return nil, &ToolError{
			Tool:    call.Name,
			Type:    ErrTypeTimeout,
			Message: fmt.Sprintf("tool timed out after %s", e.timeout),
		}
	}
}

func asToolError(tool string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Tool: tool, Type: ErrTypeExecution, Cause: err}
}

func marshalEnvelope(env errorEnvelope) string {
	data, err := json.Marshal(env)
	if err != nil {
		return `{"error":"internal error","errorType":"ToolExecutionFailed"}`
	}
	return string(data)
}
