package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-speaky/pkg/metrics"
	"github.com/teslashibe/go-speaky/pkg/realtime"
	"github.com/teslashibe/go-speaky/pkg/tools"
)

// Tool call outcomes recorded in metrics.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeError   = "error"
	outcomeUnknown = "unknown"
)

// Dispatcher runs the tool calls found in response.done events and returns
// their results to the model.
type Dispatcher struct {
	sender   Sender
	registry *tools.Registry
	env      *tools.Env
	gap      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	onResult []func(call realtime.ToolCall, res tools.Result)

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(sender Sender, registry *tools.Registry, env *tools.Env, cfg *Config) *Dispatcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender:   sender,
		registry: registry,
		env:      env,
		gap:      cfg.OutputGap,
		logger:   logger.With("component", "assistant.dispatch"),
		metrics:  cfg.Metrics,
	}
}

// OnResult registers fn to observe every completed call.
func (d *Dispatcher) OnResult(fn func(call realtime.ToolCall, res tools.Result)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onResult = append(d.onResult, fn)
}

// Handle dispatches the tool calls of a response.done event. Each call runs
// on its own goroutine; Handle does not wait for them.
func (d *Dispatcher) Handle(ev realtime.Event) {
	for _, call := range realtime.ToolCalls(ev) {
		tool, ok := d.registry.Lookup(call.Name)
		if !ok {
			d.logger.Warn("unknown tool, dropping call", "tool", call.Name, "call_id", call.CallID)
			d.metrics.ObserveTool(call.Name, outcomeUnknown, 0)
			continue
		}

		d.wg.Add(1)
		go func(call realtime.ToolCall, tool tools.Tool) {
			defer d.wg.Done()
			d.run(call, tool)
		}(call, tool)
	}
}

// Wait blocks until every in-flight call has sent its result.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Execute runs a tool by name without reporting back to the model.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any) (tools.Result, error) {
	tool, ok := d.registry.Lookup(name)
	if !ok {
		return tools.Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	res, _ := d.invoke(ctx, tool, args)
	return res, nil
}

// run executes one call on a context detached from the session, so stopping
// the session does not abort it. Sends after the session closed are no-ops.
func (d *Dispatcher) run(call realtime.ToolCall, tool tools.Tool) {
	ctx := context.Background()
	logger := d.logger.With("tool", call.Name, "call_id", call.CallID)
	logger.Info("executing tool", "args", call.Arguments)

	res, outcome := d.invoke(ctx, tool, call.Arguments)
	logger.Info("tool finished", "success", res.Success, "outcome", outcome, "code", res.ErrorCode)

	d.mu.Lock()
	hooks := append([]func(realtime.ToolCall, tools.Result){}, d.onResult...)
	d.mu.Unlock()
	for _, fn := range hooks {
		fn(call, res)
	}

	if err := sleep(ctx, d.gap); err != nil {
		return
	}
	if err := d.sender.SendSequence(ctx, 0,
		realtime.FunctionCallOutput(call.CallID, res.JSON()),
		realtime.ResponseCreate(),
	); err != nil {
		logger.Error("failed to return tool result", "error", err)
	}
}

// invoke runs the handler, converting returned errors and panics into
// EXECUTION_ERROR results.
func (d *Dispatcher) invoke(ctx context.Context, tool tools.Tool, args map[string]any) (res tools.Result, outcome string) {
	start := time.Now()
	name := tool.Definition.Name
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", name, "panic", r)
			res = tools.Failure(fmt.Sprintf("%v", r), tools.CodeExecutionError)
			outcome = outcomeError
		}
		d.metrics.ObserveTool(name, outcome, time.Since(start))
	}()

	res, err := tool.Handler(ctx, args, d.env)
	switch {
	case err != nil:
		return tools.Failure(err.Error(), tools.CodeExecutionError), outcomeError
	case res.Success:
		return res, outcomeSuccess
	default:
		return res, outcomeFailure
	}
}
