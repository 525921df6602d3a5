// Package tools declares the functions the realtime model may invoke and
// dispatches completed calls. Dispatch never returns an error: every failure
// becomes a result payload carrying an error marker so the conversation can
// continue.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/realtyvoice/voice-gateway/pkg/gateway/metrics"
	"github.com/realtyvoice/voice-gateway/pkg/realtime"
)

// Executor is one invokable function.
type Executor interface {
	Name() string
	Declaration() realtime.ToolDef
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Registry maps function names to executors.
type Registry struct {
	byName    map[string]Executor
	validator *argumentValidator
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger, executors ...Executor) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	registry := &Registry{
		byName:    make(map[string]Executor, len(executors)),
		validator: newArgumentValidator(),
		logger:    logger,
	}
	for _, ex := range executors {
		if ex == nil {
			continue
		}
		registry.byName[ex.Name()] = ex
	}
	return registry
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[strings.TrimSpace(name)]
	return ok
}

// Declarations returns the tool definitions for session configuration,
// sorted by name.
func (r *Registry) Declarations() []realtime.ToolDef {
	if r == nil {
		return nil
	}
	defs := make([]realtime.ToolDef, 0, len(r.byName))
	for _, ex := range r.byName {
		defs = append(defs, ex.Declaration())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ErrorResult wraps a failure message as a speakable result payload.
func ErrorResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// Dispatch executes the named function with the raw argument JSON. Unknown
// names, invalid arguments, and execution failures all come back as
// error-marker results.
func (r *Registry) Dispatch(ctx context.Context, name, rawArgs string) any {
	name = strings.TrimSpace(name)
	ex, ok := r.byName[name]
	if !ok {
		r.logger.Warn("function call for unknown tool", "tool", name)
		metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return ErrorResult(fmt.Sprintf("Unknown function: %s", name))
	}

	if strings.TrimSpace(rawArgs) == "" {
		rawArgs = "{}"
	}
	if err := r.validator.Validate(ex.Declaration(), rawArgs); err != nil {
		r.logger.Warn("function call arguments rejected", "tool", name, "error", err)
		metrics.ToolCalls.WithLabelValues(name, "invalid_args").Inc()
		return ErrorResult(fmt.Sprintf("Invalid arguments for %s: %v", name, err))
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		r.logger.Warn("function call arguments undecodable", "tool", name, "error", err)
		metrics.ToolCalls.WithLabelValues(name, "invalid_args").Inc()
		return ErrorResult(fmt.Sprintf("Invalid arguments for %s: %v", name, err))
	}

	r.logger.Info("executing function call", "tool", name)
	result, err := ex.Execute(ctx, args)
	if err != nil {
		r.logger.Error("function call failed", "tool", name, "error", err)
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		return ErrorResult(err.Error())
	}
	metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
	return result
}
