package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

// ErrInvalidArguments marks argument text that is not a JSON value.
var ErrInvalidArguments = errors.New("tool: invalid arguments")

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Logger     *slog.Logger
	Truncation TruncationPolicy
}

// Registry maps tool names to handlers and converts every handler outcome
// into a Result.
type Registry struct {
	tools      map[string]Tool
	ordered    []Tool
	truncation TruncationPolicy
	logger     *slog.Logger
}

// NewRegistry builds a registry over tools. Declaration order follows the
// order of tools.
func NewRegistry(cfg RegistryConfig, tools ...Tool) (*Registry, error) {
	byName, err := BuildMap(tools)
	if err != nil {
		return nil, err
	}
	ordered := make([]Tool, 0, len(byName))
	for _, t := range tools {
		if t != nil {
			ordered = append(ordered, t)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	truncation := cfg.Truncation
	if truncation.MaxTokens <= 0 && truncation.MaxBytes <= 0 {
		truncation = DefaultTruncationPolicy()
	}
	return &Registry{
		tools:      byName,
		ordered:    ordered,
		truncation: truncation,
		logger:     logger,
	}, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Names lists registered tool names in declaration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.ordered))
	for _, t := range r.ordered {
		out = append(out, t.Name())
	}
	return out
}

// Declarations returns model-visible declarations in registration order.
func (r *Registry) Declarations() []model.ToolDefinition {
	if r == nil {
		return nil
	}
	return Declarations(r.ordered)
}

// Dispatch runs the named tool. It never panics and never returns a Go
// error: failures come back as error results. An unknown name yields nil.
func (r *Registry) Dispatch(ctx context.Context, name, arguments string) (result *Result) {
	t, ok := r.Lookup(name)
	if !ok {
		r.log().Warn("unknown tool call skipped", "tool", name)
		return nil
	}
	log := r.log().With("tool", name)

	args := strings.TrimSpace(arguments)
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		log.Warn("tool arguments are not valid JSON", "arguments", arguments)
		return ErrorResult(fmt.Errorf("%w for %s: not valid JSON", ErrInvalidArguments, name))
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("tool panicked", "panic", rec, "stack", string(debug.Stack()))
			result = ErrorResult(fmt.Errorf("tool %s failed: %v", name, rec))
		}
	}()

	out, err := t.Run(ctx, args)
	if err != nil {
		log.Warn("tool failed", "error", err)
		return ErrorResult(err)
	}
	if out == nil {
		log.Warn("tool returned no result")
		return ErrorResult(fmt.Errorf("tool %s returned no result", name))
	}
	if out.Kind == "" {
		out.Kind = KindText
	}
	if out.Output != "" {
		truncated, removed := TruncateText(out.Output, r.truncation)
		if removed > 0 {
			log.Debug("tool output truncated", "removed_tokens", removed)
			out.Output = truncated
		}
	}
	if out.Failed() {
		log.Warn("tool returned error result", "error", out.Err)
	} else {
		log.Debug("tool completed", "kind", string(out.Kind))
	}
	return out
}

func (r *Registry) log() *slog.Logger {
	if r == nil || r.logger == nil {
		return slog.Default()
	}
	return r.logger
}
